package eval

import (
	"context"
	"log/slog"

	rerrors "github.com/Aman-CERP/tinyrerank/internal/errors"
	"github.com/Aman-CERP/tinyrerank/internal/search"
)

// DefaultSweepCounts are the candidate counts swept unless configured.
var DefaultSweepCounts = []int{25, 50, 100}

// SweepRow is the stage timing for one candidate count.
type SweepRow struct {
	NumCandidates int           `json:"num_candidates"`
	Timing        search.Timing `json:"timing"`
}

// Sweep runs one query at each candidate count, reranking every candidate,
// and reports the stage timings.
func Sweep(ctx context.Context, s Searcher, query string, columns []string, counts []int) ([]SweepRow, error) {
	if len(counts) == 0 {
		return nil, rerrors.ValidationError("at least one candidate count is required", nil)
	}
	for _, n := range counts {
		if n <= 0 {
			return nil, rerrors.Newf(rerrors.ErrCodeInvalidInput, "candidate count must be positive, got %d", n)
		}
	}

	rows := make([]SweepRow, 0, len(counts))
	for _, n := range counts {
		resp, err := s.Search(ctx, search.Request{
			Query:         query,
			Columns:       columns,
			NumCandidates: n,
			NumResults:    n,
		})
		if err != nil {
			return nil, err
		}
		rows = append(rows, SweepRow{NumCandidates: n, Timing: resp.Timing})

		slog.Debug("sweep_step",
			slog.Int("num_candidates", n),
			slog.Duration("retrieval", resp.Timing.Retrieval),
			slog.Duration("rerank", resp.Timing.Rerank))
	}
	return rows, nil
}
