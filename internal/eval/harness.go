package eval

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Aman-CERP/tinyrerank/internal/corpus"
	rerrors "github.com/Aman-CERP/tinyrerank/internal/errors"
	"github.com/Aman-CERP/tinyrerank/internal/search"
)

// DefaultKs are the cutoffs reported unless configured.
var DefaultKs = []int{5, 10}

// Searcher is the part of search.Engine the harness needs.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (*search.Response, error)
	Corpus() corpus.Corpus
}

// Row is the evaluation result for one judgment.
type Row struct {
	Query string

	// Recall holds RecallAtK per cutoff, parallel to Report.Ks.
	Recall []float64

	// RankedIDs is the full reranked candidate order.
	RankedIDs []string

	// Err is set for invalid judgments; Recall is empty then.
	Err error
}

type rowJSON struct {
	Query     string    `json:"query"`
	Recall    []float64 `json:"recall,omitempty"`
	RankedIDs []string  `json:"ranked_ids,omitempty"`
	Code      string    `json:"code,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// MarshalJSON splits Err into its code and message.
func (r Row) MarshalJSON() ([]byte, error) {
	v := rowJSON{Query: r.Query, Recall: r.Recall, RankedIDs: r.RankedIDs}
	if r.Err != nil {
		v.Code = rerrors.GetCode(r.Err)
		v.Error = rerrors.GetMessage(r.Err)
	}
	return json.Marshal(v)
}

// Report is one evaluation run.
type Report struct {
	RunID         string        `json:"run_id"`
	Ks            []int         `json:"ks"`
	NumCandidates int           `json:"num_candidates"`
	Rows          []Row         `json:"rows"`
	Started       time.Time     `json:"started"`
	Duration      time.Duration `json:"duration"`
}

// Option configures a Harness.
type Option func(*Harness)

// WithKs sets the Recall@K cutoffs.
func WithKs(ks ...int) Option {
	return func(h *Harness) {
		h.ks = append([]int(nil), ks...)
	}
}

// WithNumCandidates sets how many records are retrieved and reranked per query.
func WithNumCandidates(n int) Option {
	return func(h *Harness) {
		h.numCandidates = n
	}
}

// WithColumns sets the rerank columns.
func WithColumns(columns []string) Option {
	return func(h *Harness) {
		h.columns = columns
	}
}

// Harness runs judgments through a searcher and scores the rankings.
type Harness struct {
	searcher      Searcher
	ks            []int
	numCandidates int
	columns       []string
}

// NewHarness creates a harness with Recall@5 and Recall@10 over 50
// candidates unless configured otherwise.
func NewHarness(s Searcher, opts ...Option) *Harness {
	h := &Harness{
		searcher:      s,
		ks:            DefaultKs,
		numCandidates: search.DefaultNumCandidates,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run evaluates every judgment in order. Invalid judgments become error
// rows; a search failure aborts the run.
func (h *Harness) Run(ctx context.Context, judgments Judgments) (*Report, error) {
	if len(h.ks) == 0 {
		return nil, rerrors.ValidationError("at least one K is required", nil)
	}
	for _, k := range h.ks {
		if k <= 0 {
			return nil, rerrors.Newf(rerrors.ErrCodeInvalidInput, "K must be positive, got %d", k)
		}
	}

	report := &Report{
		RunID:         uuid.NewString(),
		Ks:            h.ks,
		NumCandidates: h.numCandidates,
		Rows:          make([]Row, 0, len(judgments)),
		Started:       time.Now(),
	}
	known := h.searcher.Corpus().IDSet()

	for _, j := range judgments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		row := Row{Query: j.Query, Err: j.Err}
		if row.Err == nil && !anyKnown(j.Relevant, known) {
			row.Err = rerrors.InvalidJudgmentError(j.Query, "none of the relevant ids exist in the corpus")
		}
		if row.Err != nil {
			slog.Warn("judgment_skipped",
				slog.String("run_id", report.RunID),
				slog.String("query", j.Query),
				slog.String("error", row.Err.Error()))
			report.Rows = append(report.Rows, row)
			continue
		}

		resp, err := h.searcher.Search(ctx, search.Request{
			Query:         j.Query,
			Columns:       h.columns,
			NumCandidates: h.numCandidates,
			NumResults:    h.numCandidates,
		})
		if err != nil {
			return nil, err
		}

		row.RankedIDs = resp.IDs()
		row.Recall = make([]float64, len(h.ks))
		for i, k := range h.ks {
			row.Recall[i] = RecallAtK(row.RankedIDs, j.Relevant, k)
		}
		report.Rows = append(report.Rows, row)
	}

	report.Duration = time.Since(report.Started)
	slog.Debug("eval_complete",
		slog.String("run_id", report.RunID),
		slog.Int("queries", len(report.Rows)),
		slog.Duration("duration", report.Duration))

	return report, nil
}

func anyKnown(ids []string, known map[string]struct{}) bool {
	for _, id := range ids {
		if _, ok := known[id]; ok {
			return true
		}
	}
	return false
}
