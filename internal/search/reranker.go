package search

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/Aman-CERP/tinyrerank/internal/corpus"
	rerrors "github.com/Aman-CERP/tinyrerank/internal/errors"
	"github.com/Aman-CERP/tinyrerank/internal/scorer"
)

// Scored is a record with its rerank score.
type Scored struct {
	Record corpus.Record `json:"record"`
	Score  float64       `json:"score"`
}

// Reranker reorders candidates by a pairwise relevance score between the
// query and each candidate's rerank text. It keeps no state between calls.
type Reranker struct {
	scorer scorer.Scorer
}

// NewReranker creates a reranker over the given scorer.
func NewReranker(s scorer.Scorer) *Reranker {
	return &Reranker{scorer: s}
}

// Rerank returns candidates sorted by descending score.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []corpus.Record, columns []string) ([]corpus.Record, error) {
	scored, err := r.RerankScored(ctx, query, candidates, columns)
	if err != nil {
		return nil, err
	}
	out := make([]corpus.Record, len(scored))
	for i, s := range scored {
		out[i] = s.Record
	}
	return out, nil
}

// RerankScored scores every candidate in one scorer call and sorts stably by
// descending score. NaN scores sort last.
func (r *Reranker) RerankScored(ctx context.Context, query string, candidates []corpus.Record, columns []string) ([]Scored, error) {
	if len(candidates) == 0 {
		return []Scored{}, nil
	}

	pairs := make([]scorer.Pair, len(candidates))
	for i, c := range candidates {
		pairs[i] = scorer.Pair{Query: query, Document: c.RerankText(columns)}
	}

	scores, err := r.scorer.Score(ctx, pairs)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(candidates) {
		return nil, rerrors.InternalError(
			fmt.Sprintf("scorer returned %d scores for %d candidates", len(scores), len(candidates)), nil)
	}

	scored := make([]Scored, len(candidates))
	for i, c := range candidates {
		scored[i] = Scored{Record: c, Score: scores[i]}
	}
	slices.SortStableFunc(scored, compareScored)
	return scored, nil
}

func compareScored(a, b Scored) int {
	aNaN, bNaN := math.IsNaN(a.Score), math.IsNaN(b.Score)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return 1
	case bNaN:
		return -1
	}
	return cmp.Compare(b.Score, a.Score)
}

// ModelName returns the scorer's model identifier.
func (r *Reranker) ModelName() string {
	return r.scorer.ModelName()
}
