package search

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Aman-CERP/tinyrerank/internal/corpus"
	"github.com/Aman-CERP/tinyrerank/internal/embed"
	"github.com/Aman-CERP/tinyrerank/internal/scorer"
	"github.com/Aman-CERP/tinyrerank/internal/telemetry"
)

// stubEmbedder returns fixed vectors looked up by text, falling back to
// fallback. It counts EmbedBatch calls.
type stubEmbedder struct {
	mu       sync.Mutex
	vectors  map[string][]float32
	fallback []float32
	err      error
	calls    int
	batches  [][]string
}

var _ embed.Embedder = (*stubEmbedder)(nil)

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (s *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.batches = append(s.batches, texts)
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := s.vectors[t]
		if !ok {
			v = s.fallback
		}
		out[i] = append([]float32(nil), v...)
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int                  { return len(s.fallback) }
func (s *stubEmbedder) ModelName() string                { return "stub-embedder" }
func (s *stubEmbedder) Available(_ context.Context) bool { return true }
func (s *stubEmbedder) Close() error                     { return nil }

// stubScorer scores documents from a table; unknown documents score 0.
type stubScorer struct {
	scores map[string]float64
	err    error
	short  bool
	calls  int
	pairs  []scorer.Pair
}

var _ scorer.Scorer = (*stubScorer)(nil)

func (s *stubScorer) Score(_ context.Context, pairs []scorer.Pair) ([]float64, error) {
	s.calls++
	s.pairs = append(s.pairs, pairs...)
	if s.err != nil {
		return nil, s.err
	}
	out := make([]float64, len(pairs))
	for i, p := range pairs {
		out[i] = s.scores[p.Document]
	}
	if s.short && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (s *stubScorer) ModelName() string { return "stub-scorer" }
func (s *stubScorer) Close() error      { return nil }

// threeDocs builds the three-record fixture: doc2 is most similar to the
// query, then doc1, then doc3; the scorer reverses that order.
func threeDocs() (corpus.Corpus, *stubEmbedder, *stubScorer) {
	c := corpus.Corpus{
		{ID: "doc1", Title: "one"},
		{ID: "doc2", Title: "two"},
		{ID: "doc3", Title: "three"},
	}
	e := &stubEmbedder{
		vectors: map[string][]float32{
			c[0].EmbeddingText(): {0.8, 0.6},
			c[1].EmbeddingText(): {1, 0},
			c[2].EmbeddingText(): {0, 1},
		},
		fallback: []float32{1, 0},
	}
	s := &stubScorer{scores: map[string]float64{
		"title: two":   1,
		"title: one":   2,
		"title: three": 3,
	}}
	return c, e, s
}

// syntheticCorpus builds n records with distinct titles.
func syntheticCorpus(n int) corpus.Corpus {
	c := make(corpus.Corpus, n)
	for i := range c {
		c[i] = corpus.Record{
			ID:    fmt.Sprintf("doc%04d", i),
			Title: fmt.Sprintf("document %d about topic %d", i, i%7),
			Body:  fmt.Sprintf("body text %d with words %d and %d", i, i%11, i%13),
		}
	}
	return c
}

// stepClock advances by step on every call.
type stepClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}

// captureRecorder keeps recorded events.
type captureRecorder struct {
	events []telemetry.SearchEvent
	err    error
}

func (r *captureRecorder) RecordSearch(_ context.Context, ev telemetry.SearchEvent) error {
	r.events = append(r.events, ev)
	return r.err
}
