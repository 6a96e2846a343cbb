package search

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/tinyrerank/internal/corpus"
	"github.com/Aman-CERP/tinyrerank/internal/embed"
	rerrors "github.com/Aman-CERP/tinyrerank/internal/errors"
	"github.com/Aman-CERP/tinyrerank/internal/scorer"
)

func newThreeDocEngine(t *testing.T, opts ...Option) (*Engine, *stubScorer) {
	t.Helper()
	c, e, s := threeDocs()
	r := NewRetriever(e)
	require.NoError(t, r.Fit(context.Background(), c))
	return NewEngine(c, r, NewReranker(s), opts...), s
}

func TestEngine_Search_EndToEnd(t *testing.T) {
	// Given: doc2 closest by similarity, scorer reversing retrieval order
	c, e, s := threeDocs()
	r := NewRetriever(e)
	require.NoError(t, r.Fit(context.Background(), c))
	rr := NewReranker(s)
	columns := []string{corpus.ColumnTitle}

	// When: retrieving all three
	idx, err := r.Query(context.Background(), "q", 3)
	require.NoError(t, err)

	// Then: similarity order is doc2, doc1, doc3
	assert.Equal(t, []int{1, 0, 2}, idx)

	// When: reranking that candidate set
	candidates, err := c.Resolve(idx)
	require.NoError(t, err)
	reranked, err := rr.Rerank(context.Background(), "q", candidates, columns)
	require.NoError(t, err)

	// Then: reversed to doc3, doc1, doc2
	assert.Equal(t, []string{"doc3", "doc1", "doc2"}, ids(reranked))

	// When: searching with two results
	resp, err := NewEngine(c, r, rr).Search(context.Background(), Request{
		Query:         "q",
		Columns:       columns,
		NumCandidates: 3,
		NumResults:    2,
	})

	// Then: the prefix doc3, doc1
	require.NoError(t, err)
	assert.Equal(t, []string{"doc3", "doc1"}, resp.IDs())
	assert.Equal(t, []float64{3, 2}, resp.Scores)
	assert.Equal(t, 3, resp.NumCandidates)
	assert.Equal(t, 2, resp.NumResults)
}

func TestEngine_Search_ReranksWholeCandidateSet(t *testing.T) {
	// Given: the best-scored document is last in retrieval order
	engine, s := newThreeDocEngine(t)

	// When: asking for a single result
	resp, err := engine.Search(context.Background(), Request{
		Query:         "q",
		Columns:       []string{corpus.ColumnTitle},
		NumCandidates: 3,
		NumResults:    1,
	})

	// Then: all candidates were scored and the winner is doc3
	require.NoError(t, err)
	assert.Len(t, s.pairs, 3)
	assert.Equal(t, []string{"doc3"}, resp.IDs())
}

func TestEngine_Search_Truncation(t *testing.T) {
	tests := []struct {
		name          string
		numCandidates int
		numResults    int
		want          int
	}{
		{"fewer results than candidates", 3, 2, 2},
		{"more results than candidates", 2, 10, 2},
		{"zero results", 3, 0, 0},
		{"negative results", 3, -1, 0},
		{"zero candidates", 0, 5, 0},
		{"more candidates than corpus", 10, 10, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, _ := newThreeDocEngine(t)

			resp, err := engine.Search(context.Background(), Request{
				Query:         "q",
				Columns:       []string{corpus.ColumnTitle},
				NumCandidates: tt.numCandidates,
				NumResults:    tt.numResults,
			})

			require.NoError(t, err)
			assert.Len(t, resp.Results, tt.want)
			assert.Len(t, resp.Scores, tt.want)
			assert.Equal(t, tt.want, resp.NumResults)
		})
	}
}

func TestEngine_Search_PrefixOfRerankedOrder(t *testing.T) {
	c := syntheticCorpus(100)
	r := NewRetriever(embed.NewStaticEmbedder())
	require.NoError(t, r.Fit(context.Background(), c))
	engine := NewEngine(c, r, NewReranker(scorer.NewStaticScorer(0)))

	full, err := engine.Search(context.Background(), Request{Query: "topic 4", NumCandidates: 30, NumResults: 30})
	require.NoError(t, err)
	short, err := engine.Search(context.Background(), Request{Query: "topic 4", NumCandidates: 30, NumResults: 7})
	require.NoError(t, err)

	assert.Equal(t, full.IDs()[:7], short.IDs())
}

func TestEngine_Search_StageTiming(t *testing.T) {
	// Given: a clock advancing 10ms per reading
	clock := &stepClock{t: time.Unix(1000, 0), step: 10 * time.Millisecond}
	engine, _ := newThreeDocEngine(t, WithClock(clock.Now))

	// When: searching
	resp, err := engine.Search(context.Background(), Request{Query: "q", NumCandidates: 3, NumResults: 3})

	// Then: three clock readings bound the two stages
	require.NoError(t, err)
	assert.Equal(t, 10*time.Millisecond, resp.Timing.Retrieval)
	assert.Equal(t, 10*time.Millisecond, resp.Timing.Rerank)
	assert.Equal(t, 20*time.Millisecond, resp.Timing.Total)
	assert.InDelta(t, 0.02, resp.Timing.TotalSeconds(), 1e-9)
}

func TestTiming_JSON(t *testing.T) {
	timing := Timing{
		Retrieval: 1500 * time.Millisecond,
		Rerank:    250 * time.Millisecond,
		Total:     1750 * time.Millisecond,
	}

	data, err := json.Marshal(timing)
	require.NoError(t, err)
	assert.JSONEq(t, `{"retrieval_seconds":1.5,"rerank_seconds":0.25,"total_seconds":1.75}`, string(data))

	var back Timing
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, timing, back)
}

func TestEngine_Search_BlankQueryIsSearched(t *testing.T) {
	// Given: a fitted engine
	engine, s := newThreeDocEngine(t)

	// When: the query text is blank
	resp, err := engine.Search(context.Background(), Request{Query: "   ", NumCandidates: 3, NumResults: 3})

	// Then: both stages still run over the full candidate set
	require.NoError(t, err)
	assert.Equal(t, 3, resp.NumCandidates)
	assert.Len(t, resp.Results, 3)
	assert.Equal(t, 1, s.calls)
}

func TestEngine_Search_DefaultColumns(t *testing.T) {
	engine, s := newThreeDocEngine(t)

	_, err := engine.Search(context.Background(), Request{Query: "q", NumCandidates: 1, NumResults: 1})

	require.NoError(t, err)
	require.Len(t, s.pairs, 1)
	assert.Equal(t, "title: two", s.pairs[0].Document)
}

func TestEngine_Search_Explain(t *testing.T) {
	engine, _ := newThreeDocEngine(t)

	resp, err := engine.Search(context.Background(), Request{
		Query:         "q",
		Columns:       []string{corpus.ColumnTitle},
		NumCandidates: 3,
		NumResults:    2,
		Explain:       true,
	})

	require.NoError(t, err)
	require.Len(t, resp.Explain, 2)
	assert.Equal(t, "doc3", resp.Explain[0].ID)
	assert.Equal(t, 3, resp.Explain[0].RetrievalRank)
	assert.InDelta(t, 0.0, resp.Explain[0].Similarity, 1e-6)
	assert.Equal(t, 3.0, resp.Explain[0].RerankScore)
	assert.Equal(t, "doc1", resp.Explain[1].ID)
	assert.Equal(t, 2, resp.Explain[1].RetrievalRank)
}

func TestEngine_Search_RecordsEvent(t *testing.T) {
	rec := &captureRecorder{}
	clock := &stepClock{t: time.Unix(1000, 0), step: time.Millisecond}
	engine, _ := newThreeDocEngine(t, WithRecorder(rec), WithClock(clock.Now))

	_, err := engine.Search(context.Background(), Request{Query: "q", NumCandidates: 3, NumResults: 2})

	require.NoError(t, err)
	require.Len(t, rec.events, 1)
	ev := rec.events[0]
	assert.Equal(t, "q", ev.Query)
	assert.Equal(t, 3, ev.NumCandidates)
	assert.Equal(t, 2, ev.NumResults)
	assert.Equal(t, 2*time.Millisecond, ev.Total)
	assert.Equal(t, "stub-embedder", ev.RetrieverModel)
	assert.Equal(t, "stub-scorer", ev.RerankerModel)
	assert.True(t, ev.Timestamp.Equal(time.Unix(1000, 0)))
}

func TestEngine_Search_RecorderFailureIgnored(t *testing.T) {
	rec := &captureRecorder{err: errors.New("disk full")}
	engine, _ := newThreeDocEngine(t, WithRecorder(rec))

	resp, err := engine.Search(context.Background(), Request{Query: "q", NumCandidates: 3, NumResults: 2})

	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)
}

func TestEngine_Search_ScorerFailureFailsSearch(t *testing.T) {
	rec := &captureRecorder{}
	engine, s := newThreeDocEngine(t, WithRecorder(rec))
	boom := rerrors.New(rerrors.ErrCodeScoringFailed, "oom", nil)
	s.err = boom

	resp, err := engine.Search(context.Background(), Request{Query: "q", NumCandidates: 3, NumResults: 2})

	assert.Nil(t, resp)
	assert.Same(t, boom, err)
	assert.Empty(t, rec.events)
}

func TestEngine_Search_NotFitted(t *testing.T) {
	c, e, s := threeDocs()
	engine := NewEngine(c, NewRetriever(e), NewReranker(s))

	_, err := engine.Search(context.Background(), Request{Query: "q", NumCandidates: 3, NumResults: 3})

	assert.ErrorIs(t, err, rerrors.ErrNotFitted)
}
