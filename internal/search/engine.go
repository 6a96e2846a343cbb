package search

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Aman-CERP/tinyrerank/internal/corpus"
	"github.com/Aman-CERP/tinyrerank/internal/telemetry"
)

// Defaults for a search request.
const (
	DefaultNumCandidates = 50
	DefaultNumResults    = 10
)

// Request is one search.
type Request struct {
	Query string

	// Columns are the record fields shown to the reranker, in order.
	// Empty means corpus.DefaultRerankColumns.
	Columns []string

	// NumCandidates is how many records retrieval hands to the reranker.
	NumCandidates int

	// NumResults is how many reranked records are returned.
	NumResults int

	// Explain attaches per-result retrieval and rerank scores.
	Explain bool
}

// Timing holds per-stage wall-clock durations.
type Timing struct {
	Retrieval time.Duration
	Rerank    time.Duration
	Total     time.Duration
}

// RetrievalSeconds returns the retrieval stage duration in seconds.
func (t Timing) RetrievalSeconds() float64 { return t.Retrieval.Seconds() }

// RerankSeconds returns the rerank stage duration in seconds.
func (t Timing) RerankSeconds() float64 { return t.Rerank.Seconds() }

// TotalSeconds returns the end-to-end duration in seconds.
func (t Timing) TotalSeconds() float64 { return t.Total.Seconds() }

type timingJSON struct {
	RetrievalSeconds float64 `json:"retrieval_seconds"`
	RerankSeconds    float64 `json:"rerank_seconds"`
	TotalSeconds     float64 `json:"total_seconds"`
}

// MarshalJSON encodes durations as seconds.
func (t Timing) MarshalJSON() ([]byte, error) {
	return json.Marshal(timingJSON{
		RetrievalSeconds: t.RetrievalSeconds(),
		RerankSeconds:    t.RerankSeconds(),
		TotalSeconds:     t.TotalSeconds(),
	})
}

// UnmarshalJSON decodes the seconds form written by MarshalJSON.
func (t *Timing) UnmarshalJSON(data []byte) error {
	var v timingJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	t.Retrieval = secondsToDuration(v.RetrievalSeconds)
	t.Rerank = secondsToDuration(v.RerankSeconds)
	t.Total = secondsToDuration(v.TotalSeconds)
	return nil
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Explanation shows how a result moved between stages.
type Explanation struct {
	ID            string  `json:"id"`
	RetrievalRank int     `json:"retrieval_rank"`
	Similarity    float32 `json:"similarity"`
	RerankScore   float64 `json:"rerank_score"`
}

// Response is the outcome of a search.
type Response struct {
	Results []corpus.Record `json:"results"`

	// Scores are the rerank scores, parallel to Results.
	Scores []float64 `json:"scores"`

	Timing Timing `json:"timing"`

	// NumCandidates is the number of records actually reranked.
	NumCandidates int `json:"num_candidates"`

	// NumResults is len(Results).
	NumResults int `json:"num_results"`

	// Explain is set when the request asked for it, parallel to Results.
	Explain []Explanation `json:"explain,omitempty"`
}

// IDs returns result ids in rank order.
func (r *Response) IDs() []string {
	ids := make([]string, len(r.Results))
	for i, rec := range r.Results {
		ids[i] = rec.ID
	}
	return ids
}

// Recorder receives one event per successful search.
type Recorder interface {
	RecordSearch(ctx context.Context, ev telemetry.SearchEvent) error
}

// Option configures the engine.
type Option func(*Engine)

// WithRecorder sets a telemetry recorder. Recorder errors are logged and
// never fail a search.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithClock replaces time.Now for stage timing.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// Engine runs retrieval then reranking over one corpus.
type Engine struct {
	corpus    corpus.Corpus
	retriever *Retriever
	reranker  *Reranker
	recorder  Recorder
	now       func() time.Time
}

// NewEngine creates an engine. The retriever must be fitted on c.
func NewEngine(c corpus.Corpus, r *Retriever, rr *Reranker, opts ...Option) *Engine {
	e := &Engine{
		corpus:    c,
		retriever: r,
		reranker:  rr,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Corpus returns the corpus the engine searches.
func (e *Engine) Corpus() corpus.Corpus {
	return e.corpus
}

// Search retrieves NumCandidates records, reranks all of them, and returns
// the first NumResults. Any query text is accepted, including an empty one.
func (e *Engine) Search(ctx context.Context, req Request) (*Response, error) {
	columns := req.Columns
	if len(columns) == 0 {
		columns = corpus.DefaultRerankColumns
	}

	start := e.now()

	hits, err := e.retriever.QueryScored(ctx, req.Query, req.NumCandidates)
	if err != nil {
		return nil, err
	}
	indices := make([]int, len(hits))
	for i, h := range hits {
		indices[i] = h.Index
	}
	candidates, err := e.corpus.Resolve(indices)
	if err != nil {
		return nil, err
	}

	retrievalDone := e.now()

	scored, err := e.reranker.RerankScored(ctx, req.Query, candidates, columns)
	if err != nil {
		return nil, err
	}

	rerankDone := e.now()

	n := min(max(req.NumResults, 0), len(scored))
	resp := &Response{
		Results: make([]corpus.Record, n),
		Scores:  make([]float64, n),
		Timing: Timing{
			Retrieval: retrievalDone.Sub(start),
			Rerank:    rerankDone.Sub(retrievalDone),
			Total:     rerankDone.Sub(start),
		},
		NumCandidates: len(candidates),
		NumResults:    n,
	}
	for i := 0; i < n; i++ {
		resp.Results[i] = scored[i].Record
		resp.Scores[i] = scored[i].Score
	}
	if req.Explain {
		resp.Explain = explain(hits, e.corpus, scored[:n])
	}

	slog.Debug("search_complete",
		slog.String("query", req.Query),
		slog.Int("candidates", resp.NumCandidates),
		slog.Int("results", n),
		slog.Duration("retrieval", resp.Timing.Retrieval),
		slog.Duration("rerank", resp.Timing.Rerank),
		slog.Duration("total", resp.Timing.Total))

	e.record(ctx, req, resp, start)
	return resp, nil
}

func (e *Engine) record(ctx context.Context, req Request, resp *Response, at time.Time) {
	if e.recorder == nil {
		return
	}
	ev := telemetry.SearchEvent{
		Query:          req.Query,
		NumCandidates:  resp.NumCandidates,
		NumResults:     resp.NumResults,
		Retrieval:      resp.Timing.Retrieval,
		Rerank:         resp.Timing.Rerank,
		Total:          resp.Timing.Total,
		RetrieverModel: e.retriever.ModelName(),
		RerankerModel:  e.reranker.ModelName(),
		Timestamp:      at,
	}
	if err := e.recorder.RecordSearch(ctx, ev); err != nil {
		slog.Warn("search_record_failed", slog.String("error", err.Error()))
	}
}

// explain pairs each result with its retrieval rank and similarity.
func explain(hits []Hit, c corpus.Corpus, results []Scored) []Explanation {
	byID := make(map[string]int, len(hits))
	for rank, h := range hits {
		id := c[h.Index].ID
		if _, ok := byID[id]; !ok {
			byID[id] = rank
		}
	}
	out := make([]Explanation, len(results))
	for i, s := range results {
		rank := byID[s.Record.ID]
		out[i] = Explanation{
			ID:            s.Record.ID,
			RetrievalRank: rank + 1,
			Similarity:    hits[rank].Score,
			RerankScore:   s.Score,
		}
	}
	return out
}
