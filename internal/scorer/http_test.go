package scorer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "github.com/Aman-CERP/tinyrerank/internal/errors"
)

// rerankServer fakes a /rerank endpoint. Each text scores len(text) and
// results come back in reverse index order.
type rerankServer struct {
	mu       sync.Mutex
	requests []rerankRequest
	status   atomic.Int32
	mangle   atomic.Bool
}

func newRerankServer(t *testing.T) (*rerankServer, *httptest.Server) {
	t.Helper()
	rs := &rerankServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/rerank", func(w http.ResponseWriter, r *http.Request) {
		var req rerankRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		rs.mu.Lock()
		rs.requests = append(rs.requests, req)
		rs.mu.Unlock()

		if s := rs.status.Load(); s != 0 {
			w.WriteHeader(int(s))
			_, _ = w.Write([]byte("input too long"))
			return
		}

		results := make([]rerankResult, 0, len(req.Texts))
		for i := len(req.Texts) - 1; i >= 0; i-- {
			results = append(results, rerankResult{Index: i, Score: float64(len(req.Texts[i]))})
		}
		if rs.mangle.Load() && len(results) > 0 {
			results[0].Index = len(req.Texts) + 5
		}
		_ = json.NewEncoder(w).Encode(results)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return rs, srv
}

func testHTTPConfig(url string) HTTPConfig {
	cfg := DefaultHTTPConfig()
	cfg.Endpoint = url
	cfg.Retry = rerrors.NoRetry()
	return cfg
}

func TestHTTPScorer_Score_OrdersByIndex(t *testing.T) {
	// Given: a server answering in reverse order
	rs, srv := newRerankServer(t)
	s, err := NewHTTPScorer(context.Background(), testHTTPConfig(srv.URL))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	// When: scoring three pairs for one query
	scores, err := s.Score(context.Background(), []Pair{
		{Query: "q", Document: "a"},
		{Query: "q", Document: "bbb"},
		{Query: "q", Document: "cc"},
	})

	// Then: scores line up with the input pairs in a single request
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 3, 2}, scores)
	require.Len(t, rs.requests, 1)
	assert.Equal(t, "q", rs.requests[0].Query)
	assert.True(t, rs.requests[0].Truncate)
	assert.False(t, rs.requests[0].RawScores)
}

func TestHTTPScorer_Score_Batches(t *testing.T) {
	// Given: batch size 2 and five pairs
	rs, srv := newRerankServer(t)
	cfg := testHTTPConfig(srv.URL)
	cfg.BatchSize = 2
	s, err := NewHTTPScorer(context.Background(), cfg)
	require.NoError(t, err)

	pairs := make([]Pair, 5)
	for i := range pairs {
		pairs[i] = Pair{Query: "q", Document: strings.Repeat("x", i+1)}
	}

	// When: scoring
	scores, err := s.Score(context.Background(), pairs)

	// Then: three requests of 2, 2 and 1 texts
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4, 5}, scores)
	require.Len(t, rs.requests, 3)
	assert.Len(t, rs.requests[0].Texts, 2)
	assert.Len(t, rs.requests[1].Texts, 2)
	assert.Len(t, rs.requests[2].Texts, 1)
}

func TestHTTPScorer_Score_GroupsByQuery(t *testing.T) {
	rs, srv := newRerankServer(t)
	s, err := NewHTTPScorer(context.Background(), testHTTPConfig(srv.URL))
	require.NoError(t, err)

	scores, err := s.Score(context.Background(), []Pair{
		{Query: "q1", Document: "a"},
		{Query: "q2", Document: "bb"},
		{Query: "q1", Document: "ccc"},
	})

	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, scores)
	require.Len(t, rs.requests, 2)
	assert.Equal(t, "q1", rs.requests[0].Query)
	assert.Equal(t, []string{"a", "ccc"}, rs.requests[0].Texts)
	assert.Equal(t, "q2", rs.requests[1].Query)
}

func TestHTTPScorer_Score_ClipsLongDocuments(t *testing.T) {
	rs, srv := newRerankServer(t)
	cfg := testHTTPConfig(srv.URL)
	cfg.MaxLength = 3
	s, err := NewHTTPScorer(context.Background(), cfg)
	require.NoError(t, err)

	_, err = s.Score(context.Background(), []Pair{{Query: "q", Document: "one two  three four five"}})

	require.NoError(t, err)
	assert.Equal(t, "one two  three", rs.requests[0].Texts[0])
}

func TestHTTPScorer_Score_ServerRejects(t *testing.T) {
	// Given: a server rejecting the request
	rs, srv := newRerankServer(t)
	rs.status.Store(http.StatusRequestEntityTooLarge)
	s, err := NewHTTPScorer(context.Background(), testHTTPConfig(srv.URL))
	require.NoError(t, err)

	// When: scoring
	_, err = s.Score(context.Background(), []Pair{{Query: "q", Document: "d"}})

	// Then: a scoring capability error surfaces
	require.Error(t, err)
	assert.ErrorIs(t, err, rerrors.ErrScoringFailed)
	assert.Contains(t, err.Error(), "input too long")
}

func TestHTTPScorer_Score_RetriesUnavailable(t *testing.T) {
	rs, srv := newRerankServer(t)
	rs.status.Store(http.StatusServiceUnavailable)
	cfg := testHTTPConfig(srv.URL)
	cfg.Retry = rerrors.RetryConfig{MaxRetries: 2, Multiplier: 1}
	s, err := NewHTTPScorer(context.Background(), cfg)
	require.NoError(t, err)

	_, err = s.Score(context.Background(), []Pair{{Query: "q", Document: "d"}})

	require.Error(t, err)
	assert.Len(t, rs.requests, 3)
}

func TestHTTPScorer_Score_BadIndex(t *testing.T) {
	rs, srv := newRerankServer(t)
	rs.mangle.Store(true)
	s, err := NewHTTPScorer(context.Background(), testHTTPConfig(srv.URL))
	require.NoError(t, err)

	_, err = s.Score(context.Background(), []Pair{{Query: "q", Document: "a"}, {Query: "q", Document: "b"}})

	assert.ErrorIs(t, err, rerrors.ErrScoringFailed)
}

func TestHTTPScorer_New_Unreachable(t *testing.T) {
	_, srv := newRerankServer(t)
	url := srv.URL
	srv.Close()

	_, err := NewHTTPScorer(context.Background(), testHTTPConfig(url))

	require.Error(t, err)
	assert.Equal(t, rerrors.ErrCodeNetworkUnavailable, rerrors.GetCode(err))
}

func TestHTTPScorer_Close(t *testing.T) {
	_, srv := newRerankServer(t)
	s, err := NewHTTPScorer(context.Background(), testHTTPConfig(srv.URL))
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Score(context.Background(), []Pair{{Query: "q", Document: "d"}})
	assert.Error(t, err)
}

func TestClipWords(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"a b c", 5, "a b c"},
		{"a b c", 2, "a b"},
		{"  a\nb\tc d", 3, "  a\nb\tc"},
		{"", 3, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, clipWords(tt.in, tt.n), "clipWords(%q, %d)", tt.in, tt.n)
	}
}
