package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	rerrors "github.com/Aman-CERP/tinyrerank/internal/errors"
)

// DefaultEndpoint is the default cross-encoder server URL
const DefaultEndpoint = "http://localhost:8080"

// HTTPConfig holds configuration for the HTTP cross-encoder scorer
type HTTPConfig struct {
	// Endpoint is the server URL serving POST /rerank and GET /health
	Endpoint string

	// Model is reported by ModelName and sent as a request header
	Model string

	// BatchSize is the number of pairs per request (default: 16)
	BatchSize int

	// MaxLength caps each document at this many words before sending; the
	// server is also asked to truncate to its model limit (default: 512)
	MaxLength int

	// RawScores requests logits instead of sigmoid-normalized scores
	RawScores bool

	// Timeout is the per-request timeout (default: 30s)
	Timeout time.Duration

	// Retry controls retries of transport failures
	Retry rerrors.RetryConfig

	// SkipHealthCheck skips health check during creation (for testing)
	SkipHealthCheck bool
}

// DefaultHTTPConfig returns default scorer configuration
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Endpoint:  DefaultEndpoint,
		Model:     DefaultModel,
		BatchSize: DefaultBatchSize,
		MaxLength: DefaultMaxLength,
		Timeout:   DefaultTimeout,
		Retry:     rerrors.DefaultRetryConfig(),
	}
}

// HTTPScorer scores pairs with a cross-encoder served over the
// text-embeddings-inference /rerank protocol.
type HTTPScorer struct {
	client *http.Client
	config HTTPConfig

	mu     sync.RWMutex
	closed bool
}

// Verify interface implementation at compile time
var _ Scorer = (*HTTPScorer)(nil)

// NewHTTPScorer creates a scorer client and checks the server's health
// unless skipped.
func NewHTTPScorer(ctx context.Context, cfg HTTPConfig) (*HTTPScorer, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = DefaultMaxLength
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	s := &HTTPScorer{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		config: cfg,
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		if err := s.healthCheck(checkCtx); err != nil {
			return nil, err
		}
	}

	slog.Debug("http_scorer_created",
		slog.String("endpoint", cfg.Endpoint),
		slog.String("model", cfg.Model),
		slog.Int("batch_size", cfg.BatchSize),
		slog.Int("max_length", cfg.MaxLength))

	return s, nil
}

// healthCheck verifies the server answers GET /health
func (s *HTTPScorer) healthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.Endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return rerrors.NetworkError("failed to connect to reranker at "+s.config.Endpoint, err).
			WithSuggestion("start the cross-encoder server or use --scorer static")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return statusError("reranker health", resp.StatusCode, body)
	}
	return nil
}

// rerankRequest is the JSON request to /rerank
type rerankRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	Truncate  bool     `json:"truncate"`
	RawScores bool     `json:"raw_scores"`
}

// rerankResult is one element of the /rerank response array
type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Score sends pairs in BatchSize chunks. Within a chunk, pairs sharing a
// query go in one request.
func (s *HTTPScorer) Score(ctx context.Context, pairs []Pair) ([]float64, error) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("scorer is closed")
	}

	scores := make([]float64, len(pairs))
	started := time.Now()
	requests := 0

	for start := 0; start < len(pairs); start += s.config.BatchSize {
		end := min(start+s.config.BatchSize, len(pairs))

		for _, group := range groupByQuery(pairs[start:end]) {
			texts := make([]string, len(group.indices))
			for j, idx := range group.indices {
				texts[j] = clipWords(pairs[start+idx].Document, s.config.MaxLength)
			}

			got, err := rerrors.RetryWithResult(ctx, s.config.Retry, func() ([]float64, error) {
				return s.rerank(ctx, group.query, texts)
			})
			if err != nil {
				return nil, err
			}
			requests++

			for j, idx := range group.indices {
				scores[start+idx] = got[j]
			}
		}
	}

	slog.Debug("http_scorer_score",
		slog.Int("pairs", len(pairs)),
		slog.Int("requests", requests),
		slog.Duration("duration", time.Since(started)))

	return scores, nil
}

// rerank performs one /rerank request and returns scores in text order.
func (s *HTTPScorer) rerank(ctx context.Context, query string, texts []string) ([]float64, error) {
	body, err := json.Marshal(rerankRequest{
		Query:     query,
		Texts:     texts,
		Truncate:  true,
		RawScores: s.config.RawScores,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, s.config.Endpoint+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Model", s.config.Model)

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, rerrors.NetworkError("rerank request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, statusError("rerank", resp.StatusCode, respBody)
	}

	var results []rerankResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, rerrors.New(rerrors.ErrCodeScoringFailed, "failed to decode rerank response", err)
	}

	scores := make([]float64, len(texts))
	seen := make([]bool, len(texts))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(texts) || seen[r.Index] {
			return nil, rerrors.New(rerrors.ErrCodeScoringFailed,
				fmt.Sprintf("rerank response has unexpected index %d", r.Index), nil)
		}
		seen[r.Index] = true
		scores[r.Index] = r.Score
	}
	if len(results) != len(texts) {
		return nil, rerrors.New(rerrors.ErrCodeScoringFailed,
			fmt.Sprintf("rerank returned %d scores for %d texts", len(results), len(texts)), nil)
	}
	return scores, nil
}

// ModelName returns the model identifier
func (s *HTTPScorer) ModelName() string {
	return s.config.Model
}

// Close releases idle connections
func (s *HTTPScorer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if transport, ok := s.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
	return nil
}

type queryGroup struct {
	query   string
	indices []int
}

// groupByQuery groups pair indices by query, in first-seen query order.
func groupByQuery(pairs []Pair) []queryGroup {
	var groups []queryGroup
	pos := make(map[string]int)
	for i, p := range pairs {
		g, ok := pos[p.Query]
		if !ok {
			g = len(groups)
			pos[p.Query] = g
			groups = append(groups, queryGroup{query: p.Query})
		}
		groups[g].indices = append(groups[g].indices, i)
	}
	return groups
}

// clipWords keeps at most n whitespace-separated words of s.
func clipWords(s string, n int) string {
	count := 0
	inWord := false
	for i, r := range s {
		space := r == ' ' || r == '\n' || r == '\t' || r == '\r'
		if !space && !inWord {
			if count == n {
				return strings.TrimRight(s[:i], " \n\t\r")
			}
			count++
		}
		inWord = !space
	}
	return s
}

// statusError maps a non-200 response to a capability error. Overload and
// gateway statuses are marked retryable.
func statusError(op string, status int, body []byte) *rerrors.RankError {
	msg := fmt.Sprintf("%s failed with status %d: %s", op, status, strings.TrimSpace(string(body)))
	code := rerrors.ErrCodeScoringFailed
	switch status {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		code = rerrors.ErrCodeNetworkUnavailable
	}
	return rerrors.New(code, msg, nil).WithDetail("status", fmt.Sprint(status))
}
