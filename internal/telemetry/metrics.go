// Package telemetry records per-stage search latency and a local search
// history. All data stays on the machine; nothing is reported externally.
package telemetry

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// =============================================================================
// Stages and Latency Buckets
// =============================================================================

// Stage names a timed part of the search pipeline.
type Stage string

const (
	StageRetrieval Stage = "retrieval"
	StageRerank    Stage = "rerank"
	StageTotal     Stage = "total"
)

// Stages lists stages in display order.
var Stages = []Stage{StageRetrieval, StageRerank, StageTotal}

// LatencyBucket represents a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// Buckets lists buckets from fastest to slowest.
var Buckets = []LatencyBucket{BucketP10, BucketP50, BucketP100, BucketP500, BucketP1000}

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// Histogram counts searches per stage and bucket.
type Histogram map[Stage]map[LatencyBucket]int64

func (h Histogram) add(stage Stage, bucket LatencyBucket, n int64) {
	if h[stage] == nil {
		h[stage] = make(map[LatencyBucket]int64)
	}
	h[stage][bucket] += n
}

// =============================================================================
// Search Event
// =============================================================================

// SearchEvent describes one completed search.
type SearchEvent struct {
	Query          string        `json:"query"`
	NumCandidates  int           `json:"num_candidates"`
	NumResults     int           `json:"num_results"`
	Retrieval      time.Duration `json:"retrieval"`
	Rerank         time.Duration `json:"rerank"`
	Total          time.Duration `json:"total"`
	RetrieverModel string        `json:"retriever_model,omitempty"`
	RerankerModel  string        `json:"reranker_model,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
}

// Latency returns the duration recorded for a stage.
func (e SearchEvent) Latency(stage Stage) time.Duration {
	switch stage {
	case StageRetrieval:
		return e.Retrieval
	case StageRerank:
		return e.Rerank
	default:
		return e.Total
	}
}

// =============================================================================
// Circular Buffer
// =============================================================================

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	items    []T
	head     int // Next write position
	size     int
	capacity int
	mu       sync.RWMutex
}

// NewCircularBuffer creates a new circular buffer with the given capacity.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add adds an item to the buffer. If full, the oldest item is evicted.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns all items oldest first.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]T, b.size)
	if b.size < b.capacity {
		copy(result, b.items[:b.size])
	} else {
		copy(result, b.items[b.head:])
		copy(result[b.capacity-b.head:], b.items[:b.head])
	}
	return result
}

// Size returns the current number of items in the buffer.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// =============================================================================
// Term Extraction
// =============================================================================

// ExtractTerms lowercases the query and keeps words of three or more bytes.
func ExtractTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// TermCount represents a term and its frequency count.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// =============================================================================
// Metrics
// =============================================================================

// Snapshot is an immutable copy of collected metrics.
type Snapshot struct {
	Searches  int64         `json:"searches"`
	Latency   Histogram     `json:"latency"`
	MeanTotal time.Duration `json:"mean_total"`
	TopTerms  []TermCount   `json:"top_terms"`
	Recent    []SearchEvent `json:"recent"`
	Since     time.Time     `json:"since"`
}

// Config configures the metrics collector.
type Config struct {
	TopTermsCapacity int // Max terms to track (default: 100)
	RecentCapacity   int // Searches kept in memory (default: 20)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{TopTermsCapacity: 100, RecentCapacity: 20}
}

// Metrics aggregates search events in memory and, when a store is set,
// appends each event to the persistent search history.
// Thread-safe for concurrent access.
type Metrics struct {
	mu sync.Mutex

	latency   Histogram
	searches  int64
	totalSum  time.Duration
	topTerms  *lru.Cache[string, int64]
	recent    *CircularBuffer[SearchEvent]
	startTime time.Time
	store     *Store
	closed    bool
}

// NewMetrics creates a collector. store may be nil for in-memory only.
func NewMetrics(store *Store, cfg Config) *Metrics {
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = 100
	}
	if cfg.RecentCapacity <= 0 {
		cfg.RecentCapacity = 20
	}
	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)

	return &Metrics{
		latency:   make(Histogram),
		topTerms:  topTerms,
		recent:    NewCircularBuffer[SearchEvent](cfg.RecentCapacity),
		startTime: time.Now(),
		store:     store,
	}
}

// RecordSearch captures one search. Store failures are returned after the
// in-memory aggregates have been updated.
func (m *Metrics) RecordSearch(ctx context.Context, ev SearchEvent) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	m.searches++
	m.totalSum += ev.Total
	for _, stage := range Stages {
		m.latency.add(stage, LatencyToBucket(ev.Latency(stage)), 1)
	}
	for _, term := range ExtractTerms(ev.Query) {
		count, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, count+1)
	}
	m.recent.Add(ev)
	store := m.store
	m.mu.Unlock()

	if store == nil {
		return nil
	}
	return store.SaveSearch(ctx, ev)
}

// Snapshot returns current metrics for reporting.
func (m *Metrics) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	latency := make(Histogram)
	for stage, buckets := range m.latency {
		for b, n := range buckets {
			latency.add(stage, b, n)
		}
	}

	var topTerms []TermCount
	for _, key := range m.topTerms.Keys() {
		if count, ok := m.topTerms.Peek(key); ok {
			topTerms = append(topTerms, TermCount{Term: key, Count: count})
		}
	}
	slices.SortStableFunc(topTerms, func(a, b TermCount) int {
		return cmp.Compare(b.Count, a.Count)
	})

	var mean time.Duration
	if m.searches > 0 {
		mean = m.totalSum / time.Duration(m.searches)
	}

	return &Snapshot{
		Searches:  m.searches,
		Latency:   latency,
		MeanTotal: mean,
		TopTerms:  topTerms,
		Recent:    m.recent.Items(),
		Since:     m.startTime,
	}
}

// Close stops recording and closes the store, if any.
func (m *Metrics) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.store != nil {
		slog.Debug("telemetry_closed", slog.Int64("searches", m.searches))
		return m.store.Close()
	}
	return nil
}
