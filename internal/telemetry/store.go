package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// DefaultHistoryLimit caps the rows kept in the search history table.
const DefaultHistoryLimit = 1000

// Store persists search events in a local SQLite database.
type Store struct {
	db    *sql.DB
	path  string
	limit int
}

// OpenStore opens (or creates) the telemetry database at path.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create telemetry directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open telemetry database: %w", err)
	}

	// Single writer to prevent lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, path: path, limit: DefaultHistoryLimit}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	-- One row per completed search (trimmed to the newest N)
	CREATE TABLE IF NOT EXISTS searches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query TEXT NOT NULL,
		num_candidates INTEGER NOT NULL,
		num_results INTEGER NOT NULL,
		retrieval_us INTEGER NOT NULL,
		rerank_us INTEGER NOT NULL,
		total_us INTEGER NOT NULL,
		retriever_model TEXT NOT NULL DEFAULT '',
		reranker_model TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	-- Stage latency histogram (aggregated daily, never trimmed)
	CREATE TABLE IF NOT EXISTS stage_latency_stats (
		date TEXT NOT NULL,
		stage TEXT NOT NULL,
		bucket TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, stage, bucket)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create telemetry schema: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// SaveSearch appends an event to the history and bumps the daily histogram.
func (s *Store) SaveSearch(ctx context.Context, ev SearchEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO searches (query, num_candidates, num_results,
			retrieval_us, rerank_us, total_us,
			retriever_model, reranker_model, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.Query, ev.NumCandidates, ev.NumResults,
		ev.Retrieval.Microseconds(), ev.Rerank.Microseconds(), ev.Total.Microseconds(),
		ev.RetrieverModel, ev.RerankerModel, ev.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("insert search: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO stage_latency_stats (date, stage, bucket, count)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(date, stage, bucket) DO UPDATE SET count = count + 1
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	date := ev.Timestamp.Format("2006-01-02")
	for _, stage := range Stages {
		if _, err := stmt.ExecContext(ctx, date, string(stage), string(LatencyToBucket(ev.Latency(stage)))); err != nil {
			return fmt.Errorf("insert latency count: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM searches
		WHERE id NOT IN (SELECT id FROM searches ORDER BY id DESC LIMIT ?)
	`, s.limit)
	if err != nil {
		return fmt.Errorf("trim search history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// RecentSearches returns up to limit events, newest first.
func (s *Store) RecentSearches(ctx context.Context, limit int) ([]SearchEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT query, num_candidates, num_results, retrieval_us, rerank_us, total_us,
			retriever_model, reranker_model, created_at
		FROM searches
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent searches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []SearchEvent
	for rows.Next() {
		var ev SearchEvent
		var retrieval, rerank, total, created int64
		if err := rows.Scan(&ev.Query, &ev.NumCandidates, &ev.NumResults,
			&retrieval, &rerank, &total,
			&ev.RetrieverModel, &ev.RerankerModel, &created); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		ev.Retrieval = time.Duration(retrieval) * time.Microsecond
		ev.Rerank = time.Duration(rerank) * time.Microsecond
		ev.Total = time.Duration(total) * time.Microsecond
		ev.Timestamp = time.Unix(0, created)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// LatencyCounts returns the stage histogram for dates in [from, to]
// (YYYY-MM-DD, inclusive).
func (s *Store) LatencyCounts(ctx context.Context, from, to string) (Histogram, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stage, bucket, SUM(count)
		FROM stage_latency_stats
		WHERE date >= ? AND date <= ?
		GROUP BY stage, bucket
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query latency counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	h := make(Histogram)
	for rows.Next() {
		var stage, bucket string
		var count int64
		if err := rows.Scan(&stage, &bucket, &count); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		h.add(Stage(stage), LatencyBucket(bucket), count)
	}
	return h, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
