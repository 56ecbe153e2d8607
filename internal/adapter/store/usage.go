// Package store persists an advisory usage ledger: one row per routed call,
// recording which model served it, over which fallback path, and what it
// roughly cost.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"modelrelay/internal/domain"
)

// UsageStore records call outcomes in SQLite.
type UsageStore struct {
	db *sql.DB
}

// NewUsageStore opens (or creates) a SQLite database at dbPath and runs the
// schema migration.
func NewUsageStore(dbPath string) (*UsageStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open usage db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate usage db: %w", err)
	}
	return &UsageStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS calls (
			request_id TEXT NOT NULL,
			agent      TEXT NOT NULL,
			model      TEXT NOT NULL,
			path       TEXT NOT NULL,
			tokens     INTEGER NOT NULL DEFAULT 0,
			cost_usd   REAL NOT NULL DEFAULT 0,
			outcome    TEXT NOT NULL,
			latency_ms INTEGER NOT NULL DEFAULT 0,
			at         TEXT NOT NULL
		)
	`)
	return err
}

// Close closes the underlying database connection.
func (s *UsageStore) Close() error {
	return s.db.Close()
}

// RecordCall appends one ledger row.
func (s *UsageStore) RecordCall(ctx context.Context, rec domain.CallRecord) error {
	at := rec.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO calls (request_id, agent, model, path, tokens, cost_usd, outcome, latency_ms, at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		rec.RequestID, string(rec.Agent), rec.Model, rec.Path,
		rec.Tokens, rec.CostUSD, rec.Outcome, rec.Latency.Milliseconds(),
		at.Format(time.RFC3339Nano),
	)
	return err
}

// Recent returns the most recent n ledger rows, newest first.
func (s *UsageStore) Recent(ctx context.Context, n int) ([]domain.CallRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT request_id, agent, model, path, tokens, cost_usd, outcome, latency_ms, at FROM calls ORDER BY at DESC LIMIT ?", n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []domain.CallRecord
	for rows.Next() {
		var rec domain.CallRecord
		var agent, at string
		var latencyMS int64
		if err := rows.Scan(&rec.RequestID, &agent, &rec.Model, &rec.Path,
			&rec.Tokens, &rec.CostUSD, &rec.Outcome, &latencyMS, &at); err != nil {
			return nil, err
		}
		rec.Agent = domain.AgentType(agent)
		rec.Latency = time.Duration(latencyMS) * time.Millisecond
		if ts, err := time.Parse(time.RFC3339Nano, at); err == nil {
			rec.At = ts
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Totals summarizes the ledger.
type Totals struct {
	Calls     int
	Tokens    int
	CostUSD   float64
	Fallbacks int // calls served by the fallback model or the direct provider
}

// Summarize returns aggregate counters over the whole ledger.
func (s *UsageStore) Summarize(ctx context.Context) (Totals, error) {
	var t Totals
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(tokens), 0),
		       COALESCE(SUM(cost_usd), 0),
		       COALESCE(SUM(CASE WHEN path != 'primary' THEN 1 ELSE 0 END), 0)
		FROM calls`)
	if err := row.Scan(&t.Calls, &t.Tokens, &t.CostUSD, &t.Fallbacks); err != nil {
		return Totals{}, err
	}
	return t, nil
}
