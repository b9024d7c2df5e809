package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteBackend is a single-file SQLite-backed Backend (adapted from the
// teacher's graph/store.SQLiteStore: WAL mode for concurrent reads,
// auto-migration on first use, one writer at a time). Intended for
// development, single-process workflows, and demos — see
// SPEC_FULL.md §3.6.
type SQLiteBackend struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewSQLiteBackend opens (creating if necessary) a SQLite database at
// path and migrates its schema.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: opening sqlite %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("snapshot: sqlite pragma %q: %w", pragma, err)
		}
	}

	b := &SQLiteBackend{db: db, path: path}
	if err := b.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

func (b *SQLiteBackend) createTables(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS snapshots (
			run_id TEXT NOT NULL,
			label TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			body TEXT NOT NULL,
			PRIMARY KEY (run_id, label)
		)
	`
	if _, err := b.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("snapshot: creating snapshots table: %w", err)
	}
	if _, err := b.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_snapshots_run_id ON snapshots(run_id)"); err != nil {
		return fmt.Errorf("snapshot: creating run_id index: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Save(ctx context.Context, snap Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("snapshot: marshaling: %w", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err = b.db.ExecContext(ctx,
		`INSERT INTO snapshots (run_id, label, timestamp, body) VALUES (?, ?, ?, ?)
		 ON CONFLICT(run_id, label) DO UPDATE SET timestamp = excluded.timestamp, body = excluded.body`,
		snap.RunID, snap.Label, snap.Timestamp, body)
	if err != nil {
		return fmt.Errorf("snapshot: saving: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Load(ctx context.Context, runID, label string) (Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var body string
	err := b.db.QueryRowContext(ctx,
		`SELECT body FROM snapshots WHERE run_id = ? AND label = ?`, runID, label).Scan(&body)
	if err == sql.ErrNoRows {
		return Snapshot{}, newNotFoundError(runID, label)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: loading: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(body), &snap); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: unmarshaling: %w", err)
	}
	return snap, nil
}

func (b *SQLiteBackend) List(ctx context.Context, runID string) ([]Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rows, err := b.db.QueryContext(ctx,
		`SELECT body FROM snapshots WHERE run_id = ? ORDER BY timestamp ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("snapshot: listing: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("snapshot: scanning: %w", err)
		}
		var snap Snapshot
		if err := json.Unmarshal([]byte(body), &snap); err != nil {
			return nil, fmt.Errorf("snapshot: unmarshaling: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (b *SQLiteBackend) Delete(ctx context.Context, runID, label string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	res, err := b.db.ExecContext(ctx, `DELETE FROM snapshots WHERE run_id = ? AND label = ?`, runID, label)
	if err != nil {
		return fmt.Errorf("snapshot: deleting: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("snapshot: deleting: %w", err)
	}
	if n == 0 {
		return newNotFoundError(runID, label)
	}
	return nil
}

// Close releases the underlying database connection.
func (b *SQLiteBackend) Close() error { return b.db.Close() }
