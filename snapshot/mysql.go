package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLBackend is a MySQL/MariaDB-backed Backend over a pooled
// connection; each Save is a single upsert statement. It is intended for
// production workflows that need durability across process restarts
// (SPEC_FULL.md §3.6).
type MySQLBackend struct {
	db *sql.DB
}

// NewMySQLBackend opens a MySQL connection pool against dsn and
// migrates its schema. dsn uses the go-sql-driver/mysql format, e.g.
// "user:pass@tcp(host:3306)/dbname".
func NewMySQLBackend(dsn string) (*MySQLBackend, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("snapshot: opening mysql: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("snapshot: pinging mysql: %w", err)
	}

	b := &MySQLBackend{db: db}
	if err := b.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

func (b *MySQLBackend) createTables(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS snapshots (
			run_id VARCHAR(255) NOT NULL,
			label VARCHAR(255) NOT NULL,
			timestamp BIGINT NOT NULL,
			body LONGTEXT NOT NULL,
			PRIMARY KEY (run_id, label),
			INDEX idx_snapshots_run_id (run_id)
		) ENGINE=InnoDB
	`
	if _, err := b.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("snapshot: creating snapshots table: %w", err)
	}
	return nil
}

func (b *MySQLBackend) Save(ctx context.Context, snap Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("snapshot: marshaling: %w", err)
	}
	_, err = b.db.ExecContext(ctx,
		`INSERT INTO snapshots (run_id, label, timestamp, body) VALUES (?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE timestamp = VALUES(timestamp), body = VALUES(body)`,
		snap.RunID, snap.Label, snap.Timestamp, body)
	if err != nil {
		return fmt.Errorf("snapshot: saving: %w", err)
	}
	return nil
}

func (b *MySQLBackend) Load(ctx context.Context, runID, label string) (Snapshot, error) {
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

func (b *MySQLBackend) List(ctx context.Context, runID string) ([]Snapshot, error) {
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

func (b *MySQLBackend) Delete(ctx context.Context, runID, label string) error {
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

// Close releases the underlying connection pool.
func (b *MySQLBackend) Close() error { return b.db.Close() }
