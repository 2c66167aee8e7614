// Package journal keeps a local SQLite record of apply batches that reached
// the endpoint, so an interrupted import can be rerun without resending them.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/allyourbase/ayb-import/internal/sqlimport"
	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS applied_batches (
	key        TEXT PRIMARY KEY,
	phase      TEXT NOT NULL,
	result     TEXT NOT NULL,
	applied_at TEXT NOT NULL
)`

// Journal is a SQLite-backed sqlimport.ResultStore.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

var _ sqlimport.ResultStore = (*Journal)(nil)

// Open opens or creates the journal database at path.
func Open(ctx context.Context, path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal %s: %w", path, err)
	}
	// One writer; batches are applied sequentially anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing journal %s: %w", path, err)
	}
	return &Journal{db: db, now: time.Now}, nil
}

func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

func (j *Journal) Lookup(ctx context.Context, key string) ([]byte, bool, error) {
	var result string
	err := j.db.QueryRowContext(ctx, `SELECT result FROM applied_batches WHERE key = ?`, key).Scan(&result)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("looking up batch: %w", err)
	}
	return []byte(result), true, nil
}

func (j *Journal) Record(ctx context.Context, key string, phase sqlimport.Phase, result []byte) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO applied_batches (key, phase, result, applied_at) VALUES (?, ?, ?, ?)`,
		key, string(phase), string(result), j.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("recording batch: %w", err)
	}
	return nil
}

// Counts returns the number of recorded batches per phase.
func (j *Journal) Counts(ctx context.Context) (map[sqlimport.Phase]int, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT phase, COUNT(*) FROM applied_batches GROUP BY phase`)
	if err != nil {
		return nil, fmt.Errorf("counting batches: %w", err)
	}
	defer rows.Close()

	counts := map[sqlimport.Phase]int{}
	for rows.Next() {
		var phase string
		var n int
		if err := rows.Scan(&phase, &n); err != nil {
			return nil, fmt.Errorf("scanning batch count: %w", err)
		}
		counts[sqlimport.Phase(phase)] = n
	}
	return counts, rows.Err()
}
