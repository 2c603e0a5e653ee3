package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/open-format/rewarder/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS processed_rewards (
	key         TEXT PRIMARY KEY,
	status      TEXT NOT NULL CHECK (status IN ('pending', 'completed')),
	record      TEXT,
	created_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
	updated_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
)`

// SQLite implements Store on an embedded database file, for single-node
// deployments that need records to survive restarts without running a
// server. INSERT OR IGNORE gives the same one-winner reservation semantics
// as the Postgres ON CONFLICT path.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database file and runs the schema.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	// A single writer connection sidesteps SQLITE_BUSY under concurrent
	// reservations; the guard serializes per key above this layer anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("store: sqlite pragma: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("store: sqlite schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Reserve(ctx context.Context, key uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO processed_rewards (key, status) VALUES (?, 'pending')`,
		key.String(),
	)
	if err != nil {
		return fmt.Errorf("store: sqlite reserve: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: sqlite reserve: %w", err)
	}
	if n == 0 {
		return ErrAlreadyProcessed
	}
	return nil
}

func (s *SQLite) Finalize(ctx context.Context, key uuid.UUID, rec model.ProcessedReward) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: marshal record: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE processed_rewards
		 SET status = 'completed', record = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		 WHERE key = ? AND status = 'pending'`,
		string(payload), key.String(),
	)
	if err != nil {
		return fmt.Errorf("store: sqlite finalize: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: sqlite finalize: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("store: sqlite finalize: key %s not reserved", key)
	}
	return nil
}

func (s *SQLite) Release(ctx context.Context, key uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM processed_rewards WHERE key = ? AND status = 'pending'`,
		key.String(),
	)
	if err != nil {
		return fmt.Errorf("store: sqlite release: %w", err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, key uuid.UUID) (model.ProcessedReward, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM processed_rewards WHERE key = ? AND status = 'completed'`,
		key.String(),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ProcessedReward{}, ErrNotFound
	}
	if err != nil {
		return model.ProcessedReward{}, fmt.Errorf("store: sqlite get: %w", err)
	}
	var rec model.ProcessedReward
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return model.ProcessedReward{}, fmt.Errorf("store: unmarshal record: %w", err)
	}
	return rec, nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close(context.Context) error {
	return s.db.Close()
}
