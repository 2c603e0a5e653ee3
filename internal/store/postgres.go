package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/open-format/rewarder/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS processed_rewards (
	key          UUID PRIMARY KEY,
	status       TEXT NOT NULL CHECK (status IN ('pending', 'completed')),
	record       JSONB,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Postgres implements Store on a pgx connection pool. Reservation relies on
// INSERT ... ON CONFLICT DO NOTHING: exactly one of any set of concurrent
// inserts for a key reports an affected row.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgres connects a pool, verifies connectivity, and creates the
// processed_rewards table if missing.
func NewPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse postgres DSN: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping pool: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	return &Postgres{pool: pool, logger: logger}, nil
}

// Pool returns the underlying connection pool for use in tests.
func (p *Postgres) Pool() *pgxpool.Pool { return p.pool }

func (p *Postgres) Reserve(ctx context.Context, key uuid.UUID) error {
	tag, err := p.pool.Exec(ctx,
		`INSERT INTO processed_rewards (key, status) VALUES ($1, 'pending')
		 ON CONFLICT DO NOTHING`,
		key,
	)
	if err != nil {
		return fmt.Errorf("store: postgres reserve: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyProcessed
	}
	return nil
}

func (p *Postgres) Finalize(ctx context.Context, key uuid.UUID, rec model.ProcessedReward) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: marshal record: %w", err)
	}
	tag, err := p.pool.Exec(ctx,
		`UPDATE processed_rewards
		 SET status = 'completed', record = $2::jsonb, updated_at = now()
		 WHERE key = $1 AND status = 'pending'`,
		key, payload,
	)
	if err != nil {
		return fmt.Errorf("store: postgres finalize: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store: postgres finalize: key %s not reserved", key)
	}
	return nil
}

func (p *Postgres) Release(ctx context.Context, key uuid.UUID) error {
	_, err := p.pool.Exec(ctx,
		`DELETE FROM processed_rewards WHERE key = $1 AND status = 'pending'`,
		key,
	)
	if err != nil {
		return fmt.Errorf("store: postgres release: %w", err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, key uuid.UUID) (model.ProcessedReward, error) {
	var raw []byte
	err := p.pool.QueryRow(ctx,
		`SELECT record FROM processed_rewards WHERE key = $1 AND status = 'completed'`,
		key,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ProcessedReward{}, ErrNotFound
	}
	if err != nil {
		return model.ProcessedReward{}, fmt.Errorf("store: postgres get: %w", err)
	}
	var rec model.ProcessedReward
	if err := json.Unmarshal(raw, &rec); err != nil {
		return model.ProcessedReward{}, fmt.Errorf("store: unmarshal record: %w", err)
	}
	return rec, nil
}

// CleanupAbandoned removes pending reservations older than ttl. A process
// that crashed between Reserve and Finalize leaves such rows behind; callers
// run this periodically so the affected messages become retryable.
func (p *Postgres) CleanupAbandoned(ctx context.Context, ttl time.Duration) (int64, error) {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM processed_rewards
		 WHERE status = 'pending' AND updated_at < now() - ($1 * interval '1 microsecond')`,
		ttl.Microseconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("store: postgres cleanup: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close(context.Context) error {
	p.pool.Close()
	return nil
}
