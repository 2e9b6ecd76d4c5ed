package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	Pool *pgxpool.Pool
}

func ConnectDB(ctx context.Context, databaseURL string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	cfg.MaxConns = 10
	cfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &DB{Pool: pool}, nil
}

func (db *DB) Close() {
	db.Pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS generation_tasks (
	id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	owner_id       TEXT NOT NULL,
	trace_id       TEXT NOT NULL DEFAULT '',
	source         TEXT NOT NULL,
	prompt         TEXT NOT NULL DEFAULT '',
	image_url      TEXT NOT NULL DEFAULT '',
	image_urls     JSONB,
	refine_from    TEXT NOT NULL DEFAULT '',
	mode           TEXT NOT NULL,
	meshy_task_id  TEXT UNIQUE,
	status         TEXT NOT NULL DEFAULT 'PENDING',
	progress       INT NOT NULL DEFAULT 0,
	thumbnail_url  TEXT NOT NULL DEFAULT '',
	model_urls     JSONB,
	texture_urls   JSONB,
	error_message  TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	started_at     TIMESTAMPTZ,
	finished_at    TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_generation_tasks_owner ON generation_tasks (owner_id);
CREATE INDEX IF NOT EXISTS idx_generation_tasks_status ON generation_tasks (status);

CREATE TABLE IF NOT EXISTS designs (
	id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	task_id        UUID NOT NULL UNIQUE REFERENCES generation_tasks (id),
	owner_id       TEXT NOT NULL,
	thumbnail_url  TEXT NOT NULL DEFAULT '',
	model_urls     JSONB,
	texture_urls   JSONB,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_designs_owner ON designs (owner_id);
`

// Migrate creates the tables the service needs. Statements are idempotent so
// it is safe to run on every startup.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
