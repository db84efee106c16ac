package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the Postgres persistence layer. All methods are safe for
// concurrent use; row-not-found surfaces as pgx.ErrNoRows so callers can
// map it to their own sentinels.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool, verifies the connection, and applies the schema.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id           text PRIMARY KEY,
	email        text NOT NULL UNIQUE,
	password     text NOT NULL,
	display_name text NOT NULL,
	created_at   timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS projects (
	id         text PRIMARY KEY,
	name       text NOT NULL,
	owner_id   text NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS project_members (
	project_id text NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	user_id    text NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	role       text NOT NULL,
	PRIMARY KEY (project_id, user_id)
);

CREATE TABLE IF NOT EXISTS boards (
	id         text PRIMARY KEY,
	project_id text NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	name       text NOT NULL,
	created_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS board_snapshots (
	id         text PRIMARY KEY,
	board_id   text NOT NULL REFERENCES boards(id) ON DELETE CASCADE,
	server_seq bigint NOT NULL,
	data       jsonb NOT NULL,
	created_at timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS board_snapshots_board_seq
	ON board_snapshots (board_id, server_seq DESC);

CREATE TABLE IF NOT EXISTS client_states (
	user_id    text NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	board_id   text NOT NULL REFERENCES boards(id) ON DELETE CASCADE,
	data       jsonb NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, board_id)
);

CREATE TABLE IF NOT EXISTS assets (
	id          text PRIMARY KEY,
	project_id  text NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	uploader_id text NOT NULL,
	kind        text NOT NULL,
	mime_type   text NOT NULL,
	size_bytes  bigint NOT NULL,
	path        text NOT NULL,
	created_at  timestamptz NOT NULL DEFAULT now()
);
`

// Migrate applies the schema. Statements are idempotent, so running it on
// every start is safe.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
