package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Pool exposes the underlying connection pool so other components, like
// the checkpoint store, can share it.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *Store) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			pages TEXT[] NOT NULL DEFAULT '{}',
			page_count INT NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			processed_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS story_characters (
			id UUID PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			variants TEXT[] NOT NULL DEFAULT '{}',
			pages INT[] NOT NULL DEFAULT '{}',
			first_page INT NOT NULL DEFAULT 0,
			traits TEXT[] NOT NULL DEFAULT '{}',
			personality TEXT NOT NULL DEFAULT '',
			profile JSONB,
			speaker_id INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (document_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS dialogue_lines (
			id UUID PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			character_id UUID REFERENCES story_characters(id) ON DELETE CASCADE,
			line_no INT NOT NULL,
			speaker TEXT NOT NULL,
			text TEXT NOT NULL,
			emotion TEXT NOT NULL DEFAULT 'neutral',
			intensity REAL NOT NULL DEFAULT 0.5,
			page INT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_story_characters_document
			ON story_characters (document_id, first_page, name)`,
		`CREATE INDEX IF NOT EXISTS idx_dialogue_lines_document
			ON dialogue_lines (document_id, line_no)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
