package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore keeps checkpoints in Postgres, one row per document key. Useful
// when several service replicas share resumption state.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore ensures the checkpoint table exists and returns the store.
func NewPGStore(ctx context.Context, pool *pgxpool.Pool) (*PGStore, error) {
	s := &PGStore{pool: pool}
	if err := s.init(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PGStore) init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS pipeline_checkpoints (
			key        TEXT PRIMARY KEY,
			payload    JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("create pipeline_checkpoints table: %w", err)
	}
	return nil
}

// Save upserts the checkpoint payload under its document key.
func (s *PGStore) Save(ctx context.Context, cp *Checkpoint) error {
	payload, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO pipeline_checkpoints (key, payload, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()
	`, Key(cp.DocumentID, cp.Part), payload)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// Load reads a checkpoint, returning ErrNotFound when no row exists.
func (s *PGStore) Load(ctx context.Context, documentID, part string) (*Checkpoint, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM pipeline_checkpoints WHERE key = $1`,
		Key(documentID, part),
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(payload, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return &cp, nil
}

// Delete removes a checkpoint row, returning ErrNotFound when none exists.
func (s *PGStore) Delete(ctx context.Context, documentID, part string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM pipeline_checkpoints WHERE key = $1`,
		Key(documentID, part),
	)
	if err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
