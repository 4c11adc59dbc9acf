package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fablecast/dramatis/internal/source"
)

// CreateDocument registers a document and its page text for processing.
// Re-registering the same id resets its status so the document can be
// processed again.
func (s *Store) CreateDocument(ctx context.Context, doc source.Document) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO documents (id, title, content_hash, pages, page_count, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
		ON CONFLICT (id) DO UPDATE
		SET title = $2, content_hash = $3, pages = $4, page_count = $5, status = 'pending', processed_at = NULL`,
		doc.ID, doc.Title, doc.Hash, doc.Pages, doc.PageCount(),
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// GetDocumentPages fetches the page text needed to run extraction.
func (s *Store) GetDocumentPages(ctx context.Context, id string) ([]string, error) {
	var pages []string
	err := s.pool.QueryRow(ctx, `
		SELECT pages FROM documents WHERE id = $1`, id).Scan(&pages)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return pages, nil
}

// UpdateDocumentStatus moves a document through pending, processing,
// complete, or failed.
func (s *Store) UpdateDocumentStatus(ctx context.Context, id, status string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE documents SET status = $1 WHERE id = $2`,
		status, id,
	)
	return err
}

// GetDocument fetches one document row.
func (s *Store) GetDocument(ctx context.Context, id string) (*DocumentRow, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, title, content_hash, page_count, status, created_at, processed_at
		FROM documents WHERE id = $1`, id)

	var d DocumentRow
	err := row.Scan(&d.ID, &d.Title, &d.ContentHash, &d.PageCount, &d.Status, &d.CreatedAt, &d.ProcessedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDocuments returns the most recently created documents.
func (s *Store) ListDocuments(ctx context.Context, limit int) ([]DocumentRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, content_hash, page_count, status, created_at, processed_at
		FROM documents ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []DocumentRow
	for rows.Next() {
		var d DocumentRow
		if err := rows.Scan(&d.ID, &d.Title, &d.ContentHash, &d.PageCount, &d.Status, &d.CreatedAt, &d.ProcessedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

type DocumentRow struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	ContentHash string     `json:"content_hash"`
	PageCount   int        `json:"page_count"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}
