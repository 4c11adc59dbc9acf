package checkpoint

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/fablecast/dramatis/internal/character"
)

// DefaultTTL is how long a saved checkpoint stays resumable.
const DefaultTTL = 24 * time.Hour

// ErrNotFound reports that no checkpoint exists for the requested key.
var ErrNotFound = errors.New("checkpoint not found")

// Stage names the pipeline stage a checkpoint was taken in.
type Stage string

const (
	StageNotStarted Stage = "not_started"
	StageNames      Stage = "names"
	StageDialogue   Stage = "dialogue"
	StageVoice      Stage = "voice"
	StageComplete   Stage = "complete"
)

// Checkpoint is the full resumable state of one pipeline run: everything
// merged so far plus the cursor of the next unit of work. Cursor counts
// batches for the names and dialogue stages and character groups for the
// voice stage.
type Checkpoint struct {
	DocumentID    string                   `json:"document_id"`
	Part          string                   `json:"part,omitempty"`
	ContentHash   string                   `json:"content_hash"`
	Stage         Stage                    `json:"stage"`
	Cursor        int                      `json:"cursor"`
	Characters    []character.Character    `json:"characters,omitempty"`
	Narration     []character.DialogueLine `json:"narration,omitempty"`
	DialogueTotal int                      `json:"dialogue_total"`
	CreatedAt     time.Time                `json:"created_at"`
	UpdatedAt     time.Time                `json:"updated_at"`
}

// Key returns the storage key for this checkpoint.
func (c *Checkpoint) Key() string {
	return Key(c.DocumentID, c.Part)
}

// Key composes the storage key for a document and optional sub-document.
func Key(documentID, part string) string {
	if part == "" {
		return documentID
	}
	return documentID + ":" + part
}

// Store persists checkpoints by document key.
type Store interface {
	Save(ctx context.Context, cp *Checkpoint) error
	Load(ctx context.Context, documentID, part string) (*Checkpoint, error)
	Delete(ctx context.Context, documentID, part string) error
}

// Manager serializes checkpoint access and applies the validity rules: a
// checkpoint only resumes a run when its content hash matches the document
// and it has not expired. Store failures degrade to "no checkpoint".
type Manager struct {
	mu    sync.Mutex
	store Store
	ttl   time.Duration
	log   *slog.Logger
}

// NewManager wraps a store. A zero ttl means DefaultTTL.
func NewManager(store Store, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		store: store,
		ttl:   ttl,
		log:   slog.Default().With("component", "checkpoint"),
	}
}

// Resume returns the saved checkpoint for the document when it is still
// valid for the given content hash, or nil when the run must start fresh.
// Load errors, hash mismatches, and expiry all mean fresh.
func (m *Manager) Resume(ctx context.Context, documentID, part, contentHash string) *Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, err := m.store.Load(ctx, documentID, part)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			m.log.Warn("checkpoint unreadable, starting fresh", "document_id", documentID, "error", err)
		}
		return nil
	}

	if cp.ContentHash != contentHash {
		m.log.Info("checkpoint content hash mismatch, discarding", "document_id", documentID)
		m.discard(ctx, documentID, part)
		return nil
	}
	if age := time.Since(cp.UpdatedAt); age > m.ttl {
		m.log.Info("checkpoint expired, discarding", "document_id", documentID, "age", age.Round(time.Minute))
		m.discard(ctx, documentID, part)
		return nil
	}
	return cp
}

// Save stamps timestamps and persists the checkpoint.
func (m *Manager) Save(ctx context.Context, cp *Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	return m.store.Save(ctx, cp)
}

// Clear removes the checkpoint after a completed run. A missing checkpoint
// is not an error.
func (m *Manager) Clear(ctx context.Context, documentID, part string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Delete(ctx, documentID, part); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

func (m *Manager) discard(ctx context.Context, documentID, part string) {
	if err := m.store.Delete(ctx, documentID, part); err != nil && !errors.Is(err, ErrNotFound) {
		m.log.Warn("stale checkpoint not deleted", "document_id", documentID, "error", err)
	}
}
