package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps one JSON file per document under a checkpoint directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the checkpoint directory if needed. A leading ~/ in
// dir expands to the user's home directory.
func NewFileStore(dir string) (*FileStore, error) {
	dir = expandHome(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Save writes the checkpoint as indented JSON, replacing any previous file.
func (s *FileStore) Save(ctx context.Context, cp *Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := os.WriteFile(s.path(cp.DocumentID, cp.Part), data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

// Load reads a checkpoint, returning ErrNotFound when none exists.
func (s *FileStore) Load(ctx context.Context, documentID, part string) (*Checkpoint, error) {
	data, err := os.ReadFile(s.path(documentID, part))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return &cp, nil
}

// Delete removes a checkpoint file, returning ErrNotFound when none exists.
func (s *FileStore) Delete(ctx context.Context, documentID, part string) error {
	if err := os.Remove(s.path(documentID, part)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

func (s *FileStore) path(documentID, part string) string {
	return filepath.Join(s.dir, sanitize(Key(documentID, part))+".json")
}

// sanitize keeps checkpoint keys usable as file names.
func sanitize(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
