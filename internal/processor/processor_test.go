package processor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fablecast/dramatis/internal/pipeline"
)

func TestProcessFile_WithoutStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.txt")
	text := `Mira stood at the rail as the harbor lights came on.

"We should have left an hour ago," Mira said, not turning around.`
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	backend := &scriptedBackend{responses: map[string]string{
		"names":    `{"characters": ["Mira"]}`,
		"dialogue": `{"dialogs": [{"speaker": "Mira", "text": "We should have left an hour ago.", "emotion": "worried", "intensity": 0.6}]}`,
		"voice":    `[{"character": "Mira", "traits": ["impatient"], "voice_profile": {"gender": "female", "age": "adult", "pitch": 1.0, "speed": 1.1, "energy": 1.0}}]`,
	}}
	coord := pipeline.New(backend, pipeline.Config{})
	p := New(nil, coord, nil, slog.Default())

	result, err := p.ProcessFile(context.Background(), path, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Stats.Characters != 1 {
		t.Fatalf("expected 1 character, got %d", result.Stats.Characters)
	}
	if result.Characters[0].Name != "Mira" {
		t.Errorf("expected Mira, got %q", result.Characters[0].Name)
	}
	if len(result.Characters[0].Dialogue) != 1 {
		t.Errorf("expected 1 dialogue line, got %d", len(result.Characters[0].Dialogue))
	}
}

func TestProcessDocument_RequiresStore(t *testing.T) {
	p := New(nil, nil, nil, slog.Default())
	_, err := p.ProcessDocument(context.Background(), "doc-1")
	if err == nil || !strings.Contains(err.Error(), "no store configured") {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestHandleDocumentStored_BadPayload(t *testing.T) {
	p := New(nil, nil, nil, slog.Default())

	// Neither payload may panic or reach the pipeline.
	p.HandleDocumentStored("dramatis.document.stored", []byte("not json"))
	p.HandleDocumentStored("dramatis.document.stored", []byte(`{"title": "missing id"}`))
}

// scriptedBackend answers each extraction pass with a canned response.
type scriptedBackend struct {
	responses map[string]string
}

func (s *scriptedBackend) Generate(ctx context.Context, system, user string, maxTokens int, temperature float64) (string, error) {
	switch {
	case strings.Contains(system, "name extraction"):
		return s.responses["names"], nil
	case strings.Contains(system, "dialog extraction"):
		return s.responses["dialogue"], nil
	case strings.Contains(system, "TTS voice casting"):
		return s.responses["voice"], nil
	}
	return "", fmt.Errorf("unexpected system prompt: %s", system)
}
