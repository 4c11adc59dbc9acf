//go:build integration

package store

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/fablecast/dramatis/internal/character"
	"github.com/fablecast/dramatis/internal/pipeline"
	"github.com/fablecast/dramatis/internal/source"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func TestIntegration_DocumentLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	doc := source.Document{
		ID:    "integration-test-" + uuid.New().String()[:8],
		Title: "Integration Test Story",
		Pages: []string{"page one", "page two"},
	}
	doc.Hash = source.ContentHash(doc.Pages)

	if err := s.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}
	t.Cleanup(func() {
		s.pool.Exec(ctx, "DELETE FROM documents WHERE id = $1", doc.ID)
	})

	row, err := s.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetDocument failed: %v", err)
	}
	if row.Title != "Integration Test Story" {
		t.Errorf("expected title, got %q", row.Title)
	}
	if row.Status != "pending" {
		t.Errorf("expected status pending, got %q", row.Status)
	}
	if row.PageCount != 2 {
		t.Errorf("expected 2 pages, got %d", row.PageCount)
	}

	if err := s.UpdateDocumentStatus(ctx, doc.ID, "processing"); err != nil {
		t.Fatalf("UpdateDocumentStatus failed: %v", err)
	}
	row, err = s.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetDocument after update failed: %v", err)
	}
	if row.Status != "processing" {
		t.Errorf("expected status processing, got %q", row.Status)
	}

	if _, err := s.GetDocument(ctx, "no-such-document"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestIntegration_SaveAndListResult(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	doc := source.Document{
		ID:    "integration-test-" + uuid.New().String()[:8],
		Title: "Result Test Story",
		Pages: []string{"page one"},
	}
	doc.Hash = source.ContentHash(doc.Pages)

	if err := s.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}
	t.Cleanup(func() {
		s.pool.Exec(ctx, "DELETE FROM documents WHERE id = $1", doc.ID)
	})

	result := &pipeline.Result{
		DocumentID: doc.ID,
		Characters: []character.Character{
			{
				Name:     "Jax",
				Variants: []string{"JAX"},
				Pages:    []int{1},
				Dialogue: []character.DialogueLine{
					{Speaker: "Jax", Text: "We move at dawn.", Emotion: "defiant", Intensity: 0.7, Page: 1},
				},
				Traits:      []string{"gravelly voice"},
				Personality: "terse field commander",
				Profile: &character.VoiceProfile{
					Pitch: 0.85, Speed: 0.9, Energy: 0.7,
					Gender: "male", Age: "adult", SpeakerID: 75,
				},
				SpeakerID: 75,
			},
		},
		Narration: []character.DialogueLine{
			{Speaker: "Narrator", Text: "Smoke rolled over the ridge.", Emotion: "neutral", Intensity: 0.3, Page: 1},
		},
	}

	if err := s.SaveResult(ctx, result); err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}

	chars, err := s.ListCharacters(ctx, doc.ID)
	if err != nil {
		t.Fatalf("ListCharacters failed: %v", err)
	}
	if len(chars) != 1 {
		t.Fatalf("expected 1 character, got %d", len(chars))
	}
	if chars[0].Name != "Jax" {
		t.Errorf("expected Jax, got %q", chars[0].Name)
	}
	if chars[0].Profile == nil || chars[0].Profile.Gender != "male" {
		t.Errorf("expected male profile, got %+v", chars[0].Profile)
	}
	if chars[0].SpeakerID != 75 {
		t.Errorf("expected speaker 75, got %d", chars[0].SpeakerID)
	}

	lines, err := s.ListDialogue(ctx, doc.ID)
	if err != nil {
		t.Fatalf("ListDialogue failed: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].CharacterID == nil {
		t.Error("expected dialogue line linked to a character")
	}
	if lines[1].CharacterID != nil {
		t.Error("expected narration line with no character reference")
	}

	// Saving again replaces rather than duplicates
	if err := s.SaveResult(ctx, result); err != nil {
		t.Fatalf("SaveResult (rerun) failed: %v", err)
	}
	lines, err = s.ListDialogue(ctx, doc.ID)
	if err != nil {
		t.Fatalf("ListDialogue after rerun failed: %v", err)
	}
	if len(lines) != 2 {
		t.Errorf("expected rerun to replace rows, got %d lines", len(lines))
	}

	row, err := s.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetDocument failed: %v", err)
	}
	if row.Status != "complete" {
		t.Errorf("expected status complete, got %q", row.Status)
	}
	if row.ProcessedAt == nil {
		t.Error("expected processed_at set")
	}
}
