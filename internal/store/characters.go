package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/fablecast/dramatis/internal/character"
	"github.com/fablecast/dramatis/internal/pipeline"
)

// SaveResult writes a pipeline result across the character and dialogue
// tables, replacing any rows from an earlier run of the same document.
func (s *Store) SaveResult(ctx context.Context, result *pipeline.Result) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// 1. Clear rows from any previous run
	if _, err := tx.Exec(ctx, `
		DELETE FROM dialogue_lines WHERE document_id = $1`, result.DocumentID); err != nil {
		return fmt.Errorf("clear dialogue: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		DELETE FROM story_characters WHERE document_id = $1`, result.DocumentID); err != nil {
		return fmt.Errorf("clear characters: %w", err)
	}

	// 2. Insert characters
	lineNo := 0
	for _, ch := range result.Characters {
		charID := uuid.New()
		var profile []byte
		if ch.Profile != nil {
			profile, err = json.Marshal(ch.Profile)
			if err != nil {
				return fmt.Errorf("marshal profile: %w", err)
			}
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO story_characters (id, document_id, name, variants, pages, first_page, traits, personality, profile, speaker_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			charID, result.DocumentID, ch.Name, ch.Variants, ch.Pages, ch.FirstPage(), ch.Traits, ch.Personality, profile, ch.SpeakerID,
		)
		if err != nil {
			return fmt.Errorf("insert character %s: %w", ch.Name, err)
		}

		// 3. Insert the character's dialogue
		for _, line := range ch.Dialogue {
			lineNo++
			_, err = tx.Exec(ctx, `
				INSERT INTO dialogue_lines (id, document_id, character_id, line_no, speaker, text, emotion, intensity, page)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				uuid.New(), result.DocumentID, charID, lineNo, line.Speaker, line.Text, line.Emotion, line.Intensity, line.Page,
			)
			if err != nil {
				return fmt.Errorf("insert dialogue: %w", err)
			}
		}
	}

	// 4. Insert narration with no character reference
	for _, line := range result.Narration {
		lineNo++
		_, err = tx.Exec(ctx, `
			INSERT INTO dialogue_lines (id, document_id, character_id, line_no, speaker, text, emotion, intensity, page)
			VALUES ($1, $2, NULL, $3, $4, $5, $6, $7, $8)`,
			uuid.New(), result.DocumentID, lineNo, line.Speaker, line.Text, line.Emotion, line.Intensity, line.Page,
		)
		if err != nil {
			return fmt.Errorf("insert narration: %w", err)
		}
	}

	// 5. Mark the document processed
	_, err = tx.Exec(ctx, `
		UPDATE documents SET status = 'complete', processed_at = now() WHERE id = $1`,
		result.DocumentID,
	)
	if err != nil {
		return fmt.Errorf("mark complete: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListCharacters fetches a document's cast in order of first appearance.
func (s *Store) ListCharacters(ctx context.Context, documentID string) ([]CharacterRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, name, variants, pages, traits, personality, profile, speaker_id
		FROM story_characters WHERE document_id = $1
		ORDER BY first_page, name`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chars []CharacterRow
	for rows.Next() {
		var c CharacterRow
		var profile []byte
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Name, &c.Variants, &c.Pages, &c.Traits, &c.Personality, &profile, &c.SpeakerID); err != nil {
			return nil, err
		}
		if len(profile) > 0 {
			var p character.VoiceProfile
			if err := json.Unmarshal(profile, &p); err != nil {
				return nil, fmt.Errorf("unmarshal profile: %w", err)
			}
			c.Profile = &p
		}
		chars = append(chars, c)
	}
	return chars, rows.Err()
}

// ListDialogue fetches a document's dialogue and narration in stored order.
// Narration rows carry no character reference.
func (s *Store) ListDialogue(ctx context.Context, documentID string) ([]DialogueRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, character_id, line_no, speaker, text, emotion, intensity, page
		FROM dialogue_lines WHERE document_id = $1
		ORDER BY line_no`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []DialogueRow
	for rows.Next() {
		var l DialogueRow
		if err := rows.Scan(&l.ID, &l.CharacterID, &l.LineNo, &l.Speaker, &l.Text, &l.Emotion, &l.Intensity, &l.Page); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

type CharacterRow struct {
	ID          uuid.UUID               `json:"id"`
	DocumentID  string                  `json:"document_id"`
	Name        string                  `json:"name"`
	Variants    []string                `json:"variants"`
	Pages       []int                   `json:"pages"`
	Traits      []string                `json:"traits"`
	Personality string                  `json:"personality,omitempty"`
	Profile     *character.VoiceProfile `json:"profile,omitempty"`
	SpeakerID   int                     `json:"speaker_id"`
}

type DialogueRow struct {
	ID          uuid.UUID  `json:"id"`
	CharacterID *uuid.UUID `json:"character_id,omitempty"`
	LineNo      int        `json:"line_no"`
	Speaker     string     `json:"speaker"`
	Text        string     `json:"text"`
	Emotion     string     `json:"emotion"`
	Intensity   float64    `json:"intensity"`
	Page        int        `json:"page"`
}
