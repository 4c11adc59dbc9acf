package events

import (
	"encoding/json"
	"testing"
)

func TestDocumentStoredParsing(t *testing.T) {
	raw := `{
		"document_id": "doc-001",
		"title": "The Long March",
		"pages": 42
	}`

	var event DocumentStored
	err := json.Unmarshal([]byte(raw), &event)
	if err != nil {
		t.Fatalf("failed to parse DocumentStored: %v", err)
	}

	if event.DocumentID != "doc-001" {
		t.Errorf("expected document_id 'doc-001', got '%s'", event.DocumentID)
	}
	if event.Title != "The Long March" {
		t.Errorf("expected title 'The Long March', got '%s'", event.Title)
	}
	if event.Pages != 42 {
		t.Errorf("expected 42 pages, got %d", event.Pages)
	}
}

func TestPipelineCompleteRoundTrip(t *testing.T) {
	event := PipelineComplete{
		DocumentID:     "doc-rt",
		Characters:     7,
		DialogueLines:  120,
		NarrationLines: 35,
		Pages:          42,
	}

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	var parsed PipelineComplete
	err = json.Unmarshal(data, &parsed)
	if err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}

	if parsed != event {
		t.Errorf("round-trip mismatch: got %+v, want %+v", parsed, event)
	}
}

func TestSubjectConstants(t *testing.T) {
	if SubjectDocumentStored != "dramatis.document.stored" {
		t.Errorf("expected SubjectDocumentStored 'dramatis.document.stored', got '%s'", SubjectDocumentStored)
	}
	if SubjectPipelineComplete != "dramatis.pipeline.complete" {
		t.Errorf("expected SubjectPipelineComplete 'dramatis.pipeline.complete', got '%s'", SubjectPipelineComplete)
	}
}
