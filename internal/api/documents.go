package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fablecast/dramatis/internal/events"
	"github.com/fablecast/dramatis/internal/source"
	"github.com/fablecast/dramatis/internal/store"
)

// CreateDocumentRequest is the payload for registering a document.
type CreateDocumentRequest struct {
	Title    string `json:"title"`
	Text     string `json:"text"`
	PageSize int    `json:"page_size,omitempty"`
}

// CreateDocumentResponse acknowledges a registered document.
type CreateDocumentResponse struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	Pages      int    `json:"pages"`
	Status     string `json:"status"`
}

// createDocument handles POST /api/v1/documents. The document is registered
// and queued; extraction runs asynchronously.
func (s *Server) createDocument(w http.ResponseWriter, r *http.Request) {
	var req CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"invalid JSON: %v"}`, err), http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		http.Error(w, `{"error":"text is required"}`, http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		req.Title = "untitled"
	}
	if s.store == nil {
		http.Error(w, `{"error":"no store configured"}`, http.StatusServiceUnavailable)
		return
	}

	doc := source.NewDocument(req.Title, req.Text, req.PageSize)
	if err := s.store.CreateDocument(r.Context(), doc); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"register document: %v"}`, err), http.StatusInternalServerError)
		return
	}

	if s.bus != nil {
		if err := s.bus.Publish(events.SubjectDocumentStored, events.DocumentStored{
			DocumentID: doc.ID,
			Title:      doc.Title,
			Pages:      doc.PageCount(),
		}); err != nil {
			slog.Error("failed to publish document stored", "document_id", doc.ID, "error", err)
		}
	} else if s.proc != nil {
		// No event bus to carry the trigger, so run extraction directly.
		go func() {
			if _, err := s.proc.ProcessDocument(context.Background(), doc.ID); err != nil {
				slog.Error("document processing failed", "document_id", doc.ID, "error", err)
			}
		}()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(CreateDocumentResponse{
		DocumentID: doc.ID,
		Title:      doc.Title,
		Pages:      doc.PageCount(),
		Status:     "pending",
	})
}

// listDocuments handles GET /api/v1/documents.
func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, `{"error":"no store configured"}`, http.StatusServiceUnavailable)
		return
	}

	docs, err := s.store.ListDocuments(r.Context(), 50)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"list documents: %v"}`, err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"documents": docs,
		"count":     len(docs),
	})
}

// getDocument handles GET /api/v1/documents/{id}.
func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, `{"error":"no store configured"}`, http.StatusServiceUnavailable)
		return
	}

	id := chi.URLParam(r, "id")
	doc, err := s.store.GetDocument(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, `{"error":"document not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"get document: %v"}`, err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(doc)
}

// listCharacters handles GET /api/v1/documents/{id}/characters.
func (s *Server) listCharacters(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, `{"error":"no store configured"}`, http.StatusServiceUnavailable)
		return
	}

	id := chi.URLParam(r, "id")
	chars, err := s.store.ListCharacters(r.Context(), id)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"list characters: %v"}`, err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"document_id": id,
		"characters":  chars,
		"count":       len(chars),
	})
}

// listDialogue handles GET /api/v1/documents/{id}/dialogue.
func (s *Server) listDialogue(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, `{"error":"no store configured"}`, http.StatusServiceUnavailable)
		return
	}

	id := chi.URLParam(r, "id")
	lines, err := s.store.ListDialogue(r.Context(), id)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"list dialogue: %v"}`, err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"document_id": id,
		"dialogue":    lines,
		"count":       len(lines),
	})
}
