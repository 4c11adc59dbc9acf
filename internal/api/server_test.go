package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHealthEndpoint(t *testing.T) {
	srv := NewServer(8090, nil, nil, nil)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv := NewServer(8090, nil, nil, nil)

	req := httptest.NewRequest("GET", "/api/v1/dramatis/status", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["service"] != "dramatis" {
		t.Errorf("expected service dramatis, got %q", body["service"])
	}
	if body["store"] != "disabled" {
		t.Errorf("expected store disabled, got %q", body["store"])
	}
}

func TestNotFoundEndpoint(t *testing.T) {
	srv := NewServer(8090, nil, nil, nil)

	req := httptest.NewRequest("GET", "/nonexistent", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestCreateDocument_InvalidJSON(t *testing.T) {
	srv := NewServer(8090, nil, nil, nil)

	req := httptest.NewRequest("POST", "/api/v1/documents", strings.NewReader("not json"))
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestCreateDocument_MissingText(t *testing.T) {
	srv := NewServer(8090, nil, nil, nil)

	req := httptest.NewRequest("POST", "/api/v1/documents", strings.NewReader(`{"title": "Empty"}`))
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestCreateDocument_NoStore(t *testing.T) {
	srv := NewServer(8090, nil, nil, nil)

	req := httptest.NewRequest("POST", "/api/v1/documents", strings.NewReader(`{"title": "T", "text": "Some page text."}`))
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestGetDocument_NoStore(t *testing.T) {
	srv := NewServer(8090, nil, nil, nil)

	req := httptest.NewRequest("GET", "/api/v1/documents/doc-1", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}
