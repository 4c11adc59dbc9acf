package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fablecast/dramatis/internal/events"
	"github.com/fablecast/dramatis/internal/processor"
	"github.com/fablecast/dramatis/internal/store"
)

type Server struct {
	router *chi.Mux
	port   int
	store  *store.Store
	proc   *processor.Processor
	bus    *events.Client
}

func NewServer(port int, db *store.Store, proc *processor.Processor, bus *events.Client) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		port:   port,
		store:  db,
		proc:   proc,
		bus:    bus,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/dramatis/status", s.status)

	router.Route("/api/v1/documents", func(r chi.Router) {
		r.Post("/", s.createDocument)
		r.Get("/", s.listDocuments)
		r.Get("/{id}", s.getDocument)
		r.Get("/{id}/characters", s.listCharacters)
		r.Get("/{id}/dialogue", s.listDialogue)
	})

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	slog.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	storeState := "disabled"
	if s.store != nil {
		storeState = "connected"
	}
	eventsState := "disabled"
	if s.bus != nil {
		eventsState = "connected"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"service": "dramatis",
		"status":  "ready",
		"store":   storeState,
		"events":  eventsState,
	})
}
