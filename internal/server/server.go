// Package server provides the HTTP resource API the notebook client talks to.
package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/varunkrunch/opennotebook/internal/config"
	"github.com/varunkrunch/opennotebook/internal/ingest"
	"github.com/varunkrunch/opennotebook/internal/keyword"
	"github.com/varunkrunch/opennotebook/internal/storage"
)

// Server is the HTTP server for the notebook API.
type Server struct {
	storage   storage.Storage
	index     keyword.SourceIndex
	processor *ingest.Processor
	responder Responder
	config    *config.Config
	logger    *zap.Logger
	router    chi.Router
	server    *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithResponder replaces the assistant used to answer chat messages.
func WithResponder(r Responder) Option {
	return func(s *Server) { s.responder = r }
}

// WithProcessor sets the background source processor. Without one, created
// sources stay pending.
func WithProcessor(p *ingest.Processor) Option {
	return func(s *Server) { s.processor = p }
}

// NewServer creates a server with the given dependencies.
func NewServer(
	store storage.Storage,
	index keyword.SourceIndex,
	cfg *config.Config,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		storage: store,
		index:   index,
		config:  cfg,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.responder == nil {
		s.responder = NewTitleResponder(index)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/notebooks", func(r chi.Router) {
			r.Get("/", s.handleListNotebooks)
			r.Post("/", s.handleCreateNotebook)
			r.Get("/by-name/{name}", s.handleGetNotebookByName)
			r.Get("/by-name/{name}/sources", s.handleListSourcesByName)
			r.Post("/by-name/{name}/sources", s.handleCreateSource)
			r.Get("/by-name/{name}/notes", s.handleListNotes)
			r.Post("/by-name/{name}/notes", s.handleCreateNote)
			r.Get("/{id}", s.handleGetNotebook)
			r.Patch("/{id}", s.handleUpdateNotebook)
			r.Delete("/{id}", s.handleDeleteNotebook)
			r.Post("/{id}/archive", s.handleArchive(true))
			r.Post("/{id}/unarchive", s.handleArchive(false))
			r.Get("/{id}/sources", s.handleListSources)
			r.Post("/{id}/sources", s.handleCreateSource)
			r.Get("/{id}/sources/search", s.handleSearchSources)
			r.Get("/{id}/notes", s.handleListNotes)
			r.Post("/{id}/notes", s.handleCreateNote)
		})
		r.Get("/sources/{id}", s.handleGetSource)
		r.Delete("/sources/{id}", s.handleDeleteSource)

		r.Route("/notes", func(r chi.Router) {
			r.Post("/", s.handleCreateNote)
			r.Get("/by-title/{title}", s.handleGetNote)
			r.Patch("/by-title/{title}", s.handleUpdateNote)
			r.Delete("/by-title/{title}", s.handleDeleteNote)
			r.Get("/{id}", s.handleGetNote)
			r.Patch("/{id}", s.handleUpdateNote)
			r.Delete("/{id}", s.handleDeleteNote)
		})

		r.Post("/chat/message", s.handleSendMessage)
		r.Get("/chat/sessions/{id}", s.handleListChatSessions)
		r.Delete("/chat/sessions/{id}", s.handleDeleteChatSession)
		r.Get("/chat/session/{id}", s.handleGetChatSession)

		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Server.Addr()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// newID returns a record id of the form kind:hex.
func newID(kind string) string {
	return kind + ":" + strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
}
