// Package server implements the Taskhive HTTP server: REST API, JWT
// auth, CORS, rate limiting, and request logging.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/taskhive/taskhive/ai"
	"github.com/taskhive/taskhive/config"
	"github.com/taskhive/taskhive/mail"
	"github.com/taskhive/taskhive/pubsub"
	"github.com/taskhive/taskhive/server/api"
	"github.com/taskhive/taskhive/store"
)

// Server is the Taskhive HTTP server.
type Server struct {
	cfg     config.Config
	mux     *http.ServeMux
	httpSrv *http.Server
	logger  *slog.Logger

	store     *store.Client
	tasks     *store.Tasks
	assistant *ai.Service
	mailer    mail.Mailer
	publisher pubsub.Publisher
	handlers  *api.Handlers

	startTime time.Time
	version   string
}

// New creates a new Server with the given config and logger.
func New(cfg config.Config, ver string, logger *slog.Logger) *Server {
	return &Server{
		cfg:       cfg,
		mux:       http.NewServeMux(),
		logger:    logger,
		publisher: pubsub.NopPublisher{},
		mailer:    mail.NopMailer{},
		startTime: time.Now(),
		version:   ver,
	}
}

// SetStore attaches the data store client to the server.
func (s *Server) SetStore(c *store.Client) {
	s.store = c
	s.tasks = store.NewTasks(c)
}

// SetAssistant attaches the AI service.
func (s *Server) SetAssistant(svc *ai.Service) {
	s.assistant = svc
}

// SetMailer attaches a reminder mailer.
func (s *Server) SetMailer(m mail.Mailer) {
	s.mailer = m
}

// SetPublisher attaches a task-event publisher.
func (s *Server) SetPublisher(p pubsub.Publisher) {
	s.publisher = p
}

// Start registers routes and begins listening.
func (s *Server) Start() error {
	s.registerRoutes()

	addr := s.cfg.Server.Addr
	if addr == "" {
		addr = ":8000"
	}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.corsMiddleware(s.logMiddleware(s.rateLimitMiddleware(s.mux))),
		ReadHeaderTimeout: 15 * time.Second,
	}
	s.logger.Info("server listening", slog.String("addr", addr))
	return s.httpSrv.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	h := &api.Handlers{
		Tasks:     s.tasks,
		Store:     s.store,
		Assistant: s.assistant,
		Mailer:    s.mailer,
		Publisher: s.publisher,
		Logger:    s.logger,
		Version:   s.version,
		StartAt:   s.startTime.Unix(),
		PageSize:  s.cfg.Server.DefaultPageSize,
		MaxPage:   s.cfg.Server.MaxPageSize,
	}
	s.handlers = h

	// Public routes (no auth required)
	s.mux.HandleFunc("GET /", h.RootHandler())
	s.mux.HandleFunc("GET /health", h.HealthHandler())
	s.mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	s.mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	s.mux.HandleFunc("POST /api/auth/refresh", s.handleRefresh)

	// Protected API — wrapped in auth middleware
	apiMux := http.NewServeMux()
	h.RegisterRoutes(apiMux)
	apiMux.HandleFunc("GET /api/auth/me", s.handleMe)

	// Admin-only subtree nested inside the protected one
	adminMux := http.NewServeMux()
	h.RegisterAdminRoutes(adminMux)
	apiMux.Handle("/api/admin/", s.adminMiddleware(adminMux))

	s.mux.Handle("/api/", s.authMiddleware(apiMux))
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
