// Package gateway is the HTTP control surface: session lifecycle, the audit
// trail and health, served over chi.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/basket/shopreply/internal/persistence"
	"github.com/basket/shopreply/internal/scheduler"
)

// Scheduler is the session lifecycle surface the gateway drives.
type Scheduler interface {
	CreateSession(ctx context.Context, req scheduler.CreateRequest) (scheduler.Snapshot, error)
	GetSession(ctx context.Context, id string) (scheduler.Snapshot, error)
	ListSessions(ctx context.Context) ([]scheduler.Snapshot, error)
	StartSession(ctx context.Context, id string) error
	StopSession(ctx context.Context, id string) error
	DeleteSession(ctx context.Context, id string) error
}

// HistoryStore serves the durable audit trail.
type HistoryStore interface {
	ListOutcomes(ctx context.Context, sessionID string, limit int) ([]persistence.OutcomeRecord, error)
}

// Config holds the gateway's dependencies.
type Config struct {
	Scheduler Scheduler
	History   HistoryStore
	Logger    *slog.Logger
	BindAddr  string
}

// Gateway owns the HTTP server.
type Gateway struct {
	scheduler Scheduler
	history   HistoryStore
	logger    *slog.Logger
	server    *http.Server
}

func New(cfg Config) *Gateway {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		scheduler: cfg.Scheduler,
		history:   cfg.History,
		logger:    logger,
	}
	g.server = &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           g.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g
}

// Router builds the route table. Exposed separately so tests can drive it
// with httptest.
func (g *Gateway) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(g.requestLogger)
	r.Use(limitBody)

	r.Get("/healthz", g.handleHealth)

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", g.handleCreateSession)
		r.Get("/", g.handleListSessions)
		r.Get("/{id}", g.handleGetSession)
		r.Post("/{id}/start", g.handleStartSession)
		r.Post("/{id}/stop", g.handleStopSession)
		r.Delete("/{id}", g.handleDeleteSession)
		r.Get("/{id}/history", g.handleSessionHistory)
		r.Get("/{id}/export", g.handleSessionExport)
	})
	return r
}

// ListenAndServe blocks until the server is shut down or fails.
func (g *Gateway) ListenAndServe() error {
	g.logger.Info("gateway listening", "addr", g.server.Addr)
	err := g.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (g *Gateway) Shutdown(ctx context.Context) error {
	return g.server.Shutdown(ctx)
}
