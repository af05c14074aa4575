package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/basket/shopreply/internal/upstream"
)

// CreateRequest is the caller-facing shape of a new session.
type CreateRequest struct {
	AccountRef      string   `json:"account_ref"`
	IntervalMinutes int      `json:"interval_minutes"`
	CronExpr        string   `json:"cron_expr,omitempty"`
	Channels        []string `json:"channels"`
}

// Service is the composition root consumed by the HTTP layer: a thin
// validated delegation layer over the registry. Constructed once at startup
// and passed by reference; there are no hidden globals.
type Service struct {
	registry    *Registry
	autoRestart bool
	logger      *slog.Logger

	bootOnce sync.Once
	bootErr  error
}

// NewService wraps a registry. autoRestart controls whether sessions last
// seen Running are started again on the first load.
func NewService(registry *Registry, autoRestart bool, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		registry:    registry,
		autoRestart: autoRestart,
		logger:      logger,
	}
}

// Bootstrap loads sessions from the store exactly once per process lifetime,
// no matter how many callers race on first use.
func (s *Service) Bootstrap(ctx context.Context) error {
	s.bootOnce.Do(func() {
		s.bootErr = s.registry.LoadFromStore(ctx, s.autoRestart)
		if s.bootErr != nil {
			s.logger.Error("session load failed", "error", s.bootErr)
		}
	})
	return s.bootErr
}

// CreateSession validates the request and starts a new session.
func (s *Service) CreateSession(ctx context.Context, req CreateRequest) (Snapshot, error) {
	if err := s.Bootstrap(ctx); err != nil {
		return Snapshot{}, err
	}
	if req.AccountRef == "" {
		return Snapshot{}, newError(KindValidation, "account_ref is required")
	}
	if req.IntervalMinutes <= 0 && req.CronExpr == "" {
		return Snapshot{}, newError(KindValidation, "interval_minutes must be positive")
	}
	channels := make([]upstream.ChannelKind, 0, len(req.Channels))
	for _, c := range req.Channels {
		kind := upstream.ChannelKind(c)
		if !kind.Valid() {
			return Snapshot{}, newError(KindValidation, "unknown channel %q", c)
		}
		channels = append(channels, kind)
	}

	id, err := s.registry.Create(ctx, req.AccountRef,
		time.Duration(req.IntervalMinutes)*time.Minute, req.CronExpr, channels)
	if err != nil {
		return Snapshot{}, err
	}
	return s.registry.Get(id)
}

// GetSession returns a session snapshot.
func (s *Service) GetSession(ctx context.Context, id string) (Snapshot, error) {
	if err := s.Bootstrap(ctx); err != nil {
		return Snapshot{}, err
	}
	return s.registry.Get(id)
}

// ListSessions returns all session snapshots.
func (s *Service) ListSessions(ctx context.Context) ([]Snapshot, error) {
	if err := s.Bootstrap(ctx); err != nil {
		return nil, err
	}
	return s.registry.List(), nil
}

// StartSession resumes a stopped session.
func (s *Service) StartSession(ctx context.Context, id string) error {
	if err := s.Bootstrap(ctx); err != nil {
		return err
	}
	return s.registry.Start(ctx, id)
}

// StopSession stops a running session.
func (s *Service) StopSession(ctx context.Context, id string) error {
	if err := s.Bootstrap(ctx); err != nil {
		return err
	}
	return s.registry.Stop(ctx, id)
}

// DeleteSession stops and soft-deletes a session.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	if err := s.Bootstrap(ctx); err != nil {
		return err
	}
	return s.registry.Delete(ctx, id)
}

// Shutdown drains all workers.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.registry.Shutdown(ctx)
}
