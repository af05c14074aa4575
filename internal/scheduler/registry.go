package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/basket/shopreply/internal/accounts"
	"github.com/basket/shopreply/internal/bus"
	obs "github.com/basket/shopreply/internal/otel"
	"github.com/basket/shopreply/internal/persistence"
	"github.com/basket/shopreply/internal/pipeline"
	"github.com/basket/shopreply/internal/upstream"
)

const defaultLookback = 24 * time.Hour

// Store is the durable side of the registry. Satisfied by
// *persistence.Store.
type Store interface {
	SaveSession(ctx context.Context, rec persistence.SessionRecord) error
	LoadActiveSessions(ctx context.Context) ([]persistence.SessionRecord, error)
	MarkSessionInactive(ctx context.Context, sessionID string) error
	SessionActive(ctx context.Context, sessionID string) (bool, error)
	AddOutcome(ctx context.Context, rec persistence.OutcomeRecord) error
}

// CycleRunner executes one fetch-draft-submit pass. Satisfied by
// *pipeline.Runner.
type CycleRunner interface {
	Run(ctx context.Context, creds upstream.Credentials, channels []upstream.ChannelKind, lookback time.Duration) (*pipeline.CycleResult, error)
}

// Config holds the registry's dependencies.
type Config struct {
	Store    Store
	Accounts accounts.Store
	Runner   CycleRunner
	Bus      *bus.Bus
	Logger   *slog.Logger
	// Lookback is the fetch window per cycle; defaults to 24h. The cycle
	// runner clamps it to the provider maximum.
	Lookback time.Duration
	// Metrics instruments are optional.
	Metrics *obs.Metrics
}

// entry pairs a session with its worker handles. The registry map is guarded
// by Registry.mu; each entry's fields are guarded by its own mutex so the hot
// per-cycle stat update never contends with other sessions.
type entry struct {
	mu     sync.Mutex
	sess   *Session
	cancel context.CancelFunc
	// done is closed when the current worker exits; nil when no worker has
	// ever run. A replacement worker waits on the previous done before its
	// first cycle, so two workers for one id never execute concurrently.
	done chan struct{}
}

// Registry is the authoritative in-memory map of session id to live worker.
// All lifecycle transitions go through it.
type Registry struct {
	store    Store
	accounts accounts.Store
	runner   CycleRunner
	bus      *bus.Bus
	logger   *slog.Logger
	lookback time.Duration
	metrics  *obs.Metrics

	mu      sync.RWMutex
	entries map[string]*entry
	deleted map[string]bool // tombstones, so delete stays idempotent

	// baseCtx parents all worker contexts; Shutdown cancels it.
	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lookback := cfg.Lookback
	if lookback <= 0 {
		lookback = defaultLookback
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		store:      cfg.Store,
		accounts:   cfg.Accounts,
		runner:     cfg.Runner,
		bus:        cfg.Bus,
		logger:     logger,
		lookback:   lookback,
		metrics:    cfg.Metrics,
		entries:    make(map[string]*entry),
		deleted:    make(map[string]bool),
		baseCtx:    ctx,
		baseCancel: cancel,
	}
}

// Create validates, persists and starts a new session. The returned id
// belongs to a running worker.
func (r *Registry) Create(ctx context.Context, accountRef string, interval time.Duration, cronExpr string, channels []upstream.ChannelKind) (string, error) {
	if interval <= 0 && cronExpr == "" {
		return "", newError(KindValidation, "interval must be positive")
	}
	if cronExpr != "" {
		if _, err := cronParser.Parse(cronExpr); err != nil {
			return "", wrapError(KindValidation, err, "invalid cron expression %q", cronExpr)
		}
	}
	if len(channels) == 0 {
		return "", newError(KindValidation, "at least one channel is required")
	}
	for _, c := range channels {
		if !c.Valid() {
			return "", newError(KindValidation, "unknown channel %q", c)
		}
	}
	if _, err := r.accounts.Resolve(ctx, accountRef); err != nil {
		return "", wrapError(KindNotFound, err, "account %q", accountRef)
	}

	now := time.Now()
	sess := &Session{
		ID:         uuid.NewString(),
		AccountRef: accountRef,
		Interval:   interval,
		CronExpr:   cronExpr,
		Channels:   append([]upstream.ChannelKind(nil), channels...),
		Status:     StatusRunning,
		CreatedAt:  now,
		NextRunAt:  now,
	}
	if err := r.store.SaveSession(ctx, sess.record()); err != nil {
		return "", wrapError(KindPersistence, err, "persist session")
	}

	e := &entry{sess: sess}
	r.mu.Lock()
	r.entries[sess.ID] = e
	r.mu.Unlock()

	e.mu.Lock()
	r.spawnWorkerLocked(e)
	e.mu.Unlock()

	r.publish(bus.TopicSessionCreated, sess.ID, accountRef, StatusRunning)
	r.logger.Info("session created", "session_id", sess.ID, "account_ref", accountRef, "channels", channels)
	return sess.ID, nil
}

// Get returns a copy of the session's state.
func (r *Registry) Get(id string) (Snapshot, error) {
	e, err := r.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.snapshot(), nil
}

// List returns copies of all sessions, oldest first.
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]Snapshot, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.sess.snapshot())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Stop cancels the session's worker and persists the Stopped status.
// Idempotent: stopping a stopped session succeeds as a no-op. Cancellation
// is immediate; the worker performs no further submissions once Stop returns.
func (r *Registry) Stop(ctx context.Context, id string) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess.Status != StatusRunning {
		return nil
	}
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.sess.Status = StatusStopped
	e.sess.NextRunAt = time.Time{}
	e.sess.appendLog("info", "session stopped")
	r.persistLocked(e)

	r.publish(bus.TopicSessionStopped, id, e.sess.AccountRef, StatusStopped)
	r.logger.Info("session stopped", "session_id", id)
	return nil
}

// Start resumes a stopped session with a fresh worker and next-run=now.
// No-op if already running. The new worker waits for the previous worker's
// full exit before its first cycle.
func (r *Registry) Start(ctx context.Context, id string) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess.Status == StatusRunning {
		return nil
	}
	e.sess.Status = StatusRunning
	e.sess.NextRunAt = time.Now()
	r.persistLocked(e)
	r.spawnWorkerLocked(e)

	r.publish(bus.TopicSessionStarted, id, e.sess.AccountRef, StatusRunning)
	r.logger.Info("session started", "session_id", id)
	return nil
}

// Delete stops the session, soft-deletes the store row and removes the
// in-memory entry. Deleting an already-deleted session succeeds as a no-op.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.RLock()
	tombstoned := r.deleted[id]
	r.mu.RUnlock()
	if tombstoned {
		return nil
	}

	e, err := r.lookup(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.sess.Status = StatusDeleted
	accountRef := e.sess.AccountRef
	e.mu.Unlock()

	// The soft-delete marker must land before the entry disappears: workers
	// check it ahead of every persistence write, so once this returns no
	// stale cycle can write stats past the delete.
	if err := r.store.MarkSessionInactive(ctx, id); err != nil {
		return wrapError(KindPersistence, err, "soft-delete session %s", id)
	}

	r.mu.Lock()
	delete(r.entries, id)
	r.deleted[id] = true
	r.mu.Unlock()

	r.publish(bus.TopicSessionDeleted, id, accountRef, StatusDeleted)
	r.logger.Info("session deleted", "session_id", id)
	return nil
}

// LoadFromStore rebuilds sessions from durable rows, called once at boot.
// Every rebuilt session starts Stopped; rows last seen Running are started
// again afterwards when autoRestart is set, each independently, so one
// failed restart cannot block the others.
func (r *Registry) LoadFromStore(ctx context.Context, autoRestart bool) error {
	recs, err := r.store.LoadActiveSessions(ctx)
	if err != nil {
		return wrapError(KindPersistence, err, "load sessions")
	}

	var toRestart []string
	for _, rec := range recs {
		sess := sessionFromRecord(rec)
		sess.appendLog("info", "session restored after restart")

		r.mu.Lock()
		r.entries[sess.ID] = &entry{sess: sess}
		r.mu.Unlock()

		r.publish(bus.TopicSessionRestored, sess.ID, sess.AccountRef, StatusStopped)
		r.logger.Info("session restored after restart",
			"session_id", sess.ID,
			"account_ref", sess.AccountRef,
			"last_status", rec.Status,
		)
		if rec.Status == string(StatusRunning) {
			toRestart = append(toRestart, sess.ID)
		}
	}

	if autoRestart {
		for _, id := range toRestart {
			if err := r.Start(ctx, id); err != nil {
				r.logger.Error("auto-restart failed", "session_id", id, "error", err)
			}
		}
	}
	return nil
}

// Shutdown cancels every worker and waits for them to exit. It does not
// change persisted statuses: rows last seen Running are picked up again by
// the next boot's LoadFromStore.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.baseCancel()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("workers still draining: %w", ctx.Err())
	}
}

func (r *Registry) lookup(id string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, newError(KindNotFound, "session %q not found", id)
	}
	return e, nil
}

// spawnWorkerLocked starts a worker for e. Caller holds e.mu.
func (r *Registry) spawnWorkerLocked(e *entry) {
	ctx, cancel := context.WithCancel(r.baseCtx)
	e.cancel = cancel

	prevDone := e.done
	done := make(chan struct{})
	e.done = done

	r.wg.Add(1)
	go r.runWorker(ctx, e, prevDone, done)
}

// persistLocked saves a snapshot, checking the soft-delete marker first.
// Failures are logged: in-memory state stays authoritative and the next
// periodic write retries. Caller holds e.mu.
func (r *Registry) persistLocked(e *entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	active, err := r.store.SessionActive(ctx, e.sess.ID)
	if err != nil {
		r.logger.Error("active-flag check failed", "session_id", e.sess.ID, "error", err)
		return
	}
	if !active {
		r.logger.Warn("skipping snapshot for inactive session", "session_id", e.sess.ID)
		return
	}
	if err := r.store.SaveSession(ctx, e.sess.record()); err != nil {
		r.logger.Error("session snapshot failed", "session_id", e.sess.ID, "error", err)
	}
}

func (r *Registry) publish(topic, id, accountRef string, status Status) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(topic, bus.SessionEvent{SessionID: id, AccountRef: accountRef, Status: string(status)})
}
