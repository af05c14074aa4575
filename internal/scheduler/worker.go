package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/basket/shopreply/internal/bus"
	"github.com/basket/shopreply/internal/persistence"
	"github.com/basket/shopreply/internal/pipeline"
	"github.com/basket/shopreply/internal/upstream"
)

// runWorker is a session's worker loop: run a cycle, apply the result, wait
// until the next run, repeat until cancelled. The inter-cycle wait is the
// only intentional suspension point and cancellation interrupts it
// immediately.
func (r *Registry) runWorker(ctx context.Context, e *entry, prevDone <-chan struct{}, done chan struct{}) {
	defer r.wg.Done()
	defer close(done)

	// Sequential handoff: the previous worker for this id must have fully
	// exited before this one touches session state.
	if prevDone != nil {
		select {
		case <-prevDone:
		case <-ctx.Done():
			return
		}
	}

	if r.metrics != nil {
		r.metrics.ActiveSessions.Add(ctx, 1)
		defer r.metrics.ActiveSessions.Add(context.Background(), -1)
	}

	for {
		if ctx.Err() != nil {
			return
		}
		r.runCycle(ctx, e)

		e.mu.Lock()
		wait := e.sess.nextDelay(time.Now())
		e.sess.NextRunAt = time.Now().Add(wait)
		e.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// runCycle executes one cycle for the session and applies the result.
// Credential resolution failure aborts the cycle with stats unchanged; the
// normal next interval retries it, no special backoff.
func (r *Registry) runCycle(ctx context.Context, e *entry) {
	e.mu.Lock()
	id := e.sess.ID
	accountRef := e.sess.AccountRef
	channels := append([]upstream.ChannelKind(nil), e.sess.Channels...)
	e.mu.Unlock()

	started := time.Now()

	creds, err := r.accounts.Resolve(ctx, accountRef)
	if err != nil {
		r.cycleAborted(e, id, accountRef, "credential resolution failed: "+err.Error())
		return
	}

	res, err := r.runner.Run(ctx, creds, channels, r.lookback)
	if err != nil {
		r.cycleAborted(e, id, accountRef, "cycle failed before fetch: "+err.Error())
		return
	}

	e.mu.Lock()
	e.sess.applyResult(res)
	e.sess.appendLog("info", cycleSummary(res))
	e.mu.Unlock()

	r.auditOutcomes(id, res)

	e.mu.Lock()
	r.persistLocked(e)
	e.mu.Unlock()

	r.recordCycleMetrics(res, time.Since(started))
	if r.bus != nil {
		r.bus.Publish(bus.TopicCycleCompleted, bus.CycleEvent{
			SessionID:  id,
			AccountRef: accountRef,
			Collected:  res.Collected,
			Submitted:  res.Submitted,
			Confirmed:  res.Confirmed,
			Failed:     res.Failed,
		})
	}
	r.logger.Info("cycle completed",
		"session_id", id,
		"collected", res.Collected,
		"submitted", res.Submitted,
		"confirmed", res.Confirmed,
		"failed", res.Failed,
		"channel_errors", len(res.Errors),
		"duration", time.Since(started),
	)
}

// cycleAborted records a whole-cycle failure: logged, stats unchanged.
func (r *Registry) cycleAborted(e *entry, id, accountRef, msg string) {
	// A cancelled context is an ordinary shutdown, not a failed cycle.
	e.mu.Lock()
	cancelled := e.sess.Status != StatusRunning
	e.sess.appendLog("error", msg)
	e.mu.Unlock()
	if cancelled {
		return
	}

	if r.bus != nil {
		r.bus.Publish(bus.TopicCycleFailed, bus.CycleEvent{SessionID: id, AccountRef: accountRef, Error: msg})
	}
	r.logger.Error("cycle aborted", "session_id", id, "reason", msg)
}

// auditOutcomes appends the cycle's per-item outcomes to the durable trail.
// Best effort: a failed insert is logged and the in-memory ring still holds
// the entry.
func (r *Registry) auditOutcomes(id string, res *pipeline.CycleResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, o := range res.Outcomes {
		err := r.store.AddOutcome(ctx, persistence.OutcomeRecord{
			SessionID: id,
			InquiryID: o.InquiryID,
			Channel:   string(o.Channel),
			Outcome:   string(o.State),
			Reason:    o.Reason,
			Sentiment: string(o.Sentiment),
		})
		if err != nil {
			r.logger.Error("audit write failed", "session_id", id, "inquiry_id", o.InquiryID, "error", err)
		}
	}
}

func (r *Registry) recordCycleMetrics(res *pipeline.CycleResult, d time.Duration) {
	if r.metrics == nil {
		return
	}
	ctx := context.Background()
	r.metrics.CycleDuration.Record(ctx, d.Seconds())
	r.metrics.ItemsCollected.Add(ctx, int64(res.Collected))
	r.metrics.ItemsSubmitted.Add(ctx, int64(res.Submitted))
	r.metrics.ItemsConfirmed.Add(ctx, int64(res.Confirmed))
	r.metrics.ItemsFailed.Add(ctx, int64(res.Failed))
}

func cycleSummary(res *pipeline.CycleResult) string {
	return fmt.Sprintf("cycle: %d collected, %d submitted, %d confirmed, %d failed",
		res.Collected, res.Submitted, res.Confirmed, res.Failed)
}
