package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/basket/shopreply/internal/draft"
	"github.com/basket/shopreply/internal/upstream"
)

// Runner executes cycles. It is stateless: everything a cycle needs comes in
// through Run's arguments, everything it learns goes out in the CycleResult.
type Runner struct {
	client upstream.Client
	gen    draft.Generator
	logger *slog.Logger
	tracer trace.Tracer
}

// NewRunner creates a cycle runner.
func NewRunner(client upstream.Client, gen draft.Generator, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		client: client,
		gen:    gen,
		logger: logger,
		tracer: otel.Tracer("shopreply"),
	}
}

// Run executes one cycle over the given channels with a lookback window
// ending now. A channel's failure is recorded in the result and the remaining
// channels still run; an error return happens only before any channel starts.
func (r *Runner) Run(ctx context.Context, creds upstream.Credentials, channels []upstream.ChannelKind, lookback time.Duration) (*CycleResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("no channels configured")
	}

	ctx, span := r.tracer.Start(ctx, "cycle.run",
		trace.WithAttributes(attribute.String("account_ref", creds.AccountRef)))
	defer span.End()

	res := &CycleResult{StartedAt: time.Now()}

	if lookback > upstream.MaxLookback {
		warn := fmt.Sprintf("lookback %s clamped to provider maximum %s", lookback, upstream.MaxLookback)
		res.Warnings = append(res.Warnings, warn)
		r.logger.Warn("lookback window clamped", "requested", lookback, "max", upstream.MaxLookback)
		lookback = upstream.MaxLookback
	}
	window := upstream.Window{From: res.StartedAt.Add(-lookback), To: res.StartedAt}

	for _, channel := range channels {
		r.runChannel(ctx, creds, channel, window, res)
	}

	res.FinishedAt = time.Now()
	span.SetAttributes(
		attribute.Int("collected", res.Collected),
		attribute.Int("submitted", res.Submitted),
		attribute.Int("confirmed", res.Confirmed),
		attribute.Int("failed", res.Failed),
	)
	return res, nil
}

// runChannel fetches and processes one channel. Errors and panics are
// contained here so one channel cannot take down the rest of the cycle.
func (r *Runner) runChannel(ctx context.Context, creds upstream.Credentials, channel upstream.ChannelKind, window upstream.Window, res *CycleResult) {
	defer func() {
		if v := recover(); v != nil {
			res.Errors = append(res.Errors, ChannelError{
				Channel: channel,
				Err:     fmt.Errorf("channel panicked: %v", v),
			})
			r.logger.Error("channel processor panicked", "channel", channel, "panic", v)
		}
	}()

	if !channel.Valid() {
		res.Errors = append(res.Errors, ChannelError{Channel: channel, Err: fmt.Errorf("unknown channel %q", channel)})
		return
	}

	items, err := r.client.FetchUnanswered(ctx, creds, channel, window)
	if err != nil {
		res.Errors = append(res.Errors, ChannelError{Channel: channel, Err: fmt.Errorf("fetch: %w", err)})
		r.logger.Warn("channel fetch failed", "channel", channel, "error", err)
		return
	}
	res.Collected += len(items)

	switch channel {
	case upstream.ChannelDirect:
		r.processDirect(ctx, creds, items, res)
	case upstream.ChannelTransfer:
		r.processTransfer(ctx, creds, items, res)
	}
}
