package otel

import "go.opentelemetry.io/otel/metric"

// Metrics holds all shopreply metric instruments.
type Metrics struct {
	CycleDuration  metric.Float64Histogram
	ItemsCollected metric.Int64Counter
	ItemsSubmitted metric.Int64Counter
	ItemsConfirmed metric.Int64Counter
	ItemsFailed    metric.Int64Counter
	ActiveSessions metric.Int64UpDownCounter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.CycleDuration, err = meter.Float64Histogram("shopreply.cycle.duration",
		metric.WithDescription("Cycle execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.ItemsCollected, err = meter.Int64Counter("shopreply.items.collected",
		metric.WithDescription("Inquiries fetched across all cycles"),
	)
	if err != nil {
		return nil, err
	}

	m.ItemsSubmitted, err = meter.Int64Counter("shopreply.items.submitted",
		metric.WithDescription("Direct replies accepted upstream"),
	)
	if err != nil {
		return nil, err
	}

	m.ItemsConfirmed, err = meter.Int64Counter("shopreply.items.confirmed",
		metric.WithDescription("Transfer confirmations accepted upstream"),
	)
	if err != nil {
		return nil, err
	}

	m.ItemsFailed, err = meter.Int64Counter("shopreply.items.failed",
		metric.WithDescription("Per-item failures across all cycles"),
	)
	if err != nil {
		return nil, err
	}

	m.ActiveSessions, err = meter.Int64UpDownCounter("shopreply.sessions.active",
		metric.WithDescription("Sessions with a live worker"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
