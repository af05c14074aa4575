// Package pipeline runs one fetch-draft-submit pass for a session: the cycle
// runner fans out over the session's channels and aggregates per-item
// outcomes. It does no session bookkeeping; the scheduler applies results.
package pipeline

import (
	"time"

	"github.com/basket/shopreply/internal/sentiment"
	"github.com/basket/shopreply/internal/upstream"
)

// ItemState is one step of the per-item state machine
// Fetched -> {Skipped | Failed | Drafted -> {Submitted | Failed}}.
type ItemState string

const (
	StateFetched   ItemState = "fetched"
	StateSkipped   ItemState = "skipped"
	StateFailed    ItemState = "failed"
	StateDrafted   ItemState = "drafted"
	StateSubmitted ItemState = "submitted"
)

// Skip reasons.
const (
	ReasonAlreadyAnswered   = "already answered"
	ReasonSpecialForm       = "special_form"
	ReasonNoActionableEntry = "no actionable thread entry"
)

// ItemOutcome is the terminal record for one fetched inquiry.
type ItemOutcome struct {
	InquiryID string
	Channel   upstream.ChannelKind
	State     ItemState
	Reason    string
	Sentiment sentiment.Score
	Confirmed bool // set on transfer-confirm submissions
}

// ChannelError records one channel's failure without aborting the cycle.
type ChannelError struct {
	Channel upstream.ChannelKind
	Err     error
}

// CycleResult aggregates one cycle. Rolled into session stats and discarded.
type CycleResult struct {
	StartedAt  time.Time
	FinishedAt time.Time

	Collected int // items fetched across all channels
	Answered  int // skipped as already answered
	Submitted int // direct replies accepted upstream
	Confirmed int // transfer confirmations accepted upstream
	Failed    int

	Outcomes []ItemOutcome
	Warnings []string
	Errors   []ChannelError
}

func (r *CycleResult) record(o ItemOutcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch {
	case o.State == StateSubmitted && o.Confirmed:
		r.Confirmed++
	case o.State == StateSubmitted:
		r.Submitted++
	case o.State == StateFailed:
		r.Failed++
	case o.State == StateSkipped && o.Reason == ReasonAlreadyAnswered:
		r.Answered++
	}
}
