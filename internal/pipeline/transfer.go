package pipeline

import (
	"context"

	"github.com/basket/shopreply/internal/upstream"
)

// processTransfer runs the transfer-confirm state machine: each item's most
// recent thread entry awaiting confirmation gets a Confirm call.
func (r *Runner) processTransfer(ctx context.Context, creds upstream.Credentials, items []upstream.InquiryItem, res *CycleResult) {
	for _, item := range items {
		if ctx.Err() != nil {
			return
		}

		outcome := ItemOutcome{
			InquiryID: item.ID,
			Channel:   upstream.ChannelTransfer,
		}

		entry, ok := latestNeedsConfirm(item)
		if !ok {
			outcome.State = StateSkipped
			outcome.Reason = ReasonNoActionableEntry
			res.record(outcome)
			continue
		}
		_ = entry // the confirm call is item-scoped upstream

		submit, err := r.client.Confirm(ctx, creds, item.ID, creds.Actor)
		switch {
		case err != nil:
			outcome.State = StateFailed
			outcome.Reason = err.Error()
			r.logger.Warn("confirm submission failed", "inquiry_id", item.ID, "error", err)
		case !submit.Success:
			outcome.State = StateFailed
			outcome.Reason = submit.Message
			r.logger.Warn("confirm rejected upstream", "inquiry_id", item.ID, "message", submit.Message)
		default:
			outcome.State = StateSubmitted
			outcome.Confirmed = true
		}
		res.record(outcome)
	}
}

// latestNeedsConfirm returns the most recent thread entry whose status
// indicates it awaits confirmation.
func latestNeedsConfirm(item upstream.InquiryItem) (upstream.ThreadEntry, bool) {
	var best upstream.ThreadEntry
	found := false
	for _, entry := range item.Thread {
		if entry.Status != upstream.ThreadStatusNeedsConfirm {
			continue
		}
		if !found || entry.CreatedAt.After(best.CreatedAt) {
			best = entry
			found = true
		}
	}
	return best, found
}
