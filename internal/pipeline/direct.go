package pipeline

import (
	"context"
	"strings"

	"github.com/basket/shopreply/internal/draft"
	"github.com/basket/shopreply/internal/sentiment"
	"github.com/basket/shopreply/internal/upstream"
)

// formTagMarkers are upstream metadata tags meaning the inquiry must be
// handled through an external form or link. Those are never answered
// automatically.
var formTagMarkers = []string{"external_form", "requires_form", "warranty_portal"}

// formTextMarkers are phrases in the thread that signal the same.
var formTextMarkers = []string{
	"fill in the form",
	"fill out the form",
	"follow the link",
	"via the linked form",
	"submit the form",
}

// processDirect runs the direct-reply state machine over fetched items. One
// item's failure never stops the next item; an unresolved item stays
// unanswered upstream and is naturally retried next cycle.
func (r *Runner) processDirect(ctx context.Context, creds upstream.Credentials, items []upstream.InquiryItem, res *CycleResult) {
	for _, item := range items {
		if ctx.Err() != nil {
			// Cancelled mid-channel: no further drafts or submissions.
			return
		}

		tone := sentiment.Classify(item.Text)
		outcome := ItemOutcome{
			InquiryID: item.ID,
			Channel:   upstream.ChannelDirect,
			Sentiment: tone,
		}

		if item.Answered {
			outcome.State = StateSkipped
			outcome.Reason = ReasonAlreadyAnswered
			res.record(outcome)
			continue
		}
		if strings.TrimSpace(item.Text) == "" {
			outcome.State = StateFailed
			outcome.Reason = "empty content"
			res.record(outcome)
			continue
		}

		text, err := r.gen.Draft(ctx, draft.Request{
			Text:         item.Text,
			CustomerName: item.CustomerName,
			ProductName:  item.ProductName,
			Tone:         tone,
		})
		if err != nil || strings.TrimSpace(text) == "" {
			outcome.State = StateFailed
			outcome.Reason = "draft generation failed"
			res.record(outcome)
			r.logger.Warn("draft generation failed", "inquiry_id", item.ID, "error", err)
			continue
		}

		if requiresExternalForm(item) {
			outcome.State = StateSkipped
			outcome.Reason = ReasonSpecialForm
			res.record(outcome)
			continue
		}

		if ctx.Err() != nil {
			return
		}
		submit, err := r.client.Reply(ctx, creds, item.ID, text, creds.Actor)
		switch {
		case err != nil:
			outcome.State = StateFailed
			outcome.Reason = err.Error()
			r.logger.Warn("reply submission failed", "inquiry_id", item.ID, "error", err)
		case !submit.Success:
			outcome.State = StateFailed
			outcome.Reason = submit.Message
			r.logger.Warn("reply rejected upstream", "inquiry_id", item.ID, "message", submit.Message)
		default:
			outcome.State = StateSubmitted
		}
		res.record(outcome)
	}
}

// requiresExternalForm detects the "must follow an external form/link"
// condition from upstream tags and thread text.
func requiresExternalForm(item upstream.InquiryItem) bool {
	for _, tag := range item.Tags {
		for _, marker := range formTagMarkers {
			if tag == marker {
				return true
			}
		}
	}
	haystack := strings.ToLower(item.Text)
	for _, entry := range item.Thread {
		haystack += "\n" + strings.ToLower(entry.Body)
	}
	for _, marker := range formTextMarkers {
		if strings.Contains(haystack, marker) {
			return true
		}
	}
	return false
}
