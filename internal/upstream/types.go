// Package upstream defines the contract with the marketplace inquiry API:
// typed inquiry payloads, the fetch/reply/confirm client interface, and the
// provider's lookback limit. Wire-format details (signing, JSON field names)
// stay behind the HTTP client in this package.
package upstream

import (
	"context"
	"time"
)

// ChannelKind identifies an inquiry source with its own fetch/submit semantics.
type ChannelKind string

const (
	// ChannelDirect is the direct-reply channel: unanswered customer
	// inquiries that receive an AI-drafted text reply.
	ChannelDirect ChannelKind = "direct"

	// ChannelTransfer is the transfer-confirm channel: inquiries whose most
	// recent thread entry awaits a one-click confirmation.
	ChannelTransfer ChannelKind = "transfer"
)

// Valid reports whether k names a known channel.
func (k ChannelKind) Valid() bool {
	return k == ChannelDirect || k == ChannelTransfer
}

// MaxLookback is the widest time range the provider accepts on a fetch.
// Requests beyond this are rejected upstream, so callers clamp before sending.
const MaxLookback = 30 * 24 * time.Hour

// Window is the fetch time range, inclusive on both ends.
type Window struct {
	From time.Time
	To   time.Time
}

// Span returns the window width.
func (w Window) Span() time.Duration {
	return w.To.Sub(w.From)
}

// ThreadStatusNeedsConfirm marks a thread entry awaiting confirmation.
const ThreadStatusNeedsConfirm = "needs_confirmation"

// ThreadEntry is one nested message in an inquiry's conversation thread.
type ThreadEntry struct {
	ID        string
	Status    string
	Body      string
	CreatedAt time.Time
}

// InquiryItem is one customer inquiry, decoded once at the client boundary.
type InquiryItem struct {
	ID           string
	Channel      ChannelKind
	Text         string
	CustomerName string
	ProductName  string
	Answered     bool
	Tags         []string
	Thread       []ThreadEntry
	ReceivedAt   time.Time
}

// SubmitResult is the provider's answer to a reply or confirm call.
type SubmitResult struct {
	Success bool
	Message string
}

// Credentials authenticates one marketplace account for the duration of a
// single cycle. Resolved fresh per cycle and never persisted by the scheduler.
type Credentials struct {
	AccountRef string
	APIKey     string
	APISecret  string
	Actor      string
}

// Client is the upstream marketplace inquiry API.
type Client interface {
	// FetchUnanswered returns inquiries in the window that still need action
	// on the given channel. The window must not exceed MaxLookback.
	FetchUnanswered(ctx context.Context, creds Credentials, channel ChannelKind, window Window) ([]InquiryItem, error)

	// Reply submits drafted text as the answer to an inquiry.
	Reply(ctx context.Context, creds Credentials, itemID, text, actor string) (SubmitResult, error)

	// Confirm acknowledges a transfer thread entry.
	Confirm(ctx context.Context, creds Credentials, itemID, actor string) (SubmitResult, error)
}
