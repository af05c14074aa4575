// Package draft produces candidate reply text for customer inquiries.
package draft

import (
	"context"

	"github.com/basket/shopreply/internal/sentiment"
)

// Request carries one inquiry's inputs to the generator.
type Request struct {
	Text         string
	CustomerName string
	ProductName  string
	Tone         sentiment.Score
}

// Generator drafts a reply for an inquiry. An empty result or an error both
// count as a generation failure; the caller marks the item Failed and moves on.
type Generator interface {
	Draft(ctx context.Context, req Request) (string, error)
}
