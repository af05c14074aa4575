// Package accounts resolves marketplace account credentials for the
// scheduler. Credentials are looked up fresh at the start of every cycle and
// never cached or persisted by the callers.
package accounts

import (
	"context"
	"errors"

	"github.com/basket/shopreply/internal/upstream"
)

// ErrNotFound is returned when an account reference does not resolve.
var ErrNotFound = errors.New("account not found")

// Store looks up marketplace API credentials by account reference.
type Store interface {
	// Resolve returns the credentials for accountRef, or an error satisfying
	// errors.Is(err, ErrNotFound) when the account is unknown.
	Resolve(ctx context.Context, accountRef string) (upstream.Credentials, error)
}

// Account is one configured marketplace account.
type Account struct {
	AccountRef string `yaml:"account_ref"`
	Label      string `yaml:"label"`
	APIKey     string `yaml:"api_key"`
	APISecret  string `yaml:"api_secret"`
	// Actor is the operator name attached to submitted replies.
	Actor string `yaml:"actor"`
}
