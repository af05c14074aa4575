package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/basket/shopreply/internal/accounts"
	"github.com/basket/shopreply/internal/upstream"
)

// UpsertAccount stores or refreshes one account's credentials. Called at
// boot from the config's account list and by the admin surface.
func (s *Store) UpsertAccount(ctx context.Context, a accounts.Account) error {
	if a.AccountRef == "" {
		return fmt.Errorf("upsert account: empty account_ref")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (account_ref, label, api_key, api_secret, actor)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account_ref) DO UPDATE SET
			label = excluded.label,
			api_key = excluded.api_key,
			api_secret = excluded.api_secret,
			actor = excluded.actor;
	`, a.AccountRef, a.Label, a.APIKey, a.APISecret, a.Actor)
	if err != nil {
		return fmt.Errorf("upsert account %s: %w", a.AccountRef, err)
	}
	return nil
}

// Resolve implements accounts.Store.
func (s *Store) Resolve(ctx context.Context, accountRef string) (upstream.Credentials, error) {
	var creds upstream.Credentials
	err := s.db.QueryRowContext(ctx, `
		SELECT account_ref, api_key, api_secret, actor FROM accounts WHERE account_ref = ?;
	`, accountRef).Scan(&creds.AccountRef, &creds.APIKey, &creds.APISecret, &creds.Actor)
	if err == sql.ErrNoRows {
		return upstream.Credentials{}, fmt.Errorf("resolve account %q: %w", accountRef, accounts.ErrNotFound)
	}
	if err != nil {
		return upstream.Credentials{}, fmt.Errorf("resolve account %q: %w", accountRef, err)
	}
	return creds, nil
}
