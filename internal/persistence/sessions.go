package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SessionRecord is the durable shape of a scheduler session. Status here is
// the last persisted status; the in-memory registry is authoritative for
// whether a worker is currently executing.
type SessionRecord struct {
	SessionID       string
	AccountRef      string
	IntervalMinutes int
	CronExpr        string
	Channels        []string
	Status          string
	Collected       int
	Answered        int
	Submitted       int
	Confirmed       int
	Failed          int
	RunCount        int
	LastRunAt       time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SaveSession inserts or updates a session row. The row's is_active flag is
// left untouched on update so a concurrent soft-delete is never resurrected.
func (s *Store) SaveSession(ctx context.Context, rec SessionRecord) error {
	if rec.SessionID == "" {
		return fmt.Errorf("save session: empty session_id")
	}
	now := time.Now().UTC()
	var lastRun any
	if !rec.LastRunAt.IsZero() {
		lastRun = rec.LastRunAt.UTC().Format(time.RFC3339)
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (
			session_id, account_ref, interval_minutes, cron_expr, channel_list,
			status, is_active, collected, answered, submitted, confirmed,
			failed, run_count, last_run_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			account_ref = excluded.account_ref,
			interval_minutes = excluded.interval_minutes,
			cron_expr = excluded.cron_expr,
			channel_list = excluded.channel_list,
			status = excluded.status,
			collected = excluded.collected,
			answered = excluded.answered,
			submitted = excluded.submitted,
			confirmed = excluded.confirmed,
			failed = excluded.failed,
			run_count = excluded.run_count,
			last_run_at = excluded.last_run_at,
			updated_at = excluded.updated_at;
	`,
		rec.SessionID, rec.AccountRef, rec.IntervalMinutes, rec.CronExpr,
		strings.Join(rec.Channels, ","), rec.Status,
		rec.Collected, rec.Answered, rec.Submitted, rec.Confirmed,
		rec.Failed, rec.RunCount, lastRun,
		created.UTC().Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", rec.SessionID, err)
	}
	return nil
}

// LoadActiveSessions returns all rows not soft-deleted, oldest first.
func (s *Store) LoadActiveSessions(ctx context.Context) ([]SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, account_ref, interval_minutes, cron_expr, channel_list,
			status, collected, answered, submitted, confirmed, failed, run_count,
			last_run_at, created_at, updated_at
		FROM sessions
		WHERE is_active = 1
		ORDER BY created_at ASC;
	`)
	if err != nil {
		return nil, fmt.Errorf("query active sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

// MarkSessionInactive soft-deletes a session row. The row stays for audit
// but is excluded from future loads.
func (s *Store) MarkSessionInactive(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET is_active = 0, status = 'deleted', updated_at = ?
		WHERE session_id = ?;
	`, time.Now().UTC().Format(time.RFC3339), sessionID)
	if err != nil {
		return fmt.Errorf("soft-delete session %s: %w", sessionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("soft-delete session %s: %w", sessionID, sql.ErrNoRows)
	}
	return nil
}

// SessionActive reports whether the row exists and is not soft-deleted.
// Workers call this immediately before any stats write so a stale in-flight
// cycle cannot persist past a delete.
func (s *Store) SessionActive(ctx context.Context, sessionID string) (bool, error) {
	var active int
	err := s.db.QueryRowContext(ctx, `SELECT is_active FROM sessions WHERE session_id = ?`, sessionID).Scan(&active)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check session %s active: %w", sessionID, err)
	}
	return active == 1, nil
}

func scanSession(rows *sql.Rows) (SessionRecord, error) {
	var rec SessionRecord
	var channelList string
	var lastRun sql.NullString
	var created, updated string

	if err := rows.Scan(
		&rec.SessionID, &rec.AccountRef, &rec.IntervalMinutes, &rec.CronExpr,
		&channelList, &rec.Status, &rec.Collected, &rec.Answered,
		&rec.Submitted, &rec.Confirmed, &rec.Failed, &rec.RunCount,
		&lastRun, &created, &updated,
	); err != nil {
		return rec, fmt.Errorf("scan session: %w", err)
	}

	if channelList != "" {
		rec.Channels = strings.Split(channelList, ",")
	}
	if lastRun.Valid && lastRun.String != "" {
		if t, err := time.Parse(time.RFC3339, lastRun.String); err == nil {
			rec.LastRunAt = t
		}
	}
	if t, err := time.Parse(time.RFC3339, created); err == nil {
		rec.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updated); err == nil {
		rec.UpdatedAt = t
	}
	return rec, nil
}
