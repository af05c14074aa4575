package persistence

import (
	"context"
	"fmt"
	"time"
)

// OutcomeRecord is one durable per-item audit row.
type OutcomeRecord struct {
	ID        int64
	SessionID string
	InquiryID string
	Channel   string
	Outcome   string
	Reason    string
	Sentiment string
	CreatedAt time.Time
}

// AddOutcome appends one inquiry outcome to the audit trail.
func (s *Store) AddOutcome(ctx context.Context, rec OutcomeRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inquiry_history (session_id, inquiry_id, channel, outcome, reason, sentiment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?);
	`, rec.SessionID, rec.InquiryID, rec.Channel, rec.Outcome, rec.Reason, rec.Sentiment,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert outcome for %s: %w", rec.InquiryID, err)
	}
	return nil
}

// ListOutcomes returns a session's audit rows, newest first, capped at limit.
func (s *Store) ListOutcomes(ctx context.Context, sessionID string, limit int) ([]OutcomeRecord, error) {
	if limit <= 0 || limit > 10000 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, inquiry_id, channel, outcome, reason, sentiment, created_at
		FROM inquiry_history
		WHERE session_id = ?
		ORDER BY id DESC
		LIMIT ?;
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []OutcomeRecord
	for rows.Next() {
		var rec OutcomeRecord
		var created string
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.InquiryID, &rec.Channel,
			&rec.Outcome, &rec.Reason, &rec.Sentiment, &created); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, created); err == nil {
			rec.CreatedAt = t
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return out, nil
}
