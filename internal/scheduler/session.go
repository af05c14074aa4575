// Package scheduler owns the automation sessions: one long-lived,
// independently controllable worker per marketplace account, each
// periodically executing a fetch-draft-submit cycle with durable state.
package scheduler

import (
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/basket/shopreply/internal/persistence"
	"github.com/basket/shopreply/internal/pipeline"
	"github.com/basket/shopreply/internal/upstream"
)

// Status of a session.
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
	StatusDeleted Status = "deleted"
)

// Ring buffer bounds.
const (
	maxRecentLogs    = 20
	maxRecentHistory = 50
)

// cronParser parses standard 5-field cron expressions (minute, hour, dom,
// month, dow) for sessions scheduled by expression instead of fixed interval.
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// Stats are a session's lifetime counters.
type Stats struct {
	Collected int `json:"collected"`
	Answered  int `json:"answered"`
	Submitted int `json:"submitted"`
	Confirmed int `json:"confirmed"`
	Failed    int `json:"failed"`
	RunCount  int `json:"run_count"`
}

// LogEntry is one bounded recent-log line.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// HistoryEntry is one bounded recent-inquiry record.
type HistoryEntry struct {
	Time      time.Time `json:"time"`
	InquiryID string    `json:"inquiry_id"`
	Channel   string    `json:"channel"`
	Outcome   string    `json:"outcome"`
	Reason    string    `json:"reason,omitempty"`
	Sentiment string    `json:"sentiment,omitempty"`
}

// Session is the live state of one automation job. Mutated only by its own
// worker and by Stop/Start/Delete; external callers see Snapshot copies.
type Session struct {
	ID         string
	AccountRef string
	Interval   time.Duration
	CronExpr   string
	Channels   []upstream.ChannelKind
	Status     Status
	CreatedAt  time.Time
	LastRunAt  time.Time
	NextRunAt  time.Time
	Stats      Stats

	recentLogs    []LogEntry
	recentHistory []HistoryEntry
}

// Snapshot is an immutable copy of a session for callers outside the
// registry. Credentials and cancellation handles are never part of it.
type Snapshot struct {
	ID            string                 `json:"id"`
	AccountRef    string                 `json:"account_ref"`
	IntervalMin   int                    `json:"interval_minutes"`
	CronExpr      string                 `json:"cron_expr,omitempty"`
	Channels      []upstream.ChannelKind `json:"channels"`
	Status        Status                 `json:"status"`
	CreatedAt     time.Time              `json:"created_at"`
	LastRunAt     time.Time              `json:"last_run,omitzero"`
	NextRunAt     time.Time              `json:"next_run,omitzero"`
	Stats         Stats                  `json:"stats"`
	RecentLogs    []LogEntry             `json:"recent_logs"`
	RecentHistory []HistoryEntry         `json:"recent_history"`
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		ID:          s.ID,
		AccountRef:  s.AccountRef,
		IntervalMin: int(s.Interval / time.Minute),
		CronExpr:    s.CronExpr,
		Channels:    append([]upstream.ChannelKind(nil), s.Channels...),
		Status:      s.Status,
		CreatedAt:   s.CreatedAt,
		LastRunAt:   s.LastRunAt,
		NextRunAt:   s.NextRunAt,
		Stats:       s.Stats,
	}
	snap.RecentLogs = append([]LogEntry(nil), s.recentLogs...)
	snap.RecentHistory = append([]HistoryEntry(nil), s.recentHistory...)
	return snap
}

// appendLog adds a log line, keeping the newest maxRecentLogs entries.
func (s *Session) appendLog(level, message string) {
	s.recentLogs = append(s.recentLogs, LogEntry{Time: time.Now(), Level: level, Message: message})
	if n := len(s.recentLogs); n > maxRecentLogs {
		s.recentLogs = s.recentLogs[n-maxRecentLogs:]
	}
}

// appendHistory adds an inquiry record, keeping the newest maxRecentHistory.
func (s *Session) appendHistory(entry HistoryEntry) {
	s.recentHistory = append(s.recentHistory, entry)
	if n := len(s.recentHistory); n > maxRecentHistory {
		s.recentHistory = s.recentHistory[n-maxRecentHistory:]
	}
}

// applyResult rolls a cycle result into the session's stats and rings.
func (s *Session) applyResult(res *pipeline.CycleResult) {
	s.Stats.Collected += res.Collected
	s.Stats.Answered += res.Answered
	s.Stats.Submitted += res.Submitted
	s.Stats.Confirmed += res.Confirmed
	s.Stats.Failed += res.Failed
	s.Stats.RunCount++
	s.LastRunAt = res.FinishedAt

	for _, o := range res.Outcomes {
		s.appendHistory(HistoryEntry{
			Time:      res.FinishedAt,
			InquiryID: o.InquiryID,
			Channel:   string(o.Channel),
			Outcome:   string(o.State),
			Reason:    o.Reason,
			Sentiment: string(o.Sentiment),
		})
	}
	for _, w := range res.Warnings {
		s.appendLog("warn", w)
	}
	for _, ce := range res.Errors {
		s.appendLog("error", string(ce.Channel)+" channel: "+ce.Err.Error())
	}
}

// nextDelay returns how long the worker sleeps before the next cycle.
func (s *Session) nextDelay(now time.Time) time.Duration {
	if s.CronExpr != "" {
		if sched, err := cronParser.Parse(s.CronExpr); err == nil {
			if d := sched.Next(now).Sub(now); d > 0 {
				return d
			}
		}
	}
	return s.Interval
}

// record converts the session to its durable shape.
func (s *Session) record() persistence.SessionRecord {
	channels := make([]string, 0, len(s.Channels))
	for _, c := range s.Channels {
		channels = append(channels, string(c))
	}
	return persistence.SessionRecord{
		SessionID:       s.ID,
		AccountRef:      s.AccountRef,
		IntervalMinutes: int(s.Interval / time.Minute),
		CronExpr:        s.CronExpr,
		Channels:        channels,
		Status:          string(s.Status),
		Collected:       s.Stats.Collected,
		Answered:        s.Stats.Answered,
		Submitted:       s.Stats.Submitted,
		Confirmed:       s.Stats.Confirmed,
		Failed:          s.Stats.Failed,
		RunCount:        s.Stats.RunCount,
		LastRunAt:       s.LastRunAt,
		CreatedAt:       s.CreatedAt,
	}
}

// sessionFromRecord rebuilds a session from its durable shape. Status is
// forced to Stopped: Running always means a live worker, and workers are
// only attached by an explicit Start.
func sessionFromRecord(rec persistence.SessionRecord) *Session {
	interval := time.Duration(rec.IntervalMinutes) * time.Minute
	if interval <= 0 && rec.CronExpr == "" {
		interval = time.Minute
	}
	channels := make([]upstream.ChannelKind, 0, len(rec.Channels))
	for _, c := range rec.Channels {
		channels = append(channels, upstream.ChannelKind(c))
	}
	return &Session{
		ID:         rec.SessionID,
		AccountRef: rec.AccountRef,
		Interval:   interval,
		CronExpr:   rec.CronExpr,
		Channels:   channels,
		Status:     StatusStopped,
		CreatedAt:  rec.CreatedAt,
		LastRunAt:  rec.LastRunAt,
		Stats: Stats{
			Collected: rec.Collected,
			Answered:  rec.Answered,
			Submitted: rec.Submitted,
			Confirmed: rec.Confirmed,
			Failed:    rec.Failed,
			RunCount:  rec.RunCount,
		},
	}
}
