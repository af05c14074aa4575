package scheduler

import (
	"fmt"
	"testing"
	"time"

	"github.com/basket/shopreply/internal/persistence"
	"github.com/basket/shopreply/internal/pipeline"
	"github.com/basket/shopreply/internal/upstream"
)

func TestRecentLogsBounded(t *testing.T) {
	s := &Session{}
	for i := 0; i < 1000; i++ {
		s.appendLog("info", fmt.Sprintf("line %d", i))
	}
	if got := len(s.recentLogs); got != maxRecentLogs {
		t.Fatalf("recentLogs len = %d, want %d", got, maxRecentLogs)
	}
	if s.recentLogs[len(s.recentLogs)-1].Message != "line 999" {
		t.Errorf("newest entry = %q, want line 999", s.recentLogs[len(s.recentLogs)-1].Message)
	}
	if s.recentLogs[0].Message != "line 980" {
		t.Errorf("oldest retained entry = %q, want line 980", s.recentLogs[0].Message)
	}
}

func TestRecentHistoryBounded(t *testing.T) {
	s := &Session{}
	for i := 0; i < 1000; i++ {
		s.appendHistory(HistoryEntry{InquiryID: fmt.Sprintf("inq-%d", i)})
	}
	if got := len(s.recentHistory); got != maxRecentHistory {
		t.Fatalf("recentHistory len = %d, want %d", got, maxRecentHistory)
	}
	if s.recentHistory[len(s.recentHistory)-1].InquiryID != "inq-999" {
		t.Errorf("newest entry = %q", s.recentHistory[len(s.recentHistory)-1].InquiryID)
	}
}

func TestApplyResult(t *testing.T) {
	s := &Session{}
	finished := time.Now()
	res := &pipeline.CycleResult{
		StartedAt:  finished.Add(-time.Second),
		FinishedAt: finished,
		Collected:  3,
		Answered:   1,
		Submitted:  1,
		Failed:     1,
		Outcomes: []pipeline.ItemOutcome{
			{InquiryID: "a", Channel: upstream.ChannelDirect, State: pipeline.StateSkipped, Reason: pipeline.ReasonAlreadyAnswered},
			{InquiryID: "b", Channel: upstream.ChannelDirect, State: pipeline.StateFailed, Reason: "empty content"},
			{InquiryID: "c", Channel: upstream.ChannelDirect, State: pipeline.StateSubmitted},
		},
		Warnings: []string{"lookback clamped to provider maximum"},
	}

	s.applyResult(res)
	s.applyResult(res)

	want := Stats{Collected: 6, Answered: 2, Submitted: 2, Failed: 2, RunCount: 2}
	if s.Stats != want {
		t.Errorf("stats = %+v, want %+v", s.Stats, want)
	}
	if !s.LastRunAt.Equal(finished) {
		t.Errorf("LastRunAt = %v, want %v", s.LastRunAt, finished)
	}
	if len(s.recentHistory) != 6 {
		t.Errorf("history entries = %d, want 6", len(s.recentHistory))
	}
	if len(s.recentLogs) != 2 {
		t.Errorf("warning logs = %d, want 2", len(s.recentLogs))
	}
}

func TestNextDelay(t *testing.T) {
	now := time.Date(2026, 7, 14, 10, 30, 0, 0, time.UTC)

	s := &Session{Interval: 5 * time.Minute}
	if d := s.nextDelay(now); d != 5*time.Minute {
		t.Errorf("interval delay = %v", d)
	}

	// Every hour on the hour: from 10:30 the next run is 11:00.
	s = &Session{Interval: 5 * time.Minute, CronExpr: "0 * * * *"}
	if d := s.nextDelay(now); d != 30*time.Minute {
		t.Errorf("cron delay = %v, want 30m", d)
	}
}

func TestSessionFromRecord(t *testing.T) {
	created := time.Now().Add(-time.Hour).Truncate(time.Second)
	rec := persistence.SessionRecord{
		SessionID:       "s1",
		AccountRef:      "acct-42",
		IntervalMinutes: 15,
		Channels:        []string{"direct", "transfer"},
		Status:          "running",
		Collected:       10,
		Submitted:       7,
		RunCount:        4,
		CreatedAt:       created,
	}

	s := sessionFromRecord(rec)
	if s.Status != StatusStopped {
		t.Errorf("status = %q, rebuilt sessions must start stopped", s.Status)
	}
	if s.Interval != 15*time.Minute {
		t.Errorf("interval = %v", s.Interval)
	}
	if len(s.Channels) != 2 || s.Channels[1] != upstream.ChannelTransfer {
		t.Errorf("channels = %v", s.Channels)
	}
	if s.Stats.Collected != 10 || s.Stats.Submitted != 7 || s.Stats.RunCount != 4 {
		t.Errorf("stats = %+v", s.Stats)
	}

	// Round trip back to the durable shape.
	back := s.record()
	back.Status = rec.Status // forced stop is the one intended difference
	if back.SessionID != rec.SessionID || back.IntervalMinutes != rec.IntervalMinutes || back.Collected != rec.Collected {
		t.Errorf("record round trip: %+v", back)
	}
}

func TestSessionFromRecord_ZeroIntervalFloored(t *testing.T) {
	s := sessionFromRecord(persistence.SessionRecord{SessionID: "s2", Channels: []string{"direct"}})
	if s.Interval != time.Minute {
		t.Errorf("interval = %v, want 1m floor", s.Interval)
	}
}
