// Package reminder implements the periodic sweeps that push reminders to
// task owners: the daily digest, the snooze-expiry sweep and the retention
// cleanup.
package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/stellarlinkco/todoclaw/internal/task"
)

// Kind names a sweep.
type Kind string

const (
	KindDaily   Kind = "daily"
	KindSnooze  Kind = "snooze"
	KindCleanup Kind = "cleanup"
)

var Kinds = []Kind{KindDaily, KindSnooze, KindCleanup}

func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown reminder kind %q (want daily, snooze or cleanup)", s)
}

type EventKind string

const (
	EventDaily         EventKind = "daily"
	EventSnooze        EventKind = "snooze"
	EventChannelDigest EventKind = "channel_digest"
)

// Recipient addresses a reminder. UserID is set for direct reminders,
// ChannelID for channel digests.
type Recipient struct {
	TeamID    string
	UserID    string
	Username  string
	ChannelID string
}

func (r Recipient) String() string {
	if r.ChannelID != "" {
		return r.TeamID + "#" + r.ChannelID
	}
	return r.TeamID + "@" + r.UserID
}

type Event struct {
	Kind         EventKind
	Overdue      []task.Task
	DueToday     []task.Task
	Task         *task.Task
	OverdueCount int
}

// Sink delivers reminders. Failures are logged by the scheduler and never
// retried.
type Sink interface {
	Send(ctx context.Context, to Recipient, ev Event) error
}

// Store is the subset of the task store the sweeps read and write.
type Store interface {
	ActiveTeams(ctx context.Context) ([]string, error)
	DueOrOverdue(ctx context.Context, teamID string, endOfDay, now time.Time) ([]task.Task, error)
	BusiestChannel(ctx context.Context, teamID string) (string, error)
	SnoozeExpired(ctx context.Context, now time.Time) ([]task.Task, error)
	ClearSnooze(ctx context.Context, id string, seen, now time.Time) (bool, error)
	FindStaleCompleted(ctx context.Context, completedBefore time.Time, limit int) ([]task.Task, error)
	DeleteTask(ctx context.Context, id string) (bool, error)
}

// Report summarises one sweep run.
type Report struct {
	Kind    Kind `json:"kind"`
	Teams   int  `json:"teams,omitempty"`
	Sent    int  `json:"sent"`
	Failed  int  `json:"failed"`
	Cleared int  `json:"cleared,omitempty"`
	Removed int  `json:"removed,omitempty"`
}

func (r Report) String() string {
	switch r.Kind {
	case KindDaily:
		return fmt.Sprintf("daily: %d teams, %d sent, %d failed", r.Teams, r.Sent, r.Failed)
	case KindSnooze:
		return fmt.Sprintf("snooze: %d sent, %d failed, %d cleared", r.Sent, r.Failed, r.Cleared)
	case KindCleanup:
		return fmt.Sprintf("cleanup: %d removed, %d failed", r.Removed, r.Failed)
	}
	return string(r.Kind)
}
