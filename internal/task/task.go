package task

import (
	"strings"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ParsePriority maps a stored value back to a Priority, defaulting to medium.
func ParsePriority(s string) Priority {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityUrgent:
		return PriorityUrgent
	case PriorityHigh:
		return PriorityHigh
	case PriorityLow:
		return PriorityLow
	}
	return PriorityMedium
}

// UserRef identifies a chat user. ID is empty when a mention could not be
// resolved and only the raw username is known.
type UserRef struct {
	ID       string `json:"id,omitempty"`
	Username string `json:"username"`
}

func (u UserRef) Resolved() bool {
	return u.ID != ""
}

// User is the cached, non-authoritative view of a chat user.
type User struct {
	ID          string
	Username    string
	DisplayName string
	TeamID      string
	LastSeen    time.Time
}

func (u User) Ref() UserRef {
	return UserRef{ID: u.ID, Username: u.Username}
}

type Task struct {
	ID          string
	Title       string
	Description string
	Status      Status
	Priority    Priority
	Assignee    *UserRef
	Creator     UserRef
	TeamID      string
	ChannelID   string
	Tags        []string
	DueAt       *time.Time
	SnoozeUntil *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

const shortIDLen = 8

// ShortID is the display form of a task id.
func ShortID(id string) string {
	if len(id) <= shortIDLen {
		return id
	}
	return id[:shortIDLen]
}

// Owner is the user reminders are delivered to: the resolved assignee, or the
// creator when there is none.
func (t *Task) Owner() UserRef {
	if t.Assignee != nil && t.Assignee.Resolved() {
		return *t.Assignee
	}
	return t.Creator
}

func (t *Task) IsCompleted() bool {
	return t.Status == StatusCompleted
}

func (t *Task) IsOverdue(now time.Time) bool {
	return t.DueAt != nil && !t.DueAt.After(now) && !t.IsCompleted()
}

func (t *Task) IsSnoozed(now time.Time) bool {
	return t.SnoozeUntil != nil && t.SnoozeUntil.After(now)
}

// NormalizeTags drops empty and duplicate tags, keeping first occurrence order.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tag)
	}
	return out
}
