package task

import (
	"context"
	"time"
)

// Filter selects tasks a user created or is assigned to. Results are ordered
// newest first.
type Filter struct {
	UserID           string
	TeamID           string
	Status           Status
	ExcludeCompleted bool
	DueBefore        *time.Time
	Limit            int
}

// Store is the record store the lifecycle manager runs on. Each call is
// atomic for the single record it touches. Getters return (nil, nil) for
// missing records.
type Store interface {
	CreateTask(ctx context.Context, t *Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	UpdateTask(ctx context.Context, t *Task) error
	DeleteTask(ctx context.Context, id string) (bool, error)
	FindByUser(ctx context.Context, f Filter) ([]Task, error)
	FindStaleCompleted(ctx context.Context, completedBefore time.Time, limit int) ([]Task, error)
}

type UserCache interface {
	UpsertUser(ctx context.Context, u User) error
	FindUserByName(ctx context.Context, username, teamID string) (*User, error)
}

// UserResolver turns an @mention into a stable user identity. A nil user
// with a nil error means the name is unknown.
type UserResolver interface {
	LookupByMention(ctx context.Context, name, teamID string) (*User, error)
}

type TimeResolver interface {
	Resolve(expr string) time.Time
}
