package task

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// memStore is an in-memory Store with the same filtering and ordering rules
// as the sqlite store.
type memStore struct {
	mu    sync.Mutex
	seq   int
	tasks map[string]*Task
	order map[string]int
	users map[string]User

	failUpdate error
}

func newMemStore() *memStore {
	return &memStore{
		tasks: make(map[string]*Task),
		order: make(map[string]int),
		users: make(map[string]User),
	}
}

func (s *memStore) CreateTask(_ context.Context, t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	if t.ID == "" {
		t.ID = fmt.Sprintf("t%07d-0000-0000", s.seq)
	}
	if _, ok := s.tasks[t.ID]; ok {
		return errors.New("duplicate id")
	}
	cp := *t
	s.tasks[t.ID] = &cp
	s.order[t.ID] = s.seq
	return nil
}

func (s *memStore) GetTask(_ context.Context, id string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (s *memStore) UpdateTask(_ context.Context, t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdate != nil {
		return s.failUpdate
	}
	existing, ok := s.tasks[t.ID]
	if !ok {
		return ErrNotFound
	}
	cp := *t
	cp.Creator = existing.Creator
	cp.TeamID = existing.TeamID
	cp.ChannelID = existing.ChannelID
	cp.CreatedAt = existing.CreatedAt
	s.tasks[t.ID] = &cp
	return nil
}

func (s *memStore) DeleteTask(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return false, nil
	}
	delete(s.tasks, id)
	return true, nil
}

func (s *memStore) FindByUser(_ context.Context, f Filter) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Task
	for _, t := range s.tasks {
		if t.Creator.ID != f.UserID && (t.Assignee == nil || t.Assignee.ID != f.UserID) {
			continue
		}
		if f.TeamID != "" && t.TeamID != f.TeamID {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.ExcludeCompleted && t.IsCompleted() {
			continue
		}
		if f.DueBefore != nil && (t.DueAt == nil || t.DueAt.After(*f.DueBefore)) {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return s.order[out[i].ID] > s.order[out[j].ID]
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *memStore) FindStaleCompleted(_ context.Context, before time.Time, limit int) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Task
	for _, t := range s.tasks {
		if t.IsCompleted() && t.CompletedAt != nil && t.CompletedAt.Before(before) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.Before(*out[j].CompletedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) UpsertUser(_ context.Context, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *memStore) FindUserByName(_ context.Context, username, teamID string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.TeamID == teamID && (strings.EqualFold(u.Username, username) || strings.EqualFold(u.DisplayName, username)) {
			cp := u
			return &cp, nil
		}
	}
	return nil, nil
}

type fakeDirectory struct {
	users map[string]User
	err   error
	calls int
}

func (d *fakeDirectory) LookupUser(_ context.Context, name, _ string) (*User, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	u, ok := d.users[strings.ToLower(name)]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

type fixedTimes struct {
	at    time.Time
	exprs []string
}

func (f *fixedTimes) Resolve(expr string) time.Time {
	f.exprs = append(f.exprs, expr)
	return f.at
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
