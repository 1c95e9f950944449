package task

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// UntitledTitle is what the parser produces when no title survives
	// extraction. Create rejects it.
	UntitledTitle = "Untitled Task"

	DefaultListLimit = 20
)

// Draft is a parsed task-creation request.
type Draft struct {
	Title        string
	Description  string
	AssigneeName string
	Tags         []string
	DueAt        *time.Time
	Priority     Priority
}

// View selects which of a user's tasks List returns.
type View string

const (
	ViewAll       View = "all"
	ViewPending   View = "pending"
	ViewCompleted View = "completed"
	ViewOverdue   View = "overdue"
)

func ParseView(s string) (View, bool) {
	switch View(strings.ToLower(strings.TrimSpace(s))) {
	case "", ViewPending:
		return ViewPending, true
	case ViewAll:
		return ViewAll, true
	case ViewCompleted:
		return ViewCompleted, true
	case ViewOverdue:
		return ViewOverdue, true
	}
	return "", false
}

type ManagerOptions struct {
	Users        UserResolver
	Cache        UserCache
	Times        TimeResolver
	Logger       *zap.Logger
	Now          func() time.Time
	DefaultLimit int
}

// Manager owns task state transitions and the permission rules around them.
type Manager struct {
	store        Store
	users        UserResolver
	cache        UserCache
	times        TimeResolver
	log          *zap.Logger
	now          func() time.Time
	defaultLimit int
}

func NewManager(store Store, opts ManagerOptions) *Manager {
	m := &Manager{
		store:        store,
		users:        opts.Users,
		cache:        opts.Cache,
		times:        opts.Times,
		log:          opts.Logger,
		now:          opts.Now,
		defaultLimit: opts.DefaultLimit,
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	m.log = m.log.Named("tasks")
	if m.now == nil {
		m.now = time.Now
	}
	if m.defaultLimit <= 0 {
		m.defaultLimit = DefaultListLimit
	}
	return m
}

func (m *Manager) Create(ctx context.Context, d Draft, creator User, teamID, channelID string) (*Task, error) {
	title := strings.TrimSpace(d.Title)
	if title == "" || title == UntitledTitle {
		return nil, fmt.Errorf("%w: could not understand the task, please provide a clear description", ErrInvalidCommand)
	}
	if creator.ID == "" {
		return nil, fmt.Errorf("%w: missing creator", ErrInvalidCommand)
	}

	var assignee *UserRef
	if name := strings.TrimPrefix(strings.TrimSpace(d.AssigneeName), "@"); name != "" {
		ref := m.resolveAssignee(ctx, name, teamID)
		assignee = &ref
	}

	priority := d.Priority
	if priority == "" {
		priority = PriorityMedium
	}

	now := m.now().Truncate(time.Second)
	t := &Task{
		Title:       title,
		Description: strings.TrimSpace(d.Description),
		Status:      StatusPending,
		Priority:    priority,
		Assignee:    assignee,
		Creator:     creator.Ref(),
		TeamID:      teamID,
		ChannelID:   channelID,
		Tags:        NormalizeTags(d.Tags),
		DueAt:       d.DueAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.store.CreateTask(ctx, t); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	creator.TeamID = teamID
	m.remember(ctx, creator)
	return t, nil
}

func (m *Manager) List(ctx context.Context, userID, teamID string, view View, limit int) ([]Task, error) {
	if limit <= 0 {
		limit = m.defaultLimit
	}
	f := Filter{UserID: userID, TeamID: teamID, Limit: limit}
	switch view {
	case ViewAll:
	case ViewCompleted:
		f.Status = StatusCompleted
	case ViewOverdue:
		now := m.now()
		f.DueBefore = &now
		f.ExcludeCompleted = true
	default:
		f.Status = StatusPending
	}

	tasks, err := m.store.FindByUser(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// Complete marks a task done. Completing a completed task returns the task
// together with ErrAlreadyDone.
func (m *Manager) Complete(ctx context.Context, ident, userID, teamID string) (*Task, error) {
	t, err := m.resolve(ctx, ident, userID, teamID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(t, userID, RelationCreatorOrAssignee); err != nil {
		return nil, err
	}
	if t.IsCompleted() {
		return t, ErrAlreadyDone
	}

	now := m.now().Truncate(time.Second)
	t.Status = StatusCompleted
	t.CompletedAt = &now
	t.UpdatedAt = now
	if err := m.store.UpdateTask(ctx, t); err != nil {
		return nil, fmt.Errorf("complete task %s: %w", t.ID, err)
	}
	return t, nil
}

func (m *Manager) Snooze(ctx context.Context, ident, expr, userID, teamID string) (*Task, time.Time, error) {
	t, err := m.resolve(ctx, ident, userID, teamID)
	if err != nil {
		return nil, time.Time{}, err
	}
	if err := Authorize(t, userID, RelationCreatorOrAssignee); err != nil {
		return nil, time.Time{}, err
	}
	if t.IsCompleted() {
		return nil, time.Time{}, fmt.Errorf("%w: cannot snooze a completed task", ErrInvalidState)
	}

	until := m.times.Resolve(expr).Truncate(time.Second)
	t.SnoozeUntil = &until
	t.UpdatedAt = m.now().Truncate(time.Second)
	if err := m.store.UpdateTask(ctx, t); err != nil {
		return nil, time.Time{}, fmt.Errorf("snooze task %s: %w", t.ID, err)
	}
	return t, until, nil
}

// Delete removes a task and returns the last snapshot. Only the creator may
// delete.
func (m *Manager) Delete(ctx context.Context, ident, userID, teamID string) (*Task, error) {
	t, err := m.resolve(ctx, ident, userID, teamID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(t, userID, RelationCreator); err != nil {
		return nil, err
	}

	deleted, err := m.store.DeleteTask(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("delete task %s: %w", t.ID, err)
	}
	if !deleted {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, ident)
	}
	return t, nil
}

// Show returns a task visible to the caller. Tasks the caller neither created
// nor is assigned to are reported as not found.
func (m *Manager) Show(ctx context.Context, ident, userID, teamID string) (*Task, error) {
	t, err := m.resolve(ctx, ident, userID, teamID)
	if err != nil {
		return nil, err
	}
	if !Visible(t, userID) {
		return nil, notFound(ident)
	}
	return t, nil
}

func (m *Manager) Reassign(ctx context.Context, ident, assigneeName, userID, teamID string) (*Task, error) {
	name := strings.TrimPrefix(strings.TrimSpace(assigneeName), "@")
	if name == "" {
		return nil, fmt.Errorf("%w: who should the task be assigned to?", ErrInvalidCommand)
	}

	t, err := m.resolve(ctx, ident, userID, teamID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(t, userID, RelationCreator); err != nil {
		return nil, err
	}

	ref := m.resolveAssignee(ctx, name, teamID)
	t.Assignee = &ref
	t.UpdatedAt = m.now().Truncate(time.Second)
	if err := m.store.UpdateTask(ctx, t); err != nil {
		return nil, fmt.Errorf("reassign task %s: %w", t.ID, err)
	}
	return t, nil
}

// Search matches query against title, description and tags of the caller's
// tasks in the team.
func (m *Manager) Search(ctx context.Context, query, userID, teamID string) ([]Task, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, fmt.Errorf("%w: nothing to search for", ErrInvalidCommand)
	}

	tasks, err := m.store.FindByUser(ctx, Filter{UserID: userID, TeamID: teamID})
	if err != nil {
		return nil, fmt.Errorf("search tasks: %w", err)
	}

	matched := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		text := strings.ToLower(t.Title + " " + t.Description + " " + strings.Join(t.Tags, " "))
		if strings.Contains(text, query) {
			matched = append(matched, t)
		}
	}
	return matched, nil
}

// FindStaleCompleted lists completed tasks whose completion is older than
// the retention window.
func (m *Manager) FindStaleCompleted(ctx context.Context, retention time.Duration) ([]Task, error) {
	cutoff := m.now().Add(-retention)
	tasks, err := m.store.FindStaleCompleted(ctx, cutoff, 0)
	if err != nil {
		return nil, fmt.Errorf("find stale completed tasks: %w", err)
	}
	return tasks, nil
}

// Remember refreshes the cached identity of a user seen on the platform.
func (m *Manager) Remember(ctx context.Context, u User) {
	m.remember(ctx, u)
}

// resolve maps an identifier to a task: exact id within the team first, then
// the newest of the caller's own tasks whose id starts with ident.
func (m *Manager) resolve(ctx context.Context, ident, userID, teamID string) (*Task, error) {
	ident = strings.TrimSpace(ident)
	if ident == "" {
		return nil, fmt.Errorf("%w: missing task id", ErrInvalidCommand)
	}

	t, err := m.store.GetTask(ctx, ident)
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", ident, err)
	}
	if t != nil && t.TeamID == teamID {
		return t, nil
	}

	candidates, err := m.store.FindByUser(ctx, Filter{UserID: userID, TeamID: teamID})
	if err != nil {
		return nil, fmt.Errorf("find tasks for %s: %w", userID, err)
	}
	prefix := strings.ToLower(ident)
	for i := range candidates {
		if strings.HasPrefix(strings.ToLower(candidates[i].ID), prefix) {
			return &candidates[i], nil
		}
	}
	return nil, notFound(ident)
}

func (m *Manager) resolveAssignee(ctx context.Context, name, teamID string) UserRef {
	if m.users == nil {
		return UserRef{Username: name}
	}
	u, err := m.users.LookupByMention(ctx, name, teamID)
	if err != nil {
		m.log.Warn("resolve assignee failed", zap.String("name", name), zap.String("team", teamID), zap.Error(err))
		return UserRef{Username: name}
	}
	if u == nil {
		return UserRef{Username: name}
	}
	return u.Ref()
}

func (m *Manager) remember(ctx context.Context, u User) {
	if m.cache == nil || u.ID == "" || u.Username == "" {
		return
	}
	u.LastSeen = m.now()
	if err := m.cache.UpsertUser(ctx, u); err != nil {
		m.log.Warn("cache user failed", zap.String("user", u.ID), zap.Error(err))
	}
}

func notFound(ident string) error {
	return fmt.Errorf("%w: %q, use `list` to see your tasks", ErrNotFound, ident)
}
