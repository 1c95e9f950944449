package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stellarlinkco/todoclaw/internal/task"
)

const taskColumns = `id, task_id, title, description, status, priority,
	assigned_to_user_id, assigned_to_username, created_by_user_id, created_by_username,
	team_id, channel_id, tags, due_date, snooze_until, created_at, updated_at, completed_at`

type taskRow struct {
	RowID        int64          `db:"id"`
	TaskID       string         `db:"task_id"`
	Title        string         `db:"title"`
	Description  sql.NullString `db:"description"`
	Status       string         `db:"status"`
	Priority     string         `db:"priority"`
	AssigneeID   sql.NullString `db:"assigned_to_user_id"`
	AssigneeName sql.NullString `db:"assigned_to_username"`
	CreatorID    string         `db:"created_by_user_id"`
	CreatorName  string         `db:"created_by_username"`
	TeamID       string         `db:"team_id"`
	ChannelID    string         `db:"channel_id"`
	Tags         sql.NullString `db:"tags"`
	DueDate      sql.NullInt64  `db:"due_date"`
	SnoozeUntil  sql.NullInt64  `db:"snooze_until"`
	CreatedAt    int64          `db:"created_at"`
	UpdatedAt    int64          `db:"updated_at"`
	CompletedAt  sql.NullInt64  `db:"completed_at"`
}

var _ task.Store = (*Store)(nil)

func (s *Store) CreateTask(ctx context.Context, t *task.Task) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().Truncate(time.Second)
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	if t.Status == "" {
		t.Status = task.StatusPending
	}
	if t.Priority == "" {
		t.Priority = task.PriorityMedium
	}

	const q = `INSERT INTO tasks (
		task_id, title, description, status, priority,
		assigned_to_user_id, assigned_to_username, created_by_user_id, created_by_username,
		team_id, channel_id, tags, due_date, snooze_until, created_at, updated_at, completed_at
	) VALUES (
		:task_id, :title, :description, :status, :priority,
		:assigned_to_user_id, :assigned_to_username, :created_by_user_id, :created_by_username,
		:team_id, :channel_id, :tags, :due_date, :snooze_until, :created_at, :updated_at, :completed_at
	)`
	if _, err := s.db.NamedExecContext(ctx, q, toRow(t)); err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*task.Task, error) {
	var row taskRow
	err := s.db.GetContext(ctx, &row, `SELECT `+taskColumns+` FROM tasks WHERE task_id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	t := fromRow(row)
	return &t, nil
}

// UpdateTask writes the mutable fields of t. Creator, team, channel and
// creation time are never rewritten.
func (s *Store) UpdateTask(ctx context.Context, t *task.Task) error {
	const q = `UPDATE tasks SET
		title = :title,
		description = :description,
		status = :status,
		priority = :priority,
		assigned_to_user_id = :assigned_to_user_id,
		assigned_to_username = :assigned_to_username,
		tags = :tags,
		due_date = :due_date,
		snooze_until = :snooze_until,
		updated_at = :updated_at,
		completed_at = :completed_at
	WHERE task_id = :task_id`
	res, err := s.db.NamedExecContext(ctx, q, toRow(t))
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update task %s: %w", t.ID, task.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteTask(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE task_id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	return n > 0, nil
}

func (s *Store) FindByUser(ctx context.Context, f task.Filter) ([]task.Task, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + taskColumns + ` FROM tasks WHERE (assigned_to_user_id = ? OR created_by_user_id = ?)`)
	args := []any{f.UserID, f.UserID}

	if f.Status != "" {
		sb.WriteString(` AND status = ?`)
		args = append(args, string(f.Status))
	}
	if f.ExcludeCompleted {
		sb.WriteString(` AND status != ?`)
		args = append(args, string(task.StatusCompleted))
	}
	if f.TeamID != "" {
		sb.WriteString(` AND team_id = ?`)
		args = append(args, f.TeamID)
	}
	if f.DueBefore != nil {
		sb.WriteString(` AND due_date IS NOT NULL AND due_date <= ?`)
		args = append(args, f.DueBefore.Unix())
	}
	sb.WriteString(` ORDER BY created_at DESC, id DESC`)
	if f.Limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, f.Limit)
	}
	return s.selectTasks(ctx, sb.String(), args...)
}

type TeamFilter struct {
	Status     task.Status
	AssigneeID string
	Limit      int
}

func (s *Store) FindByTeam(ctx context.Context, teamID string, f TeamFilter) ([]task.Task, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + taskColumns + ` FROM tasks WHERE team_id = ?`)
	args := []any{teamID}
	if f.Status != "" {
		sb.WriteString(` AND status = ?`)
		args = append(args, string(f.Status))
	}
	if f.AssigneeID != "" {
		sb.WriteString(` AND assigned_to_user_id = ?`)
		args = append(args, f.AssigneeID)
	}
	sb.WriteString(` ORDER BY created_at DESC, id DESC`)
	if f.Limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, f.Limit)
	}
	return s.selectTasks(ctx, sb.String(), args...)
}

// ActiveTeams lists teams with at least one task that is not completed.
func (s *Store) ActiveTeams(ctx context.Context) ([]string, error) {
	var teams []string
	err := s.db.SelectContext(ctx, &teams,
		`SELECT DISTINCT team_id FROM tasks WHERE status != ? ORDER BY team_id`, string(task.StatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("select active teams: %w", err)
	}
	return teams, nil
}

// DueOrOverdue returns open tasks of a team due by endOfDay whose snooze, if
// any, has passed.
func (s *Store) DueOrOverdue(ctx context.Context, teamID string, endOfDay, now time.Time) ([]task.Task, error) {
	const q = `SELECT ` + taskColumns + ` FROM tasks
		WHERE team_id = ?
		AND status != ?
		AND due_date IS NOT NULL
		AND due_date <= ?
		AND (snooze_until IS NULL OR snooze_until <= ?)
		ORDER BY due_date ASC, id ASC`
	return s.selectTasks(ctx, q, teamID, string(task.StatusCompleted), endOfDay.Unix(), now.Unix())
}

func (s *Store) SnoozeExpired(ctx context.Context, now time.Time) ([]task.Task, error) {
	const q = `SELECT ` + taskColumns + ` FROM tasks
		WHERE snooze_until IS NOT NULL
		AND snooze_until <= ?
		AND status != ?
		ORDER BY snooze_until ASC, id ASC`
	return s.selectTasks(ctx, q, now.Unix(), string(task.StatusCompleted))
}

// ClearSnooze clears the snooze of a task only if it still holds the value
// the caller observed, so a fresh snooze set in between survives.
func (s *Store) ClearSnooze(ctx context.Context, id string, seen, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET snooze_until = NULL, updated_at = ? WHERE task_id = ? AND snooze_until = ?`,
		now.Unix(), id, seen.Unix())
	if err != nil {
		return false, fmt.Errorf("clear snooze: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("clear snooze: %w", err)
	}
	return n > 0, nil
}

func (s *Store) FindStaleCompleted(ctx context.Context, completedBefore time.Time, limit int) ([]task.Task, error) {
	q := `SELECT ` + taskColumns + ` FROM tasks
		WHERE status = ? AND completed_at IS NOT NULL AND completed_at < ?
		ORDER BY completed_at ASC, id ASC`
	args := []any{string(task.StatusCompleted), completedBefore.Unix()}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.selectTasks(ctx, q, args...)
}

// BusiestChannel picks the channel holding most of a team's open tasks,
// ties going to the smallest channel id.
func (s *Store) BusiestChannel(ctx context.Context, teamID string) (string, error) {
	var channel string
	err := s.db.GetContext(ctx, &channel, `SELECT channel_id FROM tasks
		WHERE team_id = ? AND status != ?
		GROUP BY channel_id
		ORDER BY COUNT(*) DESC, channel_id ASC
		LIMIT 1`, teamID, string(task.StatusCompleted))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("select busiest channel: %w", err)
	}
	return channel, nil
}

type Stats struct {
	Total    int
	ByStatus map[task.Status]int
	Users    int
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{ByStatus: make(map[task.Status]int)}
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS n FROM tasks GROUP BY status`); err != nil {
		return stats, fmt.Errorf("count tasks: %w", err)
	}
	for _, r := range rows {
		stats.ByStatus[task.Status(r.Status)] = r.Count
		stats.Total += r.Count
	}
	if err := s.db.GetContext(ctx, &stats.Users, `SELECT COUNT(*) FROM users`); err != nil {
		return stats, fmt.Errorf("count users: %w", err)
	}
	return stats, nil
}

func (s *Store) selectTasks(ctx context.Context, q string, args ...any) ([]task.Task, error) {
	var rows []taskRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("select tasks: %w", err)
	}
	tasks := make([]task.Task, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, fromRow(row))
	}
	return tasks, nil
}

func toRow(t *task.Task) taskRow {
	row := taskRow{
		TaskID:      t.ID,
		Title:       t.Title,
		Description: nullString(t.Description),
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		CreatorID:   t.Creator.ID,
		CreatorName: t.Creator.Username,
		TeamID:      t.TeamID,
		ChannelID:   t.ChannelID,
		DueDate:     nullUnix(t.DueAt),
		SnoozeUntil: nullUnix(t.SnoozeUntil),
		CreatedAt:   t.CreatedAt.Unix(),
		UpdatedAt:   t.UpdatedAt.Unix(),
		CompletedAt: nullUnix(t.CompletedAt),
	}
	if t.Assignee != nil {
		row.AssigneeID = nullString(t.Assignee.ID)
		row.AssigneeName = nullString(t.Assignee.Username)
	}
	if len(t.Tags) > 0 {
		row.Tags = nullString(strings.Join(t.Tags, ","))
	}
	return row
}

func fromRow(row taskRow) task.Task {
	t := task.Task{
		ID:          row.TaskID,
		Title:       row.Title,
		Description: row.Description.String,
		Status:      task.Status(row.Status),
		Priority:    task.ParsePriority(row.Priority),
		Creator:     task.UserRef{ID: row.CreatorID, Username: row.CreatorName},
		TeamID:      row.TeamID,
		ChannelID:   row.ChannelID,
		DueAt:       timePtr(row.DueDate),
		SnoozeUntil: timePtr(row.SnoozeUntil),
		CreatedAt:   time.Unix(row.CreatedAt, 0),
		UpdatedAt:   time.Unix(row.UpdatedAt, 0),
		CompletedAt: timePtr(row.CompletedAt),
	}
	if row.AssigneeID.Valid || row.AssigneeName.Valid {
		t.Assignee = &task.UserRef{ID: row.AssigneeID.String, Username: row.AssigneeName.String}
	}
	if row.Tags.Valid && row.Tags.String != "" {
		t.Tags = strings.Split(row.Tags.String, ",")
	}
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}
