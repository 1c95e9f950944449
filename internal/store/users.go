package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/stellarlinkco/todoclaw/internal/task"
)

type userRow struct {
	UserID      string         `db:"user_id"`
	Username    string         `db:"username"`
	DisplayName sql.NullString `db:"display_name"`
	TeamID      string         `db:"team_id"`
	IsActive    bool           `db:"is_active"`
	LastSeen    int64          `db:"last_seen"`
}

var _ task.UserCache = (*Store)(nil)

func (s *Store) UpsertUser(ctx context.Context, u task.User) error {
	if u.ID == "" {
		return fmt.Errorf("upsert user: missing id")
	}
	lastSeen := u.LastSeen
	if lastSeen.IsZero() {
		lastSeen = time.Now()
	}
	const q = `INSERT INTO users (user_id, username, display_name, team_id, is_active, last_seen)
		VALUES (:user_id, :username, :display_name, :team_id, 1, :last_seen)
		ON CONFLICT(user_id) DO UPDATE SET
			username = excluded.username,
			display_name = COALESCE(excluded.display_name, users.display_name),
			team_id = excluded.team_id,
			is_active = 1,
			last_seen = excluded.last_seen`
	row := userRow{
		UserID:      u.ID,
		Username:    u.Username,
		DisplayName: nullString(u.DisplayName),
		TeamID:      u.TeamID,
		LastSeen:    lastSeen.Unix(),
	}
	if _, err := s.db.NamedExecContext(ctx, q, row); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// FindUserByName matches username or display name case-insensitively within
// a team. The most recently seen user wins.
func (s *Store) FindUserByName(ctx context.Context, username, teamID string) (*task.User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, `SELECT user_id, username, display_name, team_id, is_active, last_seen
		FROM users
		WHERE team_id = ? AND is_active = 1
		AND (username = ? COLLATE NOCASE OR display_name = ? COLLATE NOCASE)
		ORDER BY last_seen DESC
		LIMIT 1`, teamID, username, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find user %q: %w", username, err)
	}
	return &task.User{
		ID:          row.UserID,
		Username:    row.Username,
		DisplayName: row.DisplayName.String,
		TeamID:      row.TeamID,
		LastSeen:    time.Unix(row.LastSeen, 0),
	}, nil
}
