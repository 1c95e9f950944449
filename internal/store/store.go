package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Store persists tasks and the user cache in a single sqlite database.
type Store struct {
	db  *sqlx.DB
	log *zap.Logger
}

func Open(dbPath string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps pragmas in effect and serialises writers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, log: log.Named("store")}
	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.log.Debug("opened", zap.String("path", dbPath))
	return s, nil
}

func (s *Store) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id TEXT UNIQUE NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			priority TEXT NOT NULL DEFAULT 'medium',
			assigned_to_user_id TEXT,
			assigned_to_username TEXT,
			created_by_user_id TEXT NOT NULL,
			created_by_username TEXT NOT NULL,
			team_id TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			tags TEXT,
			due_date INTEGER,
			snooze_until INTEGER,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
			updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
			completed_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_assignee ON tasks(assigned_to_user_id, team_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_creator ON tasks(created_by_user_id, team_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_team_status ON tasks(team_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(due_date)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_snooze ON tasks(snooze_until)`,
		`CREATE TABLE IF NOT EXISTS users (
			user_id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			display_name TEXT,
			team_id TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			last_seen INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_team_name ON users(team_id, username)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}
