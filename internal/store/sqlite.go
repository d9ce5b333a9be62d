package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Tyrowin/relaychat/internal/model"
)

const dbTimeLayout = "2006-01-02 15:04:05"

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	username     TEXT    NOT NULL UNIQUE CHECK(length(username) > 0),
	password     TEXT    NOT NULL,
	avatar_color TEXT    NOT NULL DEFAULT '',
	is_admin     INTEGER NOT NULL DEFAULT 0,
	created_at   TEXT    NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS groups (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	name         TEXT    NOT NULL UNIQUE CHECK(length(name) > 0),
	avatar_color TEXT    NOT NULL DEFAULT '',
	created_at   TEXT    NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS messages (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	sender_id INTEGER NOT NULL,
	target_id INTEGER NOT NULL,
	is_group  INTEGER NOT NULL DEFAULT 0,
	content   TEXT    NOT NULL,
	status    TEXT    NOT NULL DEFAULT 'sent',
	sent_at   TEXT    NOT NULL
);
`

// SQLite is the Directory implementation over a modernc.org/sqlite database.
type SQLite struct {
	db *sql.DB
}

var _ Directory = (*SQLite)(nil)

// OpenSQLite opens (or creates) the database at path and runs migrations.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure from
// the sqlite driver.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *SQLite) FindUserByUsername(ctx context.Context, username string) (*Credential, error) {
	var cred Credential
	var isAdmin int
	err := s.db.QueryRowContext(ctx,
		"SELECT id, username, password, avatar_color, is_admin FROM users WHERE username = ?", username).
		Scan(&cred.User.ID, &cred.User.Username, &cred.PasswordHash, &cred.User.ColorTag, &isAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: find user: %w", err)
	}
	cred.User.IsAdmin = isAdmin != 0
	return &cred, nil
}

func (s *SQLite) InsertUser(ctx context.Context, u NewUser) (*model.User, error) {
	isAdmin := 0
	if u.IsAdmin {
		isAdmin = 1
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (username, password, avatar_color, is_admin) VALUES (?, ?, ?, ?)",
		u.Username, u.PasswordHash, u.ColorTag, isAdmin)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("store: insert user %q: %w", u.Username, ErrDuplicate)
	}
	if err != nil {
		return nil, fmt.Errorf("store: insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("store: insert user: %w", err)
	}
	return &model.User{ID: id, Username: u.Username, ColorTag: u.ColorTag, IsAdmin: u.IsAdmin}, nil
}

func (s *SQLite) InsertGroup(ctx context.Context, name, colorTag string) (*model.Group, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO groups (name, avatar_color) VALUES (?, ?)", name, colorTag)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("store: insert group %q: %w", name, ErrDuplicate)
	}
	if err != nil {
		return nil, fmt.Errorf("store: insert group: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("store: insert group: %w", err)
	}
	return &model.Group{ID: id, Name: name, ColorTag: colorTag}, nil
}

func (s *SQLite) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, username, avatar_color, is_admin FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("store: list users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		var isAdmin int
		if err := rows.Scan(&u.ID, &u.Username, &u.ColorTag, &isAdmin); err != nil {
			return nil, fmt.Errorf("store: list users: %w", err)
		}
		u.IsAdmin = isAdmin != 0
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list users: %w", err)
	}
	return users, nil
}

func (s *SQLite) ListGroups(ctx context.Context) ([]model.Group, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, avatar_color FROM groups ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("store: list groups: %w", err)
	}
	defer rows.Close()

	var groups []model.Group
	for rows.Next() {
		var g model.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.ColorTag); err != nil {
			return nil, fmt.Errorf("store: list groups: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list groups: %w", err)
	}
	return groups, nil
}

// InsertMessage persists m and fills in its assigned ID.
func (s *SQLite) InsertMessage(ctx context.Context, m *model.Message) error {
	isGroup := 0
	if m.IsGroup {
		isGroup = 1
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (sender_id, target_id, is_group, content, status, sent_at) VALUES (?, ?, ?, ?, ?, ?)",
		m.SenderID, m.TargetID, isGroup, m.Content, m.Status, formatDBTime(m.SentAt))
	if err != nil {
		return fmt.Errorf("store: insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("store: insert message: %w", err)
	}
	m.ID = id
	return nil
}

func formatDBTime(t time.Time) string {
	return t.UTC().Format(dbTimeLayout)
}
