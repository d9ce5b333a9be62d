// Package store provides the directory of users, groups, and messages backing
// the relay. The default implementation is SQLite; an in-memory implementation
// exists for tests.
package store

import (
	"context"
	"errors"

	"github.com/Tyrowin/relaychat/internal/model"
)

// ErrNotFound reports a lookup that matched no record.
var ErrNotFound = errors.New("store: record not found")

// ErrDuplicate reports a uniqueness violation on insert. Callers distinguish
// it from transient store failures with errors.Is.
var ErrDuplicate = errors.New("store: duplicate record")

// Credential pairs an identity with its password hash. It exists only at the
// store/authentication boundary and is never put on the wire.
type Credential struct {
	User         model.User
	PasswordHash string
}

// NewUser carries the fields for provisioning an identity.
type NewUser struct {
	Username     string
	PasswordHash string
	ColorTag     string
	IsAdmin      bool
}

// Directory is the persistence interface consumed by the relay core.
// Implementations must report uniqueness violations as ErrDuplicate and missing
// records as ErrNotFound; any other error is treated as the store being
// unavailable.
type Directory interface {
	FindUserByUsername(ctx context.Context, username string) (*Credential, error)
	InsertUser(ctx context.Context, u NewUser) (*model.User, error)
	InsertGroup(ctx context.Context, name, colorTag string) (*model.Group, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	ListGroups(ctx context.Context) ([]model.Group, error)
	InsertMessage(ctx context.Context, m *model.Message) error
	Close() error
}
