// Package model defines the domain entities exchanged between the relay
// server, the directory store, and connected clients.
package model

import (
	"errors"
	"fmt"
)

const MaxUsernameLength = 32

var ErrUsernameEmpty = errors.New("username must not be empty")
var ErrUsernameTooLong = fmt.Errorf("username must not exceed %d characters", MaxUsernameLength)
var ErrUsernameInvalidChars = errors.New("username must contain only alphanumeric characters, underscores, or hyphens")

// User is a registered identity with a stable numeric ID. The password hash
// never lives on this type; it stays inside the store layer so snapshots and
// broadcasts cannot leak it.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	ColorTag string `json:"avatar_color"`
	IsAdmin  bool   `json:"is_admin"`
}

// RosterEntry is the public projection of a User sent in directory snapshots.
// It omits the admin flag; clients learn their own flag from the login payload.
type RosterEntry struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	ColorTag string `json:"avatar_color"`
}

// Roster returns the public projection of u.
func (u User) Roster() RosterEntry {
	return RosterEntry{ID: u.ID, Username: u.Username, ColorTag: u.ColorTag}
}

// ValidateUsername checks that a username is 1-32 ASCII alphanumeric,
// underscore, or hyphen characters.
func ValidateUsername(name string) error {
	if len(name) == 0 {
		return ErrUsernameEmpty
	}
	if len(name) > MaxUsernameLength {
		return ErrUsernameTooLong
	}
	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '_' && r != '-' {
			return ErrUsernameInvalidChars
		}
	}
	return nil
}
