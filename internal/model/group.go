package model

import (
	"errors"
	"fmt"
	"strings"
)

const MaxGroupNameLength = 64

var ErrGroupNameEmpty = errors.New("group name must not be empty")
var ErrGroupNameTooLong = fmt.Errorf("group name must not exceed %d characters", MaxGroupNameLength)

// Group is a named chat room. Membership is universal: every identity may send
// to and receives from every group.
type Group struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ColorTag string `json:"avatar_color"`
}

// ValidateGroupName checks that a group name is non-blank and within length.
func ValidateGroupName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrGroupNameEmpty
	}
	if len(name) > MaxGroupNameLength {
		return ErrGroupNameTooLong
	}
	return nil
}
