package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/Tyrowin/relaychat/internal/model"
	"github.com/Tyrowin/relaychat/internal/store"
)

// Admin is the gateway for privileged provisioning. Every operation checks
// the requesting session's admin flag first; a non-admin call is dropped
// without any response so probing clients learn nothing about the privilege
// boundary.
type Admin struct {
	hub       *Hub
	directory store.Directory
}

// authorize returns the requester's session when it is bound and has the
// admin flag, and nil otherwise.
func (a *Admin) authorize(requester *Client) *Session {
	sess := a.hub.SessionOf(requester)
	if sess == nil || !sess.Identity.IsAdmin {
		slog.Warn("unauthorized admin request dropped", "addr", requester.addr)
		return nil
	}
	return sess
}

// CreateUser provisions a new identity with a random display color. Duplicate
// usernames are reported to the requester only; success triggers a
// directory-refresh broadcast to every connection.
func (a *Admin) CreateUser(requester *Client, req createUserRequest) {
	sess := a.authorize(requester)
	if sess == nil {
		return
	}

	if err := model.ValidateUsername(req.Username); err != nil {
		requester.sendEvent(EventNotification, fmt.Sprintf("Error: %v.", err))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("hash password", "err", err)
		requester.sendEvent(EventNotification, "Error: Could not create user.")
		return
	}

	ctx := context.Background()
	user, err := a.directory.InsertUser(ctx, store.NewUser{
		Username:     req.Username,
		PasswordHash: string(hash),
		ColorTag:     model.RandomColor(),
	})
	if errors.Is(err, store.ErrDuplicate) {
		requester.sendEvent(EventNotification, "Error: Username taken.")
		return
	}
	if err != nil {
		slog.Error("create user", "username", req.Username, "err", err)
		requester.sendEvent(EventNotification, "Error: Could not create user.")
		return
	}

	slog.Info("user provisioned",
		"username", user.Username, "user_id", user.ID, "by", sess.Identity.Username)
	a.broadcastRefresh(ctx)
	requester.sendEvent(EventNotification, fmt.Sprintf("User %q created!", user.Username))
}

// CreateGroup provisions a new group with a random display color. Same shape
// as CreateUser: scoped duplicate error, full-roster broadcast on success.
func (a *Admin) CreateGroup(requester *Client, req createGroupRequest) {
	sess := a.authorize(requester)
	if sess == nil {
		return
	}

	if err := model.ValidateGroupName(req.Name); err != nil {
		requester.sendEvent(EventNotification, fmt.Sprintf("Error: %v.", err))
		return
	}

	ctx := context.Background()
	group, err := a.directory.InsertGroup(ctx, req.Name, model.RandomColor())
	if errors.Is(err, store.ErrDuplicate) {
		requester.sendEvent(EventNotification, "Error: Group name taken.")
		return
	}
	if err != nil {
		slog.Error("create group", "name", req.Name, "err", err)
		requester.sendEvent(EventNotification, "Error: Could not create group.")
		return
	}

	slog.Info("group provisioned",
		"name", group.Name, "group_id", group.ID, "by", sess.Identity.Username)
	a.broadcastRefresh(ctx)
	requester.sendEvent(EventNotification, fmt.Sprintf("Group %q created!", group.Name))
}

// broadcastRefresh re-reads the full roster and pushes it to every connection.
// It is a full-state refresh, so a concurrent provisioning call that
// interleaves simply gets corrected by whichever broadcast lands last.
func (a *Admin) broadcastRefresh(ctx context.Context) {
	users, err := a.directory.ListUsers(ctx)
	if err != nil {
		slog.Error("list users for refresh", "err", err)
		return
	}
	groups, err := a.directory.ListGroups(ctx)
	if err != nil {
		slog.Error("list groups for refresh", "err", err)
		return
	}

	frame, err := marshalEvent(EventRefreshData, refreshDataPayload{
		Users:  rosterOf(users),
		Groups: nonNilGroups(groups),
	})
	if err != nil {
		slog.Error("encode refresh_data", "err", err)
		return
	}
	a.hub.Broadcast(frame)
}
