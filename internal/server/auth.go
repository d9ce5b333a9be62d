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

// Bootstrap credentials for the emergency admin account. If no record with
// this username exists, a login with exactly this pair provisions it.
const (
	bootstrapUsername = "Admin"
	bootstrapPassword = "admin123"
	bootstrapColor    = "#7289da"
)

// ErrInvalidCredentials reports a login with an unknown username or a wrong
// password. Both cases collapse into this one error so a probing client cannot
// tell which half was wrong.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Authenticator verifies login credentials against the directory store.
type Authenticator struct {
	directory store.Directory
}

// NewAuthenticator creates an authenticator over the given directory.
func NewAuthenticator(directory store.Directory) *Authenticator {
	return &Authenticator{directory: directory}
}

// Authenticate resolves a username/password pair to an identity. The bcrypt
// comparison is constant-time. A missing bootstrap admin account is
// auto-provisioned on first use; the path is idempotent because it only runs
// when the lookup found nothing and a concurrent create surfaces as
// ErrDuplicate, after which the fresh record is read back and verified like
// any other.
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	cred, err := a.directory.FindUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		if username == bootstrapUsername && password == bootstrapPassword {
			return a.bootstrapAdmin(ctx)
		}
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("authenticate %q: %w", username, err)
	}

	if bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return &cred.User, nil
}

func (a *Authenticator) bootstrapAdmin(ctx context.Context) (*model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(bootstrapPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}

	user, err := a.directory.InsertUser(ctx, store.NewUser{
		Username:     bootstrapUsername,
		PasswordHash: string(hash),
		ColorTag:     bootstrapColor,
		IsAdmin:      true,
	})
	if errors.Is(err, store.ErrDuplicate) {
		// Lost the race to another connection; use the record it created.
		cred, findErr := a.directory.FindUserByUsername(ctx, bootstrapUsername)
		if findErr != nil {
			return nil, fmt.Errorf("bootstrap admin: %w", findErr)
		}
		if bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(bootstrapPassword)) != nil {
			return nil, ErrInvalidCredentials
		}
		return &cred.User, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}

	slog.Warn("bootstrap admin account provisioned", "username", bootstrapUsername)
	return user, nil
}

// handleLogin authenticates the connection, binds the session, and sends the
// personalized success payload plus the directory snapshot. The bind itself
// broadcasts the online transition when this is the identity's first live
// session.
func (c *Client) handleLogin(req loginRequest) {
	ctx := context.Background()

	identity, err := c.hub.auth.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			c.sendEvent(EventLoginError, "Invalid Credentials")
		} else {
			slog.Error("login failed", "addr", c.addr, "username", req.Username, "err", err)
			c.sendEvent(EventLoginError, "Login is temporarily unavailable")
		}
		return
	}

	sess, _ := c.hub.BindSession(c, *identity)
	if sess == nil {
		return
	}
	slog.Info("session bound",
		"addr", c.addr, "user_id", identity.ID, "username", identity.Username, "session", sess.ID)

	c.sendEvent(EventLoginSuccess, profilePayload{
		ID:       identity.ID,
		Username: identity.Username,
		Color:    identity.ColorTag,
		IsAdmin:  identity.IsAdmin,
	})

	users, err := c.hub.directory.ListUsers(ctx)
	if err != nil {
		slog.Error("list users for snapshot", "addr", c.addr, "err", err)
		return
	}
	groups, err := c.hub.directory.ListGroups(ctx)
	if err != nil {
		slog.Error("list groups for snapshot", "addr", c.addr, "err", err)
		return
	}

	c.sendEvent(EventInitData, initDataPayload{
		Users:     rosterOf(users),
		Groups:    nonNilGroups(groups),
		OnlineIDs: c.hub.OnlineIDs(),
	})
}
