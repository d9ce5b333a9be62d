package integration

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/Tyrowin/relaychat/internal/model"
	"github.com/Tyrowin/relaychat/internal/server"
	"github.com/Tyrowin/relaychat/internal/store"
	"github.com/Tyrowin/relaychat/test/testhelpers"
)

// newSQLiteHub wires a hub to a real SQLite database in a temp dir.
func newSQLiteHub(t *testing.T) (*server.Hub, *store.SQLite) {
	t.Helper()

	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return server.NewHub(st), st
}

func TestLoginOverWebSocket(t *testing.T) {
	hub, st := newSQLiteHub(t)
	ts := testhelpers.CreateTestServer(t, hub)
	testhelpers.SeedUser(t, st, "alice", "s3cret", false)

	conn := testhelpers.ConnectWebSocket(t, testhelpers.WebSocketURL(ts.URL), ts.URL)

	t.Run("wrong password", func(t *testing.T) {
		testhelpers.SendEvent(t, conn, server.EventLogin, map[string]string{
			"username": "alice",
			"password": "wrong",
		})
		var reason string
		testhelpers.WaitForEvent(t, conn, server.EventLoginError, &reason, 2*time.Second)
		if reason != "Invalid Credentials" {
			t.Errorf("login_error = %q", reason)
		}
	})

	t.Run("valid credentials", func(t *testing.T) {
		testhelpers.SendEvent(t, conn, server.EventLogin, map[string]string{
			"username": "alice",
			"password": "s3cret",
		})

		var profile struct {
			ID       int64  `json:"id"`
			Username string `json:"username"`
			Color    string `json:"color"`
			IsAdmin  bool   `json:"isAdmin"`
		}
		testhelpers.WaitForEvent(t, conn, server.EventLoginSuccess, &profile, 2*time.Second)
		if profile.Username != "alice" || profile.IsAdmin || profile.Color == "" {
			t.Errorf("profile = %+v", profile)
		}

		var snapshot struct {
			Users     []model.RosterEntry `json:"users"`
			Groups    []model.Group       `json:"groups"`
			OnlineIDs []int64             `json:"online_ids"`
		}
		testhelpers.WaitForEvent(t, conn, server.EventInitData, &snapshot, 2*time.Second)
		if len(snapshot.Users) != 1 || snapshot.Users[0].Username != "alice" {
			t.Errorf("snapshot users = %+v", snapshot.Users)
		}
		if len(snapshot.OnlineIDs) != 1 || snapshot.OnlineIDs[0] != profile.ID {
			t.Errorf("snapshot online_ids = %v", snapshot.OnlineIDs)
		}
		if snapshot.Groups == nil {
			t.Error("snapshot groups is null, want []")
		}
	})
}

func TestBootstrapAdminProvisioning(t *testing.T) {
	hub, _ := newSQLiteHub(t)
	ts := testhelpers.CreateTestServer(t, hub)

	// Empty database: the fixed bootstrap pair provisions the admin account.
	conn := testhelpers.ConnectWebSocket(t, testhelpers.WebSocketURL(ts.URL), ts.URL)
	testhelpers.SendEvent(t, conn, server.EventLogin, map[string]string{
		"username": "Admin",
		"password": "admin123",
	})

	var profile struct {
		IsAdmin bool `json:"isAdmin"`
	}
	testhelpers.WaitForEvent(t, conn, server.EventLoginSuccess, &profile, 5*time.Second)
	if !profile.IsAdmin {
		t.Fatal("bootstrap account is not admin")
	}

	// The admin can provision and every connection gets the roster refresh.
	testhelpers.WaitForEvent(t, conn, server.EventInitData, nil, 2*time.Second)
	testhelpers.SendEvent(t, conn, server.EventAdminCreateGroup, map[string]string{
		"group_name": "Engineering",
	})

	var refresh struct {
		Groups []model.Group `json:"groups"`
	}
	testhelpers.WaitForEvent(t, conn, server.EventRefreshData, &refresh, 2*time.Second)
	if len(refresh.Groups) != 1 || refresh.Groups[0].Name != "Engineering" {
		t.Errorf("refresh groups = %+v", refresh.Groups)
	}

	var notice string
	testhelpers.WaitForEvent(t, conn, server.EventNotification, &notice, 2*time.Second)
	if notice != `Group "Engineering" created!` {
		t.Errorf("notification = %q", notice)
	}
}
