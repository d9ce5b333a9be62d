// Package testhelpers provides shared utilities for the relay integration
// tests: spinning up test servers, dialing WebSocket clients, seeding the
// directory, and reading framed events with deadlines.
package testhelpers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"github.com/Tyrowin/relaychat/internal/server"
	"github.com/Tyrowin/relaychat/internal/store"
)

// CreateTestServer starts an httptest server around a hub's routes and
// configures the relay to accept its origin. Both are torn down via t.Cleanup.
func CreateTestServer(t *testing.T, hub *server.Hub) *httptest.Server {
	t.Helper()

	ts := httptest.NewServer(server.SetupRoutes(hub))
	t.Cleanup(ts.Close)

	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{ts.URL}
	server.SetConfig(cfg)
	t.Cleanup(func() { server.SetConfig(nil) })

	t.Cleanup(func() {
		if err := hub.Shutdown(5 * time.Second); err != nil {
			t.Logf("hub shutdown: %v", err)
		}
	})

	return ts
}

// WebSocketURL converts an httptest server URL into its ws:// endpoint.
func WebSocketURL(serverURL string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
}

// ConnectWebSocket dials the relay with the given Origin header. The
// connection is closed via t.Cleanup.
func ConnectWebSocket(t *testing.T, wsURL, origin string) *websocket.Conn {
	t.Helper()

	header := http.Header{}
	header.Set("Origin", origin)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial %s (origin %s): %v (status %d)", wsURL, origin, err, status)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendEvent writes one framed event on the connection.
func SendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()

	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s data: %v", event, err)
	}
	frame, err := json.Marshal(server.Envelope{Event: event, Data: raw})
	if err != nil {
		t.Fatalf("marshal %s envelope: %v", event, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

// ReadEvent reads the next framed event, failing after the timeout.
func ReadEvent(t *testing.T, conn *websocket.Conn, timeout time.Duration) server.Envelope {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	var env server.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		t.Fatalf("decode frame %s: %v", frame, err)
	}
	return env
}

// WaitForEvent reads frames until one matches the wanted event name, decoding
// its data into out when non-nil. Unrelated events are skipped.
func WaitForEvent(t *testing.T, conn *websocket.Conn, event string, out any, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("timed out waiting for %s", event)
		}
		env := ReadEvent(t, conn, remaining)
		if env.Event != event {
			continue
		}
		if out != nil {
			if err := json.Unmarshal(env.Data, out); err != nil {
				t.Fatalf("decode %s data: %v", event, err)
			}
		}
		return
	}
}

// ExpectNoEvent asserts the connection stays quiet for the given window. The
// timed-out read poisons the connection, so this must be the last read a test
// performs on it.
func ExpectNoEvent(t *testing.T, conn *websocket.Conn, window time.Duration) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(window)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	if _, frame, err := conn.ReadMessage(); err == nil {
		t.Fatalf("unexpected event: %s", frame)
	}
}

// SeedUser inserts a directory record with a bcrypt hash of the password.
// MinCost keeps the tests fast.
func SeedUser(t *testing.T, directory store.Directory, username, password string, admin bool) int64 {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	user, err := directory.InsertUser(context.Background(), store.NewUser{
		Username:     username,
		PasswordHash: string(hash),
		ColorTag:     "#778899",
		IsAdmin:      admin,
	})
	if err != nil {
		t.Fatalf("seed user %q: %v", username, err)
	}
	return user.ID
}

// Login performs the login handshake and consumes the success and snapshot
// events, returning the identity ID from the success payload.
func Login(t *testing.T, conn *websocket.Conn, username, password string) int64 {
	t.Helper()

	SendEvent(t, conn, server.EventLogin, map[string]string{
		"username": username,
		"password": password,
	})

	var profile struct {
		ID int64 `json:"id"`
	}
	env := ReadEvent(t, conn, 2*time.Second)
	if env.Event == server.EventLoginError {
		t.Fatalf("login failed: %s", env.Data)
	}
	if env.Event != server.EventLoginSuccess {
		t.Fatalf("got %q, want login_success", env.Event)
	}
	if err := json.Unmarshal(env.Data, &profile); err != nil {
		t.Fatalf("decode login_success: %v", err)
	}

	WaitForEvent(t, conn, server.EventInitData, nil, 2*time.Second)
	return profile.ID
}
