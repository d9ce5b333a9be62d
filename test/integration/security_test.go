package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/relaychat/internal/server"
	"github.com/Tyrowin/relaychat/internal/store"
	"github.com/Tyrowin/relaychat/test/testhelpers"
)

func TestDisallowedOriginIsBlocked(t *testing.T) {
	hub := server.NewHub(store.NewMemory())
	ts := testhelpers.CreateTestServer(t, hub)

	header := http.Header{}
	header.Set("Origin", "https://evil.example.com")
	conn, resp, err := websocket.DefaultDialer.Dial(testhelpers.WebSocketURL(ts.URL), header)
	if err == nil {
		_ = conn.Close()
		t.Fatal("dial with disallowed origin succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %+v, want 403", resp)
	}
}

func TestMissingOriginIsBlocked(t *testing.T) {
	hub := server.NewHub(store.NewMemory())
	ts := testhelpers.CreateTestServer(t, hub)

	conn, _, err := websocket.DefaultDialer.Dial(testhelpers.WebSocketURL(ts.URL), nil)
	if err == nil {
		_ = conn.Close()
		t.Fatal("dial without origin succeeded")
	}
}

func TestWildcardOriginAllowsAll(t *testing.T) {
	hub := server.NewHub(store.NewMemory())
	ts := testhelpers.CreateTestServer(t, hub)

	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{"*"}
	server.SetConfig(cfg)

	conn := testhelpers.ConnectWebSocket(t, testhelpers.WebSocketURL(ts.URL), "https://anywhere.example.com")
	_ = conn.Close()
}

func TestEventsBeforeLoginAreIgnored(t *testing.T) {
	mem := store.NewMemory()
	hub := server.NewHub(mem)
	ts := testhelpers.CreateTestServer(t, hub)
	testhelpers.SeedUser(t, mem, "bob", "pw", false)

	conn := testhelpers.ConnectWebSocket(t, testhelpers.WebSocketURL(ts.URL), ts.URL)

	// Unauthenticated sends and admin calls produce nothing: no message, no
	// provisioning, no error back.
	testhelpers.SendEvent(t, conn, server.EventSendMessage, map[string]any{
		"sender_id": 1, "target_id": 2, "is_group": false, "content": "sneak",
	})
	testhelpers.SendEvent(t, conn, server.EventAdminCreateGroup, map[string]string{
		"group_name": "Covert",
	})

	testhelpers.ExpectNoEvent(t, conn, 300*time.Millisecond)

	if msgs := mem.Messages(); len(msgs) != 0 {
		t.Errorf("unauthenticated send persisted %d messages", len(msgs))
	}
	groups, _ := mem.ListGroups(t.Context())
	if len(groups) != 0 {
		t.Errorf("unauthenticated admin call created %d groups", len(groups))
	}
}

func TestOversizedFrameDisconnectsClient(t *testing.T) {
	hub := server.NewHub(store.NewMemory())
	ts := testhelpers.CreateTestServer(t, hub)

	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{ts.URL}
	cfg.MaxMessageSize = 64
	server.SetConfig(cfg)

	conn := testhelpers.ConnectWebSocket(t, testhelpers.WebSocketURL(ts.URL), ts.URL)

	big := make([]byte, 512)
	for i := range big {
		big[i] = 'a'
	}
	if err := conn.WriteMessage(websocket.TextMessage, big); err != nil {
		t.Fatalf("write oversized frame: %v", err)
	}

	// The server enforces its read limit by dropping the connection.
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection stayed open after oversized frame")
	}
}
