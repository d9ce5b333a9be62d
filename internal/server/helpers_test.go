package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/Tyrowin/relaychat/internal/model"
	"github.com/Tyrowin/relaychat/internal/store"
)

func newTestHub(t *testing.T) (*Hub, *store.Memory) {
	t.Helper()
	SetConfig(nil)
	mem := store.NewMemory()
	return NewHub(mem), mem
}

// newTestClient registers a connectionless client whose outbound frames are
// read straight off its send channel.
func newTestClient(t *testing.T, h *Hub, addr string) *Client {
	t.Helper()
	c := NewClient(nil, h, addr)
	if !h.Register(c) {
		t.Fatalf("Register(%s) refused", addr)
	}
	return c
}

// nextEvent pops the next queued frame for the client, failing the test if
// none arrives in time.
func nextEvent(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case frame, ok := <-c.send:
		if !ok {
			t.Fatal("send channel closed")
		}
		var env Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			t.Fatalf("bad frame %s: %v", frame, err)
		}
		return env
	case <-time.After(200 * time.Millisecond):
		t.Fatal("no event queued")
		return Envelope{}
	}
}

// expectEvent asserts the next queued frame's event name and decodes its data
// into out (which may be nil).
func expectEvent(t *testing.T, c *Client, event string, out any) {
	t.Helper()
	env := nextEvent(t, c)
	if env.Event != event {
		t.Fatalf("got event %q, want %q (data: %s)", env.Event, event, env.Data)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			t.Fatalf("decode %s data: %v", event, err)
		}
	}
}

// expectNoEvent asserts nothing is queued for the client.
func expectNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case frame, ok := <-c.send:
		if ok {
			t.Fatalf("unexpected event queued: %s", frame)
		}
	default:
	}
}

func drainEvents(c *Client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

func testUser(id int64, name string, admin bool) model.User {
	return model.User{ID: id, Username: name, ColorTag: "#101010", IsAdmin: admin}
}
