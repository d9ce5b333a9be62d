package server

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Tyrowin/relaychat/internal/model"
	"github.com/Tyrowin/relaychat/internal/store"
)

// Session binds one live connection to an authenticated identity. It owns no
// state beyond that binding and is never persisted.
type Session struct {
	ID       uuid.UUID
	Identity model.User
}

// Hub is the sole owner of the shared connection state: the set of live
// connections, the session bound to each, and the routing table mapping an
// identity ID to its live connections. Every mutation happens under one mutex;
// deliveries are fanned out from point-in-time snapshots taken under that
// mutex so a slow connection never blocks registration or presence changes.
type Hub struct {
	directory store.Directory
	auth      *Authenticator
	router    *Router
	admin     *Admin

	mu         sync.RWMutex
	clients    map[*Client]bool
	sessions   map[*Client]*Session
	byIdentity map[int64]map[*Client]struct{}
	closing    bool

	wg sync.WaitGroup
}

// NewHub creates a hub backed by the given directory store.
func NewHub(directory store.Directory) *Hub {
	h := &Hub{
		directory:  directory,
		clients:    make(map[*Client]bool),
		sessions:   make(map[*Client]*Session),
		byIdentity: make(map[int64]map[*Client]struct{}),
	}
	h.auth = NewAuthenticator(directory)
	h.router = &Router{hub: h, directory: directory}
	h.admin = &Admin{hub: h, directory: directory}
	return h
}

// Register adds a connection to the hub. It returns false once shutdown has
// begun, in which case the caller must drop the connection.
func (h *Hub) Register(client *Client) bool {
	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		return false
	}
	client.closed = false
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	slog.Info("client registered", "addr", client.addr, "total", count)
	return true
}

// Unregister removes a connection, tears down its session binding if any, and
// broadcasts the offline transition when the identity's last live session goes
// away. Safe to call more than once per client.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	client.closed = true
	offlineID := h.detachLocked(client)
	count := len(h.clients)
	h.mu.Unlock()

	close(client.send)
	slog.Info("client unregistered", "addr", client.addr, "total", count)

	if offlineID != nil {
		h.notifyStatus(*offlineID, StatusOffline, nil)
	}
}

// BindSession associates an authenticated identity with a connection and adds
// it to the routing table. On the identity's 0->1 presence transition the
// online event is broadcast to every other connection; the returned flag
// reports whether that transition happened. A second login on the same
// connection replaces the previous binding.
func (h *Hub) BindSession(client *Client, identity model.User) (*Session, bool) {
	h.mu.Lock()
	if !h.clients[client] {
		h.mu.Unlock()
		return nil, false
	}

	offlineID := h.detachLocked(client)

	sess := &Session{ID: uuid.New(), Identity: identity}
	h.sessions[client] = sess
	conns := h.byIdentity[identity.ID]
	if conns == nil {
		conns = make(map[*Client]struct{})
		h.byIdentity[identity.ID] = conns
	}
	conns[client] = struct{}{}
	first := len(conns) == 1
	h.mu.Unlock()

	if offlineID != nil {
		h.notifyStatus(*offlineID, StatusOffline, nil)
	}
	if first {
		h.notifyStatus(identity.ID, StatusOnline, client)
	}
	return sess, first
}

// detachLocked removes the client's session binding from the routing table and
// returns the identity ID if that removal was the identity's offline
// transition. Must be called with h.mu held.
func (h *Hub) detachLocked(client *Client) *int64 {
	sess := h.sessions[client]
	if sess == nil {
		return nil
	}
	delete(h.sessions, client)
	id := sess.Identity.ID
	if conns, ok := h.byIdentity[id]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.byIdentity, id)
			return &id
		}
	}
	return nil
}

// SessionOf returns the session bound to a connection, or nil before login.
func (h *Hub) SessionOf(client *Client) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[client]
}

// OnlineIDs returns the identity IDs with at least one live session, sorted
// for stable snapshots.
func (h *Hub) OnlineIDs() []int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Sorted(maps.Keys(h.byIdentity))
}

// notifyStatus publishes a presence transition. The excluded client, if any,
// is skipped; everyone else, including the identity's own other sessions,
// receives it.
func (h *Hub) notifyStatus(identityID int64, status string, except *Client) {
	frame, err := marshalEvent(EventUserStatus, userStatusPayload{ID: identityID, Status: status})
	if err != nil {
		slog.Error("encode user_status", "err", err)
		return
	}
	h.deliver(h.snapshotExcept(except), frame)
}

// Broadcast sends a frame to every live connection.
func (h *Hub) Broadcast(frame []byte) {
	h.deliver(h.snapshotExcept(nil), frame)
}

// BroadcastExcept sends a frame to every live connection but one.
func (h *Hub) BroadcastExcept(except *Client, frame []byte) {
	h.deliver(h.snapshotExcept(except), frame)
}

// DeliverDirect sends a frame to every live session bound to the target
// identity plus the originating sender connection, each exactly once. A target
// with no live sessions is a no-op fan-out, not an error; the sender still
// gets its echo.
func (h *Hub) DeliverDirect(targetID int64, sender *Client, frame []byte) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.byIdentity[targetID])+1)
	for client := range h.byIdentity[targetID] {
		targets = append(targets, client)
	}
	if sender != nil {
		if _, ok := h.byIdentity[targetID][sender]; !ok {
			targets = append(targets, sender)
		}
	}
	h.mu.RUnlock()

	h.deliver(targets, frame)
}

// GroupRecipients resolves the live connections for a group message.
// Membership is universal today, so this is every connection; an explicit
// membership model would change only this method.
func (h *Hub) GroupRecipients(int64) []*Client {
	return h.snapshotExcept(nil)
}

func (h *Hub) snapshotExcept(except *Client) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		if client == except {
			continue
		}
		clients = append(clients, client)
	}
	return clients
}

// deliver writes a frame to each target outside the lock, evicting any client
// whose send buffer is full.
func (h *Hub) deliver(targets []*Client, frame []byte) {
	var failed []*Client
	for _, client := range targets {
		if !h.safeSend(client, frame) {
			failed = append(failed, client)
		}
	}
	for _, client := range failed {
		slog.Warn("evicting client with full send buffer", "addr", client.addr)
		h.Unregister(client)
	}
}

// safeSend queues a frame on the client's send channel. It returns false if
// the client is gone or its buffer is full. The read lock is held across the
// send so the channel cannot be closed mid-write by a concurrent unregister.
func (h *Hub) safeSend(client *Client, frame []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.clients[client]; !ok || client.closed {
		return false
	}

	select {
	case client.send <- frame:
		return true
	default:
		return false
	}
}

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown stops accepting registrations, closes every connection, and waits
// for the per-connection goroutines to drain or the timeout to pass.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.mu.Lock()
	h.closing = true
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	slog.Info("shutting down client connections", "count", len(clients))
	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				slog.Error("closing client connection", "addr", client.addr, "err", err)
			}
		}
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("hub shutdown complete")
		return nil
	case <-time.After(timeout):
		slog.Warn("hub shutdown timed out")
		return context.DeadlineExceeded
	}
}
