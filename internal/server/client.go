package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second
	sendBuffer   = 256
)

// Client is one live connection. It owns the read and write pumps for its
// WebSocket and dispatches inbound events into the hub's components. Its
// session binding, if any, lives in the hub's routing table, not here.
type Client struct {
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	addr           string
	closed         bool
	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
}

// NewClient wraps a WebSocket connection for hub management. The send channel
// is buffered so a burst of broadcasts does not immediately evict the client.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		conn:           conn,
		send:           make(chan []byte, sendBuffer),
		hub:            hub,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:      cfg.RateLimit,
	}
}

// StartPumps launches the read and write goroutines for a registered client.
func (c *Client) StartPumps() {
	c.hub.wg.Add(2)
	go func() {
		defer c.hub.wg.Done()
		c.writePump()
	}()
	go func() {
		defer c.hub.wg.Done()
		c.readPump()
	}()
}

// sendEvent frames and queues an event for this client only.
func (c *Client) sendEvent(event string, data any) {
	frame, err := marshalEvent(event, data)
	if err != nil {
		slog.Error("encode event", "event", event, "addr", c.addr, "err", err)
		return
	}
	c.hub.safeSend(c, frame)
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		slog.Error("set read deadline", "addr", c.addr, "err", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// handleReadError logs the read failure appropriately and always ends the
// read loop.
func (c *Client) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		slog.Warn("message exceeded read limit", "addr", c.addr, "limit", c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		slog.Info("client disconnected", "addr", c.addr)
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		slog.Info("client connection closed", "addr", c.addr)
	default:
		slog.Error("websocket read error", "addr", c.addr, "err", err)
	}
}

// dispatch routes one inbound frame to its handler. Malformed frames and
// unknown events are logged and dropped; they never terminate the connection.
func (c *Client) dispatch(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		slog.Warn("invalid frame", "addr", c.addr, "err", err)
		return
	}

	switch env.Event {
	case EventLogin:
		var req loginRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			slog.Warn("invalid login payload", "addr", c.addr, "err", err)
			return
		}
		c.handleLogin(req)
	case EventSendMessage:
		var req sendMessageRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			slog.Warn("invalid send_message payload", "addr", c.addr, "err", err)
			return
		}
		c.hub.router.Route(c, req)
	case EventAdminCreateUser:
		var req createUserRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			slog.Warn("invalid admin_create_user payload", "addr", c.addr, "err", err)
			return
		}
		c.hub.admin.CreateUser(c, req)
	case EventAdminCreateGroup:
		var req createGroupRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			slog.Warn("invalid admin_create_group payload", "addr", c.addr, "err", err)
			return
		}
		c.hub.admin.CreateGroup(c, req)
	default:
		slog.Warn("unknown event", "addr", c.addr, "event", env.Event)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			slog.Error("closing connection in read pump", "addr", c.addr, "err", err)
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		if c.rateLimiter != nil && !c.rateLimiter.allow() {
			slog.Warn("rate limit exceeded, discarding frame",
				"addr", c.addr, "burst", c.rateLimit.Burst, "interval", c.rateLimit.RefillInterval)
			continue
		}

		c.dispatch(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			slog.Error("closing connection in write pump", "addr", c.addr, "err", err)
		}
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				slog.Error("set write deadline", "addr", c.addr, "err", err)
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if !c.writeFrame(frame) {
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeFrame writes one frame plus anything already queued behind it, each as
// its own WebSocket message so clients parse one JSON document per frame.
func (c *Client) writeFrame(frame []byte) bool {
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		if !isExpectedCloseError(err) {
			slog.Error("write frame", "addr", c.addr, "err", err)
		}
		return false
	}

	n := len(c.send)
	for i := 0; i < n; i++ {
		queued, ok := <-c.send
		if !ok {
			return false
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, queued); err != nil {
			if !isExpectedCloseError(err) {
				slog.Error("write queued frame", "addr", c.addr, "err", err)
			}
			return false
		}
	}
	return true
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
