package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/Tyrowin/relaychat/internal/model"
	"github.com/Tyrowin/relaychat/internal/store"
)

// Router persists outgoing messages and delivers them to the right set of
// live connections: every connection for a group message, the target
// identity's sessions plus the sender's echo for a direct one.
type Router struct {
	hub       *Hub
	directory store.Directory
}

// Route handles one send_message request from a connection. The message is
// inserted before any delivery is attempted so clients never see a message
// that would vanish on reload; a persistence failure is surfaced to the
// sender only. Route runs on the connection's read goroutine, which keeps
// per-sender ordering intact.
func (r *Router) Route(sender *Client, req sendMessageRequest) {
	sess := r.hub.SessionOf(sender)
	if sess == nil {
		slog.Warn("send_message from unauthenticated connection", "addr", sender.addr)
		return
	}
	if req.SenderID != sess.Identity.ID {
		slog.Warn("send_message sender mismatch",
			"addr", sender.addr, "claimed", req.SenderID, "bound", sess.Identity.ID)
		return
	}
	if err := model.ValidateContent(req.Content); err != nil {
		slog.Warn("send_message rejected", "addr", sender.addr, "err", err)
		return
	}

	msg := model.NewMessage(sess.Identity.ID, req.TargetID, req.IsGroup, req.Content, time.Now())
	if err := r.directory.InsertMessage(context.Background(), &msg); err != nil {
		slog.Error("persist message", "addr", sender.addr, "sender_id", msg.SenderID, "err", err)
		sender.sendEvent(EventNotification, "Error: Message could not be delivered.")
		return
	}

	frame, err := marshalEvent(EventReceiveMessage, newMessagePayload(msg))
	if err != nil {
		slog.Error("encode receive_message", "err", err)
		return
	}

	if msg.IsGroup {
		r.hub.deliver(r.hub.GroupRecipients(msg.TargetID), frame)
	} else {
		r.hub.DeliverDirect(msg.TargetID, sender, frame)
	}
}
