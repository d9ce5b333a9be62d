package server

import (
	"encoding/json"
	"fmt"

	"github.com/Tyrowin/relaychat/internal/model"
)

// Inbound event names accepted from connections.
const (
	EventLogin            = "login"
	EventSendMessage      = "send_message"
	EventAdminCreateUser  = "admin_create_user"
	EventAdminCreateGroup = "admin_create_group"
)

// Outbound event names published to connections.
const (
	EventLoginSuccess   = "login_success"
	EventLoginError     = "login_error"
	EventInitData       = "init_data"
	EventUserStatus     = "user_status"
	EventReceiveMessage = "receive_message"
	EventRefreshData    = "refresh_data"
	EventNotification   = "notification"
)

// Presence transition values carried by user_status events.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Envelope is the wire frame for every event in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sendMessageRequest struct {
	SenderID int64  `json:"sender_id"`
	TargetID int64  `json:"target_id"`
	IsGroup  bool   `json:"is_group"`
	Content  string `json:"content"`
}

type createUserRequest struct {
	Username string `json:"new_username"`
	Password string `json:"new_password"`
}

type createGroupRequest struct {
	Name string `json:"group_name"`
}

// profilePayload is the personalized login_success body.
type profilePayload struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Color    string `json:"color"`
	IsAdmin  bool   `json:"isAdmin"`
}

// initDataPayload is the directory snapshot sent once after login.
type initDataPayload struct {
	Users     []model.RosterEntry `json:"users"`
	Groups    []model.Group       `json:"groups"`
	OnlineIDs []int64             `json:"online_ids"`
}

// refreshDataPayload is the full-state roster broadcast after provisioning.
type refreshDataPayload struct {
	Users  []model.RosterEntry `json:"users"`
	Groups []model.Group       `json:"groups"`
}

type userStatusPayload struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

// messagePayload is the receive_message body. Exactly one of ReceiverID or
// GroupID is set, keyed off IsGroup.
type messagePayload struct {
	ID         int64  `json:"id"`
	SenderID   int64  `json:"sender_id"`
	ReceiverID int64  `json:"receiver_id,omitempty"`
	GroupID    int64  `json:"group_id,omitempty"`
	IsGroup    bool   `json:"is_group"`
	Content    string `json:"content"`
	Timestamp  string `json:"timestamp"`
	Status     string `json:"status"`
}

func newMessagePayload(m model.Message) messagePayload {
	p := messagePayload{
		ID:        m.ID,
		SenderID:  m.SenderID,
		IsGroup:   m.IsGroup,
		Content:   m.Content,
		Timestamp: m.Timestamp,
		Status:    m.Status,
	}
	if m.IsGroup {
		p.GroupID = m.TargetID
	} else {
		p.ReceiverID = m.TargetID
	}
	return p
}

// marshalEvent frames data in an Envelope ready to put on the wire.
func marshalEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s data: %w", event, err)
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", event, err)
	}
	return frame, nil
}

// nonNilGroups keeps an empty group list marshaling as [] rather than null.
func nonNilGroups(groups []model.Group) []model.Group {
	if groups == nil {
		return []model.Group{}
	}
	return groups
}

func rosterOf(users []model.User) []model.RosterEntry {
	roster := make([]model.RosterEntry, 0, len(users))
	for _, u := range users {
		roster = append(roster, u.Roster())
	}
	return roster
}
