package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const MaxContentLength = 2000

var ErrContentEmpty = errors.New("message content cannot be empty")
var ErrContentTooLong = fmt.Errorf("message content exceeds %d characters", MaxContentLength)

// StatusSent is the only delivery status the relay records today. The column
// exists so a future read-receipt feature only adds values, not schema.
const StatusSent = "sent"

// timestampLayout renders the hour without a leading zero plus an AM/PM
// marker, matching what clients display next to each message.
const timestampLayout = "3:04 PM"

// Message is a persisted chat message. ID is assigned by the store on insert
// and must be known before the message is fanned out. SentAt is the sortable
// record of when the insert happened; Timestamp is the display string derived
// from it and is what goes over the wire.
type Message struct {
	ID        int64
	SenderID  int64
	TargetID  int64
	IsGroup   bool
	Content   string
	Status    string
	SentAt    time.Time
	Timestamp string
}

// NewMessage builds an unpersisted message stamped with now.
func NewMessage(senderID, targetID int64, isGroup bool, content string, now time.Time) Message {
	return Message{
		SenderID:  senderID,
		TargetID:  targetID,
		IsGroup:   isGroup,
		Content:   content,
		Status:    StatusSent,
		SentAt:    now,
		Timestamp: FormatTimestamp(now),
	}
}

// FormatTimestamp renders the short time-of-day display string for t.
func FormatTimestamp(t time.Time) string {
	return t.Format(timestampLayout)
}

// ValidateContent rejects blank or oversized message bodies.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrContentEmpty
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return ErrContentTooLong
	}
	return nil
}
