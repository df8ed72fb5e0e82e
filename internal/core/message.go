package core

import "time"

// MessageKind distinguishes user messages from room notifications.
type MessageKind string

const (
	KindMessage          MessageKind = "message"
	KindRoomNotification MessageKind = "room_notification"
)

// Message is the cached projection of a persisted message.
type Message struct {
	ID       int64
	Text     string
	SenderID string // derived id of the sender
	Time     time.Time
	Kind     MessageKind
}

// MessageInput carries the caller-supplied fields for a new message.
// Kind defaults to KindMessage when empty.
type MessageInput struct {
	Text     string
	Time     time.Time
	SenderID string
	Kind     MessageKind
}
