package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeSearch = "search"
	InboundTypeCancel = "cancel"
	InboundTypeMsg    = "msg"
	InboundTypeEdit   = "edit"
	InboundTypeDelete = "delete"
	InboundTypeLeave  = "leave"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventMatched        = "matched"
	EventMessage        = "message"
	EventMessageEdited  = "message_edited"
	EventMessageDeleted = "message_deleted"
	EventChatClosed     = "chat_closed"
	EventPartnerLeft    = "partner_left"
	EventSearching      = "searching"
)

// MsgData is a chat message from the client. Chat defaults to the user's
// current chat when zero.
type MsgData struct {
	Chat int64  `json:"chat,omitempty"`
	Text string `json:"text"`
}

// EditData requests a text replacement on an existing message.
type EditData struct {
	Chat int64  `json:"chat,omitempty"`
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// DeleteData requests removal of an existing message.
type DeleteData struct {
	Chat int64 `json:"chat,omitempty"`
	ID   int64 `json:"id"`
}

// LeaveData requests closing a chat. Chat defaults to the current chat.
type LeaveData struct {
	Chat int64 `json:"chat,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// MatchedData announces a freshly created chat to its members.
type MatchedData struct {
	Chat    int64    `json:"chat"`
	Members []string `json:"members"`
}

// MessageData describes a message event.
type MessageData struct {
	ID   int64  `json:"id"`
	Chat int64  `json:"chat"`
	From string `json:"from"`
	Text string `json:"text"`
	Kind string `json:"kind"`
	TS   int64  `json:"ts"`
}

// MessageEditedData describes an edit event.
type MessageEditedData struct {
	ID   int64  `json:"id"`
	Chat int64  `json:"chat"`
	Text string `json:"text"`
}

// MessageDeletedData describes a deletion event.
type MessageDeletedData struct {
	ID   int64 `json:"id"`
	Chat int64 `json:"chat"`
}

// ChatClosedData announces a chat teardown.
type ChatClosedData struct {
	Chat int64 `json:"chat"`
}

// PartnerLeftData announces that a member's last connection dropped.
type PartnerLeftData struct {
	Chat int64  `json:"chat"`
	User string `json:"user"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
