package store

import (
	"context"
	"errors"
	"time"
)

// ErrNoRows is returned when a lookup matches no record.
var ErrNoRows = errors.New("store: no rows")

// User is a persisted chat participant. Guests are persisted lazily at
// pairing time; registered users are persisted at registration and carry a
// password hash.
type User struct {
	ID           int64
	LoginID      string
	Email        string // empty when the user never supplied one
	PasswordHash string // empty for guests
	CreatedAt    time.Time
}

// UserView is the canonical client-safe projection of a User. It is the only
// form in which a user record enters the cache or leaves the API.
type UserView struct {
	ID      int64
	LoginID string
	Email   string
}

// View returns the canonical projection, stripping credentials.
func (u *User) View() UserView {
	return UserView{ID: u.ID, LoginID: u.LoginID, Email: u.Email}
}

// UserData carries the fields for creating a user record.
type UserData struct {
	LoginID      string
	Email        string
	PasswordHash string
}

// UserFilter narrows FindUsers. Zero-valued fields do not filter.
type UserFilter struct {
	IDs     []int64
	LoginID string
	Email   string
}

// Chat is a persisted chat session.
type Chat struct {
	ID        int64
	CreatedAt time.Time

	// Members and Messages are populated by FindChats, in join order and
	// append order respectively.
	Members  []*User
	Messages []*Message
}

// ChatView is the canonical projection of a Chat.
type ChatView struct {
	ID        int64
	CreatedAt time.Time
	MemberIDs []int64
}

// View returns the canonical projection.
func (c *Chat) View() ChatView {
	ids := make([]int64, 0, len(c.Members))
	for _, m := range c.Members {
		ids = append(ids, m.ID)
	}
	return ChatView{ID: c.ID, CreatedAt: c.CreatedAt, MemberIDs: ids}
}

// ChatData carries the fields for creating a chat record.
type ChatData struct {
	MemberIDs []int64 // store ids, in join order
	CreatedAt time.Time
}

// ChatFilter narrows FindChats. Zero-valued fields do not filter.
type ChatFilter struct {
	IDs      []int64
	MemberID int64
}

// Message is a persisted chat message. ChatID is zero until the message is
// attached to its chat via AppendMessageRef.
type Message struct {
	ID        int64
	ChatID    int64
	SenderID  int64
	Text      string
	Kind      string
	CreatedAt time.Time
}

// MessageView is the canonical projection of a Message.
type MessageView struct {
	ID        int64
	SenderID  int64
	Text      string
	Kind      string
	CreatedAt time.Time
}

// View returns the canonical projection.
func (m *Message) View() MessageView {
	return MessageView{ID: m.ID, SenderID: m.SenderID, Text: m.Text, Kind: m.Kind, CreatedAt: m.CreatedAt}
}

// MessageData carries the fields for creating a message record.
type MessageData struct {
	SenderID  int64
	Text      string
	Kind      string
	CreatedAt time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// FindUsers returns users matching the filter; an empty filter matches all.
	FindUsers(ctx context.Context, filter UserFilter) ([]*User, error)

	// CreateUser creates a new user record.
	CreateUser(ctx context.Context, data UserData) (*User, error)

	// DeleteUser removes a user record by id.
	DeleteUser(ctx context.Context, id int64) error
}

// ChatStore handles chat persistence.
type ChatStore interface {
	// FindChats returns chats matching the filter with members and messages
	// populated; an empty filter matches all.
	FindChats(ctx context.Context, filter ChatFilter) ([]*Chat, error)

	// CreateChat creates a new chat record with the given member ids.
	CreateChat(ctx context.Context, data ChatData) (*Chat, error)

	// DeleteChat removes a chat record and its membership rows.
	DeleteChat(ctx context.Context, id int64) error

	// AppendMessageRef attaches a created message to a chat.
	AppendMessageRef(ctx context.Context, chatID, messageID int64) error

	// ChatIDsForUser returns the ids of the chats a user belongs to, in
	// join order.
	ChatIDsForUser(ctx context.Context, userID int64) ([]int64, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// CreateMessage creates a new message record, not yet attached to a chat.
	CreateMessage(ctx context.Context, data MessageData) (*Message, error)

	// UpdateMessageText replaces the text of a message.
	UpdateMessageText(ctx context.Context, id int64, text string) error

	// DeleteMessage removes a message record.
	DeleteMessage(ctx context.Context, id int64) error

	// DeleteMessages removes a batch of message records.
	DeleteMessages(ctx context.Context, ids []int64) error
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ChatStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
