package core

import (
	"sync"
	"time"
)

// Chat is the cached projection of a persisted chat session. Messages are
// keyed by id for O(1) lookup and kept in insertion order for replay.
type Chat struct {
	mu sync.RWMutex

	ID        int64
	Members   []string // derived ids, in join order
	CreatedAt time.Time

	messages map[int64]*Message
	order    []int64
}

// NewChat constructs a chat with an empty message set.
func NewChat(id int64, members []string, createdAt time.Time) *Chat {
	return &Chat{
		ID:        id,
		Members:   members,
		CreatedAt: createdAt,
		messages:  make(map[int64]*Message),
	}
}

// HasMember reports whether the derived id is in the member list.
func (c *Chat) HasMember(derivedID string) bool {
	for _, m := range c.Members {
		if m == derivedID {
			return true
		}
	}
	return false
}

// Message returns the cached message by id, nil if absent.
func (c *Chat) Message(id int64) *Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.messages[id]
}

// AddMessage inserts a message keyed by its id.
func (c *Chat) AddMessage(m *Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.messages[m.ID]; !exists {
		c.order = append(c.order, m.ID)
	}
	c.messages[m.ID] = m
}

// RemoveMessage deletes a message if present. Deleting an absent id is a no-op.
func (c *Chat) RemoveMessage(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.messages[id]; !exists {
		return
	}
	delete(c.messages, id)
	for i, mid := range c.order {
		if mid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// SetMessageText updates the text of a cached message in place.
func (c *Chat) SetMessageText(id int64, text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.messages[id]
	if !ok {
		return false
	}
	m.Text = text
	return true
}

// MessageIDs returns the message ids in insertion order.
func (c *Chat) MessageIDs() []int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]int64, len(c.order))
	copy(out, c.order)
	return out
}

// MessagesInOrder returns the messages for ordered replay.
func (c *Chat) MessagesInOrder() []*Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Message, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.messages[id])
	}
	return out
}

// MessageCount returns the number of cached messages.
func (c *Chat) MessageCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}
