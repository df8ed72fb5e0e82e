package http

import (
	"sync"

	"github.com/vovakirdan/pairchat-server/internal/proto"
)

// ChannelHub groups live connections into named broadcast channels. The core
// triggers membership through core.Conn.JoinChannel; delivery stays entirely
// on this side of the boundary.
type ChannelHub struct {
	mu       sync.RWMutex
	channels map[string]map[*WSClient]struct{}
}

// NewChannelHub constructs an empty hub.
func NewChannelHub() *ChannelHub {
	return &ChannelHub{channels: make(map[string]map[*WSClient]struct{})}
}

// Join subscribes a client to a channel.
func (h *ChannelHub) Join(channelID string, c *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.channels[channelID]
	if !ok {
		set = make(map[*WSClient]struct{})
		h.channels[channelID] = set
	}
	set[c] = struct{}{}
}

// Drop removes a channel and all its memberships.
func (h *ChannelHub) Drop(channelID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.channels, channelID)
}

// LeaveAll removes a client from every channel.
func (h *ChannelHub) LeaveAll(c *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, set := range h.channels {
		delete(set, c)
		if len(set) == 0 {
			delete(h.channels, id)
		}
	}
}

// Broadcast sends an outbound frame to every client in the channel.
func (h *ChannelHub) Broadcast(channelID string, out proto.Outbound) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.channels[channelID] {
		c.Send(out)
	}
}
