package http

import (
	"github.com/rs/zerolog"

	"github.com/vovakirdan/pairchat-server/internal/core"
	"github.com/vovakirdan/pairchat-server/internal/proto"
	"github.com/vovakirdan/pairchat-server/internal/utils"
)

// WSClient is one live WebSocket connection. It implements core.Conn, so the
// core can subscribe it to chat channels at chat creation.
type WSClient struct {
	id  string
	hub *ChannelHub
	log *zerolog.Logger

	// user is the core user this connection currently belongs to,
	// nil until the client starts searching or is recognised at connect.
	user *core.User

	send chan proto.Outbound
}

// NewWSClient builds a client with a buffered outbound queue.
func NewWSClient(hub *ChannelHub, logger *zerolog.Logger) *WSClient {
	return &WSClient{
		id:   utils.NewID(),
		hub:  hub,
		log:  logger,
		send: make(chan proto.Outbound, 16),
	}
}

// ID returns the stable identifier of this connection.
func (c *WSClient) ID() string {
	return c.id
}

// JoinChannel subscribes the connection to a broadcast channel.
func (c *WSClient) JoinChannel(channelID string) error {
	c.hub.Join(channelID, c)
	return nil
}

// Send queues an outbound frame, dropping it if the consumer is slow.
func (c *WSClient) Send(out proto.Outbound) {
	select {
	case c.send <- out:
	default:
		c.log.Warn().Str("conn", c.id).Str("type", out.Type).Msg("dropping frame for slow consumer")
	}
}
