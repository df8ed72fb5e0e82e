package core

import "strconv"

// Conn is a live client connection as seen by the core. The transport layer
// implements it; the core only triggers channel membership and never delivers
// events itself.
type Conn interface {
	// ID returns the stable identifier of this connection.
	ID() string
	// JoinChannel subscribes the connection to a broadcast channel.
	JoinChannel(channelID string) error
}

// ChatChannel returns the broadcast channel id for a chat.
func ChatChannel(chatID int64) string {
	return "chat:" + strconv.FormatInt(chatID, 10)
}
