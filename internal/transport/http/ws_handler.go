package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/pairchat-server/internal/auth"
	"github.com/vovakirdan/pairchat-server/internal/core"
	"github.com/vovakirdan/pairchat-server/internal/proto"
)

// WSHandler upgrades HTTP connections and bridges them to the core service.
type WSHandler struct {
	svc      *core.Service
	authSvc  *auth.Service
	channels *ChannelHub
	msgLimit int
	log      *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler. msgLimit caps mutating frames
// per connection per minute; zero disables the cap.
func NewWSHandler(svc *core.Service, authSvc *auth.Service, channels *ChannelHub, msgLimit int, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{svc: svc, authSvc: authSvc, channels: channels, msgLimit: msgLimit, log: logger}
}

// Handle is the gin endpoint for GET /ws. The token comes from the "token"
// query parameter because browsers cannot set headers on WebSocket upgrades.
func (h *WSHandler) Handle(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(stdhttp.StatusUnauthorized, ErrorResponse{Error: "missing token"})
		return
	}
	claims, err := h.authSvc.ValidateToken(token)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws token rejected")
		c.JSON(stdhttp.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	client := NewWSClient(h.channels, h.log)
	h.attach(client, claims)
	defer h.teardown(client)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	limiter := newRateLimiter(h.msgLimit)
	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client, claims, limiter)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// attach links the connection to an existing waiting or active user for this
// identity, rejoining chat channels when the user is active. New identities
// stay unlinked until they send a search command.
func (h *WSHandler) attach(client *WSClient, claims *auth.Claims) {
	derived := derivedIDFromClaims(claims)

	if u := h.svc.WaitingUser(derived); u != nil {
		h.svc.AttachConn(u, client)
		client.user = u
		return
	}
	u, err := h.svc.FindActiveUser(core.ActiveQuery{LoginID: claims.LoginID, Email: claims.Email})
	if err != nil {
		return
	}
	h.svc.AttachConn(u, client)
	client.user = u
	for _, chatID := range u.ChatIDs() {
		h.channels.Join(core.ChatChannel(chatID), client)
	}
}

// teardown runs when the connection drops: the connection leaves all
// channels and its user; a waiting user with no connections left leaves the
// waiting list, and an active user's chats close when the last connection is
// gone, notifying the partners.
func (h *WSHandler) teardown(client *WSClient) {
	h.channels.LeaveAll(client)
	u := client.user
	if u == nil {
		return
	}
	derived := u.EmailOrLoginID()
	if h.svc.DetachConn(u, client.id) > 0 {
		return
	}

	if h.svc.WaitingUser(derived) != nil {
		h.svc.RemoveFromWaitingList(derived)
		return
	}
	if !h.svc.IsUserActive(derived) {
		return
	}
	ctx := context.Background()
	for _, chatID := range u.ChatIDs() {
		channel := core.ChatChannel(chatID)
		h.channels.Broadcast(channel, proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventPartnerLeft,
			Data:  proto.PartnerLeftData{Chat: chatID, User: derived},
		})
		if _, err := h.svc.CloseChat(ctx, chatID); err != nil {
			h.log.Error().Err(err).Int64("chat", chatID).Msg("close chat on disconnect failed")
			continue
		}
		h.channels.Broadcast(channel, proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventChatClosed,
			Data:  proto.ChatClosedData{Chat: chatID},
		})
		h.channels.Drop(channel)
	}
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *WSClient, claims *auth.Claims, limiter *rateLimiter) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}
		if mutates(inbound.Type) && !limiter.allow() {
			h.sendError(client, &core.CoreError{Code: "rate_limited", Message: "too many messages, slow down"})
			continue
		}
		if err := h.dispatch(ctx, client, claims, inbound); err != nil {
			h.sendError(client, err)
		}
	}
}

// mutates reports whether an inbound frame type writes chat state and so
// counts against the per-connection rate limit.
func mutates(inboundType string) bool {
	switch inboundType {
	case proto.InboundTypeMsg, proto.InboundTypeEdit, proto.InboundTypeDelete:
		return true
	}
	return false
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *WSClient) error {
	for {
		select {
		case out, ok := <-client.send:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, out); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) dispatch(ctx context.Context, client *WSClient, claims *auth.Claims, inbound proto.Inbound) error {
	derived := derivedIDFromClaims(claims)

	switch inbound.Type {
	case proto.InboundTypeSearch:
		u, err := h.svc.AddToWaitingList(claims.LoginID, claims.Email, claims.UserID, client)
		if err != nil {
			return err
		}
		client.user = u
		client.Send(proto.Outbound{Type: proto.OutboundTypeEvent, Event: proto.EventSearching})
		return nil

	case proto.InboundTypeCancel:
		if !h.svc.RemoveFromWaitingList(derived) {
			return &core.CoreError{Code: core.ErrCodeNotFound, Message: "not waiting", Err: core.ErrNotFound}
		}
		return nil

	case proto.InboundTypeMsg:
		var data proto.MsgData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return err
		}
		chatID, err := h.resolveChat(derived, data.Chat)
		if err != nil {
			return err
		}
		msg, err := h.svc.AddMessage(ctx, chatID, core.MessageInput{
			Text:     data.Text,
			Time:     time.Now(),
			SenderID: derived,
		})
		if err != nil {
			return err
		}
		h.channels.Broadcast(core.ChatChannel(chatID), proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventMessage,
			Data: proto.MessageData{
				ID:   msg.ID,
				Chat: chatID,
				From: msg.SenderID,
				Text: msg.Text,
				Kind: string(msg.Kind),
				TS:   msg.Time.Unix(),
			},
		})
		return nil

	case proto.InboundTypeEdit:
		var data proto.EditData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return err
		}
		chatID, err := h.resolveChat(derived, data.Chat)
		if err != nil {
			return err
		}
		if err := h.svc.EditMessage(ctx, chatID, data.ID, data.Text); err != nil {
			return err
		}
		h.channels.Broadcast(core.ChatChannel(chatID), proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventMessageEdited,
			Data:  proto.MessageEditedData{ID: data.ID, Chat: chatID, Text: data.Text},
		})
		return nil

	case proto.InboundTypeDelete:
		var data proto.DeleteData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return err
		}
		chatID, err := h.resolveChat(derived, data.Chat)
		if err != nil {
			return err
		}
		if err := h.svc.RemoveMessage(ctx, chatID, data.ID); err != nil {
			return err
		}
		h.channels.Broadcast(core.ChatChannel(chatID), proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventMessageDeleted,
			Data:  proto.MessageDeletedData{ID: data.ID, Chat: chatID},
		})
		return nil

	case proto.InboundTypeLeave:
		var data proto.LeaveData
		if len(inbound.Data) > 0 {
			if err := json.Unmarshal(inbound.Data, &data); err != nil {
				return err
			}
		}
		chatID, err := h.resolveChat(derived, data.Chat)
		if err != nil {
			return err
		}
		channel := core.ChatChannel(chatID)
		if _, err := h.svc.CloseChat(ctx, chatID); err != nil {
			return err
		}
		h.channels.Broadcast(channel, proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventChatClosed,
			Data:  proto.ChatClosedData{Chat: chatID},
		})
		h.channels.Drop(channel)
		return nil

	default:
		return &core.CoreError{Code: "bad_request", Message: "unknown inbound type " + inbound.Type}
	}
}

// resolveChat picks the explicit chat id or falls back to the user's current
// chat.
func (h *WSHandler) resolveChat(derived string, explicit int64) (int64, error) {
	if explicit != 0 {
		return explicit, nil
	}
	u, err := h.svc.FindActiveUser(core.ActiveQuery{LoginID: derived, Email: derived})
	if err != nil {
		return 0, err
	}
	if id := u.CurrentChatID(); id != 0 {
		return id, nil
	}
	return 0, &core.CoreError{Code: core.ErrCodeNotFound, Message: "no current chat", Err: core.ErrNotFound}
}

func (h *WSHandler) sendError(client *WSClient, err error) {
	out := proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "error", Msg: err.Error()}}
	var ce *core.CoreError
	if errors.As(err, &ce) {
		out.Error.Code = ce.Code
	}
	client.Send(out)
}

func derivedIDFromClaims(claims *auth.Claims) string {
	if claims.Email != "" {
		return claims.Email
	}
	return claims.LoginID
}
