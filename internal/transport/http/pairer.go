package http

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/pairchat-server/internal/core"
	"github.com/vovakirdan/pairchat-server/internal/proto"
)

// Pairer periodically drains the waiting pool: it picks random pairs,
// materialises a chat for each and announces the match plus an opening room
// notification to the chat channel.
type Pairer struct {
	svc      *core.Service
	channels *ChannelHub
	interval time.Duration
	log      *zerolog.Logger
}

// NewPairer builds a pairing loop with the given tick interval.
func NewPairer(svc *core.Service, channels *ChannelHub, interval time.Duration, logger *zerolog.Logger) *Pairer {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Pairer{svc: svc, channels: channels, interval: interval, log: logger}
}

// Run blocks until the context is cancelled.
func (p *Pairer) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drain(ctx)
		}
	}
}

// drain pairs users until fewer than two are waiting.
func (p *Pairer) drain(ctx context.Context) {
	for p.svc.WaitingCount() >= 2 {
		users, err := p.svc.PickRandomPair()
		if err != nil {
			// A concurrent claim can empty the pool between the count
			// check and the pick; just wait for the next tick.
			if !errors.Is(err, core.ErrPrecondition) {
				p.log.Error().Err(err).Msg("pick pair failed")
			}
			return
		}

		chat, err := p.svc.CreateChat(ctx, users)
		if err != nil {
			p.log.Error().Err(err).Msg("create chat failed, requeueing pair")
			for _, u := range users {
				p.svc.RequeueWaiting(u)
			}
			return
		}
		p.announce(ctx, chat)
	}
}

// announce broadcasts the match and persists the opening room notification.
func (p *Pairer) announce(ctx context.Context, chat *core.Chat) {
	channel := core.ChatChannel(chat.ID)
	p.channels.Broadcast(channel, proto.Outbound{
		Type:  proto.OutboundTypeEvent,
		Event: proto.EventMatched,
		Data:  proto.MatchedData{Chat: chat.ID, Members: chat.Members},
	})

	note, err := p.svc.AddMessage(ctx, chat.ID, core.MessageInput{
		Text:     "You are now connected to a partner.",
		Time:     time.Now(),
		SenderID: chat.Members[0],
		Kind:     core.KindRoomNotification,
	})
	if err != nil {
		p.log.Warn().Err(err).Int64("chat", chat.ID).Msg("room notification failed")
		return
	}
	p.channels.Broadcast(channel, proto.Outbound{
		Type:  proto.OutboundTypeEvent,
		Event: proto.EventMessage,
		Data: proto.MessageData{
			ID:   note.ID,
			Chat: chat.ID,
			From: note.SenderID,
			Text: note.Text,
			Kind: string(note.Kind),
			TS:   note.Time.Unix(),
		},
	})
}
