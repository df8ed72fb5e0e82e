package core

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/pairchat-server/internal/store"
)

// MessageManager creates, edits and deletes messages within a chat,
// reconciling store and cache. Store failures never commit partial cache
// state: the cache write happens only after every store write succeeded.
type MessageManager struct {
	cache    *Cache
	registry *Registry
	store    store.Store
	locks    *keyLock
	log      *zerolog.Logger
}

// NewMessageManager builds a message lifecycle manager.
func NewMessageManager(cache *Cache, registry *Registry, st store.Store, locks *keyLock, logger *zerolog.Logger) *MessageManager {
	return &MessageManager{cache: cache, registry: registry, store: st, locks: locks, log: logger}
}

// AddMessage persists a message from an active sender into a cached chat and
// inserts it into the chat's message map. The sender and chat are checked
// under the chat key lock, before any store write, so a concurrent CloseChat
// that wins the lock is observed here and no record is written for a dead
// chat. An inactive sender or uncached chat is an ordinary not-found result,
// not an exceptional path. Returns the cached projection.
func (m *MessageManager) AddMessage(ctx context.Context, chatID int64, in MessageInput) (*Message, error) {
	key := chatKey(chatID)
	m.locks.Lock(key)
	defer m.locks.Unlock(key)

	sender := m.cache.Active(in.SenderID)
	if sender == nil {
		return nil, notFound("sender")
	}
	chat := m.cache.Chat(chatID)
	if chat == nil {
		return nil, notFound("chat")
	}

	kind := in.Kind
	if kind == "" {
		kind = KindMessage
	}

	rec, err := m.store.CreateMessage(ctx, store.MessageData{
		SenderID:  sender.StoreID,
		Text:      in.Text,
		Kind:      string(kind),
		CreatedAt: in.Time,
	})
	if err != nil {
		return nil, storageError("create message", err)
	}
	if err := m.store.AppendMessageRef(ctx, chatID, rec.ID); err != nil {
		// The record exists but was never attached; drop it so the store
		// does not accumulate orphans, then report the failure.
		if delErr := m.store.DeleteMessage(ctx, rec.ID); delErr != nil {
			m.log.Error().Err(delErr).Int64("message", rec.ID).Msg("orphan message cleanup failed")
		}
		return nil, storageError("append message ref", err)
	}

	msg := &Message{
		ID:       rec.ID,
		Text:     rec.Text,
		SenderID: sender.EmailOrLoginID(),
		Time:     rec.CreatedAt,
		Kind:     kind,
	}
	chat.AddMessage(msg)
	return msg, nil
}

// RemoveMessage deletes a message from the store and then from the chat's
// cache map. A store failure leaves the cache untouched. Removing an id that
// is already absent from the cache succeeds: the cache delete is
// delete-if-present, so a second RemoveMessage on the same id is idempotent.
func (m *MessageManager) RemoveMessage(ctx context.Context, chatID, messageID int64) error {
	key := chatKey(chatID)
	m.locks.Lock(key)
	defer m.locks.Unlock(key)

	chat := m.cache.Chat(chatID)
	if chat == nil {
		return notFound("chat")
	}

	if err := m.store.DeleteMessage(ctx, messageID); err != nil {
		return storageError("delete message", err)
	}
	chat.RemoveMessage(messageID)
	return nil
}

// EditMessage replaces a message's text in the store and, on success, in the
// cached message in place. A store failure leaves the cache untouched.
func (m *MessageManager) EditMessage(ctx context.Context, chatID, messageID int64, text string) error {
	key := chatKey(chatID)
	m.locks.Lock(key)
	defer m.locks.Unlock(key)

	chat := m.cache.Chat(chatID)
	if chat == nil {
		return notFound("chat")
	}
	if chat.Message(messageID) == nil {
		return notFound("message")
	}

	if err := m.store.UpdateMessageText(ctx, messageID, text); err != nil {
		return storageError("update message text", err)
	}
	chat.SetMessageText(messageID, text)
	return nil
}
