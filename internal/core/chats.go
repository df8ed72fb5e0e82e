package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/pairchat-server/internal/store"
)

// ChatManager creates and closes chat sessions, reconciling store and cache
// and updating each member's session state.
//
// Creation is strictly two-phase: every store write completes before the
// first cache mutation, so a store failure partway through can never leave a
// half-registered chat. Teardown is the opposite, best-effort: cache and
// session state always go, store errors are logged and not rolled back.
type ChatManager struct {
	cache    *Cache
	registry *Registry
	store    store.Store
	locks    *keyLock
	log      *zerolog.Logger
}

// NewChatManager builds a chat lifecycle manager.
func NewChatManager(cache *Cache, registry *Registry, st store.Store, locks *keyLock, logger *zerolog.Logger) *ChatManager {
	return &ChatManager{cache: cache, registry: registry, store: st, locks: locks, log: logger}
}

// CreateChat materialises a chat for the given users: persists any user not
// yet in the store, persists the chat, then promotes every user to active,
// records the membership on each of them, joins their live connections to
// the chat channel and inserts the chat cache entry. Returns the cached
// projection.
//
// On a store failure no cache mutation has happened yet; users persisted by
// this attempt are compensated with store deletes before the error returns.
func (m *ChatManager) CreateChat(ctx context.Context, users []*User) (*Chat, error) {
	keys := make([]string, 0, len(users))
	for _, u := range users {
		keys = append(keys, userKey(u.EmailOrLoginID()))
	}
	m.locks.Lock(keys...)
	defer m.locks.Unlock(keys...)

	// Phase 1: store writes only.
	created := make([]*User, 0, len(users))
	fail := func(op string, err error) (*Chat, error) {
		m.compensate(ctx, created)
		return nil, storageError(op, err)
	}

	for _, u := range users {
		if u.Persisted() {
			continue
		}
		rec, err := m.store.CreateUser(ctx, store.UserData{LoginID: u.LoginID, Email: u.Email})
		if err != nil {
			return fail("create user", err)
		}
		u.StoreID = rec.ID
		created = append(created, u)
	}

	memberIDs := make([]int64, 0, len(users))
	for _, u := range users {
		memberIDs = append(memberIDs, u.StoreID)
	}
	rec, err := m.store.CreateChat(ctx, store.ChatData{MemberIDs: memberIDs, CreatedAt: time.Now()})
	if err != nil {
		return fail("create chat", err)
	}

	// Phase 2: cache mutations and side effects. Nothing below can fail the
	// operation.
	derivedIDs := make([]string, 0, len(users))
	for _, u := range users {
		derivedIDs = append(derivedIDs, u.EmailOrLoginID())
	}
	chat := NewChat(rec.ID, derivedIDs, rec.CreatedAt)

	channel := ChatChannel(chat.ID)
	for _, u := range users {
		u.JoinChat(chat.ID)
		for _, conn := range u.Conns() {
			if err := conn.JoinChannel(channel); err != nil {
				m.log.Warn().Err(err).Str("user", u.EmailOrLoginID()).Str("conn", conn.ID()).Msg("join channel failed")
			}
		}
		m.registry.PromoteToActive(u)
	}
	m.cache.SetChat(chat)

	m.log.Info().Int64("chat", chat.ID).Strs("members", derivedIDs).Msg("chat created")
	return chat, nil
}

// compensate deletes the store records of users persisted by a failed
// CreateChat attempt. Users that were already persisted before the attempt
// are left alone.
func (m *ChatManager) compensate(ctx context.Context, created []*User) {
	for _, u := range created {
		if err := m.store.DeleteUser(ctx, u.StoreID); err != nil {
			m.log.Error().Err(err).Int64("user", u.StoreID).Msg("compensating user delete failed")
			continue
		}
		u.StoreID = 0
	}
}

// CloseChat tears down a chat: deletes its store record and messages, drops
// the membership from every member, fully removes members left with zero
// chats and finally evicts the chat cache entry. Returns the derived ids of
// the members that transitioned to inactive, for the caller to notify.
//
// Store errors during teardown are logged and do not stop the teardown.
func (m *ChatManager) CloseChat(ctx context.Context, chatID int64) ([]string, error) {
	chat := m.cache.Chat(chatID)
	if chat == nil {
		return nil, notFound("chat")
	}

	keys := make([]string, 0, len(chat.Members)+1)
	keys = append(keys, chatKey(chatID))
	for _, id := range chat.Members {
		keys = append(keys, userKey(id))
	}
	m.locks.Lock(keys...)
	defer m.locks.Unlock(keys...)

	// A concurrent close may have won while we waited for the locks.
	if m.cache.Chat(chatID) == nil {
		return nil, notFound("chat")
	}

	if err := m.store.DeleteChat(ctx, chatID); err != nil {
		m.log.Error().Err(err).Int64("chat", chatID).Msg("delete chat record failed")
	}
	if ids := chat.MessageIDs(); len(ids) > 0 {
		if err := m.store.DeleteMessages(ctx, ids); err != nil {
			m.log.Error().Err(err).Int64("chat", chatID).Int("messages", len(ids)).Msg("cascade message delete failed")
		}
	}

	inactive := []string{}
	for _, derivedID := range chat.Members {
		u := m.cache.Active(derivedID)
		if u == nil {
			m.log.Warn().Str("user", derivedID).Int64("chat", chatID).Msg("chat member missing from active map")
			continue
		}
		if u.LeaveChat(chatID) > 0 {
			continue
		}
		if err := m.registry.RemoveActiveUser(ctx, u); err != nil {
			m.log.Error().Err(err).Str("user", derivedID).Msg("remove active user failed")
		}
		inactive = append(inactive, derivedID)
	}

	m.cache.DeleteChat(chatID)
	m.log.Info().Int64("chat", chatID).Strs("inactive", inactive).Msg("chat closed")
	return inactive, nil
}
