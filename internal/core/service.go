package core

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/pairchat-server/internal/store"
)

// Service is the surface the request handlers consume. It wires the session
// registry, pairing engine and the chat/message lifecycle managers over one
// shared cache and one keyed lock.
type Service struct {
	cache    *Cache
	locks    *keyLock
	registry *Registry
	pairing  *Pairing
	chats    *ChatManager
	messages *MessageManager
	store    store.Store
	log      *zerolog.Logger
}

// NewService builds the core service over the given store.
func NewService(st store.Store, logger *zerolog.Logger) *Service {
	cache := NewCache()
	locks := newKeyLock()
	registry := NewRegistry(cache, st, logger)
	return &Service{
		cache:    cache,
		locks:    locks,
		registry: registry,
		pairing:  NewPairing(registry),
		chats:    NewChatManager(cache, registry, st, locks, logger),
		messages: NewMessageManager(cache, registry, st, locks, logger),
		store:    st,
		log:      logger,
	}
}

// AddToWaitingList inserts a new waiting user.
func (s *Service) AddToWaitingList(loginID, email string, storeID int64, conn Conn) (*User, error) {
	return s.registry.AddToWaitingList(loginID, email, storeID, conn)
}

// RemoveFromWaitingList deletes a waiting entry by derived id.
func (s *Service) RemoveFromWaitingList(id string) bool {
	return s.registry.RemoveFromWaitingList(id)
}

// RequeueWaiting puts a claimed user back into the waiting pool, used when
// chat creation fails after a successful pick.
func (s *Service) RequeueWaiting(u *User) {
	s.cache.SetWaiting(u.EmailOrLoginID(), u)
}

// WaitingCount returns the size of the waiting pool.
func (s *Service) WaitingCount() int {
	return s.registry.WaitingCount()
}

// WaitingUser returns the waiting user for a derived id, nil if absent.
func (s *Service) WaitingUser(id string) *User {
	return s.cache.Waiting(id)
}

// FindActiveUser resolves an active user by connection id, login id or email.
func (s *Service) FindActiveUser(q ActiveQuery) (*User, error) {
	return s.registry.FindActive(q)
}

// IsUserActive reports whether the derived id is active.
func (s *Service) IsUserActive(id string) bool {
	return s.registry.IsActive(id)
}

// AttachConn registers a live connection on a user.
func (s *Service) AttachConn(u *User, conn Conn) {
	s.registry.AttachConn(u, conn)
}

// DetachConn drops a connection from a user, returning how many remain.
func (s *Service) DetachConn(u *User, connID string) int {
	return s.registry.DetachConn(u, connID)
}

// GetChat returns the cached chat by id, nil if absent.
func (s *Service) GetChat(id int64) *Chat {
	return s.cache.Chat(id)
}

// ChatExists reports whether the chat is cached.
func (s *Service) ChatExists(id int64) bool {
	return s.cache.Chat(id) != nil
}

// ChatCountForUser returns how many chats the active user belongs to,
// zero when the id is not active.
func (s *Service) ChatCountForUser(id string) int {
	u := s.cache.Active(id)
	if u == nil {
		return 0
	}
	return u.ChatCount()
}

// PickRandomPair claims two distinct users from the waiting pool.
func (s *Service) PickRandomPair() ([]*User, error) {
	return s.pairing.PickRandomPair()
}

// CreateChat materialises a chat for the given users.
func (s *Service) CreateChat(ctx context.Context, users []*User) (*Chat, error) {
	return s.chats.CreateChat(ctx, users)
}

// CloseChat tears down a chat, returning the ids that went inactive.
func (s *Service) CloseChat(ctx context.Context, chatID int64) ([]string, error) {
	return s.chats.CloseChat(ctx, chatID)
}

// AddMessage persists and caches a new message in a chat.
func (s *Service) AddMessage(ctx context.Context, chatID int64, in MessageInput) (*Message, error) {
	return s.messages.AddMessage(ctx, chatID, in)
}

// EditMessage replaces a message's text.
func (s *Service) EditMessage(ctx context.Context, chatID, messageID int64, text string) error {
	return s.messages.EditMessage(ctx, chatID, messageID, text)
}

// RemoveMessage deletes a message from store and cache.
func (s *Service) RemoveMessage(ctx context.Context, chatID, messageID int64) error {
	return s.messages.RemoveMessage(ctx, chatID, messageID)
}
