package core

import (
	"context"

	"github.com/vovakirdan/pairchat-server/internal/store"
)

// Bootstrap rehydrates the cache from the store so a server restart does not
// lose session continuity. Chats load first with their members and messages,
// then every persisted user with at least one chat membership enters the
// active map with its chat-id list recomputed from the store.
//
// A message whose sender cannot be resolved among the chat's members is
// skipped with a warning rather than aborting the chat's message load: one
// dangling row should not cost a whole chat its history, and the warning
// keeps the divergence visible.
func (s *Service) Bootstrap(ctx context.Context) error {
	chats, err := s.store.FindChats(ctx, store.ChatFilter{})
	if err != nil {
		return storageError("find chats", err)
	}

	for _, rec := range chats {
		byStoreID := make(map[int64]*store.User, len(rec.Members))
		derivedIDs := make([]string, 0, len(rec.Members))
		for _, m := range rec.Members {
			byStoreID[m.ID] = m
			derivedIDs = append(derivedIDs, derivedID(m))
		}

		chat := NewChat(rec.ID, derivedIDs, rec.CreatedAt)
		for _, msg := range rec.Messages {
			sender, ok := byStoreID[msg.SenderID]
			if !ok {
				s.log.Warn().
					Int64("chat", rec.ID).
					Int64("message", msg.ID).
					Int64("sender", msg.SenderID).
					Msg("skipping message with unresolved sender")
				continue
			}
			chat.AddMessage(&Message{
				ID:       msg.ID,
				Text:     msg.Text,
				SenderID: derivedID(sender),
				Time:     msg.CreatedAt,
				Kind:     MessageKind(msg.Kind),
			})
		}
		s.cache.SetChat(chat)
	}

	users, err := s.store.FindUsers(ctx, store.UserFilter{})
	if err != nil {
		return storageError("find users", err)
	}

	restored := 0
	for _, rec := range users {
		chatIDs, err := s.store.ChatIDsForUser(ctx, rec.ID)
		if err != nil {
			return storageError("chat ids for user", err)
		}
		if len(chatIDs) == 0 {
			// Registered users without sessions stay out of the active map.
			continue
		}
		u := NewUser(rec.ID, rec.LoginID, rec.Email)
		// Guests persisted at pairing have no password hash.
		u.registered = rec.PasswordHash != ""
		for _, id := range chatIDs {
			u.JoinChat(id)
		}
		s.registry.PromoteToActive(u)
		restored++
	}

	s.log.Info().
		Int("chats", len(chats)).
		Int("active_users", restored).
		Msg("cache rehydrated from store")
	return nil
}

// derivedID computes the email-or-login identifier for a store record.
func derivedID(u *store.User) string {
	if u.Email != "" {
		return u.Email
	}
	return u.LoginID
}
