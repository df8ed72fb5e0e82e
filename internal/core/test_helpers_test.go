package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/pairchat-server/internal/store"
)

// fakeStore is an in-memory store.Store with per-operation failure hooks for
// fault-injection tests.
type fakeStore struct {
	mu     sync.Mutex
	nextID int64

	users       map[int64]*store.User
	chats       map[int64]time.Time
	chatMembers map[int64][]int64
	messages    map[int64]*store.Message

	createUserCalls int
	// failCreateUserOn makes the Nth CreateUser call fail (1-based), 0 = never.
	failCreateUserOn int
	failCreateChat   bool
	failCreateMsg    bool
	failUpdateMsg    bool
	failDeleteMsg    bool

	// deleteChatEntered/deleteChatRelease, when set, make DeleteChat signal
	// entry and then park until released, for interleaving tests.
	deleteChatEntered chan struct{}
	deleteChatRelease chan struct{}

	deletedUsers []int64
}

var errFakeStore = errors.New("fake store failure")

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:       make(map[int64]*store.User),
		chats:       make(map[int64]time.Time),
		chatMembers: make(map[int64][]int64),
		messages:    make(map[int64]*store.Message),
	}
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) FindUsers(_ context.Context, filter store.UserFilter) ([]*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.User
	for _, u := range f.users {
		if filter.LoginID != "" && u.LoginID != filter.LoginID {
			continue
		}
		if filter.Email != "" && u.Email != filter.Email {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeStore) CreateUser(_ context.Context, data store.UserData) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createUserCalls++
	if f.failCreateUserOn != 0 && f.createUserCalls == f.failCreateUserOn {
		return nil, errFakeStore
	}
	u := &store.User{
		ID:        f.id(),
		LoginID:   data.LoginID,
		Email:     data.Email,
		CreatedAt: time.Now(),
	}
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeStore) DeleteUser(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, id)
	f.deletedUsers = append(f.deletedUsers, id)
	return nil
}

func (f *fakeStore) FindChats(_ context.Context, filter store.ChatFilter) ([]*store.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.Chat
	for id, createdAt := range f.chats {
		if filter.MemberID != 0 && !containsID(f.chatMembers[id], filter.MemberID) {
			continue
		}
		c := &store.Chat{ID: id, CreatedAt: createdAt}
		for _, uid := range f.chatMembers[id] {
			if u, ok := f.users[uid]; ok {
				c.Members = append(c.Members, u)
			}
		}
		for _, m := range f.messages {
			if m.ChatID == id {
				c.Messages = append(c.Messages, m)
			}
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeStore) CreateChat(_ context.Context, data store.ChatData) (*store.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreateChat {
		return nil, errFakeStore
	}
	id := f.id()
	createdAt := data.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	f.chats[id] = createdAt
	f.chatMembers[id] = append([]int64(nil), data.MemberIDs...)
	c := &store.Chat{ID: id, CreatedAt: createdAt}
	for _, uid := range data.MemberIDs {
		if u, ok := f.users[uid]; ok {
			c.Members = append(c.Members, u)
		}
	}
	return c, nil
}

func (f *fakeStore) DeleteChat(_ context.Context, id int64) error {
	if f.deleteChatEntered != nil {
		f.deleteChatEntered <- struct{}{}
		<-f.deleteChatRelease
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.chats, id)
	delete(f.chatMembers, id)
	return nil
}

func (f *fakeStore) AppendMessageRef(_ context.Context, chatID, messageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[messageID]
	if !ok {
		return store.ErrNoRows
	}
	m.ChatID = chatID
	return nil
}

func (f *fakeStore) ChatIDsForUser(_ context.Context, userID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for chatID, members := range f.chatMembers {
		if containsID(members, userID) {
			ids = append(ids, chatID)
		}
	}
	return ids, nil
}

func (f *fakeStore) CreateMessage(_ context.Context, data store.MessageData) (*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreateMsg {
		return nil, errFakeStore
	}
	m := &store.Message{
		ID:        f.id(),
		SenderID:  data.SenderID,
		Text:      data.Text,
		Kind:      data.Kind,
		CreatedAt: data.CreatedAt,
	}
	f.messages[m.ID] = m
	return m, nil
}

func (f *fakeStore) UpdateMessageText(_ context.Context, id int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdateMsg {
		return errFakeStore
	}
	m, ok := f.messages[id]
	if !ok {
		return store.ErrNoRows
	}
	m.Text = text
	return nil
}

func (f *fakeStore) DeleteMessage(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDeleteMsg {
		return errFakeStore
	}
	delete(f.messages, id)
	return nil
}

func (f *fakeStore) DeleteMessages(_ context.Context, ids []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.messages, id)
	}
	return nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) messageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func (f *fakeStore) userCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users)
}

func asCoreError(err error, target **CoreError) bool {
	return errors.As(err, target)
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// fakeConn records the channels it was told to join.
type fakeConn struct {
	id     string
	joined []string
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) JoinChannel(channelID string) error {
	c.joined = append(c.joined, channelID)
	return nil
}

func newTestService(st store.Store) *Service {
	logger := zerolog.Nop()
	return NewService(st, &logger)
}

// addWaiting seeds a waiting user with one connection.
func addWaiting(s *Service, loginID string) *User {
	u, err := s.AddToWaitingList(loginID, "", 0, &fakeConn{id: "conn-" + loginID})
	if err != nil {
		panic(err)
	}
	return u
}
