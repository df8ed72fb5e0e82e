package core

import "sync"

// User is the cached projection of a chat participant. A user lives in
// exactly one of the waiting or active indices at any time; promotion from
// waiting to active happens only as part of chat creation.
//
// Field mutations go through the accessor methods so that concurrent readers
// never observe a half-applied update.
type User struct {
	mu sync.RWMutex

	// StoreID is the store-assigned identity, 0 until the user is persisted.
	StoreID int64
	// Email is optional; LoginID is always set.
	Email   string
	LoginID string

	// registered marks users that created an account. Set once before the
	// user enters an index, never mutated after.
	registered bool

	conns         map[string]Conn
	currentChatID int64
	chatIDs       []int64
}

// NewUser constructs a user with no connections and no chats.
func NewUser(storeID int64, loginID, email string) *User {
	return &User{
		StoreID: storeID,
		Email:   email,
		LoginID: loginID,
		conns:   make(map[string]Conn),
	}
}

// EmailOrLoginID is the derived identifier keying the waiting and active
// indices: the email when present, otherwise the login id. It is computed
// on every call, never stored, so it cannot drift from the underlying fields.
func (u *User) EmailOrLoginID() string {
	if u.Email != "" {
		return u.Email
	}
	return u.LoginID
}

// Persisted reports whether the user has a store record.
func (u *User) Persisted() bool {
	return u.StoreID != 0
}

// Registered reports whether the user holds an account. Registered records
// outlive chat teardown; guest records do not.
func (u *User) Registered() bool {
	return u.registered
}

// AddConn registers a live connection.
func (u *User) AddConn(c Conn) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.conns[c.ID()] = c
}

// RemoveConn deletes a connection by id and reports whether any remain.
func (u *User) RemoveConn(connID string) (remaining int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.conns, connID)
	return len(u.conns)
}

// HasConn reports whether the user holds the given connection id.
func (u *User) HasConn(connID string) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	_, ok := u.conns[connID]
	return ok
}

// Conns returns a snapshot of the live connections.
func (u *User) Conns() []Conn {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]Conn, 0, len(u.conns))
	for _, c := range u.conns {
		out = append(out, c)
	}
	return out
}

// CurrentChatID returns the chat the user is currently pointed at, 0 if none.
func (u *User) CurrentChatID() int64 {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.currentChatID
}

// ChatIDs returns a snapshot of the user's chat memberships in join order.
func (u *User) ChatIDs() []int64 {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]int64, len(u.chatIDs))
	copy(out, u.chatIDs)
	return out
}

// ChatCount returns the number of chats the user belongs to.
func (u *User) ChatCount() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.chatIDs)
}

// JoinChat appends a chat membership and points the user at it.
func (u *User) JoinChat(chatID int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.chatIDs = append(u.chatIDs, chatID)
	u.currentChatID = chatID
}

// LeaveChat drops a chat membership. When memberships remain the current
// chat is repointed at the most recent one; at zero it is cleared. Returns
// the number of memberships left.
func (u *User) LeaveChat(chatID int64) (remaining int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for i, id := range u.chatIDs {
		if id == chatID {
			u.chatIDs = append(u.chatIDs[:i], u.chatIDs[i+1:]...)
			break
		}
	}
	if len(u.chatIDs) == 0 {
		u.currentChatID = 0
	} else if u.currentChatID == chatID {
		u.currentChatID = u.chatIDs[len(u.chatIDs)-1]
	}
	return len(u.chatIDs)
}
