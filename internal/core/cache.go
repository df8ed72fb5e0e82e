package core

import "sync"

// Cache holds the three in-memory indices: waiting users, active users and
// chats. Each map carries its own guard so plain reads stay cheap under
// concurrent mutation. The cache enforces no cross-map invariants; callers
// must keep store and cache mutations paired (see ChatManager and
// MessageManager).
type Cache struct {
	waitingMu sync.RWMutex
	waiting   map[string]*User

	activeMu sync.RWMutex
	active   map[string]*User

	chatsMu sync.RWMutex
	chats   map[int64]*Chat
}

// NewCache constructs an empty cache.
func NewCache() *Cache {
	return &Cache{
		waiting: make(map[string]*User),
		active:  make(map[string]*User),
		chats:   make(map[int64]*Chat),
	}
}

// Waiting returns the waiting user for a derived id, nil if absent.
func (c *Cache) Waiting(id string) *User {
	c.waitingMu.RLock()
	defer c.waitingMu.RUnlock()
	return c.waiting[id]
}

// SetWaiting inserts a waiting user keyed by derived id.
func (c *Cache) SetWaiting(id string, u *User) {
	c.waitingMu.Lock()
	defer c.waitingMu.Unlock()
	c.waiting[id] = u
}

// SetWaitingIfAbsent inserts the user unless the id is already waiting.
// Check and insert are a single atomic step; reports whether the insert won.
func (c *Cache) SetWaitingIfAbsent(id string, u *User) bool {
	c.waitingMu.Lock()
	defer c.waitingMu.Unlock()
	if _, ok := c.waiting[id]; ok {
		return false
	}
	c.waiting[id] = u
	return true
}

// TakeWaiting removes and returns the waiting user, nil if absent.
// Removal and lookup are a single atomic step so two concurrent callers
// cannot claim the same user.
func (c *Cache) TakeWaiting(id string) *User {
	c.waitingMu.Lock()
	defer c.waitingMu.Unlock()
	u := c.waiting[id]
	delete(c.waiting, id)
	return u
}

// WaitingIDs returns a snapshot of the waiting derived ids.
func (c *Cache) WaitingIDs() []string {
	c.waitingMu.RLock()
	defer c.waitingMu.RUnlock()
	out := make([]string, 0, len(c.waiting))
	for id := range c.waiting {
		out = append(out, id)
	}
	return out
}

// WaitingLen returns the size of the waiting map.
func (c *Cache) WaitingLen() int {
	c.waitingMu.RLock()
	defer c.waitingMu.RUnlock()
	return len(c.waiting)
}

// Active returns the active user for a derived id, nil if absent.
func (c *Cache) Active(id string) *User {
	c.activeMu.RLock()
	defer c.activeMu.RUnlock()
	return c.active[id]
}

// SetActive inserts an active user keyed by derived id.
func (c *Cache) SetActive(id string, u *User) {
	c.activeMu.Lock()
	defer c.activeMu.Unlock()
	c.active[id] = u
}

// DeleteActive removes an active user by derived id.
func (c *Cache) DeleteActive(id string) {
	c.activeMu.Lock()
	defer c.activeMu.Unlock()
	delete(c.active, id)
}

// ActiveUsers returns a snapshot of the active users.
func (c *Cache) ActiveUsers() []*User {
	c.activeMu.RLock()
	defer c.activeMu.RUnlock()
	out := make([]*User, 0, len(c.active))
	for _, u := range c.active {
		out = append(out, u)
	}
	return out
}

// ActiveLen returns the size of the active map.
func (c *Cache) ActiveLen() int {
	c.activeMu.RLock()
	defer c.activeMu.RUnlock()
	return len(c.active)
}

// Chat returns the cached chat by id, nil if absent.
func (c *Cache) Chat(id int64) *Chat {
	c.chatsMu.RLock()
	defer c.chatsMu.RUnlock()
	return c.chats[id]
}

// SetChat inserts a chat keyed by its store-issued id.
func (c *Cache) SetChat(chat *Chat) {
	c.chatsMu.Lock()
	defer c.chatsMu.Unlock()
	c.chats[chat.ID] = chat
}

// DeleteChat removes a chat by id.
func (c *Cache) DeleteChat(id int64) {
	c.chatsMu.Lock()
	defer c.chatsMu.Unlock()
	delete(c.chats, id)
}

// ChatLen returns the size of the chats map.
func (c *Cache) ChatLen() int {
	c.chatsMu.RLock()
	defer c.chatsMu.RUnlock()
	return len(c.chats)
}
