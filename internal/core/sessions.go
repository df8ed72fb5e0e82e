package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/pairchat-server/internal/store"
)

// ActiveQuery selects an active user by any of the held connection ids, the
// login id or the email. Zero-valued fields are ignored.
type ActiveQuery struct {
	ConnID  string
	LoginID string
	Email   string
}

// Registry manages the waiting/active user lifecycle and lookup. Lookups run
// over secondary indices (connection id, login id, email) kept in step with
// the active map, so they stay O(1) instead of scanning.
type Registry struct {
	cache *Cache
	users store.UserStore
	log   *zerolog.Logger

	mu      sync.RWMutex
	byConn  map[string]string // conn id -> derived id
	byLogin map[string]string
	byEmail map[string]string
}

// NewRegistry builds a registry over the given cache and user store.
func NewRegistry(cache *Cache, users store.UserStore, logger *zerolog.Logger) *Registry {
	return &Registry{
		cache:   cache,
		users:   users,
		log:     logger,
		byConn:  make(map[string]string),
		byLogin: make(map[string]string),
		byEmail: make(map[string]string),
	}
}

// AddToWaitingList inserts a new waiting user keyed by derived id. The
// derived id must not already be waiting or active. storeID is non-zero for
// users that already have a store record; a non-zero storeID at this entry
// point means the user registered, so teardown keeps their record.
func (r *Registry) AddToWaitingList(loginID, email string, storeID int64, conn Conn) (*User, error) {
	u := NewUser(storeID, loginID, email)
	u.registered = storeID != 0
	if conn != nil {
		u.AddConn(conn)
	}
	id := u.EmailOrLoginID()

	if r.cache.Active(id) != nil {
		return nil, &CoreError{Code: ErrCodeAlreadyInUse, Message: fmt.Sprintf("user %s is already active", id), Err: ErrAlreadyInUse}
	}
	// The insert is check-and-set under the waiting lock, so two concurrent
	// searches for the same id cannot both win.
	if !r.cache.SetWaitingIfAbsent(id, u) {
		return nil, &CoreError{Code: ErrCodeAlreadyInUse, Message: fmt.Sprintf("user %s is already waiting", id), Err: ErrAlreadyInUse}
	}

	r.log.Debug().Str("user", id).Msg("user added to waiting list")
	return u, nil
}

// RemoveFromWaitingList deletes a waiting entry. Reports whether it existed.
func (r *Registry) RemoveFromWaitingList(id string) bool {
	return r.cache.TakeWaiting(id) != nil
}

// TakeWaiting atomically claims a waiting user, nil if absent.
func (r *Registry) TakeWaiting(id string) *User {
	return r.cache.TakeWaiting(id)
}

// PromoteToActive moves the user into the active map and indexes it. The
// caller has already removed the user from the waiting list, or never put it
// there (bootstrap).
func (r *Registry) PromoteToActive(u *User) {
	id := u.EmailOrLoginID()
	r.cache.SetActive(id, u)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byLogin[u.LoginID] = id
	if u.Email != "" {
		r.byEmail[u.Email] = id
	}
	for _, c := range u.Conns() {
		r.byConn[c.ID()] = id
	}
}

// RemoveActiveUser evicts the user from the active map and indices, then
// deletes its store record. Only guest records are deleted; registered
// accounts keep their row so the user can log in again. The cache eviction
// stands even when the store delete fails: the user is already being torn
// down, so the error is reported but not rolled back.
func (r *Registry) RemoveActiveUser(ctx context.Context, u *User) error {
	id := u.EmailOrLoginID()
	r.cache.DeleteActive(id)

	r.mu.Lock()
	delete(r.byLogin, u.LoginID)
	if u.Email != "" {
		delete(r.byEmail, u.Email)
	}
	for _, c := range u.Conns() {
		delete(r.byConn, c.ID())
	}
	r.mu.Unlock()

	if u.Persisted() && !u.Registered() {
		if err := r.users.DeleteUser(ctx, u.StoreID); err != nil {
			return storageError("delete user", err)
		}
	}
	return nil
}

// FindActive resolves an active user by connection id, login id or email.
func (r *Registry) FindActive(q ActiveQuery) (*User, error) {
	r.mu.RLock()
	id, ok := r.byConn[q.ConnID]
	if !ok && q.LoginID != "" {
		id, ok = r.byLogin[q.LoginID]
	}
	if !ok && q.Email != "" {
		id, ok = r.byEmail[q.Email]
	}
	r.mu.RUnlock()

	if !ok {
		return nil, notFound("active user")
	}
	u := r.cache.Active(id)
	if u == nil {
		// Index points at an evicted entry; treat as cache/store divergence.
		return nil, &CoreError{Code: ErrCodeInconsistent, Message: fmt.Sprintf("index references missing active user %s", id), Err: ErrInconsistent}
	}
	return u, nil
}

// IsActive reports whether the derived id is in the active map.
func (r *Registry) IsActive(id string) bool {
	return r.cache.Active(id) != nil
}

// WaitingCount returns the size of the waiting map.
func (r *Registry) WaitingCount() int {
	return r.cache.WaitingLen()
}

// AttachConn registers a new live connection on a user, indexing it when the
// user is active.
func (r *Registry) AttachConn(u *User, conn Conn) {
	u.AddConn(conn)
	if r.IsActive(u.EmailOrLoginID()) {
		r.mu.Lock()
		r.byConn[conn.ID()] = u.EmailOrLoginID()
		r.mu.Unlock()
	}
}

// DetachConn drops a connection from a user and the index. Returns the
// number of connections the user still holds.
func (r *Registry) DetachConn(u *User, connID string) int {
	r.mu.Lock()
	delete(r.byConn, connID)
	r.mu.Unlock()
	return u.RemoveConn(connID)
}
