package core

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/pairchat-server/internal/store"
)

// MockUserStore is a testify mock for the user slice of the store.
type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) FindUsers(ctx context.Context, filter store.UserFilter) ([]*store.User, error) {
	args := m.Called(ctx, filter)
	users, _ := args.Get(0).([]*store.User)
	return users, args.Error(1)
}

func (m *MockUserStore) CreateUser(ctx context.Context, data store.UserData) (*store.User, error) {
	args := m.Called(ctx, data)
	user, _ := args.Get(0).(*store.User)
	return user, args.Error(1)
}

func (m *MockUserStore) DeleteUser(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func newTestRegistry(users store.UserStore) (*Registry, *Cache) {
	cache := NewCache()
	logger := zerolog.Nop()
	return NewRegistry(cache, users, &logger), cache
}

func TestAddToWaitingList(t *testing.T) {
	reg, cache := newTestRegistry(new(MockUserStore))

	u, err := reg.AddToWaitingList("alice", "", 0, &fakeConn{id: "c1"})
	require.NoError(t, err)
	assert.Equal(t, "alice", u.EmailOrLoginID())
	assert.Same(t, u, cache.Waiting("alice"))
	assert.Equal(t, 1, reg.WaitingCount())
}

func TestAddToWaitingListDerivedIDPrefersEmail(t *testing.T) {
	reg, cache := newTestRegistry(new(MockUserStore))

	u, err := reg.AddToWaitingList("alice-login", "alice@example.com", 7, nil)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u.EmailOrLoginID())
	assert.Nil(t, cache.Waiting("alice-login"))
	assert.Same(t, u, cache.Waiting("alice@example.com"))
}

func TestAddToWaitingListDuplicate(t *testing.T) {
	reg, _ := newTestRegistry(new(MockUserStore))

	_, err := reg.AddToWaitingList("alice", "", 0, nil)
	require.NoError(t, err)

	_, err = reg.AddToWaitingList("alice", "", 0, nil)
	var ce *CoreError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrCodeAlreadyInUse, ce.Code)
}

func TestAddToWaitingListWhileActive(t *testing.T) {
	reg, _ := newTestRegistry(new(MockUserStore))

	u := NewUser(1, "alice", "")
	reg.PromoteToActive(u)

	_, err := reg.AddToWaitingList("alice", "", 0, nil)
	var ce *CoreError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrCodeAlreadyInUse, ce.Code)
}

func TestFindActiveBySecondaryIndices(t *testing.T) {
	reg, _ := newTestRegistry(new(MockUserStore))

	u := NewUser(1, "alice-login", "alice@example.com")
	u.AddConn(&fakeConn{id: "sock-1"})
	reg.PromoteToActive(u)

	byConn, err := reg.FindActive(ActiveQuery{ConnID: "sock-1"})
	require.NoError(t, err)
	assert.Same(t, u, byConn)

	byLogin, err := reg.FindActive(ActiveQuery{LoginID: "alice-login"})
	require.NoError(t, err)
	assert.Same(t, u, byLogin)

	byEmail, err := reg.FindActive(ActiveQuery{Email: "alice@example.com"})
	require.NoError(t, err)
	assert.Same(t, u, byEmail)

	_, err = reg.FindActive(ActiveQuery{LoginID: "nobody"})
	var ce *CoreError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrCodeNotFound, ce.Code)
}

func TestRemoveActiveUserDeletesGuestRecord(t *testing.T) {
	users := new(MockUserStore)
	users.On("DeleteUser", mock.Anything, int64(7)).Return(nil).Once()
	reg, cache := newTestRegistry(users)

	u := NewUser(7, "alice", "")
	u.AddConn(&fakeConn{id: "sock-1"})
	reg.PromoteToActive(u)

	require.NoError(t, reg.RemoveActiveUser(context.Background(), u))
	assert.Nil(t, cache.Active("alice"))
	_, err := reg.FindActive(ActiveQuery{ConnID: "sock-1"})
	assert.Error(t, err, "connection index entry must be gone")
	users.AssertExpectations(t)
}

func TestRemoveActiveUserStoreFailureKeepsEviction(t *testing.T) {
	users := new(MockUserStore)
	users.On("DeleteUser", mock.Anything, int64(7)).Return(errFakeStore).Once()
	reg, cache := newTestRegistry(users)

	u := NewUser(7, "alice", "")
	reg.PromoteToActive(u)

	err := reg.RemoveActiveUser(context.Background(), u)
	require.Error(t, err)
	assert.True(t, IsStorage(err))
	// Cache eviction stands even though the store delete failed.
	assert.Nil(t, cache.Active("alice"))
}

func TestDetachConnDropsIndexEntry(t *testing.T) {
	reg, _ := newTestRegistry(new(MockUserStore))

	u := NewUser(1, "alice", "")
	reg.PromoteToActive(u)
	reg.AttachConn(u, &fakeConn{id: "sock-1"})

	found, err := reg.FindActive(ActiveQuery{ConnID: "sock-1"})
	require.NoError(t, err)
	assert.Same(t, u, found)

	remaining := reg.DetachConn(u, "sock-1")
	assert.Zero(t, remaining)
	_, err = reg.FindActive(ActiveQuery{ConnID: "sock-1"})
	assert.Error(t, err)
}

func TestRemoveActiveUserKeepsRegisteredRecord(t *testing.T) {
	users := new(MockUserStore)
	reg, cache := newTestRegistry(users)

	// A non-zero store id at the waiting-list entry point marks a registered
	// account; its record must survive teardown so login keeps working.
	u, err := reg.AddToWaitingList("alice", "", 7, &fakeConn{id: "sock-1"})
	require.NoError(t, err)
	require.True(t, u.Registered())
	require.True(t, reg.RemoveFromWaitingList("alice"))
	reg.PromoteToActive(u)

	require.NoError(t, reg.RemoveActiveUser(context.Background(), u))
	assert.Nil(t, cache.Active("alice"))
	users.AssertNotCalled(t, "DeleteUser", mock.Anything, mock.Anything)
}

func TestAddToWaitingListConcurrentSameID(t *testing.T) {
	reg, cache := newTestRegistry(new(MockUserStore))

	const attempts = 16
	results := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.AddToWaitingList("alice", "", 0, nil)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	won := 0
	for err := range results {
		if err == nil {
			won++
			continue
		}
		var ce *CoreError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, ErrCodeAlreadyInUse, ce.Code)
	}
	assert.Equal(t, 1, won, "exactly one insert may win")
	assert.Equal(t, 1, reg.WaitingCount())
	assert.NotNil(t, cache.Waiting("alice"))
}
