package core

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickRandomPairDistinct(t *testing.T) {
	svc := newTestService(newFakeStore())
	for i := 0; i < 5; i++ {
		addWaiting(svc, fmt.Sprintf("user%d", i))
	}

	pair, err := svc.PickRandomPair()
	require.NoError(t, err)
	require.Len(t, pair, 2)

	assert.NotEqual(t, pair[0].EmailOrLoginID(), pair[1].EmailOrLoginID(), "pair must be distinct")
	assert.Equal(t, 3, svc.WaitingCount(), "pool shrinks by exactly 2")
	for _, u := range pair {
		assert.Nil(t, svc.WaitingUser(u.EmailOrLoginID()), "picked user removed from pool")
	}
}

func TestPickRandomPairExactlyTwo(t *testing.T) {
	svc := newTestService(newFakeStore())
	addWaiting(svc, "alice")
	addWaiting(svc, "bob")

	pair, err := svc.PickRandomPair()
	require.NoError(t, err)

	got := []string{pair[0].EmailOrLoginID(), pair[1].EmailOrLoginID()}
	assert.ElementsMatch(t, []string{"alice", "bob"}, got)
	assert.Zero(t, svc.WaitingCount())
}

func TestPickRandomPairPrecondition(t *testing.T) {
	svc := newTestService(newFakeStore())

	_, err := svc.PickRandomPair()
	require.Error(t, err)
	var ce *CoreError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrCodePrecondition, ce.Code)

	addWaiting(svc, "alone")
	_, err = svc.PickRandomPair()
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrCodePrecondition, ce.Code)
	assert.Equal(t, 1, svc.WaitingCount(), "singleton stays in the pool")
}

func TestPickRandomPairConcurrent(t *testing.T) {
	svc := newTestService(newFakeStore())
	const users = 20
	for i := 0; i < users; i++ {
		addWaiting(svc, fmt.Sprintf("user%d", i))
	}

	seen := make(chan string, users)
	done := make(chan struct{})
	for i := 0; i < users/2; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			pair, err := svc.PickRandomPair()
			if err != nil {
				return
			}
			seen <- pair[0].EmailOrLoginID()
			seen <- pair[1].EmailOrLoginID()
		}()
	}
	for i := 0; i < users/2; i++ {
		<-done
	}
	close(seen)

	unique := make(map[string]bool)
	for id := range seen {
		assert.False(t, unique[id], "user %s paired twice", id)
		unique[id] = true
	}
}
