package core

import (
	"fmt"
	"math/rand/v2"
	"sync"
)

// Pairing selects two users from the waiting pool to start a chat. Selection
// is uniformly random with no weighting or priority, a deliberate simplicity
// choice for matching fairness.
type Pairing struct {
	registry *Registry

	// mu serialises concurrent picks so two callers can never claim the
	// same waiting user across the draw sequence.
	mu sync.Mutex
}

// NewPairing builds a pairing engine over the registry.
func NewPairing(registry *Registry) *Pairing {
	return &Pairing{registry: registry}
}

// PickRandomPair removes two uniformly random users from the waiting pool
// and returns them. Fails with ErrCodePrecondition when fewer than two users
// are waiting. The second draw runs over the list remaining after the first
// removal, so the returned users are always distinct.
func (p *Pairing) PickRandomPair() ([]*User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := p.registry.cache.WaitingIDs()
	if len(ids) < 2 {
		return nil, &CoreError{
			Code:    ErrCodePrecondition,
			Message: fmt.Sprintf("pairing needs two waiting users, have %d", len(ids)),
			Err:     ErrPrecondition,
		}
	}

	pair := make([]*User, 0, 2)
	for len(pair) < 2 {
		i := rand.IntN(len(ids))
		id := ids[i]
		ids = append(ids[:i], ids[i+1:]...)

		// The snapshot can lag a concurrent RemoveFromWaitingList, so a
		// claimed entry may already be gone; redraw over the rest.
		u := p.registry.TakeWaiting(id)
		if u == nil {
			if len(ids)+len(pair) < 2 {
				p.requeue(pair)
				return nil, &CoreError{
					Code:    ErrCodePrecondition,
					Message: "waiting pool drained during pairing",
					Err:     ErrPrecondition,
				}
			}
			continue
		}
		pair = append(pair, u)
	}
	return pair, nil
}

// requeue puts claimed users back after an aborted pick.
func (p *Pairing) requeue(users []*User) {
	for _, u := range users {
		p.registry.cache.SetWaiting(u.EmailOrLoginID(), u)
	}
}
