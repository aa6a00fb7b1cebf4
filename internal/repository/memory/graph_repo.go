package memory

import (
	"context"

	"github.com/and161185/pairchat/internal/errs"
	"github.com/and161185/pairchat/internal/model"
	"github.com/gofrs/uuid/v5"
)

// GraphRepo implements GraphRepository in memory. Every operation runs under
// the store lock, so both sides of a pair change together.
type GraphRepo struct{ s *Store }

// NewGraphRepo constructs a graph repository over s.
func NewGraphRepo(s *Store) *GraphRepo { return &GraphRepo{s: s} }

// known must be called with s.mu held.
func (r *GraphRepo) known(ids ...uuid.UUID) error {
	for _, id := range ids {
		if _, ok := r.s.users[id]; !ok {
			return errs.ErrUserNotFound
		}
	}
	return nil
}

func (r *GraphRepo) blocked(a, b uuid.UUID) bool {
	return contains(r.s.blocks[a], b) || contains(r.s.blocks[b], a)
}

func (r *GraphRepo) AddRequest(_ context.Context, from, to uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.known(from, to); err != nil {
		return err
	}
	switch {
	case r.blocked(from, to):
		return errs.ErrAccessDenied
	case contains(r.s.conns[from], to):
		return errs.ErrAlreadyConnected
	case contains(r.s.reqs[to], from):
		return errs.ErrRequestPending
	}
	r.s.reqs[to] = append(r.s.reqs[to], from)
	return nil
}

func (r *GraphRepo) AcceptRequest(_ context.Context, user, requester uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.known(user, requester); err != nil {
		return err
	}
	rest, ok := without(r.s.reqs[user], requester)
	if !ok {
		return errs.ErrNoPendingRequest
	}
	r.s.reqs[user] = rest
	if !contains(r.s.conns[user], requester) {
		r.s.conns[user] = append(r.s.conns[user], requester)
	}
	if !contains(r.s.conns[requester], user) {
		r.s.conns[requester] = append(r.s.conns[requester], user)
	}
	return nil
}

func (r *GraphRepo) RemoveRequest(_ context.Context, target, requester uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rest, ok := without(r.s.reqs[target], requester)
	if !ok {
		return errs.ErrNoPendingRequest
	}
	r.s.reqs[target] = rest
	return nil
}

// disconnect must be called with s.mu held.
func (r *GraphRepo) disconnect(a, b uuid.UUID) bool {
	var okA, okB bool
	r.s.conns[a], okA = without(r.s.conns[a], b)
	r.s.conns[b], okB = without(r.s.conns[b], a)
	return okA || okB
}

func (r *GraphRepo) RemoveConnection(_ context.Context, a, b uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if !r.disconnect(a, b) {
		return errs.ErrNotConnected
	}
	return nil
}

func (r *GraphRepo) Block(_ context.Context, user, target uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.known(user, target); err != nil {
		return err
	}
	if contains(r.s.blocks[user], target) {
		return errs.ErrAlreadyBlocked
	}
	r.s.blocks[user] = append(r.s.blocks[user], target)
	r.disconnect(user, target)
	r.s.reqs[user], _ = without(r.s.reqs[user], target)
	r.s.reqs[target], _ = without(r.s.reqs[target], user)
	return nil
}

func (r *GraphRepo) Unblock(_ context.Context, user, target uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rest, ok := without(r.s.blocks[user], target)
	if !ok {
		return errs.ErrNotBlocked
	}
	r.s.blocks[user] = rest
	return nil
}

func (r *GraphRepo) IsBlocked(_ context.Context, a, b uuid.UUID) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.blocked(a, b), nil
}

func (r *GraphRepo) list(m map[uuid.UUID][]uuid.UUID, user uuid.UUID) []model.UserRef {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.refs(m[user])
}

func (r *GraphRepo) Connections(_ context.Context, user uuid.UUID) ([]model.UserRef, error) {
	return r.list(r.s.conns, user), nil
}

func (r *GraphRepo) Requests(_ context.Context, user uuid.UUID) ([]model.UserRef, error) {
	return r.list(r.s.reqs, user), nil
}

func (r *GraphRepo) Blocked(_ context.Context, user uuid.UUID) ([]model.UserRef, error) {
	return r.list(r.s.blocks, user), nil
}
