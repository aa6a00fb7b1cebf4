package service

import (
	"context"

	"github.com/and161185/pairchat/internal/errs"
	"github.com/and161185/pairchat/internal/model"
	"github.com/and161185/pairchat/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// gate resolves a peer by username and applies the interaction check.
type gate struct {
	users repository.UserRepository
	graph repository.GraphRepository
}

// peer loads the target user; self-targeting is rejected.
func (g gate) peer(ctx context.Context, actor uuid.UUID, username string) (*model.User, error) {
	u, err := g.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if u.ID == actor {
		return nil, errs.ErrSelfTarget
	}
	return u, nil
}

// canInteract is false when either side blocks the other. It always reads
// the graph store, never a cached view of either user.
func (g gate) canInteract(ctx context.Context, a, b uuid.UUID) (bool, error) {
	blocked, err := g.graph.IsBlocked(ctx, a, b)
	if err != nil {
		return false, err
	}
	return !blocked, nil
}

// pair resolves the peer and returns the conversation key when interaction is allowed.
func (g gate) pair(ctx context.Context, actor uuid.UUID, username string) (model.PairKey, *model.User, error) {
	u, err := g.peer(ctx, actor, username)
	if err != nil {
		return model.PairKey{}, nil, err
	}
	ok, err := g.canInteract(ctx, actor, u.ID)
	if err != nil {
		return model.PairKey{}, nil, err
	}
	if !ok {
		return model.PairKey{}, nil, errs.ErrAccessDenied
	}
	return model.NewPairKey(actor, u.ID), u, nil
}
