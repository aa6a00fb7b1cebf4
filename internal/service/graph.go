package service

import (
	"context"

	"github.com/and161185/pairchat/internal/model"
	"github.com/and161185/pairchat/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// GraphService manages connections, pending requests and blocks.
// Targets are addressed by username.
type GraphService interface {
	RequestConnection(ctx context.Context, actor uuid.UUID, target string) error
	// AcceptConnection consumes requester's pending request to actor.
	AcceptConnection(ctx context.Context, actor uuid.UUID, requester string) error
	// UnsendRequest withdraws actor's own pending request to target.
	UnsendRequest(ctx context.Context, actor uuid.UUID, target string) error
	// DeleteRequest declines requester's pending request to actor.
	DeleteRequest(ctx context.Context, actor uuid.UUID, requester string) error
	RemoveConnection(ctx context.Context, actor uuid.UUID, target string) error
	Block(ctx context.Context, actor uuid.UUID, target string) error
	Unblock(ctx context.Context, actor uuid.UUID, target string) error
	// CanInteract is false when a block exists in either direction.
	CanInteract(ctx context.Context, a, b uuid.UUID) (bool, error)

	Connections(ctx context.Context, actor uuid.UUID) ([]model.UserRef, error)
	Requests(ctx context.Context, actor uuid.UUID) ([]model.UserRef, error)
	Blocked(ctx context.Context, actor uuid.UUID) ([]model.UserRef, error)
}

// BlockHook runs after a block is committed.
type BlockHook func(ctx context.Context, pair model.PairKey)

type GraphServiceImpl struct {
	gate
	onBlock []BlockHook
}

// NewGraphService constructs GraphService.
func NewGraphService(users repository.UserRepository, graph repository.GraphRepository, hooks ...BlockHook) *GraphServiceImpl {
	return &GraphServiceImpl{gate: gate{users: users, graph: graph}, onBlock: hooks}
}

func (s *GraphServiceImpl) RequestConnection(ctx context.Context, actor uuid.UUID, target string) error {
	u, err := s.peer(ctx, actor, target)
	if err != nil {
		return err
	}
	return s.graph.AddRequest(ctx, actor, u.ID)
}

func (s *GraphServiceImpl) AcceptConnection(ctx context.Context, actor uuid.UUID, requester string) error {
	u, err := s.peer(ctx, actor, requester)
	if err != nil {
		return err
	}
	return s.graph.AcceptRequest(ctx, actor, u.ID)
}

func (s *GraphServiceImpl) UnsendRequest(ctx context.Context, actor uuid.UUID, target string) error {
	u, err := s.peer(ctx, actor, target)
	if err != nil {
		return err
	}
	return s.graph.RemoveRequest(ctx, u.ID, actor)
}

func (s *GraphServiceImpl) DeleteRequest(ctx context.Context, actor uuid.UUID, requester string) error {
	u, err := s.peer(ctx, actor, requester)
	if err != nil {
		return err
	}
	return s.graph.RemoveRequest(ctx, actor, u.ID)
}

func (s *GraphServiceImpl) RemoveConnection(ctx context.Context, actor uuid.UUID, target string) error {
	u, err := s.peer(ctx, actor, target)
	if err != nil {
		return err
	}
	return s.graph.RemoveConnection(ctx, actor, u.ID)
}

func (s *GraphServiceImpl) Block(ctx context.Context, actor uuid.UUID, target string) error {
	u, err := s.peer(ctx, actor, target)
	if err != nil {
		return err
	}
	if err := s.graph.Block(ctx, actor, u.ID); err != nil {
		return err
	}
	pair := model.NewPairKey(actor, u.ID)
	for _, h := range s.onBlock {
		h(ctx, pair)
	}
	return nil
}

func (s *GraphServiceImpl) Unblock(ctx context.Context, actor uuid.UUID, target string) error {
	u, err := s.peer(ctx, actor, target)
	if err != nil {
		return err
	}
	return s.graph.Unblock(ctx, actor, u.ID)
}

func (s *GraphServiceImpl) CanInteract(ctx context.Context, a, b uuid.UUID) (bool, error) {
	return s.canInteract(ctx, a, b)
}

func (s *GraphServiceImpl) Connections(ctx context.Context, actor uuid.UUID) ([]model.UserRef, error) {
	return s.graph.Connections(ctx, actor)
}

func (s *GraphServiceImpl) Requests(ctx context.Context, actor uuid.UUID) ([]model.UserRef, error) {
	return s.graph.Requests(ctx, actor)
}

func (s *GraphServiceImpl) Blocked(ctx context.Context, actor uuid.UUID) ([]model.UserRef, error) {
	return s.graph.Blocked(ctx, actor)
}
