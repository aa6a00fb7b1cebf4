package repository

import (
	"context"

	"github.com/and161185/pairchat/internal/model"
	"github.com/gofrs/uuid/v5"
)

// GraphRepository stores connections, pending requests and blocks.
// Every method that touches both sides of a pair is atomic.
type GraphRepository interface {
	// AddRequest records a pending request from -> to. Fails with ErrAccessDenied
	// when a block exists either way, ErrAlreadyConnected or ErrRequestPending.
	AddRequest(ctx context.Context, from, to uuid.UUID) error
	// AcceptRequest consumes the pending request requester -> user and connects both.
	AcceptRequest(ctx context.Context, user, requester uuid.UUID) error
	// RemoveRequest drops the pending request requester -> target.
	RemoveRequest(ctx context.Context, target, requester uuid.UUID) error
	// RemoveConnection removes the mutual connection between a and b.
	RemoveConnection(ctx context.Context, a, b uuid.UUID) error
	// Block records user -> target and evicts connections and requests of the pair.
	Block(ctx context.Context, user, target uuid.UUID) error
	// Unblock removes user -> target.
	Unblock(ctx context.Context, user, target uuid.UUID) error
	// IsBlocked reports whether a block exists in either direction.
	IsBlocked(ctx context.Context, a, b uuid.UUID) (bool, error)

	// Connections lists user's connections in insertion order.
	Connections(ctx context.Context, user uuid.UUID) ([]model.UserRef, error)
	// Requests lists pending requests addressed to user in insertion order.
	Requests(ctx context.Context, user uuid.UUID) ([]model.UserRef, error)
	// Blocked lists users blocked by user in insertion order.
	Blocked(ctx context.Context, user uuid.UUID) ([]model.UserRef, error)
}
