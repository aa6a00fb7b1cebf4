// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/pairchat/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepository provides access to registered identities.
type UserRepository interface {
	// Create inserts a new user.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByUsername loads a user by username.
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	// GetByIDs resolves many ids in one lookup; unknown ids are skipped.
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]model.UserRef, error)
	// Search returns users whose username contains term (case-insensitive).
	Search(ctx context.Context, term string, limit int) ([]model.UserRef, error)
	// List returns all users ordered by creation time.
	List(ctx context.Context) ([]model.UserRef, error)
}

// PictureRepository stores one profile picture per user.
type PictureRepository interface {
	// SetPicture creates or replaces the user's picture.
	SetPicture(ctx context.Context, user uuid.UUID, pic model.Attachment) error
	// GetPicture returns ErrPictureNotFound when the user has none.
	GetPicture(ctx context.Context, user uuid.UUID) (model.Attachment, error)
	// DeletePicture returns ErrPictureNotFound when the user has none.
	DeletePicture(ctx context.Context, user uuid.UUID) error
}
