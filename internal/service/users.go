package service

import (
	"context"
	"strings"

	"github.com/and161185/pairchat/internal/attachment"
	"github.com/and161185/pairchat/internal/errs"
	"github.com/and161185/pairchat/internal/model"
	"github.com/and161185/pairchat/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// SearchLimit caps user search results.
const SearchLimit = 20

// PictureTypes are the formats accepted as profile pictures.
var PictureTypes = []string{"image/jpeg", "image/png", "image/gif"}

// UserService exposes identity lookups to other users.
type UserService interface {
	// Search finds users by username substring, hiding self and blocked pairs.
	Search(ctx context.Context, actor uuid.UUID, term string) ([]model.UserRef, error)
	// Me returns the actor's own identity.
	Me(ctx context.Context, actor uuid.UUID) (model.UserRef, error)
	// Directory lists every user the actor may interact with.
	Directory(ctx context.Context, actor uuid.UUID) ([]model.UserRef, error)
	SetPicture(ctx context.Context, actor uuid.UUID, data []byte) (model.Attachment, error)
	// Picture returns username's picture; blocked pairs get ErrAccessDenied.
	Picture(ctx context.Context, actor uuid.UUID, username string) (model.Attachment, error)
	DeletePicture(ctx context.Context, actor uuid.UUID) error
}

type UserServiceImpl struct {
	gate
	pics      repository.PictureRepository
	inspector *attachment.Inspector
}

// NewUserService constructs UserService. inspector vets picture uploads and
// should allow only PictureTypes.
func NewUserService(users repository.UserRepository, graph repository.GraphRepository,
	pics repository.PictureRepository, inspector *attachment.Inspector) *UserServiceImpl {
	return &UserServiceImpl{gate: gate{users: users, graph: graph}, pics: pics, inspector: inspector}
}

func (s *UserServiceImpl) Search(ctx context.Context, actor uuid.UUID, term string) ([]model.UserRef, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, errs.ErrEmptyQuery
	}
	found, err := s.users.Search(ctx, term, SearchLimit+1)
	if err != nil {
		return nil, err
	}
	out := make([]model.UserRef, 0, len(found))
	for _, u := range found {
		if u.ID == actor {
			continue
		}
		ok, err := s.canInteract(ctx, actor, u.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, u)
		}
	}
	if len(out) > SearchLimit {
		out = out[:SearchLimit]
	}
	return out, nil
}

func (s *UserServiceImpl) Me(ctx context.Context, actor uuid.UUID) (model.UserRef, error) {
	u, err := s.users.GetByID(ctx, actor)
	if err != nil {
		return model.UserRef{}, err
	}
	return u.Ref(), nil
}

func (s *UserServiceImpl) Directory(ctx context.Context, actor uuid.UUID) ([]model.UserRef, error) {
	all, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.UserRef, 0, len(all))
	for _, u := range all {
		if u.ID == actor {
			continue
		}
		ok, err := s.canInteract(ctx, actor, u.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, u)
		}
	}
	return out, nil
}

// SetPicture stores data as the actor's picture. The type comes from the
// bytes alone.
func (s *UserServiceImpl) SetPicture(ctx context.Context, actor uuid.UUID, data []byte) (model.Attachment, error) {
	pic, err := s.inspector.Inspect(data)
	if err != nil {
		return model.Attachment{}, err
	}
	if err := s.pics.SetPicture(ctx, actor, *pic); err != nil {
		return model.Attachment{}, err
	}
	return *pic, nil
}

func (s *UserServiceImpl) Picture(ctx context.Context, actor uuid.UUID, username string) (model.Attachment, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return model.Attachment{}, err
	}
	if u.ID != actor {
		ok, err := s.canInteract(ctx, actor, u.ID)
		if err != nil {
			return model.Attachment{}, err
		}
		if !ok {
			return model.Attachment{}, errs.ErrAccessDenied
		}
	}
	return s.pics.GetPicture(ctx, u.ID)
}

func (s *UserServiceImpl) DeletePicture(ctx context.Context, actor uuid.UUID) error {
	return s.pics.DeletePicture(ctx, actor)
}
