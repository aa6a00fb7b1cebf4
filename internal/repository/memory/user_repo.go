package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/and161185/pairchat/internal/errs"
	"github.com/and161185/pairchat/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepo implements UserRepository in memory.
type UserRepo struct{ s *Store }

// NewUserRepo constructs a user repository over s.
func NewUserRepo(s *Store) *UserRepo { return &UserRepo{s: s} }

func (r *UserRepo) Create(_ context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.byName[u.Username]; ok {
		return errs.ErrAlreadyExists
	}
	if _, ok := r.s.users[u.ID]; ok {
		return errs.ErrAlreadyExists
	}
	cp := *u
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = r.s.now()
	}
	r.s.users[u.ID] = &cp
	r.s.byName[u.Username] = u.ID
	r.s.order = append(r.s.order, u.ID)
	return nil
}

func (r *UserRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, errs.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	r.s.mu.RLock()
	id, ok := r.s.byName[username]
	r.s.mu.RUnlock()
	if !ok {
		return nil, errs.ErrUserNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *UserRepo) GetByIDs(_ context.Context, ids []uuid.UUID) ([]model.UserRef, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.refs(ids), nil
}

func (r *UserRepo) Search(_ context.Context, term string, limit int) ([]model.UserRef, error) {
	term = strings.ToLower(term)
	r.s.mu.RLock()
	var out []model.UserRef
	for _, id := range r.s.order {
		u := r.s.users[id]
		if strings.Contains(strings.ToLower(u.Username), term) {
			out = append(out, u.Ref())
		}
	}
	r.s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *UserRepo) List(_ context.Context) ([]model.UserRef, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.refs(r.s.order), nil
}

func (r *UserRepo) SetPicture(_ context.Context, user uuid.UUID, pic model.Attachment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[user]; !ok {
		return errs.ErrUserNotFound
	}
	pic.Data = append([]byte(nil), pic.Data...)
	r.s.pics[user] = pic
	return nil
}

func (r *UserRepo) GetPicture(_ context.Context, user uuid.UUID) (model.Attachment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	pic, ok := r.s.pics[user]
	if !ok {
		return model.Attachment{}, errs.ErrPictureNotFound
	}
	pic.Data = append([]byte(nil), pic.Data...)
	return pic, nil
}

func (r *UserRepo) DeletePicture(_ context.Context, user uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.pics[user]; !ok {
		return errs.ErrPictureNotFound
	}
	delete(r.s.pics, user)
	return nil
}
