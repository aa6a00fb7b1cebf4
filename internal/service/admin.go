package service

import (
	"context"

	"github.com/and161185/pairchat/internal/errs"
	"github.com/and161185/pairchat/internal/model"
	"github.com/and161185/pairchat/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// AdminPolicy decides whether an actor may run administrative operations.
type AdminPolicy interface {
	IsAdmin(ctx context.Context, actor uuid.UUID) (bool, error)
}

// UsernamePolicy grants admin rights to a fixed set of usernames.
type UsernamePolicy struct {
	users repository.UserRepository
	names map[string]struct{}
}

// NewUsernamePolicy builds a policy from configured admin usernames.
func NewUsernamePolicy(users repository.UserRepository, names []string) *UsernamePolicy {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return &UsernamePolicy{users: users, names: m}
}

func (p *UsernamePolicy) IsAdmin(ctx context.Context, actor uuid.UUID) (bool, error) {
	if len(p.names) == 0 {
		return false, nil
	}
	u, err := p.users.GetByID(ctx, actor)
	if err != nil {
		return false, err
	}
	_, ok := p.names[u.Username]
	return ok, nil
}

// AdminService holds operator-only operations.
type AdminService interface {
	ListUsers(ctx context.Context, actor uuid.UUID) ([]model.UserRef, error)
}

type AdminServiceImpl struct {
	users  repository.UserRepository
	policy AdminPolicy
}

// NewAdminService constructs AdminService.
func NewAdminService(users repository.UserRepository, policy AdminPolicy) *AdminServiceImpl {
	return &AdminServiceImpl{users: users, policy: policy}
}

func (s *AdminServiceImpl) ListUsers(ctx context.Context, actor uuid.UUID) ([]model.UserRef, error) {
	ok, err := s.policy.IsAdmin(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.ErrAccessDenied
	}
	return s.users.List(ctx)
}
