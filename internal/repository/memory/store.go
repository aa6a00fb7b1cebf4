// Package memory contains in-process implementations of repository interfaces.
// They back the single-node dev mode and the service test suites.
package memory

import (
	"sync"
	"time"

	"github.com/and161185/pairchat/internal/model"
	"github.com/gofrs/uuid/v5"
)

// Store holds all in-memory state. Users and the social graph share one lock
// so pair mutations are atomic; each conversation has its own lock.
type Store struct {
	mu     sync.RWMutex
	users  map[uuid.UUID]*model.User
	byName map[string]uuid.UUID
	order  []uuid.UUID
	pics   map[uuid.UUID]model.Attachment

	conns  map[uuid.UUID][]uuid.UUID // user -> peers
	reqs   map[uuid.UUID][]uuid.UUID // target -> requesters
	blocks map[uuid.UUID][]uuid.UUID // blocker -> blocked

	convMu sync.Mutex
	convs  map[model.PairKey]*conversation

	now func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		users:  make(map[uuid.UUID]*model.User),
		byName: make(map[string]uuid.UUID),
		pics:   make(map[uuid.UUID]model.Attachment),
		conns:  make(map[uuid.UUID][]uuid.UUID),
		reqs:   make(map[uuid.UUID][]uuid.UUID),
		blocks: make(map[uuid.UUID][]uuid.UUID),
		convs:  make(map[model.PairKey]*conversation),
		now:    time.Now,
	}
}

func indexOf(list []uuid.UUID, id uuid.UUID) int {
	for i, v := range list {
		if v == id {
			return i
		}
	}
	return -1
}

func contains(list []uuid.UUID, id uuid.UUID) bool { return indexOf(list, id) >= 0 }

// without returns list with id removed and whether it was present.
func without(list []uuid.UUID, id uuid.UUID) ([]uuid.UUID, bool) {
	i := indexOf(list, id)
	if i < 0 {
		return list, false
	}
	return append(list[:i:i], list[i+1:]...), true
}

// refs must be called with s.mu held.
func (s *Store) refs(ids []uuid.UUID) []model.UserRef {
	out := make([]model.UserRef, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, u.Ref())
		}
	}
	return out
}
