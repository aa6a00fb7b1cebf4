package memory

import (
	"context"
	"sync"
	"time"

	"github.com/and161185/pairchat/internal/errs"
	"github.com/and161185/pairchat/internal/model"
	"github.com/gofrs/uuid/v5"
)

// conversation keeps messages in an arena addressed by id plus an ordered id log.
type conversation struct {
	mu    sync.RWMutex
	c     model.Conversation
	log   []uuid.UUID
	arena map[uuid.UUID]*model.Message
}

// ChatRepo implements ChatRepository in memory.
type ChatRepo struct{ s *Store }

// NewChatRepo constructs a chat repository over s.
func NewChatRepo(s *Store) *ChatRepo { return &ChatRepo{s: s} }

func (r *ChatRepo) get(pair model.PairKey) (*conversation, error) {
	r.s.convMu.Lock()
	defer r.s.convMu.Unlock()
	cv, ok := r.s.convs[pair]
	if !ok {
		return nil, errs.ErrConversationNotFound
	}
	return cv, nil
}

func (r *ChatRepo) CreateConversation(_ context.Context, pair model.PairKey) (model.Conversation, error) {
	r.s.mu.RLock()
	_, okLo := r.s.users[pair.Lo]
	_, okHi := r.s.users[pair.Hi]
	r.s.mu.RUnlock()
	if !okLo || !okHi {
		return model.Conversation{}, errs.ErrUserNotFound
	}

	id, err := uuid.NewV4()
	if err != nil {
		return model.Conversation{}, err
	}
	r.s.convMu.Lock()
	defer r.s.convMu.Unlock()
	if _, ok := r.s.convs[pair]; ok {
		return model.Conversation{}, errs.ErrConversationExists
	}
	now := r.s.now()
	cv := &conversation{
		c:     model.Conversation{ID: id, Pair: pair, CreatedAt: now, UpdatedAt: now},
		arena: make(map[uuid.UUID]*model.Message),
	}
	r.s.convs[pair] = cv
	return cv.c, nil
}

func (r *ChatRepo) GetConversation(_ context.Context, pair model.PairKey) (model.Conversation, error) {
	cv, err := r.get(pair)
	if err != nil {
		return model.Conversation{}, err
	}
	cv.mu.RLock()
	defer cv.mu.RUnlock()
	return cv.c, nil
}

func (r *ChatRepo) LoadConversation(_ context.Context, pair model.PairKey) (model.Conversation, []model.Message, error) {
	cv, err := r.get(pair)
	if err != nil {
		return model.Conversation{}, nil, err
	}
	cv.mu.RLock()
	defer cv.mu.RUnlock()
	msgs := make([]model.Message, 0, len(cv.log))
	for _, id := range cv.log {
		msgs = append(msgs, *cv.arena[id])
	}
	return cv.c, msgs, nil
}

func (r *ChatRepo) DeleteConversation(_ context.Context, pair model.PairKey) error {
	r.s.convMu.Lock()
	defer r.s.convMu.Unlock()
	if _, ok := r.s.convs[pair]; !ok {
		return errs.ErrConversationNotFound
	}
	delete(r.s.convs, pair)
	return nil
}

func (r *ChatRepo) SetConversationExpiry(_ context.Context, pair model.PairKey, at *time.Time) error {
	return r.mutate(pair, func(cv *conversation) error {
		if at != nil {
			t := *at
			at = &t
		}
		cv.c.DeleteAt = at
		return nil
	})
}

// mutate runs fn under the conversation's write lock and bumps UpdatedAt on success.
func (r *ChatRepo) mutate(pair model.PairKey, fn func(cv *conversation) error) error {
	cv, err := r.get(pair)
	if err != nil {
		return err
	}
	cv.mu.Lock()
	defer cv.mu.Unlock()
	if err := fn(cv); err != nil {
		return err
	}
	cv.c.UpdatedAt = r.s.now()
	return nil
}

func (r *ChatRepo) AppendMessage(_ context.Context, pair model.PairKey, m model.Message) (model.Message, error) {
	err := r.mutate(pair, func(cv *conversation) error {
		m.ConversationID = cv.c.ID
		m.Seen = false
		cp := m
		cv.arena[m.ID] = &cp
		cv.log = append(cv.log, m.ID)
		return nil
	})
	if err != nil {
		return model.Message{}, err
	}
	return m, nil
}

func (r *ChatRepo) UpdateMessage(_ context.Context, pair model.PairKey, id uuid.UUID, edit model.MessageEdit) (model.Message, error) {
	var out model.Message
	err := r.mutate(pair, func(cv *conversation) error {
		m, ok := cv.arena[id]
		if !ok {
			return errs.ErrMessageNotFound
		}
		if edit.Content != nil {
			m.Content = *edit.Content
		}
		if edit.Attachment != nil {
			a := *edit.Attachment
			m.Attachment = &a
		}
		out = *m
		return nil
	})
	return out, err
}

func (r *ChatRepo) DeleteMessage(_ context.Context, pair model.PairKey, id uuid.UUID) error {
	return r.mutate(pair, func(cv *conversation) error {
		if _, ok := cv.arena[id]; !ok {
			return errs.ErrMessageNotFound
		}
		delete(cv.arena, id)
		cv.log, _ = without(cv.log, id)
		return nil
	})
}

func (r *ChatRepo) ClearMessages(_ context.Context, pair model.PairKey) error {
	return r.mutate(pair, func(cv *conversation) error {
		cv.log = nil
		cv.arena = make(map[uuid.UUID]*model.Message)
		return nil
	})
}

func (r *ChatRepo) MarkSeen(_ context.Context, pair model.PairKey, ids []uuid.UUID) (int64, error) {
	var n int64
	err := r.mutate(pair, func(cv *conversation) error {
		for _, id := range ids {
			if m, ok := cv.arena[id]; ok && !m.Seen {
				m.Seen = true
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *ChatRepo) snapshot() []*conversation {
	r.s.convMu.Lock()
	defer r.s.convMu.Unlock()
	out := make([]*conversation, 0, len(r.s.convs))
	for _, cv := range r.s.convs {
		out = append(out, cv)
	}
	return out
}

func (r *ChatRepo) DeleteExpiredMessages(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for _, cv := range r.snapshot() {
		cv.mu.Lock()
		kept := cv.log[:0]
		for _, id := range cv.log {
			if m := cv.arena[id]; m.ExpiresAt != nil && !m.ExpiresAt.After(now) {
				delete(cv.arena, id)
				n++
				continue
			}
			kept = append(kept, id)
		}
		cv.log = kept
		cv.mu.Unlock()
	}
	return n, nil
}

func (r *ChatRepo) DeleteExpiredConversations(_ context.Context, now time.Time) ([]uuid.UUID, error) {
	r.s.convMu.Lock()
	defer r.s.convMu.Unlock()
	var reaped []uuid.UUID
	for pair, cv := range r.s.convs {
		cv.mu.RLock()
		expired := cv.c.DeleteAt != nil && !cv.c.DeleteAt.After(now)
		id := cv.c.ID
		cv.mu.RUnlock()
		if expired {
			delete(r.s.convs, pair)
			reaped = append(reaped, id)
		}
	}
	return reaped, nil
}
