// Package message owns creation, editing, deletion and expiry of messages.
package message

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/pairchat/internal/errs"
	"github.com/and161185/pairchat/internal/model"
	"github.com/and161185/pairchat/internal/repository"
)

// DefaultTTL applies to private messages sent without an explicit lifetime.
const DefaultTTL = 24 * time.Hour

// maxTTLHours is the longest lifetime a time.Duration can hold.
const maxTTLHours = float64(math.MaxInt64) / float64(time.Hour)

// Draft is an unsent message.
type Draft struct {
	Content    string
	Attachment *model.Attachment // already classified
	Private    bool
	TTLHours   *float64 // private only; nil or 0 selects the default
}

// Lifecycle creates and mutates messages on top of a chat repository.
type Lifecycle struct {
	repo       repository.ChatRepository
	defaultTTL time.Duration
	now        func() time.Time
}

// Option configures a Lifecycle.
type Option func(*Lifecycle)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(l *Lifecycle) { l.now = now } }

// WithDefaultTTL overrides DefaultTTL.
func WithDefaultTTL(d time.Duration) Option {
	return func(l *Lifecycle) {
		if d > 0 {
			l.defaultTTL = d
		}
	}
}

// NewLifecycle constructs a Lifecycle.
func NewLifecycle(repo repository.ChatRepository, opts ...Option) *Lifecycle {
	l := &Lifecycle{repo: repo, defaultTTL: DefaultTTL, now: time.Now}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Now returns the lifecycle clock's current time.
func (l *Lifecycle) Now() time.Time { return l.now() }

// Build validates d and produces the message to store. It does not persist.
func (l *Lifecycle) Build(sender uuid.UUID, d Draft) (model.Message, error) {
	content := strings.TrimSpace(d.Content)
	if content == "" && d.Attachment == nil {
		return model.Message{}, errs.ErrEmptyMessage
	}
	id, err := uuid.NewV4()
	if err != nil {
		return model.Message{}, err
	}
	now := l.now()
	m := model.Message{
		ID:         id,
		SenderID:   sender,
		Content:    content,
		Attachment: d.Attachment,
		Private:    d.Private,
		CreatedAt:  now,
	}
	if d.Private {
		ttl := l.defaultTTL
		if d.TTLHours != nil {
			h := *d.TTLHours
			switch {
			case math.IsNaN(h) || h < 0:
				return model.Message{}, fmt.Errorf("%w: negative ttl", errs.ErrInvalidArgument)
			case h >= maxTTLHours:
				return model.Message{}, fmt.Errorf("%w: ttl too long", errs.ErrInvalidArgument)
			}
			if h > 0 {
				ttl = time.Duration(h * float64(time.Hour))
			}
		}
		exp := now.Add(ttl)
		m.ExpiresAt = &exp
	}
	return m, nil
}

// Append builds the message and appends it to the end of the pair's log.
func (l *Lifecycle) Append(ctx context.Context, pair model.PairKey, sender uuid.UUID, d Draft) (model.Message, error) {
	if !pair.Has(sender) {
		return model.Message{}, errs.ErrAccessDenied
	}
	m, err := l.Build(sender, d)
	if err != nil {
		return model.Message{}, err
	}
	return l.repo.AppendMessage(ctx, pair, m)
}

// Edit applies the supplied fields. Expired messages are reported as missing.
func (l *Lifecycle) Edit(ctx context.Context, pair model.PairKey, id uuid.UUID, edit model.MessageEdit) (model.Message, error) {
	if edit.Content == nil && edit.Attachment == nil {
		return model.Message{}, fmt.Errorf("%w: nothing to edit", errs.ErrInvalidArgument)
	}
	if edit.Content != nil {
		c := strings.TrimSpace(*edit.Content)
		edit.Content = &c
	}
	cur, err := l.find(ctx, pair, id)
	if err != nil {
		return model.Message{}, err
	}
	if edit.Content != nil && *edit.Content == "" && edit.Attachment == nil && cur.Attachment == nil {
		return model.Message{}, errs.ErrEmptyMessage
	}
	return l.repo.UpdateMessage(ctx, pair, id, edit)
}

// Delete removes one visible message.
func (l *Lifecycle) Delete(ctx context.Context, pair model.PairKey, id uuid.UUID) error {
	if _, err := l.find(ctx, pair, id); err != nil {
		return err
	}
	return l.repo.DeleteMessage(ctx, pair, id)
}

// find returns the visible message id of pair.
func (l *Lifecycle) find(ctx context.Context, pair model.PairKey, id uuid.UUID) (model.Message, error) {
	_, msgs, err := l.Load(ctx, pair)
	if err != nil {
		return model.Message{}, err
	}
	for _, m := range msgs {
		if m.ID == id {
			return m, nil
		}
	}
	return model.Message{}, errs.ErrMessageNotFound
}

// Load returns the conversation with its visible messages.
func (l *Lifecycle) Load(ctx context.Context, pair model.PairKey) (model.Conversation, []model.Message, error) {
	c, msgs, err := l.repo.LoadConversation(ctx, pair)
	if err != nil {
		return model.Conversation{}, nil, err
	}
	return c, Visible(msgs, l.now()), nil
}

// IsVisible is false once now reaches the message's expiry.
func IsVisible(m model.Message, now time.Time) bool {
	return m.ExpiresAt == nil || now.Before(*m.ExpiresAt)
}

// Visible keeps the messages that pass IsVisible, in order.
func Visible(msgs []model.Message, now time.Time) []model.Message {
	out := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		if IsVisible(m, now) {
			out = append(out, m)
		}
	}
	return out
}
