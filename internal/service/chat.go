package service

import (
	"context"
	"io"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/pairchat/internal/attachment"
	"github.com/and161185/pairchat/internal/errs"
	"github.com/and161185/pairchat/internal/message"
	"github.com/and161185/pairchat/internal/model"
	"github.com/and161185/pairchat/internal/realtime"
	"github.com/and161185/pairchat/internal/render"
	"github.com/and161185/pairchat/internal/repository"
	"github.com/and161185/pairchat/internal/search"
)

// SendInput is a message as submitted by a client. Attachment is raw bytes;
// its type is derived from content.
type SendInput struct {
	Content    string
	Attachment []byte
	Private    bool
	TTLHours   *float64
}

// EditInput carries the fields to change. A nil Attachment leaves it untouched.
type EditInput struct {
	Content    *string
	Attachment []byte
}

// ConversationService orchestrates per-pair chats. Every operation first
// resolves the peer and checks that neither side blocks the other.
type ConversationService interface {
	Start(ctx context.Context, actor uuid.UUID, peer string) (model.Conversation, error)
	Load(ctx context.Context, actor uuid.UUID, peer string) (model.Transcript, error)
	Delete(ctx context.Context, actor uuid.UUID, peer string) error
	Send(ctx context.Context, actor uuid.UUID, peer string, in SendInput) (model.Message, error)
	Edit(ctx context.Context, actor uuid.UUID, peer string, id uuid.UUID, in EditInput) (model.Message, error)
	DeleteMessage(ctx context.Context, actor uuid.UUID, peer string, id uuid.UUID) error
	Clear(ctx context.Context, actor uuid.UUID, peer string) error
	Search(ctx context.Context, actor uuid.UUID, peer, query string) ([]model.Message, error)
	Render(ctx context.Context, actor uuid.UUID, peer string, w io.Writer) error
	// Recent returns the latest visible message.
	Recent(ctx context.Context, actor uuid.UUID, peer string) (model.Message, error)
	// MarkSeen flags the peer's visible messages as seen by actor.
	MarkSeen(ctx context.Context, actor uuid.UUID, peer string) (int64, error)
	// SetExpiry schedules (or with nil clears) deletion of the whole conversation.
	SetExpiry(ctx context.Context, actor uuid.UUID, peer string, at *time.Time) error
	// Watch joins the conversation's room. The caller must Leave.
	Watch(ctx context.Context, actor uuid.UUID, peer string) (*realtime.Subscription, error)
}

type ConversationServiceImpl struct {
	gate
	chat      repository.ChatRepository
	lifecycle *message.Lifecycle
	inspector *attachment.Inspector
	bus       *realtime.Bus
	log       *zap.Logger
	loc       *time.Location
}

// NewConversationService wires the chat orchestrator.
func NewConversationService(
	users repository.UserRepository,
	graph repository.GraphRepository,
	chat repository.ChatRepository,
	lifecycle *message.Lifecycle,
	inspector *attachment.Inspector,
	bus *realtime.Bus,
	log *zap.Logger,
) *ConversationServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &ConversationServiceImpl{
		gate:      gate{users: users, graph: graph},
		chat:      chat,
		lifecycle: lifecycle,
		inspector: inspector,
		bus:       bus,
		log:       log,
		loc:       time.UTC,
	}
}

func (s *ConversationServiceImpl) Start(ctx context.Context, actor uuid.UUID, peer string) (model.Conversation, error) {
	pair, _, err := s.pair(ctx, actor, peer)
	if err != nil {
		return model.Conversation{}, err
	}
	return s.chat.CreateConversation(ctx, pair)
}

func (s *ConversationServiceImpl) Load(ctx context.Context, actor uuid.UUID, peer string) (model.Transcript, error) {
	pair, _, err := s.pair(ctx, actor, peer)
	if err != nil {
		return model.Transcript{}, err
	}
	return s.transcript(ctx, pair)
}

// transcript loads visible messages and resolves all senders in one lookup.
func (s *ConversationServiceImpl) transcript(ctx context.Context, pair model.PairKey) (model.Transcript, error) {
	conv, msgs, err := s.lifecycle.Load(ctx, pair)
	if err != nil {
		return model.Transcript{}, err
	}
	ids := []uuid.UUID{pair.Lo, pair.Hi}
	seen := map[uuid.UUID]bool{pair.Lo: true, pair.Hi: true}
	for _, m := range msgs {
		if !seen[m.SenderID] {
			seen[m.SenderID] = true
			ids = append(ids, m.SenderID)
		}
	}
	refs, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return model.Transcript{}, err
	}
	senders := make(map[uuid.UUID]model.UserRef, len(refs))
	for _, r := range refs {
		senders[r.ID] = r
	}
	return model.Transcript{
		Conversation: conv,
		Participants: [2]model.UserRef{senders[pair.Lo], senders[pair.Hi]},
		Messages:     msgs,
		Senders:      senders,
	}, nil
}

func (s *ConversationServiceImpl) Delete(ctx context.Context, actor uuid.UUID, peer string) error {
	pair, _, err := s.pair(ctx, actor, peer)
	if err != nil {
		return err
	}
	conv, err := s.chat.GetConversation(ctx, pair)
	if err != nil {
		return err
	}
	if err := s.chat.DeleteConversation(ctx, pair); err != nil {
		return err
	}
	s.bus.CloseRoom(conv.ID)
	return nil
}

func (s *ConversationServiceImpl) Send(ctx context.Context, actor uuid.UUID, peer string, in SendInput) (model.Message, error) {
	pair, _, err := s.pair(ctx, actor, peer)
	if err != nil {
		return model.Message{}, err
	}
	d := message.Draft{Content: in.Content, Private: in.Private, TTLHours: in.TTLHours}
	if in.Attachment != nil {
		if d.Attachment, err = s.inspector.Inspect(in.Attachment); err != nil {
			return model.Message{}, err
		}
	}
	m, err := s.lifecycle.Append(ctx, pair, actor, d)
	if err != nil {
		return model.Message{}, err
	}
	// the write is committed; fan-out can only lose live copies
	n := s.bus.Publish(m.ConversationID, m)
	s.log.Debug("message published",
		zap.String("conversation_id", m.ConversationID.String()),
		zap.String("message_id", m.ID.String()),
		zap.Int("receivers", n))
	return m, nil
}

func (s *ConversationServiceImpl) Edit(ctx context.Context, actor uuid.UUID, peer string, id uuid.UUID, in EditInput) (model.Message, error) {
	pair, _, err := s.pair(ctx, actor, peer)
	if err != nil {
		return model.Message{}, err
	}
	edit := model.MessageEdit{Content: in.Content}
	if in.Attachment != nil {
		if edit.Attachment, err = s.inspector.Inspect(in.Attachment); err != nil {
			return model.Message{}, err
		}
	}
	return s.lifecycle.Edit(ctx, pair, id, edit)
}

func (s *ConversationServiceImpl) DeleteMessage(ctx context.Context, actor uuid.UUID, peer string, id uuid.UUID) error {
	pair, _, err := s.pair(ctx, actor, peer)
	if err != nil {
		return err
	}
	return s.lifecycle.Delete(ctx, pair, id)
}

func (s *ConversationServiceImpl) Clear(ctx context.Context, actor uuid.UUID, peer string) error {
	pair, _, err := s.pair(ctx, actor, peer)
	if err != nil {
		return err
	}
	return s.chat.ClearMessages(ctx, pair)
}

func (s *ConversationServiceImpl) Search(ctx context.Context, actor uuid.UUID, peer, query string) ([]model.Message, error) {
	pair, _, err := s.pair(ctx, actor, peer)
	if err != nil {
		return nil, err
	}
	if len(search.Terms(query)) == 0 {
		return nil, errs.ErrEmptyQuery
	}
	_, msgs, err := s.lifecycle.Load(ctx, pair)
	if err != nil {
		return nil, err
	}
	return search.Rank(msgs, query)
}

func (s *ConversationServiceImpl) Render(ctx context.Context, actor uuid.UUID, peer string, w io.Writer) error {
	pair, _, err := s.pair(ctx, actor, peer)
	if err != nil {
		return err
	}
	tr, err := s.transcript(ctx, pair)
	if err != nil {
		return err
	}
	return render.Transcript(w, tr, actor, s.loc)
}

func (s *ConversationServiceImpl) Recent(ctx context.Context, actor uuid.UUID, peer string) (model.Message, error) {
	pair, _, err := s.pair(ctx, actor, peer)
	if err != nil {
		return model.Message{}, err
	}
	_, msgs, err := s.lifecycle.Load(ctx, pair)
	if err != nil {
		return model.Message{}, err
	}
	if len(msgs) == 0 {
		return model.Message{}, errs.ErrMessageNotFound
	}
	return msgs[len(msgs)-1], nil
}

func (s *ConversationServiceImpl) MarkSeen(ctx context.Context, actor uuid.UUID, peer string) (int64, error) {
	pair, u, err := s.pair(ctx, actor, peer)
	if err != nil {
		return 0, err
	}
	_, msgs, err := s.lifecycle.Load(ctx, pair)
	if err != nil {
		return 0, err
	}
	var ids []uuid.UUID
	for _, m := range msgs {
		if m.SenderID == u.ID && !m.Seen {
			ids = append(ids, m.ID)
		}
	}
	return s.chat.MarkSeen(ctx, pair, ids)
}

func (s *ConversationServiceImpl) SetExpiry(ctx context.Context, actor uuid.UUID, peer string, at *time.Time) error {
	pair, _, err := s.pair(ctx, actor, peer)
	if err != nil {
		return err
	}
	return s.chat.SetConversationExpiry(ctx, pair, at)
}

func (s *ConversationServiceImpl) Watch(ctx context.Context, actor uuid.UUID, peer string) (*realtime.Subscription, error) {
	pair, _, err := s.pair(ctx, actor, peer)
	if err != nil {
		return nil, err
	}
	conv, err := s.chat.GetConversation(ctx, pair)
	if err != nil {
		return nil, err
	}
	return s.bus.Join(conv.ID), nil
}

// EvictPair closes the live room of pair. It is registered as a block hook
// so blocked viewers stop receiving messages.
func (s *ConversationServiceImpl) EvictPair(ctx context.Context, pair model.PairKey) {
	conv, err := s.chat.GetConversation(ctx, pair)
	if err != nil {
		return
	}
	if n := s.bus.CloseRoom(conv.ID); n > 0 {
		s.log.Info("room closed after block", zap.String("conversation_id", conv.ID.String()), zap.Int("subscribers", n))
	}
}
