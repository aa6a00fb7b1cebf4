package repository

import (
	"context"
	"time"

	"github.com/and161185/pairchat/internal/model"
	"github.com/gofrs/uuid/v5"
)

// ChatRepository stores conversations and their ordered message logs.
// Mutations of one conversation are serialized; reads observe a consistent snapshot.
type ChatRepository interface {
	// CreateConversation creates the conversation for pair or fails with ErrConversationExists.
	CreateConversation(ctx context.Context, pair model.PairKey) (model.Conversation, error)
	// GetConversation loads the conversation for pair.
	GetConversation(ctx context.Context, pair model.PairKey) (model.Conversation, error)
	// LoadConversation returns the conversation and all stored messages in order.
	LoadConversation(ctx context.Context, pair model.PairKey) (model.Conversation, []model.Message, error)
	// DeleteConversation removes the conversation with all its messages.
	DeleteConversation(ctx context.Context, pair model.PairKey) error
	// SetConversationExpiry sets or clears the whole-conversation expiry.
	SetConversationExpiry(ctx context.Context, pair model.PairKey, at *time.Time) error

	// AppendMessage stores m at the end of the conversation log.
	AppendMessage(ctx context.Context, pair model.PairKey, m model.Message) (model.Message, error)
	// UpdateMessage applies the non-nil fields of edit.
	UpdateMessage(ctx context.Context, pair model.PairKey, id uuid.UUID, edit model.MessageEdit) (model.Message, error)
	// DeleteMessage removes one message.
	DeleteMessage(ctx context.Context, pair model.PairKey, id uuid.UUID) error
	// ClearMessages removes every message of the conversation.
	ClearMessages(ctx context.Context, pair model.PairKey) error
	// MarkSeen flags the given messages as seen and returns how many changed.
	MarkSeen(ctx context.Context, pair model.PairKey, ids []uuid.UUID) (int64, error)

	// DeleteExpiredMessages physically removes messages whose expiry is at or before now.
	DeleteExpiredMessages(ctx context.Context, now time.Time) (int64, error)
	// DeleteExpiredConversations removes conversations whose DeleteAt is at or
	// before now and returns their ids.
	DeleteExpiredConversations(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}
