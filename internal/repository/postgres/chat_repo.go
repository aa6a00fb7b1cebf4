package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/and161185/pairchat/internal/errs"
	"github.com/and161185/pairchat/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// ChatRepo implements ChatRepository using PostgreSQL.
// Messages live in their own table ordered by a per-row sequence; mutations
// lock the owning conversation row first.
type ChatRepo struct{ db *DB }

// NewChatRepo constructs a chat repository.
func NewChatRepo(db *DB) *ChatRepo { return &ChatRepo{db: db} }

// CreateConversation inserts the conversation row; the (user_lo, user_hi)
// unique constraint resolves concurrent creates to a single winner.
func (r *ChatRepo) CreateConversation(ctx context.Context, pair model.PairKey) (model.Conversation, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return model.Conversation{}, err
	}
	const q = `
INSERT INTO conversations (id, user_lo, user_hi)
VALUES ($1, $2, $3)
RETURNING created_at, updated_at`
	c := model.Conversation{ID: id, Pair: pair}
	if err := r.db.Pool.QueryRow(ctx, q, id, pair.Lo, pair.Hi).Scan(&c.CreatedAt, &c.UpdatedAt); err != nil {
		switch {
		case isUniqueViolation(err):
			return model.Conversation{}, errs.ErrConversationExists
		case isForeignKeyViolation(err):
			return model.Conversation{}, errs.ErrUserNotFound
		}
		return model.Conversation{}, err
	}
	return c, nil
}

const selConversation = `
SELECT id, delete_at, created_at, updated_at
FROM conversations WHERE user_lo=$1 AND user_hi=$2`

func scanConversation(row pgx.Row, pair model.PairKey) (model.Conversation, error) {
	c := model.Conversation{Pair: pair}
	if err := row.Scan(&c.ID, &c.DeleteAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Conversation{}, errs.ErrConversationNotFound
		}
		return model.Conversation{}, err
	}
	return c, nil
}

// GetConversation loads the conversation for pair.
func (r *ChatRepo) GetConversation(ctx context.Context, pair model.PairKey) (model.Conversation, error) {
	return scanConversation(r.db.Pool.QueryRow(ctx, selConversation, pair.Lo, pair.Hi), pair)
}

// LoadConversation reads the conversation and its log inside one snapshot.
func (r *ChatRepo) LoadConversation(ctx context.Context, pair model.PairKey) (c model.Conversation, msgs []model.Message, err error) {
	err = r.db.withTx(ctx, snapshot, func(tx pgx.Tx) error {
		c, err = scanConversation(tx.QueryRow(ctx, selConversation, pair.Lo, pair.Hi), pair)
		if err != nil {
			return err
		}
		msgs, err = listMessages(ctx, tx, c.ID)
		return err
	})
	if err != nil {
		return model.Conversation{}, nil, err
	}
	return c, msgs, nil
}

func listMessages(ctx context.Context, tx pgx.Tx, convID uuid.UUID) ([]model.Message, error) {
	const q = `
SELECT id, sender_id, content, attachment, mime_type, private, seen, created_at, expires_at
FROM messages WHERE conversation_id=$1
ORDER BY seq ASC`
	rows, err := tx.Query(ctx, q, convID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		m := model.Message{ConversationID: convID}
		var (
			data []byte
			mime string
		)
		if err := rows.Scan(&m.ID, &m.SenderID, &m.Content, &data, &mime, &m.Private, &m.Seen, &m.CreatedAt, &m.ExpiresAt); err != nil {
			return nil, err
		}
		if data != nil {
			m.Attachment = &model.Attachment{Data: data, MimeType: mime}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteConversation removes the conversation; messages cascade.
func (r *ChatRepo) DeleteConversation(ctx context.Context, pair model.PairKey) error {
	const q = `DELETE FROM conversations WHERE user_lo=$1 AND user_hi=$2`
	tag, err := r.db.Pool.Exec(ctx, q, pair.Lo, pair.Hi)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrConversationNotFound
	}
	return nil
}

// SetConversationExpiry sets or clears delete_at.
func (r *ChatRepo) SetConversationExpiry(ctx context.Context, pair model.PairKey, at *time.Time) error {
	const q = `UPDATE conversations SET delete_at=$3, updated_at=now() WHERE user_lo=$1 AND user_hi=$2`
	tag, err := r.db.Pool.Exec(ctx, q, pair.Lo, pair.Hi, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrConversationNotFound
	}
	return nil
}

// lockConversation serializes writers of one conversation.
func lockConversation(ctx context.Context, tx pgx.Tx, pair model.PairKey) (uuid.UUID, error) {
	const q = `SELECT id FROM conversations WHERE user_lo=$1 AND user_hi=$2 FOR UPDATE`
	var id uuid.UUID
	if err := tx.QueryRow(ctx, q, pair.Lo, pair.Hi).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, errs.ErrConversationNotFound
		}
		return uuid.Nil, err
	}
	return id, nil
}

func touch(ctx context.Context, tx pgx.Tx, convID uuid.UUID) error {
	_, err := tx.Exec(ctx, `UPDATE conversations SET updated_at=now() WHERE id=$1`, convID)
	return err
}

// AppendMessage stores m at the end of the log.
func (r *ChatRepo) AppendMessage(ctx context.Context, pair model.PairKey, m model.Message) (model.Message, error) {
	err := r.db.withTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		convID, err := lockConversation(ctx, tx, pair)
		if err != nil {
			return err
		}
		m.ConversationID = convID
		var (
			data []byte
			mime string
		)
		if m.Attachment != nil {
			data, mime = m.Attachment.Data, m.Attachment.MimeType
		}
		const ins = `
INSERT INTO messages (id, conversation_id, sender_id, content, attachment, mime_type, private, seen, created_at, expires_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,false,$8,$9)`
		if _, err := tx.Exec(ctx, ins, m.ID, convID, m.SenderID, m.Content, data, mime, m.Private, m.CreatedAt, m.ExpiresAt); err != nil {
			return err
		}
		return touch(ctx, tx, convID)
	})
	if err != nil {
		return model.Message{}, err
	}
	return m, nil
}

// UpdateMessage applies the non-nil fields of edit.
func (r *ChatRepo) UpdateMessage(ctx context.Context, pair model.PairKey, id uuid.UUID, edit model.MessageEdit) (model.Message, error) {
	var out model.Message
	err := r.db.withTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		convID, err := lockConversation(ctx, tx, pair)
		if err != nil {
			return err
		}
		var (
			replace bool
			data    []byte
			mime    string
		)
		if edit.Attachment != nil {
			replace, data, mime = true, edit.Attachment.Data, edit.Attachment.MimeType
		}
		const upd = `
UPDATE messages SET
  content    = COALESCE($3, content),
  attachment = CASE WHEN $4 THEN $5 ELSE attachment END,
  mime_type  = CASE WHEN $4 THEN $6 ELSE mime_type END
WHERE conversation_id=$1 AND id=$2
RETURNING sender_id, content, attachment, mime_type, private, seen, created_at, expires_at`
		out = model.Message{ID: id, ConversationID: convID}
		var (
			gotData []byte
			gotMime string
		)
		err = tx.QueryRow(ctx, upd, convID, id, edit.Content, replace, data, mime).
			Scan(&out.SenderID, &out.Content, &gotData, &gotMime, &out.Private, &out.Seen, &out.CreatedAt, &out.ExpiresAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errs.ErrMessageNotFound
			}
			return err
		}
		if gotData != nil {
			out.Attachment = &model.Attachment{Data: gotData, MimeType: gotMime}
		}
		return touch(ctx, tx, convID)
	})
	if err != nil {
		return model.Message{}, err
	}
	return out, nil
}

// DeleteMessage removes one message; the order of the rest is untouched.
func (r *ChatRepo) DeleteMessage(ctx context.Context, pair model.PairKey, id uuid.UUID) error {
	return r.db.withTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		convID, err := lockConversation(ctx, tx, pair)
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM messages WHERE conversation_id=$1 AND id=$2`, convID, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errs.ErrMessageNotFound
		}
		return touch(ctx, tx, convID)
	})
}

// ClearMessages empties the log but keeps the conversation.
func (r *ChatRepo) ClearMessages(ctx context.Context, pair model.PairKey) error {
	return r.db.withTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		convID, err := lockConversation(ctx, tx, pair)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE conversation_id=$1`, convID); err != nil {
			return err
		}
		return touch(ctx, tx, convID)
	})
}

// MarkSeen flags the listed messages of the conversation as seen.
func (r *ChatRepo) MarkSeen(ctx context.Context, pair model.PairKey, ids []uuid.UUID) (n int64, err error) {
	if len(ids) == 0 {
		return 0, nil
	}
	err = r.db.withTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		convID, err := lockConversation(ctx, tx, pair)
		if err != nil {
			return err
		}
		const q = `UPDATE messages SET seen=true WHERE conversation_id=$1 AND id = ANY($2) AND NOT seen`
		tag, err := tx.Exec(ctx, q, convID, ids)
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
		return nil
	})
	return n, err
}

// DeleteExpiredMessages reaps ephemeral messages past their expiry.
func (r *ChatRepo) DeleteExpiredMessages(ctx context.Context, now time.Time) (int64, error) {
	const q = `DELETE FROM messages WHERE expires_at IS NOT NULL AND expires_at <= $1`
	tag, err := r.db.Pool.Exec(ctx, q, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteExpiredConversations reaps conversations past delete_at.
func (r *ChatRepo) DeleteExpiredConversations(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	const q = `DELETE FROM conversations WHERE delete_at IS NOT NULL AND delete_at <= $1 RETURNING id`
	rows, err := r.db.Pool.Query(ctx, q, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var reaped []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		reaped = append(reaped, id)
	}
	return reaped, rows.Err()
}
