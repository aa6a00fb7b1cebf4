// Package model defines domain entities used by services and repositories.
package model

import (
	"bytes"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Tokens collects issued access tokens.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // access token expiry (for diagnostics)
}

// User is a registered identity. Relationship sets live in the graph repository.
type User struct {
	ID        uuid.UUID // PK
	Username  string    // unique
	PwdHash   []byte    // Argon2id(password, SaltAuth)
	SaltAuth  []byte    // per-user auth salt
	CreatedAt time.Time
}

// UserRef is the public view of an identity.
type UserRef struct {
	ID       uuid.UUID
	Username string
}

// Ref returns the public view of u.
func (u User) Ref() UserRef { return UserRef{ID: u.ID, Username: u.Username} }

// PairKey identifies a conversation by its unordered participant pair.
// Lo is always the byte-wise smaller id.
type PairKey struct {
	Lo uuid.UUID
	Hi uuid.UUID
}

// NewPairKey canonicalizes {a, b}.
func NewPairKey(a, b uuid.UUID) PairKey {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return PairKey{Lo: a, Hi: b}
}

// Has reports whether id is one of the two participants.
func (k PairKey) Has(id uuid.UUID) bool { return k.Lo == id || k.Hi == id }

// Other returns the participant that is not id.
func (k PairKey) Other(id uuid.UUID) uuid.UUID {
	if k.Lo == id {
		return k.Hi
	}
	return k.Lo
}

// Conversation is the durable per-pair chat record.
type Conversation struct {
	ID        uuid.UUID
	Pair      PairKey
	DeleteAt  *time.Time // optional whole-conversation expiry
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Attachment is a binary payload with its detected MIME type.
type Attachment struct {
	Data     []byte
	MimeType string
}

// Message is a single entry of a conversation log.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	SenderID       uuid.UUID
	Content        string
	Attachment     *Attachment // nil when absent
	Private        bool
	Seen           bool
	CreatedAt      time.Time
	ExpiresAt      *time.Time // set only when Private
}

// WithoutAttachment returns a copy with the attachment payload stripped.
func (m Message) WithoutAttachment() Message {
	m.Attachment = nil
	return m
}

// MessageEdit carries the fields to change; nil fields are left untouched.
type MessageEdit struct {
	Content    *string
	Attachment *Attachment
}

// Transcript is a conversation with its visible messages and resolved senders.
type Transcript struct {
	Conversation Conversation
	Participants [2]UserRef
	Messages     []Message
	Senders      map[uuid.UUID]UserRef
}
