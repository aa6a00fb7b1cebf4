// Package convert maps domain values to the wire messages of package api and back.
package convert

import (
	"fmt"

	"github.com/and161185/pairchat/internal/api"
	"github.com/and161185/pairchat/internal/attachment"
	"github.com/and161185/pairchat/internal/errs"
	model "github.com/and161185/pairchat/internal/model"
	"github.com/and161185/pairchat/internal/service"
	u "github.com/gofrs/uuid/v5"
)

// --- identities ---

// ToWireUser exposes only id and username.
func ToWireUser(r model.UserRef) api.User {
	return api.User{ID: r.ID.String(), Username: r.Username}
}

// ToWireUsers keeps order; nil in gives an empty list.
func ToWireUsers(in []model.UserRef) []api.User {
	out := make([]api.User, 0, len(in))
	for _, r := range in {
		out = append(out, ToWireUser(r))
	}
	return out
}

// --- conversations ---

// ToWireConversation converts c; participants are optional.
func ToWireConversation(c model.Conversation, participants ...model.UserRef) api.Conversation {
	return api.Conversation{
		ID:           c.ID.String(),
		Participants: ToWireUsers(participants),
		DeleteAt:     c.DeleteAt,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

// ToWireMessage converts m. senders may be nil; unknown senders get no name.
func ToWireMessage(m model.Message, senders map[u.UUID]model.UserRef) api.Message {
	out := api.Message{
		ID:             m.ID.String(),
		ConversationID: m.ConversationID.String(),
		SenderID:       m.SenderID.String(),
		Content:        m.Content,
		Private:        m.Private,
		Seen:           m.Seen,
		CreatedAt:      m.CreatedAt,
		ExpiresAt:      m.ExpiresAt,
	}
	if r, ok := senders[m.SenderID]; ok {
		out.SenderName = r.Username
	}
	if a := m.Attachment; a != nil {
		out.Attachment = &api.Attachment{
			Data:     a.Data,
			MimeType: a.MimeType,
			Kind:     string(attachment.KindOf(a.MimeType)),
		}
	}
	return out
}

// ToWireMessages converts a message slice.
func ToWireMessages(in []model.Message, senders map[u.UUID]model.UserRef) []api.Message {
	out := make([]api.Message, 0, len(in))
	for _, m := range in {
		out = append(out, ToWireMessage(m, senders))
	}
	return out
}

// ToWireTranscript converts a loaded conversation with resolved sender names.
func ToWireTranscript(tr model.Transcript) api.Transcript {
	return api.Transcript{
		Conversation: ToWireConversation(tr.Conversation, tr.Participants[:]...),
		Messages:     ToWireMessages(tr.Messages, tr.Senders),
	}
}

// --- client -> server ---

// FromWireMessageID parses a message id.
func FromWireMessageID(s string) (u.UUID, error) {
	var id u.UUID
	if err := id.UnmarshalText([]byte(s)); err != nil {
		return u.Nil, fmt.Errorf("message id %q: %w", s, errs.ErrInvalidArgument)
	}
	return id, nil
}

// FromWireSend builds the service input of a send.
func FromWireSend(in *api.SendRequest) service.SendInput {
	return service.SendInput{
		Content:    in.Content,
		Attachment: in.Attachment,
		Private:    in.Private,
		TTLHours:   in.TTLHours,
	}
}

// FromWireEdit parses the target id and builds the service input of an edit.
func FromWireEdit(in *api.EditRequest) (u.UUID, service.EditInput, error) {
	id, err := FromWireMessageID(in.MessageID)
	if err != nil {
		return u.Nil, service.EditInput{}, err
	}
	return id, service.EditInput{Content: in.Content, Attachment: in.Attachment}, nil
}
