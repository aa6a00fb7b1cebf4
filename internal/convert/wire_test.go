package convert

import (
	"errors"
	"testing"
	"time"

	"github.com/and161185/pairchat/internal/api"
	"github.com/and161185/pairchat/internal/errs"
	model "github.com/and161185/pairchat/internal/model"
	u "github.com/gofrs/uuid/v5"
)

func newID(t *testing.T) u.UUID {
	t.Helper()
	id, err := u.NewV4()
	if err != nil {
		t.Fatalf("uuid: %v", err)
	}
	return id
}

func TestToWireMessage_ResolvesSenderAndKind(t *testing.T) {
	t.Parallel()

	sender := newID(t)
	exp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m := model.Message{
		ID:         newID(t),
		SenderID:   sender,
		Content:    "look",
		Attachment: &model.Attachment{Data: []byte{1}, MimeType: "image/png"},
		Private:    true,
		ExpiresAt:  &exp,
	}
	w := ToWireMessage(m, map[u.UUID]model.UserRef{sender: {ID: sender, Username: "alice"}})
	if w.SenderName != "alice" {
		t.Fatalf("sender name not resolved: %q", w.SenderName)
	}
	if w.Attachment == nil || w.Attachment.Kind != "image" || w.Attachment.MimeType != "image/png" {
		t.Fatalf("attachment mismatch: %+v", w.Attachment)
	}
	if w.ExpiresAt == nil || !w.ExpiresAt.Equal(exp) || !w.Private {
		t.Fatalf("ephemeral fields lost: %+v", w)
	}

	anon := ToWireMessage(model.Message{ID: newID(t), SenderID: newID(t), Content: "x"}, nil)
	if anon.SenderName != "" || anon.Attachment != nil {
		t.Fatalf("unexpected fields: %+v", anon)
	}
}

func TestToWireTranscript_KeepsOrder(t *testing.T) {
	t.Parallel()

	a := model.UserRef{ID: newID(t), Username: "a"}
	b := model.UserRef{ID: newID(t), Username: "b"}
	tr := model.Transcript{
		Conversation: model.Conversation{ID: newID(t)},
		Participants: [2]model.UserRef{a, b},
		Messages: []model.Message{
			{ID: newID(t), SenderID: a.ID, Content: "1"},
			{ID: newID(t), SenderID: b.ID, Content: "2"},
		},
		Senders: map[u.UUID]model.UserRef{a.ID: a, b.ID: b},
	}
	w := ToWireTranscript(tr)
	if len(w.Conversation.Participants) != 2 || w.Conversation.ID != tr.Conversation.ID.String() {
		t.Fatalf("conversation mismatch: %+v", w.Conversation)
	}
	if len(w.Messages) != 2 || w.Messages[0].Content != "1" || w.Messages[1].SenderName != "b" {
		t.Fatalf("messages mismatch: %+v", w.Messages)
	}
}

func TestToWireUsers_EmptyIsNotNil(t *testing.T) {
	t.Parallel()

	if got := ToWireUsers(nil); got == nil || len(got) != 0 {
		t.Fatalf("want empty list, got %#v", got)
	}
}

func TestFromWireEdit(t *testing.T) {
	t.Parallel()

	id := newID(t)
	text := "fixed"
	gotID, in, err := FromWireEdit(&api.EditRequest{Peer: "bob", MessageID: id.String(), Content: &text})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if gotID != id || in.Content == nil || *in.Content != "fixed" || in.Attachment != nil {
		t.Fatalf("edit mismatch: %v %+v", gotID, in)
	}

	_, _, err = FromWireEdit(&api.EditRequest{MessageID: "not-a-uuid"})
	if !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument, got %v", err)
	}
}

func TestFromWireSend(t *testing.T) {
	t.Parallel()

	ttl := 0.5
	in := FromWireSend(&api.SendRequest{Peer: "bob", Content: "hi", Private: true, TTLHours: &ttl})
	if in.Content != "hi" || !in.Private || in.TTLHours == nil || *in.TTLHours != 0.5 {
		t.Fatalf("send mismatch: %+v", in)
	}
}
