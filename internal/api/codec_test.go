package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
)

func TestCodec_Registered(t *testing.T) {
	t.Parallel()

	c := encoding.GetCodec(Codec)
	require.NotNil(t, c)
	require.Equal(t, Codec, c.Name())
}

func TestCodec_MessageKeepsOptionalFields(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 1, 12, 30, 0, 123456789, time.UTC)
	in := Message{
		ID:         "m1",
		Content:    "hi",
		Attachment: &Attachment{Data: []byte{0x89, 'P', 'N', 'G'}, MimeType: "image/png", Kind: "image"},
		Private:    true,
		CreatedAt:  at,
		ExpiresAt:  &at,
	}
	b, err := codec{}.Marshal(&in)
	require.NoError(t, err)

	var out Message
	require.NoError(t, codec{}.Unmarshal(b, &out))
	require.True(t, in.CreatedAt.Equal(out.CreatedAt), "nanosecond time must survive")
	require.NotNil(t, out.ExpiresAt)
	require.Equal(t, in.Attachment, out.Attachment)

	plain := Message{ID: "m2", Content: "x", CreatedAt: at}
	b, err = codec{}.Marshal(&plain)
	require.NoError(t, err)
	var got Message
	require.NoError(t, codec{}.Unmarshal(b, &got))
	require.Nil(t, got.Attachment)
	require.Nil(t, got.ExpiresAt)
}

func TestCodec_ClearExpiry(t *testing.T) {
	t.Parallel()

	b, err := codec{}.Marshal(&ExpiryRequest{Peer: "bob"})
	require.NoError(t, err)
	var out ExpiryRequest
	require.NoError(t, codec{}.Unmarshal(b, &out))
	require.Equal(t, "bob", out.Peer)
	require.Nil(t, out.DeleteAt)
}

func TestCodec_RejectsGarbage(t *testing.T) {
	t.Parallel()

	var out Message
	require.Error(t, codec{}.Unmarshal([]byte{0xff, 0x00}, &out))
}

func TestFullMethod(t *testing.T) {
	t.Parallel()

	require.Equal(t, "/pairchat.v1.PairChat/SendMessage", FullMethod(MethodSendMessage))
}
