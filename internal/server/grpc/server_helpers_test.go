package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/and161185/pairchat/internal/errs"
)

func makeJWT(t *testing.T, sub string, key []byte, method jwt.SigningMethod, iat time.Time, ttl time.Duration) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   sub,
		IssuedAt:  jwt.NewNumericDate(iat),
		NotBefore: jwt.NewNumericDate(iat),
		ExpiresAt: jwt.NewNumericDate(iat.Add(ttl)),
	}
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return s
}

func ctxWithAuth(token string) context.Context {
	return metadata.NewIncomingContext(context.Background(),
		metadata.Pairs("authorization", "Bearer "+token))
}

func wantCode(t *testing.T, err error, want codes.Code) {
	t.Helper()
	if st, ok := status.FromError(err); !ok || st.Code() != want {
		t.Fatalf("want %s, got %v", want, err)
	}
}

func Test_bearerTokenFromMD(t *testing.T) {
	t.Parallel()

	md := func(vals ...string) context.Context {
		m := metadata.New(nil)
		for _, v := range vals {
			m.Append("authorization", v)
		}
		return metadata.NewIncomingContext(context.Background(), m)
	}
	cases := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"plain", md("Bearer abc.def.ghi"), "abc.def.ghi"},
		{"case and spaces among many", md("Basic foo", "  bearer   tok.part.sig   "), "tok.part.sig"},
		{"basic only", md("Basic foo"), ""},
		{"empty token", md("Bearer   "), ""},
		{"no bearer among many", md("Basic a", "Digest b"), ""},
		{"no metadata", context.Background(), ""},
	}
	for _, c := range cases {
		got, err := bearerTokenFromMD(c.ctx)
		if c.want == "" {
			if err == nil {
				t.Fatalf("%s: want error, got %q", c.name, got)
			}
			continue
		}
		if err != nil || got != c.want {
			t.Fatalf("%s: got=%q err=%v", c.name, got, err)
		}
	}
}

func Test_userIDFromCtx(t *testing.T) {
	t.Parallel()

	key := []byte("secret")
	s := &Server{signKey: key}
	sub := uuid.Must(uuid.NewV4()).String()
	now := time.Now().UTC()

	id, err := s.userIDFromCtx(ctxWithAuth(makeJWT(t, sub, key, jwt.SigningMethodHS256, now.Add(-time.Minute), 10*time.Minute)))
	if err != nil || id.String() != sub {
		t.Fatalf("valid token: id=%s err=%v", id, err)
	}

	// one second either side of now is inside the leeway
	skewed := jwt.RegisteredClaims{
		Subject:   sub,
		NotBefore: jwt.NewNumericDate(now.Add(-time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Second)),
	}
	tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, skewed).SignedString(key)
	if _, err := s.userIDFromCtx(ctxWithAuth(tok)); err != nil {
		t.Fatalf("leeway: %v", err)
	}

	future := jwt.RegisteredClaims{
		Subject:   sub,
		NotBefore: jwt.NewNumericDate(now.Add(10 * time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
	nbf, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, future).SignedString(key)

	bad := map[string]context.Context{
		"no metadata": context.Background(),
		"expired":     ctxWithAuth(makeJWT(t, sub, key, jwt.SigningMethodHS256, now.Add(-2*time.Hour), -time.Hour)),
		"bad subject": ctxWithAuth(makeJWT(t, "not-a-uuid", key, jwt.SigningMethodHS256, now, time.Hour)),
		"wrong alg":   ctxWithAuth(makeJWT(t, sub, key, jwt.SigningMethodHS384, now, time.Hour)),
		"wrong key":   ctxWithAuth(makeJWT(t, sub, []byte("other"), jwt.SigningMethodHS256, now, time.Hour)),
		"garbage":     ctxWithAuth("this-is-not-a-jwt"),
		"nbf ahead":   ctxWithAuth(nbf),
	}
	for name, ctx := range bad {
		if _, err := s.userIDFromCtx(ctx); err == nil {
			t.Fatalf("%s: want error", name)
		}
	}
}

func Test_actor_PrefersContextValue(t *testing.T) {
	t.Parallel()

	s := &Server{signKey: []byte("k")}
	want := uuid.Must(uuid.NewV4())
	got, err := s.actor(WithUserID(context.Background(), want))
	if err != nil || got != want {
		t.Fatalf("got=%s err=%v", got, err)
	}
	_, err = s.actor(context.Background())
	wantCode(t, err, codes.Unauthenticated)
}

func Test_fail_MapsKinds(t *testing.T) {
	t.Parallel()

	s := &Server{log: zaptest.NewLogger(t)}
	cases := []struct {
		err  error
		want codes.Code
	}{
		{errs.ErrAccessDenied, codes.PermissionDenied},
		{fmt.Errorf("load: %w", errs.ErrConversationNotFound), codes.NotFound},
		{errs.ErrConversationExists, codes.AlreadyExists},
		{errs.ErrEmptyMessage, codes.InvalidArgument},
		{errs.ErrUnrecognizedFormat, codes.InvalidArgument},
		{errs.ErrUnauthorized, codes.Unauthenticated},
		{errs.ErrRateLimited, codes.ResourceExhausted},
		{errors.New("pg: connection reset"), codes.Internal},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
	}
	for _, c := range cases {
		wantCode(t, s.fail("op", c.err), c.want)
	}

	st, _ := status.FromError(s.fail("op", errors.New("secret dsn")))
	if st.Message() != "op: internal" {
		t.Fatalf("internal cause leaked: %q", st.Message())
	}
}

type loopbackAddr struct{}

func (loopbackAddr) Network() string { return "tcp" }
func (loopbackAddr) String() string  { return "127.0.0.1:5555" }

func Test_remoteIP(t *testing.T) {
	t.Parallel()

	if got := remoteIP(context.Background()); got != "" {
		t.Fatalf("want empty, got %q", got)
	}
	pctx := peer.NewContext(context.Background(), &peer.Peer{Addr: loopbackAddr{}})
	if got := remoteIP(pctx); got != "127.0.0.1" {
		t.Fatalf("unexpected peer %q", got)
	}
	// a reconnect from another source port keys the same
	again := peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 6000}})
	if got := remoteIP(again); got != "127.0.0.1" {
		t.Fatalf("port must be stripped, got %q", got)
	}
	v6 := peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.IPv6loopback, Port: 443}})
	if got := remoteIP(v6); got != "::1" {
		t.Fatalf("ipv6 host %q", got)
	}
	bare := peer.NewContext(context.Background(), &peer.Peer{Addr: bufAddr{}})
	if got := remoteIP(bare); got != "bufconn" {
		t.Fatalf("portless address must pass through, got %q", got)
	}
}

type bufAddr struct{}

func (bufAddr) Network() string { return "bufconn" }
func (bufAddr) String() string  { return "bufconn" }
