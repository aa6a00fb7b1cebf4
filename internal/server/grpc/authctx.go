package grpcserver

import (
	"context"
	"strings"

	"github.com/gofrs/uuid/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/and161185/pairchat/internal/api"
)

type ctxKey string

const userIDKey ctxKey = "pairchat.userID"

// WithUserID stores authenticated user ID in context.
func WithUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserIDFromCtx fetches user ID from context.
func UserIDFromCtx(ctx context.Context) (uuid.UUID, bool) {
	v := ctx.Value(userIDKey)
	if v == nil {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// guarded reports whether fullMethod belongs to the chat service and is not open.
func guarded(fullMethod string, open map[string]bool) bool {
	return strings.HasPrefix(fullMethod, "/"+api.ServiceName+"/") && !open[fullMethod]
}

func openSet(methods []string) map[string]bool {
	m := make(map[string]bool, len(methods))
	for _, name := range methods {
		m[api.FullMethod(name)] = true
	}
	return m
}

// AuthUnary verifies the bearer token of every chat call except the open
// ones and puts the caller into ctx. Other services (health) pass through.
func (s *Server) AuthUnary(open ...string) grpc.UnaryServerInterceptor {
	skip := openSet(open)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if !guarded(info.FullMethod, skip) {
			return next(ctx, req)
		}
		id, err := s.userIDFromCtx(ctx)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "no auth")
		}
		return next(WithUserID(ctx, id), req)
	}
}

type authedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (a authedStream) Context() context.Context { return a.ctx }

// AuthStream is AuthUnary for streams.
func (s *Server) AuthStream() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) error {
		if !guarded(info.FullMethod, nil) {
			return next(srv, ss)
		}
		id, err := s.userIDFromCtx(ss.Context())
		if err != nil {
			return status.Error(codes.Unauthenticated, "no auth")
		}
		return next(srv, authedStream{ServerStream: ss, ctx: WithUserID(ss.Context(), id)})
	}
}
