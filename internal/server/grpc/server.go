// Package grpcserver exposes the pairchat gRPC API handlers.
package grpcserver

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/and161185/pairchat/internal/api"
	"github.com/and161185/pairchat/internal/convert"
	"github.com/and161185/pairchat/internal/errs"
	"github.com/and161185/pairchat/internal/model"
	"github.com/and161185/pairchat/internal/service"
)

// Services groups the application services the handlers call.
type Services struct {
	Auth  service.AuthService
	Graph service.GraphService
	Users service.UserService
	Admin service.AdminService
	Chat  service.ConversationService
}

// Server wires services into gRPC handlers.
type Server struct {
	auth    service.AuthService
	graph   service.GraphService
	users   service.UserService
	admin   service.AdminService
	chat    service.ConversationService
	signKey []byte
	log     *zap.Logger
}

// New constructs a gRPC server with injected services.
func New(svc Services, signKey []byte, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		auth:    svc.Auth,
		graph:   svc.Graph,
		users:   svc.Users,
		admin:   svc.Admin,
		chat:    svc.Chat,
		signKey: signKey,
		log:     log,
	}
}

// codeOf maps a failure kind to its gRPC status code.
func codeOf(k errs.Kind) codes.Code {
	switch k {
	case errs.KindAccessDenied:
		return codes.PermissionDenied
	case errs.KindNotFound:
		return codes.NotFound
	case errs.KindConflict:
		return codes.AlreadyExists
	case errs.KindValidation:
		return codes.InvalidArgument
	case errs.KindUnauthorized:
		return codes.Unauthenticated
	case errs.KindRateLimited:
		return codes.ResourceExhausted
	default:
		return codes.Internal
	}
}

// fail converts a service error to a status. Internal causes are logged, not returned.
func (s *Server) fail(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}
	code := codeOf(errs.KindOf(err))
	if code == codes.Internal {
		s.log.Error(op, zap.Error(err))
		return status.Error(codes.Internal, op+": internal")
	}
	return status.Error(code, err.Error())
}

// actor is the authenticated caller. An id placed in ctx by an earlier
// layer wins over re-parsing the token.
func (s *Server) actor(ctx context.Context) (uuid.UUID, error) {
	if id, ok := UserIDFromCtx(ctx); ok {
		return id, nil
	}
	id, err := s.userIDFromCtx(ctx)
	if err != nil {
		return uuid.Nil, status.Error(codes.Unauthenticated, "no auth")
	}
	return id, nil
}

// --- Auth ---

// Register creates a new user account.
func (s *Server) Register(ctx context.Context, req *api.Credentials) (*api.RegisterResponse, error) {
	if req.Username == "" || req.Password == "" {
		return nil, status.Error(codes.InvalidArgument, "empty username/password")
	}
	userID, err := s.auth.Register(ctx, req.Username, req.Password)
	if err != nil {
		return nil, s.fail("register", err)
	}
	return &api.RegisterResponse{UserID: userID}, nil
}

// remoteIP is the caller's host without the port, so reconnects keep one key.
func remoteIP(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// Login authenticates a user and returns an access token.
func (s *Server) Login(ctx context.Context, req *api.Credentials) (*api.LoginResponse, error) {
	tok, u, err := s.auth.LoginWithIP(ctx, req.Username, req.Password, remoteIP(ctx))
	if err != nil {
		if errors.Is(err, errs.ErrUnauthorized) {
			return nil, status.Error(codes.Unauthenticated, "bad credentials")
		}
		return nil, s.fail("login", err)
	}
	return &api.LoginResponse{UserID: u.ID.String(), AccessToken: tok.AccessToken, ExpiresAt: tok.ExpiresAt}, nil
}

// --- Users ---

func (s *Server) Me(ctx context.Context, _ *api.Empty) (*api.User, error) {
	uid, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	me, err := s.users.Me(ctx, uid)
	if err != nil {
		return nil, s.fail("me", err)
	}
	out := convert.ToWireUser(me)
	return &out, nil
}

// SearchUsers finds users by username substring, hiding blocked pairs.
func (s *Server) SearchUsers(ctx context.Context, req *api.SearchUsersRequest) (*api.UserList, error) {
	uid, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	refs, err := s.users.Search(ctx, uid, req.Term)
	if err != nil {
		return nil, s.fail("search users", err)
	}
	return &api.UserList{Users: convert.ToWireUsers(refs)}, nil
}

// ListUsers is the admin listing of every account.
func (s *Server) ListUsers(ctx context.Context, _ *api.Empty) (*api.UserList, error) {
	uid, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	refs, err := s.admin.ListUsers(ctx, uid)
	if err != nil {
		return nil, s.fail("list users", err)
	}
	return &api.UserList{Users: convert.ToWireUsers(refs)}, nil
}

// Directory lists every account the caller may interact with.
func (s *Server) Directory(ctx context.Context, _ *api.Empty) (*api.UserList, error) {
	uid, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	refs, err := s.users.Directory(ctx, uid)
	if err != nil {
		return nil, s.fail("directory", err)
	}
	return &api.UserList{Users: convert.ToWireUsers(refs)}, nil
}

func (s *Server) SetProfilePicture(ctx context.Context, req *api.PictureUpload) (*api.Picture, error) {
	uid, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	pic, err := s.users.SetPicture(ctx, uid, req.Data)
	if err != nil {
		return nil, s.fail("set picture", err)
	}
	return &api.Picture{MimeType: pic.MimeType}, nil
}

func (s *Server) ProfilePicture(ctx context.Context, req *api.PeerRequest) (*api.Picture, error) {
	uid, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Peer) == "" {
		return nil, status.Error(codes.InvalidArgument, "empty username")
	}
	pic, err := s.users.Picture(ctx, uid, req.Peer)
	if err != nil {
		return nil, s.fail("picture", err)
	}
	return &api.Picture{Data: pic.Data, MimeType: pic.MimeType}, nil
}

func (s *Server) DeleteProfilePicture(ctx context.Context, _ *api.Empty) (*api.Empty, error) {
	uid, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.users.DeletePicture(ctx, uid); err != nil {
		return nil, s.fail("delete picture", err)
	}
	return &api.Empty{}, nil
}

// --- Graph ---

// peerOp runs a mutation addressed by peer username that returns nothing.
func (s *Server) peerOp(ctx context.Context, op, name string, fn func(context.Context, uuid.UUID, string) error) (*api.Empty, error) {
	uid, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		return nil, status.Error(codes.InvalidArgument, "empty peer")
	}
	if err := fn(ctx, uid, name); err != nil {
		return nil, s.fail(op, err)
	}
	return &api.Empty{}, nil
}

func (s *Server) RequestConnection(ctx context.Context, req *api.PeerRequest) (*api.Empty, error) {
	return s.peerOp(ctx, "request connection", req.Peer, s.graph.RequestConnection)
}

func (s *Server) AcceptConnection(ctx context.Context, req *api.PeerRequest) (*api.Empty, error) {
	return s.peerOp(ctx, "accept connection", req.Peer, s.graph.AcceptConnection)
}

func (s *Server) UnsendRequest(ctx context.Context, req *api.PeerRequest) (*api.Empty, error) {
	return s.peerOp(ctx, "unsend request", req.Peer, s.graph.UnsendRequest)
}

func (s *Server) DeleteRequest(ctx context.Context, req *api.PeerRequest) (*api.Empty, error) {
	return s.peerOp(ctx, "delete request", req.Peer, s.graph.DeleteRequest)
}

func (s *Server) RemoveConnection(ctx context.Context, req *api.PeerRequest) (*api.Empty, error) {
	return s.peerOp(ctx, "remove connection", req.Peer, s.graph.RemoveConnection)
}

func (s *Server) Block(ctx context.Context, req *api.PeerRequest) (*api.Empty, error) {
	return s.peerOp(ctx, "block", req.Peer, s.graph.Block)
}

func (s *Server) Unblock(ctx context.Context, req *api.PeerRequest) (*api.Empty, error) {
	return s.peerOp(ctx, "unblock", req.Peer, s.graph.Unblock)
}

func (s *Server) graphList(ctx context.Context, op string, fn func(context.Context, uuid.UUID) ([]model.UserRef, error)) (*api.UserList, error) {
	uid, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	refs, err := fn(ctx, uid)
	if err != nil {
		return nil, s.fail(op, err)
	}
	return &api.UserList{Users: convert.ToWireUsers(refs)}, nil
}

func (s *Server) Connections(ctx context.Context, _ *api.Empty) (*api.UserList, error) {
	return s.graphList(ctx, "connections", s.graph.Connections)
}

func (s *Server) Requests(ctx context.Context, _ *api.Empty) (*api.UserList, error) {
	return s.graphList(ctx, "requests", s.graph.Requests)
}

func (s *Server) Blocked(ctx context.Context, _ *api.Empty) (*api.UserList, error) {
	return s.graphList(ctx, "blocked", s.graph.Blocked)
}

// --- Conversations ---

func (s *Server) StartConversation(ctx context.Context, req *api.PeerRequest) (*api.Conversation, error) {
	uid, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.chat.Start(ctx, uid, req.Peer)
	if err != nil {
		return nil, s.fail("start conversation", err)
	}
	out := convert.ToWireConversation(c)
	return &out, nil
}

func (s *Server) LoadConversation(ctx context.Context, req *api.PeerRequest) (*api.Transcript, error) {
	uid, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	tr, err := s.chat.Load(ctx, uid, req.Peer)
	if err != nil {
		return nil, s.fail("load conversation", err)
	}
	out := convert.ToWireTranscript(tr)
	return &out, nil
}

func (s *Server) DeleteConversation(ctx context.Context, req *api.PeerRequest) (*api.Empty, error) {
	return s.peerOp(ctx, "delete conversation", req.Peer, s.chat.Delete)
}

func (s *Server) ClearMessages(ctx context.Context, req *api.PeerRequest) (*api.Empty, error) {
	return s.peerOp(ctx, "clear messages", req.Peer, s.chat.Clear)
}

// SendMessage stores the message and publishes it to the conversation room.
func (s *Server) SendMessage(ctx context.Context, req *api.SendRequest) (*api.Message, error) {
	uid, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	m, err := s.chat.Send(ctx, uid, req.Peer, convert.FromWireSend(req))
	if err != nil {
		return nil, s.fail("send message", err)
	}
	out := convert.ToWireMessage(m, nil)
	return &out, nil
}

func (s *Server) EditMessage(ctx context.Context, req *api.EditRequest) (*api.Message, error) {
	uid, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	id, in, err := convert.FromWireEdit(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "bad message id")
	}
	m, err := s.chat.Edit(ctx, uid, req.Peer, id, in)
	if err != nil {
		return nil, s.fail("edit message", err)
	}
	out := convert.ToWireMessage(m, nil)
	return &out, nil
}

func (s *Server) DeleteMessage(ctx context.Context, req *api.MessageRequest) (*api.Empty, error) {
	uid, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	id, err := convert.FromWireMessageID(req.MessageID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "bad message id")
	}
	if err := s.chat.DeleteMessage(ctx, uid, req.Peer, id); err != nil {
		return nil, s.fail("delete message", err)
	}
	return &api.Empty{}, nil
}

// SearchMessages returns ranked matches without attachment payloads.
func (s *Server) SearchMessages(ctx context.Context, req *api.SearchRequest) (*api.MessageList, error) {
	uid, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	msgs, err := s.chat.Search(ctx, uid, req.Peer, req.Query)
	if err != nil {
		return nil, s.fail("search messages", err)
	}
	return &api.MessageList{Messages: convert.ToWireMessages(msgs, nil)}, nil
}

// RenderTranscript returns the conversation as a standalone HTML document.
func (s *Server) RenderTranscript(ctx context.Context, req *api.PeerRequest) (*api.RenderResponse, error) {
	uid, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := s.chat.Render(ctx, uid, req.Peer, &buf); err != nil {
		return nil, s.fail("render transcript", err)
	}
	return &api.RenderResponse{HTML: buf.Bytes()}, nil
}

func (s *Server) RecentMessage(ctx context.Context, req *api.PeerRequest) (*api.Message, error) {
	uid, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	m, err := s.chat.Recent(ctx, uid, req.Peer)
	if err != nil {
		return nil, s.fail("recent message", err)
	}
	out := convert.ToWireMessage(m, nil)
	return &out, nil
}

func (s *Server) MarkSeen(ctx context.Context, req *api.PeerRequest) (*api.MarkSeenResponse, error) {
	uid, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	n, err := s.chat.MarkSeen(ctx, uid, req.Peer)
	if err != nil {
		return nil, s.fail("mark seen", err)
	}
	return &api.MarkSeenResponse{Marked: n}, nil
}

func (s *Server) SetConversationExpiry(ctx context.Context, req *api.ExpiryRequest) (*api.Empty, error) {
	uid, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.chat.SetExpiry(ctx, uid, req.Peer, req.DeleteAt); err != nil {
		return nil, s.fail("set expiry", err)
	}
	return &api.Empty{}, nil
}

// Join streams messages sent to the conversation until the client goes away
// or the room is closed (conversation deleted or pair blocked).
// The response header is sent once the subscription is live.
func (s *Server) Join(req *api.PeerRequest, stream grpc.ServerStream) error {
	ctx := stream.Context()
	uid, err := s.actor(ctx)
	if err != nil {
		return err
	}
	sub, err := s.chat.Watch(ctx, uid, req.Peer)
	if err != nil {
		return s.fail("join", err)
	}
	defer sub.Leave()

	if err := stream.SendHeader(metadata.Pairs(api.RoomHeader, sub.Room().String())); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-sub.C:
			if !ok {
				return nil
			}
			if err := stream.SendMsg(&api.Event{Delivered: convert.ToWireMessage(m, nil)}); err != nil {
				return err
			}
		}
	}
}

// userIDFromCtx: extract "authorization: Bearer <JWT>", verify HS256, return sub as UUID.
func (s *Server) userIDFromCtx(ctx context.Context) (uuid.UUID, error) {
	tok, err := bearerTokenFromMD(ctx)
	if err != nil {
		return uuid.Nil, err
	}

	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(tok, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.signKey, nil
	})
	if err != nil || !parsed.Valid {
		return uuid.Nil, errors.New("invalid token")
	}

	v := jwt.NewValidator(jwt.WithLeeway(30 * time.Second))
	if err := v.Validate(&claims); err != nil {
		return uuid.Nil, errors.New("token expired or not valid yet")
	}

	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return uuid.Nil, errors.New("bad subject")
	}
	return id, nil
}

func bearerTokenFromMD(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("no metadata")
	}
	for _, v := range md.Get("authorization") {
		v = strings.TrimSpace(v)
		if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
			t := strings.TrimSpace(v[7:])
			if t != "" {
				return t, nil
			}
		}
	}
	return "", errors.New("no bearer token")
}
