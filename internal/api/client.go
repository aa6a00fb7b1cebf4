package api

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// Client is a typed pairchat client over any gRPC connection.
type Client struct {
	cc    grpc.ClientConnInterface
	token string
}

// NewClient wraps cc. token may be empty for Register and Login.
func NewClient(cc grpc.ClientConnInterface, token string) *Client {
	return &Client{cc: cc, token: token}
}

// WithToken returns a copy of c that authenticates as token.
func (c *Client) WithToken(token string) *Client {
	return &Client{cc: c.cc, token: token}
}

func (c *Client) outgoing(ctx context.Context) context.Context {
	if c.token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return c.cc.Invoke(c.outgoing(ctx), FullMethod(method), in, out, grpc.CallContentSubtype(Codec))
}

// call is the generic shape of every unary method.
func call[Resp any](ctx context.Context, c *Client, method string, in any) (*Resp, error) {
	out := new(Resp)
	if err := c.invoke(ctx, method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Register(ctx context.Context, username, password string) (string, error) {
	r, err := call[RegisterResponse](ctx, c, MethodRegister, &Credentials{Username: username, Password: password})
	if err != nil {
		return "", err
	}
	return r.UserID, nil
}

func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	return call[LoginResponse](ctx, c, MethodLogin, &Credentials{Username: username, Password: password})
}

func (c *Client) Me(ctx context.Context) (*User, error) {
	return call[User](ctx, c, MethodMe, &Empty{})
}

func (c *Client) SearchUsers(ctx context.Context, term string) ([]User, error) {
	r, err := call[UserList](ctx, c, MethodSearchUsers, &SearchUsersRequest{Term: term})
	if err != nil {
		return nil, err
	}
	return r.Users, nil
}

func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	r, err := call[UserList](ctx, c, MethodListUsers, &Empty{})
	if err != nil {
		return nil, err
	}
	return r.Users, nil
}

// Directory lists the users the caller may interact with.
func (c *Client) Directory(ctx context.Context) ([]User, error) {
	return c.List(ctx, MethodDirectory)
}

func (c *Client) SetProfilePicture(ctx context.Context, data []byte) (*Picture, error) {
	return call[Picture](ctx, c, MethodSetProfilePicture, &PictureUpload{Data: data})
}

func (c *Client) ProfilePicture(ctx context.Context, username string) (*Picture, error) {
	return call[Picture](ctx, c, MethodProfilePicture, &PeerRequest{Peer: username})
}

func (c *Client) DeleteProfilePicture(ctx context.Context) error {
	return c.invoke(ctx, MethodDeleteProfilePicture, &Empty{}, &Empty{})
}

// Peer runs one of the graph or conversation calls that take only a peer
// username and return nothing.
func (c *Client) Peer(ctx context.Context, method, peer string) error {
	return c.invoke(ctx, method, &PeerRequest{Peer: peer}, &Empty{})
}

// List runs one of Connections, Requests or Blocked.
func (c *Client) List(ctx context.Context, method string) ([]User, error) {
	r, err := call[UserList](ctx, c, method, &Empty{})
	if err != nil {
		return nil, err
	}
	return r.Users, nil
}

func (c *Client) StartConversation(ctx context.Context, peer string) (*Conversation, error) {
	return call[Conversation](ctx, c, MethodStartConversation, &PeerRequest{Peer: peer})
}

func (c *Client) LoadConversation(ctx context.Context, peer string) (*Transcript, error) {
	return call[Transcript](ctx, c, MethodLoadConversation, &PeerRequest{Peer: peer})
}

func (c *Client) SendMessage(ctx context.Context, req *SendRequest) (*Message, error) {
	return call[Message](ctx, c, MethodSendMessage, req)
}

func (c *Client) EditMessage(ctx context.Context, req *EditRequest) (*Message, error) {
	return call[Message](ctx, c, MethodEditMessage, req)
}

func (c *Client) DeleteMessage(ctx context.Context, peer, id string) error {
	return c.invoke(ctx, MethodDeleteMessage, &MessageRequest{Peer: peer, MessageID: id}, &Empty{})
}

func (c *Client) SearchMessages(ctx context.Context, peer, query string) ([]Message, error) {
	r, err := call[MessageList](ctx, c, MethodSearchMessages, &SearchRequest{Peer: peer, Query: query})
	if err != nil {
		return nil, err
	}
	return r.Messages, nil
}

func (c *Client) RenderTranscript(ctx context.Context, peer string) ([]byte, error) {
	r, err := call[RenderResponse](ctx, c, MethodRenderTranscript, &PeerRequest{Peer: peer})
	if err != nil {
		return nil, err
	}
	return r.HTML, nil
}

func (c *Client) RecentMessage(ctx context.Context, peer string) (*Message, error) {
	return call[Message](ctx, c, MethodRecentMessage, &PeerRequest{Peer: peer})
}

func (c *Client) MarkSeen(ctx context.Context, peer string) (int64, error) {
	r, err := call[MarkSeenResponse](ctx, c, MethodMarkSeen, &PeerRequest{Peer: peer})
	if err != nil {
		return 0, err
	}
	return r.Marked, nil
}

func (c *Client) SetConversationExpiry(ctx context.Context, peer string, at *time.Time) error {
	return c.invoke(ctx, MethodSetConversationExpiry, &ExpiryRequest{Peer: peer, DeleteAt: at}, &Empty{})
}

var joinDesc = grpc.StreamDesc{StreamName: StreamJoin, ServerStreams: true}

// Events is an open Join stream.
type Events struct {
	stream grpc.ClientStream
}

// Join subscribes to the conversation with peer. It returns once the server
// has registered the subscription, so later sends are observed.
func (c *Client) Join(ctx context.Context, peer string) (*Events, error) {
	s, err := c.cc.NewStream(c.outgoing(ctx), &joinDesc, FullMethod(StreamJoin), grpc.CallContentSubtype(Codec))
	if err != nil {
		return nil, err
	}
	if err := s.SendMsg(&PeerRequest{Peer: peer}); err != nil {
		return nil, err
	}
	if err := s.CloseSend(); err != nil {
		return nil, err
	}
	md, err := s.Header()
	if err != nil {
		return nil, err
	}
	if len(md.Get(RoomHeader)) == 0 {
		// trailers-only reply: the server refused before subscribing
		if err := s.RecvMsg(&Event{}); err != nil {
			return nil, err
		}
		return nil, errors.New("join: stream opened without room header")
	}
	return &Events{stream: s}, nil
}

// Recv blocks for the next delivered message. io.EOF means the server
// ended the stream cleanly.
func (e *Events) Recv() (*Message, error) {
	var ev Event
	if err := e.stream.RecvMsg(&ev); err != nil {
		return nil, err
	}
	return &ev.Delivered, nil
}
