package grpcserver

import (
	"context"

	"github.com/gofrs/uuid/v5"
	"google.golang.org/grpc"

	"github.com/and161185/pairchat/internal/api"
)

// handler is the surface the service descriptor dispatches to.
type handler interface {
	userIDFromCtx(ctx context.Context) (uuid.UUID, error)
}

// unary adapts a typed handler method to a grpc.MethodDesc, running the
// server's interceptor chain the way generated code does.
func unary[Req, Resp any](name string, call func(*Server, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	full := api.FullMethod(name)
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, ic grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(*Server)
			if ic == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			return ic(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: api.ServiceName,
	HandlerType: (*handler)(nil),
	Methods: []grpc.MethodDesc{
		unary(api.MethodRegister, (*Server).Register),
		unary(api.MethodLogin, (*Server).Login),

		unary(api.MethodMe, (*Server).Me),
		unary(api.MethodSearchUsers, (*Server).SearchUsers),
		unary(api.MethodListUsers, (*Server).ListUsers),
		unary(api.MethodDirectory, (*Server).Directory),
		unary(api.MethodSetProfilePicture, (*Server).SetProfilePicture),
		unary(api.MethodProfilePicture, (*Server).ProfilePicture),
		unary(api.MethodDeleteProfilePicture, (*Server).DeleteProfilePicture),

		unary(api.MethodRequestConnection, (*Server).RequestConnection),
		unary(api.MethodAcceptConnection, (*Server).AcceptConnection),
		unary(api.MethodUnsendRequest, (*Server).UnsendRequest),
		unary(api.MethodDeleteRequest, (*Server).DeleteRequest),
		unary(api.MethodRemoveConnection, (*Server).RemoveConnection),
		unary(api.MethodBlock, (*Server).Block),
		unary(api.MethodUnblock, (*Server).Unblock),
		unary(api.MethodConnections, (*Server).Connections),
		unary(api.MethodRequests, (*Server).Requests),
		unary(api.MethodBlocked, (*Server).Blocked),

		unary(api.MethodStartConversation, (*Server).StartConversation),
		unary(api.MethodLoadConversation, (*Server).LoadConversation),
		unary(api.MethodDeleteConversation, (*Server).DeleteConversation),
		unary(api.MethodSendMessage, (*Server).SendMessage),
		unary(api.MethodEditMessage, (*Server).EditMessage),
		unary(api.MethodDeleteMessage, (*Server).DeleteMessage),
		unary(api.MethodClearMessages, (*Server).ClearMessages),
		unary(api.MethodSearchMessages, (*Server).SearchMessages),
		unary(api.MethodRenderTranscript, (*Server).RenderTranscript),
		unary(api.MethodRecentMessage, (*Server).RecentMessage),
		unary(api.MethodMarkSeen, (*Server).MarkSeen),
		unary(api.MethodSetConversationExpiry, (*Server).SetConversationExpiry),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    api.StreamJoin,
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(api.PeerRequest)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(*Server).Join(in, stream)
			},
		},
	},
	Metadata: "pairchat/v1/pairchat.cbor",
}

// RegisterPairChatServer attaches s to gs.
func RegisterPairChatServer(gs grpc.ServiceRegistrar, s *Server) {
	gs.RegisterService(&serviceDesc, s)
}
