package server

import (
	"context"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const ChatListServiceName = "chatlist.ChatList"

// ChatListService is the server API of chatlist.ChatList. Payloads are
// structpb.Struct documents, see mappings.go for their fields.
type ChatListService interface {
	CreateOrGetPrivate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetOrCreateGroup(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPrivate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PrivateMessage(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	GroupMessage(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	OnlineUsers(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Presence(*structpb.Struct, grpc.ServerStream) error
}

func RegisterChatListServer(s grpc.ServiceRegistrar, srv ChatListService) {
	s.RegisterService(&ChatListServiceDesc, srv)
}

func FullMethod(method string) string {
	return "/" + ChatListServiceName + "/" + method
}

var ChatListServiceDesc = grpc.ServiceDesc{
	ServiceName: ChatListServiceName,
	HandlerType: (*ChatListService)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CreateOrGetPrivate",
			Handler: structHandler("CreateOrGetPrivate", func(s ChatListService, ctx context.Context, in *structpb.Struct) (interface{}, error) {
				return s.CreateOrGetPrivate(ctx, in)
			}),
		},
		{
			MethodName: "GetOrCreateGroup",
			Handler: structHandler("GetOrCreateGroup", func(s ChatListService, ctx context.Context, in *structpb.Struct) (interface{}, error) {
				return s.GetOrCreateGroup(ctx, in)
			}),
		},
		{
			MethodName: "ListPrivate",
			Handler: structHandler("ListPrivate", func(s ChatListService, ctx context.Context, in *structpb.Struct) (interface{}, error) {
				return s.ListPrivate(ctx, in)
			}),
		},
		{
			MethodName: "PrivateMessage",
			Handler: structHandler("PrivateMessage", func(s ChatListService, ctx context.Context, in *structpb.Struct) (interface{}, error) {
				return s.PrivateMessage(ctx, in)
			}),
		},
		{
			MethodName: "GroupMessage",
			Handler: structHandler("GroupMessage", func(s ChatListService, ctx context.Context, in *structpb.Struct) (interface{}, error) {
				return s.GroupMessage(ctx, in)
			}),
		},
		{
			MethodName: "OnlineUsers",
			Handler:    onlineUsersHandler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Presence",
			Handler:       presenceHandler,
			ServerStreams: true,
		},
	},
	Metadata: "chatlist.proto",
}

type structCall func(s ChatListService, ctx context.Context, in *structpb.Struct) (interface{}, error)

func structHandler(method string, call structCall) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ChatListService), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: FullMethod(method),
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(ChatListService), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func onlineUsersHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ChatListService).OnlineUsers(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: FullMethod("OnlineUsers"),
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ChatListService).OnlineUsers(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func presenceHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ChatListService).Presence(in, stream)
}
