// Package api exposes the local cache to UIs over gRPC. Payloads use the
// protobuf well-known types, so the service descriptor is declared by hand
// rather than generated.
package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "livechat.v1.ChatService"

// ChatServiceServer is the server API for the chat service.
type ChatServiceServer interface {
	ListChats(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	ListMessages(context.Context, *wrapperspb.StringValue) (*structpb.ListValue, error)
	UpdateChat(context.Context, *structpb.Struct) (*structpb.Struct, error)
	OpenChat(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	CloseChat(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	SendText(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SyncNow(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	SearchMessages(context.Context, *structpb.Struct) (*structpb.ListValue, error)
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	WatchChanges(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error
}

// FullMethod returns the wire name of a method of the chat service.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// unary adapts a typed server method to a grpc.MethodDesc.
func unary[Req, Resp proto.Message](name string, newReq func() Req, call func(ChatServiceServer, context.Context, Req) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ChatServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ChatServiceServer), ctx, req.(Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func newEmpty() *emptypb.Empty { return new(emptypb.Empty) }
func newString() *wrapperspb.StringValue { return new(wrapperspb.StringValue) }
func newStruct() *structpb.Struct { return new(structpb.Struct) }

func watchChangesHandler(srv any, stream grpc.ServerStream) error {
	in := newStruct()
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ChatServiceServer).WatchChanges(in, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// ServiceDesc describes the chat service for grpc.Server registration.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChatServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("ListChats", newEmpty, ChatServiceServer.ListChats),
		unary("ListMessages", newString, ChatServiceServer.ListMessages),
		unary("UpdateChat", newStruct, ChatServiceServer.UpdateChat),
		unary("OpenChat", newString, ChatServiceServer.OpenChat),
		unary("CloseChat", newEmpty, ChatServiceServer.CloseChat),
		unary("SendText", newStruct, ChatServiceServer.SendText),
		unary("SyncNow", newEmpty, ChatServiceServer.SyncNow),
		unary("SearchMessages", newStruct, ChatServiceServer.SearchMessages),
		unary("GetStatus", newEmpty, ChatServiceServer.GetStatus),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchChanges",
			Handler:       watchChangesHandler,
			ServerStreams: true,
		},
	},
	Metadata: "livechat/v1/chat.proto",
}

// RegisterChatServiceServer registers srv on s.
func RegisterChatServiceServer(s grpc.ServiceRegistrar, srv ChatServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}
