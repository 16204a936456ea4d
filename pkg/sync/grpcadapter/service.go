// Package grpcadapter is the reference sync.Adapter: a single unary gRPC
// Push RPC carrying one batch of JSON-encoded Change-Set Records, wired
// through a hand-written grpc.ServiceDesc in the style protoc-gen-go-grpc
// would otherwise emit from a .proto file. There is no .proto in this
// package because the wire message is a plain byte blob (wrapperspb.BytesValue)
// rather than a typed schema — the records themselves are already
// self-describing JSON via sync.EncodeRecord/DecodeRecord, so a bespoke
// ChangeSetBatch message would only duplicate that encoding.
package grpcadapter

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	serviceName    = "quilldb.sync.v1.ChangeSetService"
	pushMethodName = "Push"
	pushFullMethod = "/" + serviceName + "/" + pushMethodName
)

// Server is implemented by the receiving side of a Push RPC.
type Server interface {
	Push(ctx context.Context, batch *wrapperspb.BytesValue) (*emptypb.Empty, error)
}

func pushHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Push(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: pushFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).Push(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc is registered against a *grpc.Server via RegisterServer.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: pushMethodName, Handler: pushHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pkg/sync/grpcadapter/service.go",
}

// RegisterServer wires srv into s under ServiceDesc.
func RegisterServer(s grpc.ServiceRegistrar, srv Server) {
	s.RegisterService(&ServiceDesc, srv)
}
