package grpccomm

import (
	"context"

	"google.golang.org/grpc"
)

// Client and server stubs for the Coordinator service, written
// by hand in the shape protoc-gen-go-grpc would emit. See the
// note in wire.go.

// CoordinatorClient is the client API for the Coordinator
// service.
type CoordinatorClient interface {
	Join(ctx context.Context, in *JoinRequest, opts ...grpc.CallOption) (*JoinReply, error)
	AllReduce(ctx context.Context, in *AllReduceRequest, opts ...grpc.CallOption) (*AllReduceReply, error)
	Bcast(ctx context.Context, in *BcastRequest, opts ...grpc.CallOption) (*BcastReply, error)
	Barrier(ctx context.Context, in *BarrierRequest, opts ...grpc.CallOption) (*BarrierReply, error)
	Leave(ctx context.Context, in *LeaveRequest, opts ...grpc.CallOption) (*LeaveReply, error)
}

type coordinatorClient struct {
	cc grpc.ClientConnInterface
}

// NewCoordinatorClient wraps a connection in the Coordinator
// client API.
func NewCoordinatorClient(cc grpc.ClientConnInterface) CoordinatorClient {
	return &coordinatorClient{cc: cc}
}

func (c *coordinatorClient) Join(ctx context.Context, in *JoinRequest, opts ...grpc.CallOption) (*JoinReply, error) {
	out := new(JoinReply)
	if err := c.cc.Invoke(ctx, "/disttrain.Coordinator/Join", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *coordinatorClient) AllReduce(ctx context.Context, in *AllReduceRequest, opts ...grpc.CallOption) (*AllReduceReply, error) {
	out := new(AllReduceReply)
	if err := c.cc.Invoke(ctx, "/disttrain.Coordinator/AllReduce", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *coordinatorClient) Bcast(ctx context.Context, in *BcastRequest, opts ...grpc.CallOption) (*BcastReply, error) {
	out := new(BcastReply)
	if err := c.cc.Invoke(ctx, "/disttrain.Coordinator/Bcast", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *coordinatorClient) Barrier(ctx context.Context, in *BarrierRequest, opts ...grpc.CallOption) (*BarrierReply, error) {
	out := new(BarrierReply)
	if err := c.cc.Invoke(ctx, "/disttrain.Coordinator/Barrier", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *coordinatorClient) Leave(ctx context.Context, in *LeaveRequest, opts ...grpc.CallOption) (*LeaveReply, error) {
	out := new(LeaveReply)
	if err := c.cc.Invoke(ctx, "/disttrain.Coordinator/Leave", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// CoordinatorServer is the server API for the Coordinator
// service.
type CoordinatorServer interface {
	Join(context.Context, *JoinRequest) (*JoinReply, error)
	AllReduce(context.Context, *AllReduceRequest) (*AllReduceReply, error)
	Bcast(context.Context, *BcastRequest) (*BcastReply, error)
	Barrier(context.Context, *BarrierRequest) (*BarrierReply, error)
	Leave(context.Context, *LeaveRequest) (*LeaveReply, error)
}

// RegisterCoordinatorServer registers srv with a gRPC server.
func RegisterCoordinatorServer(s grpc.ServiceRegistrar, srv CoordinatorServer) {
	s.RegisterService(&coordinatorServiceDesc, srv)
}

func joinHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(JoinRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CoordinatorServer).Join(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/disttrain.Coordinator/Join"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(CoordinatorServer).Join(ctx, req.(*JoinRequest))
	})
}

func allReduceHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(AllReduceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CoordinatorServer).AllReduce(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/disttrain.Coordinator/AllReduce"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(CoordinatorServer).AllReduce(ctx, req.(*AllReduceRequest))
	})
}

func bcastHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(BcastRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CoordinatorServer).Bcast(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/disttrain.Coordinator/Bcast"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(CoordinatorServer).Bcast(ctx, req.(*BcastRequest))
	})
}

func barrierHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(BarrierRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CoordinatorServer).Barrier(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/disttrain.Coordinator/Barrier"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(CoordinatorServer).Barrier(ctx, req.(*BarrierRequest))
	})
}

func leaveHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(LeaveRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CoordinatorServer).Leave(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/disttrain.Coordinator/Leave"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(CoordinatorServer).Leave(ctx, req.(*LeaveRequest))
	})
}

var coordinatorServiceDesc = grpc.ServiceDesc{
	ServiceName: "disttrain.Coordinator",
	HandlerType: (*CoordinatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Join", Handler: joinHandler},
		{MethodName: "AllReduce", Handler: allReduceHandler},
		{MethodName: "Bcast", Handler: bcastHandler},
		{MethodName: "Barrier", Handler: barrierHandler},
		{MethodName: "Leave", Handler: leaveHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "grpccomm/coordinator.proto",
}
