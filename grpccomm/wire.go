package grpccomm

import "github.com/golang/protobuf/proto"

// The message types below are written by hand against the
// legacy struct-tag encoding, which the protobuf runtime still
// understands. This keeps protoc out of the build; the schema
// they follow is documented in coordinator.proto.

// JoinRequest asks the coordinator for a place in a named
// group that will hold World members.
type JoinRequest struct {
	Group string `protobuf:"bytes,1,opt,name=group,proto3" json:"group,omitempty"`
	World int32  `protobuf:"varint,2,opt,name=world,proto3" json:"world,omitempty"`
}

func (m *JoinRequest) Reset()         { *m = JoinRequest{} }
func (m *JoinRequest) String() string { return proto.CompactTextString(m) }
func (*JoinRequest) ProtoMessage()    {}

// JoinReply assigns the caller a rank in a fully formed group.
type JoinReply struct {
	Session string `protobuf:"bytes,1,opt,name=session,proto3" json:"session,omitempty"`
	Rank    int32  `protobuf:"varint,2,opt,name=rank,proto3" json:"rank,omitempty"`
	Size    int32  `protobuf:"varint,3,opt,name=size,proto3" json:"size,omitempty"`
}

func (m *JoinReply) Reset()         { *m = JoinReply{} }
func (m *JoinReply) String() string { return proto.CompactTextString(m) }
func (*JoinReply) ProtoMessage()    {}

// AllReduceRequest contributes one member's vector to a
// reduction round. Op is a collective.ReduceOp value.
type AllReduceRequest struct {
	Session string    `protobuf:"bytes,1,opt,name=session,proto3" json:"session,omitempty"`
	Rank    int32     `protobuf:"varint,2,opt,name=rank,proto3" json:"rank,omitempty"`
	Round   uint64    `protobuf:"varint,3,opt,name=round,proto3" json:"round,omitempty"`
	Op      int32     `protobuf:"varint,4,opt,name=op,proto3" json:"op,omitempty"`
	Data    []float64 `protobuf:"fixed64,5,rep,packed,name=data,proto3" json:"data,omitempty"`
}

func (m *AllReduceRequest) Reset()         { *m = AllReduceRequest{} }
func (m *AllReduceRequest) String() string { return proto.CompactTextString(m) }
func (*AllReduceRequest) ProtoMessage()    {}

// AllReduceReply carries the reduction over every member's
// contribution.
type AllReduceReply struct {
	Data []float64 `protobuf:"fixed64,1,rep,packed,name=data,proto3" json:"data,omitempty"`
}

func (m *AllReduceReply) Reset()         { *m = AllReduceReply{} }
func (m *AllReduceReply) String() string { return proto.CompactTextString(m) }
func (*AllReduceReply) ProtoMessage()    {}

// BcastRequest enters a broadcast round. Only the root rank
// fills in Data; everyone declares the expected Count.
type BcastRequest struct {
	Session string    `protobuf:"bytes,1,opt,name=session,proto3" json:"session,omitempty"`
	Rank    int32     `protobuf:"varint,2,opt,name=rank,proto3" json:"rank,omitempty"`
	Round   uint64    `protobuf:"varint,3,opt,name=round,proto3" json:"round,omitempty"`
	Root    int32     `protobuf:"varint,4,opt,name=root,proto3" json:"root,omitempty"`
	Count   int32     `protobuf:"varint,5,opt,name=count,proto3" json:"count,omitempty"`
	Data    []float64 `protobuf:"fixed64,6,rep,packed,name=data,proto3" json:"data,omitempty"`
}

func (m *BcastRequest) Reset()         { *m = BcastRequest{} }
func (m *BcastRequest) String() string { return proto.CompactTextString(m) }
func (*BcastRequest) ProtoMessage()    {}

// BcastReply carries the root member's vector.
type BcastReply struct {
	Data []float64 `protobuf:"fixed64,1,rep,packed,name=data,proto3" json:"data,omitempty"`
}

func (m *BcastReply) Reset()         { *m = BcastReply{} }
func (m *BcastReply) String() string { return proto.CompactTextString(m) }
func (*BcastReply) ProtoMessage()    {}

// BarrierRequest enters a barrier round.
type BarrierRequest struct {
	Session string `protobuf:"bytes,1,opt,name=session,proto3" json:"session,omitempty"`
	Rank    int32  `protobuf:"varint,2,opt,name=rank,proto3" json:"rank,omitempty"`
	Round   uint64 `protobuf:"varint,3,opt,name=round,proto3" json:"round,omitempty"`
}

func (m *BarrierRequest) Reset()         { *m = BarrierRequest{} }
func (m *BarrierRequest) String() string { return proto.CompactTextString(m) }
func (*BarrierRequest) ProtoMessage()    {}

// BarrierReply is empty; its arrival releases the barrier.
type BarrierReply struct{}

func (m *BarrierReply) Reset()         { *m = BarrierReply{} }
func (m *BarrierReply) String() string { return proto.CompactTextString(m) }
func (*BarrierReply) ProtoMessage()    {}

// LeaveRequest gives up the caller's seat in a session.
type LeaveRequest struct {
	Session string `protobuf:"bytes,1,opt,name=session,proto3" json:"session,omitempty"`
	Rank    int32  `protobuf:"varint,2,opt,name=rank,proto3" json:"rank,omitempty"`
}

func (m *LeaveRequest) Reset()         { *m = LeaveRequest{} }
func (m *LeaveRequest) String() string { return proto.CompactTextString(m) }
func (*LeaveRequest) ProtoMessage()    {}

// LeaveReply is empty.
type LeaveReply struct{}

func (m *LeaveReply) Reset()         { *m = LeaveReply{} }
func (m *LeaveReply) String() string { return proto.CompactTextString(m) }
func (*LeaveReply) ProtoMessage()    {}

func init() {
	proto.RegisterType((*JoinRequest)(nil), "disttrain.JoinRequest")
	proto.RegisterType((*JoinReply)(nil), "disttrain.JoinReply")
	proto.RegisterType((*AllReduceRequest)(nil), "disttrain.AllReduceRequest")
	proto.RegisterType((*AllReduceReply)(nil), "disttrain.AllReduceReply")
	proto.RegisterType((*BcastRequest)(nil), "disttrain.BcastRequest")
	proto.RegisterType((*BcastReply)(nil), "disttrain.BcastReply")
	proto.RegisterType((*BarrierRequest)(nil), "disttrain.BarrierRequest")
	proto.RegisterType((*BarrierReply)(nil), "disttrain.BarrierReply")
	proto.RegisterType((*LeaveRequest)(nil), "disttrain.LeaveRequest")
	proto.RegisterType((*LeaveReply)(nil), "disttrain.LeaveReply")
}
