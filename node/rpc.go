// Code generated-style gRPC bindings for the availability gossip service.

package node

import (
	"context"

	proto "github.com/gogo/protobuf/proto"
	"google.golang.org/grpc"
)

// Frame is the transport envelope exchanged over a gossip stream. A frame
// carries snappy-compressed validation protocol messages, the sender's
// current view, or both.
type Frame struct {
	Chunks [][]byte `protobuf:"bytes,1,rep,name=chunks,proto3" json:"chunks,omitempty"`
	View   [][]byte `protobuf:"bytes,2,rep,name=view,proto3" json:"view,omitempty"`
}

func (m *Frame) Reset()         { *m = Frame{} }
func (m *Frame) String() string { return proto.CompactTextString(m) }
func (*Frame) ProtoMessage()    {}

type AvailabilityClient interface {
	Gossip(ctx context.Context, opts ...grpc.CallOption) (Availability_GossipClient, error)
}

type availabilityClient struct {
	cc *grpc.ClientConn
}

func NewAvailabilityClient(cc *grpc.ClientConn) AvailabilityClient {
	return &availabilityClient{cc}
}

func (c *availabilityClient) Gossip(ctx context.Context, opts ...grpc.CallOption) (Availability_GossipClient, error) {
	stream, err := c.cc.NewStream(ctx, &_Availability_serviceDesc.Streams[0], "/availability.Availability/Gossip", opts...)
	if err != nil {
		return nil, err
	}

	return &availabilityGossipClient{stream}, nil
}

type Availability_GossipClient interface {
	Send(*Frame) error
	Recv() (*Frame, error)
	grpc.ClientStream
}

type availabilityGossipClient struct {
	grpc.ClientStream
}

func (x *availabilityGossipClient) Send(m *Frame) error {
	return x.ClientStream.SendMsg(m)
}

func (x *availabilityGossipClient) Recv() (*Frame, error) {
	m := new(Frame)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}

	return m, nil
}

type AvailabilityServer interface {
	Gossip(Availability_GossipServer) error
}

func RegisterAvailabilityServer(s *grpc.Server, srv AvailabilityServer) {
	s.RegisterService(&_Availability_serviceDesc, srv)
}

func _Availability_Gossip_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(AvailabilityServer).Gossip(&availabilityGossipServer{stream})
}

type Availability_GossipServer interface {
	Send(*Frame) error
	Recv() (*Frame, error)
	grpc.ServerStream
}

type availabilityGossipServer struct {
	grpc.ServerStream
}

func (x *availabilityGossipServer) Send(m *Frame) error {
	return x.ServerStream.SendMsg(m)
}

func (x *availabilityGossipServer) Recv() (*Frame, error) {
	m := new(Frame)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}

	return m, nil
}

var _Availability_serviceDesc = grpc.ServiceDesc{
	ServiceName: "availability.Availability",
	HandlerType: (*AvailabilityServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Gossip",
			Handler:       _Availability_Gossip_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "availability.proto",
}
