package actuation

import (
	"context"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/dynamicpb"
)

const (
	serviceName    = "poled.SolenoidState"
	setStateMethod = "/poled.SolenoidState/SetState"
)

// SetStateRequest is an AxleCommand as carried by poled.SetStateRequest.
type SetStateRequest struct {
	AxlePosition uint32
	State        uint32
}

type SetStateResponse struct {
	Accepted bool
}

// SolenoidStateServer is implemented by actuation services.
type SolenoidStateServer interface {
	SetState(ctx context.Context, req *SetStateRequest) (*SetStateResponse, error)
}

func RegisterSolenoidStateServer(s grpc.ServiceRegistrar, srv SolenoidStateServer) {
	s.RegisterService(&solenoidStateServiceDesc, srv)
}

func setStateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := dynamicpb.NewMessage(setStateRequestDesc)
	if err := dec(in); err != nil {
		return nil, err
	}

	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		res, err := srv.(SolenoidStateServer).SetState(ctx, setStateRequestFromProto(req.(proto.Message)))
		if err != nil {
			return nil, err
		}
		return res.toProto(), nil
	}

	if interceptor == nil {
		return handler(ctx, in)
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: setStateMethod,
	}

	return interceptor(ctx, in, info, handler)
}

var solenoidStateServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*SolenoidStateServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SetState",
			Handler:    setStateHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "poled/solenoid_state.proto",
}
