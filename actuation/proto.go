package actuation

import (
	"github.com/go-errors/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

// solenoidStateFile describes the actuation service wire contract:
//
//	syntax = "proto3";
//	package poled;
//
//	message SetStateRequest {
//	  uint32 axle_position = 1;
//	  uint32 state = 2;
//	}
//
//	message SetStateResponse {
//	  bool accepted = 1;
//	}
//
//	service SolenoidState {
//	  rpc SetState(SetStateRequest) returns (SetStateResponse);
//	}
var solenoidStateFile = &descriptorpb.FileDescriptorProto{
	Name:    proto.String("poled/solenoid_state.proto"),
	Package: proto.String("poled"),
	Syntax:  proto.String("proto3"),
	MessageType: []*descriptorpb.DescriptorProto{
		{
			Name: proto.String("SetStateRequest"),
			Field: []*descriptorpb.FieldDescriptorProto{
				scalarField("axle_position", "axlePosition", 1, descriptorpb.FieldDescriptorProto_TYPE_UINT32),
				scalarField("state", "state", 2, descriptorpb.FieldDescriptorProto_TYPE_UINT32),
			},
		},
		{
			Name: proto.String("SetStateResponse"),
			Field: []*descriptorpb.FieldDescriptorProto{
				scalarField("accepted", "accepted", 1, descriptorpb.FieldDescriptorProto_TYPE_BOOL),
			},
		},
	},
	Service: []*descriptorpb.ServiceDescriptorProto{
		{
			Name: proto.String("SolenoidState"),
			Method: []*descriptorpb.MethodDescriptorProto{
				{
					Name:       proto.String("SetState"),
					InputType:  proto.String(".poled.SetStateRequest"),
					OutputType: proto.String(".poled.SetStateResponse"),
				},
			},
		},
	},
}

func scalarField(name, jsonName string, number int32, typ descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:     proto.String(name),
		JsonName: proto.String(jsonName),
		Number:   proto.Int32(number),
		Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:     typ.Enum(),
	}
}

var (
	solenoidStateDesc    protoreflect.FileDescriptor
	setStateRequestDesc  protoreflect.MessageDescriptor
	setStateResponseDesc protoreflect.MessageDescriptor

	axlePositionField protoreflect.FieldDescriptor
	stateField        protoreflect.FieldDescriptor
	acceptedField     protoreflect.FieldDescriptor
)

func init() {
	fd, err := protodesc.NewFile(solenoidStateFile, nil)
	if err != nil {
		panic(errors.Errorf("Invalid solenoid state descriptor: %v", err))
	}

	solenoidStateDesc = fd
	setStateRequestDesc = fd.Messages().ByName("SetStateRequest")
	setStateResponseDesc = fd.Messages().ByName("SetStateResponse")

	axlePositionField = setStateRequestDesc.Fields().ByName("axle_position")
	stateField = setStateRequestDesc.Fields().ByName("state")
	acceptedField = setStateResponseDesc.Fields().ByName("accepted")
}

func (r *SetStateRequest) toProto() *dynamicpb.Message {
	m := dynamicpb.NewMessage(setStateRequestDesc)
	m.Set(axlePositionField, protoreflect.ValueOfUint32(r.AxlePosition))
	m.Set(stateField, protoreflect.ValueOfUint32(r.State))
	return m
}

func setStateRequestFromProto(m proto.Message) *SetStateRequest {
	r := m.ProtoReflect()

	return &SetStateRequest{
		AxlePosition: uint32(r.Get(axlePositionField).Uint()),
		State:        uint32(r.Get(stateField).Uint()),
	}
}

func (r *SetStateResponse) toProto() *dynamicpb.Message {
	m := dynamicpb.NewMessage(setStateResponseDesc)
	m.Set(acceptedField, protoreflect.ValueOfBool(r.Accepted))
	return m
}

func setStateResponseFromProto(m proto.Message) *SetStateResponse {
	return &SetStateResponse{
		Accepted: m.ProtoReflect().Get(acceptedField).Bool(),
	}
}
