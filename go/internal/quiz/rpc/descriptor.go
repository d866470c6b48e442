package rpc

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"

	// well-known types referenced by the service definition
	_ "google.golang.org/protobuf/types/known/emptypb"
	_ "google.golang.org/protobuf/types/known/structpb"
	_ "google.golang.org/protobuf/types/known/wrapperspb"
)

// RoundService is described entirely in well-known types, so the file
// descriptor is assembled here rather than generated. Registering it lets
// grpcurl and buf curl discover the service through reflection.

const (
	fileName      = "quizclock/v1/round.proto"
	typeRoundID   = ".google.protobuf.StringValue"
	typeEmpty     = ".google.protobuf.Empty"
	typeStruct    = ".google.protobuf.Struct"
	typeListValue = ".google.protobuf.ListValue"
)

var roundServiceMethods protoreflect.MethodDescriptors

func init() {
	fd, err := buildFileDescriptor()
	if err != nil {
		panic(fmt.Sprintf("quizclock rpc: %v", err))
	}
	roundServiceMethods = fd.Services().ByName("RoundService").Methods()
}

func buildFileDescriptor() (protoreflect.FileDescriptor, error) {
	method := func(name, in, out string) *descriptorpb.MethodDescriptorProto {
		return &descriptorpb.MethodDescriptorProto{
			Name:       proto.String(name),
			InputType:  proto.String(in),
			OutputType: proto.String(out),
		}
	}

	fdp := &descriptorpb.FileDescriptorProto{
		Name:    proto.String(fileName),
		Package: proto.String("quizclock.v1"),
		Syntax:  proto.String("proto3"),
		Dependency: []string{
			"google/protobuf/empty.proto",
			"google/protobuf/struct.proto",
			"google/protobuf/wrappers.proto",
		},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("RoundService"),
			Method: []*descriptorpb.MethodDescriptorProto{
				method("Open", typeStruct, typeStruct),
				method("Close", typeRoundID, typeEmpty),
				method("Start", typeRoundID, typeStruct),
				method("Pause", typeRoundID, typeStruct),
				method("Resume", typeRoundID, typeStruct),
				method("Stop", typeRoundID, typeStruct),
				method("Reset", typeRoundID, typeStruct),
				method("Get", typeRoundID, typeStruct),
				method("List", typeEmpty, typeListValue),
			},
		}},
	}

	fd, err := protodesc.NewFile(fdp, protoregistry.GlobalFiles)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", fileName, err)
	}
	if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
		return nil, fmt.Errorf("register %s: %w", fileName, err)
	}
	return fd, nil
}
