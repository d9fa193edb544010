// Package prototest provides protobuf fixtures shared by package tests.
package prototest

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

// FakeMessageName is the full name of the dynamic fixture message.
const FakeMessageName = "pkg.FakeMessage"

var fakeFile = &descriptorpb.FileDescriptorProto{
	Name:    proto.String("pkg/fake.proto"),
	Package: proto.String("pkg"),
	Syntax:  proto.String("proto3"),
	MessageType: []*descriptorpb.DescriptorProto{{
		Name: proto.String("FakeMessage"),
		Field: []*descriptorpb.FieldDescriptorProto{{
			Name:     proto.String("content"),
			JsonName: proto.String("content"),
			Number:   proto.Int32(1),
			Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
			Type:     descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum(),
		}},
	}},
}

// FakeMessageType describes `pkg.FakeMessage { string content = 1; }`.
var FakeMessageType = mustFakeMessageType()

func mustFakeMessageType() protoreflect.MessageType {
	fd, err := protodesc.NewFile(fakeFile, protoregistry.GlobalFiles)
	if err != nil {
		panic(err)
	}
	return dynamicpb.NewMessageType(fd.Messages().ByName("FakeMessage"))
}

// NewFakeMessage returns a pkg.FakeMessage with content set.
func NewFakeMessage(content string) proto.Message {
	msg := FakeMessageType.New()
	msg.Set(contentField(msg), protoreflect.ValueOfString(content))
	return msg.Interface()
}

// Content reads the content field of a pkg.FakeMessage.
func Content(msg proto.Message) string {
	m := msg.ProtoReflect()
	return m.Get(contentField(m)).String()
}

func contentField(m protoreflect.Message) protoreflect.FieldDescriptor {
	return m.Descriptor().Fields().ByName("content")
}
