// Package protobuf provides a Protocol Buffers codec for reservo.
//
// Documents are carried as google.protobuf.Struct messages, so the wire
// form can be read by any protobuf runtime without generated code.
//
// Usage:
//
//	codec := protobuf.NewCodec()
//	data, err := codec.EncodeEvent(evt)
//	evt, err = codec.DecodeEvent(data)
package protobuf

import (
	"errors"
	"fmt"

	"github.com/AshkanYarmoradi/go-reservo"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Name is the codec name used in configuration.
const Name = "protobuf"

// ErrNotStruct indicates the payload is not an encoded Struct.
var ErrNotStruct = errors.New("reservo/protobuf: payload is not a protobuf Struct")

// Marshaler is the structpb reservo.DocumentMarshaler.
type Marshaler struct {
	// Deterministic requests stable map ordering from proto.Marshal.
	Deterministic bool
}

// Ensure Marshaler implements reservo.DocumentMarshaler.
var _ reservo.DocumentMarshaler = Marshaler{}

// Marshal converts doc to a Struct and encodes it.
func (m Marshaler) Marshal(doc map[string]interface{}) ([]byte, error) {
	s, err := structpb.NewStruct(doc)
	if err != nil {
		return nil, fmt.Errorf("reservo/protobuf: %w", err)
	}
	return proto.MarshalOptions{Deterministic: m.Deterministic}.Marshal(s)
}

// Unmarshal decodes a Struct and returns it as a document.
func (m Marshaler) Unmarshal(data []byte) (map[string]interface{}, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotStruct, err)
	}
	return s.AsMap(), nil
}

// NewCodec returns a reservo.Codec carrying documents as protobuf Structs.
func NewCodec() reservo.Codec {
	return reservo.NewCodec(Name, Marshaler{Deterministic: true})
}
