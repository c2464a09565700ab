// Package msgpack provides a MessagePack codec for reservo.
//
// MessagePack is a binary format that produces smaller payloads than JSON
// while keeping the same document shape, which makes it a good fit for
// state stores holding many aggregates.
//
// Basic usage:
//
//	codec := msgpack.NewCodec()
//	data, err := codec.EncodeState(state)
//	state, err = codec.DecodeState(data)
package msgpack

import (
	"bytes"

	"github.com/AshkanYarmoradi/go-reservo"
	"github.com/vmihailenco/msgpack/v5"
)

// Name is the codec name used in configuration.
const Name = "msgpack"

// Marshaler is the MessagePack reservo.DocumentMarshaler.
type Marshaler struct {
	// SortKeys makes encoding deterministic.
	SortKeys bool
}

// Ensure Marshaler implements reservo.DocumentMarshaler.
var _ reservo.DocumentMarshaler = Marshaler{}

// Marshal encodes doc.
func (m Marshaler) Marshal(doc map[string]interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(m.SortKeys)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a document produced by Marshal.
func (m Marshaler) Unmarshal(data []byte) (map[string]interface{}, error) {
	var doc map[string]interface{}
	if err := msgpack.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// NewCodec returns a reservo.Codec that encodes with MessagePack and sorted
// map keys.
func NewCodec() reservo.Codec {
	return reservo.NewCodec(Name, Marshaler{SortKeys: true})
}
