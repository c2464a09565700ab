package reservo

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Codec encodes states, events, commands and failures for stores and
// transports.
type Codec interface {
	// Name identifies the codec (e.g., "json", "msgpack").
	Name() string

	EncodeState(state StateMap) ([]byte, error)
	DecodeState(data []byte) (StateMap, error)

	EncodeCommand(cmd Command) ([]byte, error)
	DecodeCommand(data []byte) (Command, error)

	EncodeEvent(evt Event) ([]byte, error)
	DecodeEvent(data []byte) (Event, error)

	EncodeFailure(f *Failure) ([]byte, error)
	DecodeFailure(data []byte) (*Failure, error)
}

// DocumentMarshaler converts generic documents to and from bytes. Documents
// only contain strings, booleans, []interface{} and map[string]interface{}.
type DocumentMarshaler interface {
	Marshal(doc map[string]interface{}) ([]byte, error)
	Unmarshal(data []byte) (map[string]interface{}, error)
}

// ErrEmptyData indicates an attempt to decode empty data.
var ErrEmptyData = errors.New("reservo: cannot decode empty data")

// SerializationError represents an encoding or decoding error.
type SerializationError struct {
	Codec     string
	Subject   string // "state", "command", "event" or "failure"
	Operation string // "encode" or "decode"
	Err       error
}

// Error implements the error interface.
func (e *SerializationError) Error() string {
	return fmt.Sprintf("reservo/%s: failed to %s %s: %v", e.Codec, e.Operation, e.Subject, e.Err)
}

// Unwrap returns the underlying error.
func (e *SerializationError) Unwrap() error {
	return e.Err
}

// documentCodec implements Codec on top of a DocumentMarshaler.
type documentCodec struct {
	name string
	m    DocumentMarshaler
}

// NewCodec builds a Codec from a DocumentMarshaler.
func NewCodec(name string, m DocumentMarshaler) Codec {
	return &documentCodec{name: name, m: m}
}

func (c *documentCodec) Name() string { return c.name }

func (c *documentCodec) encode(subject string, doc map[string]interface{}) ([]byte, error) {
	data, err := c.m.Marshal(doc)
	if err != nil {
		return nil, &SerializationError{Codec: c.name, Subject: subject, Operation: "encode", Err: err}
	}
	return data, nil
}

func (c *documentCodec) decode(subject string, data []byte) (map[string]interface{}, error) {
	if len(data) == 0 {
		return nil, &SerializationError{Codec: c.name, Subject: subject, Operation: "decode", Err: ErrEmptyData}
	}
	doc, err := c.m.Unmarshal(data)
	if err != nil {
		return nil, &SerializationError{Codec: c.name, Subject: subject, Operation: "decode", Err: err}
	}
	return doc, nil
}

func (c *documentCodec) wrap(subject string, err error) error {
	return &SerializationError{Codec: c.name, Subject: subject, Operation: "decode", Err: err}
}

func (c *documentCodec) EncodeState(state StateMap) ([]byte, error) {
	return c.encode("state", state.Wire())
}

func (c *documentCodec) DecodeState(data []byte) (StateMap, error) {
	doc, err := c.decode("state", data)
	if err != nil {
		return StateMap{}, err
	}
	state, err := StateMapFromWire(doc)
	if err != nil {
		return StateMap{}, c.wrap("state", err)
	}
	return state, nil
}

func (c *documentCodec) EncodeCommand(cmd Command) ([]byte, error) {
	return c.encode("command", CommandDocument(cmd))
}

func (c *documentCodec) DecodeCommand(data []byte) (Command, error) {
	doc, err := c.decode("command", data)
	if err != nil {
		return Command{}, err
	}
	cmd, err := CommandFromDocument(doc)
	if err != nil {
		return Command{}, c.wrap("command", err)
	}
	return cmd, nil
}

func (c *documentCodec) EncodeEvent(evt Event) ([]byte, error) {
	return c.encode("event", EventDocument(evt))
}

func (c *documentCodec) DecodeEvent(data []byte) (Event, error) {
	doc, err := c.decode("event", data)
	if err != nil {
		return Event{}, err
	}
	evt, err := EventFromDocument(doc)
	if err != nil {
		return Event{}, c.wrap("event", err)
	}
	return evt, nil
}

func (c *documentCodec) EncodeFailure(f *Failure) ([]byte, error) {
	if f == nil {
		return nil, &SerializationError{Codec: c.name, Subject: "failure", Operation: "encode", Err: errors.New("failure cannot be nil")}
	}
	return c.encode("failure", FailureDocument(f))
}

func (c *documentCodec) DecodeFailure(data []byte) (*Failure, error) {
	doc, err := c.decode("failure", data)
	if err != nil {
		return nil, err
	}
	f, err := FailureFromDocument(doc)
	if err != nil {
		return nil, c.wrap("failure", err)
	}
	return f, nil
}

// jsonMarshaler is the encoding/json DocumentMarshaler.
type jsonMarshaler struct{}

func (jsonMarshaler) Marshal(doc map[string]interface{}) ([]byte, error) {
	return json.Marshal(doc)
}

func (jsonMarshaler) Unmarshal(data []byte) (map[string]interface{}, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// NewJSONCodec returns the default JSON codec.
func NewJSONCodec() Codec {
	return NewCodec("json", jsonMarshaler{})
}

// CommandDocument returns the codec-neutral form of cmd.
func CommandDocument(cmd Command) map[string]interface{} {
	return map[string]interface{}{
		"kind":         cmd.Kind,
		"id":           cmd.ID.String(),
		"aggregateKey": cmd.AggregateKey,
		"data":         cmd.Data.Wire(),
	}
}

// EventDocument returns the codec-neutral form of evt.
func EventDocument(evt Event) map[string]interface{} {
	return map[string]interface{}{
		"kind":         evt.Kind,
		"id":           evt.ID.String(),
		"aggregateKey": evt.AggregateKey,
		"data":         evt.Data.Wire(),
	}
}

// FailureDocument returns the codec-neutral form of f.
func FailureDocument(f *Failure) map[string]interface{} {
	return map[string]interface{}{
		"input":     CommandDocument(f.Input),
		"errorType": string(f.ErrorType),
		"errors":    f.Errors.Wire(),
	}
}

// envelopeFields reads the fields shared by commands and events.
func envelopeFields(doc map[string]interface{}) (kind string, id uuid.UUID, key string, data StateMap, err error) {
	kind, _ = doc["kind"].(string)
	if kind == "" {
		return "", uuid.Nil, "", StateMap{}, fmt.Errorf("missing kind")
	}
	rawID, _ := doc["id"].(string)
	if id, err = uuid.Parse(rawID); err != nil {
		return "", uuid.Nil, "", StateMap{}, fmt.Errorf("invalid id %q: %w", rawID, err)
	}
	key, _ = doc["aggregateKey"].(string)
	if raw, ok := asStringMap(doc["data"]); ok {
		if data, err = StateMapFromWire(raw); err != nil {
			return "", uuid.Nil, "", StateMap{}, err
		}
	}
	return kind, id, key, data, nil
}

// CommandFromDocument decodes a document produced by CommandDocument.
func CommandFromDocument(doc map[string]interface{}) (Command, error) {
	kind, id, key, data, err := envelopeFields(doc)
	if err != nil {
		return Command{}, err
	}
	return Command{Kind: kind, ID: id, AggregateKey: key, Data: data}, nil
}

// EventFromDocument decodes a document produced by EventDocument.
func EventFromDocument(doc map[string]interface{}) (Event, error) {
	kind, id, key, data, err := envelopeFields(doc)
	if err != nil {
		return Event{}, err
	}
	return Event{Kind: kind, ID: id, AggregateKey: key, Data: data}, nil
}

// FailureFromDocument decodes a document produced by FailureDocument.
func FailureFromDocument(doc map[string]interface{}) (*Failure, error) {
	inputDoc, ok := asStringMap(doc["input"])
	if !ok {
		return nil, fmt.Errorf("missing input")
	}
	input, err := CommandFromDocument(inputDoc)
	if err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}
	errType, _ := doc["errorType"].(string)
	switch ErrorType(errType) {
	case BusinessError, TechnicalError:
	default:
		return nil, fmt.Errorf("unknown error type %q", errType)
	}
	var errs StateMap
	if raw, ok := asStringMap(doc["errors"]); ok {
		if errs, err = StateMapFromWire(raw); err != nil {
			return nil, fmt.Errorf("errors: %w", err)
		}
	}
	return &Failure{Input: input, ErrorType: ErrorType(errType), Errors: errs}, nil
}
