package reservo

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Wire tags. A wire value is a two-field map {"t": <kind>, "v": <payload>}
// where the payload only uses strings, booleans, lists and maps. That subset
// survives JSON, MessagePack and protobuf Struct encoding without loss, so
// every codec can share one representation.
const (
	wireTypeKey  = "t"
	wireValueKey = "v"
)

// Wire returns the codec-neutral representation of v.
func (v Value) Wire() map[string]interface{} {
	var payload interface{}
	switch v.kind {
	case KindString:
		payload = v.s
	case KindInt:
		payload = strconv.FormatInt(v.i, 10)
	case KindFloat:
		payload = strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		payload = v.b
	case KindTime:
		payload = v.t.Format(time.RFC3339Nano)
	case KindDuration:
		payload = strconv.FormatInt(v.i, 10)
	case KindID:
		payload = v.id.String()
	case KindMap:
		payload = v.m.Wire()
	case KindList:
		items := make([]interface{}, len(v.list))
		for i, item := range v.list {
			items[i] = item.Wire()
		}
		payload = items
	}
	return map[string]interface{}{wireTypeKey: v.kind.String(), wireValueKey: payload}
}

// Wire returns the codec-neutral representation of m.
func (m StateMap) Wire() map[string]interface{} {
	out := make(map[string]interface{}, len(m.fields))
	for k, v := range m.fields {
		out[k] = v.Wire()
	}
	return out
}

// ValueFromWire decodes a value produced by Value.Wire, after it has been
// through any of the supported codecs.
func ValueFromWire(raw interface{}) (Value, error) {
	node, ok := asStringMap(raw)
	if !ok {
		return Value{}, fmt.Errorf("reservo: wire value must be an object, got %T", raw)
	}
	tag, _ := node[wireTypeKey].(string)
	kind, ok := ParseKind(tag)
	if !ok {
		return Value{}, fmt.Errorf("reservo: unknown wire type %q", tag)
	}
	payload := node[wireValueKey]
	text, isText := payload.(string)

	switch kind {
	case KindString:
		if !isText {
			break
		}
		return String(text), nil
	case KindInt:
		if !isText {
			break
		}
		i, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("reservo: wire int: %w", err)
		}
		return Int(i), nil
	case KindFloat:
		if !isText {
			break
		}
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return Value{}, fmt.Errorf("reservo: wire float: %w", err)
		}
		return Float(f), nil
	case KindBool:
		b, ok := payload.(bool)
		if !ok {
			break
		}
		return Bool(b), nil
	case KindTime:
		if !isText {
			break
		}
		t, err := time.Parse(time.RFC3339Nano, text)
		if err != nil {
			return Value{}, fmt.Errorf("reservo: wire time: %w", err)
		}
		return Time(t), nil
	case KindDuration:
		if !isText {
			break
		}
		i, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("reservo: wire duration: %w", err)
		}
		return Duration(time.Duration(i)), nil
	case KindID:
		if !isText {
			break
		}
		id, err := uuid.Parse(text)
		if err != nil {
			return Value{}, fmt.Errorf("reservo: wire id: %w", err)
		}
		return ID(id), nil
	case KindMap:
		inner, ok := asStringMap(payload)
		if !ok {
			break
		}
		m, err := StateMapFromWire(inner)
		if err != nil {
			return Value{}, err
		}
		return MapValue(m), nil
	case KindList:
		items, ok := payload.([]interface{})
		if !ok {
			break
		}
		vals := make([]Value, len(items))
		for i, item := range items {
			v, err := ValueFromWire(item)
			if err != nil {
				return Value{}, fmt.Errorf("reservo: wire list item %d: %w", i, err)
			}
			if v.kind == KindMap || v.kind == KindList {
				return Value{}, fmt.Errorf("reservo: wire list item %d: lists only hold primitive values", i)
			}
			vals[i] = v
		}
		return List(vals...), nil
	}
	return Value{}, fmt.Errorf("reservo: wire %s value has unexpected payload %T", kind, payload)
}

// StateMapFromWire decodes a map produced by StateMap.Wire.
func StateMapFromWire(raw map[string]interface{}) (StateMap, error) {
	fields := make(map[string]Value, len(raw))
	for k, node := range raw {
		v, err := ValueFromWire(node)
		if err != nil {
			return StateMap{}, fmt.Errorf("reservo: field %q: %w", k, err)
		}
		fields[k] = v
	}
	return StateMap{fields: fields}, nil
}

// asStringMap accepts the map shapes produced by the supported decoders.
func asStringMap(raw interface{}) (map[string]interface{}, bool) {
	switch m := raw.(type) {
	case map[string]interface{}:
		return m, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, v := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = v
		}
		return out, true
	default:
		return nil, false
	}
}

// MarshalJSON encodes v in wire form.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Wire())
}

// UnmarshalJSON decodes v from wire form.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded, err := ValueFromWire(raw)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

// MarshalJSON encodes m in wire form.
func (m StateMap) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Wire())
}

// UnmarshalJSON decodes m from wire form.
func (m *StateMap) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded, err := StateMapFromWire(raw)
	if err != nil {
		return err
	}
	*m = decoded
	return nil
}
