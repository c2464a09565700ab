package reservo

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the dynamic type held by a Value.
type Kind uint8

// Value kinds.
const (
	KindInvalid Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindTime
	KindDuration
	KindID
	KindMap
	KindList
)

var kindNames = map[Kind]string{
	KindInvalid:  "invalid",
	KindString:   "string",
	KindInt:      "int",
	KindFloat:    "float",
	KindBool:     "bool",
	KindTime:     "time",
	KindDuration: "duration",
	KindID:       "id",
	KindMap:      "map",
	KindList:     "list",
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// ParseKind returns the Kind for a wire name.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name && k != KindInvalid {
			return k, true
		}
	}
	return KindInvalid, false
}

// Value is a tagged variant holding one of the supported field types.
// The zero Value is invalid and never stored in a StateMap.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
	t    time.Time
	id   uuid.UUID
	m    StateMap
	list []Value
}

// String creates a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Int creates an integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float creates a floating point value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Bool creates a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Time creates a timestamp value. The time is normalized to UTC.
func Time(t time.Time) Value { return Value{kind: KindTime, t: t.UTC()} }

// Duration creates a duration value.
func Duration(d time.Duration) Value { return Value{kind: KindDuration, i: int64(d)} }

// ID creates an identifier value.
func ID(id uuid.UUID) Value { return Value{kind: KindID, id: id} }

// MapValue creates a nested map value.
func MapValue(m StateMap) Value { return Value{kind: KindMap, m: m} }

// List creates a list value. Lists carry primitives only; List does not
// check its items, FromAny and ValueFromWire reject nested maps and lists.
func List(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindList, list: cp}
}

// Strings creates a list of string values.
func Strings(items ...string) Value {
	vals := make([]Value, len(items))
	for i, s := range items {
		vals[i] = String(s)
	}
	return Value{kind: KindList, list: vals}
}

// Kind returns the kind of the value.
func (v Value) Kind() Kind { return v.kind }

// IsValid reports whether the value holds anything.
func (v Value) IsValid() bool { return v.kind != KindInvalid }

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsInt returns the integer held by v.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

// AsFloat returns the float held by v.
func (v Value) AsFloat() (float64, bool) { return v.f, v.kind == KindFloat }

// AsBool returns the boolean held by v.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsTime returns the timestamp held by v.
func (v Value) AsTime() (time.Time, bool) { return v.t, v.kind == KindTime }

// AsDuration returns the duration held by v.
func (v Value) AsDuration() (time.Duration, bool) { return time.Duration(v.i), v.kind == KindDuration }

// AsID returns the identifier held by v.
func (v Value) AsID() (uuid.UUID, bool) { return v.id, v.kind == KindID }

// AsMap returns the nested map held by v.
func (v Value) AsMap() (StateMap, bool) { return v.m, v.kind == KindMap }

// AsList returns a copy of the list held by v.
func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	cp := make([]Value, len(v.list))
	copy(cp, v.list)
	return cp, true
}

// AsStrings returns the list held by v when every item is a string.
func (v Value) AsStrings() ([]string, bool) {
	if v.kind != KindList {
		return nil, false
	}
	out := make([]string, 0, len(v.list))
	for _, item := range v.list {
		s, ok := item.AsString()
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// Text renders the value as a human readable string. Identifiers and
// timestamps use their canonical textual forms.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindTime:
		return v.t.Format(time.RFC3339Nano)
	case KindDuration:
		return time.Duration(v.i).String()
	case KindID:
		return v.id.String()
	case KindMap:
		return v.m.String()
	case KindList:
		out := "["
		for i, item := range v.list {
			if i > 0 {
				out += " "
			}
			out += item.Text()
		}
		return out + "]"
	default:
		return "<invalid>"
	}
}

// Interface returns the plain Go representation of v.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	case KindTime:
		return v.t
	case KindDuration:
		return time.Duration(v.i)
	case KindID:
		return v.id
	case KindMap:
		return v.m.ToMap()
	case KindList:
		out := make([]interface{}, len(v.list))
		for i, item := range v.list {
			out[i] = item.Interface()
		}
		return out
	default:
		return nil
	}
}

// Equal reports whether two values have the same kind and content.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.s == other.s
	case KindInt, KindDuration:
		return v.i == other.i
	case KindFloat:
		return v.f == other.f
	case KindBool:
		return v.b == other.b
	case KindTime:
		return v.t.Equal(other.t)
	case KindID:
		return v.id == other.id
	case KindMap:
		return v.m.Equal(other.m)
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// FromAny converts a plain Go value into a Value.
// Supported inputs are the Go types returned by Interface plus the common
// shapes produced by JSON decoding (float64, json.Number, []interface{},
// map[string]interface{}).
func FromAny(in interface{}) (Value, error) {
	switch x := in.(type) {
	case Value:
		return x, nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case float32:
		return Float(float64(x)), nil
	case float64:
		return Float(x), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("reservo: invalid number %q: %w", x.String(), err)
		}
		return Float(f), nil
	case time.Time:
		return Time(x), nil
	case time.Duration:
		return Duration(x), nil
	case uuid.UUID:
		return ID(x), nil
	case StateMap:
		return MapValue(x), nil
	case map[string]interface{}:
		m, err := StateMapFrom(x)
		if err != nil {
			return Value{}, err
		}
		return MapValue(m), nil
	case []string:
		return Strings(x...), nil
	case []interface{}:
		items := make([]Value, 0, len(x))
		for i, raw := range x {
			item, err := FromAny(raw)
			if err != nil {
				return Value{}, fmt.Errorf("reservo: list item %d: %w", i, err)
			}
			if item.kind == KindMap || item.kind == KindList {
				return Value{}, fmt.Errorf("reservo: list item %d: lists only hold primitive values", i)
			}
			items = append(items, item)
		}
		return List(items...), nil
	case nil:
		return Value{}, fmt.Errorf("reservo: nil values are not supported")
	default:
		return Value{}, fmt.Errorf("reservo: unsupported value type %T", in)
	}
}

// MustValue is like FromAny but panics on error. Intended for tests and
// package-level literals.
func MustValue(in interface{}) Value {
	v, err := FromAny(in)
	if err != nil {
		panic(err)
	}
	return v
}
