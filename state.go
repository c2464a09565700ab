package reservo

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrorField is the key that marks a StateMap as an error report rather
// than aggregate state. Stores set it when a read fails and Project sets it
// for unknown event kinds.
const ErrorField = "error"

// StateMap is an immutable mapping from field name to Value. It is the unit
// of aggregate state and of command and event payloads. Every mutator
// returns a new StateMap; the receiver is never modified.
type StateMap struct {
	fields map[string]Value
}

// EmptyState returns a StateMap with no fields.
func EmptyState() StateMap { return StateMap{} }

// NewStateMap builds a StateMap from typed values. Invalid values are skipped.
func NewStateMap(fields map[string]Value) StateMap {
	if len(fields) == 0 {
		return StateMap{}
	}
	cp := make(map[string]Value, len(fields))
	for k, v := range fields {
		if v.IsValid() {
			cp[k] = v
		}
	}
	return StateMap{fields: cp}
}

// StateMapFrom converts a plain Go map into a StateMap.
func StateMapFrom(in map[string]interface{}) (StateMap, error) {
	fields := make(map[string]Value, len(in))
	for k, raw := range in {
		v, err := FromAny(raw)
		if err != nil {
			return StateMap{}, fmt.Errorf("reservo: field %q: %w", k, err)
		}
		fields[k] = v
	}
	return StateMap{fields: fields}, nil
}

// MustStateMap is like StateMapFrom but panics on error.
func MustStateMap(in map[string]interface{}) StateMap {
	m, err := StateMapFrom(in)
	if err != nil {
		panic(err)
	}
	return m
}

// ErrorState returns a StateMap whose only field is the error marker.
func ErrorState(message string) StateMap {
	return StateMap{fields: map[string]Value{ErrorField: String(message)}}
}

// Len returns the number of fields.
func (m StateMap) Len() int { return len(m.fields) }

// IsEmpty reports whether the map has no fields.
func (m StateMap) IsEmpty() bool { return len(m.fields) == 0 }

// Has reports whether key is present.
func (m StateMap) Has(key string) bool {
	_, ok := m.fields[key]
	return ok
}

// Get returns the value stored under key.
func (m StateMap) Get(key string) (Value, bool) {
	v, ok := m.fields[key]
	return v, ok
}

// Keys returns the field names in sorted order.
func (m StateMap) Keys() []string {
	keys := make([]string, 0, len(m.fields))
	for k := range m.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// With returns a copy of m with key set to v, replacing any previous value.
func (m StateMap) With(key string, v Value) StateMap {
	cp := make(map[string]Value, len(m.fields)+1)
	for k, existing := range m.fields {
		cp[k] = existing
	}
	if v.IsValid() {
		cp[key] = v
	}
	return StateMap{fields: cp}
}

// WithString is shorthand for With(key, String(s)).
func (m StateMap) WithString(key, s string) StateMap { return m.With(key, String(s)) }

// Without returns a copy of m with key removed.
func (m StateMap) Without(key string) StateMap {
	if !m.Has(key) {
		return m
	}
	cp := make(map[string]Value, len(m.fields))
	for k, v := range m.fields {
		if k != key {
			cp[k] = v
		}
	}
	return StateMap{fields: cp}
}

// Merge returns a copy of m overlaid with every field of other.
func (m StateMap) Merge(other StateMap) StateMap {
	cp := make(map[string]Value, len(m.fields)+len(other.fields))
	for k, v := range m.fields {
		cp[k] = v
	}
	for k, v := range other.fields {
		cp[k] = v
	}
	return StateMap{fields: cp}
}

// Range calls fn for each field in key order until fn returns false.
func (m StateMap) Range(fn func(key string, v Value) bool) {
	for _, k := range m.Keys() {
		if !fn(k, m.fields[k]) {
			return
		}
	}
}

// Equal reports whether both maps hold the same keys and equal values.
func (m StateMap) Equal(other StateMap) bool {
	if len(m.fields) != len(other.fields) {
		return false
	}
	for k, v := range m.fields {
		ov, ok := other.fields[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// ToMap returns the plain Go representation of m.
func (m StateMap) ToMap() map[string]interface{} {
	out := make(map[string]interface{}, len(m.fields))
	for k, v := range m.fields {
		out[k] = v.Interface()
	}
	return out
}

// String renders the map as {k:v, ...} in key order.
func (m StateMap) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range m.Keys() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(m.fields[k].Text())
	}
	b.WriteByte('}')
	return b.String()
}

// HasErrorMarker reports whether m carries the error marker field.
func (m StateMap) HasErrorMarker() bool { return m.Has(ErrorField) }

// ErrorMessage returns the text of the error marker, if any.
func (m StateMap) ErrorMessage() string {
	if v, ok := m.fields[ErrorField]; ok {
		return v.Text()
	}
	return ""
}

// Lookup returns the value under key or a *FieldError wrapping ErrFieldMissing.
func (m StateMap) Lookup(key string) (Value, error) {
	v, ok := m.fields[key]
	if !ok {
		return Value{}, NewFieldMissingError(key)
	}
	return v, nil
}

func lookupAs[T any](m StateMap, key string, want Kind, get func(Value) (T, bool)) (T, error) {
	var zero T
	v, err := m.Lookup(key)
	if err != nil {
		return zero, err
	}
	out, ok := get(v)
	if !ok {
		return zero, NewFieldTypeError(key, want, v.Kind())
	}
	return out, nil
}

// LookupString returns the string under key.
func (m StateMap) LookupString(key string) (string, error) {
	return lookupAs(m, key, KindString, Value.AsString)
}

// LookupText returns the string under key. Identifiers are accepted and
// rendered in their canonical form.
func (m StateMap) LookupText(key string) (string, error) {
	v, err := m.Lookup(key)
	if err != nil {
		return "", err
	}
	if s, ok := v.AsString(); ok {
		return s, nil
	}
	if id, ok := v.AsID(); ok {
		return id.String(), nil
	}
	return "", NewFieldTypeError(key, KindString, v.Kind())
}

// LookupInt returns the integer under key.
func (m StateMap) LookupInt(key string) (int64, error) {
	return lookupAs(m, key, KindInt, Value.AsInt)
}

// LookupBool returns the boolean under key.
func (m StateMap) LookupBool(key string) (bool, error) {
	return lookupAs(m, key, KindBool, Value.AsBool)
}

// LookupTime returns the timestamp under key.
func (m StateMap) LookupTime(key string) (time.Time, error) {
	return lookupAs(m, key, KindTime, Value.AsTime)
}

// LookupDuration returns the duration under key.
func (m StateMap) LookupDuration(key string) (time.Duration, error) {
	return lookupAs(m, key, KindDuration, Value.AsDuration)
}

// LookupID returns the identifier under key. A string holding a valid UUID
// is accepted as well, since identifiers often arrive as text.
func (m StateMap) LookupID(key string) (uuid.UUID, error) {
	v, err := m.Lookup(key)
	if err != nil {
		return uuid.Nil, err
	}
	if id, ok := v.AsID(); ok {
		return id, nil
	}
	if s, ok := v.AsString(); ok {
		if id, perr := uuid.Parse(s); perr == nil {
			return id, nil
		}
	}
	return uuid.Nil, NewFieldTypeError(key, KindID, v.Kind())
}

// LookupMap returns the nested map under key.
func (m StateMap) LookupMap(key string) (StateMap, error) {
	return lookupAs(m, key, KindMap, Value.AsMap)
}

// LookupStrings returns the list of strings under key.
func (m StateMap) LookupStrings(key string) ([]string, error) {
	return lookupAs(m, key, KindList, Value.AsStrings)
}

// StatusIs reports whether the Status field holds one of the given values.
func (m StateMap) StatusIs(statuses ...string) bool {
	s, err := m.LookupString(FieldStatus)
	if err != nil {
		return false
	}
	for _, want := range statuses {
		if s == want {
			return true
		}
	}
	return false
}
