// pkg/types/value.go
package types

import (
	"encoding/json"
	"sort"
	"strings"
)

// FieldValue is the value produced for one custom field. It is a closed set:
// Null, String, Number, Bool, List and Record are the only implementations.
type FieldValue interface {
	isFieldValue()
}

// Null marks a field whose selector matched nothing.
type Null struct{}

// String is a scalar text value.
type String string

// Number is a scalar numeric value.
type Number float64

// Bool is a scalar boolean value.
type Bool bool

// List holds repeated values in document order.
type List []FieldValue

// Record is one nested structured_list entry.
type Record map[string]FieldValue

func (Null) isFieldValue()   {}
func (String) isFieldValue() {}
func (Number) isFieldValue() {}
func (Bool) isFieldValue()   {}
func (List) isFieldValue()   {}
func (Record) isFieldValue() {}

// MarshalJSON encodes Null as JSON null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// MarshalJSON encodes an empty list as [] rather than null.
func (l List) MarshalJSON() ([]byte, error) {
	items := make([]json.RawMessage, 0, len(l))
	for _, v := range l {
		raw, err := marshalValue(v)
		if err != nil {
			return nil, err
		}
		items = append(items, raw)
	}
	return json.Marshal(items)
}

// MarshalJSON encodes a record as an object with sorted keys.
func (r Record) MarshalJSON() ([]byte, error) {
	return marshalMap(r)
}

// Fields maps custom field names to extracted values.
type Fields map[string]FieldValue

// MarshalJSON encodes fields as an object with sorted keys. A nil value is
// written as null.
func (f Fields) MarshalJSON() ([]byte, error) {
	if f == nil {
		return []byte("{}"), nil
	}
	return marshalMap(f)
}

// Names returns the field names in sorted order.
func (f Fields) Names() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PopulatedCount counts fields holding a non-empty value.
func (f Fields) PopulatedCount() int {
	count := 0
	for _, v := range f {
		if IsPopulated(v) {
			count++
		}
	}
	return count
}

// IsPopulated reports whether v carries data: a non-blank string, a non-empty
// list or record, or any number or bool.
func IsPopulated(v FieldValue) bool {
	switch val := v.(type) {
	case nil, Null:
		return false
	case String:
		return strings.TrimSpace(string(val)) != ""
	case Number, Bool:
		return true
	case List:
		return len(val) > 0
	case Record:
		return len(val) > 0
	default:
		return false
	}
}

// FromAny converts decoded JSON-like data into a FieldValue.
func FromAny(v any) FieldValue {
	switch val := v.(type) {
	case nil:
		return Null{}
	case FieldValue:
		return val
	case string:
		return String(val)
	case bool:
		return Bool(val)
	case float64:
		return Number(val)
	case float32:
		return Number(val)
	case int:
		return Number(val)
	case int64:
		return Number(val)
	case []any:
		list := make(List, 0, len(val))
		for _, item := range val {
			list = append(list, FromAny(item))
		}
		return list
	case map[string]any:
		rec := make(Record, len(val))
		for k, item := range val {
			rec[k] = FromAny(item)
		}
		return rec
	default:
		return Null{}
	}
}

// ToAny converts a FieldValue into plain Go values, suitable for drivers
// that serialise maps and slices themselves.
func ToAny(v FieldValue) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(val)
	case Number:
		return float64(val)
	case Bool:
		return bool(val)
	case List:
		out := make([]any, 0, len(val))
		for _, item := range val {
			out = append(out, ToAny(item))
		}
		return out
	case Record:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = ToAny(item)
		}
		return out
	default:
		return nil
	}
}

// ToAnyMap converts all fields with ToAny.
func (f Fields) ToAnyMap() map[string]any {
	out := make(map[string]any, len(f))
	for k, v := range f {
		out[k] = ToAny(v)
	}
	return out
}

func marshalValue(v FieldValue) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

func marshalMap[M ~map[string]FieldValue](m M) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		b.Write(key)
		b.WriteByte(':')
		raw, err := marshalValue(m[k])
		if err != nil {
			return nil, err
		}
		b.Write(raw)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}
