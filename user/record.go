package user

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// PasswordField is the field name carrying the stored password hash.
const PasswordField = "password"

// DefaultUsernameField is the field name used for the login identifier unless
// a store is configured otherwise.
const DefaultUsernameField = "username"

// Field is a single name/value pair used to build a [Record].
type Field struct {
	Name  string
	Value any
}

// F is shorthand for constructing a [Field].
func F(name string, value any) Field {
	return Field{Name: name, Value: value}
}

// Record is an ordered mapping of field name to value.
//
// The zero value is an empty record ready to use. Record values share their
// backing storage when copied; call [Record.Clone] before mutating a record
// that another component still holds.
type Record struct {
	keys   []string
	values map[string]any
}

// New builds a record from fields in the given order. A repeated name
// overwrites the earlier value in place.
func New(fields ...Field) Record {
	var r Record
	for _, f := range fields {
		r.Set(f.Name, f.Value)
	}
	return r
}

// FromMap builds a record from m with fields sorted by name, since map
// iteration order is not stable.
func FromMap(m map[string]any) Record {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	var r Record
	for _, name := range names {
		r.Set(name, m[name])
	}
	return r
}

// Len returns the number of fields.
func (r Record) Len() int {
	return len(r.keys)
}

// IsEmpty reports whether the record has no fields.
func (r Record) IsEmpty() bool {
	return len(r.keys) == 0
}

// Has reports whether name is present.
func (r Record) Has(name string) bool {
	_, ok := r.values[name]
	return ok
}

// Get returns the value stored under name.
func (r Record) Get(name string) (any, bool) {
	v, ok := r.values[name]
	return v, ok
}

// String returns the value under name rendered as a string, or "" when the
// field is missing or nil.
func (r Record) String(name string) string {
	v, ok := r.values[name]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

// Int64 returns the value under name as an integer when it holds one.
func (r Record) Int64(name string) (int64, bool) {
	v, ok := r.values[name]
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint32:
		return int64(t), true
	case float64:
		if t != float64(int64(t)) {
			return 0, false
		}
		return int64(t), true
	case json.Number:
		n, err := t.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// Username returns the identifier stored under field, falling back to
// [DefaultUsernameField] when field is empty.
func (r Record) Username(field string) string {
	if field == "" {
		field = DefaultUsernameField
	}
	return r.String(field)
}

// Set stores value under name. Overwriting an existing field keeps its
// position.
func (r *Record) Set(name string, value any) {
	if name == "" {
		return
	}
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, ok := r.values[name]; !ok {
		r.keys = append(r.keys, name)
	}
	r.values[name] = value
}

// Delete removes name and reports whether it was present.
func (r *Record) Delete(name string) bool {
	if _, ok := r.values[name]; !ok {
		return false
	}
	delete(r.values, name)
	for i, k := range r.keys {
		if k == name {
			r.keys = append(r.keys[:i:i], r.keys[i+1:]...)
			break
		}
	}
	return true
}

// Fields returns the field names in order.
func (r Record) Fields() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Map returns an unordered copy of the record.
func (r Record) Map() map[string]any {
	out := make(map[string]any, len(r.keys))
	for _, k := range r.keys {
		out[k] = r.values[k]
	}
	return out
}

// Clone returns an independent copy. Nested values are shared.
func (r Record) Clone() Record {
	out := Record{
		keys:   make([]string, len(r.keys)),
		values: make(map[string]any, len(r.keys)),
	}
	copy(out.keys, r.keys)
	for k, v := range r.values {
		out.values[k] = v
	}
	return out
}

// WithoutPassword returns a copy with [PasswordField] removed.
func (r Record) WithoutPassword() Record {
	out := r.Clone()
	out.Delete(PasswordField)
	return out
}

// Equal reports whether both records hold the same fields in the same order
// with the same JSON encoding.
func (r Record) Equal(other Record) bool {
	a, errA := r.MarshalJSON()
	b, errB := other.MarshalJSON()
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// MarshalJSON encodes the record as a JSON object in field order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')

		value, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, fmt.Errorf("encode field %q: %w", k, err)
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping its field order. Numbers are
// kept as [json.Number] so re-encoding reproduces the input literal.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("user record must be a JSON object")
	}

	var out Record
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return errors.New("user record key must be a string")
		}

		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("decode field %q: %w", name, err)
		}
		out.Set(name, value)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after user record")
	}

	*r = out
	return nil
}
