package bitskema

import (
	"bytes"

	json "github.com/goccy/go-json"
)

// Field is one decoded field of a Record or Variant.
type Field struct {
	Name  string
	Value any
}

// Record is a decoded record. Fields keep declaration (= read) order.
type Record struct {
	Schema string
	Fields []Field
}

// Get returns the value of the named field.
func (r *Record) Get(name string) (any, bool) {
	return lookupField(r.Fields, name)
}

// Map returns the fields as a map, converting nested values recursively.
func (r *Record) Map() map[string]any { return fieldsMap(r.Fields) }

// MarshalJSON renders the record as an object in field order.
func (r *Record) MarshalJSON() ([]byte, error) { return marshalFields(r.Fields, "", "") }

// Variant is a decoded tagged-union member.
type Variant struct {
	Union  string
	Name   string
	Fields []Field
}

// Get returns the value of the named variant field.
func (v *Variant) Get(name string) (any, bool) {
	return lookupField(v.Fields, name)
}

// Map returns the variant fields as a map with the variant name under
// "$variant".
func (v *Variant) Map() map[string]any {
	m := fieldsMap(v.Fields)
	m["$variant"] = v.Name
	return m
}

// MarshalJSON renders the variant as {"$variant": name, ...fields}.
func (v *Variant) MarshalJSON() ([]byte, error) { return marshalFields(v.Fields, "$variant", v.Name) }

// Optional is the result of an optional field: Valid is false when the
// presence predicate was false and nothing was read.
type Optional struct {
	Valid bool
	Value any
}

// Some wraps a present value.
func Some(v any) Optional { return Optional{Valid: true, Value: v} }

// None is the absent optional.
func None() Optional { return Optional{} }

func (o Optional) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

func lookupField(fs []Field, name string) (any, bool) {
	for _, f := range fs {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

func fieldsMap(fs []Field) map[string]any {
	m := make(map[string]any, len(fs)+1)
	for _, f := range fs {
		m[f.Name] = Plain(f.Value)
	}
	return m
}

func marshalFields(fs []Field, tagKey, tag string) ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	first := true
	write := func(k string, v any) error {
		if !first {
			b.WriteByte(',')
		}
		first = false
		kb, err := json.Marshal(k)
		if err != nil {
			return err
		}
		b.Write(kb)
		b.WriteByte(':')
		vb, err := json.Marshal(v)
		if err != nil {
			return err
		}
		b.Write(vb)
		return nil
	}
	if tagKey != "" {
		if err := write(tagKey, tag); err != nil {
			return nil, err
		}
	}
	for _, f := range fs {
		if err := write(f.Name, f.Value); err != nil {
			return nil, err
		}
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// Plain converts a decoded value into plain Go data: records and variants
// become maps, optionals their value or nil, sequences []any.
func Plain(v any) any {
	switch t := v.(type) {
	case *Record:
		return t.Map()
	case *Variant:
		return t.Map()
	case Optional:
		if !t.Valid {
			return nil
		}
		return Plain(t.Value)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = Plain(t[i])
		}
		return out
	default:
		return v
	}
}
