package dsl

import (
	"math"

	js "github.com/reoring/bitskema/jsonschema"
)

func (r *recordSchema) JSONSchema() (*js.Schema, error) {
	if r.reader != nil {
		return &js.Schema{Title: r.name, Description: "decoded by reader " + r.readerName}, nil
	}
	out, err := objectSchema(r.fields)
	if err != nil {
		return nil, err
	}
	out.Title = r.name
	return out, nil
}

func (u *unionSchema) JSONSchema() (*js.Schema, error) {
	if u.reader != nil {
		return &js.Schema{Title: u.name, Description: "decoded by reader " + u.readerName}, nil
	}
	out := &js.Schema{Title: u.name, OneOf: make([]*js.Schema, 0, len(u.variants))}
	for _, v := range u.variants {
		vs, err := objectSchema(v.fields)
		if err != nil {
			return nil, err
		}
		vs.Title = v.name
		vs.Description = "id: " + v.pat.src
		vs.Properties["$variant"] = &js.Schema{Type: "string", Const: v.name}
		vs.Required = append([]string{"$variant"}, vs.Required...)
		out.OneOf = append(out.OneOf, vs)
	}
	return out, nil
}

func objectSchema(fields []*field) (*js.Schema, error) {
	out := &js.Schema{Type: "object", Properties: map[string]*js.Schema{}, AdditionalProperties: false}
	for _, f := range fields {
		fs, err := f.jsonSchema()
		if err != nil {
			return nil, err
		}
		out.Properties[f.name] = fs
		out.Required = append(out.Required, f.name)
	}
	return out, nil
}

func (f *field) jsonSchema() (*js.Schema, error) {
	if f.reader != nil {
		return &js.Schema{Description: "decoded by reader " + f.readerName}, nil
	}
	s, err := typeSchema(f.typ)
	if err != nil {
		return nil, err
	}
	if f.hasFixed {
		s.Const = f.fixed
	}
	if f.assert != nil {
		s.Description = "assert: " + f.assert.Source()
	}
	if f.readValue != nil {
		s.Description = "computed: " + f.readValue.Source()
	}
	return s, nil
}

func typeSchema(t FieldType) (*js.Schema, error) {
	switch t.kind {
	case kindSchema:
		return t.schema.JSONSchema()
	case kindSeq:
		items, err := typeSchema(*t.elem)
		if err != nil {
			return nil, err
		}
		return &js.Schema{Type: "array", Items: items}, nil
	case kindOpt:
		inner, err := typeSchema(*t.elem)
		if err != nil {
			return nil, err
		}
		return js.Nullable(inner), nil
	}
	sc := t.scalar
	switch {
	case sc.Bool:
		return &js.Schema{Type: "boolean"}, nil
	case sc.Signed:
		if sc.Width == 64 {
			return &js.Schema{Type: "integer", Minimum: int64(math.MinInt64), Maximum: int64(math.MaxInt64)}, nil
		}
		return &js.Schema{Type: "integer", Minimum: -(int64(1) << (sc.Width - 1)), Maximum: int64(1)<<(sc.Width-1) - 1}, nil
	default:
		return &js.Schema{Type: "integer", Minimum: 0, Maximum: uint64(math.MaxUint64) >> (64 - sc.Width)}, nil
	}
}
