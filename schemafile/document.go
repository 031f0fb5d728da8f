package schemafile

import (
	"bytes"
	"strings"

	json "github.com/goccy/go-json"
)

// Document is one schema document. A YAML stream may hold several; their
// schemas share one namespace.
type Document struct {
	Schemas []SchemaDecl `yaml:"schemas" json:"schemas"`
}

// SchemaDecl declares a record (fields) or a union (key and variants).
type SchemaDecl struct {
	Name        string        `yaml:"name" json:"name"`
	Kind        string        `yaml:"kind,omitempty" json:"kind,omitempty"` // record or union; inferred when empty
	ByteOrder   string        `yaml:"byte_order,omitempty" json:"byte_order,omitempty"`
	RequiredCtx string        `yaml:"required_ctx,omitempty" json:"required_ctx,omitempty"`
	Reader      string        `yaml:"reader,omitempty" json:"reader,omitempty"`
	Key         Expr          `yaml:"key,omitempty" json:"key,omitempty"`
	Defaults    *FieldOptions `yaml:"defaults,omitempty" json:"defaults,omitempty"`
	Fields      []FieldDecl   `yaml:"fields,omitempty" json:"fields,omitempty"`
	Variants    []VariantDecl `yaml:"variants,omitempty" json:"variants,omitempty"`
}

// VariantDecl is one member of a union.
type VariantDecl struct {
	Name         string        `yaml:"name" json:"name"`
	ID           Expr          `yaml:"id,omitempty" json:"id,omitempty"`
	Discriminant *int64        `yaml:"discriminant,omitempty" json:"discriminant,omitempty"`
	Defaults     *FieldOptions `yaml:"defaults,omitempty" json:"defaults,omitempty"`
	Fields       []FieldDecl   `yaml:"fields,omitempty" json:"fields,omitempty"`
}

// FieldDecl is one field. An empty name declares a positional field.
type FieldDecl struct {
	Name         string `yaml:"name,omitempty" json:"name,omitempty"`
	Type         string `yaml:"type" json:"type"` // u8, i16, bool, Name, [T], T?
	FieldOptions `yaml:",inline"`
}

// FieldOptions carries the per-field options. Expression options accept
// plain scalars as well as strings, so `fixed: 5` and `fixed: "5"` agree.
type FieldOptions struct {
	Count     Expr   `yaml:"count,omitempty" json:"count,omitempty"`
	While     Expr   `yaml:"while,omitempty" json:"while,omitempty"`
	When      Expr   `yaml:"when,omitempty" json:"when,omitempty"`
	Ctx       Expr   `yaml:"ctx,omitempty" json:"ctx,omitempty"`
	CtxDelim  string `yaml:"ctx_delim,omitempty" json:"ctx_delim,omitempty"`
	Fixed     Expr   `yaml:"fixed,omitempty" json:"fixed,omitempty"`
	Assert    Expr   `yaml:"assert,omitempty" json:"assert,omitempty"`
	ReadValue Expr   `yaml:"read_value,omitempty" json:"read_value,omitempty"`
	Reader    string `yaml:"reader,omitempty" json:"reader,omitempty"`
	ByteOrder string `yaml:"byte_order,omitempty" json:"byte_order,omitempty"`
}

func (o FieldOptions) empty() bool { return o == (FieldOptions{}) }

// Expr is expression source text.
type Expr string

// UnmarshalJSON accepts strings, numbers and booleans.
func (e *Expr) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*e = Expr(s)
		return nil
	}
	if string(b) == "null" {
		*e = ""
		return nil
	}
	*e = Expr(strings.TrimSpace(string(b)))
	return nil
}

func (e Expr) String() string { return string(e) }
