package jsonschema

// Schema is a minimal JSON Schema representation used for export.
// Keep this struct small and extend incrementally.
type Schema struct {
	// Core
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type,omitempty"`
	Format      string `json:"format,omitempty"`
	Const       any    `json:"const,omitempty"`

	// Numeric
	Minimum any `json:"minimum,omitempty"`
	Maximum any `json:"maximum,omitempty"`

	// Object
	Properties           map[string]*Schema `json:"properties,omitempty"`
	Required             []string           `json:"required,omitempty"`
	AdditionalProperties any                `json:"additionalProperties,omitempty"`

	// Array
	Items    *Schema `json:"items,omitempty"`
	MinItems *int    `json:"minItems,omitempty"`
	MaxItems *int    `json:"maxItems,omitempty"`

	// Union
	OneOf []*Schema `json:"oneOf,omitempty"`
}

// Null is the schema of an absent optional.
func Null() *Schema { return &Schema{Type: "null"} }

// Nullable wraps s so that null is also accepted.
func Nullable(s *Schema) *Schema {
	if s == nil {
		return Null()
	}
	return &Schema{OneOf: []*Schema{Null(), s}}
}
