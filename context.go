package bitskema

import (
	"fmt"
	"math"
	"strings"
)

// Param is one entry of a required-context signature.
type Param struct {
	Name string
	// Type is a scalar name (u8, i16, bool) or "any" for values that are
	// passed through unchecked (lists, records, custom reader results).
	Type string
}

// Signature is the ordered list of context values a schema expects from its
// caller.
type Signature []Param

// ParseSignature parses "size: u8, ty: u16". An empty string yields an empty
// signature.
func ParseSignature(src string) (Signature, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, nil
	}
	var sig Signature
	seen := map[string]struct{}{}
	for _, part := range strings.Split(src, ",") {
		name, typ, ok := strings.Cut(part, ":")
		name, typ = strings.TrimSpace(name), strings.TrimSpace(typ)
		if !ok || name == "" || typ == "" {
			return nil, fmt.Errorf("bitskema: malformed context parameter %q", strings.TrimSpace(part))
		}
		if !isIdent(name) {
			return nil, fmt.Errorf("bitskema: invalid context parameter name %q", name)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("bitskema: duplicate context parameter %q", name)
		}
		seen[name] = struct{}{}
		if _, ok := ParseScalar(typ); !ok && typ != "any" && typ != "int" {
			return nil, fmt.Errorf("bitskema: unsupported context parameter type %q", typ)
		}
		sig = append(sig, Param{Name: name, Type: typ})
	}
	return sig, nil
}

func (s Signature) String() string {
	parts := make([]string, len(s))
	for i, p := range s {
		parts[i] = p.Name + ": " + p.Type
	}
	return strings.Join(parts, ", ")
}

// Names returns the parameter names in order.
func (s Signature) Names() []string {
	out := make([]string, len(s))
	for i, p := range s {
		out[i] = p.Name
	}
	return out
}

// Bind coerces vals positionally to the signature and returns the Context.
func (s Signature) Bind(vals []any) (Context, error) {
	if len(vals) != len(s) {
		return Context{}, fmt.Errorf("bitskema: context arity mismatch: want %d (%s), got %d", len(s), s, len(vals))
	}
	out := Context{names: s.Names(), vals: make([]any, len(vals))}
	for i, p := range s {
		v, err := coerceParam(p, vals[i])
		if err != nil {
			return Context{}, err
		}
		out.vals[i] = v
	}
	return out, nil
}

// BindNamed binds values supplied by name (top-level decode arguments).
func (s Signature) BindNamed(args map[string]any) (Context, error) {
	vals := make([]any, len(s))
	for i, p := range s {
		v, ok := args[p.Name]
		if !ok {
			return Context{}, fmt.Errorf("bitskema: missing context argument %q", p.Name)
		}
		vals[i] = v
	}
	for k := range args {
		if !s.has(k) {
			return Context{}, fmt.Errorf("bitskema: unexpected context argument %q", k)
		}
	}
	return s.Bind(vals)
}

func (s Signature) has(name string) bool {
	for _, p := range s {
		if p.Name == name {
			return true
		}
	}
	return false
}

// Context is the ordered set of named values a schema received from its
// caller. The zero value is the empty context.
type Context struct {
	names []string
	vals  []any
}

// Len reports the number of values.
func (c Context) Len() int { return len(c.vals) }

// At returns the i-th value.
func (c Context) At(i int) any { return c.vals[i] }

// Name returns the i-th parameter name.
func (c Context) Name(i int) string { return c.names[i] }

// Get returns the value bound to name.
func (c Context) Get(name string) (any, bool) {
	for i, n := range c.names {
		if n == name {
			return c.vals[i], true
		}
	}
	return nil, false
}

// Uint returns the named value as an unsigned integer.
func (c Context) Uint(name string) (uint64, error) {
	v, ok := c.Get(name)
	if !ok {
		return 0, fmt.Errorf("bitskema: context has no %q", name)
	}
	u, ok := AsUint(v)
	if !ok {
		return 0, fmt.Errorf("bitskema: context value %q is %T, not an unsigned integer", name, v)
	}
	return u, nil
}

func coerceParam(p Param, v any) (any, error) {
	switch p.Type {
	case "any":
		return v, nil
	case "int":
		if i, ok := AsInt(v); ok {
			return i, nil
		}
		return nil, fmt.Errorf("bitskema: context parameter %s: %v (%T) is not an integer", p.Name, v, v)
	}
	sc, _ := ParseScalar(p.Type)
	switch {
	case sc.Bool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("bitskema: context parameter %s: %v (%T) is not a bool", p.Name, v, v)
		}
		return b, nil
	case sc.Signed:
		i, ok := AsInt(v)
		if !ok || (sc.Width < 64 && (i < -(int64(1)<<(sc.Width-1)) || i >= int64(1)<<(sc.Width-1))) {
			return nil, fmt.Errorf("bitskema: context parameter %s: %v does not fit %s", p.Name, v, p.Type)
		}
		return i, nil
	default:
		u, ok := AsUint(v)
		if !ok || (sc.Width < 64 && u >= uint64(1)<<sc.Width) {
			return nil, fmt.Errorf("bitskema: context parameter %s: %v does not fit %s", p.Name, v, p.Type)
		}
		return u, nil
	}
}

// AsUint converts any Go integer to uint64; negative values fail.
func AsUint(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case uint:
		return uint64(n), true
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	}
	if i, ok := AsInt(v); ok && i >= 0 {
		return uint64(i), true
	}
	return 0, false
}

// AsInt converts any Go integer to int64; unsigned values above
// math.MaxInt64 fail.
func AsInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	}
	return 0, false
}

func isIdent(s string) bool {
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return s != ""
}
