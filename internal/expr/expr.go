// Package expr compiles and evaluates the CEL expressions that schemas use
// for counts, predicates, context arguments, discriminant keys and literals.
// This package is internal and not part of the public API.
package expr

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
	"github.com/google/cel-go/interpreter"

	bitskema "github.com/reoring/bitskema"
)

// Self is the identifier bound to the value under test in assert
// expressions and to the elements read so far in while predicates.
const Self = "self"

var reserved = map[string]struct{}{
	"as": {}, "break": {}, "const": {}, "continue": {}, "else": {}, "false": {},
	"for": {}, "function": {}, "if": {}, "import": {}, "in": {}, "let": {},
	"loop": {}, "package": {}, "namespace": {}, "null": {}, "return": {},
	"true": {}, "var": {}, "void": {}, "while": {},
	// Type identifiers the standard CEL environment already declares.
	"bool": {}, "bytes": {}, "double": {}, "int": {}, "list": {}, "map": {},
	"null_type": {}, "string": {}, "type": {}, "uint": {},
}

// ValidName reports whether name can be bound as a CEL variable.
func ValidName(name string) error {
	if name == "" {
		return errors.New("empty name")
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return fmt.Errorf("%q is not an identifier", name)
		}
	}
	if _, ok := reserved[name]; ok {
		return fmt.Errorf("%q is a reserved word", name)
	}
	return nil
}

// Env is the set of names visible to a schema's expressions.
type Env struct {
	env   *cel.Env
	names map[string]struct{}
}

// NewEnv declares names (plus Self) as dynamically typed variables.
func NewEnv(names ...string) (*Env, error) {
	opts := []cel.EnvOption{cel.CrossTypeNumericComparisons(true), cel.Variable(Self, cel.DynType)}
	set := map[string]struct{}{Self: {}}
	for _, n := range names {
		if _, dup := set[n]; dup || ValidName(n) != nil {
			continue
		}
		set[n] = struct{}{}
		opts = append(opts, cel.Variable(n, cel.DynType))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, err
	}
	return &Env{env: env, names: set}, nil
}

// Extend returns a child Env with additional names. Like NewEnv it skips
// names ValidName rejects; callers report those.
func (e *Env) Extend(names ...string) (*Env, error) {
	var opts []cel.EnvOption
	set := make(map[string]struct{}, len(e.names)+len(names))
	for n := range e.names {
		set[n] = struct{}{}
	}
	for _, n := range names {
		if _, dup := set[n]; dup || ValidName(n) != nil {
			continue
		}
		set[n] = struct{}{}
		opts = append(opts, cel.Variable(n, cel.DynType))
	}
	if len(opts) == 0 {
		return e, nil
	}
	env, err := e.env.Extend(opts...)
	if err != nil {
		return nil, err
	}
	return &Env{env: env, names: set}, nil
}

// Program is a compiled expression.
type Program struct {
	src string
	out string // static output type name
	prg cel.Program
}

// Compile parses and checks src.
func (e *Env) Compile(src string) (*Program, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, errors.New("empty expression")
	}
	ast, iss := e.env.Compile(src)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", src, iss.Err())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", src, err)
	}
	return &Program{src: src, out: ast.OutputType().String(), prg: prg}, nil
}

// CompileBool compiles src and rejects expressions that statically cannot
// yield a bool.
func (e *Env) CompileBool(src string) (*Program, error) {
	p, err := e.Compile(src)
	if err != nil {
		return nil, err
	}
	if p.out != "bool" && p.out != "dyn" {
		return nil, fmt.Errorf("expression %q yields %s, want bool", p.src, p.out)
	}
	return p, nil
}

// CompileInt compiles src and rejects expressions that statically cannot
// yield an integer.
func (e *Env) CompileInt(src string) (*Program, error) {
	p, err := e.Compile(src)
	if err != nil {
		return nil, err
	}
	if p.out != "int" && p.out != "uint" && p.out != "dyn" {
		return nil, fmt.Errorf("expression %q yields %s, want int", p.src, p.out)
	}
	return p, nil
}

// Source returns the expression text.
func (p *Program) Source() string { return p.src }

// Activation supplies variable values to a program.
type Activation = interpreter.Activation

// Vars holds normalized bindings. One Vars serves every evaluation in a
// record or variant; values are normalized once, when bound.
type Vars struct {
	m map[string]any
}

// NewVars returns an empty binding set sized for n names.
func NewVars(n int) *Vars { return &Vars{m: make(map[string]any, n)} }

// Bindings normalizes every entry of m into a new Vars.
func Bindings(m map[string]any) *Vars {
	v := NewVars(len(m))
	for k, val := range m {
		v.Bind(k, val)
	}
	return v
}

// Bind normalizes val and binds it to name.
func (v *Vars) Bind(name string, val any) { v.m[name] = Normalize(val) }

// With returns an activation that resolves name to val and everything else
// through v. val must already be normalized; v is not modified.
func (v *Vars) With(name string, val any) Activation {
	return &overlay{parent: v, name: name, val: val}
}

// ResolveName implements Activation.
func (v *Vars) ResolveName(name string) (any, bool) {
	val, ok := v.m[name]
	return val, ok
}

// Parent implements Activation.
func (v *Vars) Parent() Activation { return nil }

type overlay struct {
	parent *Vars
	name   string
	val    any
}

func (o *overlay) ResolveName(name string) (any, bool) {
	if name == o.name {
		return o.val, true
	}
	return o.parent.ResolveName(name)
}

func (o *overlay) Parent() Activation { return o.parent }

// Eval evaluates the program and returns a plain Go value.
func (p *Program) Eval(act Activation) (any, error) {
	if act == nil {
		act = interpreter.EmptyActivation()
	}
	out, _, err := p.prg.Eval(act)
	if err != nil {
		return nil, fmt.Errorf("eval %q: %w", p.src, err)
	}
	return native(out)
}

// EvalBool evaluates a predicate.
func (p *Program) EvalBool(act Activation) (bool, error) {
	v, err := p.Eval(act)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("eval %q: got %T, want bool", p.src, v)
	}
	return b, nil
}

// EvalCount evaluates a non-negative element count.
func (p *Program) EvalCount(act Activation) (int, error) {
	v, err := p.Eval(act)
	if err != nil {
		return 0, err
	}
	n, ok := bitskema.AsInt(v)
	if !ok || n < 0 || n > math.MaxInt32 {
		return 0, fmt.Errorf("eval %q: %v is not a valid count", p.src, v)
	}
	return int(n), nil
}

// Constant compiles and evaluates src with no variables in scope.
func Constant(src string) (any, error) {
	env, err := NewEnv()
	if err != nil {
		return nil, err
	}
	p, err := env.Compile(src)
	if err != nil {
		return nil, err
	}
	return p.Eval(nil)
}

var (
	anySliceType = reflect.TypeOf([]any(nil))
	anyMapType   = reflect.TypeOf(map[string]any(nil))
)

func native(v ref.Val) (any, error) {
	if types.IsError(v) {
		return nil, fmt.Errorf("%v", v)
	}
	switch v.(type) {
	case types.Null:
		return nil, nil
	case traits.Lister:
		return v.ConvertToNative(anySliceType)
	case traits.Mapper:
		return v.ConvertToNative(anyMapType)
	}
	return v.Value(), nil
}

// Normalize converts decoded values into CEL-friendly data. Integers that fit
// become int64 so mixed literals compare naturally; records and variants
// become maps; absent optionals become null.
func Normalize(v any) any {
	switch t := bitskema.Plain(v).(type) {
	case nil:
		return nil
	case bool, string, []byte, float64, int64:
		return t
	case uint64:
		if t <= math.MaxInt64 {
			return int64(t)
		}
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = Normalize(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = Normalize(t[i])
		}
		return out
	case fmt.Stringer:
		return t.String()
	default:
		if i, ok := bitskema.AsInt(t); ok {
			return i
		}
		return t
	}
}

// Equal compares two values numerically when both are integers and
// structurally otherwise.
func Equal(a, b any) bool {
	a, b = Normalize(a), Normalize(b)
	if ai, ok := bitskema.AsInt(a); ok {
		if bi, ok := bitskema.AsInt(b); ok {
			return ai == bi
		}
	}
	if au, ok := a.(uint64); ok {
		bu, ok := bitskema.AsUint(b)
		return ok && au == bu
	}
	if bu, ok := b.(uint64); ok {
		au, ok := bitskema.AsUint(a)
		return ok && au == bu
	}
	return reflect.DeepEqual(a, b)
}

// Compare orders two integers. ok is false when either is not an integer.
func Compare(a, b any) (int, bool) {
	a, b = Normalize(a), Normalize(b)
	ai, aok := bitskema.AsInt(a)
	bi, bok := bitskema.AsInt(b)
	switch {
	case aok && bok:
		switch {
		case ai < bi:
			return -1, true
		case ai > bi:
			return 1, true
		}
		return 0, true
	case !aok && !bok:
		au, aok2 := a.(uint64)
		bu, bok2 := b.(uint64)
		if !aok2 || !bok2 {
			return 0, false
		}
		switch {
		case au < bu:
			return -1, true
		case au > bu:
			return 1, true
		}
		return 0, true
	case aok: // b is a uint64 above MaxInt64
		if _, ok := b.(uint64); ok {
			return -1, true
		}
	case bok:
		if _, ok := a.(uint64); ok {
			return 1, true
		}
	}
	return 0, false
}
