package dsl

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	bitskema "github.com/reoring/bitskema"
	"github.com/reoring/bitskema/internal/expr"
)

type fieldDecl struct {
	name   string
	typ    FieldType
	params Params
	set    bool // options were given explicitly
}

// field is the compiled, immutable form of a fieldDecl.
type field struct {
	name  string
	typ   FieldType
	order bitskema.ByteOrder

	readValue  *expr.Program
	reader     bitskema.Reader
	readerName string
	count      *expr.Program
	while      *expr.Program
	when       *expr.Program
	ctx        []*expr.Program

	hasFixed bool
	fixed    any
	fixedSrc string
	assert   *expr.Program
}

// positional assigns field_N names to unnamed declarations and lets them
// inherit the enclosing defaults when they carry no options of their own.
func positional(decls []fieldDecl, defaults Params) []fieldDecl {
	out := make([]fieldDecl, len(decls))
	for i, d := range decls {
		if d.name == "" {
			d.name = "field_" + strconv.Itoa(i)
			if !d.set {
				d.params = defaults
			}
		}
		out[i] = d
	}
	return out
}

// compileFields validates declarations and compiles their expressions
// against env. Errors are reported as Issues rooted at path.
func compileFields(env *expr.Env, path string, decls []fieldDecl, order bitskema.ByteOrder, reservedNames []string) ([]*field, bitskema.Issues) {
	var iss bitskema.Issues
	seen := map[string]struct{}{}
	for _, n := range reservedNames {
		seen[n] = struct{}{}
	}
	out := make([]*field, 0, len(decls))
	for _, d := range decls {
		p := path + "." + d.name
		if err := expr.ValidName(d.name); err != nil || d.name == expr.Self {
			hint := "field name " + strconv.Quote(d.name) + " is reserved"
			if err != nil {
				hint = err.Error()
			}
			iss = bitskema.AppendIssues(iss, bitskema.SchemaIssue(p, hint))
			continue
		}
		if _, dup := seen[d.name]; dup {
			iss = bitskema.AppendIssues(iss, bitskema.SchemaIssue(p, "duplicate name "+strconv.Quote(d.name)))
			continue
		}
		seen[d.name] = struct{}{}
		f, fi := compileField(env, p, d, order)
		if len(fi) > 0 {
			iss = bitskema.AppendIssues(iss, fi...)
			continue
		}
		out = append(out, f)
	}
	return out, iss
}

func compileField(env *expr.Env, path string, d fieldDecl, order bitskema.ByteOrder) (*field, bitskema.Issues) {
	var iss bitskema.Issues
	bad := func(format string, args ...any) {
		iss = bitskema.AppendIssues(iss, bitskema.SchemaIssue(path, fmt.Sprintf(format, args...)))
	}
	if msg := d.typ.check(); msg != "" {
		bad("%s", msg)
		return nil, iss
	}
	p := d.params
	f := &field{name: d.name, typ: d.typ, order: order, reader: p.Reader, readerName: p.ReaderName}
	if p.ByteOrder != "" {
		o, err := bitskema.ParseByteOrder(p.ByteOrder)
		if err != nil {
			bad("%v", err)
		}
		f.order = o
	}
	if f.reader == nil && f.readerName != "" {
		bad("reader %q has no implementation", f.readerName)
	}
	if f.reader != nil && f.readerName == "" {
		f.readerName = d.name
	}

	compile := func(src string, how func(string) (*expr.Program, error)) *expr.Program {
		if strings.TrimSpace(src) == "" {
			return nil
		}
		prg, err := how(src)
		if err != nil {
			bad("%v", err)
			return nil
		}
		return prg
	}

	if p.ReadValue != "" {
		if f.reader != nil || p.Count != "" || p.While != "" || p.When != "" || p.Ctx != "" {
			bad("read_value cannot be combined with reader, count, while, when or ctx")
		}
		f.readValue = compile(p.ReadValue, env.Compile)
	} else {
		switch d.typ.kind {
		case kindSeq:
			switch {
			case f.reader != nil && (p.Count != "" || p.While != ""):
				bad("count and while are not used with a reader")
			case f.reader == nil && p.Count != "" && p.While != "":
				bad("count and while are mutually exclusive")
			case f.reader == nil && p.Count == "" && p.While == "":
				bad("sequence %s needs count or while", d.typ)
			}
			f.count = compile(p.Count, env.CompileInt)
			f.while = compile(p.While, env.CompileBool)
		case kindOpt:
			if f.reader == nil && p.When == "" {
				bad("optional %s needs when", d.typ)
			}
			f.when = compile(p.When, env.CompileBool)
		}
		if d.typ.kind != kindSeq && (p.Count != "" || p.While != "") {
			bad("count and while apply to sequences only")
		}
		if d.typ.kind != kindOpt && p.When != "" {
			bad("when applies to optionals only")
		}
		for _, src := range splitCtx(p.Ctx, p.CtxDelim) {
			if prg := compile(src, env.Compile); prg != nil {
				f.ctx = append(f.ctx, prg)
			}
		}
		if f.reader == nil {
			t := d.typ.target()
			switch {
			case t.kind == kindSchema:
				if want := len(t.schema.Signature()); want != len(f.ctx) {
					bad("%s requires context (%s): want %d values, got %d", t.schema.Name(), t.schema.Signature(), want, len(f.ctx))
				}
			case p.Ctx != "":
				bad("ctx applies to nested schemas and readers only")
			}
		}
	}

	if p.Fixed != "" {
		v, err := expr.Constant(p.Fixed)
		if err != nil {
			bad("fixed: %v", err)
		}
		f.hasFixed, f.fixed, f.fixedSrc = true, v, strings.TrimSpace(p.Fixed)
	}
	f.assert = compile(p.Assert, env.CompileBool)
	if len(iss) > 0 {
		return nil, iss
	}
	return f, nil
}

// checkSignature rejects context parameter names that cannot be bound as
// expression variables.
func checkSignature(schema string, sig bitskema.Signature) bitskema.Issues {
	var iss bitskema.Issues
	for _, p := range sig {
		err := expr.ValidName(p.Name)
		switch {
		case err != nil:
			iss = bitskema.AppendIssues(iss, bitskema.SchemaIssue(schema, "context parameter: "+err.Error()))
		case p.Name == expr.Self:
			iss = bitskema.AppendIssues(iss, bitskema.SchemaIssue(schema, "context parameter \"self\" is reserved"))
		}
	}
	return iss
}

// splitCtx splits a ctx option into its argument expressions. Delimiters
// inside brackets, parentheses or string literals do not split.
func splitCtx(src, delim string) []string {
	if strings.TrimSpace(src) == "" {
		return nil
	}
	if delim == "" {
		delim = ","
	}
	var (
		out   []string
		depth int
		quote rune
		start int
	)
	for i, r := range src {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '(' || r == '[' || r == '{':
			depth++
		case r == ')' || r == ']' || r == '}':
			depth--
		case depth == 0 && i >= start && strings.HasPrefix(src[i:], delim):
			out = append(out, strings.TrimSpace(src[start:i]))
			start = i + len(delim)
		}
	}
	return append(out, strings.TrimSpace(src[start:]))
}

// decode reads the field and applies fixed and assert. Every failure is
// annotated with the field name.
func (f *field) decode(ctx context.Context, c *bitskema.Cursor, sc *scope) (any, error) {
	zerolog.Ctx(ctx).Trace().Str("field", f.name).Int64("pos", c.Pos()).Msg("read field")
	v, err := f.read(ctx, c, sc)
	if err == nil {
		err = f.check(c, sc, v)
	}
	if err != nil {
		return nil, bitskema.AddErrorContext(err, f.name)
	}
	return v, nil
}

func (f *field) read(ctx context.Context, c *bitskema.Cursor, sc *scope) (any, error) {
	if f.readValue != nil {
		v, err := f.readValue.Eval(sc.vars)
		if err != nil {
			return nil, exprError(c, err)
		}
		return f.coerce(c, v)
	}
	if f.reader != nil {
		args, err := f.args(c, sc)
		if err != nil {
			return nil, err
		}
		v, err := f.reader(c, args)
		if err != nil {
			return nil, readerError(c, f.readerName, err)
		}
		return v, nil
	}
	switch f.typ.kind {
	case kindSeq:
		return f.readSeq(ctx, c, sc)
	case kindOpt:
		ok, err := f.when.EvalBool(sc.vars)
		if err != nil {
			return nil, exprError(c, err)
		}
		if !ok {
			return bitskema.None(), nil
		}
		args, err := f.args(c, sc)
		if err != nil {
			return nil, err
		}
		v, err := f.readOne(ctx, c, f.typ.target(), args)
		if err != nil {
			return nil, err
		}
		return bitskema.Some(v), nil
	}
	args, err := f.args(c, sc)
	if err != nil {
		return nil, err
	}
	return f.readOne(ctx, c, f.typ, args)
}

// readSeq reads elements until the count is reached or the while predicate
// turns false. The ctx values are evaluated once, before the first element.
func (f *field) readSeq(ctx context.Context, c *bitskema.Cursor, sc *scope) (any, error) {
	elem := f.typ.target()
	var (
		args  bitskema.Context
		bound bool
	)
	next := func(i int) (any, error) {
		if !bound {
			a, err := f.args(c, sc)
			if err != nil {
				return nil, err
			}
			args, bound = a, true
		}
		v, err := f.readOne(ctx, c, elem, args)
		if err != nil {
			return nil, bitskema.AddErrorContext(err, "["+strconv.Itoa(i)+"]")
		}
		return v, nil
	}

	if f.count != nil {
		n, err := f.count.EvalCount(sc.vars)
		if err != nil {
			return nil, exprError(c, err)
		}
		out := make([]any, 0, min(n, 4096))
		for i := 0; i < n; i++ {
			v, err := next(i)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
	out := []any{}
	self := []any{}
	for {
		more, err := f.while.EvalBool(sc.vars.With(expr.Self, self))
		if err != nil {
			return nil, exprError(c, err)
		}
		if !more {
			return out, nil
		}
		v, err := next(len(out))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		self = append(self, expr.Normalize(v))
	}
}

func (f *field) readOne(ctx context.Context, c *bitskema.Cursor, t FieldType, args bitskema.Context) (any, error) {
	if t.kind == kindSchema {
		child, err := bitskema.EnterSchema(ctx)
		if err != nil {
			return nil, err
		}
		return t.schema.DecodeCursor(child, c, args)
	}
	pos := c.Pos()
	v, err := c.ReadScalar(t.scalar, f.order)
	if err != nil {
		de := bitskema.NewDecodeError(bitskema.CodeExhausted, map[string]any{"want": t.scalar.Width, "have": c.Remaining()}, err)
		de.Offset = pos
		return nil, de
	}
	return v, nil
}

// args evaluates the ctx expressions and binds them for the callee.
func (f *field) args(c *bitskema.Cursor, sc *scope) (bitskema.Context, error) {
	vals := make([]any, len(f.ctx))
	for i, prg := range f.ctx {
		v, err := prg.Eval(sc.vars)
		if err != nil {
			return bitskema.Context{}, exprError(c, err)
		}
		vals[i] = v
	}
	if t := f.typ.target(); f.reader == nil && t.kind == kindSchema {
		in, err := t.schema.Signature().Bind(vals)
		if err != nil {
			de := bitskema.NewDecodeError(bitskema.CodeContextMismatch, map[string]any{"schema": t.schema.Name()}, err)
			de.Offset = c.Pos()
			return bitskema.Context{}, de
		}
		return in, nil
	}
	sig := make(bitskema.Signature, len(f.ctx))
	for i, prg := range f.ctx {
		name := prg.Source()
		if expr.ValidName(name) != nil {
			name = "arg" + strconv.Itoa(i)
		}
		sig[i] = bitskema.Param{Name: name, Type: "any"}
	}
	return sig.Bind(vals)
}

// coerce fits a computed value to a declared scalar type.
func (f *field) coerce(c *bitskema.Cursor, v any) (any, error) {
	if f.typ.kind != kindScalar {
		return v, nil
	}
	s := f.typ.scalar
	fail := func() (any, error) {
		return nil, exprError(c, fmt.Errorf("computed value %v does not fit %s", v, s))
	}
	switch {
	case s.Bool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
		return fail()
	case s.Signed:
		i, ok := bitskema.AsInt(v)
		if !ok || (s.Width < 64 && (i < -(int64(1)<<(s.Width-1)) || i >= int64(1)<<(s.Width-1))) {
			return fail()
		}
		return i, nil
	default:
		u, ok := bitskema.AsUint(v)
		if !ok || (s.Width < 64 && u > uint64(math.MaxUint64)>>(64-s.Width)) {
			return fail()
		}
		return u, nil
	}
}

// check applies fixed then assert. Absent optionals are not checked.
func (f *field) check(c *bitskema.Cursor, sc *scope, v any) error {
	subject := v
	if o, ok := v.(bitskema.Optional); ok {
		if !o.Valid {
			return nil
		}
		subject = o.Value
	}
	if f.hasFixed && !expr.Equal(subject, f.fixed) {
		de := bitskema.NewDecodeError(bitskema.CodeFixedMismatch, map[string]any{
			"field":    f.name,
			"expected": f.fixedSrc,
			"actual":   render(subject),
		}, nil)
		de.Offset = c.Pos()
		return de
	}
	if f.assert != nil {
		ok, err := f.assert.EvalBool(sc.vars.With(expr.Self, expr.Normalize(subject)))
		if err != nil {
			return exprError(c, err)
		}
		if !ok {
			de := bitskema.NewDecodeError(bitskema.CodeAssertion, map[string]any{
				"field":  f.name,
				"value":  render(subject),
				"assert": f.assert.Source(),
			}, nil)
			de.Offset = c.Pos()
			return de
		}
	}
	return nil
}

// readerError keeps decode errors raised by nested decodes inside a reader
// and tags foreign ones with the reader name.
func readerError(c *bitskema.Cursor, name string, err error) error {
	if _, ok := bitskema.AsDecodeError(err); ok {
		return err
	}
	code := bitskema.CodeReaderFailed
	if errors.Is(err, bitskema.ErrExhausted) {
		code = bitskema.CodeExhausted
	}
	de := bitskema.NewDecodeError(code, map[string]any{"reader": name}, err)
	de.Offset = c.Pos()
	return de
}

func exprError(c *bitskema.Cursor, err error) error {
	de := bitskema.NewDecodeError(bitskema.CodeExpression, nil, err)
	de.Offset = c.Pos()
	return de
}

func render(v any) string { return fmt.Sprint(bitskema.Plain(v)) }
