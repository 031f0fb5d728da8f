package dsl

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"

	bitskema "github.com/reoring/bitskema"
	"github.com/reoring/bitskema/internal/expr"
)

type variantDecl struct {
	name         string
	id           string
	discriminant *int64
	defaults     Params
	fields       []fieldDecl
}

type unionBuilder struct {
	name       string
	sigSrc     string
	key        string
	order      bitskema.ByteOrder
	reader     bitskema.Reader
	readerName string
	variants   []*variantDecl
	orphans    int // fields declared before any variant
}

// Union starts a tagged union. Variants are tried in declaration order
// against the value of the key expression; the first match is decoded.
func Union(name string) *unionBuilder {
	return &unionBuilder{name: name}
}

// RequiredCtx declares the context the union receives.
func (b *unionBuilder) RequiredCtx(sig string) *unionBuilder {
	b.sigSrc = sig
	return b
}

// Key sets the discriminant expression, evaluated over the received context.
func (b *unionBuilder) Key(src string) *unionBuilder {
	b.key = src
	return b
}

// ByteOrder sets the default byte order of all variant fields.
func (b *unionBuilder) ByteOrder(o bitskema.ByteOrder) *unionBuilder {
	b.order = o
	return b
}

// Reader replaces variant dispatch with fn, which receives the union's own
// context.
func (b *unionBuilder) Reader(name string, fn bitskema.Reader) *unionBuilder {
	b.readerName, b.reader = name, fn
	return b
}

// Variant starts a new variant. Subsequent ID, Discriminant, Defaults and
// Field calls apply to it.
func (b *unionBuilder) Variant(name string) *unionBuilder {
	b.variants = append(b.variants, &variantDecl{name: name})
	return b
}

// ID sets the pattern the key must match for the current variant.
func (b *unionBuilder) ID(pattern string) *unionBuilder {
	if v := b.current(); v != nil {
		v.id = pattern
	}
	return b
}

// Discriminant sets the ordinal of the current variant. Variants without an
// ID match their ordinal, which otherwise counts up from the previous
// variant's (starting at 0).
func (b *unionBuilder) Discriminant(n int64) *unionBuilder {
	if v := b.current(); v != nil {
		v.discriminant = &n
	}
	return b
}

// Defaults sets the options inherited by positional fields of the current
// variant.
func (b *unionBuilder) Defaults(opts ...Opt) *unionBuilder {
	if v := b.current(); v != nil {
		v.defaults, _ = applyOpts(opts)
	}
	return b
}

// Field appends a named field to the current variant.
func (b *unionBuilder) Field(name string, t FieldType, opts ...Opt) *unionBuilder {
	v := b.current()
	if v == nil {
		b.orphans++
		return b
	}
	p, set := applyOpts(opts)
	v.fields = append(v.fields, fieldDecl{name: name, typ: t, params: p, set: set})
	return b
}

// Positional appends an unnamed field to the current variant.
func (b *unionBuilder) Positional(t FieldType, opts ...Opt) *unionBuilder {
	return b.Field("", t, opts...)
}

func (b *unionBuilder) current() *variantDecl {
	if len(b.variants) == 0 {
		return nil
	}
	return b.variants[len(b.variants)-1]
}

// Build validates the declaration, parses every id pattern and compiles all
// expressions.
func (b *unionBuilder) Build() (bitskema.Schema, error) {
	var iss bitskema.Issues
	if err := expr.ValidName(b.name); err != nil {
		return nil, bitskema.AppendIssues(iss, bitskema.SchemaIssue(b.name, "schema name: "+err.Error()))
	}
	sig, err := bitskema.ParseSignature(b.sigSrc)
	if err != nil {
		return nil, bitskema.AppendIssues(iss, bitskema.SchemaIssue(b.name, err.Error()))
	}
	u := &unionSchema{name: b.name, sig: sig, reader: b.reader, readerName: b.readerName}
	if b.reader != nil {
		if u.readerName == "" {
			u.readerName = b.name
		}
		return u, nil
	}
	if b.readerName != "" {
		return nil, bitskema.AppendIssues(iss, bitskema.SchemaIssue(b.name, "reader "+strconv.Quote(b.readerName)+" has no implementation"))
	}
	if si := checkSignature(b.name, sig); len(si) > 0 {
		return nil, si
	}
	if b.orphans > 0 {
		iss = bitskema.AppendIssues(iss, bitskema.SchemaIssue(b.name, "field declared before any variant"))
	}
	if len(b.variants) == 0 {
		iss = bitskema.AppendIssues(iss, bitskema.SchemaIssue(b.name, "union has no variants"))
	}
	base, err := expr.NewEnv(sig.Names()...)
	if err != nil {
		return nil, bitskema.AppendIssues(iss, bitskema.SchemaIssue(b.name, err.Error()))
	}
	if b.key == "" {
		iss = bitskema.AppendIssues(iss, bitskema.SchemaIssue(b.name, "union needs a key"))
	} else if u.key, err = base.Compile(b.key); err != nil {
		iss = bitskema.AppendIssues(iss, bitskema.SchemaIssue(b.name+".key", err.Error()))
	}

	seen := map[string]struct{}{}
	next := int64(0)
	for _, vd := range b.variants {
		path := b.name + "." + vd.name
		ordinal := next
		if vd.discriminant != nil {
			ordinal = *vd.discriminant
		}
		next = ordinal + 1
		if err := expr.ValidName(vd.name); err != nil {
			iss = bitskema.AppendIssues(iss, bitskema.SchemaIssue(path, "variant name: "+err.Error()))
			continue
		}
		if _, dup := seen[vd.name]; dup {
			iss = bitskema.AppendIssues(iss, bitskema.SchemaIssue(path, "duplicate variant "+strconv.Quote(vd.name)))
			continue
		}
		seen[vd.name] = struct{}{}
		v, vi := compileVariant(base, path, vd, ordinal, b.order, sig.Names())
		if len(vi) > 0 {
			iss = bitskema.AppendIssues(iss, vi...)
			continue
		}
		u.variants = append(u.variants, v)
	}
	if len(iss) > 0 {
		return nil, iss
	}
	return u, nil
}

// MustBuild panics on definition errors.
func (b *unionBuilder) MustBuild() bitskema.Schema {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}

func compileVariant(base *expr.Env, path string, vd *variantDecl, ordinal int64, order bitskema.ByteOrder, ctxNames []string) (*variant, bitskema.Issues) {
	v := &variant{name: vd.name}
	guardSrc := ""
	if vd.id == "" {
		v.pat = pattern{src: strconv.FormatInt(ordinal, 10), alts: []alt{{lit: ordinal}}}
	} else {
		pat, g, err := parsePattern(vd.id)
		if err != nil {
			return nil, bitskema.Issues{bitskema.SchemaIssue(path+".id", err.Error())}
		}
		v.pat, guardSrc = pat, g
	}
	reserved := ctxNames
	if v.pat.binding != "" && v.pat.binding != "_" {
		reserved = append(append([]string(nil), ctxNames...), v.pat.binding)
	}
	decls := positional(vd.fields, vd.defaults)
	env, err := base.Extend(append(append([]string(nil), reserved...), declNames(decls)...)...)
	if err != nil {
		return nil, bitskema.Issues{bitskema.SchemaIssue(path, err.Error())}
	}
	if guardSrc != "" {
		if v.pat.guard, err = env.CompileBool(guardSrc); err != nil {
			return nil, bitskema.Issues{bitskema.SchemaIssue(path+".id", err.Error())}
		}
	}
	fields, iss := compileFields(env, path, decls, order, reserved)
	if len(iss) > 0 {
		return nil, iss
	}
	v.fields = fields
	return v, nil
}

type variant struct {
	name   string
	pat    pattern
	fields []*field
}

type unionSchema struct {
	name       string
	sig        bitskema.Signature
	key        *expr.Program
	reader     bitskema.Reader
	readerName string
	variants   []*variant
}

func (u *unionSchema) Name() string                  { return u.name }
func (u *unionSchema) Signature() bitskema.Signature { return u.sig }

func (u *unionSchema) DecodeCursor(ctx context.Context, c *bitskema.Cursor, in bitskema.Context) (any, error) {
	if u.reader != nil {
		v, err := u.reader(c, in)
		if err != nil {
			err = readerError(c, u.readerName, err)
			if u.readerName != u.name {
				err = bitskema.AddErrorContext(err, u.readerName)
			}
			return nil, err
		}
		return v, nil
	}
	sc := newScope(in, 0)
	key, err := u.key.Eval(sc.vars)
	if err != nil {
		return nil, bitskema.AddErrorContext(exprError(c, err), "key")
	}
	for _, v := range u.variants {
		if !v.pat.matches(key) {
			continue
		}
		bound := v.pat.binding != "" && v.pat.binding != "_"
		if v.pat.guard != nil {
			var vars expr.Activation = sc.vars
			if bound {
				vars = sc.vars.With(v.pat.binding, expr.Normalize(key))
			}
			ok, err := v.pat.guard.EvalBool(vars)
			if err != nil {
				return nil, bitskema.AddErrorContext(exprError(c, err), v.name)
			}
			if !ok {
				continue
			}
		}
		if bound {
			sc.bind(v.pat.binding, key)
		}
		zerolog.Ctx(ctx).Trace().Str("union", u.name).Str("variant", v.name).Interface("key", key).Msg("variant selected")
		fs, err := decodeFields(ctx, c, sc, v.fields)
		if err != nil {
			return nil, bitskema.AddErrorContext(err, v.name)
		}
		return &bitskema.Variant{Union: u.name, Name: v.name, Fields: fs}, nil
	}
	de := bitskema.NewDecodeError(bitskema.CodeUnknownVariant, map[string]any{"key": render(key)}, nil)
	de.Offset = c.Pos()
	return nil, de
}
