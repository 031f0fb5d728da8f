package dsl

import (
	"context"
	"strconv"

	bitskema "github.com/reoring/bitskema"
	"github.com/reoring/bitskema/internal/expr"
)

type recordBuilder struct {
	name       string
	sigSrc     string
	order      bitskema.ByteOrder
	reader     bitskema.Reader
	readerName string
	defaults   Params
	fields     []fieldDecl
}

// Record starts a record schema: a fixed sequence of fields read in
// declaration order.
func Record(name string) *recordBuilder {
	return &recordBuilder{name: name}
}

// RequiredCtx declares the context the record receives, e.g. "len: u8, kind: u16".
func (b *recordBuilder) RequiredCtx(sig string) *recordBuilder {
	b.sigSrc = sig
	return b
}

// ByteOrder sets the default byte order of the record's fields.
func (b *recordBuilder) ByteOrder(o bitskema.ByteOrder) *recordBuilder {
	b.order = o
	return b
}

// Reader replaces field-by-field decoding with fn, which receives the
// record's own context. Declared fields are then ignored.
func (b *recordBuilder) Reader(name string, fn bitskema.Reader) *recordBuilder {
	b.readerName, b.reader = name, fn
	return b
}

// Defaults sets the options inherited by positional fields declared without
// options of their own.
func (b *recordBuilder) Defaults(opts ...Opt) *recordBuilder {
	b.defaults, _ = applyOpts(opts)
	return b
}

// Field appends a named field.
func (b *recordBuilder) Field(name string, t FieldType, opts ...Opt) *recordBuilder {
	p, set := applyOpts(opts)
	b.fields = append(b.fields, fieldDecl{name: name, typ: t, params: p, set: set})
	return b
}

// Positional appends an unnamed field, exposed as field_N where N is its
// index.
func (b *recordBuilder) Positional(t FieldType, opts ...Opt) *recordBuilder {
	return b.Field("", t, opts...)
}

// Build validates the declaration and compiles every expression.
func (b *recordBuilder) Build() (bitskema.Schema, error) {
	var iss bitskema.Issues
	if err := expr.ValidName(b.name); err != nil {
		return nil, bitskema.AppendIssues(iss, bitskema.SchemaIssue(b.name, "schema name: "+err.Error()))
	}
	sig, err := bitskema.ParseSignature(b.sigSrc)
	if err != nil {
		return nil, bitskema.AppendIssues(iss, bitskema.SchemaIssue(b.name, err.Error()))
	}
	s := &recordSchema{name: b.name, sig: sig, order: b.order, reader: b.reader, readerName: b.readerName}
	if b.reader != nil {
		if s.readerName == "" {
			s.readerName = b.name
		}
		return s, nil
	}
	if b.readerName != "" {
		return nil, bitskema.AppendIssues(iss, bitskema.SchemaIssue(b.name, "reader "+strconv.Quote(b.readerName)+" has no implementation"))
	}
	if si := checkSignature(b.name, sig); len(si) > 0 {
		return nil, si
	}
	decls := positional(b.fields, b.defaults)
	env, err := expr.NewEnv(append(sig.Names(), declNames(decls)...)...)
	if err != nil {
		return nil, bitskema.AppendIssues(iss, bitskema.SchemaIssue(b.name, err.Error()))
	}
	fields, fi := compileFields(env, b.name, decls, b.order, sig.Names())
	if len(fi) > 0 {
		return nil, fi
	}
	s.fields = fields
	return s, nil
}

// MustBuild panics on definition errors.
func (b *recordBuilder) MustBuild() bitskema.Schema {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}

func declNames(decls []fieldDecl) []string {
	out := make([]string, 0, len(decls))
	for _, d := range decls {
		if expr.ValidName(d.name) == nil {
			out = append(out, d.name)
		}
	}
	return out
}

type recordSchema struct {
	name       string
	sig        bitskema.Signature
	order      bitskema.ByteOrder
	reader     bitskema.Reader
	readerName string
	fields     []*field
}

func (r *recordSchema) Name() string                  { return r.name }
func (r *recordSchema) Signature() bitskema.Signature { return r.sig }

func (r *recordSchema) DecodeCursor(ctx context.Context, c *bitskema.Cursor, in bitskema.Context) (any, error) {
	if r.reader != nil {
		v, err := r.reader(c, in)
		if err != nil {
			err = readerError(c, r.readerName, err)
			if r.readerName != r.name {
				err = bitskema.AddErrorContext(err, r.readerName)
			}
			return nil, err
		}
		return v, nil
	}
	fs, err := decodeFields(ctx, c, newScope(in, len(r.fields)), r.fields)
	if err != nil {
		return nil, err
	}
	return &bitskema.Record{Schema: r.name, Fields: fs}, nil
}
