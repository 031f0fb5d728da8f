package schemafile

import (
	"strconv"
	"strings"

	"golang.org/x/exp/slices"

	bitskema "github.com/reoring/bitskema"
	"github.com/reoring/bitskema/dsl"
	"github.com/reoring/bitskema/i18n"
	"github.com/reoring/bitskema/readers"
)

// Registry holds the schemas built from a set of documents.
type Registry struct {
	schemas map[string]bitskema.Schema
}

// Lookup returns the schema declared under name.
func (r *Registry) Lookup(name string) (bitskema.Schema, bool) {
	s, ok := r.schemas[name]
	return s, ok
}

// Names returns every schema name in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.schemas))
	for n := range r.schemas {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

type state int

const (
	unvisited state = iota
	visiting
	done
)

// builder resolves schema references depth first so that every nested
// schema is built before the schema that uses it.
type builder struct {
	decls   map[string]*SchemaDecl
	state   map[string]state
	built   map[string]bitskema.Schema
	readers *readers.Registry
	iss     bitskema.Issues
}

func build(decls []SchemaDecl, rd *readers.Registry) (*Registry, error) {
	b := &builder{
		decls:   map[string]*SchemaDecl{},
		state:   map[string]state{},
		built:   map[string]bitskema.Schema{},
		readers: rd,
	}
	var order []string
	for i := range decls {
		d := &decls[i]
		if _, dup := b.decls[d.Name]; dup {
			b.iss = bitskema.AppendIssues(b.iss, bitskema.SchemaIssue(d.Name, "duplicate schema "+strconv.Quote(d.Name)))
			continue
		}
		b.decls[d.Name] = d
		order = append(order, d.Name)
	}
	for _, name := range order {
		b.resolve(name, nil)
	}
	if len(b.iss) > 0 {
		return nil, b.iss
	}
	return &Registry{schemas: b.built}, nil
}

// resolve builds name, returning nil when it (or a dependency) failed.
func (b *builder) resolve(name string, stack []string) bitskema.Schema {
	switch b.state[name] {
	case done:
		return b.built[name]
	case visiting:
		cycle := append(append([]string(nil), stack...), name)
		b.iss = bitskema.AppendIssues(b.iss, bitskema.Issue{
			Path:    name,
			Code:    bitskema.CodeSchemaCycle,
			Message: i18n.T(bitskema.CodeSchemaCycle, nil),
			Hint:    strings.Join(cycle, " -> "),
		})
		return nil
	}
	d, ok := b.decls[name]
	if !ok {
		return nil
	}
	b.state[name] = visiting
	defer func() { b.state[name] = done }()
	stack = append(stack, name)

	var (
		s   bitskema.Schema
		err error
	)
	if d.Kind == "union" || (d.Kind == "" && len(d.Variants) > 0) {
		s, err = b.union(d, stack)
	} else if d.Kind == "record" || d.Kind == "" {
		s, err = b.record(d, stack)
	} else {
		b.iss = bitskema.AppendIssues(b.iss, bitskema.SchemaIssue(name, "unknown kind "+strconv.Quote(d.Kind)))
		return nil
	}
	if err != nil {
		if iss, ok := bitskema.AsIssues(err); ok {
			b.iss = bitskema.AppendIssues(b.iss, iss...)
		} else {
			b.iss = bitskema.AppendIssues(b.iss, bitskema.SchemaIssue(name, err.Error()))
		}
		return nil
	}
	b.built[name] = s
	return s
}

func (b *builder) record(d *SchemaDecl, stack []string) (bitskema.Schema, error) {
	if len(d.Variants) > 0 || d.Key != "" {
		return nil, bitskema.Issues{bitskema.SchemaIssue(d.Name, "records take fields, not key or variants")}
	}
	rb := dsl.Record(d.Name).RequiredCtx(d.RequiredCtx)
	if err := b.schemaCommon(d, func(o bitskema.ByteOrder) { rb.ByteOrder(o) }, func(n string, fn bitskema.Reader) { rb.Reader(n, fn) }); err != nil {
		return nil, err
	}
	if d.Defaults != nil {
		p, ok := b.params(d.Name+".defaults", *d.Defaults)
		if !ok {
			return nil, nil
		}
		rb.Defaults(dsl.WithParams(p))
	}
	for i, f := range d.Fields {
		t, opts, ok := b.field(d.Name, i, f, stack)
		if !ok {
			return nil, nil
		}
		rb.Field(f.Name, t, opts...)
	}
	return rb.Build()
}

func (b *builder) union(d *SchemaDecl, stack []string) (bitskema.Schema, error) {
	if len(d.Fields) > 0 {
		return nil, bitskema.Issues{bitskema.SchemaIssue(d.Name, "unions take variants, not fields")}
	}
	ub := dsl.Union(d.Name).RequiredCtx(d.RequiredCtx).Key(d.Key.String())
	if err := b.schemaCommon(d, func(o bitskema.ByteOrder) { ub.ByteOrder(o) }, func(n string, fn bitskema.Reader) { ub.Reader(n, fn) }); err != nil {
		return nil, err
	}
	for _, v := range d.Variants {
		ub.Variant(v.Name)
		if v.ID != "" {
			ub.ID(v.ID.String())
		}
		if v.Discriminant != nil {
			ub.Discriminant(*v.Discriminant)
		}
		if v.Defaults != nil {
			p, ok := b.params(d.Name+"."+v.Name+".defaults", *v.Defaults)
			if !ok {
				return nil, nil
			}
			ub.Defaults(dsl.WithParams(p))
		}
		for i, f := range v.Fields {
			t, opts, ok := b.field(d.Name+"."+v.Name, i, f, stack)
			if !ok {
				return nil, nil
			}
			ub.Field(f.Name, t, opts...)
		}
	}
	return ub.Build()
}

func (b *builder) schemaCommon(d *SchemaDecl, setOrder func(bitskema.ByteOrder), setReader func(string, bitskema.Reader)) error {
	if d.ByteOrder != "" {
		o, err := bitskema.ParseByteOrder(d.ByteOrder)
		if err != nil {
			return bitskema.Issues{bitskema.SchemaIssue(d.Name, err.Error())}
		}
		setOrder(o)
	}
	if d.Reader != "" {
		fn, ok := b.readers.Lookup(d.Reader)
		if !ok {
			return bitskema.Issues{bitskema.SchemaIssue(d.Name, "unknown reader "+strconv.Quote(d.Reader))}
		}
		setReader(d.Reader, fn)
	}
	return nil
}

// field converts one declaration. ok is false when issues were recorded;
// the caller then abandons the schema.
func (b *builder) field(owner string, i int, f FieldDecl, stack []string) (dsl.FieldType, []dsl.Opt, bool) {
	name := f.Name
	if name == "" {
		name = "field_" + strconv.Itoa(i)
	}
	path := owner + "." + name
	t, ok := b.fieldType(path, f.Type, stack)
	if !ok {
		return dsl.FieldType{}, nil, false
	}
	if f.Name == "" && f.FieldOptions.empty() {
		return t, nil, true
	}
	p, ok := b.params(path, f.FieldOptions)
	if !ok {
		return dsl.FieldType{}, nil, false
	}
	return t, []dsl.Opt{dsl.WithParams(p)}, true
}

func (b *builder) params(path string, o FieldOptions) (dsl.Params, bool) {
	p := dsl.Params{
		Count:     o.Count.String(),
		While:     o.While.String(),
		When:      o.When.String(),
		Ctx:       o.Ctx.String(),
		CtxDelim:  o.CtxDelim,
		Fixed:     o.Fixed.String(),
		Assert:    o.Assert.String(),
		ReadValue: o.ReadValue.String(),
		ByteOrder: o.ByteOrder,
	}
	if o.Reader != "" {
		fn, ok := b.readers.Lookup(o.Reader)
		if !ok {
			b.iss = bitskema.AppendIssues(b.iss, bitskema.SchemaIssue(path, "unknown reader "+strconv.Quote(o.Reader)))
			return p, false
		}
		p.Reader, p.ReaderName = fn, o.Reader
	}
	return p, true
}

// fieldType parses u8, i16, bool, Name, [T] and T?.
func (b *builder) fieldType(path, src string, stack []string) (dsl.FieldType, bool) {
	s := strings.TrimSpace(src)
	switch {
	case s == "":
		b.iss = bitskema.AppendIssues(b.iss, bitskema.SchemaIssue(path, "missing type"))
		return dsl.FieldType{}, false
	case strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]"):
		elem, ok := b.fieldType(path, s[1:len(s)-1], stack)
		return dsl.SeqOf(elem), ok
	case strings.HasSuffix(s, "?"):
		elem, ok := b.fieldType(path, s[:len(s)-1], stack)
		return dsl.OptionalOf(elem), ok
	}
	if sc, ok := bitskema.ParseScalar(s); ok {
		return dsl.Scalar(sc), true
	}
	if _, ok := b.decls[s]; !ok {
		b.iss = bitskema.AppendIssues(b.iss, bitskema.Issue{
			Path:    path,
			Code:    bitskema.CodeUndefinedSchema,
			Message: i18n.T(bitskema.CodeUndefinedSchema, nil),
			Hint:    "no schema named " + strconv.Quote(s),
		})
		return dsl.FieldType{}, false
	}
	nested := b.resolve(s, stack)
	if nested == nil {
		return dsl.FieldType{}, false
	}
	return dsl.Of(nested), true
}
