package dsl

import (
	bitskema "github.com/reoring/bitskema"
)

// Params holds the per-field options. Expression-valued options are CEL
// source text compiled when the schema is built.
type Params struct {
	Count     string // exact element count of a sequence
	While     string // continue-reading predicate, checked before each element
	When      string // presence predicate of an optional
	Ctx       string // context expressions passed to a nested schema or reader
	CtxDelim  string // delimiter splitting Ctx (default ",")
	Fixed     string // expected literal value
	Assert    string // post-read predicate; the value is bound to self
	ReadValue string // computed value; nothing is read
	ByteOrder string // big_endian, little_endian or network_order; empty inherits
	// Reader delegates the read to a custom function. ReaderName labels it
	// in errors and documents.
	Reader     bitskema.Reader
	ReaderName string
}

// Opt configures a field.
type Opt func(*Params)

func Count(src string) Opt     { return func(p *Params) { p.Count = src } }
func While(src string) Opt     { return func(p *Params) { p.While = src } }
func When(src string) Opt      { return func(p *Params) { p.When = src } }
func Ctx(src string) Opt       { return func(p *Params) { p.Ctx = src } }
func CtxDelim(d string) Opt    { return func(p *Params) { p.CtxDelim = d } }
func Fixed(src string) Opt     { return func(p *Params) { p.Fixed = src } }
func Assert(src string) Opt    { return func(p *Params) { p.Assert = src } }
func ReadValue(src string) Opt { return func(p *Params) { p.ReadValue = src } }

// Order overrides the byte order for this field.
func Order(o bitskema.ByteOrder) Opt { return func(p *Params) { p.ByteOrder = o.String() } }

// WithReader delegates the field to a custom reader.
func WithReader(name string, fn bitskema.Reader) Opt {
	return func(p *Params) {
		p.ReaderName = name
		p.Reader = fn
	}
}

// WithParams replaces all options at once.
func WithParams(in Params) Opt { return func(p *Params) { *p = in } }

func applyOpts(opts []Opt) (Params, bool) {
	var p Params
	for _, o := range opts {
		if o != nil {
			o(&p)
		}
	}
	return p, len(opts) > 0
}
