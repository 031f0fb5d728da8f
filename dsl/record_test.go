package dsl_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	bitskema "github.com/reoring/bitskema"
	g "github.com/reoring/bitskema/dsl"
)

func decode(t *testing.T, s bitskema.Schema, data []byte, opts ...bitskema.DecodeOpt) (*bitskema.Record, *bitskema.Cursor) {
	t.Helper()
	c := bitskema.NewCursor(data)
	v, err := bitskema.DecodeFrom(context.Background(), s, c, opts...)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	rec, ok := v.(*bitskema.Record)
	if !ok {
		t.Fatalf("expected *Record, got %T", v)
	}
	return rec, c
}

func decodeErr(t *testing.T, s bitskema.Schema, data []byte, opts ...bitskema.DecodeOpt) *bitskema.DecodeError {
	t.Helper()
	_, err := bitskema.Decode(context.Background(), s, data, opts...)
	de, ok := bitskema.AsDecodeError(err)
	if !ok {
		t.Fatalf("expected *DecodeError, got %v", err)
	}
	return de
}

func get(t *testing.T, rec *bitskema.Record, name string) any {
	t.Helper()
	v, ok := rec.Get(name)
	if !ok {
		t.Fatalf("field %q missing in %+v", name, rec.Fields)
	}
	return v
}

func TestRecord_ScalarsConsumeExactWidths(t *testing.T) {
	s := g.Record("Header").
		Field("foo", g.U8()).
		Field("bar", g.U16()).
		MustBuild()
	rec, c := decode(t, s, []byte{0x2a, 0x00, 0x10})
	if get(t, rec, "foo") != uint64(42) || get(t, rec, "bar") != uint64(16) {
		t.Fatalf("unexpected values: %+v", rec.Fields)
	}
	if c.Pos() != 24 {
		t.Fatalf("consumed %d bits, want 24", c.Pos())
	}
}

func TestRecord_Deterministic(t *testing.T) {
	s := g.Record("T").
		Field("n", g.U(3)).
		Field("xs", g.SeqOf(g.U(5)), g.Count("n")).
		MustBuild()
	data := []byte{0x5f, 0xff, 0x00}
	a, ca := decode(t, s, data)
	b, cb := decode(t, s, data)
	if !reflect.DeepEqual(a.Map(), b.Map()) || ca.Pos() != cb.Pos() {
		t.Fatalf("decoding is not deterministic: %v vs %v", a.Map(), b.Map())
	}
	if ca.Pos() != 3+2*5 {
		t.Fatalf("consumed %d bits", ca.Pos())
	}
}

func TestRecord_CountExhaustion(t *testing.T) {
	s := g.Record("T").
		Field("items", g.SeqOf(g.U8()), g.Count("3")).
		MustBuild()
	_, err := bitskema.Decode(context.Background(), s, []byte{1, 2})
	if !errors.Is(err, bitskema.ErrExhausted) {
		t.Fatalf("expected exhaustion, got %v", err)
	}
	de, _ := bitskema.AsDecodeError(err)
	if de.Code != bitskema.CodeExhausted || de.Path() != "T.items[2]" {
		t.Fatalf("unexpected error %v (path %q)", de, de.Path())
	}
}

func TestRecord_CountAndWhileAgree(t *testing.T) {
	byCount := g.Record("C").
		Field("n", g.U8()).
		Field("xs", g.SeqOf(g.U8()), g.Count("n")).
		MustBuild()
	byWhile := g.Record("W").
		Field("n", g.U8()).
		Field("xs", g.SeqOf(g.U8()), g.While("size(self) < n")).
		MustBuild()
	data := []byte{3, 7, 8, 9, 0xff}
	a, ca := decode(t, byCount, data)
	b, cb := decode(t, byWhile, data)
	if !reflect.DeepEqual(get(t, a, "xs"), get(t, b, "xs")) || ca.Pos() != cb.Pos() {
		t.Fatalf("count %v (%d bits) != while %v (%d bits)", get(t, a, "xs"), ca.Pos(), get(t, b, "xs"), cb.Pos())
	}
	if ca.Pos() != 32 {
		t.Fatalf("consumed %d bits", ca.Pos())
	}
}

func TestRecord_WhileSeesElementsReadSoFar(t *testing.T) {
	s := g.Record("Z").
		Field("xs", g.SeqOf(g.U8()), g.While("size(self) == 0 || self[size(self) - 1] != 0")).
		MustBuild()
	rec, c := decode(t, s, []byte{1, 2, 0, 9})
	xs := get(t, rec, "xs").([]any)
	if len(xs) != 3 || xs[2] != uint64(0) || c.Pos() != 24 {
		t.Fatalf("xs = %v at %d", xs, c.Pos())
	}
}

func TestRecord_OptionalAbsentReadsNothing(t *testing.T) {
	s := g.Record("O").
		Field("flag", g.Bool()).
		Field("val", g.OptionalOf(g.U8()), g.When("flag")).
		MustBuild()

	rec, c := decode(t, s, []byte{0x00})
	if v := get(t, rec, "val").(bitskema.Optional); v.Valid || c.Pos() != 1 {
		t.Fatalf("expected absent value after 1 bit, got %+v at %d", v, c.Pos())
	}

	rec, c = decode(t, s, []byte{0x80, 0x80})
	if v := get(t, rec, "val").(bitskema.Optional); !v.Valid || v.Value != uint64(1) || c.Pos() != 9 {
		t.Fatalf("expected Some(1) after 9 bits, got %+v at %d", v, c.Pos())
	}
}

func TestRecord_Fixed(t *testing.T) {
	s := g.Record("M").Field("magic", g.U8(), g.Fixed("5")).MustBuild()
	decode(t, s, []byte{5})

	de := decodeErr(t, s, []byte{6})
	if de.Code != bitskema.CodeFixedMismatch {
		t.Fatalf("code = %s", de.Code)
	}
	if !strings.Contains(de.Message, "magic value didn't match: expected 5, got 6") {
		t.Fatalf("message = %q", de.Message)
	}
	if de.Path() != "M.magic" {
		t.Fatalf("path = %q", de.Path())
	}
}

func TestRecord_Assert(t *testing.T) {
	s := g.Record("A").Field("x", g.U8(), g.Assert("self > 10")).MustBuild()
	de := decodeErr(t, s, []byte{3})
	if de.Code != bitskema.CodeAssertion {
		t.Fatalf("code = %s", de.Code)
	}
	if de.Message != "value of field 'x' (3) didn't pass assertion: self > 10" {
		t.Fatalf("message = %q", de.Message)
	}
}

func TestRecord_ContextThreading(t *testing.T) {
	inner := g.Record("Inner").
		RequiredCtx("n: u8").
		Field("items", g.SeqOf(g.U8()), g.Count("n")).
		MustBuild()
	outer := g.Record("Outer").
		Field("len", g.U8()).
		Field("inner", g.Of(inner), g.Ctx("len")).
		MustBuild()
	rec, c := decode(t, outer, []byte{2, 9, 8, 7})
	in := get(t, rec, "inner").(*bitskema.Record)
	items := get(t, in, "items").([]any)
	if len(items) != 2 || items[0] != uint64(9) || items[1] != uint64(8) || c.Pos() != 24 {
		t.Fatalf("items = %v at %d", items, c.Pos())
	}
}

func TestRecord_CtxDelimiter(t *testing.T) {
	pair := g.Record("Pair").
		RequiredCtx("a: u8, b: u8").
		Field("sum", g.U16(), g.ReadValue("a + b")).
		MustBuild()
	s := g.Record("S").
		Field("x", g.U8()).
		Field("p", g.Of(pair), g.Ctx("x; [x, 2][1]"), g.CtxDelim(";")).
		MustBuild()
	rec, c := decode(t, s, []byte{40})
	p := get(t, rec, "p").(*bitskema.Record)
	if get(t, p, "sum") != uint64(42) || c.Pos() != 8 {
		t.Fatalf("sum = %v at %d", get(t, p, "sum"), c.Pos())
	}
}

func TestRecord_ContextMismatchAtBuild(t *testing.T) {
	inner := g.Record("Inner").RequiredCtx("n: u8").Field("x", g.U8()).MustBuild()
	_, err := g.Record("Outer").Field("inner", g.Of(inner)).Build()
	iss, ok := bitskema.AsIssues(err)
	if !ok || iss[0].Code != bitskema.CodeSchemaDefinition || iss[0].Path != "Outer.inner" {
		t.Fatalf("expected schema_definition at Outer.inner, got %v", err)
	}
}

func TestRecord_ContextValueOutOfRange(t *testing.T) {
	inner := g.Record("Inner").RequiredCtx("n: u4").Field("x", g.U8()).MustBuild()
	s := g.Record("Outer").
		Field("v", g.U8()).
		Field("inner", g.Of(inner), g.Ctx("v")).
		MustBuild()
	de := decodeErr(t, s, []byte{200, 0})
	if de.Code != bitskema.CodeContextMismatch || de.Path() != "Outer.inner" {
		t.Fatalf("unexpected error %v", de)
	}
}

func TestRecord_ReadValueConsumesNothing(t *testing.T) {
	s := g.Record("R").
		Field("a", g.U8()).
		Field("twice", g.U16(), g.ReadValue("a * 2")).
		Field("b", g.U8()).
		MustBuild()
	rec, c := decode(t, s, []byte{21, 1})
	if get(t, rec, "twice") != uint64(42) || get(t, rec, "b") != uint64(1) || c.Pos() != 16 {
		t.Fatalf("unexpected %+v at %d", rec.Fields, c.Pos())
	}
}

func TestRecord_ReadValueOutOfRange(t *testing.T) {
	s := g.Record("R").
		Field("a", g.U8()).
		Field("small", g.U(4), g.ReadValue("a")).
		MustBuild()
	de := decodeErr(t, s, []byte{200})
	if de.Code != bitskema.CodeExpression || de.Path() != "R.small" {
		t.Fatalf("unexpected error %v", de)
	}
}

func TestRecord_FieldReader(t *testing.T) {
	nibbles := func(c *bitskema.Cursor, in bitskema.Context) (any, error) {
		n, err := in.Uint("n")
		if err != nil {
			return nil, err
		}
		out := make([]uint64, n)
		for i := range out {
			v, err := c.ReadBits(4)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}
	s := g.Record("N").
		Field("n", g.U8()).
		Field("ns", g.SeqOf(g.U(4)), g.WithReader("nibbles", nibbles), g.Ctx("n")).
		MustBuild()
	rec, c := decode(t, s, []byte{3, 0x12, 0x30})
	ns := get(t, rec, "ns").([]uint64)
	if len(ns) != 3 || ns[0] != 1 || ns[2] != 3 || c.Pos() != 20 {
		t.Fatalf("ns = %v at %d", ns, c.Pos())
	}
}

var errBoom = errors.New("boom")

func TestRecord_ReaderFailure(t *testing.T) {
	fail := func(*bitskema.Cursor, bitskema.Context) (any, error) { return nil, errBoom }
	s := g.Record("F").Field("x", g.U8(), g.WithReader("fail", fail)).MustBuild()
	_, err := bitskema.Decode(context.Background(), s, []byte{0})
	if !errors.Is(err, errBoom) {
		t.Fatalf("cause lost: %v", err)
	}
	de, _ := bitskema.AsDecodeError(err)
	if de.Code != bitskema.CodeReaderFailed || de.Path() != "F.x" || de.Params["reader"] != "fail" {
		t.Fatalf("unexpected error %v (%v)", de, de.Params)
	}
}

func TestRecord_SchemaReader(t *testing.T) {
	s := g.Record("Raw").
		RequiredCtx("n: u8").
		Reader("raw", func(c *bitskema.Cursor, in bitskema.Context) (any, error) {
			n, _ := in.Uint("n")
			return c.ReadBytes(int(n))
		}).
		MustBuild()
	v, err := bitskema.Decode(context.Background(), s, []byte{1, 2, 3}, bitskema.DecodeOpt{Args: map[string]any{"n": 2}})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := v.([]byte); len(b) != 2 || b[1] != 2 {
		t.Fatalf("got %v", b)
	}

	de := decodeErr(t, s, []byte{1}, bitskema.DecodeOpt{Args: map[string]any{"n": 2}})
	if de.Code != bitskema.CodeExhausted || de.Path() != "Raw.raw" {
		t.Fatalf("unexpected error %v", de)
	}
}

func TestRecord_ByteOrder(t *testing.T) {
	s := g.Record("E").
		Field("le", g.U16(), g.Order(bitskema.LittleEndian)).
		Field("be", g.U16()).
		Field("odd", g.U(12), g.Order(bitskema.LittleEndian)).
		MustBuild()
	rec, c := decode(t, s, []byte{0x34, 0x12, 0x12, 0x34, 0xab, 0xc0})
	if get(t, rec, "le") != uint64(0x1234) || get(t, rec, "be") != uint64(0x1234) {
		t.Fatalf("unexpected %+v", rec.Fields)
	}
	if get(t, rec, "odd") != uint64(0xcab) || c.Pos() != 44 {
		t.Fatalf("odd = %#x at %d", get(t, rec, "odd"), c.Pos())
	}

	le := g.Record("L").ByteOrder(bitskema.LittleEndian).Field("x", g.U32()).MustBuild()
	rec, _ = decode(t, le, []byte{0x78, 0x56, 0x34, 0x12})
	if get(t, rec, "x") != uint64(0x12345678) {
		t.Fatalf("x = %#x", get(t, rec, "x"))
	}
}

func TestRecord_Signed(t *testing.T) {
	s := g.Record("S").
		Field("a", g.I8()).
		Field("b", g.I(4)).
		Field("c", g.I(4)).
		MustBuild()
	rec, _ := decode(t, s, []byte{0xff, 0x87})
	if get(t, rec, "a") != int64(-1) || get(t, rec, "b") != int64(-8) || get(t, rec, "c") != int64(7) {
		t.Fatalf("unexpected %+v", rec.Fields)
	}
}

func TestRecord_PositionalFieldsInheritDefaults(t *testing.T) {
	s := g.Record("P").
		Defaults(g.Assert("self < 100")).
		Positional(g.U8()).
		Positional(g.U8()).
		Positional(g.U8(), g.Fixed("255")).
		MustBuild()
	rec, _ := decode(t, s, []byte{1, 2, 255})
	if rec.Fields[0].Name != "field_0" || rec.Fields[2].Name != "field_2" {
		t.Fatalf("names = %+v", rec.Fields)
	}
	de := decodeErr(t, s, []byte{1, 200, 255})
	if de.Code != bitskema.CodeAssertion || de.Path() != "P.field_1" {
		t.Fatalf("unexpected error %v", de)
	}
}

func TestRecord_BuildErrors(t *testing.T) {
	cases := []struct {
		name string
		b    interface {
			Build() (bitskema.Schema, error)
		}
		path string
	}{
		{"seq without count", g.Record("T").Field("xs", g.SeqOf(g.U8())), "T.xs"},
		{"count and while", g.Record("T").Field("xs", g.SeqOf(g.U8()), g.Count("1"), g.While("true")), "T.xs"},
		{"optional without when", g.Record("T").Field("o", g.OptionalOf(g.U8())), "T.o"},
		{"when on scalar", g.Record("T").Field("x", g.U8(), g.When("true")), "T.x"},
		{"count on scalar", g.Record("T").Field("x", g.U8(), g.Count("1")), "T.x"},
		{"duplicate", g.Record("T").Field("x", g.U8()).Field("x", g.U8()), "T.x"},
		{"shadows context", g.Record("T").RequiredCtx("x: u8").Field("x", g.U8()), "T.x"},
		{"bad expression", g.Record("T").Field("xs", g.SeqOf(g.U8()), g.Count("1 +")), "T.xs"},
		{"undeclared name", g.Record("T").Field("xs", g.SeqOf(g.U8()), g.Count("missing")), "T.xs"},
		{"predicate not bool", g.Record("T").Field("x", g.U8(), g.Assert("1 + 1")), "T.x"},
		{"width", g.Record("T").Field("x", g.U(65)), "T.x"},
		{"nested seq", g.Record("T").Field("x", g.SeqOf(g.SeqOf(g.U8())), g.Count("1")), "T.x"},
		{"byte order", g.Record("T").Field("x", g.U8(), g.WithParams(g.Params{ByteOrder: "middle"})), "T.x"},
		{"read_value with count", g.Record("T").Field("x", g.SeqOf(g.U8()), g.ReadValue("[]"), g.Count("1")), "T.x"},
		{"ctx on scalar", g.Record("T").Field("x", g.U8(), g.Ctx("1")), "T.x"},
		{"reserved self", g.Record("T").Field("self", g.U8()), "T.self"},
	}
	for _, tc := range cases {
		_, err := tc.b.Build()
		iss, ok := bitskema.AsIssues(err)
		if !ok {
			t.Fatalf("%s: expected Issues, got %v", tc.name, err)
		}
		if iss[0].Code != bitskema.CodeSchemaDefinition || iss[0].Path != tc.path {
			t.Fatalf("%s: unexpected issue %+v", tc.name, iss[0])
		}
	}
}

func TestRecord_ReservedNames(t *testing.T) {
	for _, name := range []string{"type", "bytes", "int", "uint", "string", "bool", "list", "map", "double", "null_type", "in"} {
		_, err := g.Record("T").
			Field(name, g.U8()).
			Field("x", g.U8(), g.Assert("self >= 0")).
			Build()
		iss, ok := bitskema.AsIssues(err)
		if !ok || len(iss) != 1 || iss[0].Path != "T."+name {
			t.Fatalf("%s: unexpected result %v", name, err)
		}
	}
	for _, sig := range []string{"type: u8", "self: u8", "n: u8, map: any"} {
		_, err := g.Record("T").RequiredCtx(sig).Field("x", g.U8()).Build()
		iss, ok := bitskema.AsIssues(err)
		if !ok || len(iss) != 1 || iss[0].Path != "T" {
			t.Fatalf("%s: unexpected result %v", sig, err)
		}
	}
}

func TestRecord_ContextEvaluatedOnlyWhenRead(t *testing.T) {
	inner := g.Record("Inner").
		RequiredCtx("n: u8").
		Field("items", g.SeqOf(g.U8()), g.Count("n")).
		MustBuild()
	s := g.Record("Outer").
		Field("flag", g.U8()).
		Field("hdr", g.OptionalOf(g.U8()), g.When("flag == 1")).
		Field("body", g.OptionalOf(g.Of(inner)), g.When("flag == 1"), g.Ctx("hdr")).
		Field("list", g.SeqOf(g.Of(inner)), g.Count("flag"), g.Ctx("hdr")).
		MustBuild()

	rec, c := decode(t, s, []byte{0})
	if body := get(t, rec, "body").(bitskema.Optional); body.Valid {
		t.Fatalf("body = %+v", body)
	}
	if list := get(t, rec, "list").([]any); len(list) != 0 || c.Pos() != 8 {
		t.Fatalf("list = %v after %d bits", list, c.Pos())
	}

	rec, c = decode(t, s, []byte{1, 2, 5, 6, 7, 8})
	body := get(t, rec, "body").(bitskema.Optional)
	items, _ := body.Value.(*bitskema.Record).Get("items")
	if !reflect.DeepEqual(items, []any{uint64(5), uint64(6)}) {
		t.Fatalf("body items = %v", items)
	}
	list := get(t, rec, "list").([]any)
	items, _ = list[0].(*bitskema.Record).Get("items")
	if len(list) != 1 || !reflect.DeepEqual(items, []any{uint64(7), uint64(8)}) || c.Pos() != 48 {
		t.Fatalf("list = %v after %d bits", list, c.Pos())
	}
}

func TestRecord_LaterFieldIsNotYetVisible(t *testing.T) {
	s := g.Record("T").
		Field("xs", g.SeqOf(g.U8()), g.Count("n")).
		Field("n", g.U8()).
		MustBuild()
	de := decodeErr(t, s, []byte{1, 2})
	if de.Code != bitskema.CodeExpression || de.Path() != "T.xs" {
		t.Fatalf("unexpected error %v", de)
	}
}

func TestRecord_MaxDepth(t *testing.T) {
	leaf := g.Record("Leaf").Field("x", g.U8()).MustBuild()
	mid := g.Record("Mid").Field("leaf", g.Of(leaf)).MustBuild()
	top := g.Record("Top").Field("mid", g.Of(mid)).MustBuild()
	decode(t, top, []byte{1}, bitskema.DecodeOpt{MaxDepth: 2})
	de := decodeErr(t, top, []byte{1}, bitskema.DecodeOpt{MaxDepth: 1})
	if de.Code != bitskema.CodeDepthExceeded || de.Path() != "Top.mid.leaf" {
		t.Fatalf("unexpected error %v", de)
	}
}

func TestRecord_RequireEOF(t *testing.T) {
	s := g.Record("T").Field("x", g.U8()).MustBuild()
	decode(t, s, []byte{1, 2})
	de := decodeErr(t, s, []byte{1, 2}, bitskema.DecodeOpt{RequireEOF: true})
	if de.Code != bitskema.CodeTrailingData {
		t.Fatalf("code = %s", de.Code)
	}
}

func TestRecord_JSON(t *testing.T) {
	inner := g.Record("In").Field("z", g.Bool()).Field("a", g.U(7)).MustBuild()
	s := g.Record("T").
		Field("b", g.U8()).
		Field("opt", g.OptionalOf(g.U8()), g.When("b == 0")).
		Field("inner", g.Of(inner)).
		MustBuild()
	rec, _ := decode(t, s, []byte{1, 0x81})
	out, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"b":1,"opt":null,"inner":{"z":true,"a":1}}` {
		t.Fatalf("json = %s", out)
	}

	type doc struct {
		B  int `json:"b"`
		In struct {
			Z bool `json:"z"`
			A int  `json:"a"`
		} `json:"inner"`
	}
	d, err := bitskema.DecodeAs[doc](context.Background(), s, []byte{1, 0x81})
	if err != nil {
		t.Fatalf("DecodeAs: %v", err)
	}
	if d.B != 1 || !d.In.Z || d.In.A != 1 {
		t.Fatalf("bound = %+v", d)
	}
}

func TestRecord_JSONSchema(t *testing.T) {
	s := g.Record("T").
		Field("magic", g.U8(), g.Fixed("7")).
		Field("delta", g.I8()).
		Field("xs", g.SeqOf(g.Bool()), g.Count("2")).
		Field("o", g.OptionalOf(g.U16()), g.When("magic == 7")).
		MustBuild()
	sch, err := s.JSONSchema()
	if err != nil {
		t.Fatalf("jsonschema: %v", err)
	}
	if sch.Title != "T" || sch.Type != "object" || len(sch.Required) != 4 {
		t.Fatalf("unexpected root %+v", sch)
	}
	m := sch.Properties["magic"]
	if m.Type != "integer" || m.Maximum != uint64(255) || m.Const != int64(7) {
		t.Fatalf("magic = %+v", m)
	}
	if d := sch.Properties["delta"]; d.Minimum != int64(-128) || d.Maximum != int64(127) {
		t.Fatalf("delta = %+v", d)
	}
	if xs := sch.Properties["xs"]; xs.Type != "array" || xs.Items.Type != "boolean" {
		t.Fatalf("xs = %+v", xs)
	}
	if o := sch.Properties["o"]; len(o.OneOf) != 2 || o.OneOf[0].Type != "null" {
		t.Fatalf("o = %+v", o)
	}
}
