package schemafile_test

import (
	"context"
	"testing"

	bitskema "github.com/reoring/bitskema"
	"github.com/reoring/bitskema/schemafile"
)

func loadPacket(t *testing.T) bitskema.Schema {
	t.Helper()
	reg, err := schemafile.Load("testdata/packet.yaml", schemafile.Options{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	s, ok := reg.Lookup("Packet")
	if !ok {
		t.Fatalf("Packet not found in %v", reg.Names())
	}
	return s
}

func TestLoad_Names(t *testing.T) {
	reg, err := schemafile.Load("testdata/packet.yaml", schemafile.Options{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	names := reg.Names()
	if len(names) != 3 || names[0] != "Body" || names[1] != "Header" || names[2] != "Packet" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestPacket_DataVariant(t *testing.T) {
	s := loadPacket(t)
	v, err := bitskema.Decode(context.Background(), s, []byte{0x12, 0x02, 0xaa, 0xbb, 0x34, 0x12})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	rec := v.(*bitskema.Record)
	body, _ := rec.Get("body")
	bv := body.(*bitskema.Variant)
	if bv.Name != "Data" {
		t.Fatalf("variant = %s", bv.Name)
	}
	raw, _ := bv.Get("payload")
	items := raw.([]any)
	if len(items) != 2 || items[0] != uint64(0xaa) || items[1] != uint64(0xbb) {
		t.Fatalf("payload = %v", items)
	}
	crc, _ := rec.Get("crc")
	if o := crc.(bitskema.Optional); !o.Valid || o.Value != uint64(0x1234) {
		t.Fatalf("crc = %+v", o)
	}
}

func TestPacket_PingHasNoTrailer(t *testing.T) {
	s := loadPacket(t)
	c := bitskema.NewCursor([]byte{0x10, 0x00, 0xff})
	v, err := bitskema.DecodeFrom(context.Background(), s, c)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if c.Pos() != 16 {
		t.Fatalf("consumed %d bits", c.Pos())
	}
	rec := v.(*bitskema.Record)
	crc, _ := rec.Get("crc")
	if crc.(bitskema.Optional).Valid {
		t.Fatalf("crc should be absent")
	}
}

func TestPacket_ReaderVariant(t *testing.T) {
	s := loadPacket(t)
	v, err := bitskema.Decode(context.Background(), s, []byte{0x13, 0x02, 'h', 'i', 0, 0})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	body, _ := v.(*bitskema.Record).Get("body")
	text, _ := body.(*bitskema.Variant).Get("text")
	if string(text.([]byte)) != "hi" {
		t.Fatalf("text = %v", text)
	}
}

func TestPacket_FixedMismatch(t *testing.T) {
	s := loadPacket(t)
	_, err := bitskema.Decode(context.Background(), s, []byte{0x22, 0x00})
	de, ok := bitskema.AsDecodeError(err)
	if !ok {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if de.Code != bitskema.CodeFixedMismatch || de.Path() != "Packet.header.version" {
		t.Fatalf("unexpected error: %v (path %s)", de, de.Path())
	}
}

func TestParse_UndefinedSchema(t *testing.T) {
	doc := `
schemas:
  - name: A
    fields:
      - name: b
        type: Missing
`
	_, err := schemafile.Parse([]byte(doc), schemafile.FormatYAML, schemafile.Options{})
	iss, ok := bitskema.AsIssues(err)
	if !ok || iss[0].Code != bitskema.CodeUndefinedSchema || iss[0].Path != "A.b" {
		t.Fatalf("expected undefined_schema at A.b, got %v", err)
	}
}

func TestParse_Cycle(t *testing.T) {
	doc := `
schemas:
  - name: A
    fields:
      - {name: b, type: B}
  - name: B
    fields:
      - {name: a, type: "A?", when: "false"}
`
	_, err := schemafile.Parse([]byte(doc), schemafile.FormatYAML, schemafile.Options{})
	iss, ok := bitskema.AsIssues(err)
	if !ok {
		t.Fatalf("expected issues, got %v", err)
	}
	found := false
	for _, is := range iss {
		if is.Code == bitskema.CodeSchemaCycle && is.Hint == "A -> B -> A" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected cycle A -> B -> A, got %v", iss)
	}
}

func TestParse_UnknownKey(t *testing.T) {
	doc := `
schemas:
  - name: A
    fieldz: []
`
	_, err := schemafile.Parse([]byte(doc), schemafile.FormatYAML, schemafile.Options{})
	iss, ok := bitskema.AsIssues(err)
	if !ok || iss[0].Code != bitskema.CodeParseError {
		t.Fatalf("expected parse_error, got %v", err)
	}
}

func TestParse_UnknownReader(t *testing.T) {
	doc := `
schemas:
  - name: A
    fields:
      - {name: x, type: u8, reader: nope}
`
	_, err := schemafile.Parse([]byte(doc), schemafile.FormatYAML, schemafile.Options{})
	iss, ok := bitskema.AsIssues(err)
	if !ok || iss[0].Code != bitskema.CodeSchemaDefinition {
		t.Fatalf("expected schema_definition, got %v", err)
	}
}

func TestParse_ReservedFieldName(t *testing.T) {
	doc := `
schemas:
  - name: A
    fields:
      - {name: bytes, type: u8}
      - {name: n, type: u8, assert: "self > 0"}
`
	_, err := schemafile.Parse([]byte(doc), schemafile.FormatYAML, schemafile.Options{})
	iss, ok := bitskema.AsIssues(err)
	if !ok || len(iss) != 1 || iss[0].Code != bitskema.CodeSchemaDefinition || iss[0].Path != "A.bytes" {
		t.Fatalf("expected schema_definition at A.bytes, got %v", err)
	}
}

func TestParse_JSONPositional(t *testing.T) {
	doc := `{
  "schemas": [
    {"name": "Pair", "fields": [{"type": "u8"}, {"type": "u8", "fixed": 7}]}
  ]
}`
	reg, err := schemafile.Parse([]byte(doc), schemafile.FormatJSON, schemafile.Options{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	s, _ := reg.Lookup("Pair")
	v, err := bitskema.Decode(context.Background(), s, []byte{3, 7})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	rec := v.(*bitskema.Record)
	if rec.Fields[0].Name != "field_0" || rec.Fields[1].Name != "field_1" {
		t.Fatalf("unexpected names: %+v", rec.Fields)
	}
	if _, err := bitskema.Decode(context.Background(), s, []byte{3, 8}); err == nil {
		t.Fatalf("expected fixed mismatch")
	}
}
