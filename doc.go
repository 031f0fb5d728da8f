package bitskema

// Package bitskema provides:
//
// - Declarative, schema-driven decoding of bit-level binary formats (records and tagged unions)
// - A bit Cursor with fixed-width reads, byte order control and exhaustion reporting
// - Context propagation between enclosing and nested schemas via required-context signatures
// - A stable error model: build-time Issues and a single decode-time DecodeError with a field trail
//
// Design policy:
// - Keep only public APIs in the root package; put the expression engine under internal/.
// - Place builders under dsl/, schema documents under schemafile/, readers under readers/ and the CLI under cmd/bitskema.
// - Schemas are validated when built; decoding never discovers definition errors.
// - Prefer black-box testing against public APIs.
//
// Typical usage:
//
//  hdr := dsl.Record("Header").
//      Field("foo", dsl.U8()).
//      Field("bar", dsl.U16()).
//      MustBuild()
//  v, err := bitskema.Decode(ctx, hdr, []byte{0x2a, 0x00, 0x10})
//  rec := v.(*bitskema.Record) // foo=42, bar=16
//
