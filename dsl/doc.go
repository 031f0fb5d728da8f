// Package dsl provides the schema builders for bitskema.
//
// Overview
//   - Record(name): a fixed sequence of fields decoded in declaration order.
//   - Union(name): a tagged union; a key expression over the received context selects the first matching variant.
//   - Field types: U(n)/I(n) (1..64 bits), Bool(), Of(schema), SeqOf(elem), OptionalOf(elem).
//   - Field options: Count/While (sequences), When (optionals), Ctx/CtxDelim (context for nested schemas and readers),
//     Fixed/Assert (post-read checks), ReadValue (computed, reads nothing), WithReader, Order.
//
// Expressions
//   - Options are CEL expressions compiled by Build; errors surface as Issues, never at decode time.
//   - Visible names: the schema's required context and every field declared before the current one.
//   - self: the value under test in Assert, and the elements read so far in While.
//
// Field decode order
//  1. ReadValue: evaluate, read nothing.
//  2. WithReader: call the reader with the evaluated ctx values.
//  3. Sequence: Count elements, or elements while the predicate holds (checked before each element).
//  4. Optional: read the element only when the predicate holds.
//  5. Otherwise read the scalar or decode the nested schema with the bound context.
//
// Fixed is checked first, then Assert. Every failure carries the field name; failures inside a
// variant also carry the variant name.
//
// Variant ids
//
//	5          literal
//	1 | 2      alternatives
//	1..=9      inclusive range (1..9 is half-open)
//	_          wildcard
//	x if x > 9 binding with guard
//
// A variant without an id matches its ordinal (see Discriminant).
//
// Example
//
//	hdr := dsl.Record("Header").
//	    Field("len", dsl.U8()).
//	    Field("kind", dsl.U(4)).
//	    Field("flags", dsl.U(4)).
//	    MustBuild()
//
//	body := dsl.Union("Body").
//	    RequiredCtx("kind: u4, len: u8").
//	    Key("kind").
//	    Variant("Ping").ID("0").
//	    Variant("Data").ID("1 | 2").
//	        Field("payload", dsl.SeqOf(dsl.U8()), dsl.Count("len")).
//	    Variant("Other").ID("_").
//	    MustBuild()
//
//	packet := dsl.Record("Packet").
//	    Field("header", dsl.Of(hdr)).
//	    Field("body", dsl.Of(body), dsl.Ctx("header.kind, header.len")).
//	    MustBuild()
package dsl
