package bitskema

import (
	"context"

	js "github.com/reoring/bitskema/jsonschema"
)

// Schema is an immutable, reusable decoding blueprint: a record or a tagged
// union. Implementations live in the dsl package.
type Schema interface {
	// Name identifies the schema in error trails and registries.
	Name() string
	// Signature is the context the schema requires from its caller.
	Signature() Signature
	// DecodeCursor consumes bits from c. in must satisfy Signature. On
	// failure no value is returned and the cursor position is unspecified.
	DecodeCursor(ctx context.Context, c *Cursor, in Context) (any, error)
	// JSONSchema describes the JSON rendering of decoded values.
	JSONSchema() (*js.Schema, error)
}

// Reader is a custom decode function. in carries the values of the field's
// ctx option (or the schema's own context for schema-level readers).
type Reader func(c *Cursor, in Context) (any, error)

// ---- Decode-time context options (internal wiring, exported for subpackages) ----

type contextKey int

const (
	_ctxKeyDepth contextKey = iota
	_ctxKeyMaxDepth
)

// WithMaxDepth returns a child context bounding schema nesting depth.
func WithMaxDepth(ctx context.Context, n int) context.Context {
	return context.WithValue(ctx, _ctxKeyMaxDepth, n)
}

// EnterSchema increments the nesting depth for a nested decode and fails with
// depth_exceeded when the configured bound is crossed.
func EnterSchema(ctx context.Context) (context.Context, error) {
	d, _ := ctx.Value(_ctxKeyDepth).(int)
	d++
	if limit, _ := ctx.Value(_ctxKeyMaxDepth).(int); limit > 0 && d > limit {
		return ctx, NewDecodeError(CodeDepthExceeded, map[string]any{"max": limit}, nil)
	}
	return context.WithValue(ctx, _ctxKeyDepth, d), nil
}

// Depth reports the current schema nesting depth.
func Depth(ctx context.Context) int {
	d, _ := ctx.Value(_ctxKeyDepth).(int)
	return d
}
