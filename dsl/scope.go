package dsl

import (
	"context"

	bitskema "github.com/reoring/bitskema"
	"github.com/reoring/bitskema/internal/expr"
)

// scope holds the names visible while decoding one record or variant: the
// received context plus every field decoded so far. Values are normalized
// for the expression engine once, when bound.
type scope struct {
	vars *expr.Vars
}

func newScope(in bitskema.Context, fields int) *scope {
	vars := expr.NewVars(in.Len() + fields + 1)
	for i := 0; i < in.Len(); i++ {
		vars.Bind(in.Name(i), in.At(i))
	}
	return &scope{vars: vars}
}

func (s *scope) bind(name string, v any) { s.vars.Bind(name, v) }

// decodeFields reads fields in declaration order, binding each value before
// the next field is read.
func decodeFields(ctx context.Context, c *bitskema.Cursor, sc *scope, fields []*field) ([]bitskema.Field, error) {
	out := make([]bitskema.Field, 0, len(fields))
	for _, f := range fields {
		v, err := f.decode(ctx, c, sc)
		if err != nil {
			return nil, err
		}
		sc.bind(f.name, v)
		out = append(out, bitskema.Field{Name: f.name, Value: v})
	}
	return out, nil
}
