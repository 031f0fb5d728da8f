package bitskema

import (
	"bytes"
	"context"
	"io"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// Decode is the primary entry point. It decodes data against s and returns
// the decoded value, or a *DecodeError whose trail ends with s.Name().
func Decode(ctx context.Context, s Schema, data []byte, opts ...DecodeOpt) (any, error) {
	return DecodeFrom(ctx, s, NewCursor(data), opts...)
}

// DecodeFrom decodes from an existing cursor. On success the cursor is left
// just past the decoded value, so consecutive values can be read from one
// stream.
func DecodeFrom(ctx context.Context, s Schema, c *Cursor, opts ...DecodeOpt) (any, error) {
	if s == nil {
		return nil, AppendIssues(nil, SchemaIssue("", "nil schema"))
	}
	var opt DecodeOpt
	if len(opts) > 0 {
		opt = opts[len(opts)-1]
	}
	if opt.MaxDepth > 0 {
		ctx = WithMaxDepth(ctx, opt.MaxDepth)
	}
	in, err := s.Signature().BindNamed(opt.Args)
	if err != nil {
		de := NewDecodeError(CodeContextMismatch, nil, err)
		de.Offset = c.Pos()
		return nil, AddErrorContext(de, s.Name())
	}
	start := c.Pos()
	v, err := s.DecodeCursor(ctx, c, in)
	if err != nil {
		zerolog.Ctx(ctx).Debug().Str("schema", s.Name()).Err(err).Msg("decode failed")
		return nil, AddErrorContext(err, s.Name())
	}
	if opt.RequireEOF && c.Remaining() != 0 {
		de := NewDecodeError(CodeTrailingData, map[string]any{"bits": c.Remaining()}, nil)
		de.Offset = c.Pos()
		return nil, AddErrorContext(de, s.Name())
	}
	zerolog.Ctx(ctx).Debug().Str("schema", s.Name()).Int64("bits", c.Pos()-start).Msg("decoded")
	return v, nil
}

// DecodeReader decodes from r. Seekable readers are consumed in place;
// anything else is buffered first.
func DecodeReader(ctx context.Context, s Schema, r io.Reader, opts ...DecodeOpt) (any, error) {
	if rs, ok := r.(io.ReadSeeker); ok {
		return DecodeFrom(ctx, s, NewCursorReader(rs), opts...)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return DecodeFrom(ctx, s, NewCursorReader(bytes.NewReader(data)), opts...)
}

// DecodeAs decodes data and binds the JSON rendering of the result into T.
// Field names map through T's json tags.
func DecodeAs[T any](ctx context.Context, s Schema, data []byte, opts ...DecodeOpt) (T, error) {
	var out T
	v, err := Decode(ctx, s, data, opts...)
	if err != nil {
		return out, err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, err
	}
	return out, nil
}

// SafeDecode decodes data, returning (nil, false) on any error.
func SafeDecode(ctx context.Context, s Schema, data []byte, opts ...DecodeOpt) (any, bool) {
	v, err := Decode(ctx, s, data, opts...)
	if err != nil {
		return nil, false
	}
	return v, true
}
