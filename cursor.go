package bitskema

import (
	"bytes"
	"fmt"
	"io"

	"github.com/kaitai-io/kaitai_struct_go_runtime/kaitai"
)

// Cursor is a sequential bit reader. Bits are consumed most significant
// first. A Cursor belongs to one decode call chain at a time; nested schemas
// and custom readers borrow it and leave it advanced by exactly the bits they
// consumed.
type Cursor struct {
	s     *kaitai.Stream
	pos   int64 // bits consumed
	limit int64 // total bits, -1 when unknown
}

// NewCursor returns a Cursor over b.
func NewCursor(b []byte) *Cursor {
	return &Cursor{s: kaitai.NewStream(bytes.NewReader(b)), limit: int64(len(b)) * 8}
}

// NewCursorReader returns a Cursor over r. The remaining size is taken
// through Seek so exhaustion can be reported before any bits are consumed.
func NewCursorReader(r io.ReadSeeker) *Cursor {
	c := &Cursor{s: kaitai.NewStream(r), limit: -1}
	if cur, err := r.Seek(0, io.SeekCurrent); err == nil {
		if end, err := r.Seek(0, io.SeekEnd); err == nil {
			if _, err := r.Seek(cur, io.SeekStart); err == nil {
				c.limit = (end - cur) * 8
			}
		}
	}
	return c
}

// Pos reports the number of bits consumed so far.
func (c *Cursor) Pos() int64 { return c.pos }

// Remaining reports the number of unread bits, or -1 when unknown.
func (c *Cursor) Remaining() int64 {
	if c.limit < 0 {
		return -1
	}
	return c.limit - c.pos
}

// ReadBits reads n (1..64) bits as an unsigned big-endian value.
func (c *Cursor) ReadBits(n int) (uint64, error) {
	if n < 1 || n > 64 {
		return 0, fmt.Errorf("bitskema: invalid read width %d", n)
	}
	if c.limit >= 0 && c.pos+int64(n) > c.limit {
		return 0, fmt.Errorf("%w: need %d bits at bit %d, %d left", ErrExhausted, n, c.pos, c.limit-c.pos)
	}
	v, err := c.s.ReadBitsIntBe(n)
	if err != nil {
		return 0, fmt.Errorf("%w: reading %d bits at bit %d: %v", ErrExhausted, n, c.pos, err)
	}
	c.pos += int64(n)
	return v, nil
}

// ReadUint reads an unsigned integer of the given width. For little endian
// the first byte read is the least significant one; when width is not a
// multiple of eight the final group holds the leftover high bits.
func (c *Cursor) ReadUint(width int, order ByteOrder) (uint64, error) {
	if width <= 8 || order != LittleEndian {
		return c.ReadBits(width)
	}
	if c.limit >= 0 && c.pos+int64(width) > c.limit {
		return 0, fmt.Errorf("%w: need %d bits at bit %d, %d left", ErrExhausted, width, c.pos, c.limit-c.pos)
	}
	var out uint64
	shift := 0
	for rem := width; rem > 0; {
		n := 8
		if rem < n {
			n = rem
		}
		v, err := c.ReadBits(n)
		if err != nil {
			return 0, err
		}
		out |= v << shift
		shift += 8
		rem -= n
	}
	return out, nil
}

// ReadInt reads a two's complement signed integer of the given width.
func (c *Cursor) ReadInt(width int, order ByteOrder) (int64, error) {
	v, err := c.ReadUint(width, order)
	if err != nil {
		return 0, err
	}
	if width == 64 {
		return int64(v), nil
	}
	if v&(1<<(width-1)) != 0 {
		return int64(v) - int64(1)<<width, nil
	}
	return int64(v), nil
}

// ReadBool reads a single bit.
func (c *Cursor) ReadBool() (bool, error) {
	v, err := c.ReadBits(1)
	return v == 1, err
}

// ReadBytes reads n whole bytes. The cursor need not be byte aligned.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("bitskema: negative byte count %d", n)
	}
	if c.limit >= 0 && c.pos+int64(n)*8 > c.limit {
		return nil, fmt.Errorf("%w: need %d bytes at bit %d, %d bits left", ErrExhausted, n, c.pos, c.limit-c.pos)
	}
	out := make([]byte, n)
	for i := range out {
		v, err := c.ReadBits(8)
		if err != nil {
			return nil, err
		}
		out[i] = byte(v)
	}
	return out, nil
}

// ReadScalar reads one value of the given scalar type: uint64, int64 or bool.
func (c *Cursor) ReadScalar(s Scalar, order ByteOrder) (any, error) {
	switch {
	case s.Bool:
		return c.ReadBool()
	case s.Signed:
		return c.ReadInt(s.Width, order)
	default:
		return c.ReadUint(s.Width, order)
	}
}
