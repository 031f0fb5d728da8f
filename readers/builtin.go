package readers

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/uuid"

	bitskema "github.com/reoring/bitskema"
)

// Bytes reads n whole bytes, where n is the single context value.
func Bytes(c *bitskema.Cursor, in bitskema.Context) (any, error) {
	n, err := argCount(in, "bytes")
	if err != nil {
		return nil, err
	}
	return c.ReadBytes(n)
}

// CString reads bytes up to and including a NUL terminator and returns them
// without the terminator.
func CString(c *bitskema.Cursor, _ bitskema.Context) (any, error) {
	var b bytes.Buffer
	for {
		v, err := c.ReadBits(8)
		if err != nil {
			return nil, err
		}
		if v == 0 {
			return b.String(), nil
		}
		b.WriteByte(byte(v))
	}
}

// PString reads a length-prefixed string. The prefix is a big-endian u8
// unless a context value supplies its width in bits.
func PString(c *bitskema.Cursor, in bitskema.Context) (any, error) {
	width := 8
	if in.Len() > 0 {
		w, err := argCount(in, "pstring")
		if err != nil {
			return nil, err
		}
		if w < 1 || w > 32 {
			return nil, fmt.Errorf("pstring: prefix width %d out of range", w)
		}
		width = w
	}
	n, err := c.ReadUint(width, bitskema.BigEndian)
	if err != nil {
		return nil, err
	}
	b, err := c.ReadBytes(int(n))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// UUID reads 16 bytes as an RFC 4122 UUID.
func UUID(c *bitskema.Cursor, _ bitskema.Context) (any, error) {
	b, err := c.ReadBytes(16)
	if err != nil {
		return nil, err
	}
	return uuid.FromBytes(b)
}

// UnixTime reads a big-endian u32 of seconds since the Unix epoch. The
// value renders as RFC 3339 in JSON.
func UnixTime(c *bitskema.Cursor, _ bitskema.Context) (any, error) {
	v, err := c.ReadUint(32, bitskema.BigEndian)
	if err != nil {
		return nil, err
	}
	return time.Unix(int64(v), 0).UTC(), nil
}

func argCount(in bitskema.Context, name string) (int, error) {
	if in.Len() != 1 {
		return 0, fmt.Errorf("%s: want 1 context value, got %d", name, in.Len())
	}
	n, ok := bitskema.AsInt(in.At(0))
	if !ok || n < 0 || n > 1<<31-1 {
		return 0, fmt.Errorf("%s: invalid count %v", name, in.At(0))
	}
	return int(n), nil
}
