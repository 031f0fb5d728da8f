package bitskema

import (
	"fmt"
	"strconv"
	"strings"
)

// ByteOrder selects how multi-byte scalar reads are assembled.
type ByteOrder int

const (
	NetworkOrder ByteOrder = iota // Default; identical to BigEndian.
	BigEndian
	LittleEndian
)

// ParseByteOrder accepts big_endian, little_endian and network_order.
func ParseByteOrder(s string) (ByteOrder, error) {
	switch strings.TrimSpace(s) {
	case "network_order", "":
		return NetworkOrder, nil
	case "big_endian":
		return BigEndian, nil
	case "little_endian":
		return LittleEndian, nil
	default:
		return NetworkOrder, fmt.Errorf("bitskema: invalid byte order %q", s)
	}
}

func (o ByteOrder) String() string {
	switch o {
	case BigEndian:
		return "big_endian"
	case LittleEndian:
		return "little_endian"
	default:
		return "network_order"
	}
}

// Scalar describes a built-in narrow type: uN, iN (1..64 bits) or bool.
type Scalar struct {
	Width  int
	Signed bool
	Bool   bool
}

var (
	U8   = Scalar{Width: 8}
	U16  = Scalar{Width: 16}
	U32  = Scalar{Width: 32}
	U64  = Scalar{Width: 64}
	Bool = Scalar{Width: 1, Bool: true}
)

// ParseScalar parses names such as u3, u16, i32 and bool. ok is false for
// anything else (typically a schema reference).
func ParseScalar(name string) (Scalar, bool) {
	name = strings.TrimSpace(name)
	if name == "bool" {
		return Bool, true
	}
	if len(name) < 2 || (name[0] != 'u' && name[0] != 'i') || name[1] < '1' || name[1] > '9' {
		return Scalar{}, false
	}
	w, err := strconv.Atoi(name[1:])
	if err != nil || w < 1 || w > 64 {
		return Scalar{}, false
	}
	return Scalar{Width: w, Signed: name[0] == 'i'}, true
}

func (s Scalar) String() string {
	switch {
	case s.Bool:
		return "bool"
	case s.Signed:
		return "i" + strconv.Itoa(s.Width)
	default:
		return "u" + strconv.Itoa(s.Width)
	}
}

// DecodeOpt bundles decoding options.
type DecodeOpt struct {
	// Args supplies the top-level schema's required context by parameter name.
	Args map[string]any
	// MaxDepth bounds schema nesting depth (0 = unlimited).
	MaxDepth int
	// RequireEOF fails the decode when input remains after the top-level
	// schema completes.
	RequireEOF bool
}
