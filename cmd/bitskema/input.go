package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	gzipMagic = []byte{0x1f, 0x8b}
	s2Magic   = []byte("\xff\x06\x00\x00S2sTwO")
	snapMagic = []byte("\xff\x06\x00\x00sNaPpY")
)

// readInput loads path ("-" or "" for stdin), decompresses it and decodes
// hex text when asked.
func readInput(path, compression string, isHex bool) ([]byte, error) {
	var (
		raw []byte
		err error
	)
	if path == "" || path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	data, err := decompress(raw, compression)
	if err != nil {
		return nil, err
	}
	if isHex {
		return decodeHex(data)
	}
	return data, nil
}

// decompress unpacks raw. The input is taken as-is unless a compression is
// named; "auto" picks one from the leading magic bytes.
func decompress(raw []byte, compression string) ([]byte, error) {
	algo := strings.ToLower(strings.TrimSpace(compression))
	if algo == "auto" {
		algo = sniff(raw)
	}
	switch algo {
	case "", "none":
		return raw, nil
	case "zstd":
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(raw, nil)
	case "gzip":
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case "s2", "snappy":
		return io.ReadAll(s2.NewReader(bytes.NewReader(raw)))
	default:
		return nil, fmt.Errorf("unknown compression %q", compression)
	}
}

func sniff(raw []byte) string {
	switch {
	case bytes.HasPrefix(raw, zstdMagic):
		return "zstd"
	case bytes.HasPrefix(raw, gzipMagic):
		return "gzip"
	case bytes.HasPrefix(raw, s2Magic), bytes.HasPrefix(raw, snapMagic):
		return "s2"
	}
	return "none"
}

// decodeHex accepts hex text with arbitrary whitespace and an optional 0x
// prefix.
func decodeHex(text []byte) ([]byte, error) {
	s := strings.Join(strings.Fields(string(text)), "")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	out, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("hex input: %w", err)
	}
	return out, nil
}
