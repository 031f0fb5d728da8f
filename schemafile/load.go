package schemafile

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	bitskema "github.com/reoring/bitskema"
	"github.com/reoring/bitskema/i18n"
	"github.com/reoring/bitskema/readers"
)

// Format selects the document syntax.
type Format int

const (
	FormatYAML Format = iota
	FormatJSON
)

// Options controls loading.
type Options struct {
	// Readers resolves reader names; nil means readers.Builtin().
	Readers *readers.Registry
}

// Load reads and builds the schemas in path. Files ending in .json are JSON;
// everything else is YAML.
func Load(path string, opts Options) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	format := FormatYAML
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = FormatJSON
	}
	return Parse(data, format, opts)
}

// Parse decodes one or more documents and builds every schema they declare.
// Unknown keys are rejected. All problems are returned together as
// bitskema.Issues.
func Parse(data []byte, format Format, opts Options) (*Registry, error) {
	var (
		docs []Document
		err  error
	)
	switch format {
	case FormatJSON:
		docs, err = decodeJSON(data)
	default:
		docs, err = decodeYAML(data)
	}
	if err != nil {
		return nil, bitskema.Issues{{
			Code:    bitskema.CodeParseError,
			Message: i18n.T(bitskema.CodeParseError, nil),
			Hint:    err.Error(),
			Cause:   err,
		}}
	}
	var decls []SchemaDecl
	for _, d := range docs {
		decls = append(decls, d.Schemas...)
	}
	if opts.Readers == nil {
		opts.Readers = readers.Builtin()
	}
	return build(decls, opts.Readers)
}

func decodeYAML(data []byte) ([]Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var out []Document
	for {
		var doc Document
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		out = append(out, doc)
	}
	if len(out) == 0 {
		return nil, errors.New("schemafile: empty document")
	}
	return out, nil
}

func decodeJSON(data []byte) ([]Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return []Document{doc}, nil
}
