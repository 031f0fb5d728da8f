package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	json "github.com/goccy/go-json"

	bitskema "github.com/reoring/bitskema"
	"github.com/reoring/bitskema/internal/logging"
	"github.com/reoring/bitskema/schemafile"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "decode":
		err = decodeCmd(os.Args[2:], os.Stdout)
	case "check":
		err = checkCmd(os.Args[2:], os.Stdout)
	case "list":
		err = listCmd(os.Args[2:], os.Stdout)
	case "jsonschema":
		err = jsonSchemaCmd(os.Args[2:], os.Stdout)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fatalf("%v", err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "bitskema CLI\n\nUsage:\n  bitskema decode -schema s.yaml -type Name [-hex] [-compression none|auto|zstd|s2|gzip] [-arg k=v]... [-eof] [-max-depth N] [-config c.toml] [input|-]\n  bitskema check -schema s.yaml\n  bitskema list -schema s.yaml\n  bitskema jsonschema -schema s.yaml -type Name\n\nLogging: BITSKEMA_LOG_LEVEL=trace|debug|info|warn|error, BITSKEMA_LOG_NOCOLOR, BITSKEMA_LOG_JSON")
}

// common holds the flags every subcommand shares.
type common struct {
	config string
	schema string
	typ    string
}

func (c *common) register(fs *flag.FlagSet, withType bool) {
	fs.StringVar(&c.config, "config", "", "TOML config file")
	fs.StringVar(&c.schema, "schema", "", "schema document (YAML or .json)")
	if withType {
		fs.StringVar(&c.typ, "type", "", "schema name to decode with")
	}
}

// resolve merges flags over the config file.
func (c *common) resolve() (Config, error) {
	cfg, err := loadConfig(c.config)
	if err != nil {
		return cfg, err
	}
	if c.schema != "" {
		cfg.Schema = c.schema
	}
	if c.typ != "" {
		cfg.Type = c.typ
	}
	if cfg.Schema == "" {
		return cfg, fmt.Errorf("missing -schema")
	}
	return cfg, nil
}

func (c *common) lookup(cfg Config) (bitskema.Schema, error) {
	reg, err := schemafile.Load(cfg.Schema, schemafile.Options{})
	if err != nil {
		return nil, err
	}
	if cfg.Type == "" {
		return nil, fmt.Errorf("missing -type (one of %v)", reg.Names())
	}
	s, ok := reg.Lookup(cfg.Type)
	if !ok {
		return nil, fmt.Errorf("no schema %q in %s (have %v)", cfg.Type, cfg.Schema, reg.Names())
	}
	return s, nil
}

func decodeCmd(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("decode", flag.ExitOnError)
	var c common
	c.register(fs, true)
	var (
		isHex       bool
		compression string
		requireEOF  bool
		maxDepth    int
		pretty      bool
	)
	kv := argList{}
	fs.BoolVar(&isHex, "hex", false, "input is hex text")
	fs.StringVar(&compression, "compression", "", "input compression: none (default), auto, zstd, s2, gzip")
	fs.BoolVar(&requireEOF, "eof", false, "fail when input remains after decoding")
	fs.IntVar(&maxDepth, "max-depth", 0, "maximum schema nesting depth (0 = unlimited)")
	fs.BoolVar(&pretty, "pretty", false, "indent JSON output")
	fs.Var(kv, "arg", "top-level context value name=value (repeatable)")
	_ = fs.Parse(args)

	cfg, err := c.resolve()
	if err != nil {
		return err
	}
	cfg.Hex = cfg.Hex || isHex
	cfg.RequireEOF = cfg.RequireEOF || requireEOF
	if compression != "" {
		cfg.Compression = compression
	}
	if maxDepth > 0 {
		cfg.MaxDepth = maxDepth
	}
	if cfg.Args == nil {
		cfg.Args = map[string]any{}
	}
	for k, v := range kv {
		cfg.Args[k] = v
	}

	log := logging.New(os.Stderr, cfg.Log)
	ctx := log.WithContext(context.Background())

	s, err := c.lookup(cfg)
	if err != nil {
		return err
	}
	data, err := readInput(fs.Arg(0), cfg.Compression, cfg.Hex)
	if err != nil {
		return err
	}
	log.Debug().Str("schema", s.Name()).Int("bytes", len(data)).Msg("decoding")
	v, err := bitskema.Decode(ctx, s, data, bitskema.DecodeOpt{Args: cfg.Args, MaxDepth: cfg.MaxDepth, RequireEOF: cfg.RequireEOF})
	if err != nil {
		return err
	}
	return writeJSON(out, v, pretty)
}

func checkCmd(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	var c common
	c.register(fs, false)
	_ = fs.Parse(args)
	cfg, err := c.resolve()
	if err != nil {
		return err
	}
	reg, err := schemafile.Load(cfg.Schema, schemafile.Options{})
	if err != nil {
		if iss, ok := bitskema.AsIssues(err); ok {
			for _, is := range iss {
				fmt.Fprintf(out, "%s\t%s\t%s\n", is.Code, is.Path, is.Hint)
			}
			return fmt.Errorf("%s: %d problem(s)", cfg.Schema, len(iss))
		}
		return err
	}
	fmt.Fprintf(out, "ok: %d schema(s)\n", len(reg.Names()))
	return nil
}

func listCmd(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	var c common
	c.register(fs, false)
	_ = fs.Parse(args)
	cfg, err := c.resolve()
	if err != nil {
		return err
	}
	reg, err := schemafile.Load(cfg.Schema, schemafile.Options{})
	if err != nil {
		return err
	}
	for _, n := range reg.Names() {
		s, _ := reg.Lookup(n)
		if sig := s.Signature(); len(sig) > 0 {
			fmt.Fprintf(out, "%s(%s)\n", n, sig)
			continue
		}
		fmt.Fprintln(out, n)
	}
	return nil
}

func jsonSchemaCmd(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("jsonschema", flag.ExitOnError)
	var c common
	c.register(fs, true)
	_ = fs.Parse(args)
	cfg, err := c.resolve()
	if err != nil {
		return err
	}
	s, err := c.lookup(cfg)
	if err != nil {
		return err
	}
	sch, err := s.JSONSchema()
	if err != nil {
		return err
	}
	return writeJSON(out, sch, true)
}

func writeJSON(w io.Writer, v any, pretty bool) error {
	var (
		b   []byte
		err error
	)
	if pretty {
		b, err = json.MarshalIndent(v, "", "  ")
	} else {
		b, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, "bitskema: "+format+"\n", a...)
	os.Exit(1)
}
