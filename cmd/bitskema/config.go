package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/reoring/bitskema/internal/logging"
)

// Config is the optional TOML file given with -config. Flags override it.
type Config struct {
	Schema      string         `toml:"schema"`
	Type        string         `toml:"type"`
	Compression string         `toml:"compression"` // none (default), auto, zstd, s2, gzip
	Hex         bool           `toml:"hex"`
	RequireEOF  bool           `toml:"require_eof"`
	MaxDepth    int            `toml:"max_depth"`
	Args        map[string]any `toml:"args"`
	Log         logging.Config `toml:"log"`
}

func loadConfig(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	if und := md.Undecoded(); len(und) > 0 {
		keys := make([]string, len(und))
		for i, k := range und {
			keys[i] = k.String()
		}
		return cfg, fmt.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return cfg, nil
}

// argList collects repeated -arg name=value flags.
type argList map[string]any

func (a argList) String() string {
	parts := make([]string, 0, len(a))
	for k, v := range a {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, ",")
}

func (a argList) Set(s string) error {
	name, raw, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return fmt.Errorf("want name=value, got %q", s)
	}
	a[name] = parseArg(strings.TrimSpace(raw))
	return nil
}

// parseArg interprets integers (decimal, 0x, 0o, 0b) and booleans; anything
// else stays a string.
func parseArg(raw string) any {
	if u, err := strconv.ParseUint(raw, 0, 64); err == nil {
		return u
	}
	if i, err := strconv.ParseInt(raw, 0, 64); err == nil {
		return i
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}
