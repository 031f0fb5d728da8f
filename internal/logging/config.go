package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	EnvLogLevel   = "BITSKEMA_LOG_LEVEL"
	EnvLogNoColor = "BITSKEMA_LOG_NOCOLOR"
	EnvLogJSON    = "BITSKEMA_LOG_JSON"
)

// Config describes the CLI logger. The zero value logs warnings and above to
// stderr through a console writer.
type Config struct {
	Level   string `toml:"level"`
	NoColor bool   `toml:"no_color"`
	JSON    bool   `toml:"json"`
}

// New builds a logger from cfg after applying environment overrides.
func New(w io.Writer, cfg Config) zerolog.Logger {
	applyEnvOverrides(&cfg)
	lvl, ok := ParseLevel(cfg.Level)
	if !ok {
		lvl = zerolog.WarnLevel
	}
	if lvl < zerolog.GlobalLevel() {
		zerolog.SetGlobalLevel(lvl)
	}
	out := w
	if !cfg.JSON {
		out = zerolog.ConsoleWriter{Out: w, NoColor: cfg.NoColor, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

func applyEnvOverrides(cfg *Config) {
	if raw := strings.TrimSpace(os.Getenv(EnvLogLevel)); raw != "" {
		if _, ok := ParseLevel(raw); ok {
			cfg.Level = raw
		}
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogJSON)); ok {
		cfg.JSON = v
	}
}

// ParseLevel maps level names onto zerolog levels. ok is false for unknown
// or empty names.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.WarnLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
