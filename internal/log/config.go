package log

import (
	"io"
	"strings"
)

// Format selects the slog handler.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat maps "json" to FormatJSON and everything else to FormatText.
func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), string(FormatJSON)) {
		return FormatJSON
	}
	return FormatText
}

// Config holds configuration for the logger
type Config struct {
	Level  Level
	Format Format
	// Output defaults to stderr; command output owns stdout.
	Output    io.Writer
	AddSource bool
	// Service is attached to every record as "service" when set.
	Service string
}

// DefaultConfig logs at WARN in text format to stderr, which keeps
// interactive CLI output quiet unless something was repaired or failed.
func DefaultConfig() Config {
	return Config{Level: LevelWarn, Format: FormatText, Service: "speckeeper"}
}

// ConfigFromStrings builds a Config from the textual settings values. Empty
// strings and a nil writer keep the defaults.
func ConfigFromStrings(level, format string, w io.Writer) Config {
	cfg := DefaultConfig()
	if level != "" {
		cfg.Level = ParseLevel(level)
	}
	if format != "" {
		cfg.Format = ParseFormat(format)
	}
	cfg.Output = w
	return cfg
}
