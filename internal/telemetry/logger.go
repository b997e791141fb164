package telemetry

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)

// NewLogger builds the process logger. An empty level means info.
func NewLogger(level, format, service string, out io.Writer) (zerolog.Logger, error) {
	if out == nil {
		out = os.Stderr
	}

	lvl := zerolog.InfoLevel
	if trimmed := strings.ToLower(strings.TrimSpace(level)); trimmed != "" {
		parsed, err := zerolog.ParseLevel(trimmed)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("parse log level %q: %w", level, err)
		}
		lvl = parsed
	}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", LogFormatJSON:
	case LogFormatConsole:
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	default:
		return zerolog.Nop(), fmt.Errorf("unsupported log format: %s", format)
	}

	ctx := zerolog.New(out).Level(lvl).With().Timestamp()
	if service != "" {
		ctx = ctx.Str("service", service)
	}
	return ctx.Logger(), nil
}
