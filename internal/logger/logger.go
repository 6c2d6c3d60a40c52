package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ServiceName is attached to every log line.
const ServiceName = "exstem-assess"

// Setup builds the process logger.
//   - level: trace, debug, info, warn, error, fatal or panic; unknown values mean info
//   - format: "pretty" for console output, anything else for JSON lines
//
// Caller information is only recorded at debug level and below. The logger is
// also installed as zerolog's context default, so FromContext never returns a
// disabled logger.
func Setup(level, format string) zerolog.Logger {
	return New(os.Stdout, level, format)
}

// New is Setup writing to out.
func New(out io.Writer, level, format string) zerolog.Logger {
	if format == "pretty" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }

	ctx := zerolog.New(out).With().Timestamp().Str("service", ServiceName)
	if lvl <= zerolog.DebugLevel {
		ctx = ctx.Caller()
	}
	log := ctx.Logger().Level(lvl)

	zerolog.DefaultContextLogger = &log
	return log
}

// FromContext returns the request-scoped logger stored in ctx.
func FromContext(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}
