package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogConfig selects the global logger's level, encoding and destination.
// Output is "stdout", "stderr" or a file path opened for appending.
type LogConfig struct {
	Level      string
	Format     string
	TimeFormat string
	Output     string
}

// DefaultConfig returns the logging configuration used when none is loaded.
// Output goes to stderr so that tables and JSON printed on stdout stay clean.
func DefaultConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		Format:     "console",
		TimeFormat: time.RFC3339,
		Output:     "stderr",
	}
}

// Setup replaces the global zerolog logger. Any format other than "json"
// gets the console writer, uncolored when writing to a file.
func Setup(config LogConfig) error {
	level, err := zerolog.ParseLevel(strings.ToLower(config.Level))
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)

	output, toFile, err := openOutput(config.Output)
	if err != nil {
		return err
	}
	if !strings.EqualFold(config.Format, "json") {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: config.TimeFormat,
			NoColor:    toFile,
		}
	}

	log.Logger = zerolog.New(output).With().
		Timestamp().
		Caller().
		Logger()

	if config.TimeFormat != "" {
		zerolog.TimeFieldFormat = config.TimeFormat
	}

	return nil
}

func openOutput(dest string) (io.Writer, bool, error) {
	switch dest {
	case "stdout":
		return os.Stdout, false, nil
	case "stderr", "":
		return os.Stderr, false, nil
	}
	file, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, false, err
	}
	return file, true, nil
}

// WithContext returns the logger attached to ctx, or the global one.
func WithContext(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}

// WithComponent tags the global logger with the component name.
func WithComponent(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

// WithDocument returns a component logger tagged with the request ID and the
// source of the document being reconstructed.
func WithDocument(component, requestID, source string) zerolog.Logger {
	return log.Logger.With().
		Str("component", component).
		Str("request_id", requestID).
		Str("source", source).
		Logger()
}
