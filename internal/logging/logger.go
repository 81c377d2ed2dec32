package logging

import (
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Format selects the logger output encoding.
type Format string

const (
	FormatJSON   Format = "json"
	FormatPretty Format = "pretty"
)

// Config holds logger configuration.
type Config struct {
	Level   string // debug, info, warn, error, fatal
	Format  Format
	Service string // service name stamped on every event
}

// NewLogger creates a structured logger for a service.
//
// Example:
//
//	logger := logging.NewLogger(logging.Config{
//	    Level:   "info",
//	    Format:  logging.FormatJSON,
//	    Service: "orchestrator",
//	})
//	logger.Info().Str("component", "pipeline").Msg("started")
func NewLogger(config Config) zerolog.Logger {
	var output io.Writer = os.Stdout

	level, err := zerolog.ParseLevel(config.Level)
	if err != nil || config.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if config.Format == FormatPretty {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	logger := zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Str("service", config.Service).
		Logger()

	return logger
}

// LogError logs an error with additional context fields.
func LogError(logger zerolog.Logger, err error, msg string, fields map[string]any) {
	event := logger.Error().Err(err)
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

// RecoverPanic logs a recovered panic and keeps the process running.
// Use in defer blocks of long-lived goroutines.
//
//	go func() {
//	    defer logging.RecoverPanic(logger, "writePump", map[string]any{"client_id": id})
//	    // ...
//	}()
func RecoverPanic(logger zerolog.Logger, goroutineName string, fields map[string]any) {
	if r := recover(); r != nil {
		stack := string(debug.Stack())

		event := logger.Error().
			Str("goroutine", goroutineName).
			Interface("panic_value", r).
			Str("stack_trace", stack)

		for k, v := range fields {
			event = event.Interface(k, v)
		}

		event.Msg("goroutine panic recovered")
	}
}

// InitGlobalLogger initializes the process-global logger.
// Call once at startup.
func InitGlobalLogger(config Config) {
	log.Logger = NewLogger(config)
}
