// Package logger provides structured logging for the lead auction worker
package logger

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// serviceName is attached to every log line
const serviceName = "leadflow"

// Log is the global logger instance
var Log zerolog.Logger

// contextKey is a private type for context keys to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for queue job / request IDs
	RequestIDKey contextKey = "request_id"
	// LeadIDKey is the context key for the lead being processed
	LeadIDKey contextKey = "lead_id"
)

// Config holds logger configuration
type Config struct {
	// Level is the minimum log level: debug, info, warn, error
	Level string
	// Format is "json" or "console"
	Format string
	// TimeFormat is the timestamp format
	TimeFormat string
}

// DefaultConfig returns the default logger configuration with
// LOG_LEVEL and LOG_FORMAT environment overrides
func DefaultConfig() Config {
	cfg := Config{
		Level:      "info",
		Format:     "json",
		TimeFormat: time.RFC3339,
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Level = strings.ToLower(level)
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.Format = strings.ToLower(format)
	}

	return cfg
}

// Init initializes the global logger
func Init(cfg Config) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = cfg.TimeFormat

	var logger zerolog.Logger
	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: cfg.TimeFormat}
		logger = zerolog.New(output)
	} else {
		logger = zerolog.New(os.Stdout)
	}

	Log = logger.Level(level).With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

// WithRequestID stores a request ID in the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithLeadID stores a lead ID in the context
func WithLeadID(ctx context.Context, leadID string) context.Context {
	return context.WithValue(ctx, LeadIDKey, leadID)
}

// FromContext returns a logger enriched with request/lead IDs from the context
func FromContext(ctx context.Context) zerolog.Logger {
	logger := Log

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		logger = logger.With().Str("request_id", requestID).Logger()
	}
	if leadID, ok := ctx.Value(LeadIDKey).(string); ok && leadID != "" {
		logger = logger.With().Str("lead_id", leadID).Logger()
	}

	return logger
}

// Lead returns a logger scoped to a lead
func Lead(leadID string) zerolog.Logger {
	return Log.With().Str("lead_id", leadID).Logger()
}

// Buyer returns a logger scoped to a buyer
func Buyer(buyerID string) zerolog.Logger {
	return Log.With().Str("buyer", buyerID).Logger()
}

// HTTP returns a logger for the HTTP sidecar
func HTTP() zerolog.Logger {
	return Log.With().Str("component", "http").Logger()
}

// Queue returns a logger for the queue consumer
func Queue() zerolog.Logger {
	return Log.With().Str("component", "queue").Logger()
}
