// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// UserIDKey is the context key for user ID
	UserIDKey contextKey = "user_id"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithContext returns a logger with context values extracted.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("request_id", requestID))}
	}

	if userID, ok := ctx.Value(UserIDKey).(string); ok && userID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("user_id", userID))}
	}

	return newLogger
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// LLMError logs LLM provider errors
func (l *Logger) LLMError(operation string, err error) {
	l.Error("llm_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// ToolCall logs an assistant tool invocation
func (l *Logger) ToolCall(tool, action string, userID int64) {
	l.Info("tool_call",
		slog.String("tool", tool),
		slog.String("action", action),
		slog.Int64("user_id", userID),
	)
}

// MigrationStage logs legacy migration stage progress
func (l *Logger) MigrationStage(stage string, rows int, durationMs float64) {
	l.Info("migration_stage",
		slog.String("stage", stage),
		slog.Int("rows", rows),
		slog.Float64("duration_ms", durationMs),
	)
}

// UnscopedQuery records a query against a model with no tenant column.
// Allowed only for global lookups; logged so they stay visible.
func (l *Logger) UnscopedQuery(model string) {
	l.Warn("unscoped_query", slog.String("model", model))
}
