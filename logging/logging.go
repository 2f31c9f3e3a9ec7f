package logging

import (
	"context"
	"log/slog"
	"maps"
	"strings"
)

// ANSI color codes for terminal output
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorYellow = "\033[33m"
	ColorBold   = "\033[1m"
)

// Level represents log levels
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a level name (as printed by String) back to a Level.
// Unknown names fall back to InfoLevel.
func ParseLevel(name string) Level {
	for l := DebugLevel; l <= FatalLevel; l++ {
		if strings.EqualFold(l.String(), name) {
			return l
		}
	}
	return InfoLevel
}

// Fields represents structured logging fields
type Fields map[string]any

// Logger is the logging surface used throughout the engine. The real-time
// producer paths never log; only consumer-side components hold a Logger.
type Logger interface {
	Debug(msg string, fields ...Fields)
	Info(msg string, fields ...Fields)
	Warn(msg string, fields ...Fields)
	Error(err error, msg string, fields ...Fields)
	Fatal(err error, msg string, fields ...Fields)

	// WithFields returns a logger with preset fields
	WithFields(fields Fields) Logger

	// WithContext returns a logger carrying fields stored with ContextWithFields
	WithContext(ctx context.Context) Logger

	// SetLevel sets the minimum log level
	SetLevel(level Level)
}

type fieldsKey struct{}

// ContextWithFields stores fields in ctx so WithContext can pick them up,
// e.g. the attempt ID of the exercise being scored.
func ContextWithFields(ctx context.Context, fields Fields) context.Context {
	merged := make(Fields)
	if existing, ok := ctx.Value(fieldsKey{}).(Fields); ok {
		maps.Copy(merged, existing)
	}
	maps.Copy(merged, fields)
	return context.WithValue(ctx, fieldsKey{}, merged)
}

func fieldsFromContext(ctx context.Context) (Fields, bool) {
	if ctx == nil {
		return nil, false
	}
	fields, ok := ctx.Value(fieldsKey{}).(Fields)
	return fields, ok
}

var globalLogger Logger = NewDefaultLogger()

// SetGlobalLogger sets the global logger instance
func SetGlobalLogger(logger Logger) {
	if logger == nil {
		globalLogger = &NoOpLogger{}
	} else {
		globalLogger = logger
	}
}

// GetGlobalLogger returns the current global logger
func GetGlobalLogger() Logger {
	return globalLogger
}

// SlogAdapter routes library logging into a host application's slog logger.
//
// Example integration:
//
//	logging.SetGlobalLogger(logging.FromSlog(slog.Default()))
type SlogAdapter struct {
	logger *slog.Logger
	level  Level
}

// FromSlog wraps an slog logger. A nil logger falls back to slog.Default().
func FromSlog(logger *slog.Logger) *SlogAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAdapter{logger: logger, level: DebugLevel}
}

func toAttrs(fields []Fields) []any {
	var args []any
	for _, f := range fields {
		for k, v := range f {
			args = append(args, slog.Any(k, v))
		}
	}
	return args
}

func (s *SlogAdapter) Debug(msg string, fields ...Fields) {
	if s.level <= DebugLevel {
		s.logger.Debug(msg, toAttrs(fields)...)
	}
}

func (s *SlogAdapter) Info(msg string, fields ...Fields) {
	if s.level <= InfoLevel {
		s.logger.Info(msg, toAttrs(fields)...)
	}
}

func (s *SlogAdapter) Warn(msg string, fields ...Fields) {
	if s.level <= WarnLevel {
		s.logger.Warn(msg, toAttrs(fields)...)
	}
}

func (s *SlogAdapter) Error(err error, msg string, fields ...Fields) {
	args := toAttrs(fields)
	if err != nil {
		args = append(args, slog.Any("err", err))
	}
	s.logger.Error(msg, args...)
}

// Fatal logs at error level with a fatal marker. The host owns process exit.
func (s *SlogAdapter) Fatal(err error, msg string, fields ...Fields) {
	args := append(toAttrs(fields), slog.Bool("fatal", true))
	if err != nil {
		args = append(args, slog.Any("err", err))
	}
	s.logger.Error(msg, args...)
}

func (s *SlogAdapter) WithFields(fields Fields) Logger {
	return &SlogAdapter{logger: s.logger.With(toAttrs([]Fields{fields})...), level: s.level}
}

func (s *SlogAdapter) WithContext(ctx context.Context) Logger {
	if fields, ok := fieldsFromContext(ctx); ok {
		return s.WithFields(fields)
	}
	return s
}

func (s *SlogAdapter) SetLevel(level Level) {
	s.level = level
}

// Package-level logging functions that use the global logger
func Debug(msg string, fields ...Fields) {
	globalLogger.Debug(msg, fields...)
}

func Info(msg string, fields ...Fields) {
	globalLogger.Info(msg, fields...)
}

func Warn(msg string, fields ...Fields) {
	globalLogger.Warn(msg, fields...)
}

func Error(err error, msg string, fields ...Fields) {
	globalLogger.Error(err, msg, fields...)
}

func Fatal(err error, msg string, fields ...Fields) {
	globalLogger.Fatal(err, msg, fields...)
}

func WithFields(fields Fields) Logger {
	return globalLogger.WithFields(fields)
}

func WithContext(ctx context.Context) Logger {
	return globalLogger.WithContext(ctx)
}

func SetLevel(level Level) {
	globalLogger.SetLevel(level)
}

// DisableColors globally disables color output for the default logger
func DisableColors() {
	if defaultLogger, ok := globalLogger.(*DefaultLogger); ok {
		defaultLogger.useColors = false
	}
}

// EnableColors globally enables color output for the default logger
func EnableColors() {
	if defaultLogger, ok := globalLogger.(*DefaultLogger); ok {
		defaultLogger.useColors = true
	}
}
