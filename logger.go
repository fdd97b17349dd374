package orkestro

import (
	"log"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Logger is the minimal structured logging interface used for debug output.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// SimpleLogger logs to stderr with the standard library logger. Suitable
// for examples and tests.
type SimpleLogger struct {
	l *log.Logger
}

// NewSimpleLogger creates a SimpleLogger.
func NewSimpleLogger() *SimpleLogger {
	return &SimpleLogger{l: log.New(os.Stderr, "orkestro ", log.LstdFlags|log.Lmicroseconds)}
}

// Debug implements the Logger interface.
func (s *SimpleLogger) Debug(msg string, keysAndValues ...any) { s.print("DEBUG", msg, keysAndValues) }

// Info implements the Logger interface.
func (s *SimpleLogger) Info(msg string, keysAndValues ...any) { s.print("INFO", msg, keysAndValues) }

// Warn implements the Logger interface.
func (s *SimpleLogger) Warn(msg string, keysAndValues ...any) { s.print("WARN", msg, keysAndValues) }

// Error implements the Logger interface.
func (s *SimpleLogger) Error(msg string, keysAndValues ...any) { s.print("ERROR", msg, keysAndValues) }

func (s *SimpleLogger) print(level, msg string, keysAndValues []any) {
	args := make([]any, 0, len(keysAndValues)+2)
	args = append(args, level, msg)
	args = append(args, keysAndValues...)
	s.l.Println(args...)
}

// zapLogger adapts a *zap.Logger to the Logger interface so services
// already on zap plug in directly.
type zapLogger struct {
	s *zap.SugaredLogger
}

// NewZapLogger wraps a zap logger for use with WithLogger.
func NewZapLogger(l *zap.Logger) Logger {
	return &zapLogger{s: l.Sugar()}
}

func (z *zapLogger) Debug(msg string, keysAndValues ...any) { z.s.Debugw(msg, keysAndValues...) }
func (z *zapLogger) Info(msg string, keysAndValues ...any)  { z.s.Infow(msg, keysAndValues...) }
func (z *zapLogger) Warn(msg string, keysAndValues ...any)  { z.s.Warnw(msg, keysAndValues...) }
func (z *zapLogger) Error(msg string, keysAndValues ...any) { z.s.Errorw(msg, keysAndValues...) }

// DebugConfig selects which lifecycle events are logged when debug logging
// is enabled.
type DebugConfig struct {
	Enabled       bool
	LogAttempts   bool
	LogRetries    bool
	LogAuth       bool
	LogTimeouts   bool
	LogThrottling bool
	RequestIDGen  func() string
}

// DefaultDebugConfig returns a disabled config with all event classes
// selected and a UUID request id generator.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		Enabled:       false,
		LogAttempts:   true,
		LogRetries:    true,
		LogAuth:       true,
		LogTimeouts:   true,
		LogThrottling: true,
		RequestIDGen:  defaultRequestID,
	}
}

func defaultRequestID() string {
	return uuid.NewString()
}
