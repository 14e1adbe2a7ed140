package logger

import (
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Constants
const (
	LogFilePermissions = 0600
	InfoLogLevel       = "info"
	LoggerName         = "fridge"
)

// Global variables
var (
	globalLogger *zap.Logger
	loggerMutex  sync.RWMutex

	// GlobalLogFile is kept open for the lifetime of the process once a file core is configured.
	GlobalLogFile *os.File
)

// Logger wraps a zap logger with the printf-style helpers used across the codebase.
type Logger struct {
	*zap.Logger
}

func (l *Logger) log(level zapcore.Level, msg string) {
	if l == nil || l.Logger == nil {
		return
	}
	if ce := l.Logger.Check(level, msg); ce != nil {
		ce.Write()
	}
}

func (l *Logger) Debug(msg string) { l.log(zapcore.DebugLevel, msg) }
func (l *Logger) Info(msg string)  { l.log(zapcore.InfoLevel, msg) }
func (l *Logger) Warn(msg string)  { l.log(zapcore.WarnLevel, msg) }
func (l *Logger) Error(msg string) { l.log(zapcore.ErrorLevel, msg) }

// Fatal logs at fatal level. zap exits the process after writing the entry.
func (l *Logger) Fatal(msg string) { l.log(zapcore.FatalLevel, msg) }

// Formatted logging methods
func (l *Logger) Debugf(format string, args ...interface{}) { l.Debug(fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...interface{})  { l.Info(fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.Warn(fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.Error(fmt.Sprintf(format, args...)) }
func (l *Logger) Fatalf(format string, args ...interface{}) { l.Fatal(fmt.Sprintf(format, args...)) }

// Field logging methods
func (l *Logger) DebugWithFields(msg string, fields ...zap.Field) {
	if l == nil || l.Logger == nil {
		return
	}
	l.Logger.Debug(msg, fields...)
}

func (l *Logger) InfoWithFields(msg string, fields ...zap.Field) {
	if l == nil || l.Logger == nil {
		return
	}
	l.Logger.Info(msg, fields...)
}

func (l *Logger) WarnWithFields(msg string, fields ...zap.Field) {
	if l == nil || l.Logger == nil {
		return
	}
	l.Logger.Warn(msg, fields...)
}

func (l *Logger) ErrorWithFields(msg string, fields ...zap.Field) {
	if l == nil || l.Logger == nil {
		return
	}
	l.Logger.Error(msg, fields...)
}

// With returns a child logger carrying the given fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	if l == nil || l.Logger == nil {
		return NewNopLogger()
	}
	return &Logger{Logger: l.Logger.With(fields...)}
}

// Named returns a child logger with the given name segment appended.
func (l *Logger) Named(name string) *Logger {
	if l == nil || l.Logger == nil {
		return NewNopLogger()
	}
	return &Logger{Logger: l.Logger.Named(name)}
}

func customTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(fmt.Sprintf("[%s]", t.Format("2006-01-02 15:04:05")))
}

func getZapLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Get returns the process-wide logger, building a console logger on first use.
func Get() *Logger {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()

	if globalLogger == nil {
		globalLogger = zap.New(
			newConsoleCore(zap.NewAtomicLevelAt(zapcore.InfoLevel)),
			zap.AddCaller(),
		).Named(LoggerName)
	}
	return &Logger{Logger: globalLogger}
}

func SetGlobalLogger(l *Logger) {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	if l == nil {
		globalLogger = nil
		return
	}
	globalLogger = l.Logger
}

func NewNopLogger() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// LogPanic records a recovered panic with its stack.
func LogPanic(rec interface{}) {
	l := Get()
	l.ErrorWithFields("PANIC",
		zap.Any("recovered", rec),
		zap.String("stack", string(debug.Stack())),
	)
	_ = l.Sync()
}

// MaskString keeps the first four characters of s and stars out the rest.
func MaskString(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-4)
}
