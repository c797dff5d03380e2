package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var levelNames = map[LogLevel]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
	LevelFatal: "FATAL",
}

func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "INFO"
}

// ParseLevel maps a case-insensitive level name to a LogLevel, falling back to LevelInfo.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		return LevelInfo
	}
}

func (l LogLevel) logrus() logrus.Level {
	switch l {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	case LevelFatal:
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

type Logger struct {
	level LogLevel
	base  *logrus.Logger
}

func NewLogger(level LogLevel) *Logger {
	base := logrus.New()
	base.SetOutput(os.Stdout)
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	base.SetLevel(level.logrus())
	return &Logger{
		level: level,
		base:  base,
	}
}

func (l *Logger) SetLevel(level LogLevel) {
	l.level = level
	l.base.SetLevel(level.logrus())
}

// SetFormat switches between "text" (default) and "json" output.
func (l *Logger) SetFormat(format string) {
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		l.base.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	l.base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
}

func (l *Logger) SetOutput(w io.Writer) {
	l.base.SetOutput(w)
}

// WithFields returns a structured entry bound to this logger.
func (l *Logger) WithFields(fields map[string]any) *logrus.Entry {
	return l.base.WithFields(logrus.Fields(fields))
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.logAt(callerDepth, LevelDebug, format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.logAt(callerDepth, LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.logAt(callerDepth, LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.logAt(callerDepth, LevelError, format, args...)
}

// Fatal logs and exits the process.
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.logAt(callerDepth, LevelFatal, format, args...)
	os.Exit(1)
}

// callerDepth skips logAt and the exported wrapper that called it.
const callerDepth = 2

func (l *Logger) logAt(skip int, level LogLevel, format string, args ...interface{}) {
	if level < l.level {
		return
	}

	_, file, line, ok := runtime.Caller(skip)
	caller := "unknown"
	if ok {
		caller = fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}

	l.base.WithField("caller", caller).Log(level.logrus(), fmt.Sprintf(format, args...))
}

// FileLogger writes log entries to a file instead of stdout.
type FileLogger struct {
	*Logger
	file *os.File
}

func NewFileLogger(logFile string, level LogLevel) (*FileLogger, error) {
	logDir := filepath.Dir(logFile)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	logger := NewLogger(level)
	logger.SetOutput(file)

	return &FileLogger{
		Logger: logger,
		file:   file,
	}, nil
}

func (l *FileLogger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

var globalLogger *Logger

func InitLogger(level LogLevel) {
	globalLogger = NewLogger(level)
}

// SetLogger replaces the global logger, e.g. with a FileLogger's embedded Logger.
func SetLogger(l *Logger) {
	if l != nil {
		globalLogger = l
	}
}

func GetLogger() *Logger {
	if globalLogger == nil {
		globalLogger = NewLogger(LevelInfo)
	}
	return globalLogger
}

func Debug(format string, args ...interface{}) {
	GetLogger().logAt(callerDepth, LevelDebug, format, args...)
}

func Info(format string, args ...interface{}) {
	GetLogger().logAt(callerDepth, LevelInfo, format, args...)
}

func Warn(format string, args ...interface{}) {
	GetLogger().logAt(callerDepth, LevelWarn, format, args...)
}

func Error(format string, args ...interface{}) {
	GetLogger().logAt(callerDepth, LevelError, format, args...)
}

func Fatal(format string, args ...interface{}) {
	GetLogger().logAt(callerDepth, LevelFatal, format, args...)
	os.Exit(1)
}

func WithFields(fields map[string]any) *logrus.Entry {
	return GetLogger().WithFields(fields)
}
