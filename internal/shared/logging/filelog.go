package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

const (
	logDirEnvVar = "NECROCODE_LOG_DIR"
	logFileName  = "necrocode-registry.log"
)

// Level represents the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	fileLoggerOnce sync.Once
	fileLoggerBase *FileLogger
)

// FileLogger appends component-tagged lines to the shared registry log file,
// necrocode-registry.log under $NECROCODE_LOG_DIR (or the home directory).
type FileLogger struct {
	file      *os.File
	logger    *log.Logger
	level     Level
	mu        sync.Mutex
	component string
}

// NewComponentLogger returns the shared file logger scoped to a component.
func NewComponentLogger(component string) Logger {
	base := getOrCreateFileLogger()
	return &FileLogger{
		file:      base.file,
		logger:    base.logger,
		level:     base.level,
		component: component,
	}
}

func getOrCreateFileLogger() *FileLogger {
	fileLoggerOnce.Do(func() {
		fileLoggerBase = newFileLogger()
	})
	return fileLoggerBase
}

func newFileLogger() *FileLogger {
	l := &FileLogger{level: LevelDebug}

	logDir, err := resolveLogDirectory()
	if err != nil {
		log.Printf("failed to resolve log directory: %v", err)
		return l
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		log.Printf("failed to create log directory %s: %v", logDir, err)
		return l
	}

	logPath := filepath.Join(logDir, logFileName)
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return l
	}

	l.file = file
	l.logger = log.New(file, "", 0) // formatted below
	return l
}

func resolveLogDirectory() (string, error) {
	if override := strings.TrimSpace(os.Getenv(logDirEnvVar)); override != "" {
		return override, nil
	}
	return os.UserHomeDir()
}

// SetLevel sets the minimum level this logger emits.
func (l *FileLogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// Close closes the underlying log file.
func (l *FileLogger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func (l *FileLogger) log(level Level, format string, args ...any) {
	if level < l.level || l.logger == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	_, file, line, ok := runtime.Caller(2)
	if ok {
		file = filepath.Base(file)
	} else {
		file = "???"
		line = 0
	}

	// Format: 2026-01-02 15:04:05 [INFO] [component] file.go:123 - message
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	component := l.component
	if component == "" {
		component = "registry"
	}
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("%s [%s] [%s] %s:%d - %s",
		timestamp, levelToString(level), component, file, line, message)
}

// Debug logs a debug message.
func (l *FileLogger) Debug(format string, args ...any) {
	l.log(LevelDebug, format, args...)
}

// Info logs an info message.
func (l *FileLogger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

// Warn logs a warning message.
func (l *FileLogger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

// Error logs an error message.
func (l *FileLogger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

func levelToString(level Level) string {
	switch level {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
