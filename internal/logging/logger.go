package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LogLevel represents the logging level
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

func (l LogLevel) slogLevel() slog.Level {
	switch LogLevel(strings.ToLower(string(l))) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops everything. Tests use it.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// LogFormat represents the logging format
type LogFormat string

const (
	FormatJSON LogFormat = "json"
	FormatText LogFormat = "text"
)

// Config represents the logging configuration
type Config struct {
	Level         LogLevel  `json:"level" yaml:"level"`
	Format        LogFormat `json:"format" yaml:"format"`
	OutputFile    string    `json:"output_file" yaml:"output_file"`
	EnableConsole bool      `json:"enable_console" yaml:"enable_console"`
}

// Logger wraps slog.Logger with additional context
type Logger struct {
	*slog.Logger
	config Config
	file   *os.File
}

// New creates a new structured logger
func New(config Config) (*Logger, error) {
	var writers []io.Writer
	var file *os.File

	// Add console output if enabled
	if config.EnableConsole {
		writers = append(writers, os.Stdout)
	}

	// Add file output if specified
	if config.OutputFile != "" {
		// Ensure directory exists
		dir := filepath.Dir(config.OutputFile)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}

		var err error
		file, err = os.OpenFile(config.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, err
		}
		writers = append(writers, file)
	}

	// Default to stdout if no outputs specified
	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	// Create multi-writer
	var output io.Writer
	if len(writers) == 1 {
		output = writers[0]
	} else {
		output = io.MultiWriter(writers...)
	}

	level := config.Level.slogLevel()

	// Create handler based on format
	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().UTC().Format(time.RFC3339))
			}
			return a
		},
	}

	switch config.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(output, opts)
	case FormatText:
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	logger := &Logger{
		Logger: slog.New(handler),
		config: config,
		file:   file,
	}

	return logger, nil
}

// Close closes any open file handles
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// WithComponent creates a logger with a component context
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.Logger.With("component", component),
		config: l.config,
		file:   l.file,
	}
}

// WithChannel creates a logger bound to one POS channel
func (l *Logger) WithChannel(channel string) *Logger {
	return &Logger{
		Logger: l.Logger.With("channel", channel),
		config: l.config,
		file:   l.file,
	}
}

// WithTransaction creates a logger bound to one assembled transaction
func (l *Logger) WithTransaction(guid, sequence string) *Logger {
	return &Logger{
		Logger: l.Logger.With("guid", guid, "sequence", sequence),
		config: l.config,
		file:   l.file,
	}
}

// Failure logs an error message with the error attached first
func (l *Logger) Failure(msg string, err error, args ...any) {
	allArgs := append([]any{"error", err}, args...)
	l.Error(msg, allArgs...)
}

// StartupInfo logs startup information
func (l *Logger) StartupInfo(component string, details map[string]any) {
	args := []any{"event", "startup", "component", component}
	for k, v := range details {
		args = append(args, k, v)
	}
	l.Info("Component starting", args...)
}

// ShutdownInfo logs shutdown information
func (l *Logger) ShutdownInfo(component string, details map[string]any) {
	args := []any{"event", "shutdown", "component", component}
	for k, v := range details {
		args = append(args, k, v)
	}
	l.Info("Component stopping", args...)
}

// Performance logs performance metrics
func (l *Logger) Performance(operation string, duration time.Duration, details map[string]any) {
	args := []any{
		"event", "performance",
		"operation", operation,
		"duration_ms", duration.Milliseconds(),
	}
	for k, v := range details {
		args = append(args, k, v)
	}
	l.Info("Performance metrics", args...)
}

// DispatchOutcome logs the result of one delivery attempt
func (l *Logger) DispatchOutcome(classification, endpoint string, status int, success bool, duration time.Duration) {
	args := []any{
		"event", "dispatch",
		"classification", classification,
		"endpoint", endpoint,
		"status", status,
		"duration_ms", duration.Milliseconds(),
	}
	if success {
		l.Info("Transaction delivered", args...)
		return
	}
	l.Warn("Transaction delivery failed", args...)
}

// DroppedRecord logs an upstream record that could not be applied
func (l *Logger) DroppedRecord(kind, reason string) {
	l.Warn("Record dropped", "event", "drop", "kind", kind, "reason", reason)
}

// Global logger instance
var defaultLogger *Logger

// Initialize sets up the global logger
func Initialize(config Config) error {
	logger, err := New(config)
	if err != nil {
		return err
	}
	defaultLogger = logger
	return nil
}

// GetLogger returns the global logger instance
func GetLogger() *Logger {
	if defaultLogger == nil {
		// Fallback to a basic logger if not initialized
		config := Config{
			Level:         LevelInfo,
			Format:        FormatText,
			EnableConsole: true,
		}
		logger, _ := New(config)
		defaultLogger = logger
	}
	return defaultLogger
}

// Close closes the global logger
func Close() error {
	if defaultLogger != nil {
		return defaultLogger.Close()
	}
	return nil
}
