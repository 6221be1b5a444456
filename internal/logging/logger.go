// Package logging provides categorized file-based logging for tradeNERD.
// Logs are written to .tradenerd/logs/ with separate files per category.
// Logging is a silent no-op unless debug mode is enabled at Initialize.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/system.
type Category string

const (
	CategoryBoot      Category = "boot"      // Boot/initialization
	CategorySession   Category = "session"   // Session state transitions
	CategoryRouter    Category = "router"    // Phase routing decisions
	CategoryDebate    Category = "debate"    // Debate rounds and turns
	CategoryMemory    Category = "memory"    // Memory store retrieval/writes
	CategoryTools     Category = "tools"     // Tool registry and MCP discovery
	CategoryAPI       Category = "api"       // LLM API calls
	CategoryEmbedding Category = "embedding" // Embedding engine
	CategoryDataflows Category = "dataflows" // Market data vendor adapters
)

// Options controls logging behavior. Threaded in from the caller's
// configuration; this package never reads config files itself.
type Options struct {
	DebugMode  bool
	Level      string          // debug, info, warn, error
	Categories map[string]bool // empty means all categories enabled
}

// Logger wraps a standard logger with category and file output.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	opts      Options
	optsMu    sync.RWMutex
	logLevel  int
)

// Log levels.
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Initialize sets up the logging directory. Should be called once at
// startup with the workspace path. When opts.DebugMode is false every
// logging call is a no-op.
func Initialize(workspace string, o Options) error {
	if workspace == "" {
		return fmt.Errorf("workspace path required")
	}

	optsMu.Lock()
	opts = o
	logLevel = parseLevel(o.Level)
	optsMu.Unlock()

	if !o.DebugMode {
		return nil
	}

	logsDir = filepath.Join(workspace, ".tradenerd", "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("=== tradeNERD logging initialized ===")
	boot.Info("Logs directory: %s", logsDir)
	boot.Info("Log level: %s", o.Level)
	return nil
}

func parseLevel(level string) int {
	switch level {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Get returns the logger for a category, creating it if needed.
func Get(category Category) *Logger {
	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	l := &Logger{category: category}
	if enabled(category) && logsDir != "" {
		path := filepath.Join(logsDir, string(category)+".log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err == nil {
			l.file = f
			l.logger = log.New(f, "", 0)
		}
	}
	loggers[category] = l
	return l
}

func enabled(category Category) bool {
	optsMu.RLock()
	defer optsMu.RUnlock()
	if !opts.DebugMode {
		return false
	}
	if len(opts.Categories) == 0 {
		return true
	}
	return opts.Categories[string(category)]
}

func (l *Logger) write(level int, levelName, format string, args ...interface{}) {
	if l.logger == nil || !enabled(l.category) {
		return
	}
	optsMu.RLock()
	min := logLevel
	optsMu.RUnlock()
	if level < min {
		return
	}
	ts := time.Now().Format("2006-01-02 15:04:05.000")
	l.logger.Printf("[%s] [%s] %s", ts, levelName, fmt.Sprintf(format, args...))
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.write(LevelDebug, "DEBUG", format, args...)
}

// Info logs an info message.
func (l *Logger) Info(format string, args ...interface{}) {
	l.write(LevelInfo, "INFO", format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.write(LevelWarn, "WARN", format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) {
	l.write(LevelError, "ERROR", format, args...)
}

// Close closes all open log files.
func Close() {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	for _, l := range loggers {
		if l.file != nil {
			_ = l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// Timer measures operation duration and logs it on Stop.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, op string) *Timer {
	return &Timer{category: category, op: op, start: time.Now()}
}

// Stop logs the elapsed time at debug level.
func (t *Timer) Stop() {
	Get(t.category).Debug("%s took %v", t.op, time.Since(t.start))
}

// Convenience helpers, one pair per busy category.

func Router(format string, args ...interface{})         { Get(CategoryRouter).Info(format, args...) }
func RouterDebug(format string, args ...interface{})    { Get(CategoryRouter).Debug(format, args...) }
func Debate(format string, args ...interface{})         { Get(CategoryDebate).Info(format, args...) }
func DebateDebug(format string, args ...interface{})    { Get(CategoryDebate).Debug(format, args...) }
func Memory(format string, args ...interface{})         { Get(CategoryMemory).Info(format, args...) }
func MemoryDebug(format string, args ...interface{})    { Get(CategoryMemory).Debug(format, args...) }
func Tools(format string, args ...interface{})          { Get(CategoryTools).Info(format, args...) }
func ToolsDebug(format string, args ...interface{})     { Get(CategoryTools).Debug(format, args...) }
func API(format string, args ...interface{})            { Get(CategoryAPI).Info(format, args...) }
func APIDebug(format string, args ...interface{})       { Get(CategoryAPI).Debug(format, args...) }
func Embedding(format string, args ...interface{})      { Get(CategoryEmbedding).Info(format, args...) }
func EmbeddingDebug(format string, args ...interface{}) { Get(CategoryEmbedding).Debug(format, args...) }
