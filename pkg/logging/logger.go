package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents log level
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Sink receives every entry that passes the level filter, after it has been written.
type Sink func(entry LogEntry)

// Logger provides structured logging with optional file output.
// Loggers derived with WithField share output, sinks and file handle with their parent.
type Logger struct {
	level      Level
	jsonFormat bool
	fields     map[string]interface{}
	shared     *sharedState
}

type sharedState struct {
	mu      sync.Mutex
	output  io.Writer
	logFile *os.File
	sinks   []Sink
}

// NewLogger creates a new logger writing to stdout
func NewLogger(level Level, jsonFormat bool) *Logger {
	return &Logger{
		level:      level,
		jsonFormat: jsonFormat,
		fields:     make(map[string]interface{}),
		shared:     &sharedState{output: os.Stdout},
	}
}

// Nop returns a logger that discards everything. Handy in tests.
func Nop() *Logger {
	l := NewLogger(ERROR+1, false)
	l.shared.output = io.Discard
	return l
}

// NewFileLogger creates a logger that writes to path and stdout.
// The parent directory is created if missing.
func NewFileLogger(path string, level Level, jsonFormat bool) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory for %s: %w", path, err)
	}

	logFile, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	logger := NewLogger(level, jsonFormat)
	logger.shared.output = io.MultiWriter(logFile, os.Stdout)
	logger.shared.logFile = logFile

	logger.Info("Logger initialized", map[string]interface{}{"path": path})
	return logger, nil
}

// SetOutput sets the output writer
func (l *Logger) SetOutput(w io.Writer) {
	l.shared.mu.Lock()
	defer l.shared.mu.Unlock()
	l.shared.output = w
}

// AddSink registers a hook that sees every emitted entry.
func (l *Logger) AddSink(s Sink) {
	l.shared.mu.Lock()
	defer l.shared.mu.Unlock()
	l.shared.sinks = append(l.shared.sinks, s)
}

// LogEntry represents a structured log entry
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Text renders the entry the way the text format prints it, without the timestamp.
func (e LogEntry) Text() string {
	var b strings.Builder
	b.WriteString(e.Message)
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Fields[k])
	}
	return b.String()
}

func (l *Logger) log(level Level, message string, fields map[string]interface{}) {
	if level < l.level {
		return
	}

	mergedFields := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		mergedFields[k] = v
	}
	for k, v := range fields {
		mergedFields[k] = v
	}

	now := time.Now()
	entry := LogEntry{
		Timestamp: now.Format(time.RFC3339),
		Level:     level.String(),
		Message:   message,
		Fields:    mergedFields,
	}

	l.shared.mu.Lock()
	if l.jsonFormat {
		data, err := json.Marshal(entry)
		if err != nil {
			log.Printf("Failed to marshal log entry: %v", err)
		} else {
			fmt.Fprintln(l.shared.output, string(data))
		}
	} else {
		fmt.Fprintf(l.shared.output, "[%s] %s: %s\n", now.Format("2006-01-02 15:04:05"), level.String(), entry.Text())
	}
	sinks := append([]Sink(nil), l.shared.sinks...)
	l.shared.mu.Unlock()

	for _, s := range sinks {
		s(entry)
	}
}

func firstFields(fields []map[string]interface{}) map[string]interface{} {
	if len(fields) > 0 {
		return fields[0]
	}
	return nil
}

// Debug logs a debug message
func (l *Logger) Debug(message string, fields ...map[string]interface{}) {
	l.log(DEBUG, message, firstFields(fields))
}

// Info logs an info message
func (l *Logger) Info(message string, fields ...map[string]interface{}) {
	l.log(INFO, message, firstFields(fields))
}

// Warn logs a warning message
func (l *Logger) Warn(message string, fields ...map[string]interface{}) {
	l.log(WARN, message, firstFields(fields))
}

// Error logs an error message
func (l *Logger) Error(message string, fields ...map[string]interface{}) {
	l.log(ERROR, message, firstFields(fields))
}

// WithField adds a field to the logger context
func (l *Logger) WithField(key string, value interface{}) *Logger {
	newFields := make(map[string]interface{}, len(l.fields)+1)
	for k, v := range l.fields {
		newFields[k] = v
	}
	newFields[key] = value
	return &Logger{
		level:      l.level,
		jsonFormat: l.jsonFormat,
		fields:     newFields,
		shared:     l.shared,
	}
}

// ParseLevel parses a log level string
func ParseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// Close closes the log file if opened
func (l *Logger) Close() error {
	if l.shared.logFile != nil {
		l.Info("Logger closing")
		return l.shared.logFile.Close()
	}
	return nil
}
