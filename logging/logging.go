// Package logging provides real-time log output for bus endpoints and the
// simulation runner. Output is line-oriented and meant for monitoring; the
// simulation report is the durable record.
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	simerrors "github.com/vinayprograms/simbus/errors"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logger provides structured logging to stdout.
type Logger struct {
	mu        *sync.Mutex
	output    io.Writer
	minLevel  Level
	component string
	traceID   string
}

// levelPriority maps levels to numeric priority for filtering.
var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// New creates a new Logger.
func New() *Logger {
	return &Logger{
		mu:       &sync.Mutex{},
		output:   os.Stdout,
		minLevel: LevelInfo,
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	l := New()
	l.output = io.Discard
	l.minLevel = LevelError
	return l
}

// ParseLevel normalizes a user-provided level string.
// Unknown values fall back to INFO.
func ParseLevel(s string) Level {
	level := Level(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := levelPriority[level]; ok {
		return level
	}
	return LevelInfo
}

// WithComponent returns a new logger with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		mu:        l.mu,
		output:    l.output,
		minLevel:  l.minLevel,
		component: component,
		traceID:   l.traceID,
	}
}

// WithTraceID returns a new logger with the given trace ID.
func (l *Logger) WithTraceID(traceID string) *Logger {
	return &Logger{
		mu:        l.mu,
		output:    l.output,
		minLevel:  l.minLevel,
		component: l.component,
		traceID:   traceID,
	}
}

// SetLevel sets the minimum log level.
// Call it before the logger is shared between goroutines.
func (l *Logger) SetLevel(level Level) {
	l.minLevel = level
}

// Level returns the minimum log level.
func (l *Logger) Level() Level {
	return l.minLevel
}

// SetOutput sets the output writer (default: stdout).
// Call it before the logger is shared between goroutines.
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
}

// Enabled reports whether messages at level would be written.
func (l *Logger) Enabled(level Level) bool {
	return levelPriority[level] >= levelPriority[l.minLevel]
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// formatFields formats a map of fields as key=value pairs, sorted by key.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return " " + strings.Join(parts, " ")
}

// log writes a log entry in traditional format: LEVEL TIMESTAMP [component] message key=value ...
func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	if !l.Enabled(level) {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var fieldStr string
	if len(fields) > 0 && fields[0] != nil {
		fieldStr = formatFields(fields[0])
	}
	if l.traceID != "" {
		fieldStr += " trace=" + l.traceID
	}

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.Write([]byte(line))
}

// --- Bus and endpoint lifecycle ---

// EndpointStarted logs that an endpoint finished initialization and is
// consuming its mailbox.
func (l *Logger) EndpointStarted(endpoint string, requestTopics, notificationTopics []string) {
	l.Info("endpoint_started", map[string]interface{}{
		"endpoint":      endpoint,
		"requests":      strings.Join(requestTopics, ","),
		"notifications": strings.Join(notificationTopics, ","),
	})
}

// EndpointStopped logs that an endpoint left its message loop.
func (l *Logger) EndpointStopped(endpoint string, processed int, reason string) {
	l.Info("endpoint_stopped", map[string]interface{}{
		"endpoint":  endpoint,
		"processed": processed,
		"reason":    reason,
	})
}

// HandlerFailed logs a handler error or recovered panic. Structured errors
// add their code.
func (l *Logger) HandlerFailed(endpoint, topic string, err error) {
	fields := map[string]interface{}{
		"endpoint": endpoint,
		"topic":    topic,
		"error":    err.Error(),
	}
	if code := simerrors.Code(err); code != "" {
		fields["code"] = code.String()
	}
	l.Error("handler_failed", fields)
}

// MessageUnhandled logs a message that reached an endpoint with no handler
// bound to its topic.
func (l *Logger) MessageUnhandled(endpoint, topic string) {
	l.Warn("message_unhandled", map[string]interface{}{
		"endpoint": endpoint,
		"topic":    topic,
	})
}

// RequestDropped logs a request that found no live subscriber.
func (l *Logger) RequestDropped(sender, topic string) {
	l.Debug("request_dropped", map[string]interface{}{
		"sender": sender,
		"topic":  topic,
	})
}

// --- Simulation ---

// Tick logs a clock tick.
func (l *Logger) Tick(tick int, final bool) {
	l.Debug("tick", map[string]interface{}{
		"tick":  tick,
		"final": final,
	})
}

// SimulationCrashed logs a crash broadcast.
func (l *Logger) SimulationCrashed(sensor, reason string, tick int) {
	l.Error("simulation_crashed", map[string]interface{}{
		"sensor": sensor,
		"reason": reason,
		"tick":   tick,
	})
}

// SimulationComplete logs the end of a simulation run.
func (l *Logger) SimulationComplete(runID string, duration time.Duration, ticks int, status string) {
	l.Info("simulation_complete", map[string]interface{}{
		"run":      runID,
		"duration": duration.String(),
		"ticks":    ticks,
		"status":   status,
	})
}

// ShutdownStep logs one shutdown handler result.
func (l *Logger) ShutdownStep(name string, phase int, duration time.Duration, err error) {
	fields := map[string]interface{}{
		"handler":  name,
		"phase":    phase,
		"duration": duration.String(),
	}
	if err != nil {
		fields["error"] = err.Error()
		l.Warn("shutdown_step", fields)
		return
	}
	l.Debug("shutdown_step", fields)
}
