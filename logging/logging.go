// Package logging provides leveled key=value console logging for the engine.
// Loggers are constructor-injected; there is no package-level global.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
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
	mu        sync.Mutex
	output    io.Writer
	minLevel  Level
	component string
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
		output:   os.Stdout,
		minLevel: LevelInfo,
	}
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *Logger {
	return &Logger{
		output:   io.Discard,
		minLevel: LevelError,
	}
}

// WithComponent returns a new logger with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		output:    l.output,
		minLevel:  l.minLevel,
		component: component,
	}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.minLevel = level
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
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

// formatFields formats a map of fields as key=value pairs.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	var parts []string
	for k, v := range fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return " " + strings.Join(parts, " ")
}

// log writes a log entry in traditional format: LEVEL TIMESTAMP [component] message key=value ...
func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	if levelPriority[level] < levelPriority[l.minLevel] {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var fieldStr string
	if len(fields) > 0 && fields[0] != nil {
		fieldStr = formatFields(fields[0])
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

// --- Engine lifecycle logging methods ---
// Convenience wrappers used by the scheduler, router, and transition manager
// for real-time console output.

// PollStart logs the start of a poll cycle.
func (l *Logger) PollStart() {
	l.Info("poll_start", nil)
}

// PollComplete logs a successful poll cycle.
func (l *Logger) PollComplete(duration time.Duration, itemsProcessed int) {
	l.Info("poll_complete", map[string]interface{}{
		"duration": duration.String(),
		"items":    itemsProcessed,
	})
}

// PollFailed logs a failed poll cycle.
func (l *Logger) PollFailed(duration time.Duration, err error) {
	l.Error("poll_failed", map[string]interface{}{
		"duration": duration.String(),
		"error":    err.Error(),
	})
}

// PollSkipped logs a cycle skipped by the circuit breaker or a closed window.
func (l *Logger) PollSkipped(reason string) {
	l.Info("poll_skipped", map[string]interface{}{
		"reason": reason,
	})
}

// BreakerStateChange logs a circuit breaker transition.
func (l *Logger) BreakerStateChange(from, to string, failures int) {
	l.Warn("circuit_breaker", map[string]interface{}{
		"from":     from,
		"to":       to,
		"failures": failures,
	})
}

// RouteDecision logs a routing decision (real-time output).
func (l *Logger) RouteDecision(decision, provider, model string) {
	l.Debug("route_decision", map[string]interface{}{
		"decision": decision,
		"provider": provider,
		"model":    model,
	})
}

// TransitionOutcome logs the result of a status transition attempt.
func (l *Logger) TransitionOutcome(taskID, from, to, result string, err error) {
	fields := map[string]interface{}{
		"task":   shortID(taskID),
		"from":   from,
		"to":     to,
		"result": result,
	}
	if err != nil {
		fields["error"] = err.Error()
		l.Error("status_transition", fields)
	} else {
		l.Info("status_transition", fields)
	}
}

// SchedulerStateChange logs a scheduler lifecycle transition.
func (l *Logger) SchedulerStateChange(from, to string) {
	l.Info("scheduler_state", map[string]interface{}{
		"from": from,
		"to":   to,
	})
}

// shortID truncates IDs for log readability.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
