package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)
	logger.SetLevel(LevelInfo)

	// Debug should be filtered
	logger.Debug("debug message")
	if buf.Len() > 0 {
		t.Error("debug message should be filtered at INFO level")
	}

	// Info should pass
	logger.Info("info message")
	if buf.Len() == 0 {
		t.Error("info message should be logged")
	}

	output := buf.String()
	if !strings.Contains(output, "INFO") {
		t.Error("log should contain INFO level")
	}
	if !strings.Contains(output, "info message") {
		t.Error("log should contain the message")
	}
}

func TestLogger_WithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New().WithComponent("scheduler")
	logger.SetOutput(&buf)

	logger.Info("test message")

	output := buf.String()
	if !strings.Contains(output, "[scheduler]") {
		t.Errorf("expected component 'scheduler' in log, got: %s", output)
	}
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)

	logger.Info("poll", map[string]interface{}{"items": 3})

	output := buf.String()
	if !strings.Contains(output, "items=3") {
		t.Errorf("expected items=3 in output, got: %s", output)
	}
}

func TestLogger_PollHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)

	logger.PollComplete(2*time.Second, 5)
	logger.PollFailed(time.Second, errors.New("boom"))
	logger.PollSkipped("circuit breaker open")

	output := buf.String()
	for _, want := range []string{"poll_complete", "items=5", "poll_failed", "error=boom", "poll_skipped"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestLogger_TransitionOutcome(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)

	logger.TransitionOutcome("0123456789abcdef", "Queued to run", "In progress", "success", nil)

	output := buf.String()
	if !strings.Contains(output, "task=01234567") {
		t.Errorf("expected truncated task ID in output, got: %s", output)
	}
	if strings.Contains(output, "89abcdef") {
		t.Errorf("task ID should be truncated, got: %s", output)
	}
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	// Must not panic and must not write anywhere visible.
	logger.Error("dropped")
}
