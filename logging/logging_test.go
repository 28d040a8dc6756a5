package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Output: &buf})

	// Debug should be filtered
	logger.Debug("debug message")
	if buf.Len() > 0 {
		t.Error("debug message should be filtered at info level")
	}

	// Info should pass
	logger.Info("info message")
	if buf.Len() == 0 {
		t.Error("info message should be logged")
	}
	if !strings.Contains(buf.String(), "info message") {
		t.Error("log should contain the message")
	}
}

func TestLogger_InvalidLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "nonsense", Output: &buf})

	logger.Debug("hidden")
	if buf.Len() > 0 {
		t.Error("debug should be filtered when level falls back to info")
	}
	logger.Info("shown")
	if buf.Len() == 0 {
		t.Error("info should be logged at fallback level")
	}
}

func TestLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "debug", Format: "json", Output: &buf})

	logger.WithComponent("monitor").WithTask("task-1").Info("tick")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v (%s)", err, buf.String())
	}
	if entry["message"] != "tick" {
		t.Errorf("message = %v, want tick", entry["message"])
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v, want info", entry["level"])
	}
	if entry["component"] != "monitor" {
		t.Errorf("component = %v, want monitor", entry["component"])
	}
	if entry["task_id"] != "task-1" {
		t.Errorf("task_id = %v, want task-1", entry["task_id"])
	}
	if entry["timestamp"] == nil {
		t.Error("expected timestamp field")
	}
}

func TestLogger_WithRun(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Format: "json", Output: &buf})

	logger.WithRun(42).Info("watching")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if entry["run_id"] != float64(42) {
		t.Errorf("run_id = %v, want 42", entry["run_id"])
	}
}

func TestLogger_WithFieldsAndError(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Format: "json", Output: &buf})

	logger.WithFields(map[string]interface{}{"attempt": 3}).
		WithError(errTest).
		Warn("retrying")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if entry["attempt"] != float64(3) {
		t.Errorf("attempt = %v, want 3", entry["attempt"])
	}
	if entry["error"] != "boom" {
		t.Errorf("error = %v, want boom", entry["error"])
	}
}

func TestLogger_DerivedScopesShareOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf})
	scoped := logger.WithComponent("orchestrator")

	logger.SetOutput(&buf)
	scoped.Info("scoped message")

	if !strings.Contains(buf.String(), "scoped message") {
		t.Error("derived logger should write to the shared output")
	}
}

func TestNop(t *testing.T) {
	// Must not panic or write anywhere visible.
	logger := Nop()
	logger.WithComponent("test").Info("silent")
	logger.Errorf("also silent: %d", 1)
}

var errTest = errBoom{}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }
