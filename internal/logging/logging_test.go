package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNew_WritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "docchat.log")
	logger, closeFn, err := New(Opts{File: path, Level: "debug"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Named("session").Info("chat turn answered", zap.Int("sequence", 3))
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, data)
	}
	if entry["message"] != "chat turn answered" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry["level"] != "INFO" {
		t.Errorf("level = %v, want INFO", entry["level"])
	}
	if entry["logger"] != "session" {
		t.Errorf("logger = %v, want session", entry["logger"])
	}
	if entry["sequence"] != float64(3) {
		t.Errorf("sequence = %v, want 3", entry["sequence"])
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("missing timestamp key")
	}
}

func TestNew_LevelFiltersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docchat.log")
	logger, closeFn, err := New(Opts{File: path, Level: "warn"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("dropped")
	logger.Warn("kept")
	closeFn()

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "dropped") {
		t.Error("info entry written at warn level")
	}
	if !strings.Contains(string(data), "kept") {
		t.Error("warn entry missing")
	}
}

func TestNew_ConsoleOnlyWarnAndAbove(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn, err := New(Opts{Console: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("quiet")
	logger.Warn("upload failed")
	closeFn()

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Errorf("console got info entry: %q", out)
	}
	if !strings.Contains(out, "upload failed") {
		t.Errorf("console missing warn entry: %q", out)
	}
}

func TestNew_NoSinksIsNop(t *testing.T) {
	logger, closeFn, err := New(Opts{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if logger.Core().Enabled(zap.ErrorLevel) {
		t.Error("expected no-op logger")
	}
	if err := closeFn(); err != nil {
		t.Errorf("close: %v", err)
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	_, _, err := New(Opts{Level: "loud"})
	if err == nil {
		t.Fatal("expected error for invalid level")
	}
	if !strings.Contains(err.Error(), "logging: level") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "logging: level")
	}
}
