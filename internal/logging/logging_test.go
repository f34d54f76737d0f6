package logging_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/raysh454/fastscan/internal/logging"
)

func TestStdoutLogger_WritesJSONLine(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := logging.NewWriterLogger("scanflow", &buf)

	l.Info("scan completed", logging.Field{Key: "grade", Value: "A"})

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v (%q)", err, buf.String())
	}
	if entry["level"] != "info" {
		t.Errorf("expected level info, got %v", entry["level"])
	}
	if entry["component"] != "scanflow" {
		t.Errorf("expected component scanflow, got %v", entry["component"])
	}
	fields, _ := entry["fields"].(map[string]any)
	if fields["grade"] != "A" {
		t.Errorf("expected grade field A, got %v", fields["grade"])
	}
}

func TestStdoutLogger_WithCarriesFieldsAndComponent(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := logging.NewWriterLogger("root", &buf)

	child := l.With(
		logging.Field{Key: "component", Value: "rating"},
		logging.Field{Key: "scan_id", Value: "s1"},
	)
	child.Warn("captcha refreshed")

	line := buf.String()
	if !strings.Contains(line, `"component":"rating"`) {
		t.Errorf("expected child component in %q", line)
	}
	if !strings.Contains(line, `"scan_id":"s1"`) {
		t.Errorf("expected persistent field in %q", line)
	}
}

func TestNop_DoesNotPanic(t *testing.T) {
	t.Parallel()
	l := logging.Nop()
	l.Debug("x")
	l.With(logging.Field{Key: "a", Value: 1}).Error("y")
}
