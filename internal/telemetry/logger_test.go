package telemetry

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLoggerTextHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, false, false)
	logger.Info("hello", "key", "value")

	out := buf.String()
	if !strings.Contains(out, "msg=hello") {
		t.Errorf("text output missing msg field: %q", out)
	}
	if !strings.Contains(out, "key=value") {
		t.Errorf("text output missing key=value: %q", out)
	}
}

func TestNewLoggerJSONHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, true, false)
	logger.Info("hello", "key", "value")

	out := buf.String()
	if !strings.Contains(out, `"msg":"hello"`) {
		t.Errorf("json output missing msg field: %q", out)
	}
	if !strings.Contains(out, `"key":"value"`) {
		t.Errorf("json output missing key field: %q", out)
	}
}

func TestDefaultReturnsNonNilLogger(t *testing.T) {
	if Default() == nil {
		t.Fatal("Default() returned nil")
	}
}
