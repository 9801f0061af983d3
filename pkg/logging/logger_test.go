package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	for _, l := range []LogLevel{LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError} {
		got, err := ParseLevel(l.String())
		if err != nil || got != l {
			t.Errorf("ParseLevel(%q) = %v, %v", l, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestNewFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: LogLevelWarn, Output: &buf, Component: "test"})
	l.Info("hidden")
	l.Warn("shown", "key", 7)
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info record written at warn level")
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "key=7") || !strings.Contains(out, "component=test") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := With(New(Options{Format: "json", Output: &buf}), "session", "s1")
	l.Error("boom")
	if !strings.Contains(buf.String(), `"session":"s1"`) {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestOrNop(t *testing.T) {
	OrNop(nil).Info("discarded")
}
