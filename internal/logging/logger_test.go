package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// TestSetOutputRedirects verifies log lines follow the new writer.
func TestSetOutputRedirects(t *testing.T) {
	l := NewLogger("server")
	var buf bytes.Buffer
	l.SetOutput(&buf)

	l.Info().Str("upload_id", "u-1").Msg("begin")

	out := buf.String()
	if !strings.Contains(out, `"upload_id":"u-1"`) {
		t.Errorf("expected JSON field in output, got %q", out)
	}
	if l.Output() != &buf {
		t.Error("Output() should return the writer passed to SetOutput")
	}
}

// TestRetryLoggerKeyValues verifies key/value pairs become structured fields.
func TestRetryLoggerKeyValues(t *testing.T) {
	l := NewLogger("server")
	var buf bytes.Buffer
	l.SetOutput(&buf)

	NewRetryLogger(l).Warn("request failed", "url", "http://x", "status", 503)

	out := buf.String()
	if !strings.Contains(out, `"url":"http://x"`) || !strings.Contains(out, `"status":503`) {
		t.Errorf("missing fields in %q", out)
	}
}

// TestParseLevel verifies the flag fallback.
func TestParseLevel(t *testing.T) {
	if got := ParseLevel("debug"); got != zerolog.DebugLevel {
		t.Errorf("ParseLevel(debug) = %v", got)
	}
	if got := ParseLevel("nonsense"); got != zerolog.InfoLevel {
		t.Errorf("ParseLevel(nonsense) = %v, want info", got)
	}
	if got := ParseLevel(""); got != zerolog.InfoLevel {
		t.Errorf("ParseLevel(\"\") = %v, want info", got)
	}
}

// TestChildCarriesFields verifies child fields appear on every line and the parent is untouched.
func TestChildCarriesFields(t *testing.T) {
	l := NewLogger("server")
	var buf bytes.Buffer
	l.SetOutput(&buf)

	child := l.Child(func(c zerolog.Context) zerolog.Context { return c.Str("dest", "runs/a.csv") })
	child.Info().Msg("part stored")
	l.Info().Msg("batch done")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", buf.String())
	}
	if !strings.Contains(lines[0], `"dest":"runs/a.csv"`) {
		t.Errorf("child line missing field: %q", lines[0])
	}
	if strings.Contains(lines[1], `"dest"`) {
		t.Errorf("parent line gained child field: %q", lines[1])
	}
}
