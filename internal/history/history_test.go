package history

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAppendWritesTimestampedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "transcriptions.log")
	l := New(true, path)
	l.now = func() time.Time { return time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC) }

	corrected := "Hello, world."
	if err := l.Append("hello world", &corrected); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := l.Append("second take", nil); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	got := string(data)
	if !strings.Contains(got, "[2026-08-29 10:30:00] raw: hello world") {
		t.Errorf("missing raw line: %s", got)
	}
	if !strings.Contains(got, "corrected: Hello, world.") {
		t.Errorf("missing corrected line: %s", got)
	}
	if strings.Count(got, "\n") != 3 {
		t.Errorf("expected 3 lines, got: %q", got)
	}
}

func TestAppendDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "never.log")
	l := New(false, path)
	if err := l.Append("text", nil); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("disabled logger must not create the file")
	}
}
