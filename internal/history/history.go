package history

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger appends finished transcripts to a plain text log file.
type Logger struct {
	mu      sync.Mutex
	enabled bool
	path    string
	now     func() time.Time
}

// New creates a transcript logger. A disabled logger is a no-op.
func New(enabled bool, path string) *Logger {
	return &Logger{enabled: enabled, path: path, now: time.Now}
}

// Append records a transcript with its optional corrected form.
func (l *Logger) Append(raw string, corrected *string) error {
	if !l.enabled || l.path == "" {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open transcript log: %w", err)
	}
	defer f.Close()

	ts := l.now().Format("2006-01-02 15:04:05")
	if _, err := fmt.Fprintf(f, "[%s] raw: %s\n", ts, raw); err != nil {
		return err
	}
	if corrected != nil {
		if _, err := fmt.Fprintf(f, "[%s] corrected: %s\n", ts, *corrected); err != nil {
			return err
		}
	}
	return nil
}
