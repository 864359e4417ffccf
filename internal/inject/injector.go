package inject

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-vgo/robotgo"

	"github.com/Crypto69/speechy/internal/clipboard"
	"github.com/Crypto69/speechy/internal/config"
)

// Result reports what happened to one injection request.
type Result struct {
	Skipped bool
	App     string
	Typed   string
}

// Injector delivers text into the focused window, either by typing it
// keystroke by keystroke or by pasting it through the clipboard.
type Injector struct {
	cfg    config.Config
	policy ExclusionPolicy

	typeStr      func(s string)
	paste        func(text string) error
	activeWindow func() string
	sleep        func(d time.Duration)
}

// New creates an injector backed by robotgo.
func New(cfg config.Config) *Injector {
	return &Injector{
		cfg:          cfg,
		policy:       NewExclusionPolicy(cfg.AutoTypingExcludedApps),
		typeStr:      func(s string) { robotgo.TypeStr(s) },
		paste:        clipboard.PasteText,
		activeWindow: func() string { return robotgo.GetTitle() },
		sleep:        time.Sleep,
	}
}

// Inject delivers the text at the cursor after the configured delay,
// unless the focused app is excluded. Cancellation is honored only
// during the pre-delay; once delivery starts it runs to completion.
func (in *Injector) Inject(ctx context.Context, text string) (Result, error) {
	text = PrepareText(text)
	if text == "" {
		return Result{Skipped: true}, nil
	}

	app := in.activeWindow()
	if in.policy.Excluded(app) {
		return Result{Skipped: true, App: app}, nil
	}

	if delay := time.Duration(in.cfg.AutoTypingDelaySec * float64(time.Second)); delay > 0 {
		select {
		case <-ctx.Done():
			return Result{App: app}, fmt.Errorf("injection aborted: %w", ctx.Err())
		case <-after(in.sleep, delay):
		}
	}

	// Re-check focus after the delay, the user may have switched windows.
	app = in.activeWindow()
	if in.policy.Excluded(app) {
		return Result{Skipped: true, App: app}, nil
	}

	if strings.EqualFold(in.cfg.AutoTypingMethod, config.TypingMethodPaste) {
		if err := in.paste(text); err != nil {
			return Result{App: app}, fmt.Errorf("paste failed: %w", err)
		}
		return Result{App: app, Typed: text}, nil
	}

	// Once typing starts it runs to completion. Partially typed text in an
	// arbitrary focused field cannot be safely rolled back.
	pace := time.Duration(in.cfg.AutoTypingSpeedSec * float64(time.Second))
	for _, r := range text {
		in.typeStr(string(r))
		if pace > 0 {
			in.sleep(pace)
		}
	}
	return Result{App: app, Typed: text}, nil
}

func after(sleep func(time.Duration), d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	go func() {
		sleep(d)
		ch <- time.Now()
	}()
	return ch
}

// ExclusionPolicy decides whether typing into an app is allowed.
// Matching is case-insensitive substring on the app or window name.
type ExclusionPolicy struct {
	patterns []string
}

// NewExclusionPolicy builds a policy from app name patterns.
func NewExclusionPolicy(apps []string) ExclusionPolicy {
	patterns := make([]string, 0, len(apps))
	for _, a := range apps {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" {
			patterns = append(patterns, a)
		}
	}
	return ExclusionPolicy{patterns: patterns}
}

// Excluded reports whether the app name matches an excluded pattern.
func (p ExclusionPolicy) Excluded(app string) bool {
	name := strings.ToLower(strings.TrimSpace(app))
	if name == "" {
		return false
	}
	for _, pat := range p.patterns {
		if strings.Contains(name, pat) {
			return true
		}
	}
	return false
}

// PrepareText normalizes a transcript for typing: trims whitespace and
// closes multi-word sentences that lack terminal punctuation.
func PrepareText(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	words := strings.Fields(text)
	last, _ := utf8.DecodeLastRuneInString(text)
	if len(words) > 2 && !strings.ContainsRune(".!?。！？…", last) {
		text += "."
	}
	return text
}
