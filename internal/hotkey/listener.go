package hotkey

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	hook "github.com/robotn/gohook"
)

// DefaultCombo is used when the configured hotkey cannot be parsed.
const DefaultCombo = "f9"

var modifierNames = map[string]string{
	"ctrl":    "ctrl",
	"control": "ctrl",
	"shift":   "shift",
	"alt":     "alt",
	"option":  "alt",
	"cmd":     "cmd",
	"command": "cmd",
	"meta":    "cmd",
	"super":   "cmd",
	"win":     "cmd",
}

// ParseCombo parses a hotkey spec like "ctrl+shift+space" or "f9" into
// the key names the OS hook expects: non-modifier key first, then
// modifiers.
func ParseCombo(spec string) ([]string, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(spec)), "+")
	var mods []string
	var key string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if m, ok := modifierNames[p]; ok {
			mods = append(mods, m)
			continue
		}
		if key != "" {
			return nil, fmt.Errorf("hotkey %q has multiple non-modifier keys", spec)
		}
		key = p
	}
	if key == "" {
		return nil, fmt.Errorf("hotkey %q has no non-modifier key", spec)
	}
	return append([]string{key}, mods...), nil
}

// ParseComboOrDefault parses the spec, falling back to DefaultCombo with
// a warning when it is invalid.
func ParseComboOrDefault(spec string) []string {
	combo, err := ParseCombo(spec)
	if err != nil {
		log.Printf("[hotkey] %v, falling back to %s", err, DefaultCombo)
		combo, _ = ParseCombo(DefaultCombo)
	}
	return combo
}

// Debouncer suppresses repeat firings within a window. Holding a key
// down generates OS key repeat events that must collapse to one toggle.
type Debouncer struct {
	mu     sync.Mutex
	window time.Duration
	last   time.Time
	now    func() time.Time
}

// NewDebouncer creates a debouncer with the given window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{window: window, now: time.Now}
}

// Allow reports whether a firing at this instant should pass.
func (d *Debouncer) Allow() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := d.now()
	if !d.last.IsZero() && t.Sub(d.last) < d.window {
		return false
	}
	d.last = t
	return true
}

// Listener watches for the global toggle hotkey.
type Listener struct {
	combo    []string
	debounce *Debouncer
	onToggle func()

	register func(combo []string, cb func())
	run      func(ctx context.Context)
}

// New creates a listener for the given hotkey spec. onToggle is invoked
// from the hook goroutine and must not block.
func New(spec string, debounce time.Duration, onToggle func()) *Listener {
	l := &Listener{
		combo:    ParseComboOrDefault(spec),
		debounce: NewDebouncer(debounce),
		onToggle: onToggle,
	}
	l.register = func(combo []string, cb func()) {
		hook.Register(hook.KeyDown, combo, func(hook.Event) { cb() })
	}
	l.run = func(ctx context.Context) {
		events := hook.Start()
		defer hook.End()
		done := make(chan struct{})
		go func() {
			<-hook.Process(events)
			close(done)
		}()
		select {
		case <-ctx.Done():
		case <-done:
		}
	}
	return l
}

// Combo returns the parsed key combination.
func (l *Listener) Combo() []string { return l.combo }

// Run blocks processing hotkey events until ctx is canceled.
func (l *Listener) Run(ctx context.Context) {
	l.register(l.combo, l.fire)
	log.Printf("[hotkey] listening for %s", strings.Join(l.combo, "+"))
	l.run(ctx)
}

func (l *Listener) fire() {
	if l.debounce.Allow() {
		l.onToggle()
	}
}
