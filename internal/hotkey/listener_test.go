package hotkey

import (
	"context"
	"testing"
	"time"
)

func TestParseCombo(t *testing.T) {
	cases := []struct {
		spec string
		want []string
	}{
		{"f9", []string{"f9"}},
		{"F9", []string{"f9"}},
		{"ctrl+shift+space", []string{"space", "ctrl", "shift"}},
		{"Cmd+Alt+T", []string{"t", "cmd", "alt"}},
		{" control + r ", []string{"r", "ctrl"}},
	}
	for _, tc := range cases {
		got, err := ParseCombo(tc.spec)
		if err != nil {
			t.Errorf("ParseCombo(%q) failed: %v", tc.spec, err)
			continue
		}
		if len(got) != len(tc.want) {
			t.Errorf("ParseCombo(%q) = %v, want %v", tc.spec, got, tc.want)
			continue
		}
		for i := range tc.want {
			if got[i] != tc.want[i] {
				t.Errorf("ParseCombo(%q) = %v, want %v", tc.spec, got, tc.want)
				break
			}
		}
	}
}

func TestParseComboInvalid(t *testing.T) {
	for _, spec := range []string{"", "ctrl+shift", "a+b", "++"} {
		if _, err := ParseCombo(spec); err == nil {
			t.Errorf("ParseCombo(%q) should fail", spec)
		}
	}
}

func TestParseComboOrDefaultFallsBack(t *testing.T) {
	combo := ParseComboOrDefault("ctrl+")
	if len(combo) != 1 || combo[0] != "f9" {
		t.Errorf("expected fallback to f9, got %v", combo)
	}
	combo = ParseComboOrDefault("ctrl+f12")
	if len(combo) != 2 || combo[0] != "f12" {
		t.Errorf("expected parsed combo, got %v", combo)
	}
}

func TestDebouncerCollapsesRepeats(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	now := time.Unix(0, 0)
	d.now = func() time.Time { return now }

	if !d.Allow() {
		t.Fatal("first firing should pass")
	}
	now = now.Add(10 * time.Millisecond)
	if d.Allow() {
		t.Error("repeat inside window should be suppressed")
	}
	now = now.Add(60 * time.Millisecond)
	if !d.Allow() {
		t.Error("firing after window should pass")
	}
}

func TestListenerFiresThroughDebounce(t *testing.T) {
	toggles := 0
	l := New("f9", 50*time.Millisecond, func() { toggles++ })

	var registered []string
	var cb func()
	l.register = func(combo []string, f func()) {
		registered = combo
		cb = f
	}
	fired := make(chan struct{})
	l.run = func(ctx context.Context) { close(fired); <-ctx.Done() }

	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	<-fired

	now := time.Unix(0, 0)
	l.debounce.now = func() time.Time { return now }

	cb()
	now = now.Add(5 * time.Millisecond)
	cb() // key repeat, suppressed
	now = now.Add(100 * time.Millisecond)
	cb()
	cancel()

	if toggles != 2 {
		t.Errorf("expected 2 toggles after debounce, got %d", toggles)
	}
	if len(registered) != 1 || registered[0] != "f9" {
		t.Errorf("unexpected registered combo: %v", registered)
	}
}
