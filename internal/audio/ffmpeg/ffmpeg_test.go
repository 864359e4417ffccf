package ffmpeg

import (
	"errors"
	"strings"
	"testing"
)

func TestNeeded(t *testing.T) {
	if Needed(16000, 1) {
		t.Error("16 kHz mono should not need conversion")
	}
	if !Needed(44100, 1) {
		t.Error("44.1 kHz should need conversion")
	}
	if !Needed(16000, 2) {
		t.Error("stereo should need conversion")
	}
}

func TestNormalizeArgs(t *testing.T) {
	var gotName string
	var gotArgs []string
	c := NewConverter()
	c.run = func(name string, args ...string) error {
		gotName = name
		gotArgs = args
		return nil
	}

	if err := c.Normalize("in.wav", "out.wav"); err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if gotName != "ffmpeg" {
		t.Errorf("expected ffmpeg binary, got %s", gotName)
	}
	joined := strings.Join(gotArgs, " ")
	for _, want := range []string{"-i in.wav", "-ac 1", "-ar 16000", "-c:a pcm_s16le", "out.wav"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %s", want, joined)
		}
	}
}

func TestNormalizeFailure(t *testing.T) {
	c := NewConverter()
	c.run = func(string, ...string) error { return errors.New("exit status 1") }
	if err := c.Normalize("in.wav", "out.wav"); err == nil {
		t.Error("expected error from failed ffmpeg run")
	}
}
