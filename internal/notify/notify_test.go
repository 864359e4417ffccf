package notify

import (
	"errors"
	"testing"
)

func TestNotifyDisabledIsNoop(t *testing.T) {
	n := New(false)
	called := false
	n.send = func(string, string) error { called = true; return nil }
	n.Notify("title", "message")
	if called {
		t.Error("disabled notifier must not send")
	}
}

func TestNotifyEnabled(t *testing.T) {
	n := New(true)
	var gotTitle, gotMsg string
	n.send = func(title, msg string) error {
		gotTitle, gotMsg = title, msg
		return nil
	}
	n.Notify("Recording", "started")
	if gotTitle != "Recording" || gotMsg != "started" {
		t.Errorf("unexpected notification: %q / %q", gotTitle, gotMsg)
	}
}

func TestNotifyFailureDoesNotPanic(t *testing.T) {
	n := New(true)
	n.send = func(string, string) error { return errors.New("dbus gone") }
	n.Notify("t", "m")
}
