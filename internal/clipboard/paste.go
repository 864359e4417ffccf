package clipboard

import (
	"fmt"
	"time"

	"github.com/micmonay/keybd_event"
)

// PasteText puts text on the clipboard, sends the paste chord to the
// focused window, and then restores whatever the clipboard held before.
func PasteText(text string) error {
	prev, prevErr := Read()
	if err := Copy(text); err != nil {
		return fmt.Errorf("clipboard write failed: %w", err)
	}
	// Give the clipboard owner a moment to register the new contents
	// before the chord fires.
	time.Sleep(80 * time.Millisecond)

	if err := sendPasteChord(); err != nil {
		return fmt.Errorf("paste chord failed: %w", err)
	}
	time.Sleep(120 * time.Millisecond)

	if prevErr == nil {
		_ = Copy(prev)
	}
	return nil
}

func sendPasteChord() error {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return err
	}
	kb.HasCTRL(true)
	kb.SetKeys(keybd_event.VK_V)
	return kb.Launching()
}
