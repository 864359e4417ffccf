package notify

import (
	"log"

	"github.com/gen2brain/beeep"
)

// Notifier shows desktop notifications. A disabled notifier is a no-op.
type Notifier struct {
	enabled bool
	send    func(title, message string) error
}

// New creates a notifier.
func New(enabled bool) *Notifier {
	return &Notifier{
		enabled: enabled,
		send: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
	}
}

// Notify shows a notification. Failures are logged, never fatal.
func (n *Notifier) Notify(title, message string) {
	if !n.enabled {
		return
	}
	if err := n.send(title, message); err != nil {
		log.Printf("[notify] notification failed: %v", err)
	}
}
