package clipboard

import (
	"github.com/atotto/clipboard"
)

// Copy writes text to the system clipboard.
func Copy(text string) error {
	return clipboard.WriteAll(text)
}

// Read returns the current clipboard text.
func Read() (string, error) {
	return clipboard.ReadAll()
}
