//go:build windows

package shutdown

import (
	"os"
	"os/signal"
)

// Notify registers ch for the signals that end a bridge run.
// SIGTERM does not exist on Windows, so interrupt is all we get.
func Notify(ch chan os.Signal) {
	signal.Notify(ch, os.Interrupt)
}
