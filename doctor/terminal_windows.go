//go:build windows

package doctor

import (
	"fmt"
	"os"
	"os/signal"
)

// restoreTerminal is a no-op: Windows consoles have no stty raw mode
// to recover from.
func restoreTerminal() {}

// watchInterrupt aborts the diagnostics on Ctrl-C so a hung capture
// check does not leave the terminal stuck.
func watchInterrupt() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	go func() {
		<-ch
		fmt.Fprintln(os.Stderr, "\ninterrupted")
		os.Exit(1)
	}()
}
