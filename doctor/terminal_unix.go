//go:build !windows

package doctor

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
)

// restoreTerminal undoes any raw-mode state a crashed previous run
// (for example the -setup picker) may have left behind.
func restoreTerminal() {
	exec.Command("stty", "sane").Run()
}

// watchInterrupt aborts the diagnostics on Ctrl-C so a hung capture
// check does not leave the terminal stuck.
func watchInterrupt() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ch
		fmt.Fprintln(os.Stderr, "\ninterrupted")
		os.Exit(1)
	}()
}
