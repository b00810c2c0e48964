//go:build !windows

package cmd

import (
	"os"
	"os/signal"
	"syscall"
)

// watchResize invokes fn whenever the controlling terminal changes size. The
// returned func stops the watcher.
func watchResize(fn func()) func() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGWINCH)
	go func() {
		for range ch {
			fn()
		}
	}()
	return func() {
		signal.Stop(ch)
		close(ch)
	}
}
