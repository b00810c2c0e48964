//go:build windows

package cmd

import (
	"os"
	"time"

	"golang.org/x/term"
)

// watchResize polls the console size. Windows has no SIGWINCH, so size
// changes are picked up twice a second. The returned func stops the watcher.
func watchResize(fn func()) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()

		lastCols, lastRows, _ := term.GetSize(int(os.Stdin.Fd()))
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				cols, rows, err := term.GetSize(int(os.Stdin.Fd()))
				if err != nil {
					continue
				}
				if cols != lastCols || rows != lastRows {
					lastCols, lastRows = cols, rows
					fn()
				}
			}
		}
	}()
	return func() { close(done) }
}
