// Package recovery keeps a panicking goroutine from taking the whole server
// down with it.
package recovery

import (
	"runtime/debug"

	"github.com/termgate/termgate/internal/logger"
)

// SafeGo runs fn in a goroutine with panic recovery.
func SafeGo(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("panic recovered in goroutine %q: %v", name, r)
				logger.Debugf("stack trace:\n%s", debug.Stack())
			}
		}()
		fn()
	}()
}

// SafeGoWithCleanup is SafeGo with a cleanup that runs when fn returns or
// panics. Cleanup runs before the panic is logged so teardown is never
// skipped.
func SafeGoWithCleanup(name string, fn func(), cleanup func()) {
	go func() {
		defer func() {
			if cleanup != nil {
				cleanup()
			}
			if r := recover(); r != nil {
				logger.Errorf("panic recovered in goroutine %q: %v", name, r)
				logger.Debugf("stack trace:\n%s", debug.Stack())
			}
		}()
		fn()
	}()
}
