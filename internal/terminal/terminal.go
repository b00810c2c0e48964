// Package terminal abstracts pseudo-terminal allocation, shell spawning,
// I/O, resize, and teardown behind one capability set with a POSIX and a
// Windows (ConPTY) variant, selected at build time.
package terminal

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// Default geometry applied when a session starts or when a resize request
// omits a dimension.
const (
	DefaultRows uint16 = 24
	DefaultCols uint16 = 80
)

// Upper bounds for client-requested geometry. Values beyond these are
// clamped, not rejected.
const (
	maxRows = 512
	maxCols = 1024
)

// DefaultTerm is the value of TERM given to the child when no terminal type
// is configured.
const DefaultTerm = "xterm-256color"

// killGrace is how long Terminate waits for the child to honor a graceful
// termination request before force-killing it. Interactive shells commonly
// ignore SIGTERM, so this stays short to keep teardown snappy.
const killGrace = 500 * time.Millisecond

// ErrPtyClosed is returned by Resize once Terminate has run.
var ErrPtyClosed = errors.New("pty is closed")

// SpawnError indicates the shell could not be launched or the OS refused to
// allocate a pseudo-terminal.
type SpawnError struct {
	Shell string
	Err   error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn %q: %v", e.Shell, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// Pty is one spawned shell attached to a pseudo-terminal. The session that
// created it owns it exclusively.
//
// Read blocks until output is available and returns io.EOF once the child
// has exited and the output stream drains. Write forwards input to the
// child; writes racing child exit are dropped silently (reported as fully
// written) — that race is expected during shutdown, not an error.
type Pty interface {
	io.Reader
	io.Writer

	// Resize updates the kernel-level terminal geometry so the child
	// receives a window-change event. Returns ErrPtyClosed after Terminate.
	Resize(rows, cols uint16) error

	// Alive reports whether the child process is still running.
	Alive() bool

	// Terminate requests graceful termination, escalates to a forced kill
	// after a bounded wait, and closes the PTY descriptor. Idempotent.
	// Closing the descriptor wakes any goroutine blocked in Read.
	Terminate()
}

// Clamp normalizes client-supplied geometry: non-positive or missing values
// fall back to the 80x24 defaults, oversized values are capped.
func Clamp(rows, cols int) (uint16, uint16) {
	r, c := rows, cols
	if r <= 0 {
		r = int(DefaultRows)
	}
	if c <= 0 {
		c = int(DefaultCols)
	}
	if r > maxRows {
		r = maxRows
	}
	if c > maxCols {
		c = maxCols
	}
	return uint16(r), uint16(c)
}

// termEnv returns env with TERM forced to term (or DefaultTerm when empty).
// The server often runs without a terminal of its own, so the child always
// gets an explicit TERM rather than whatever leaked into the environment.
func termEnv(env []string, term string) []string {
	if term == "" {
		term = DefaultTerm
	}
	out := make([]string, 0, len(env)+1)
	for _, kv := range env {
		if len(kv) >= 5 && kv[:5] == "TERM=" {
			continue
		}
		out = append(out, kv)
	}
	return append(out, "TERM="+term)
}
