//go:build !windows

package terminal

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// unixPty drives a POSIX pseudo-terminal pair. The child runs as a session
// leader with the slave side as its controlling terminal (creack/pty sets
// Setsid and Setctty), so job control and SIGWINCH routing work as they
// would on a real terminal. We keep only the master side.
type unixPty struct {
	master   *os.File
	cmd      *exec.Cmd
	exited   chan struct{} // closed by the reaper once Wait returns
	closed   chan struct{} // closed by Terminate after the descriptor is gone
	termOnce sync.Once
}

// Spawn allocates a PTY pair and launches shell attached to the slave side
// with the given initial geometry. TERM is always set explicitly for the
// child (see termEnv).
func Spawn(shell, term string, rows, cols uint16) (Pty, error) {
	rows, cols = Clamp(int(rows), int(cols))

	cmd := exec.Command(shell)
	cmd.Env = termEnv(os.Environ(), term)

	master, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: rows, Cols: cols})
	if err != nil {
		return nil, &SpawnError{Shell: shell, Err: err}
	}

	p := &unixPty{
		master: master,
		cmd:    cmd,
		exited: make(chan struct{}),
		closed: make(chan struct{}),
	}

	// Reap the child exactly once. Alive and Terminate key off this.
	go func() {
		_ = cmd.Wait()
		close(p.exited)
	}()

	return p, nil
}

// Read blocks until the child produces output. Once the child has exited,
// the master read fails — EIO on Linux, possibly before the reaper has
// observed the exit — and is reported as io.EOF.
func (p *unixPty) Read(b []byte) (int, error) {
	n, err := p.master.Read(b)
	if err != nil && (errors.Is(err, syscall.EIO) || !p.Alive()) {
		return n, io.EOF
	}
	return n, err
}

// Write forwards input to the child. Writes racing child exit are dropped:
// a resize or keystroke arriving while the shell is going away is expected
// during shutdown and must not surface as an error.
func (p *unixPty) Write(b []byte) (int, error) {
	if !p.Alive() {
		return len(b), nil
	}
	n, err := p.master.Write(b)
	if err != nil && (errors.Is(err, syscall.EIO) || !p.Alive()) {
		return len(b), nil
	}
	return n, err
}

// Resize updates the terminal geometry via TIOCSWINSZ, which also delivers
// SIGWINCH to the child's foreground process group.
func (p *unixPty) Resize(rows, cols uint16) error {
	select {
	case <-p.closed:
		return ErrPtyClosed
	default:
	}
	return pty.Setsize(p.master, &pty.Winsize{Rows: rows, Cols: cols})
}

func (p *unixPty) Alive() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// Terminate sends SIGTERM, waits up to killGrace, force-kills if the child
// is still around, then closes the master descriptor. Safe to call more
// than once; only the first call does the work. Closing the master is what
// wakes a relay goroutine still blocked in Read.
func (p *unixPty) Terminate() {
	p.termOnce.Do(func() {
		if p.Alive() {
			_ = p.cmd.Process.Signal(syscall.SIGTERM)
			select {
			case <-p.exited:
			case <-time.After(killGrace):
				_ = p.cmd.Process.Kill()
				<-p.exited
			}
		}

		close(p.closed)
		_ = p.master.Close()
	})
}
