//go:build windows

package terminal

import (
	"io"
	"os"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

// winPty drives a Windows pseudo console (ConPTY). Two anonymous pipes
// connect us to the console: we hold the write end of its input and the
// read end of its output. Unlike POSIX there is no child-exit signal, so
// liveness is polled on the process handle, and a watcher goroutine closes
// the console once the child exits — that is what turns the blocking output
// read into EOF.
type winPty struct {
	hpc    windows.Handle
	proc   windows.Handle
	pid    uint32
	in     *os.File // our write end feeding the console's input
	out    *os.File // our read end of the console's output
	exited chan struct{}
	closed chan struct{}

	conOnce  sync.Once
	termOnce sync.Once
}

// Spawn allocates a pseudo console of the given geometry and launches shell
// attached to it. The term argument is ignored: conhost owns terminal-type
// semantics on Windows.
func Spawn(shell, term string, rows, cols uint16) (Pty, error) {
	rows, cols = Clamp(int(rows), int(cols))

	var inRead, inWrite, outRead, outWrite windows.Handle
	if err := windows.CreatePipe(&inRead, &inWrite, nil, 0); err != nil {
		return nil, &SpawnError{Shell: shell, Err: err}
	}
	if err := windows.CreatePipe(&outRead, &outWrite, nil, 0); err != nil {
		closeHandles(inRead, inWrite)
		return nil, &SpawnError{Shell: shell, Err: err}
	}

	var hpc windows.Handle
	size := windows.Coord{X: int16(cols), Y: int16(rows)}
	if err := windows.CreatePseudoConsole(size, inRead, outWrite, 0, &hpc); err != nil {
		closeHandles(inRead, inWrite, outRead, outWrite)
		return nil, &SpawnError{Shell: shell, Err: err}
	}

	attrs, err := windows.NewProcThreadAttributeList(1)
	if err != nil {
		windows.ClosePseudoConsole(hpc)
		closeHandles(inRead, inWrite, outRead, outWrite)
		return nil, &SpawnError{Shell: shell, Err: err}
	}
	defer attrs.Delete()

	if err := attrs.Update(windows.PROC_THREAD_ATTRIBUTE_PSEUDOCONSOLE, unsafe.Pointer(hpc), unsafe.Sizeof(hpc)); err != nil {
		windows.ClosePseudoConsole(hpc)
		closeHandles(inRead, inWrite, outRead, outWrite)
		return nil, &SpawnError{Shell: shell, Err: err}
	}

	siEx := new(windows.StartupInfoEx)
	siEx.Cb = uint32(unsafe.Sizeof(*siEx))
	siEx.ProcThreadAttributeList = attrs.List()

	cmdline, err := windows.UTF16PtrFromString(windows.ComposeCommandLine([]string{shell}))
	if err != nil {
		windows.ClosePseudoConsole(hpc)
		closeHandles(inRead, inWrite, outRead, outWrite)
		return nil, &SpawnError{Shell: shell, Err: err}
	}

	var pi windows.ProcessInformation
	err = windows.CreateProcess(nil, cmdline, nil, nil, false,
		windows.EXTENDED_STARTUPINFO_PRESENT, nil, nil, &siEx.StartupInfo, &pi)
	if err != nil {
		windows.ClosePseudoConsole(hpc)
		closeHandles(inRead, inWrite, outRead, outWrite)
		return nil, &SpawnError{Shell: shell, Err: err}
	}
	_ = windows.CloseHandle(pi.Thread)

	// The console duplicated its pipe ends during CreatePseudoConsole;
	// drop our copies so broken-pipe propagates once it closes.
	closeHandles(inRead, outWrite)

	p := &winPty{
		hpc:    hpc,
		proc:   pi.Process,
		pid:    pi.ProcessId,
		in:     os.NewFile(uintptr(inWrite), "|conpty-in"),
		out:    os.NewFile(uintptr(outRead), "|conpty-out"),
		exited: make(chan struct{}),
		closed: make(chan struct{}),
	}

	// Watch for child exit. Closing the console here is what unblocks a
	// relay goroutine waiting in Read: buffered output drains and the read
	// then fails with a broken pipe, reported as io.EOF below.
	go func() {
		_, _ = windows.WaitForSingleObject(p.proc, windows.INFINITE)
		close(p.exited)
		p.closeConsole()
	}()

	return p, nil
}

func (p *winPty) Read(b []byte) (int, error) {
	n, err := p.out.Read(b)
	if err != nil && !p.Alive() {
		return n, io.EOF
	}
	return n, err
}

// Write forwards input to the child. As in the POSIX variant, writes racing
// child exit are dropped rather than surfaced as errors.
func (p *winPty) Write(b []byte) (int, error) {
	if !p.Alive() {
		return len(b), nil
	}
	n, err := p.in.Write(b)
	if err != nil && !p.Alive() {
		return len(b), nil
	}
	return n, err
}

func (p *winPty) Resize(rows, cols uint16) error {
	select {
	case <-p.closed:
		return ErrPtyClosed
	default:
	}
	if !p.Alive() {
		return ErrPtyClosed
	}
	return windows.ResizePseudoConsole(p.hpc, windows.Coord{X: int16(cols), Y: int16(rows)})
}

// Alive polls the process handle; ConPTY has no exit signal to subscribe to.
func (p *winPty) Alive() bool {
	select {
	case <-p.exited:
		return false
	default:
	}
	event, err := windows.WaitForSingleObject(p.proc, 0)
	return err == nil && event == uint32(windows.WAIT_TIMEOUT)
}

// Terminate force-kills the child (Windows has no graceful signal), waits a
// bounded time for the process handle, then releases the console, pipes,
// and process handle. Idempotent.
func (p *winPty) Terminate() {
	p.termOnce.Do(func() {
		if p.Alive() {
			_ = windows.TerminateProcess(p.proc, 1)
			_, _ = windows.WaitForSingleObject(p.proc, uint32(killGrace/time.Millisecond))
		}
		p.closeConsole()
		close(p.closed)
		_ = p.out.Close()
		_ = windows.CloseHandle(p.proc)
	})
}

// closeConsole releases the pseudo console and our end of its input pipe.
// Shared between the exit watcher and Terminate.
func (p *winPty) closeConsole() {
	p.conOnce.Do(func() {
		windows.ClosePseudoConsole(p.hpc)
		_ = p.in.Close()
	})
}

func closeHandles(handles ...windows.Handle) {
	for _, h := range handles {
		_ = windows.CloseHandle(h)
	}
}
