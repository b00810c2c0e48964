package handlers

import (
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/termgate/termgate/internal/config"
	"github.com/termgate/termgate/internal/terminal"
)

// stubPty is the shell double behind a test gateway: output is injected
// with emit, input and resizes are recorded.
type stubPty struct {
	out chan []byte

	mu         sync.Mutex
	written    []byte
	resizes    [][2]uint16
	alive      bool
	outClosed  bool
	terminates int
}

func newStubPty() *stubPty {
	return &stubPty{
		out:   make(chan []byte, 16),
		alive: true,
	}
}

func (p *stubPty) emit(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.outClosed {
		p.out <- data
	}
}

func (p *stubPty) exit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alive = false
	if !p.outClosed {
		p.outClosed = true
		close(p.out)
	}
}

func (p *stubPty) Read(b []byte) (int, error) {
	data, ok := <-p.out
	if !ok {
		return 0, io.EOF
	}
	return copy(b, data), nil
}

func (p *stubPty) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.alive {
		p.written = append(p.written, b...)
	}
	return len(b), nil
}

func (p *stubPty) Resize(rows, cols uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.alive {
		return terminal.ErrPtyClosed
	}
	p.resizes = append(p.resizes, [2]uint16{rows, cols})
	return nil
}

func (p *stubPty) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive
}

func (p *stubPty) Terminate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.terminates++
	p.alive = false
	if !p.outClosed {
		p.outClosed = true
		close(p.out)
	}
}

func (p *stubPty) input() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.written)
}

func (p *stubPty) resizeLog() [][2]uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][2]uint16, len(p.resizes))
	copy(out, p.resizes)
	return out
}

func (p *stubPty) terminateCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminates
}

type spawnCall struct {
	shell string
	term  string
	rows  uint16
	cols  uint16
}

// spawnRecorder hands out stub ptys and records every spawn request.
type spawnRecorder struct {
	mu    sync.Mutex
	calls []spawnCall
	ptys  []*stubPty
	err   error
}

func (s *spawnRecorder) spawn(shell, term string, rows, cols uint16) (terminal.Pty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, spawnCall{shell: shell, term: term, rows: rows, cols: cols})
	if s.err != nil {
		return nil, s.err
	}
	p := newStubPty()
	s.ptys = append(s.ptys, p)
	return p, nil
}

func (s *spawnRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *spawnRecorder) last() (spawnCall, *stubPty) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[len(s.calls)-1], s.ptys[len(s.ptys)-1]
}

func waitForCond(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func startTestServer(t *testing.T, cfg *config.Config, spawn SpawnFunc) string {
	t.Helper()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	h := NewTerminalHandler(cfg)
	h.spawn = spawn
	h.RegisterRoutes(app)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	return ln.Addr().String()
}

func dialWS(t *testing.T, addr, query string, header http.Header) *websocket.Conn {
	t.Helper()

	url := "ws://" + addr + "/ws"
	if query != "" {
		url += "?" + query
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func testConfig() *config.Config {
	return &config.Config{
		Host:  "127.0.0.1",
		Shell: "/bin/fake-shell",
		Token: "abc123",
		Term:  "xterm-256color",
	}
}

func TestTerminalHandlerRejectsBadToken(t *testing.T) {
	rec := &spawnRecorder{}
	addr := startTestServer(t, testConfig(), rec.spawn)

	conn := dialWS(t, addr, "token=wrong", nil)

	msgType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, msgType)
	assert.Equal(t, "Invalid token or TERMGATE_TOKEN not set.", string(data))

	// The server closes after the rejection and never starts a shell.
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, rec.count())
}

func TestTerminalHandlerRejectsWhenNoTokenConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.Token = ""
	rec := &spawnRecorder{}
	addr := startTestServer(t, cfg, rec.spawn)

	conn := dialWS(t, addr, "token=anything", nil)

	msgType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, msgType)
	assert.Equal(t, "Invalid token or TERMGATE_TOKEN not set.", string(data))
	assert.Equal(t, 0, rec.count())
}

func TestTerminalHandlerAcceptsToken(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		header http.Header
	}{
		{"QueryParameter", "token=abc123", nil},
		{"BearerHeader", "", http.Header{"Authorization": []string{"Bearer abc123"}}},
		{"Cookie", "", http.Header{"Cookie": []string{tokenCookie + "=abc123"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &spawnRecorder{}
			addr := startTestServer(t, testConfig(), rec.spawn)

			conn := dialWS(t, addr, tt.query, tt.header)
			waitForCond(t, func() bool { return rec.count() == 1 }, "shell was not spawned")

			call, pty := rec.last()
			assert.Equal(t, "/bin/fake-shell", call.shell)
			assert.Equal(t, "xterm-256color", call.term)
			assert.Equal(t, terminal.DefaultRows, call.rows)
			assert.Equal(t, terminal.DefaultCols, call.cols)

			pty.emit([]byte("$ "))
			msgType, data, err := conn.ReadMessage()
			require.NoError(t, err)
			assert.Equal(t, websocket.BinaryMessage, msgType)
			assert.Equal(t, []byte("$ "), data)
		})
	}
}

func TestTerminalHandlerBridgesIO(t *testing.T) {
	rec := &spawnRecorder{}
	addr := startTestServer(t, testConfig(), rec.spawn)

	conn := dialWS(t, addr, "token=abc123", nil)
	waitForCond(t, func() bool { return rec.count() == 1 }, "shell was not spawned")
	_, pty := rec.last()

	// Keystrokes reach the shell as-is.
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("ls\n")))
	waitForCond(t, func() bool { return pty.input() == "ls\n" }, "input did not reach the shell")

	// Resize control frames are consumed, not typed.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"resize","rows":40,"cols":100}`)))
	waitForCond(t, func() bool { return len(pty.resizeLog()) == 1 }, "resize not applied")
	assert.Equal(t, [2]uint16{40, 100}, pty.resizeLog()[0])
	assert.Equal(t, "ls\n", pty.input())

	// Output comes back as binary frames.
	pty.emit([]byte("file-a file-b\r\n"))
	msgType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, msgType)
	assert.Equal(t, []byte("file-a file-b\r\n"), data)

	// Shell exit delivers the disconnect notice before the close.
	pty.exit()
	msgType, data, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, msgType)
	assert.Equal(t, `{"type":"disconnect"}`, string(data))

	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestTerminalHandlerClientCloseTerminatesShell(t *testing.T) {
	rec := &spawnRecorder{}
	addr := startTestServer(t, testConfig(), rec.spawn)

	conn := dialWS(t, addr, "token=abc123", nil)
	waitForCond(t, func() bool { return rec.count() == 1 }, "shell was not spawned")
	_, pty := rec.last()

	require.NoError(t, conn.Close())

	waitForCond(t, func() bool { return pty.terminateCount() == 1 },
		"shell not terminated after client close")
}

func TestTerminalHandlerSpawnFailure(t *testing.T) {
	rec := &spawnRecorder{err: errors.New("exec format error")}
	addr := startTestServer(t, testConfig(), rec.spawn)

	conn := dialWS(t, addr, "token=abc123", nil)

	// No frames arrive; the connection just closes.
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 1, rec.count())
}

func TestServeTerminalPage(t *testing.T) {
	app := fiber.New()
	app.Get("/", ServeTerminalPage)

	req := httptest.NewRequest("GET", "/", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "xterm")
	assert.Contains(t, string(body), "/ws?token=")
}

func TestHealthCheck(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", HealthCheck)

	req := httptest.NewRequest("GET", "/healthz", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}
