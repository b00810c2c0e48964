package services

import (
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/rs/zerolog"

	"github.com/termgate/termgate/internal/logger"
	"github.com/termgate/termgate/internal/recovery"
	"github.com/termgate/termgate/internal/terminal"
)

const readBufferSize = 4096

// TerminalConn is the slice of a WebSocket connection the bridge needs.
// *websocket.Conn satisfies it; tests substitute a fake.
type TerminalConn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// controlMsg is the client → server control channel. Resize is the only
// control message; everything else a client sends is shell input.
type controlMsg struct {
	Type string `json:"type"`
	Rows int    `json:"rows"`
	Cols int    `json:"cols"`
}

// disconnectNotice is sent exactly once, right before the server closes the
// connection, when the shell process has exited.
var disconnectNotice = []byte(`{"type":"disconnect"}`)

// Bridge runs the full lifetime of one terminal session: one shell on a
// PTY, one remote connection, and the bidirectional relay between them.
// It owns both handles exclusively until teardown.
type Bridge struct {
	id   string
	pty  terminal.Pty
	conn TerminalConn
	log  zerolog.Logger

	done chan struct{}
	stop sync.Once
	wg   sync.WaitGroup
}

func NewBridge(id string, pty terminal.Pty, conn TerminalConn) *Bridge {
	return &Bridge{
		id:   id,
		pty:  pty,
		conn: conn,
		log:  logger.WithSession(id),
		done: make(chan struct{}),
	}
}

// Run relays until either side ends the session — shell exit, client close,
// or an I/O failure — then tears everything down and returns. Exactly two
// concurrent units of work exist per session: the output relay goroutine
// and the inbound loop running here.
func (b *Bridge) Run() {
	b.wg.Add(1)
	recovery.SafeGoWithCleanup("session "+b.id+" relay", b.relayOutput, b.wg.Done)

	b.readLoop()
	b.Shutdown()
	b.wg.Wait()
	b.log.Debug().Msg("session closed")
}

// Shutdown tears the session down exactly once: wake both loops, close the
// connection, terminate the shell. Safe to call from either trigger path,
// any number of times.
func (b *Bridge) Shutdown() {
	b.stop.Do(func() {
		close(b.done)
		_ = b.conn.Close()
		b.pty.Terminate()
	})
}

// relayOutput forwards shell output to the client in read order. On EOF the
// shell has exited: the client gets the disconnect notice and the session
// ends. Terminate closing the PTY descriptor is what unblocks the Read here
// during teardown.
func (b *Bridge) relayOutput() {
	buf := make([]byte, readBufferSize)
	for {
		n, err := b.pty.Read(buf)
		if n > 0 {
			if werr := b.conn.WriteMessage(websocket.BinaryMessage, buf[:n]); werr != nil {
				b.log.Debug().Err(werr).Msg("connection write failed")
				b.Shutdown()
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				b.log.Debug().Msg("shell exited")
			} else {
				b.log.Debug().Err(err).Msg("pty read failed")
			}
			b.notifyDisconnect()
			b.Shutdown()
			return
		}
	}
}

// notifyDisconnect tells the client the shell is gone. Skipped when
// teardown already started on the other path: a client-initiated close
// never produces a disconnect notice.
func (b *Bridge) notifyDisconnect() {
	select {
	case <-b.done:
		return
	default:
	}
	_ = b.conn.WriteMessage(websocket.TextMessage, disconnectNotice)
}

// readLoop handles inbound frames sequentially, so a resize always takes
// effect before any later data frame is forwarded.
func (b *Bridge) readLoop() {
	for {
		msgType, data, err := b.conn.ReadMessage()
		if err != nil {
			return
		}

		switch msgType {
		case websocket.TextMessage:
			if b.handleControl(data) {
				continue
			}
			if !b.writeInput(data) {
				return
			}
		case websocket.BinaryMessage:
			if !b.writeInput(data) {
				return
			}
		case websocket.CloseMessage:
			return
		}
	}
}

// handleControl reports whether data was consumed as a control message.
// Anything that does not declare itself a resize — malformed JSON included —
// falls through to the caller and reaches the shell as keystrokes, so
// plain-text clients are never dropped.
func (b *Bridge) handleControl(data []byte) bool {
	var msg controlMsg
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "resize" {
		return false
	}

	rows, cols := terminal.Clamp(msg.Rows, msg.Cols)
	if err := b.pty.Resize(rows, cols); err != nil {
		b.log.Debug().Err(err).Msg("resize failed")
		return true
	}
	b.log.Debug().Uint16("rows", rows).Uint16("cols", cols).Msg("resized")
	return true
}

// writeInput forwards input bytes to the shell, reporting false when the
// session should end. Input payloads are never logged.
func (b *Bridge) writeInput(data []byte) bool {
	if _, err := b.pty.Write(data); err != nil {
		b.log.Debug().Err(err).Msg("pty write failed")
		b.Shutdown()
		return false
	}
	return true
}
