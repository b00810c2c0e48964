package handlers

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/termgate/termgate/internal/config"
	"github.com/termgate/termgate/internal/logger"
	"github.com/termgate/termgate/internal/services"
	"github.com/termgate/termgate/internal/terminal"
)

// SpawnFunc creates the backing pty for an authenticated connection. Tests
// substitute a fake so no real shell is started.
type SpawnFunc func(shell, term string, rows, cols uint16) (terminal.Pty, error)

// TerminalHandler owns the WebSocket endpoint that bridges clients to
// shells.
type TerminalHandler struct {
	cfg   *config.Config
	spawn SpawnFunc
}

// NewTerminalHandler creates a terminal handler backed by real ptys.
func NewTerminalHandler(cfg *config.Config) *TerminalHandler {
	return &TerminalHandler{
		cfg:   cfg,
		spawn: terminal.Spawn,
	}
}

// RegisterRoutes registers the terminal WebSocket route.
func (h *TerminalHandler) RegisterRoutes(app *fiber.App) {
	app.Get("/ws", h.HandleWebSocket)
}

// HandleWebSocket upgrades the request and hands the connection off to a
// session bridge.
func (h *TerminalHandler) HandleWebSocket(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return websocket.New(h.handleConnection)(c)
	}
	return fiber.ErrUpgradeRequired
}

func (h *TerminalHandler) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	if !h.authorize(conn) {
		return
	}

	pty, err := h.spawn(h.cfg.Shell, h.cfg.Term, terminal.DefaultRows, terminal.DefaultCols)
	if err != nil {
		logger.Errorf("❌ %v", err)
		return
	}

	id := uuid.New().String()
	logger.Infof("🖥️  New terminal session %s from %s", id, conn.IP())

	services.NewBridge(id, pty, conn).Run()

	logger.Infof("👋 Terminal session %s closed", id)
}

// authorize validates the shared secret after the upgrade. Rejections are
// written in-band as plain text so the terminal widget on the other end has
// something to render; the handshake itself always succeeds.
func (h *TerminalHandler) authorize(conn *websocket.Conn) bool {
	if h.cfg.Token != "" && extractToken(conn) == h.cfg.Token {
		return true
	}

	logger.Warnf("🚫 Rejected terminal connection from %s", conn.IP())
	if err := conn.WriteMessage(websocket.TextMessage, []byte(authRejection)); err != nil {
		logger.Debugf("Failed to write rejection notice: %v", err)
	}
	return false
}
