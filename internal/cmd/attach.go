package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var attachCmd = &cobra.Command{
	Use:   "attach",
	Short: "🔌 Attach to a running server from this terminal",
	Long: `# 🔌 Attach

**Connect to a running termgate server** and take over the current terminal.

The token is read from **--token** or **TERMGATE_TOKEN**. Exit the remote
shell to leave.`,
	RunE: runAttach,
}

var (
	attachURL   string
	attachToken string
)

func init() {
	rootCmd.AddCommand(attachCmd)

	attachCmd.Flags().StringVarP(&attachURL, "url", "u", "http://127.0.0.1:8765", "Server base URL")
	attachCmd.Flags().StringVar(&attachToken, "token", "", "Connection token (defaults to $TERMGATE_TOKEN)")
}

type resizeMessage struct {
	Type string `json:"type"`
	Rows int    `json:"rows"`
	Cols int    `json:"cols"`
}

func runAttach(cmd *cobra.Command, args []string) error {
	token := attachToken
	if token == "" {
		token = os.Getenv("TERMGATE_TOKEN")
	}

	u, err := url.Parse(attachURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", attachURL, err)
	}
	defer conn.Close()

	stdinFd := int(os.Stdin.Fd())
	isTTY := term.IsTerminal(stdinFd)

	if isTTY {
		oldState, err := term.MakeRaw(stdinFd)
		if err != nil {
			return fmt.Errorf("failed to make stdin raw: %w", err)
		}
		defer func() {
			if err := term.Restore(stdinFd, oldState); err != nil {
				fmt.Fprintf(os.Stderr, "attach: failed to restore terminal: %v\n", err)
			}
		}()
	}

	// Gorilla connections allow one concurrent writer; input and resize both
	// send, so writes go through a mutex.
	var writeMu sync.Mutex
	send := func(messageType int, data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteMessage(messageType, data)
	}

	sendSize := func() {
		if !isTTY {
			return
		}
		cols, rows, err := term.GetSize(stdinFd)
		if err != nil {
			return
		}
		data, err := json.Marshal(resizeMessage{Type: "resize", Rows: rows, Cols: cols})
		if err != nil {
			return
		}
		_ = send(websocket.TextMessage, data)
	}
	sendSize()

	stopResizeWatch := watchResize(sendSize)
	defer stopResizeWatch()

	// Keystrokes go up as binary frames.
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				if sendErr := send(websocket.BinaryMessage, buf[:n]); sendErr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("connection lost: %w", err)
		}

		switch messageType {
		case websocket.BinaryMessage:
			if _, err := os.Stdout.Write(message); err != nil {
				return err
			}
		case websocket.TextMessage:
			var notice struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(message, &notice); err == nil && notice.Type == "disconnect" {
				fmt.Fprint(os.Stdout, "\r\nSession ended.\r\n")
				return nil
			}
			// Anything else textual from the server is a rejection notice.
			return fmt.Errorf("server refused the connection: %s", strings.TrimSpace(string(message)))
		}
	}
}
