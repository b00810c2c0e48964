// Package assets embeds the browser terminal client.
package assets

import (
	_ "embed"
)

//go:embed terminal.html
var terminalPage []byte

// TerminalPage returns the single-page terminal client served at the root
// route.
func TerminalPage() []byte {
	return terminalPage
}
