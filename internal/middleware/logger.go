package middleware

import (
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/mattn/go-isatty"
)

// RequestLogger logs HTTP requests. Health probes are skipped so a poller
// doesn't drown the log; WebSocket upgrades produce their line when the
// session ends, and the handler logs session start separately.
func RequestLogger() fiber.Handler {
	return logger.New(logger.Config{
		Format:        "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path} | ${error}\n",
		DisableColors: !colorsEnabled(),
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/healthz"
		},
	})
}

func colorsEnabled() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) && os.Getenv("NO_COLOR") != "1" && os.Getenv("TERM") != "dumb"
}
