package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/termgate/termgate/internal/assets"
)

// ServeTerminalPage serves the embedded single-page terminal client.
func ServeTerminalPage(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(assets.TerminalPage())
}

// HealthCheck reports server liveness.
func HealthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}
