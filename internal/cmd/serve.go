package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"

	"github.com/termgate/termgate/internal/config"
	"github.com/termgate/termgate/internal/handlers"
	"github.com/termgate/termgate/internal/logger"
	"github.com/termgate/termgate/internal/middleware"
	"github.com/termgate/termgate/internal/recovery"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "🚀 Start the terminal server",
	Long: `# 🚀 Serve

**Start the termgate server** and print its connection URL.

## 🔑 Authentication

Every connection must present the shared token. When no token is configured
(flag, config file, or **TERMGATE_TOKEN**), a random one is generated and
printed at startup.

## 📐 Terminal

Sessions start at **80x24** and follow the client window from there.`,
	RunE: runServe,
}

var (
	serveHost  string
	servePort  int
	serveShell string
	serveToken string
	configPath string
	serveDev   bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "Address to listen on (default 127.0.0.1)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default 8765)")
	serveCmd.Flags().StringVarP(&serveShell, "shell", "s", "", "Shell to spawn (default $SHELL)")
	serveCmd.Flags().StringVar(&serveToken, "token", "", "Shared connection token (generated when empty)")
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	serveCmd.Flags().BoolVar(&serveDev, "dev", false, "Enable development logging")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyServeFlags(cfg)

	logger.Configure(logger.GetLogLevelFromEnv(cfg.Dev), cfg.Dev)

	generated, err := cfg.EnsureToken()
	if err != nil {
		return fmt.Errorf("failed to generate connection token: %w", err)
	}
	if generated {
		logger.Info("🔑 Generated a connection token (set TERMGATE_TOKEN to pin one)")
	}

	app := fiber.New(fiber.Config{
		AppName:               "termgate",
		DisableStartupMessage: true,
	})

	app.Use(middleware.RequestLogger())

	app.Get("/", handlers.ServeTerminalPage)
	app.Get("/healthz", handlers.HealthCheck)
	handlers.NewTerminalHandler(cfg).RegisterRoutes(app)

	// Shut the listener down on SIGINT/SIGTERM so Listen returns cleanly.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	recovery.SafeGo("shutdown watcher", func() {
		<-sigChan
		logger.Info("🛑 Shutting down")
		_ = app.ShutdownWithTimeout(5 * time.Second)
	})

	printServeBanner(cfg)

	if err := app.Listen(cfg.Addr()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// applyServeFlags layers explicitly set flags over the loaded config.
func applyServeFlags(cfg *config.Config) {
	if serveHost != "" {
		cfg.Host = serveHost
	}
	if servePort != 0 {
		cfg.Port = servePort
	}
	if serveShell != "" {
		cfg.Shell = serveShell
	}
	if serveToken != "" {
		cfg.Token = serveToken
	}
	if serveDev {
		cfg.Dev = true
	}
}

func printServeBanner(cfg *config.Config) {
	urlStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("6"))
	mutedStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("8"))

	fmt.Printf("🖥️  termgate listening on %s\n", urlStyle.Render(cfg.URL()))
	fmt.Println(mutedStyle.Render("   Anyone with this URL gets a shell. Ctrl+C to stop."))
}
