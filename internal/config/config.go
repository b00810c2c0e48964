// Package config holds the process-wide configuration. It is resolved once
// at startup (defaults, then an optional YAML file, then TERMGATE_*
// environment variables, then flags) and passed to the pieces that need it;
// nothing reads configuration from globals afterwards.
package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"github.com/termgate/termgate/internal/terminal"
)

// envPrefix makes envconfig look at TERMGATE_HOST, TERMGATE_PORT, and so on.
const envPrefix = "termgate"

type Config struct {
	Host  string `yaml:"host"`
	Port  int    `yaml:"port"`
	Shell string `yaml:"shell"`
	Token string `yaml:"token"`
	Term  string `yaml:"term"`
	Dev   bool   `yaml:"dev"`
}

func Default() *Config {
	return &Config{
		Host:  "127.0.0.1",
		Port:  8765,
		Shell: DefaultShell(),
		Term:  terminal.DefaultTerm,
	}
}

// Load resolves the configuration. An explicit path must exist; with an
// empty path the default file is used only when present.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if candidate := DefaultPath(); candidate != "" {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	return cfg, nil
}

// DefaultPath returns ~/.termgate.yaml, or "" when the home directory is
// unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".termgate.yaml")
}

// EnsureToken generates a random URL-safe token when none is configured and
// reports whether it did. A generated token only lives for this process, so
// the caller should surface it to the user.
func (c *Config) EnsureToken() (bool, error) {
	if c.Token != "" {
		return false, nil
	}
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return false, fmt.Errorf("generate token: %w", err)
	}
	c.Token = base64.RawURLEncoding.EncodeToString(buf)
	return true, nil
}

// Addr returns the host:port the server binds to.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// URL returns the browser-ready address including the access token.
func (c *Config) URL() string {
	return fmt.Sprintf("http://%s/?token=%s", c.Addr(), c.Token)
}

// DefaultShell picks the shell to spawn when none is configured: $SHELL
// falling back to /bin/bash, or %COMSPEC% falling back to cmd.exe on
// Windows.
func DefaultShell() string {
	if runtime.GOOS == "windows" {
		if comspec := os.Getenv("COMSPEC"); comspec != "" {
			return comspec
		}
		return "cmd.exe"
	}
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	return "/bin/bash"
}
