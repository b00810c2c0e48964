// Package logger wraps zerolog behind a small package-level API so the rest
// of the codebase never touches zerolog configuration directly.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var Logger zerolog.Logger

type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

func init() {
	Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// Configure sets up the global logger. Dev mode switches from JSON lines to
// a pretty console writer.
func Configure(level LogLevel, dev bool) {
	var zeroLevel zerolog.Level
	switch level {
	case LevelDebug:
		zeroLevel = zerolog.DebugLevel
	case LevelWarn:
		zeroLevel = zerolog.WarnLevel
	case LevelError:
		zeroLevel = zerolog.ErrorLevel
	default:
		zeroLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(zeroLevel)

	var writer io.Writer = os.Stderr
	if dev {
		writer = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}
	}

	Logger = zerolog.New(writer).With().Timestamp().Logger()
	log.Logger = Logger
}

// GetLogLevelFromEnv determines the log level from the DEBUG environment
// variable. Dev mode defaults to debug unless DEBUG is explicitly false.
func GetLogLevelFromEnv(dev bool) LogLevel {
	debug := strings.ToLower(os.Getenv("DEBUG"))
	if dev {
		if debug == "false" || debug == "0" {
			return LevelInfo
		}
		return LevelDebug
	}
	if debug == "true" || debug == "1" {
		return LevelDebug
	}
	return LevelInfo
}

// WithSession returns a logger scoped to one terminal session. Every line a
// session bridge emits carries its id.
func WithSession(id string) zerolog.Logger {
	return Logger.With().Str("session", id).Logger()
}

func Debug(msg string) {
	Logger.Debug().Msg(msg)
}

func Debugf(format string, args ...interface{}) {
	Logger.Debug().Msgf(format, args...)
}

func Info(msg string) {
	Logger.Info().Msg(msg)
}

func Infof(format string, args ...interface{}) {
	Logger.Info().Msgf(format, args...)
}

func Warnf(format string, args ...interface{}) {
	Logger.Warn().Msgf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	Logger.Error().Msgf(format, args...)
}
