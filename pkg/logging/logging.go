package logging

import (
	"errors"
	"log/slog"
	"os"
	"strings"
)

const (
	// KeyError is the key used for errors in log attributes.
	KeyError = "err"

	// KeyDal is the key used for the data access layer name.
	KeyDal = "dal"

	// KeyGuild is the key used for guild IDs.
	KeyGuild = "guild_id"

	// KeyUser is the key used for user IDs.
	KeyUser = "user_id"

	// KeyTicket is the key used for ticket IDs.
	KeyTicket = "ticket_id"

	// KeyChannel is the key used for channel IDs.
	KeyChannel = "channel_id"

	// KeyComponent is the key used to name the component that logged.
	KeyComponent = "component"
)

// EnvLogLevel is the environment variable for the log level.
const EnvLogLevel = `LOG_LEVEL`

// Name is the name of the application, used as the logger's app attribute.
type Name string

// Config is the configuration for the logger.
type Config struct {
	// appName is the name of the application.
	appName string

	// level is the minimum level that will be logged.
	level slog.Level
}

// NewConfig creates a new logging configuration. The level is read from LOG_LEVEL and defaults to debug.
func NewConfig(appName Name) *Config {
	return &Config{
		appName: string(appName),
		level:   parseLevel(os.Getenv(EnvLogLevel)),
	}
}

// CommonLogger creates the logger used throughout the application and sets it as the default.
func CommonLogger(c *Config) (*slog.Logger, error) {
	if c == nil {
		return nil, errors.New("logging config is nil")
	}
	if c.appName == "" {
		return nil, errors.New("app name is required")
	}

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
		Level:     c.level,
	})

	l := slog.New(h).With(slog.String("app", c.appName))
	slog.SetDefault(l)
	return l, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}
