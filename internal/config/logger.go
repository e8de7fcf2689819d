package config

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/masq"
	"github.com/spf13/cobra"
)

// Logger holds logger configuration
type Logger struct {
	Level string
	JSON  bool
}

// Bind registers the logger flags on cmd. Defaults come from
// ASSETSYNC_LOG_LEVEL and ASSETSYNC_LOG_JSON.
func (c *Logger) Bind(cmd *cobra.Command) {
	level := os.Getenv("ASSETSYNC_LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	asJSON, _ := strconv.ParseBool(os.Getenv("ASSETSYNC_LOG_JSON"))

	cmd.PersistentFlags().StringVar(&c.Level, "log-level", level, "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&c.JSON, "log-json", asJSON, "Output logs in JSON format")
}

// Configure configures and returns a logger writing to w. Attributes tagged
// `masq:"secret"` are redacted.
func (c *Logger) Configure(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	switch strings.ToLower(c.Level) {
	case "debug":
		level = slog.LevelDebug
	case "", "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, goerr.New("invalid log level", goerr.V("level", c.Level))
	}

	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: masq.New(masq.WithTag("secret")),
	}

	var handler slog.Handler
	if c.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler), nil
}
