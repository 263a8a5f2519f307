// Package config loads player settings from .env, POLIS_* environment
// variables and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	Media        string        `env:"POLIS_MEDIA"`
	Statements   string        `env:"POLIS_STATEMENTS"`
	Conversation string        `env:"POLIS_CONVERSATION"`
	Socket       string        `env:"POLIS_MPV_SOCKET"`
	MPVCommand   string        `env:"POLIS_MPV" default:"mpv"`
	Headless     bool          `env:"POLIS_HEADLESS" default:"false"`
	MediaKeys    bool          `env:"POLIS_MEDIA_KEYS" default:"true"`
	MPRISName    string        `env:"POLIS_MPRIS_NAME" default:"polis"`
	Grace        time.Duration `env:"POLIS_GRACE" default:"1s"`
	LogLevel     string        `env:"POLIS_LOG_LEVEL" default:"info"`
	LogFormat    string        `env:"POLIS_LOG_FORMAT" default:"text"`
	LogFile      string        `env:"POLIS_LOG_FILE"`
	MetricsAddr  string        `env:"POLIS_METRICS_ADDR"`
}

// Load reads .env and the environment, then applies args. The first
// positional argument is the media file.
func Load(args []string) (*Config, error) {
	var cfg Config
	if err := loadEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.parseFlags(args); err != nil {
		return nil, err
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadEnv(cfg any) error {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}
	if err := env.Load(cfg, nil); err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}
	return nil
}

func (cfg *Config) parseFlags(args []string) error {
	fs := flag.NewFlagSet("polis-player", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.Statements, "statements", cfg.Statements, "statement timeline (.json, .db, .sqlite)")
	fs.StringVar(&cfg.Conversation, "conversation", cfg.Conversation, "conversation id inside a SQLite timeline")
	fs.StringVar(&cfg.Socket, "socket", cfg.Socket, "attach to an mpv already listening on this IPC socket")
	fs.StringVar(&cfg.MPVCommand, "mpv", cfg.MPVCommand, "mpv binary")
	fs.BoolVar(&cfg.Headless, "headless", cfg.Headless, "run without the terminal UI")
	fs.BoolVar(&cfg.MediaKeys, "media-keys", cfg.MediaKeys, "bind hardware media keys to votes at start")
	fs.StringVar(&cfg.MPRISName, "mpris-name", cfg.MPRISName, "MPRIS bus name suffix")
	fs.DurationVar(&cfg.Grace, "grace", cfg.Grace, "ignore votes this long after a statement appears")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "text or json")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "append logs to this file")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve Prometheus metrics on this address")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	switch fs.NArg() {
	case 0:
	case 1:
		cfg.Media = fs.Arg(0)
	default:
		return fmt.Errorf("expected one media file, got %d arguments", fs.NArg())
	}
	return nil
}

func validate(cfg *Config) error {
	if cfg.Media == "" && cfg.Socket == "" {
		return errors.New("a media file or -socket is required")
	}
	if cfg.Grace <= 0 {
		return fmt.Errorf("grace must be positive, got %s", cfg.Grace)
	}
	if err := validateLogging(cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}
	if cfg.MPRISName == "" {
		return errors.New("mpris name must not be empty")
	}
	return nil
}

func validateLogging(level, format string) error {
	switch level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", level)
	}
	switch format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	return nil
}

// MCP configures the timeline server. It shares the POLIS_* variables of the
// player where they mean the same thing.
type MCP struct {
	Statements   string  `env:"POLIS_STATEMENTS"`
	Conversation string  `env:"POLIS_CONVERSATION"`
	Duration     float64 `env:"POLIS_DURATION" default:"0"`
	LogLevel     string  `env:"POLIS_LOG_LEVEL" default:"info"`
	LogFormat    string  `env:"POLIS_LOG_FORMAT" default:"text"`
}

// LoadMCP reads .env and the environment, then applies args.
func LoadMCP(args []string) (*MCP, error) {
	var cfg MCP
	if err := loadEnv(&cfg); err != nil {
		return nil, err
	}

	fs := flag.NewFlagSet("polis-mcp", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.Statements, "statements", cfg.Statements, "statement timeline (.json, .db, .sqlite); built-in demo when empty")
	fs.StringVar(&cfg.Conversation, "conversation", cfg.Conversation, "conversation id inside a SQLite timeline")
	fs.Float64Var(&cfg.Duration, "duration", cfg.Duration, "media length in seconds")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "text or json")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	if cfg.Duration < 0 {
		return nil, fmt.Errorf("duration must not be negative, got %v", cfg.Duration)
	}
	if err := validateLogging(cfg.LogLevel, cfg.LogFormat); err != nil {
		return nil, err
	}
	return &cfg, nil
}
