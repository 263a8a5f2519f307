// Command polis-player plays a recording through mpv and collects one
// agree/disagree/pass response per statement from the keyboard or media keys.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/patcon/polis-media-session-test-app/internal/app"
	"github.com/patcon/polis-media-session-test-app/internal/config"
	"github.com/patcon/polis-media-session-test-app/internal/logging"
	"github.com/patcon/polis-media-session-test-app/internal/metrics"
	"github.com/patcon/polis-media-session-test-app/internal/mpv"
	"github.com/patcon/polis-media-session-test-app/internal/nowplaying"
	"github.com/patcon/polis-media-session-test-app/internal/session"
	"github.com/patcon/polis-media-session-test-app/internal/statements"
	"github.com/patcon/polis-media-session-test-app/internal/tracker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "polis-player: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}

	out, closeLog, err := logging.Output(cfg.LogFile, !cfg.Headless)
	if err != nil {
		return err
	}
	defer closeLog()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, out)
	logger.Info("Player starting", "media", cfg.Media, "headless", cfg.Headless)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	timeline := loadTimeline(cfg, logger)

	socket, cleanup, err := startEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	client, err := mpv.Connect(socket)
	if err != nil {
		return err
	}
	defer client.Close()

	evClient, err := mpv.Connect(socket)
	if err != nil {
		return err
	}
	defer evClient.Close()

	events, err := mpv.Events(ctx, evClient)
	if err != nil {
		return fmt.Errorf("subscribe to mpv events: %w", err)
	}

	surface := openSurface(cfg, logger)
	defer surface.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, reg, logger); err != nil {
				logger.Error("Metrics server stopped", "error", err)
			}
		}()
	}

	runner := session.NewRunner(
		session.Config{GracePeriod: cfg.Grace, MediaKeys: cfg.MediaKeys},
		tracker.New(timeline),
		client,
		nowplaying.NewProjector(surface, logger),
		session.WithMetrics(m),
		session.WithLogger(logger),
	)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	runErr := make(chan error, 1)
	go func() { runErr <- runner.Run(runCtx, events) }()

	if cfg.Headless {
		return finish(<-runErr, logger)
	}

	p := tea.NewProgram(app.New(runner, client, timeline, mediaName(cfg)), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run ui: %w", err)
	}

	cancelRun()
	return finish(<-runErr, logger)
}

func loadTimeline(cfg *config.Config, logger *slog.Logger) []tracker.Statement {
	if cfg.Statements == "" {
		logger.Info("No statement file, using the built-in timeline")
		return statements.Default()
	}
	return statements.LoadOrEmpty(cfg.Statements, cfg.Conversation, logger)
}

// startEngine launches mpv for cfg.Media unless cfg.Socket points at one
// that is already running.
func startEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger) (string, func(), error) {
	if cfg.Socket != "" {
		return cfg.Socket, func() {}, nil
	}

	proc, err := mpv.Launch(ctx, mpv.LaunchConfig{
		Command: cfg.MPVCommand,
		Media:   cfg.Media,
	})
	if err != nil {
		return "", nil, err
	}
	logger.Info("mpv started", "socket", proc.SocketPath)

	return proc.SocketPath, func() {
		if err := proc.Stop(); err != nil {
			logger.Warn("mpv stop", "error", err)
		}
	}, nil
}

func openSurface(cfg *config.Config, logger *slog.Logger) nowplaying.Surface {
	surface, err := nowplaying.NewMPRIS(cfg.MPRISName)
	if err != nil {
		logger.Warn("Now playing surface unavailable, continuing without", "error", err)
		return nowplaying.Nop{}
	}
	return surface
}

func mediaName(cfg *config.Config) string {
	if cfg.Media != "" {
		return filepath.Base(cfg.Media)
	}
	return cfg.Socket
}

func finish(err error, logger *slog.Logger) error {
	switch {
	case err == nil:
		logger.Info("Playback ended")
		return nil
	case errors.Is(err, context.Canceled):
		logger.Info("Player stopped")
		return nil
	case errors.Is(err, session.ErrEventsClosed):
		logger.Info("mpv went away")
		return nil
	}
	return err
}
