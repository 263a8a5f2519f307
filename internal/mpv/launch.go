package mpv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"
)

// LaunchConfig describes how to start mpv.
type LaunchConfig struct {
	Command     string // defaults to "mpv"
	SocketPath  string // defaults to SocketPath()
	Media       string
	StartPaused bool
	ExtraArgs   []string
	ReadyWait   time.Duration // how long to wait for the socket, default 5s
}

// Process is a running mpv started by Launch.
type Process struct {
	SocketPath string

	process *os.Process
	stderr  *bytes.Buffer
	waitErr <-chan error
	exited  chan struct{}

	stopOnce sync.Once
	stopErr  error
}

// Launch starts mpv with an IPC server and waits until its socket accepts
// connections.
func Launch(ctx context.Context, cfg LaunchConfig) (*Process, error) {
	if cfg.Command == "" {
		cfg.Command = "mpv"
	}
	if cfg.SocketPath == "" {
		cfg.SocketPath = SocketPath()
	}
	if cfg.ReadyWait <= 0 {
		cfg.ReadyWait = 5 * time.Second
	}
	if cfg.Media == "" {
		return nil, errors.New("no media to play")
	}

	// A stale socket from a previous run would look ready immediately.
	_ = os.Remove(cfg.SocketPath)

	args := []string{
		"--no-video",
		"--no-terminal",
		"--idle=no",
		"--input-ipc-server=" + cfg.SocketPath,
	}
	if cfg.StartPaused {
		args = append(args, "--pause")
	}
	args = append(args, cfg.ExtraArgs...)
	args = append(args, "--", cfg.Media)

	cmd := exec.CommandContext(ctx, cfg.Command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start mpv: %w", err)
	}

	waitErr := make(chan error, 1)
	exited := make(chan struct{})
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
		close(exited)
	}()

	p := &Process{
		SocketPath: cfg.SocketPath,
		process:    cmd.Process,
		stderr:     &stderr,
		waitErr:    waitErr,
		exited:     exited,
	}

	deadline := time.NewTimer(cfg.ReadyWait)
	defer deadline.Stop()
	poll := time.NewTicker(50 * time.Millisecond)
	defer poll.Stop()

	for {
		select {
		case err := <-waitErr:
			if err != nil {
				return nil, fmt.Errorf("mpv exited before playback started: %w: %s", err, trimSpace(stderr.String()))
			}
			return nil, errors.New("mpv exited before playback started")
		case <-poll.C:
			if c, err := Connect(cfg.SocketPath); err == nil {
				c.Close()
				return p, nil
			}
		case <-deadline.C:
			_ = p.Stop()
			return nil, fmt.Errorf("mpv socket %s not ready after %s", cfg.SocketPath, cfg.ReadyWait)
		case <-ctx.Done():
			_ = p.Stop()
			return nil, ctx.Err()
		}
	}
}

// Exited is closed when the process has exited.
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// Stop interrupts mpv, killing it if it does not exit promptly. Safe to call
// more than once.
func (p *Process) Stop() error {
	p.stopOnce.Do(func() {
		if p.process != nil {
			_ = p.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-p.waitErr:
			if ok {
				p.stopErr = normalizeStopErr(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if p.process != nil {
				_ = p.process.Kill()
			}
			err, ok := <-p.waitErr
			if ok {
				p.stopErr = normalizeStopErr(err)
			}
		}

		if p.stopErr != nil && p.stderr.Len() > 0 {
			p.stopErr = fmt.Errorf("%w: %s", p.stopErr, trimSpace(p.stderr.String()))
		}
		_ = os.Remove(p.SocketPath)
	})

	return p.stopErr
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func trimSpace(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}
