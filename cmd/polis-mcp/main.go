// Command polis-mcp serves a statement timeline to MCP clients over stdio.
package main

import (
	"fmt"
	"os"

	"github.com/patcon/polis-media-session-test-app/internal/config"
	"github.com/patcon/polis-media-session-test-app/internal/logging"
	"github.com/patcon/polis-media-session-test-app/internal/mcpserver"
	"github.com/patcon/polis-media-session-test-app/internal/statements"
	"github.com/patcon/polis-media-session-test-app/internal/tracker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "polis-mcp: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadMCP(os.Args[1:])
	if err != nil {
		return err
	}

	// stdout carries the protocol.
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	var timeline []tracker.Statement
	if cfg.Statements == "" {
		timeline = statements.Default()
	} else {
		timeline, err = statements.Load(cfg.Statements, cfg.Conversation)
		if err != nil {
			return err
		}
	}
	logger.Info("serving timeline", "statements", len(timeline))

	return mcpserver.Serve(mcpserver.NewTimeline(timeline, cfg.Duration, logger))
}
