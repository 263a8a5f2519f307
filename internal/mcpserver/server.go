// Package mcpserver exposes a statement timeline to MCP clients over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/patcon/polis-media-session-test-app/internal/tracker"
)

const version = "0.1.0"

// Timeline answers tool calls against a fixed set of statements.
type Timeline struct {
	statements []tracker.Statement
	duration   float64
	logger     *slog.Logger
}

// NewTimeline sorts a copy of statements. duration is the media length used
// when a call does not pass one; zero means unknown.
func NewTimeline(statements []tracker.Statement, duration float64, logger *slog.Logger) *Timeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Timeline{
		statements: tracker.New(statements).Statements(),
		duration:   duration,
		logger:     logger,
	}
}

// NewServer registers the timeline tools.
func NewServer(tl *Timeline) *server.MCPServer {
	s := server.NewMCPServer("polis-timeline", version, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool("list_statements",
		mcp.WithDescription("List every statement in the timeline in playback order, with its id, text and start time in seconds."),
	), tl.handleList)

	s.AddTool(mcp.NewTool("resolve_statement",
		mcp.WithDescription("Find the statement shown at a playback position, the one after it, the whole seconds until it changes and progress through the current span."),
		mcp.WithNumber("position",
			mcp.Required(),
			mcp.Description("Playback position in seconds"),
		),
		mcp.WithNumber("duration",
			mcp.Description("Media length in seconds, used after the last statement"),
		),
	), tl.handleResolve)

	return s
}

// Serve runs the server on stdin/stdout until the client disconnects.
func Serve(tl *Timeline) error {
	return server.ServeStdio(NewServer(tl))
}

// StatementJSON is a statement as returned to clients.
type StatementJSON struct {
	ID       string  `json:"id"`
	Text     string  `json:"text"`
	Timecode float64 `json:"timecode"`
}

// Resolution is the result of resolve_statement.
type Resolution struct {
	Position         float64        `json:"position"`
	Duration         float64        `json:"duration"`
	Active           *StatementJSON `json:"active"`
	Next             *StatementJSON `json:"next"`
	SecondsRemaining int            `json:"secondsRemaining"`
	Progress         float64        `json:"progress"`
}

func toJSON(s *tracker.Statement) *StatementJSON {
	if s == nil {
		return nil
	}
	return &StatementJSON{ID: s.ID, Text: s.Text, Timecode: s.Timecode}
}

// Resolve computes what the player would show at position.
func (tl *Timeline) Resolve(position, duration float64) Resolution {
	if duration <= 0 {
		duration = tl.duration
	}
	active := tracker.ResolveActive(position, tl.statements)
	next := tracker.NextAfter(position, tl.statements)
	return Resolution{
		Position:         position,
		Duration:         duration,
		Active:           toJSON(active),
		Next:             toJSON(next),
		SecondsRemaining: tracker.Countdown(position, next, duration),
		Progress:         tracker.Progress(position, active, next, duration),
	}
}

func (tl *Timeline) handleList(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out := make([]StatementJSON, 0, len(tl.statements))
	for i := range tl.statements {
		out = append(out, *toJSON(&tl.statements[i]))
	}
	return jsonResult(out)
}

func (tl *Timeline) handleResolve(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	position, err := req.RequireFloat("position")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if position < 0 {
		return mcp.NewToolResultError("position must not be negative"), nil
	}
	duration := req.GetFloat("duration", 0)

	res := tl.Resolve(position, duration)
	tl.logger.Debug("resolved statement", "position", position, "active", res.Active != nil)
	return jsonResult(res)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
