package nowplaying

import (
	"fmt"
	"log/slog"

	"github.com/patcon/polis-media-session-test-app/internal/tracker"
)

// IdleTitle is shown while no statement is active.
const IdleTitle = "Waiting for the first statement"

// FormatSubtitle renders "[m:ss] label".
func FormatSubtitle(secondsRemaining int, label string) string {
	if secondsRemaining < 0 {
		secondsRemaining = 0
	}
	return fmt.Sprintf("[%d:%02d] %s", secondsRemaining/60, secondsRemaining%60, label)
}

// MetadataFor builds the surface metadata for a frame.
func MetadataFor(f tracker.Frame, playing bool) Metadata {
	title := f.Title()
	if title == "" {
		title = IdleTitle
	}
	return Metadata{
		Title:    title,
		Subtitle: FormatSubtitle(f.SecondsRemaining, f.Label),
		Artwork:  f.Artwork,
		Playing:  playing,
	}
}

// Projector pushes frames to a Surface, skipping pushes that would not change
// what the surface shows. A nil Surface turns every call into a no-op.
type Projector struct {
	surface Surface
	logger  *slog.Logger

	last    Metadata
	pushed  bool
	enabled bool
}

// NewProjector creates a Projector writing to surface.
func NewProjector(surface Surface, logger *slog.Logger) *Projector {
	if surface == nil {
		surface = Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Projector{surface: surface, logger: logger}
}

// Push updates the surface if the metadata for f differs from the last push.
// It reports whether a write happened.
func (p *Projector) Push(f tracker.Frame, playing bool) bool {
	md := MetadataFor(f, playing)
	if p.pushed && md == p.last {
		return false
	}
	if err := p.surface.SetMetadata(md); err != nil {
		p.logger.Warn("now playing update failed", "error", err)
		return false
	}
	p.last = md
	p.pushed = true
	return true
}

// Last returns the most recent successful push.
func (p *Projector) Last() Metadata {
	return p.last
}

// EnableActions binds every hardware slot to a.
func (p *Projector) EnableActions(a Actions) error {
	if err := p.surface.Bind(a); err != nil {
		return fmt.Errorf("bind media actions: %w", err)
	}
	p.enabled = true
	p.logger.Info("media key bindings enabled")
	return nil
}

// DisableActions removes every hardware slot binding. Calling it while
// already disabled is a no-op.
func (p *Projector) DisableActions() error {
	if !p.enabled {
		return nil
	}
	if err := p.surface.Unbind(); err != nil {
		return fmt.Errorf("unbind media actions: %w", err)
	}
	p.enabled = false
	p.logger.Info("media key bindings disabled")
	return nil
}

// Enabled reports whether hardware actions are bound.
func (p *Projector) Enabled() bool {
	return p.enabled
}
