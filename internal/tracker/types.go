// Package tracker maps a moving playback position onto a timeline of
// statements and keeps one listener response per statement.
//
// The package is single-owner: nothing in it starts goroutines or timers.
// Drivers sample the position, call Observe, and deliver grace expiries back
// through ExpireGrace.
package tracker

import (
	"fmt"
	"strings"
)

// Statement is a timestamped prompt the listener responds to.
type Statement struct {
	ID       string
	Text     string
	Timecode float64 // seconds
}

// Kind is the listener's vote on a statement.
type Kind string

const (
	Agree    Kind = "agree"
	Disagree Kind = "disagree"
	Pass     Kind = "pass"
)

// ParseKind accepts agree, disagree or pass in any case.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case Agree:
		return Agree, nil
	case Disagree:
		return Disagree, nil
	case Pass:
		return Pass, nil
	}
	return "", fmt.Errorf("unknown response kind %q", s)
}

// Response is the stored vote for one statement.
type Response struct {
	StatementID string
	Kind        Kind
	Label       string
	Artwork     string
}

// Display labels and artwork, fixed per kind.
const (
	AwaitingLabel   = "(awaiting response)"
	AwaitingArtwork = "https://picsum.photos/seed/unseen/512?blur=8"
)

var presentation = map[Kind]struct{ label, artwork string }{
	Agree:    {"✅ You agreed", "https://picsum.photos/seed/agree/512"},
	Disagree: {"❌ You disagreed", "https://picsum.photos/seed/disagree/512?grayscale"},
	Pass:     {"⏸️ You passed", "https://picsum.photos/seed/pass/512?grayscale&blur=4"},
}

// Label returns the display text for a kind.
func (k Kind) Label() string {
	return presentation[k].label
}

// Artwork returns the image reference for a kind.
func (k Kind) Artwork() string {
	return presentation[k].artwork
}

func newResponse(statementID string, kind Kind) Response {
	p := presentation[kind]
	return Response{
		StatementID: statementID,
		Kind:        kind,
		Label:       p.label,
		Artwork:     p.artwork,
	}
}

// Frame is the playback state derived from one position sample.
type Frame struct {
	Position float64
	Duration float64

	Active   *Statement // nil before the first statement
	Next     *Statement // nil after the last statement
	Response *Response  // stored response for Active, if any

	Label   string
	Artwork string

	SecondsRemaining int
	Progress         float64

	GraceOpen bool
	Epoch     uint64
	Activated bool // this sample changed the active statement
}

// Title returns the statement text, or "" when nothing is active.
func (f Frame) Title() string {
	if f.Active == nil {
		return ""
	}
	return f.Active.Text
}

// CanVote reports whether a vote on this frame would be accepted.
func (f Frame) CanVote() bool {
	return f.Active != nil && !f.GraceOpen
}
