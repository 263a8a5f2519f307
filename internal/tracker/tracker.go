package tracker

import "sort"

// Tracker holds the statement timeline, the voting window for the active
// statement and the responses recorded so far.
type Tracker struct {
	statements []Statement
	duration   float64

	responses map[string]Response

	hasActive bool
	activeID  string
	graceOpen bool
	epoch     uint64

	last Frame
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithDuration sets the media duration in seconds.
func WithDuration(seconds float64) Option {
	return func(t *Tracker) { t.duration = seconds }
}

// New creates a Tracker over a copy of statements sorted by timecode.
func New(statements []Statement, opts ...Option) *Tracker {
	sorted := make([]Statement, len(statements))
	copy(sorted, statements)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timecode < sorted[j].Timecode
	})

	t := &Tracker{
		statements: sorted,
		responses:  make(map[string]Response),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.last = t.frame(0, nil, nil)
	return t
}

// Statements returns the timeline. Callers must not modify it.
func (t *Tracker) Statements() []Statement {
	return t.statements
}

// SetDuration updates the media duration, typically once the engine reports it.
func (t *Tracker) SetDuration(seconds float64) {
	if seconds < 0 {
		seconds = 0
	}
	t.duration = seconds
}

// Duration returns the media duration in seconds, 0 if unknown.
func (t *Tracker) Duration() float64 {
	return t.duration
}

// Observe re-derives the playback state from position. The active statement
// is resolved from scratch on every call, so seeks in either direction
// produce the same result as a monotonic pass.
//
// When the active statement changes (by id), the voting window opens and the
// returned frame has Activated set with a fresh Epoch. The driver is expected
// to call ExpireGrace with that epoch once the grace delay has elapsed.
func (t *Tracker) Observe(position float64) Frame {
	active := ResolveActive(position, t.statements)
	next := NextAfter(position, t.statements)

	activated := false
	switch {
	case active == nil:
		if t.hasActive {
			t.hasActive = false
			t.activeID = ""
			t.epoch++
			t.graceOpen = false
		}
	case !t.hasActive || active.ID != t.activeID:
		t.hasActive = true
		t.activeID = active.ID
		t.epoch++
		t.graceOpen = true
		activated = true
	}

	f := t.frame(position, active, next)
	f.Activated = activated
	t.last = f
	return f
}

// ExpireGrace closes the voting window opened at epoch. Expiries for an
// earlier activation are ignored and report false.
func (t *Tracker) ExpireGrace(epoch uint64) bool {
	if epoch != t.epoch || !t.graceOpen {
		return false
	}
	t.graceOpen = false
	t.last.GraceOpen = false
	return true
}

// GraceOpen reports whether votes are currently held back.
func (t *Tracker) GraceOpen() bool {
	return t.graceOpen
}

// Epoch identifies the current activation.
func (t *Tracker) Epoch() uint64 {
	return t.epoch
}

// Record stores kind as the response to the active statement. It is a no-op
// returning false while the grace window is open or no statement is active.
func (t *Tracker) Record(kind Kind) (Response, bool) {
	return t.RecordFor(t.activeID, kind)
}

// RecordFor stores kind for statementID, which must be the active statement.
// A previous response for the same statement is overwritten.
func (t *Tracker) RecordFor(statementID string, kind Kind) (Response, bool) {
	if !t.hasActive || statementID != t.activeID || t.graceOpen {
		return Response{}, false
	}
	if _, ok := presentation[kind]; !ok {
		return Response{}, false
	}

	r := newResponse(statementID, kind)
	t.responses[statementID] = r

	t.last.Response = &r
	t.last.Label = r.Label
	t.last.Artwork = r.Artwork
	return r, true
}

// Response returns the stored response for a statement.
func (t *Tracker) Response(statementID string) (Response, bool) {
	r, ok := t.responses[statementID]
	return r, ok
}

// Responses returns every stored response in timeline order.
func (t *Tracker) Responses() []Response {
	out := make([]Response, 0, len(t.responses))
	for _, s := range t.statements {
		if r, ok := t.responses[s.ID]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Current returns the most recent frame, including responses recorded since.
func (t *Tracker) Current() Frame {
	return t.last
}

func (t *Tracker) frame(position float64, active, next *Statement) Frame {
	f := Frame{
		Position:         position,
		Duration:         t.duration,
		Active:           active,
		Next:             next,
		Label:            AwaitingLabel,
		Artwork:          AwaitingArtwork,
		SecondsRemaining: Countdown(position, next, t.duration),
		Progress:         Progress(position, active, next, t.duration),
		GraceOpen:        t.graceOpen,
		Epoch:            t.epoch,
	}
	if active != nil {
		if r, ok := t.responses[active.ID]; ok {
			f.Response = &r
			f.Label = r.Label
			f.Artwork = r.Artwork
		}
	}
	return f
}
