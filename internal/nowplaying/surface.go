// Package nowplaying mirrors the active statement onto the platform "now
// playing" surface and routes the surface's hardware media actions back to
// votes.
package nowplaying

import (
	"sync"

	"github.com/patcon/polis-media-session-test-app/internal/tracker"
)

// Metadata is what the surface shows.
type Metadata struct {
	Title    string
	Subtitle string
	Artwork  string
	Playing  bool
}

// Actions receives the three semantic hardware actions.
type Actions interface {
	Primary()
	Secondary()
	Tertiary()
}

// Surface is a platform now-playing integration. Bind installs all four
// action slots at once; Unbind removes them.
type Surface interface {
	SetMetadata(Metadata) error
	Bind(Actions) error
	Unbind() error
	Close() error
}

// Slot is a hardware action slot exposed by the platform.
type Slot string

const (
	SlotNextTrack     Slot = "nexttrack"
	SlotPreviousTrack Slot = "previoustrack"
	SlotPlay          Slot = "play"
	SlotPause         Slot = "pause"
)

// Slots lists every slot a surface binds.
var Slots = []Slot{SlotNextTrack, SlotPreviousTrack, SlotPlay, SlotPause}

// Dispatch invokes the action bound to slot. Play and pause both land on
// Tertiary.
func Dispatch(a Actions, slot Slot) {
	if a == nil {
		return
	}
	switch slot {
	case SlotNextTrack:
		a.Primary()
	case SlotPreviousTrack:
		a.Secondary()
	case SlotPlay, SlotPause:
		a.Tertiary()
	}
}

// VoteActions maps Primary to Agree, Secondary to Disagree and Tertiary to
// Pass.
type VoteActions func(tracker.Kind)

func (v VoteActions) Primary()   { v(tracker.Agree) }
func (v VoteActions) Secondary() { v(tracker.Disagree) }
func (v VoteActions) Tertiary()  { v(tracker.Pass) }

// Nop is used when no platform surface is available.
type Nop struct{}

func (Nop) SetMetadata(Metadata) error { return nil }
func (Nop) Bind(Actions) error         { return nil }
func (Nop) Unbind() error              { return nil }
func (Nop) Close() error               { return nil }

// Recorder is an in-memory Surface that keeps every metadata push.
type Recorder struct {
	mu       sync.Mutex
	history  []Metadata
	actions  Actions
	bindings int
}

func (r *Recorder) SetMetadata(md Metadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, md)
	return nil
}

func (r *Recorder) Bind(a Actions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = a
	r.bindings = len(Slots)
	return nil
}

func (r *Recorder) Unbind() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = nil
	r.bindings = 0
	return nil
}

func (r *Recorder) Close() error { return r.Unbind() }

// Press simulates a hardware action on slot.
func (r *Recorder) Press(slot Slot) {
	r.mu.Lock()
	a := r.actions
	r.mu.Unlock()
	Dispatch(a, slot)
}

// Bindings returns how many slots are currently bound.
func (r *Recorder) Bindings() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bindings
}

// History returns a copy of every pushed metadata value.
func (r *Recorder) History() []Metadata {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Metadata, len(r.history))
	copy(out, r.history)
	return out
}

// Last returns the most recent push.
func (r *Recorder) Last() (Metadata, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.history) == 0 {
		return Metadata{}, false
	}
	return r.history[len(r.history)-1], true
}
