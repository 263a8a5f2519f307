// Package session drives a tracker from a playback engine on a single
// goroutine: position sampling, the once-a-second now-playing refresh, the
// grace timer and votes all run through one select loop.
package session

// EventKind identifies a playback transition reported by the engine.
type EventKind int

const (
	Paused EventKind = iota
	Resumed
	Seeked // a seek has completed and the position is settled
	Ended
)

func (k EventKind) String() string {
	switch k {
	case Paused:
		return "paused"
	case Resumed:
		return "resumed"
	case Seeked:
		return "seeked"
	case Ended:
		return "ended"
	}
	return "unknown"
}

// PlaybackEvent is a transition from the playback engine.
type PlaybackEvent struct {
	Kind EventKind
}

// Player reports the playback position signal. Both calls may block on I/O.
type Player interface {
	Position() (float64, error)
	Duration() (float64, error)
}
