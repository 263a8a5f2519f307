package app

import (
	"github.com/patcon/polis-media-session-test-app/internal/session"
	"github.com/patcon/polis-media-session-test-app/internal/tracker"
)

// SnapshotMsg carries the runner's latest state.
type SnapshotMsg struct {
	Snapshot session.Snapshot
}

// PlaybackEndedMsg is sent once the runner has stopped.
type PlaybackEndedMsg struct{}

// VoteResultMsg reports the outcome of a keyboard vote.
type VoteResultMsg struct {
	Kind     tracker.Kind
	Response tracker.Response
	Accepted bool
}

// TransportErrorMsg is sent when a pause or seek command fails.
type TransportErrorMsg struct {
	Err error
}

// MediaKeysMsg reports the result of toggling hardware actions.
type MediaKeysMsg struct {
	On  bool
	Err error
}

// ClearTransientErrorMsg clears a transient error after a timeout.
type ClearTransientErrorMsg struct{}
