// Package db provides read-only SQLite access to conversation timelines.
package db

import "time"

// Conversation is a recorded discussion whose audio the statements follow.
type Conversation struct {
	ID        string
	Topic     string
	MediaPath string
	CreatedAt time.Time
}

// Statement is a statement row with its position in the recording.
type Statement struct {
	ID             string
	ConversationID string
	Text           string
	Timecode       float64 // seconds from the start of the media
	CreatedAt      time.Time
}
