// Package mpv talks to an mpv process over its JSON IPC socket. Commands and
// events are newline-delimited JSON in both directions.
package mpv

import "encoding/json"

// Command is sent to mpv.
type Command struct {
	Command   []any `json:"command"`
	RequestID int64 `json:"request_id,omitempty"`
}

// Response answers a Command. Error is "success" when the command worked.
type Response struct {
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error"`
	RequestID int64           `json:"request_id,omitempty"`
}

// OK reports whether mpv accepted the command.
func (r Response) OK() bool { return r.Error == "success" }

// Float decodes Data as a number.
func (r Response) Float() (float64, error) {
	var v float64
	err := json.Unmarshal(r.Data, &v)
	return v, err
}

// Event is streamed by mpv to every client.
type Event struct {
	Event  string          `json:"event"`
	ID     int64           `json:"id,omitempty"`
	Name   string          `json:"name,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Reason string          `json:"reason,omitempty"`
}

// Bool decodes Data as a boolean; ok is false if Data is missing or not a bool.
func (e Event) Bool() (v bool, ok bool) {
	if len(e.Data) == 0 {
		return false, false
	}
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return false, false
	}
	return v, true
}

// line is any message mpv writes; responses have no "event" key.
type line struct {
	Event
	Error     string `json:"error,omitempty"`
	RequestID int64  `json:"request_id,omitempty"`
}
