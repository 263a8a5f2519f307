package mpv

import (
	"context"

	"github.com/patcon/polis-media-session-test-app/internal/session"
)

const pauseObserverID = 1

// Events subscribes to pause changes on c and translates mpv events into
// playback events. The channel closes when the connection fails or ctx ends.
// c must not be used for commands afterwards.
func Events(ctx context.Context, c *Client) (<-chan session.PlaybackEvent, error) {
	if err := c.ObserveProperty(pauseObserverID, "pause"); err != nil {
		return nil, err
	}

	out := make(chan session.PlaybackEvent)
	go func() {
		defer close(out)
		for {
			ev, err := c.ReadEvent()
			if err != nil {
				return
			}
			pe, ok, last := translate(ev)
			if ok {
				select {
				case out <- pe:
				case <-ctx.Done():
					return
				}
			}
			if last {
				return
			}
		}
	}()
	return out, nil
}

// translate maps one mpv event. last is true when no further events follow.
func translate(ev Event) (pe session.PlaybackEvent, ok bool, last bool) {
	switch ev.Event {
	case "property-change":
		if ev.Name != "pause" {
			return pe, false, false
		}
		paused, valid := ev.Bool()
		if !valid {
			return pe, false, false
		}
		if paused {
			return session.PlaybackEvent{Kind: session.Paused}, true, false
		}
		return session.PlaybackEvent{Kind: session.Resumed}, true, false

	case "playback-restart":
		return session.PlaybackEvent{Kind: session.Seeked}, true, false

	case "end-file":
		return session.PlaybackEvent{Kind: session.Ended}, true, true

	case "shutdown":
		return pe, false, true
	}
	return pe, false, false
}
