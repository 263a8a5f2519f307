package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patcon/polis-media-session-test-app/internal/metrics"
	"github.com/patcon/polis-media-session-test-app/internal/nowplaying"
	"github.com/patcon/polis-media-session-test-app/internal/tracker"
)

type fakePlayer struct {
	mu       sync.Mutex
	position float64
	duration float64
	err      error
}

func (p *fakePlayer) Position() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position, p.err
}

func (p *fakePlayer) Duration() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration, p.err
}

func (p *fakePlayer) seek(pos float64) {
	p.mu.Lock()
	p.position = pos
	p.mu.Unlock()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func exampleStatements() []tracker.Statement {
	return []tracker.Statement{
		{ID: "1", Text: "A", Timecode: 0},
		{ID: "2", Text: "B", Timecode: 15},
	}
}

type harness struct {
	runner   *Runner
	player   *fakePlayer
	clock    *clockwork.FakeClock
	surface  *nowplaying.Recorder
	metrics  *metrics.Metrics
	tracker  *tracker.Tracker
	registry *prometheus.Registry
}

func newHarness(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()

	h := &harness{
		player:   &fakePlayer{duration: 30},
		clock:    clockwork.NewFakeClock(),
		surface:  &nowplaying.Recorder{},
		tracker:  tracker.New(exampleStatements()),
		registry: prometheus.NewRegistry(),
	}
	h.metrics = metrics.New(h.registry)

	logger := quietLogger()
	all := append([]Option{WithClock(h.clock), WithLogger(logger), WithMetrics(h.metrics)}, opts...)
	h.runner = NewRunner(cfg, h.tracker, h.player, nowplaying.NewProjector(h.surface, logger), all...)
	return h
}

func TestRunner_VoteRejectedDuringGracePeriod(t *testing.T) {
	h := newHarness(t, Config{})
	h.player.seek(0.5)

	h.runner.sample()
	require.NotNil(t, h.runner.graceTimer, "activation arms the grace timer")

	_, ok := h.runner.vote(tracker.Agree)
	assert.False(t, ok)

	h.clock.Advance(999 * time.Millisecond)
	_, ok = h.runner.vote(tracker.Agree)
	assert.False(t, ok, "still inside the grace period")

	h.clock.Advance(2 * time.Millisecond)
	resp, ok := h.runner.vote(tracker.Agree)
	require.True(t, ok, "grace period elapsed")
	assert.Equal(t, "1", resp.StatementID)

	stored, ok := h.tracker.Response("1")
	require.True(t, ok)
	assert.Equal(t, tracker.Agree, stored.Kind)

	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.VotesRejected.WithLabelValues(metrics.ReasonGrace)))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Votes.WithLabelValues("agree")))
}

func TestRunner_VoteWithoutActiveStatement(t *testing.T) {
	h := newHarness(t, Config{})
	h.tracker = tracker.New([]tracker.Statement{{ID: "late", Text: "L", Timecode: 20}})
	h.runner.tracker = h.tracker
	h.player.seek(3)

	h.runner.sample()
	_, ok := h.runner.vote(tracker.Pass)
	assert.False(t, ok)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.VotesRejected.WithLabelValues(metrics.ReasonInactive)))
}

func TestRunner_NewActivationReplacesGraceTimer(t *testing.T) {
	h := newHarness(t, Config{})
	h.player.seek(14.5)
	h.runner.sample()
	first := h.runner.graceTimer
	firstEpoch := h.runner.graceEpoch

	h.clock.Advance(600 * time.Millisecond)
	h.player.seek(15.1)
	h.runner.sample()
	require.NotNil(t, h.runner.graceTimer)
	assert.NotSame(t, first, h.runner.graceTimer)
	assert.NotEqual(t, firstEpoch, h.runner.graceEpoch)

	h.clock.Advance(600 * time.Millisecond)
	_, ok := h.runner.vote(tracker.Agree)
	assert.False(t, ok, "old timer must not close the new window")

	h.clock.Advance(500 * time.Millisecond)
	resp, ok := h.runner.vote(tracker.Agree)
	require.True(t, ok)
	assert.Equal(t, "2", resp.StatementID)
}

func TestRunner_PauseCancelsTimersAndResumeRestarts(t *testing.T) {
	h := newHarness(t, Config{})
	h.player.seek(2)
	h.runner.sample()
	h.runner.startTimers()

	require.NotNil(t, h.runner.frameTicker)
	require.NotNil(t, h.runner.secondTicker)
	require.NotNil(t, h.runner.graceTimer)

	h.runner.handleEvent(PlaybackEvent{Kind: Paused})
	assert.Nil(t, h.runner.frameTicker)
	assert.Nil(t, h.runner.secondTicker)
	assert.Nil(t, h.runner.graceTimer)
	assert.False(t, h.runner.playing)

	h.runner.handleEvent(PlaybackEvent{Kind: Paused})
	assert.Nil(t, h.runner.frameTicker, "pausing twice is a no-op")

	h.clock.Advance(5 * time.Second)
	_, ok := h.runner.vote(tracker.Agree)
	assert.False(t, ok, "grace does not elapse while paused")

	h.runner.handleEvent(PlaybackEvent{Kind: Resumed})
	assert.True(t, h.runner.playing)
	assert.NotNil(t, h.runner.frameTicker)
	assert.NotNil(t, h.runner.secondTicker)
	require.NotNil(t, h.runner.graceTimer, "open grace window is re-armed")

	h.clock.Advance(time.Second)
	_, ok = h.runner.vote(tracker.Agree)
	assert.True(t, ok)
}

func TestRunner_SeekBackShowsStoredResponse(t *testing.T) {
	h := newHarness(t, Config{})
	h.player.seek(3)
	h.runner.sample()
	h.clock.Advance(time.Second)
	_, ok := h.runner.vote(tracker.Disagree)
	require.True(t, ok)

	h.player.seek(20)
	h.runner.handleEvent(PlaybackEvent{Kind: Seeked})
	assert.Equal(t, tracker.AwaitingLabel, h.tracker.Current().Label)

	h.player.seek(5)
	h.runner.handleEvent(PlaybackEvent{Kind: Seeked})
	f := h.tracker.Current()
	require.NotNil(t, f.Active)
	assert.Equal(t, "1", f.Active.ID)
	assert.Equal(t, tracker.Disagree.Label(), f.Label)

	last, ok := h.surface.Last()
	require.True(t, ok)
	assert.Equal(t, "A", last.Title)
	assert.Equal(t, "[0:10] ❌ You disagreed", last.Subtitle)
}

func TestRunner_PositionErrorKeepsLastFrame(t *testing.T) {
	h := newHarness(t, Config{})
	h.player.seek(16)
	h.runner.sample()

	h.player.mu.Lock()
	h.player.err = errors.New("engine busy")
	h.player.mu.Unlock()

	h.runner.sample()
	f := h.tracker.Current()
	require.NotNil(t, f.Active)
	assert.Equal(t, "2", f.Active.ID)
}

func TestRunner_LearnsDurationFromPlayer(t *testing.T) {
	h := newHarness(t, Config{})
	h.player.seek(20)
	h.runner.sample()

	assert.Equal(t, 30.0, h.tracker.Duration())
	assert.Equal(t, 10, h.tracker.Current().SecondsRemaining)
}

func TestRunner_PublishKeepsLatestSnapshot(t *testing.T) {
	h := newHarness(t, Config{})
	h.player.seek(1)
	h.runner.sample()
	h.player.seek(16)
	h.runner.sample()

	s := <-h.runner.Snapshots()
	require.NotNil(t, s.Frame.Active)
	assert.Equal(t, "2", s.Frame.Active.ID)
	assert.True(t, s.Playing)

	select {
	case <-h.runner.Snapshots():
		t.Fatal("only the newest snapshot should be buffered")
	default:
	}
}

func waitForSnapshot(t *testing.T, r *Runner, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-r.Snapshots():
			if cond(s) {
				return s
			}
		case <-deadline:
			t.Fatal("timed out waiting for snapshot")
			return Snapshot{}
		}
	}
}

func TestRunner_RunLoop(t *testing.T) {
	h := newHarness(t, Config{MediaKeys: true})
	h.player.seek(0.5)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan PlaybackEvent)
	errc := make(chan error, 1)
	go func() { errc <- h.runner.Run(ctx, events) }()

	// frame ticker, second ticker and grace timer
	require.NoError(t, h.clock.BlockUntilContext(ctx, 3))

	_, ok := h.runner.Vote(ctx, tracker.Agree)
	assert.False(t, ok, "vote inside grace period")

	h.clock.Advance(1001 * time.Millisecond)

	// hardware next-track maps to Agree
	h.surface.Press(nowplaying.SlotNextTrack)
	s := waitForSnapshot(t, h.runner, func(s Snapshot) bool { return len(s.Responses) == 1 })
	assert.Equal(t, tracker.Agree, s.Responses[0].Kind)
	assert.True(t, s.MediaKeys)

	require.NoError(t, h.runner.SetMediaKeys(ctx, false))
	assert.Equal(t, 0, h.surface.Bindings())

	events <- PlaybackEvent{Kind: Paused}
	waitForSnapshot(t, h.runner, func(s Snapshot) bool { return !s.Playing })

	h.player.seek(30)
	events <- PlaybackEvent{Kind: Ended}

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after Ended")
	}

	select {
	case <-h.runner.Done():
	default:
		t.Fatal("Done should be closed")
	}

	_, ok = h.runner.Vote(context.Background(), tracker.Pass)
	assert.False(t, ok, "votes after stop are ignored")
}

func TestRunner_SecondTickRederivesCountdown(t *testing.T) {
	h := newHarness(t, Config{FrameInterval: time.Hour})
	h.player.seek(16)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan PlaybackEvent)
	go h.runner.Run(ctx, events)

	require.NoError(t, h.clock.BlockUntilContext(ctx, 3))
	waitForSnapshot(t, h.runner, func(s Snapshot) bool { return s.Frame.SecondsRemaining == 14 })

	h.player.seek(20)
	h.clock.Advance(time.Second)

	s := waitForSnapshot(t, h.runner, func(s Snapshot) bool { return s.Frame.Position == 20 })
	assert.Equal(t, 10, s.Frame.SecondsRemaining)
	md, ok := h.surface.Last()
	require.True(t, ok)
	assert.Equal(t, "[0:10] (awaiting response)", md.Subtitle)
}

func TestRunner_RunReturnsWhenEventsClose(t *testing.T) {
	h := newHarness(t, Config{}, WithPaused())
	events := make(chan PlaybackEvent)
	close(events)

	err := h.runner.Run(context.Background(), events)
	assert.ErrorIs(t, err, ErrEventsClosed)
}
