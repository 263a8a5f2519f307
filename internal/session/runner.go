package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/patcon/polis-media-session-test-app/internal/metrics"
	"github.com/patcon/polis-media-session-test-app/internal/nowplaying"
	"github.com/patcon/polis-media-session-test-app/internal/tracker"
)

// ErrEventsClosed is returned by Run when the engine's event stream ends
// without an Ended event, usually because the engine went away.
var ErrEventsClosed = errors.New("playback events closed")

// Default timings.
const (
	DefaultFrameInterval = 33 * time.Millisecond
	DefaultTickInterval  = time.Second
	DefaultGracePeriod   = time.Second
)

// Config tunes the runner's timers.
type Config struct {
	FrameInterval time.Duration
	TickInterval  time.Duration
	GracePeriod   time.Duration
	MediaKeys     bool // bind hardware actions when Run starts
}

func (c Config) withDefaults() Config {
	if c.FrameInterval <= 0 {
		c.FrameInterval = DefaultFrameInterval
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = DefaultGracePeriod
	}
	return c
}

// Snapshot is what the runner publishes after every change.
type Snapshot struct {
	Frame     tracker.Frame
	Playing   bool
	MediaKeys bool
	Responses []tracker.Response
}

type voteRequest struct {
	kind  tracker.Kind
	reply chan voteResult
}

type voteResult struct {
	response tracker.Response
	ok       bool
}

type toggleRequest struct {
	on    bool
	reply chan error
}

// Runner owns a Tracker and serialises every access to it.
type Runner struct {
	cfg       Config
	tracker   *tracker.Tracker
	player    Player
	projector *nowplaying.Projector
	clock     clockwork.Clock
	metrics   *metrics.Metrics
	logger    *slog.Logger

	votes     chan voteRequest
	toggles   chan toggleRequest
	snapshots chan Snapshot
	done      chan struct{}

	playing      bool
	frameTicker  clockwork.Ticker
	secondTicker clockwork.Ticker
	graceTimer   clockwork.Timer
	graceEpoch   uint64
}

// Option configures a Runner.
type Option func(*Runner)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clockwork.Clock) Option {
	return func(r *Runner) { r.clock = c }
}

// WithMetrics records votes and activations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithPaused starts the runner in the paused state.
func WithPaused() Option {
	return func(r *Runner) { r.playing = false }
}

// NewRunner wires a tracker to a player and a now-playing projector.
func NewRunner(cfg Config, t *tracker.Tracker, player Player, projector *nowplaying.Projector, opts ...Option) *Runner {
	r := &Runner{
		cfg:       cfg.withDefaults(),
		tracker:   t,
		player:    player,
		projector: projector,
		clock:     clockwork.NewRealClock(),
		logger:    slog.Default(),
		votes:     make(chan voteRequest),
		toggles:   make(chan toggleRequest),
		snapshots: make(chan Snapshot, 1),
		done:      make(chan struct{}),
		playing:   true,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.projector == nil {
		r.projector = nowplaying.NewProjector(nil, r.logger)
	}
	return r
}

// Snapshots delivers the latest state. Slow readers only see the newest
// snapshot.
func (r *Runner) Snapshots() <-chan Snapshot {
	return r.snapshots
}

// Done is closed when Run returns.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Vote asks the loop to record kind for the active statement. It reports
// false when the vote was ignored or the runner is not running.
func (r *Runner) Vote(ctx context.Context, kind tracker.Kind) (tracker.Response, bool) {
	req := voteRequest{kind: kind, reply: make(chan voteResult, 1)}
	select {
	case r.votes <- req:
	case <-r.done:
		return tracker.Response{}, false
	case <-ctx.Done():
		return tracker.Response{}, false
	}
	select {
	case res := <-req.reply:
		return res.response, res.ok
	case <-ctx.Done():
		return tracker.Response{}, false
	}
}

// SetMediaKeys binds or unbinds every hardware action at once.
func (r *Runner) SetMediaKeys(ctx context.Context, on bool) error {
	req := toggleRequest{on: on, reply: make(chan error, 1)}
	select {
	case r.toggles <- req:
	case <-r.done:
		return errors.New("runner stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes events until ctx is cancelled, the media ends or the event
// stream closes. It returns nil when the media ended.
func (r *Runner) Run(ctx context.Context, events <-chan PlaybackEvent) error {
	defer close(r.done)
	defer r.stopTimers()
	defer func() {
		if err := r.projector.DisableActions(); err != nil {
			r.logger.Warn("disable media keys", "error", err)
		}
	}()

	if r.cfg.MediaKeys {
		if err := r.setMediaKeys(true); err != nil {
			r.logger.Warn("media keys unavailable", "error", err)
		}
	}

	r.sample()
	if r.playing {
		r.startTimers()
	}
	r.push()
	r.publish()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				return ErrEventsClosed
			}
			if ended := r.handleEvent(ev); ended {
				return nil
			}

		case <-tickerChan(r.frameTicker):
			r.sample()

		case <-tickerChan(r.secondTicker):
			r.sample()

		case <-timerChan(r.graceTimer):
			r.expireGrace()

		case req := <-r.votes:
			resp, ok := r.vote(req.kind)
			req.reply <- voteResult{response: resp, ok: ok}

		case req := <-r.toggles:
			req.reply <- r.setMediaKeys(req.on)
		}
	}
}

func (r *Runner) handleEvent(ev PlaybackEvent) bool {
	r.logger.Debug("playback event", "kind", ev.Kind.String())

	switch ev.Kind {
	case Paused:
		if !r.playing {
			return false
		}
		r.playing = false
		r.stopTimers()
		r.sample()
		r.push()

	case Resumed:
		if r.playing {
			return false
		}
		r.playing = true
		r.sample()
		r.startTimers()
		r.push()

	case Seeked:
		r.sample()
		if r.playing {
			r.startTimers()
		}
		r.push()

	case Ended:
		r.playing = false
		r.stopTimers()
		r.sample()
		r.push()
		r.publish()
		return true
	}

	r.publish()
	return false
}

// sample re-derives the playback state from the current position.
func (r *Runner) sample() {
	pos, err := r.player.Position()
	if err != nil {
		r.logger.Debug("position unavailable", "error", err)
		return
	}
	if r.tracker.Duration() == 0 {
		if d, err := r.player.Duration(); err == nil && d > 0 {
			r.tracker.SetDuration(d)
		}
	}

	f := r.tracker.Observe(pos)
	r.metrics.SetPosition(pos)

	if f.Activated {
		r.metrics.StatementActivated()
		r.logger.Info("statement active",
			"statement_id", f.Active.ID,
			"timecode", f.Active.Timecode,
			"answered", f.Response != nil,
		)
		r.stopGrace()
	}
	if f.GraceOpen && r.graceTimer == nil && r.playing {
		r.armGrace(f.Epoch)
	}

	r.projector.Push(f, r.playing)
	r.publish()
}

func (r *Runner) push() {
	r.projector.Push(r.tracker.Current(), r.playing)
}

func (r *Runner) vote(kind tracker.Kind) (tracker.Response, bool) {
	r.drainGrace()

	resp, ok := r.tracker.Record(kind)
	if !ok {
		reason := metrics.ReasonInactive
		if r.tracker.GraceOpen() {
			reason = metrics.ReasonGrace
		}
		r.metrics.VoteRejected(reason)
		r.logger.Debug("vote ignored", "kind", string(kind), "reason", reason)
		return tracker.Response{}, false
	}

	r.metrics.VoteAccepted(string(kind))
	r.logger.Info("vote recorded", "statement_id", resp.StatementID, "kind", string(kind))
	r.push()
	r.publish()
	return resp, true
}

func (r *Runner) setMediaKeys(on bool) error {
	var err error
	if on {
		err = r.projector.EnableActions(nowplaying.VoteActions(r.submitVote))
	} else {
		err = r.projector.DisableActions()
	}
	r.publish()
	return err
}

// submitVote is called from surface goroutines.
func (r *Runner) submitVote(kind tracker.Kind) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.Vote(ctx, kind)
}

func (r *Runner) armGrace(epoch uint64) {
	r.stopGrace()
	r.graceEpoch = epoch
	r.graceTimer = r.clock.NewTimer(r.cfg.GracePeriod)
}

func (r *Runner) stopGrace() {
	if r.graceTimer != nil {
		r.graceTimer.Stop()
		r.graceTimer = nil
	}
}

func (r *Runner) expireGrace() {
	r.graceTimer = nil
	if r.tracker.ExpireGrace(r.graceEpoch) {
		r.logger.Debug("grace period over", "epoch", r.graceEpoch)
		r.publish()
	}
}

// drainGrace handles a grace timer that fired but has not been selected yet.
func (r *Runner) drainGrace() {
	if r.graceTimer == nil {
		return
	}
	select {
	case <-r.graceTimer.Chan():
		r.expireGrace()
	default:
	}
}

func (r *Runner) startTimers() {
	r.stopTickers()
	r.frameTicker = r.clock.NewTicker(r.cfg.FrameInterval)
	r.secondTicker = r.clock.NewTicker(r.cfg.TickInterval)
	if r.tracker.GraceOpen() && r.graceTimer == nil {
		r.armGrace(r.tracker.Epoch())
	}
}

func (r *Runner) stopTickers() {
	if r.frameTicker != nil {
		r.frameTicker.Stop()
		r.frameTicker = nil
	}
	if r.secondTicker != nil {
		r.secondTicker.Stop()
		r.secondTicker = nil
	}
}

func (r *Runner) stopTimers() {
	r.stopTickers()
	r.stopGrace()
}

func (r *Runner) snapshot() Snapshot {
	return Snapshot{
		Frame:     r.tracker.Current(),
		Playing:   r.playing,
		MediaKeys: r.projector.Enabled(),
		Responses: r.tracker.Responses(),
	}
}

func (r *Runner) publish() {
	s := r.snapshot()
	select {
	case r.snapshots <- s:
		return
	default:
	}
	select {
	case <-r.snapshots:
	default:
	}
	select {
	case r.snapshots <- s:
	default:
	}
}

func tickerChan(t clockwork.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.Chan()
}

func timerChan(t clockwork.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.Chan()
}
