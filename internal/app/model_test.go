package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/patcon/polis-media-session-test-app/internal/session"
	"github.com/patcon/polis-media-session-test-app/internal/tracker"
)

type fakeSession struct {
	snapshots chan session.Snapshot
	done      chan struct{}
	votes     []tracker.Kind
	accept    bool
	keysErr   error
	keys      []bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		snapshots: make(chan session.Snapshot, 1),
		done:      make(chan struct{}),
		accept:    true,
	}
}

func (f *fakeSession) Snapshots() <-chan session.Snapshot { return f.snapshots }
func (f *fakeSession) Done() <-chan struct{}              { return f.done }

func (f *fakeSession) Vote(_ context.Context, kind tracker.Kind) (tracker.Response, bool) {
	f.votes = append(f.votes, kind)
	if !f.accept {
		return tracker.Response{}, false
	}
	return tracker.Response{StatementID: "1", Kind: kind, Label: kind.Label()}, true
}

func (f *fakeSession) SetMediaKeys(_ context.Context, on bool) error {
	f.keys = append(f.keys, on)
	return f.keysErr
}

type fakeTransport struct {
	toggles int
	seeks   []float64
	err     error
}

func (f *fakeTransport) TogglePause() error {
	f.toggles++
	return f.err
}

func (f *fakeTransport) SeekRelative(seconds float64) error {
	f.seeks = append(f.seeks, seconds)
	return f.err
}

var testStatements = []tracker.Statement{
	{ID: "1", Text: "The city should close downtown streets to cars on weekends.", Timecode: 0},
	{ID: "2", Text: "All public meetings should be recorded.", Timecode: 15},
}

func activeSnapshot(grace bool) session.Snapshot {
	s := testStatements[0]
	n := testStatements[1]
	return session.Snapshot{
		Frame: tracker.Frame{
			Position:         3.2,
			Duration:         30,
			Active:           &s,
			Next:             &n,
			Label:            tracker.AwaitingLabel,
			SecondsRemaining: 12,
			Progress:         0.21,
			GraceOpen:        grace,
		},
		Playing: true,
	}
}

func key(s string) tea.KeyMsg {
	if s == " " {
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func applyUpdate(m Model, msg tea.Msg) (Model, tea.Cmd) {
	updated, cmd := m.Update(msg)
	return updated.(Model), cmd
}

func TestNewModel(t *testing.T) {
	m := New(newFakeSession(), nil, testStatements, "debate.mp3")
	if m.hasSnap {
		t.Error("new model should not have a snapshot")
	}
	if m.ended {
		t.Error("new model should not be ended")
	}
	if len(m.statements) != 2 {
		t.Errorf("statements = %d, want 2", len(m.statements))
	}
}

func TestInitReadsSnapshot(t *testing.T) {
	sess := newFakeSession()
	sess.snapshots <- activeSnapshot(false)

	m := New(sess, nil, testStatements, "")
	msg := m.Init()()

	snap, ok := msg.(SnapshotMsg)
	if !ok {
		t.Fatalf("Init msg = %T, want SnapshotMsg", msg)
	}
	if snap.Snapshot.Frame.Active.ID != "1" {
		t.Errorf("active = %q, want 1", snap.Snapshot.Frame.Active.ID)
	}
}

func TestWaitSnapshotReportsEnd(t *testing.T) {
	sess := newFakeSession()
	close(sess.done)

	msg := waitSnapshotCmd(sess)()
	if _, ok := msg.(PlaybackEndedMsg); !ok {
		t.Fatalf("msg = %T, want PlaybackEndedMsg", msg)
	}
}

func TestWaitSnapshotDrainsFinalSnapshot(t *testing.T) {
	sess := newFakeSession()
	sess.snapshots <- activeSnapshot(false)
	close(sess.done)

	// Either branch may win the select; the buffered snapshot is never lost.
	msg := waitSnapshotCmd(sess)()
	if _, ok := msg.(SnapshotMsg); !ok {
		t.Fatalf("msg = %T, want SnapshotMsg", msg)
	}
}

func TestSnapshotMsgUpdatesState(t *testing.T) {
	m := New(newFakeSession(), nil, testStatements, "")

	m, cmd := applyUpdate(m, SnapshotMsg{Snapshot: activeSnapshot(true)})
	if !m.hasSnap {
		t.Error("should have a snapshot")
	}
	if !m.snap.Frame.GraceOpen {
		t.Error("grace should be open")
	}
	if cmd == nil {
		t.Error("snapshot should re-arm the reader")
	}
}

func TestVoteKeys(t *testing.T) {
	cases := map[string]tracker.Kind{
		"a": tracker.Agree,
		"d": tracker.Disagree,
		"p": tracker.Pass,
	}
	for k, want := range cases {
		sess := newFakeSession()
		m := New(sess, nil, testStatements, "")

		_, cmd := applyUpdate(m, key(k))
		if cmd == nil {
			t.Fatalf("%q: expected a vote command", k)
		}
		msg := cmd().(VoteResultMsg)
		if !msg.Accepted || msg.Kind != want {
			t.Errorf("%q: vote = %+v, want accepted %s", k, msg, want)
		}
		if len(sess.votes) != 1 || sess.votes[0] != want {
			t.Errorf("%q: session votes = %v", k, sess.votes)
		}
	}
}

func TestRejectedVoteDuringGraceShowsTransientError(t *testing.T) {
	m := New(newFakeSession(), nil, testStatements, "")
	m, _ = applyUpdate(m, SnapshotMsg{Snapshot: activeSnapshot(true)})

	m, cmd := applyUpdate(m, VoteResultMsg{Kind: tracker.Agree})
	if !strings.Contains(m.errorMessage, "Too soon") {
		t.Errorf("errorMessage = %q", m.errorMessage)
	}
	if !m.errorTransient || cmd == nil {
		t.Error("rejection should be transient")
	}

	m, _ = applyUpdate(m, ClearTransientErrorMsg{})
	if m.errorMessage != "" {
		t.Errorf("error not cleared: %q", m.errorMessage)
	}
}

func TestRejectedVoteWithoutStatement(t *testing.T) {
	m := New(newFakeSession(), nil, nil, "")
	m, _ = applyUpdate(m, VoteResultMsg{Kind: tracker.Pass})
	if m.errorMessage != "No statement to respond to yet" {
		t.Errorf("errorMessage = %q", m.errorMessage)
	}
}

func TestTransportKeys(t *testing.T) {
	tr := &fakeTransport{}
	m := New(newFakeSession(), tr, testStatements, "")

	_, cmd := applyUpdate(m, key(" "))
	if cmd == nil {
		t.Fatal("space should toggle pause")
	}
	cmd()

	_, cmd = applyUpdate(m, key("h"))
	cmd()
	_, cmd = applyUpdate(m, key("l"))
	cmd()

	if tr.toggles != 1 {
		t.Errorf("toggles = %d, want 1", tr.toggles)
	}
	if len(tr.seeks) != 2 || tr.seeks[0] != -SeekStep || tr.seeks[1] != SeekStep {
		t.Errorf("seeks = %v", tr.seeks)
	}
}

func TestTransportKeysWithoutTransport(t *testing.T) {
	m := New(newFakeSession(), nil, testStatements, "")
	for _, k := range []string{" ", "h", "l"} {
		if _, cmd := applyUpdate(m, key(k)); cmd != nil {
			t.Errorf("%q: expected no command without a transport", k)
		}
	}
}

func TestTransportError(t *testing.T) {
	tr := &fakeTransport{err: errors.New("mpv gone")}
	m := New(newFakeSession(), tr, testStatements, "")

	_, cmd := applyUpdate(m, key(" "))
	m, _ = applyUpdate(m, cmd())
	if m.errorMessage != "mpv gone" {
		t.Errorf("errorMessage = %q", m.errorMessage)
	}
}

func TestMediaKeysToggle(t *testing.T) {
	sess := newFakeSession()
	m := New(sess, nil, testStatements, "")

	_, cmd := applyUpdate(m, key("m"))
	m, _ = applyUpdate(m, cmd())
	if !m.snap.MediaKeys {
		t.Error("media keys should be on")
	}

	_, cmd = applyUpdate(m, key("m"))
	m, _ = applyUpdate(m, cmd())
	if m.snap.MediaKeys {
		t.Error("media keys should be off")
	}
	if len(sess.keys) != 2 || !sess.keys[0] || sess.keys[1] {
		t.Errorf("toggles = %v, want [true false]", sess.keys)
	}
}

func TestMediaKeysError(t *testing.T) {
	sess := newFakeSession()
	sess.keysErr = errors.New("no bus")
	m := New(sess, nil, testStatements, "")

	_, cmd := applyUpdate(m, key("m"))
	m, _ = applyUpdate(m, cmd())
	if m.snap.MediaKeys {
		t.Error("media keys should stay off")
	}
	if !strings.Contains(m.errorMessage, "no bus") {
		t.Errorf("errorMessage = %q", m.errorMessage)
	}
}

func TestPlaybackEndedIgnoresVotes(t *testing.T) {
	m := New(newFakeSession(), &fakeTransport{}, testStatements, "")
	m.width = 80
	m.height = 24

	m, _ = applyUpdate(m, PlaybackEndedMsg{})
	if !m.ended {
		t.Fatal("should be ended")
	}
	if _, cmd := applyUpdate(m, key("a")); cmd != nil {
		t.Error("votes should be ignored after playback ended")
	}
	if !strings.Contains(m.View(), "Playback ended") {
		t.Error("view should say playback ended")
	}
}

func TestQuit(t *testing.T) {
	m := New(newFakeSession(), nil, testStatements, "")
	_, cmd := applyUpdate(m, key("q"))
	if cmd == nil {
		t.Fatal("q should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should return tea.Quit")
	}
}

func TestViewShowsActiveStatementAndHistory(t *testing.T) {
	m := New(newFakeSession(), nil, testStatements, "debate.mp3")
	m, _ = applyUpdate(m, tea.WindowSizeMsg{Width: 120, Height: 30})

	snap := activeSnapshot(false)
	resp := tracker.Response{StatementID: "1", Kind: tracker.Disagree, Label: tracker.Disagree.Label()}
	snap.Frame.Response = &resp
	snap.Responses = []tracker.Response{resp}
	m, _ = applyUpdate(m, SnapshotMsg{Snapshot: snap})

	view := m.View()
	for _, want := range []string{"debate.mp3", "close downtown", "❌ You disagreed", "RESPONSES (1)", "Next statement in 12s", "0:03 / 0:30"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestViewIdle(t *testing.T) {
	m := New(newFakeSession(), nil, testStatements, "")
	m, _ = applyUpdate(m, tea.WindowSizeMsg{Width: 80, Height: 24})

	n := testStatements[0]
	m, _ = applyUpdate(m, SnapshotMsg{Snapshot: session.Snapshot{Frame: tracker.Frame{Next: &n}}})

	view := m.View()
	if !strings.Contains(view, "Waiting for the first statement") {
		t.Error("idle view should wait for the first statement")
	}
	if strings.Contains(view, "You disagreed") {
		t.Error("idle view should not show a response")
	}
}

func TestViewWithoutSize(t *testing.T) {
	m := New(newFakeSession(), nil, nil, "")
	view := m.View()
	if view != "Initializing..." {
		t.Errorf("view without size = %q, want 'Initializing...'", view)
	}
}

func TestTruncateToWidthCountsCells(t *testing.T) {
	cases := []string{
		"市議会は週末に中心街の通りを車両通行止めにすべきだ",
		"🎉🎉🎉🎉🎉🎉🎉🎉🎉🎉🎉🎉",
		"plain ascii text that is far too long",
	}
	for _, in := range cases {
		got := truncateToWidth(in, 12)
		if w := lipgloss.Width(got); w > 12 {
			t.Errorf("truncateToWidth(%q) = %q, width %d > 12", in, got, w)
		}
		if !strings.HasSuffix(got, "…") {
			t.Errorf("truncateToWidth(%q) = %q, want ellipsis", in, got)
		}
	}

	if got := truncateToWidth("short", 12); got != "short" {
		t.Errorf("short text changed: %q", got)
	}
}

func TestFormatClock(t *testing.T) {
	cases := map[float64]string{0: "0:00", 9.9: "0:09", 75: "1:15", -3: "0:00"}
	for in, want := range cases {
		if got := formatClock(in); got != want {
			t.Errorf("formatClock(%v) = %q, want %q", in, got, want)
		}
	}
}
