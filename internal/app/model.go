package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/patcon/polis-media-session-test-app/internal/session"
	"github.com/patcon/polis-media-session-test-app/internal/tracker"
	"github.com/patcon/polis-media-session-test-app/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
)

// Session is the part of session.Runner the TUI drives.
type Session interface {
	Snapshots() <-chan session.Snapshot
	Done() <-chan struct{}
	Vote(ctx context.Context, kind tracker.Kind) (tracker.Response, bool)
	SetMediaKeys(ctx context.Context, on bool) error
}

// Transport sends playback commands to the media engine.
type Transport interface {
	TogglePause() error
	SeekRelative(seconds float64) error
}

const commandTimeout = 2 * time.Second

// Model is the root bubbletea model for the player TUI.
type Model struct {
	sess      Session
	transport Transport

	// Timeline
	mediaName  string
	statements map[string]tracker.Statement

	// Latest runner state
	snap    session.Snapshot
	hasSnap bool
	ended   bool

	// UI state
	width  int
	height int

	// Errors
	errorMessage   string
	errorTransient bool
}

// New creates a Model bound to a running session. transport may be nil, in
// which case pause and seek keys are ignored.
func New(sess Session, transport Transport, statements []tracker.Statement, mediaName string) Model {
	byID := make(map[string]tracker.Statement, len(statements))
	for _, s := range statements {
		byID[s.ID] = s
	}
	return Model{
		sess:       sess,
		transport:  transport,
		mediaName:  mediaName,
		statements: byID,
	}
}

// Init starts listening for runner snapshots.
func (m Model) Init() tea.Cmd {
	return waitSnapshotCmd(m.sess)
}

// waitSnapshotCmd blocks until the runner publishes or stops.
func waitSnapshotCmd(sess Session) tea.Cmd {
	return func() tea.Msg {
		select {
		case s := <-sess.Snapshots():
			return SnapshotMsg{Snapshot: s}
		case <-sess.Done():
			// A final snapshot may still be buffered.
			select {
			case s := <-sess.Snapshots():
				return SnapshotMsg{Snapshot: s}
			default:
			}
			return PlaybackEndedMsg{}
		}
	}
}

// voteCmd records kind for the active statement.
func voteCmd(sess Session, kind tracker.Kind) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		resp, ok := sess.Vote(ctx, kind)
		return VoteResultMsg{Kind: kind, Response: resp, Accepted: ok}
	}
}

// togglePauseCmd flips the engine's pause state.
func togglePauseCmd(t Transport) tea.Cmd {
	return func() tea.Msg {
		if err := t.TogglePause(); err != nil {
			return TransportErrorMsg{Err: err}
		}
		return nil
	}
}

// seekCmd moves the playback position by seconds.
func seekCmd(t Transport, seconds float64) tea.Cmd {
	return func() tea.Msg {
		if err := t.SeekRelative(seconds); err != nil {
			return TransportErrorMsg{Err: err}
		}
		return nil
	}
}

// mediaKeysCmd binds or unbinds the hardware actions.
func mediaKeysCmd(sess Session, on bool) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		return MediaKeysMsg{On: on, Err: sess.SetMediaKeys(ctx, on)}
	}
}

// clearTransientErrorCmd fires after a delay to clear transient errors.
func clearTransientErrorCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(time.Time) tea.Msg {
		return ClearTransientErrorMsg{}
	})
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case SnapshotMsg:
		m.snap = msg.Snapshot
		m.hasSnap = true
		// Keep reading snapshots
		return m, waitSnapshotCmd(m.sess)

	case PlaybackEndedMsg:
		m.ended = true
		m.snap.Playing = false
		return m, nil

	case VoteResultMsg:
		if msg.Accepted {
			return m, nil
		}
		m.errorMessage = m.rejectionReason()
		m.errorTransient = true
		return m, clearTransientErrorCmd()

	case TransportErrorMsg:
		m.errorMessage = msg.Err.Error()
		m.errorTransient = true
		return m, clearTransientErrorCmd()

	case MediaKeysMsg:
		if msg.Err != nil {
			m.errorMessage = fmt.Sprintf("media keys: %v", msg.Err)
			m.errorTransient = true
			return m, clearTransientErrorCmd()
		}
		m.snap.MediaKeys = msg.On
		return m, nil

	case ClearTransientErrorMsg:
		if m.errorTransient {
			m.errorMessage = ""
			m.errorTransient = false
		}
		return m, nil
	}

	return m, nil
}

func (m Model) rejectionReason() string {
	switch {
	case m.snap.Frame.Active == nil:
		return "No statement to respond to yet"
	case m.snap.Frame.GraceOpen:
		return "Too soon, the statement just appeared"
	default:
		return "Vote was not recorded"
	}
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyQuit, KeyQuitUpper, KeyCtrlC:
		return m, tea.Quit
	}

	if m.ended {
		return m, nil
	}

	switch msg.String() {
	case KeyAgree:
		return m, voteCmd(m.sess, tracker.Agree)

	case KeyDisagree:
		return m, voteCmd(m.sess, tracker.Disagree)

	case KeyPass:
		return m, voteCmd(m.sess, tracker.Pass)

	case KeyPause:
		if m.transport == nil {
			return m, nil
		}
		return m, togglePauseCmd(m.transport)

	case KeySeekBack, KeySeekBackArrow:
		if m.transport == nil {
			return m, nil
		}
		return m, seekCmd(m.transport, -SeekStep)

	case KeySeekFwd, KeySeekFwdArrow:
		if m.transport == nil {
			return m, nil
		}
		return m, seekCmd(m.transport, SeekStep)

	case KeyMediaKeys:
		return m, mediaKeysCmd(m.sess, !m.snap.MediaKeys)
	}

	return m, nil
}

func (m Model) contentHeight() int {
	if m.height == 0 {
		return 12
	}
	// Reserve: header(1) + status(1) + divider(2) + error(1) + footer(1)
	reserved := 6
	return max(5, m.height-reserved)
}

func (m Model) historyPanelWidth() int {
	if m.width == 0 {
		return 30
	}
	return max(20, m.width*35/100)
}

func (m Model) statementPanelWidth() int {
	if m.width == 0 {
		return 60
	}
	return max(30, m.width-m.historyPanelWidth()-3)
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderStatusBar())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))
	sections = append(sections, m.renderMainContent())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))

	if m.errorMessage != "" {
		sections = append(sections, m.renderErrorBar())
	}

	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := ui.TitleStyle.Render("POLIS")
	if m.mediaName != "" {
		title += ui.DimStyle.Render(" · " + m.mediaName)
	}
	return title
}

func (m Model) renderStatusBar() string {
	var dot string
	switch {
	case m.ended:
		dot = ui.EndedDotStyle.Render("■ Playback ended")
	case !m.hasSnap:
		dot = ui.StatusStyle.Render("○ Waiting for player...")
	case m.snap.Playing:
		dot = ui.PlayingDotStyle.Render("▶ PLAYING")
	default:
		dot = ui.PausedDotStyle.Render("‖ PAUSED")
	}

	f := m.snap.Frame
	clock := "  " + ui.TimestampStyle.Render(formatClock(f.Position))
	if f.Duration > 0 {
		clock += ui.TimestampStyle.Render(" / " + formatClock(f.Duration))
	}

	var keys string
	if m.snap.MediaKeys {
		keys = "  " + ui.MediaKeysOnStyle.Render("⌨ media keys on")
	} else {
		keys = "  " + ui.MediaKeysOffStyle.Render("⌨ media keys off")
	}

	var grace string
	if f.GraceOpen {
		grace = "  " + ui.GraceBadgeStyle.Render("◌ settling")
	}

	return dot + clock + keys + grace
}

func (m Model) renderMainContent() string {
	leftW := m.statementPanelWidth()
	rightW := m.historyPanelWidth()
	contentH := m.contentHeight()

	leftLines := strings.Split(m.renderStatementPanel(leftW, contentH), "\n")
	rightLines := strings.Split(m.renderHistoryPanel(rightW, contentH), "\n")

	divider := ui.DividerStyle.Render("│")

	var rows []string
	for i := 0; i < contentH; i++ {
		l := strings.Repeat(" ", leftW)
		if i < len(leftLines) {
			l = padRight(leftLines[i], leftW)
		}
		r := ""
		if i < len(rightLines) {
			r = rightLines[i]
		}
		rows = append(rows, l+divider+r)
	}

	return strings.Join(rows, "\n")
}

func (m Model) renderStatementPanel(width, height int) string {
	var lines []string
	lines = append(lines, ui.PanelTitleStyle.Render("STATEMENT"))

	f := m.snap.Frame
	textWidth := max(10, width-4)

	if f.Active == nil {
		lines = append(lines, "")
		lines = append(lines, ui.DimStyle.Render("  "+idleText(f)))
	} else {
		lines = append(lines, "")
		for _, wl := range wrapText(f.Active.Text, textWidth) {
			lines = append(lines, "  "+ui.StatementStyle.Render(wl))
		}
		lines = append(lines, "")
		lines = append(lines, "  "+renderLabel(f))
		if f.Artwork != "" {
			lines = append(lines, "  "+ui.DimStyle.Render(truncateToWidth("art "+f.Artwork, textWidth)))
		}
	}

	lines = append(lines, "")
	lines = append(lines, "  "+m.renderCountdown())
	lines = append(lines, "  "+renderProgress(f.Progress, max(10, width-4)))

	for len(lines) < height {
		lines = append(lines, "")
	}
	if len(lines) > height {
		lines = lines[:height]
	}

	return strings.Join(lines, "\n")
}

func idleText(f tracker.Frame) string {
	if f.Next == nil {
		return "No statements for this recording"
	}
	return "Waiting for the first statement"
}

func renderLabel(f tracker.Frame) string {
	if f.Response == nil {
		return ui.AwaitingStyle.Render(tracker.AwaitingLabel)
	}
	return kindStyle(f.Response.Kind).Render(f.Response.Label)
}

func kindStyle(k tracker.Kind) lipgloss.Style {
	switch k {
	case tracker.Agree:
		return ui.AgreeStyle
	case tracker.Disagree:
		return ui.DisagreeStyle
	case tracker.Pass:
		return ui.PassStyle
	}
	return ui.DimStyle
}

func (m Model) renderCountdown() string {
	f := m.snap.Frame
	if f.Next == nil {
		return ui.DimStyle.Render(fmt.Sprintf("Ends in %ds", f.SecondsRemaining))
	}
	return ui.DimStyle.Render(fmt.Sprintf("Next statement in %ds", f.SecondsRemaining))
}

func renderProgress(progress float64, width int) string {
	filled := int(math.Round(progress * float64(width)))
	filled = min(max(filled, 0), width)
	return ui.ProgressFilledStyle.Render(strings.Repeat("█", filled)) +
		ui.ProgressEmptyStyle.Render(strings.Repeat("░", width-filled))
}

func (m Model) renderHistoryPanel(width, height int) string {
	responses := m.snap.Responses

	var lines []string
	lines = append(lines, ui.PanelTitleStyle.Render(fmt.Sprintf("RESPONSES (%d)", len(responses))))

	if len(responses) == 0 {
		lines = append(lines, ui.DimStyle.Render(" No responses yet"))
		lines = append(lines, ui.DimStyle.Render(" a/d/p to agree, disagree, pass"))
	}

	for _, r := range responses {
		text := r.StatementID
		if s, ok := m.statements[r.StatementID]; ok {
			text = s.Text
		}
		marker := kindStyle(r.Kind).Render(kindMarker(r.Kind))
		lines = append(lines, " "+marker+" "+truncateToWidth(text, max(5, width-4)))
	}

	if len(lines) > height {
		// Keep the most recent entries visible.
		lines = append(lines[:1], lines[len(lines)-height+1:]...)
	}

	return strings.Join(lines, "\n")
}

func kindMarker(k tracker.Kind) string {
	switch k {
	case tracker.Agree:
		return "✓"
	case tracker.Disagree:
		return "✗"
	case tracker.Pass:
		return "–"
	}
	return "?"
}

func (m Model) renderErrorBar() string {
	return ui.ErrorStyle.Render("Error: ") + ui.ErrorTextStyle.Render(m.errorMessage)
}

func (m Model) renderFooter() string {
	var parts []string

	if !m.ended {
		parts = append(parts, ui.FooterKeyStyle.Render("a")+ui.FooterDescStyle.Render(" Agree"))
		parts = append(parts, ui.FooterKeyStyle.Render("d")+ui.FooterDescStyle.Render(" Disagree"))
		parts = append(parts, ui.FooterKeyStyle.Render("p")+ui.FooterDescStyle.Render(" Pass"))
		if m.transport != nil {
			if m.snap.Playing {
				parts = append(parts, ui.FooterKeyStyle.Render("Space")+ui.FooterDescStyle.Render(" Pause"))
			} else {
				parts = append(parts, ui.FooterKeyStyle.Render("Space")+ui.FooterDescStyle.Render(" Play"))
			}
			parts = append(parts, ui.FooterKeyStyle.Render("h/l")+ui.FooterDescStyle.Render(" Seek"))
		}
		parts = append(parts, ui.FooterKeyStyle.Render("m")+ui.FooterDescStyle.Render(" Media keys"))
	}

	parts = append(parts, ui.FooterKeyStyle.Render("q")+ui.FooterDescStyle.Render(" Quit"))

	return strings.Join(parts, "  ")
}

// Helpers

func formatClock(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func padRight(s string, width int) string {
	// Get visible length (ignoring ANSI codes)
	visible := lipgloss.Width(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}

func truncateToWidth(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	return ansi.Truncate(s, width, "…")
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		var current string
		for _, word := range strings.Fields(paragraph) {
			if current == "" {
				current = word
			} else if len(current)+1+len(word) <= width {
				current += " " + word
			} else {
				lines = append(lines, current)
				current = word
			}
		}
		if current != "" {
			lines = append(lines, current)
		} else {
			lines = append(lines, "")
		}
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}
