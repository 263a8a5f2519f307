package nowplaying

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
)

const (
	mprisPath        = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	mprisRoot        = "org.mpris.MediaPlayer2"
	mprisPlayer      = "org.mpris.MediaPlayer2.Player"
	mprisNoTrack     = dbus.ObjectPath("/org/mpris/MediaPlayer2/TrackList/NoTrack")
	mprisIntrospect  = "org.freedesktop.DBus.Introspectable"
	defaultMPRISName = "polis"
)

// MPRIS publishes metadata on the D-Bus session bus so desktop media widgets
// and headset buttons can see and drive the player.
type MPRIS struct {
	conn  *dbus.Conn
	props *prop.Properties
	name  string

	mu      sync.Mutex
	actions Actions
}

// NewMPRIS claims org.mpris.MediaPlayer2.<name> on the session bus.
func NewMPRIS(name string) (*MPRIS, error) {
	if name == "" {
		name = defaultMPRISName
	}

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}

	m := &MPRIS{conn: conn, name: name}
	if err := m.export(); err != nil {
		conn.Close()
		return nil, err
	}

	busName := mprisRoot + "." + name
	reply, err := conn.RequestName(busName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("request bus name %s: %w", busName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return nil, fmt.Errorf("bus name %s already taken", busName)
	}
	return m, nil
}

func (m *MPRIS) export() error {
	root := mprisRootObject{}
	player := mprisPlayerObject{m: m}

	if err := m.conn.Export(root, mprisPath, mprisRoot); err != nil {
		return fmt.Errorf("export root: %w", err)
	}
	if err := m.conn.Export(player, mprisPath, mprisPlayer); err != nil {
		return fmt.Errorf("export player: %w", err)
	}

	props, err := prop.Export(m.conn, mprisPath, prop.Map{
		mprisRoot: {
			"CanQuit":             {Value: false, Emit: prop.EmitTrue},
			"CanRaise":            {Value: false, Emit: prop.EmitTrue},
			"HasTrackList":        {Value: false, Emit: prop.EmitTrue},
			"Identity":            {Value: "Polis statement player", Emit: prop.EmitTrue},
			"SupportedUriSchemes": {Value: []string{}, Emit: prop.EmitTrue},
			"SupportedMimeTypes":  {Value: []string{}, Emit: prop.EmitTrue},
		},
		mprisPlayer: {
			"PlaybackStatus": {Value: "Stopped", Emit: prop.EmitTrue},
			"LoopStatus":     {Value: "None", Emit: prop.EmitTrue},
			"Rate":           {Value: 1.0, Emit: prop.EmitTrue},
			"Shuffle":        {Value: false, Emit: prop.EmitTrue},
			"Metadata":       {Value: metadataMap(Metadata{}), Emit: prop.EmitTrue},
			"Volume":         {Value: 1.0, Emit: prop.EmitTrue},
			"Position":       {Value: int64(0), Emit: prop.EmitFalse},
			"MinimumRate":    {Value: 1.0, Emit: prop.EmitTrue},
			"MaximumRate":    {Value: 1.0, Emit: prop.EmitTrue},
			"CanGoNext":      {Value: false, Emit: prop.EmitTrue},
			"CanGoPrevious":  {Value: false, Emit: prop.EmitTrue},
			"CanPlay":        {Value: false, Emit: prop.EmitTrue},
			"CanPause":       {Value: false, Emit: prop.EmitTrue},
			"CanSeek":        {Value: false, Emit: prop.EmitTrue},
			"CanControl":     {Value: true, Emit: prop.EmitFalse},
		},
	})
	if err != nil {
		return fmt.Errorf("export properties: %w", err)
	}
	m.props = props

	node := &introspect.Node{
		Name: string(mprisPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name:       mprisRoot,
				Methods:    introspect.Methods(root),
				Properties: props.Introspection(mprisRoot),
			},
			{
				Name:       mprisPlayer,
				Methods:    introspect.Methods(player),
				Properties: props.Introspection(mprisPlayer),
			},
		},
	}
	if err := m.conn.Export(introspect.NewIntrospectable(node), mprisPath, mprisIntrospect); err != nil {
		return fmt.Errorf("export introspection: %w", err)
	}
	return nil
}

// SetMetadata updates the title, subtitle, artwork and playback status.
func (m *MPRIS) SetMetadata(md Metadata) error {
	status := "Paused"
	if md.Playing {
		status = "Playing"
	}
	m.props.SetMust(mprisPlayer, "Metadata", metadataMap(md))
	m.props.SetMust(mprisPlayer, "PlaybackStatus", status)
	return nil
}

// Bind routes next, previous, play and pause to a.
func (m *MPRIS) Bind(a Actions) error {
	m.mu.Lock()
	m.actions = a
	m.mu.Unlock()
	m.setCapabilities(a != nil)
	return nil
}

// Unbind drops every action binding.
func (m *MPRIS) Unbind() error {
	return m.Bind(nil)
}

// Close releases the bus name and the connection.
func (m *MPRIS) Close() error {
	_ = m.Unbind()
	if _, err := m.conn.ReleaseName(mprisRoot + "." + m.name); err != nil {
		m.conn.Close()
		return fmt.Errorf("release bus name: %w", err)
	}
	return m.conn.Close()
}

func (m *MPRIS) setCapabilities(bound bool) {
	for _, name := range []string{"CanGoNext", "CanGoPrevious", "CanPlay", "CanPause"} {
		m.props.SetMust(mprisPlayer, name, bound)
	}
}

func (m *MPRIS) dispatch(slot Slot) {
	m.mu.Lock()
	a := m.actions
	m.mu.Unlock()
	Dispatch(a, slot)
}

func metadataMap(md Metadata) map[string]dbus.Variant {
	out := map[string]dbus.Variant{
		"mpris:trackid": dbus.MakeVariant(mprisNoTrack),
		"xesam:title":   dbus.MakeVariant(md.Title),
		"xesam:artist":  dbus.MakeVariant([]string{md.Subtitle}),
	}
	if md.Artwork != "" {
		out["mpris:artUrl"] = dbus.MakeVariant(md.Artwork)
	}
	return out
}

type mprisRootObject struct{}

func (mprisRootObject) Raise() *dbus.Error { return nil }
func (mprisRootObject) Quit() *dbus.Error { return nil }

type mprisPlayerObject struct{ m *MPRIS }

func (p mprisPlayerObject) Next() *dbus.Error {
	p.m.dispatch(SlotNextTrack)
	return nil
}

func (p mprisPlayerObject) Previous() *dbus.Error {
	p.m.dispatch(SlotPreviousTrack)
	return nil
}

func (p mprisPlayerObject) Play() *dbus.Error {
	p.m.dispatch(SlotPlay)
	return nil
}

func (p mprisPlayerObject) Pause() *dbus.Error {
	p.m.dispatch(SlotPause)
	return nil
}

// PlayPause is what most headset buttons send; it shares the pause slot.
func (p mprisPlayerObject) PlayPause() *dbus.Error {
	p.m.dispatch(SlotPause)
	return nil
}

func (p mprisPlayerObject) Stop() *dbus.Error { return nil }
func (p mprisPlayerObject) Seek(_ int64) *dbus.Error { return nil }
func (p mprisPlayerObject) SetPosition(_ dbus.ObjectPath, _ int64) *dbus.Error { return nil }
func (p mprisPlayerObject) OpenUri(_ string) *dbus.Error { return nil }
