package mpv

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
)

// ErrClosed is returned once mpv has closed the connection.
var ErrClosed = errors.New("connection closed")

// SocketPath returns the default IPC socket path.
func SocketPath() string {
	return filepath.Join(os.TempDir(), "polis-mpv.sock")
}

// Client communicates with mpv over a Unix socket.
type Client struct {
	conn    net.Conn
	scanner *bufio.Scanner
	mu      sync.Mutex
	nextID  int64
}

// Connect dials the mpv IPC socket.
func Connect(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to mpv: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024) // 1MB buffer

	return &Client{conn: conn, scanner: scanner}, nil
}

// Close shuts down the connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// SendCommand sends a command and waits for its response. Events that
// arrive in between are discarded; use a separate Client for events.
func (c *Client) SendCommand(args ...any) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID

	data, err := json.Marshal(Command{Command: args, RequestID: id})
	if err != nil {
		return Response{}, fmt.Errorf("marshal command: %w", err)
	}

	data = append(data, '\n')
	if _, err := c.conn.Write(data); err != nil {
		return Response{}, fmt.Errorf("write command: %w", err)
	}

	for {
		l, err := c.readLine()
		if err != nil {
			return Response{}, fmt.Errorf("read response: %w", err)
		}
		if l.Event.Event != "" || l.RequestID != id {
			continue
		}
		resp := Response{Data: l.Data, Error: l.Error, RequestID: l.RequestID}
		if !resp.OK() {
			return resp, fmt.Errorf("mpv %v: %s", args[0], resp.Error)
		}
		return resp, nil
	}
}

// ReadEvent reads the next event line, skipping command responses. Blocks
// until data arrives.
func (c *Client) ReadEvent() (Event, error) {
	for {
		l, err := c.readLine()
		if err != nil {
			return Event{}, fmt.Errorf("read event: %w", err)
		}
		if l.Event.Event != "" {
			return l.Event, nil
		}
	}
}

func (c *Client) readLine() (line, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return line{}, err
		}
		return line{}, ErrClosed
	}

	var l line
	if err := json.Unmarshal(c.scanner.Bytes(), &l); err != nil {
		return line{}, fmt.Errorf("unmarshal: %w", err)
	}
	return l, nil
}

// GetFloat reads a numeric property.
func (c *Client) GetFloat(name string) (float64, error) {
	resp, err := c.SendCommand("get_property", name)
	if err != nil {
		return 0, err
	}
	v, err := resp.Float()
	if err != nil {
		return 0, fmt.Errorf("decode %s: %w", name, err)
	}
	return v, nil
}

// SetProperty sets a property.
func (c *Client) SetProperty(name string, value any) error {
	_, err := c.SendCommand("set_property", name, value)
	return err
}

// Position returns the playback position in seconds.
func (c *Client) Position() (float64, error) {
	return c.GetFloat("time-pos")
}

// Duration returns the media duration in seconds.
func (c *Client) Duration() (float64, error) {
	return c.GetFloat("duration")
}

// SetPaused pauses or resumes playback.
func (c *Client) SetPaused(paused bool) error {
	return c.SetProperty("pause", paused)
}

// TogglePause flips the pause state.
func (c *Client) TogglePause() error {
	_, err := c.SendCommand("cycle", "pause")
	return err
}

// SeekRelative moves the playback position by seconds.
func (c *Client) SeekRelative(seconds float64) error {
	_, err := c.SendCommand("seek", seconds, "relative")
	return err
}

// ObserveProperty asks mpv to emit property-change events for name.
func (c *Client) ObserveProperty(id int64, name string) error {
	_, err := c.SendCommand("observe_property", id, name)
	return err
}
