// Package statements loads the statement timeline from JSON or SQLite files.
package statements

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/patcon/polis-media-session-test-app/internal/db"
	"github.com/patcon/polis-media-session-test-app/internal/tracker"
)

// DefaultInterval is how far apart Default spaces its statements, in seconds.
const DefaultInterval = 15

var defaultTexts = []string{
	"The city should close downtown streets to cars on weekends.",
	"Public funding should prioritize local businesses over big corporations.",
	"All public meetings should be recorded and archived online.",
	"We should allow citizens to vote directly on annual budget priorities.",
}

// Default returns the built-in demo timeline.
func Default() []tracker.Statement {
	return Cycle(defaultTexts, DefaultInterval)
}

// Cycle spaces texts every seconds apart starting at zero. Ids are 1-based
// positions.
func Cycle(texts []string, every float64) []tracker.Statement {
	out := make([]tracker.Statement, 0, len(texts))
	for i, text := range texts {
		out = append(out, tracker.Statement{
			ID:       strconv.Itoa(i + 1),
			Text:     text,
			Timecode: float64(i) * every,
		})
	}
	return out
}

// Load reads statements from path. Files ending in .json are parsed as a JSON
// array; .db, .sqlite and .sqlite3 files are read through the SQLite store,
// using conversationID or the latest conversation when it is empty.
func Load(path, conversationID string) ([]tracker.Statement, error) {
	raw, err := loadRaw(path, conversationID)
	if err != nil {
		return nil, err
	}
	out, _ := normalize(raw)
	return out, nil
}

// LoadOrEmpty is Load that logs failures and returns an empty timeline.
func LoadOrEmpty(path, conversationID string, logger *slog.Logger) []tracker.Statement {
	raw, err := loadRaw(path, conversationID)
	if err != nil {
		logger.Warn("statements unavailable, continuing without", "path", path, "error", err)
		return nil
	}
	statements, dropped := normalize(raw)
	if dropped > 0 {
		logger.Warn("dropped statements without text or with a duplicate id", "path", path, "dropped", dropped)
	}
	logger.Info("statements loaded", "path", path, "count", len(statements))
	return statements
}

func loadRaw(path, conversationID string) ([]tracker.Statement, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open statements: %w", err)
		}
		defer f.Close()
		return parseJSON(f)
	case ".db", ".sqlite", ".sqlite3":
		return loadSQLite(path, conversationID)
	}
	return nil, fmt.Errorf("unsupported statement file %q", path)
}

type jsonStatement struct {
	StatementID json.RawMessage `json:"statementId"`
	Text        string          `json:"text"`
	Timecode    float64         `json:"timecode"`
}

// ParseJSON decodes an array of {statementId, text, timecode} records.
// statementId may be a string or a number. Records without one get a
// positional id that no other record uses.
func ParseJSON(r io.Reader) ([]tracker.Statement, error) {
	raw, err := parseJSON(r)
	if err != nil {
		return nil, err
	}
	return Normalize(raw), nil
}

func parseJSON(r io.Reader) ([]tracker.Statement, error) {
	var raw []jsonStatement
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode statements: %w", err)
	}

	out := make([]tracker.Statement, 0, len(raw))
	for i, rs := range raw {
		id, err := decodeID(rs.StatementID)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i, err)
		}
		out = append(out, tracker.Statement{ID: id, Text: rs.Text, Timecode: rs.Timecode})
	}
	return out, nil
}

func decodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("decode statementId: %w", err)
		}
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("decode statementId: %w", err)
	}
	return n.String(), nil
}

// Normalize sorts by timecode, drops statements without text and keeps the
// first statement for each id. Empty ids are replaced by the record's 1-based
// position, or the next integer no other record uses.
func Normalize(in []tracker.Statement) []tracker.Statement {
	out, _ := normalize(in)
	return out
}

func normalize(in []tracker.Statement) ([]tracker.Statement, int) {
	taken := make(map[string]bool, len(in))
	for _, s := range in {
		if s.ID != "" {
			taken[s.ID] = true
		}
	}

	seen := make(map[string]bool, len(in))
	out := make([]tracker.Statement, 0, len(in))
	for i, s := range in {
		if s.ID == "" {
			s.ID = freeID(i+1, taken)
			taken[s.ID] = true
		}
		s.Text = strings.TrimSpace(s.Text)
		if s.Text == "" || seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timecode < out[j].Timecode
	})
	return out, len(in) - len(out)
}

func freeID(n int, taken map[string]bool) string {
	for taken[strconv.Itoa(n)] {
		n++
	}
	return strconv.Itoa(n)
}

func loadSQLite(path, conversationID string) ([]tracker.Statement, error) {
	store, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	if conversationID == "" {
		conv, err := store.LatestConversation()
		if err != nil {
			return nil, err
		}
		if conv == nil {
			return nil, fmt.Errorf("no conversations in %s", path)
		}
		conversationID = conv.ID
	} else {
		conv, err := store.Conversation(conversationID)
		if err != nil {
			return nil, err
		}
		if conv == nil {
			return nil, fmt.Errorf("conversation %q not found in %s", conversationID, path)
		}
	}

	rows, err := store.StatementsForConversation(conversationID)
	if err != nil {
		return nil, err
	}

	out := make([]tracker.Statement, 0, len(rows))
	for _, row := range rows {
		out = append(out, tracker.Statement{ID: row.ID, Text: row.Text, Timecode: row.Timecode})
	}
	return out, nil
}
