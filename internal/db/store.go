package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store provides read-only access to a statements database.
type Store struct {
	db *sql.DB
}

// Open opens the database in read-only mode.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// StatementsForConversation returns a conversation's statements ordered by
// timecode.
func (s *Store) StatementsForConversation(conversationID string) ([]Statement, error) {
	rows, err := s.db.Query(`
		SELECT id, conversationId, text, timecode, createdAt
		FROM statements
		WHERE conversationId = ?
		ORDER BY timecode ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query statements: %w", err)
	}
	defer rows.Close()

	var statements []Statement
	for rows.Next() {
		var st Statement
		var createdAt float64
		if err := rows.Scan(&st.ID, &st.ConversationID, &st.Text, &st.Timecode, &createdAt); err != nil {
			return nil, fmt.Errorf("scan statement: %w", err)
		}
		st.CreatedAt = timeFromUnix(createdAt)
		statements = append(statements, st)
	}
	return statements, rows.Err()
}

// Conversation returns the conversation with id, or nil if there is none.
func (s *Store) Conversation(id string) (*Conversation, error) {
	return s.scanConversation(s.db.QueryRow(`
		SELECT id, topic, mediaPath, createdAt
		FROM conversations
		WHERE id = ?
	`, id))
}

// LatestConversation returns the most recently created conversation, if any.
func (s *Store) LatestConversation() (*Conversation, error) {
	return s.scanConversation(s.db.QueryRow(`
		SELECT id, topic, mediaPath, createdAt
		FROM conversations
		ORDER BY createdAt DESC
		LIMIT 1
	`))
}

func (s *Store) scanConversation(row *sql.Row) (*Conversation, error) {
	var c Conversation
	var createdAt float64
	var topic, mediaPath sql.NullString

	if err := row.Scan(&c.ID, &topic, &mediaPath, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan conversation: %w", err)
	}

	c.CreatedAt = timeFromUnix(createdAt)
	if topic.Valid {
		c.Topic = topic.String
	}
	if mediaPath.Valid {
		c.MediaPath = mediaPath.String
	}
	return &c, nil
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
