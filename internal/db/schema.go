package db

// Schema creates the tables Store reads. Statement files are produced by
// other tools; the player only ever opens them read-only.
const Schema = `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		topic TEXT,
		mediaPath TEXT,
		createdAt REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS statements (
		id TEXT PRIMARY KEY,
		conversationId TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		text TEXT NOT NULL,
		timecode REAL NOT NULL,
		createdAt REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS statements_timecode ON statements(conversationId, timecode);
`
