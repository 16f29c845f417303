package sqlite

// Schema creates every table the server needs. Statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	display_name  TEXT NOT NULL DEFAULT '',
	role          TEXT NOT NULL DEFAULT 'student' CHECK (role IN ('student', 'tutor')),
	password_hash TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	client_id        TEXT NOT NULL,
	sender_id        INTEGER NOT NULL,
	receiver_id      INTEGER NOT NULL,
	conversation_key TEXT NOT NULL,
	body             TEXT NOT NULL,
	type             TEXT NOT NULL DEFAULT 'text',
	created_at       DATETIME NOT NULL,
	UNIQUE (sender_id, client_id)
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_key, id DESC);

CREATE TABLE IF NOT EXISTS notifications (
	id         TEXT PRIMARY KEY,
	recipient  INTEGER NOT NULL,
	type       TEXT NOT NULL,
	payload    TEXT NOT NULL DEFAULT '{}',
	is_read    BOOLEAN NOT NULL DEFAULT 0,
	is_seen    BOOLEAN NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient, created_at DESC);
`
