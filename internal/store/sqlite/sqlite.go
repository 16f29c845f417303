package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/mentorwire/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(Schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply a custom schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with single connection; it also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser inserts an account. A taken username yields store.ErrConflict.
func (s *SQLiteStore) CreateUser(ctx context.Context, u store.User) (*store.User, error) {
	if u.Role == "" {
		u.Role = store.RoleStudent
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, display_name, role, password_hash) VALUES (?, ?, ?, ?)`,
		u.Username, u.DisplayName, string(u.Role), u.PasswordHash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("user %q: %w", u.Username, store.ErrConflict)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

const userColumns = `id, username, display_name, role, password_hash, created_at`

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username))
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*store.User, error) {
	var (
		user store.User
		role string
	)
	err := row.Scan(&user.ID, &user.Username, &user.DisplayName, &role, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	user.Role = store.Role(role)
	return &user, nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

// ==== MessageStore implementation ====

// SaveMessage inserts msg unless (sender_id, client_id) already exists.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) (bool, error) {
	if msg.ConversationKey == "" {
		msg.ConversationKey = store.DirectKey(msg.SenderID, msg.ReceiverID)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if msg.Type == "" {
		msg.Type = store.MessageTypeText
	}

	query := `
		INSERT INTO messages (client_id, sender_id, receiver_id, conversation_key, body, type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (sender_id, client_id) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query,
		msg.ClientID, msg.SenderID, msg.ReceiverID, msg.ConversationKey, msg.Body, msg.Type, msg.CreatedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("insert message: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		existing, err := s.getMessageByClientID(ctx, msg.SenderID, msg.ClientID)
		if err != nil {
			return false, err
		}
		*msg = *existing
		return false, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("get last insert id: %w", err)
	}
	msg.ID = id

	return true, nil
}

func (s *SQLiteStore) getMessageByClientID(ctx context.Context, senderID int64, clientID string) (*store.Message, error) {
	query := `
		SELECT id, client_id, sender_id, receiver_id, conversation_key, body, type, created_at
		FROM messages
		WHERE sender_id = ? AND client_id = ?
	`
	var m store.Message
	err := s.db.QueryRowContext(ctx, query, senderID, clientID).Scan(
		&m.ID, &m.ClientID, &m.SenderID, &m.ReceiverID, &m.ConversationKey, &m.Body, &m.Type, &m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}
	return &m, nil
}

// ListConversation retrieves messages between two users with pagination.
func (s *SQLiteStore) ListConversation(ctx context.Context, userA, userB int64, limit int, beforeID *int64) ([]*store.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	key := store.DirectKey(userA, userB)
	query := `
		SELECT id, client_id, sender_id, receiver_id, conversation_key, body, type, created_at
		FROM messages
		WHERE conversation_key = ?
	`
	args := []any{key}
	if beforeID != nil {
		query += " AND id < ?"
		args = append(args, *beforeID)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var m store.Message
		if err := rows.Scan(&m.ID, &m.ClientID, &m.SenderID, &m.ReceiverID, &m.ConversationKey, &m.Body, &m.Type, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}

// ==== NotificationStore implementation ====

// CreateNotification persists a notification. ID and CreatedAt must be set by the caller.
func (s *SQLiteStore) CreateNotification(ctx context.Context, n *store.Notification) error {
	payload := string(n.Payload)
	if payload == "" {
		payload = "{}"
	}
	query := `
		INSERT INTO notifications (id, recipient, type, payload, is_read, is_seen, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, n.ID, n.Recipient, n.Type, payload, n.IsRead, n.IsSeen, n.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns the recipient's notifications, newest first.
func (s *SQLiteStore) ListNotifications(ctx context.Context, recipient int64, limit, offset int) ([]*store.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, recipient, type, payload, is_read, is_seen, created_at
		FROM notifications
		WHERE recipient = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query, recipient, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var list []*store.Notification
	for rows.Next() {
		var n store.Notification
		var payload string
		if err := rows.Scan(&n.ID, &n.Recipient, &n.Type, &payload, &n.IsRead, &n.IsSeen, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Payload = []byte(payload)
		list = append(list, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}

	return list, nil
}

// CountUnread counts notifications the recipient has not read.
func (s *SQLiteStore) CountUnread(ctx context.Context, recipient int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient = ? AND is_read = 0`, recipient,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

// MarkRead marks a single notification as read and seen.
func (s *SQLiteStore) MarkRead(ctx context.Context, recipient int64, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1, is_seen = 1 WHERE id = ? AND recipient = ?`, id, recipient,
	)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return requireAffected(result, "notification")
}

// MarkAllRead marks every notification of the recipient as read and seen.
func (s *SQLiteStore) MarkAllRead(ctx context.Context, recipient int64) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1, is_seen = 1 WHERE recipient = ? AND is_read = 0`, recipient,
	)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return result.RowsAffected()
}

// MarkAllSeen marks every notification of the recipient as seen.
func (s *SQLiteStore) MarkAllSeen(ctx context.Context, recipient int64) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_seen = 1 WHERE recipient = ? AND is_seen = 0`, recipient,
	)
	if err != nil {
		return 0, fmt.Errorf("mark all seen: %w", err)
	}
	return result.RowsAffected()
}

// DeleteNotification removes a notification owned by recipient.
func (s *SQLiteStore) DeleteNotification(ctx context.Context, recipient int64, id string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE id = ? AND recipient = ?`, id, recipient,
	)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	return requireAffected(result, "notification")
}

func requireAffected(result sql.Result, what string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return nil
}

var _ store.Store = (*SQLiteStore)(nil)
