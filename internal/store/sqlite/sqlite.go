package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/pairchat-server/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file; ":memory:" works for tests.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		login_id      TEXT NOT NULL UNIQUE,
		email         TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL DEFAULT '',
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email) WHERE email != '';

	CREATE TABLE IF NOT EXISTS chats (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS chat_members (
		chat_id  INTEGER NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
		user_id  INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		PRIMARY KEY (chat_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id    INTEGER REFERENCES chats(id) ON DELETE SET NULL,
		sender_id  INTEGER NOT NULL,
		kind       TEXT NOT NULL DEFAULT 'message',
		body       TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// FindUsers returns users matching the filter; an empty filter matches all.
func (s *SQLiteStore) FindUsers(ctx context.Context, filter store.UserFilter) ([]*store.User, error) {
	query := `SELECT id, login_id, email, password_hash, created_at FROM users`
	var (
		conds []string
		args  []any
	)
	if len(filter.IDs) > 0 {
		conds = append(conds, `id IN (`+placeholders(len(filter.IDs))+`)`)
		for _, id := range filter.IDs {
			args = append(args, id)
		}
	}
	if filter.LoginID != "" {
		conds = append(conds, `login_id = ?`)
		args = append(args, filter.LoginID)
	}
	if filter.Email != "" {
		conds = append(conds, `email = ?`)
		args = append(args, filter.Email)
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []*store.User
	for rows.Next() {
		var u store.User
		if err := rows.Scan(&u.ID, &u.LoginID, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

// CreateUser creates a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, data store.UserData) (*store.User, error) {
	query := `
		INSERT INTO users (login_id, email, password_hash)
		VALUES (?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, data.LoginID, data.Email, data.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}
	return s.userByID(ctx, id)
}

// DeleteUser removes a user record by id.
func (s *SQLiteStore) DeleteUser(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) userByID(ctx context.Context, id int64) (*store.User, error) {
	query := `SELECT id, login_id, email, password_hash, created_at FROM users WHERE id = ?`
	var u store.User
	err := s.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.LoginID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

// ==== ChatStore implementation ====

// FindChats returns chats matching the filter with members and messages populated.
func (s *SQLiteStore) FindChats(ctx context.Context, filter store.ChatFilter) ([]*store.Chat, error) {
	query := `SELECT id, created_at FROM chats`
	var (
		conds []string
		args  []any
	)
	if len(filter.IDs) > 0 {
		conds = append(conds, `id IN (`+placeholders(len(filter.IDs))+`)`)
		for _, id := range filter.IDs {
			args = append(args, id)
		}
	}
	if filter.MemberID != 0 {
		conds = append(conds, `id IN (SELECT chat_id FROM chat_members WHERE user_id = ?)`)
		args = append(args, filter.MemberID)
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	defer rows.Close()

	var chats []*store.Chat
	for rows.Next() {
		var c store.Chat
		if err := rows.Scan(&c.ID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, c := range chats {
		if c.Members, err = s.chatMembers(ctx, c.ID); err != nil {
			return nil, err
		}
		if c.Messages, err = s.chatMessages(ctx, c.ID); err != nil {
			return nil, err
		}
	}
	return chats, nil
}

// CreateChat creates a new chat record with the given member ids.
func (s *SQLiteStore) CreateChat(ctx context.Context, data store.ChatData) (*store.Chat, error) {
	createdAt := data.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `INSERT INTO chats (created_at) VALUES (?)`, createdAt)
	if err != nil {
		return nil, fmt.Errorf("insert chat: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	for i, userID := range data.MemberIDs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO chat_members (chat_id, user_id, position) VALUES (?, ?, ?)`,
			id, userID, i)
		if err != nil {
			return nil, fmt.Errorf("insert chat member: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit chat: %w", err)
	}

	members, err := s.chatMembers(ctx, id)
	if err != nil {
		return nil, err
	}
	return &store.Chat{ID: id, CreatedAt: createdAt, Members: members}, nil
}

// DeleteChat removes a chat record; membership rows cascade.
func (s *SQLiteStore) DeleteChat(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	return nil
}

// AppendMessageRef attaches a created message to a chat.
func (s *SQLiteStore) AppendMessageRef(ctx context.Context, chatID, messageID int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE messages SET chat_id = ? WHERE id = ?`, chatID, messageID)
	if err != nil {
		return fmt.Errorf("append message ref: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNoRows
	}
	return nil
}

// ChatIDsForUser returns the ids of the chats a user belongs to, in join order.
func (s *SQLiteStore) ChatIDsForUser(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id FROM chat_members WHERE user_id = ? ORDER BY chat_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query chat ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan chat id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) chatMembers(ctx context.Context, chatID int64) ([]*store.User, error) {
	query := `
		SELECT u.id, u.login_id, u.email, u.password_hash, u.created_at
		FROM users u
		JOIN chat_members cm ON cm.user_id = u.id
		WHERE cm.chat_id = ?
		ORDER BY cm.position
	`
	rows, err := s.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("query chat members: %w", err)
	}
	defer rows.Close()

	var members []*store.User
	for rows.Next() {
		var u store.User
		if err := rows.Scan(&u.ID, &u.LoginID, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat member: %w", err)
		}
		members = append(members, &u)
	}
	return members, rows.Err()
}

func (s *SQLiteStore) chatMessages(ctx context.Context, chatID int64) ([]*store.Message, error) {
	query := `
		SELECT id, chat_id, sender_id, kind, body, created_at
		FROM messages
		WHERE chat_id = ?
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("query chat messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var m store.Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Kind, &m.Text, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

// ==== MessageStore implementation ====

// CreateMessage creates a new message record, not yet attached to a chat.
func (s *SQLiteStore) CreateMessage(ctx context.Context, data store.MessageData) (*store.Message, error) {
	createdAt := data.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	kind := data.Kind
	if kind == "" {
		kind = "message"
	}

	query := `
		INSERT INTO messages (sender_id, kind, body, created_at)
		VALUES (?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, data.SenderID, kind, data.Text, createdAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return &store.Message{
		ID:        id,
		SenderID:  data.SenderID,
		Kind:      kind,
		Text:      data.Text,
		CreatedAt: createdAt,
	}, nil
}

// UpdateMessageText replaces the text of a message.
func (s *SQLiteStore) UpdateMessageText(ctx context.Context, id int64, text string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE messages SET body = ? WHERE id = ?`, text, id)
	if err != nil {
		return fmt.Errorf("update message text: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNoRows
	}
	return nil
}

// DeleteMessage removes a message record.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// DeleteMessages removes a batch of message records.
func (s *SQLiteStore) DeleteMessages(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	query := `DELETE FROM messages WHERE id IN (` + placeholders(len(ids)) + `)`
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
