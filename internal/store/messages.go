// Package store provides PostgreSQL-backed persistence for direct messages
// and notifications. Realtime delivery is handled elsewhere; this package is
// the durable record that survives reconnects and powers conversation history.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// MaxContentLength caps message content, matching the client-side limit.
const MaxContentLength = 5000

// Store manages messages and notifications in PostgreSQL.
type Store struct {
	db *sql.DB
}

// Message is a persisted direct message between two users.
type Message struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"senderId"`
	RecipientID string    `json:"recipientId"`
	Content     string    `json:"content"`
	IsRead      bool      `json:"isRead"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewStore creates a store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// CreateMessage inserts a message. The caller supplies the id (the same
// uuid used on the realtime path, so the persisted row and the delivered
// event refer to the same message).
func (s *Store) CreateMessage(ctx context.Context, msg *Message) error {
	if msg.SenderID == "" || msg.RecipientID == "" {
		return fmt.Errorf("store: message requires sender and recipient")
	}
	if msg.Content == "" || len(msg.Content) > MaxContentLength {
		return fmt.Errorf("store: message content length %d out of range", len(msg.Content))
	}

	const query = `
		INSERT INTO messages (id, sender_id, recipient_id, content, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.ExecContext(ctx, query,
		msg.ID,
		msg.SenderID,
		msg.RecipientID,
		msg.Content,
		msg.IsRead,
		msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert message: %w", err)
	}
	return nil
}

// Conversation returns the most recent messages exchanged between two users,
// newest first, capped at limit.
func (s *Store) Conversation(ctx context.Context, userA, userB string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}

	const query = `
		SELECT id, sender_id, recipient_id, content, is_read, created_at
		FROM messages
		WHERE (sender_id = $1 AND recipient_id = $2)
		   OR (sender_id = $2 AND recipient_id = $1)
		ORDER BY created_at DESC
		LIMIT $3`

	rows, err := s.db.QueryContext(ctx, query, userA, userB, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query conversation: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Content, &m.IsRead, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate conversation: %w", err)
	}
	return messages, nil
}

// MarkMessageRead flags a single message as read. Only the recipient may
// mark a message; the reader id is checked in the WHERE clause so a stray
// request from anyone else is a silent no-op reported as not found.
func (s *Store) MarkMessageRead(ctx context.Context, messageID, readerID string) (bool, error) {
	const query = `
		UPDATE messages
		SET is_read = TRUE
		WHERE id = $1 AND recipient_id = $2 AND NOT is_read`

	res, err := s.db.ExecContext(ctx, query, messageID, readerID)
	if err != nil {
		return false, fmt.Errorf("store: mark message read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: mark message read: %w", err)
	}
	return n > 0, nil
}

// ConversationSummary is one row of a user's conversation list: the other
// participant, the most recent message exchanged, and how many of their
// messages remain unread.
type ConversationSummary struct {
	PartnerID   string  `json:"partnerId"`
	LastMessage Message `json:"lastMessage"`
	UnreadCount int     `json:"unreadCount"`
}

// Conversations returns one summary per conversation partner, ordered by the
// most recent message, newest first.
func (s *Store) Conversations(ctx context.Context, userID string) ([]ConversationSummary, error) {
	const query = `
		WITH convo AS (
			SELECT id, sender_id, recipient_id, content, is_read, created_at,
			       CASE WHEN sender_id = $1 THEN recipient_id ELSE sender_id END AS partner_id
			FROM messages
			WHERE sender_id = $1 OR recipient_id = $1
		),
		latest AS (
			SELECT DISTINCT ON (partner_id)
			       partner_id, id, sender_id, recipient_id, content, is_read, created_at
			FROM convo
			ORDER BY partner_id, created_at DESC
		)
		SELECT l.partner_id, l.id, l.sender_id, l.recipient_id, l.content, l.is_read, l.created_at,
		       (SELECT COUNT(*) FROM messages m
		        WHERE m.recipient_id = $1 AND m.sender_id = l.partner_id AND NOT m.is_read)
		FROM latest l
		ORDER BY l.created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("store: query conversations: %w", err)
	}
	defer rows.Close()

	var summaries []ConversationSummary
	for rows.Next() {
		var c ConversationSummary
		m := &c.LastMessage
		if err := rows.Scan(&c.PartnerID, &m.ID, &m.SenderID, &m.RecipientID, &m.Content, &m.IsRead, &m.CreatedAt, &c.UnreadCount); err != nil {
			return nil, fmt.Errorf("store: scan conversation summary: %w", err)
		}
		summaries = append(summaries, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate conversations: %w", err)
	}
	return summaries, nil
}

// MarkConversationRead flags every unread message sent by otherID to
// readerID as read and returns how many were updated. Called when the reader
// opens the conversation.
func (s *Store) MarkConversationRead(ctx context.Context, readerID, otherID string) (int64, error) {
	const query = `
		UPDATE messages
		SET is_read = TRUE
		WHERE recipient_id = $1 AND sender_id = $2 AND NOT is_read`

	res, err := s.db.ExecContext(ctx, query, readerID, otherID)
	if err != nil {
		return 0, fmt.Errorf("store: mark conversation read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: mark conversation read: %w", err)
	}
	return n, nil
}

// DeleteMessage removes a message. Only a participant (sender or recipient)
// may delete; the id check in the WHERE clause makes anything else a not
// found. Returns whether a row was deleted.
func (s *Store) DeleteMessage(ctx context.Context, messageID, userID string) (bool, error) {
	const query = `
		DELETE FROM messages
		WHERE id = $1 AND (sender_id = $2 OR recipient_id = $2)`

	res, err := s.db.ExecContext(ctx, query, messageID, userID)
	if err != nil {
		return false, fmt.Errorf("store: delete message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: delete message: %w", err)
	}
	return n > 0, nil
}

// UnreadCount returns how many unread messages a user has across all
// conversations.
func (s *Store) UnreadCount(ctx context.Context, userID string) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM messages
		WHERE recipient_id = $1 AND NOT is_read`

	var count int
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("store: unread count: %w", err)
	}
	return count, nil
}
