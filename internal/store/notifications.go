package store

import (
	"context"
	"fmt"
	"time"
)

// validKinds is the set of allowed notification kinds.
var validKinds = map[string]bool{
	"like":    true,
	"comment": true,
	"follow":  true,
	"mention": true,
	"message": true,
	"system":  true,
}

// Notification is a persisted notification for one user.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Kind      string    `json:"kind"`
	ActorID   string    `json:"actorId,omitempty"`
	SubjectID string    `json:"subjectId,omitempty"`
	Body      string    `json:"body"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateNotification inserts a notification. The kind is validated against
// the allowed set before insertion.
func (s *Store) CreateNotification(ctx context.Context, n *Notification) error {
	if n.UserID == "" {
		return fmt.Errorf("store: notification requires user id")
	}
	if !validKinds[n.Kind] {
		return fmt.Errorf("store: invalid notification kind %q", n.Kind)
	}

	const query = `
		INSERT INTO notifications (id, user_id, kind, actor_id, subject_id, body, is_read, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8)`

	_, err := s.db.ExecContext(ctx, query,
		n.ID,
		n.UserID,
		n.Kind,
		n.ActorID,
		n.SubjectID,
		n.Body,
		n.IsRead,
		n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert notification: %w", err)
	}
	return nil
}

// Notifications returns a user's most recent notifications, newest first,
// capped at limit.
func (s *Store) Notifications(ctx context.Context, userID string, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}

	const query = `
		SELECT id, user_id, kind, COALESCE(actor_id, ''), COALESCE(subject_id, ''), body, is_read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query notifications: %w", err)
	}
	defer rows.Close()

	var items []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &n.ActorID, &n.SubjectID, &n.Body, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan notification: %w", err)
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate notifications: %w", err)
	}
	return items, nil
}

// MarkNotificationRead flags one notification as read. The owner id is
// checked in the WHERE clause so users cannot mark each other's
// notifications. Returns whether a row was updated.
func (s *Store) MarkNotificationRead(ctx context.Context, notificationID, userID string) (bool, error) {
	const query = `
		UPDATE notifications
		SET is_read = TRUE
		WHERE id = $1 AND user_id = $2 AND NOT is_read`

	res, err := s.db.ExecContext(ctx, query, notificationID, userID)
	if err != nil {
		return false, fmt.Errorf("store: mark notification read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: mark notification read: %w", err)
	}
	return n > 0, nil
}

// DeleteNotification removes one of the user's notifications. The owner id
// is checked in the WHERE clause so users cannot delete each other's
// notifications. Returns whether a row was deleted.
func (s *Store) DeleteNotification(ctx context.Context, notificationID, userID string) (bool, error) {
	const query = `
		DELETE FROM notifications
		WHERE id = $1 AND user_id = $2`

	res, err := s.db.ExecContext(ctx, query, notificationID, userID)
	if err != nil {
		return false, fmt.Errorf("store: delete notification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: delete notification: %w", err)
	}
	return n > 0, nil
}

// MarkAllNotificationsRead flags every unread notification for a user as
// read and returns how many were updated.
func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	const query = `
		UPDATE notifications
		SET is_read = TRUE
		WHERE user_id = $1 AND NOT is_read`

	res, err := s.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("store: mark all notifications read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: mark all notifications read: %w", err)
	}
	return n, nil
}
