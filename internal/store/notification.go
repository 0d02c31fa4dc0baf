package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/inkwell-comics/modsvc/types"
)

// NotificationRepository handles persistence for in-app notifications.
type NotificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, n types.Notification) (types.Notification, error) {
	n.CreatedAt = time.Now()
	n.IsRead = false

	const query = `
		INSERT INTO notifications (user_id, title, message, link, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	if err := r.db.QueryRowContext(ctx, query,
		n.UserID,
		n.Title,
		n.Message,
		n.Link,
		n.IsRead,
		n.CreatedAt,
	).Scan(&n.ID); err != nil {
		return types.Notification{}, err
	}
	return n, nil
}

// ListByUser returns the newest notifications for a user.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID, limit int) ([]types.Notification, error) {
	if limit < 1 {
		limit = 20
	}
	const query = `
		SELECT id, user_id, title, message, link, is_read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]types.Notification, 0, limit)
	for rows.Next() {
		var n types.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Link, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID int) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM notifications WHERE user_id = $1 AND NOT is_read`, userID).Scan(&count)
	return count, err
}

// MarkRead marks one of the user's notifications as read. Notifications of
// other users yield ErrNotFound.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID, id int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID int) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND NOT is_read`, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
