// internal/repository/postgres/notification_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"stockwatch/internal/domain/notification"
	xerrors "stockwatch/internal/pkg/errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

type NotificationRepository struct {
	db *pgxpool.Pool
}

func NewNotificationRepository(db *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create creates a new notification
func (r *NotificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	actions, data, err := marshalNotificationExtras(n)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO notifications (id, user_id, type, title, message, priority, status, actions, data, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`
	err = r.db.QueryRow(ctx, query,
		n.ID, n.UserID, n.Type, n.Title, n.Message, n.Priority, n.Status, actions, data, n.ExpiresAt,
	).Scan(&n.Timestamp)

	return translate(err, "failed to create notification")
}

// History returns live notifications newest first, skipping deleted and expired rows.
func (r *NotificationRepository) History(ctx context.Context, userID string, limit, offset int) ([]notification.Notification, error) {
	query := `
		SELECT id, user_id, type, title, message, priority, status, actions, data, expires_at, created_at
		FROM notifications
		WHERE user_id = $1 AND status <> 'deleted' AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	list := make([]notification.Notification, 0)
	for rows.Next() {
		var (
			n             notification.Notification
			actions, data []byte
		)
		if err := rows.Scan(
			&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Priority, &n.Status,
			&actions, &data, &n.ExpiresAt, &n.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if len(actions) > 0 {
			if err := json.Unmarshal(actions, &n.Actions); err != nil {
				return nil, fmt.Errorf("failed to unmarshal actions: %w", err)
			}
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &n.Data); err != nil {
				return nil, fmt.Errorf("failed to unmarshal data: %w", err)
			}
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

func (r *NotificationRepository) UnreadCount(ctx context.Context, userID string) (int, error) {
	query := `
		SELECT COUNT(*) FROM notifications
		WHERE user_id = $1 AND status = 'unread' AND (expires_at IS NULL OR expires_at > NOW())
	`
	var count int
	if err := r.db.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

// MarkAsRead marks one notification of the user as read.
func (r *NotificationRepository) MarkAsRead(ctx context.Context, id, userID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE notifications SET status = 'read' WHERE id = $1 AND user_id = $2 AND status <> 'deleted'`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark notification as read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *NotificationRepository) MarkAllAsRead(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE notifications SET status = 'read' WHERE user_id = $1 AND status = 'unread'`,
		userID,
	)
	return err
}

// Clear soft-deletes every notification of the user.
func (r *NotificationRepository) Clear(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE notifications SET status = 'deleted' WHERE user_id = $1 AND status <> 'deleted'`,
		userID,
	)
	return err
}

// DeleteExpired removes rows past their expiry.
func (r *NotificationRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM notifications WHERE expires_at IS NOT NULL AND expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}

func marshalNotificationExtras(n *notification.Notification) ([]byte, []byte, error) {
	var actions, data []byte
	var err error
	if len(n.Actions) > 0 {
		if actions, err = json.Marshal(n.Actions); err != nil {
			return nil, nil, fmt.Errorf("failed to marshal actions: %w", err)
		}
	}
	if n.Data != nil {
		if data, err = json.Marshal(n.Data); err != nil {
			return nil, nil, fmt.Errorf("failed to marshal data: %w", err)
		}
	}
	return actions, data, nil
}
