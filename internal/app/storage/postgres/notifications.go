package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/conedex/conedex/internal/app/domain/notification"
)

const notificationColumns = `id, user_id, type, title, message, link, read, read_at, created_at`

// --- NotificationStore -------------------------------------------------------

func (s *Store) CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES (:id, :user_id, :type, :title, :message, :link, :read, :read_at, :created_at)
	`, n)
	if err != nil {
		return notification.Notification{}, mapErr(err, "notification", n.ID)
	}
	return n, nil
}

func (s *Store) GetNotification(ctx context.Context, id string) (notification.Notification, error) {
	var n notification.Notification
	if err := s.db.GetContext(ctx, &n, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id); err != nil {
		return notification.Notification{}, mapErr(err, "notification", id)
	}
	return n, nil
}

func (s *Store) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]notification.Notification, error) {
	w := where{}
	w.add("user_id = ?", userID)
	if unreadOnly {
		w.addRaw("NOT read")
	}
	query := `SELECT ` + notificationColumns + ` FROM notifications` + w.String() + ` ORDER BY created_at DESC` + w.page(limit, 0)

	result := []notification.Notification{}
	if err := s.db.SelectContext(ctx, &result, query, w.args...); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return result, nil
}

func (s *Store) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT read`, userID); err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

func (s *Store) MarkRead(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read = TRUE, read_at = COALESCE(read_at, $2)
		WHERE id = $1`, id, at)
	if err != nil {
		return mapErr(err, "notification", id)
	}
	return mustAffect(res, "notification", id)
}

func (s *Store) MarkAllRead(ctx context.Context, userID string, at time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read = TRUE, read_at = $2
		WHERE user_id = $1 AND NOT read`, userID, at)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) DeleteNotification(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		return mapErr(err, "notification", id)
	}
	return mustAffect(res, "notification", id)
}
