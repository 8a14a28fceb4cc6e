package notifications

import (
	"context"
	"strings"
	"time"

	"github.com/conedex/conedex/internal/app/domain/notification"
	"github.com/conedex/conedex/internal/app/domain/profile"
	"github.com/conedex/conedex/internal/app/storage"
	svcerrors "github.com/conedex/conedex/internal/errors"
	"github.com/conedex/conedex/pkg/logger"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Service persists in-app notifications and pushes them to live subscribers.
type Service struct {
	store    storage.NotificationStore
	profiles storage.ProfileStore
	hub      *Hub
	log      *logger.Logger
	now      func() time.Time
}

// New constructs a notification service. A nil hub gets a private one.
func New(store storage.NotificationStore, profiles storage.ProfileStore, hub *Hub, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("notifications")
	}
	if hub == nil {
		hub = NewHub(0)
	}
	return &Service{
		store:    store,
		profiles: profiles,
		hub:      hub,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Hub returns the live fan-out hub.
func (s *Service) Hub() *Hub { return s.hub }

// Notify stores a notification and publishes it. Failures are logged and
// never returned so callers can fire and forget.
func (s *Service) Notify(ctx context.Context, userID string, typ notification.Type, title, message, link string) {
	if _, err := s.create(ctx, userID, typ, title, message, link); err != nil {
		s.log.WithContext(ctx).WithError(err).
			WithField("user_id", userID).
			WithField("type", typ).
			Warn("notification not delivered")
	}
}

func (s *Service) create(ctx context.Context, userID string, typ notification.Type, title, message, link string) (notification.Notification, error) {
	userID = strings.TrimSpace(userID)
	title = strings.TrimSpace(title)
	if userID == "" {
		return notification.Notification{}, svcerrors.Validation("user_id is required")
	}
	if !typ.Valid() {
		return notification.Notification{}, svcerrors.Validation("unknown notification type %q", typ)
	}
	if title == "" {
		return notification.Notification{}, svcerrors.Validation("title is required")
	}
	n, err := s.store.CreateNotification(ctx, notification.Notification{
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Message:   strings.TrimSpace(message),
		Link:      strings.TrimSpace(link),
		CreatedAt: s.now(),
	})
	if err != nil {
		return notification.Notification{}, err
	}
	s.hub.Publish(n)
	return n, nil
}

// Broadcast notifies every active profile and returns how many were reached.
func (s *Service) Broadcast(ctx context.Context, typ notification.Type, title, message string) (int, error) {
	if !typ.Valid() {
		return 0, svcerrors.Validation("unknown notification type %q", typ)
	}
	if strings.TrimSpace(title) == "" {
		return 0, svcerrors.Validation("title is required")
	}
	profiles, err := s.profiles.ListProfiles(ctx, profile.Filter{Status: profile.StatusActive})
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, p := range profiles {
		if _, err := s.create(ctx, p.ID, typ, title, message, ""); err != nil {
			s.log.WithError(err).WithField("user_id", p.ID).Warn("broadcast delivery failed")
			continue
		}
		sent++
	}
	s.log.WithField("type", typ).WithField("recipients", sent).Info("broadcast sent")
	return sent, nil
}

// List returns the user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]notification.Notification, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return s.store.ListNotifications(ctx, userID, unreadOnly, limit)
}

// UnreadCount returns the number of unread notifications.
func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.store.CountUnread(ctx, userID)
}

// MarkRead marks one of the user's notifications read.
func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	return s.store.MarkRead(ctx, id, s.now())
}

// MarkAllRead marks every unread notification of the user read.
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return s.store.MarkAllRead(ctx, userID, s.now())
}

// Delete removes one of the user's notifications.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	return s.store.DeleteNotification(ctx, id)
}

// owned hides other users' notifications behind not-found.
func (s *Service) owned(ctx context.Context, userID, id string) (notification.Notification, error) {
	n, err := s.store.GetNotification(ctx, id)
	if err != nil {
		return notification.Notification{}, err
	}
	if n.UserID != userID {
		return notification.Notification{}, svcerrors.NotFound("notification", id)
	}
	return n, nil
}
