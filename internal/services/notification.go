package services

import (
	"context"
	"log/slog"

	"github.com/inkwell-comics/modsvc/internal/presence"
	"github.com/inkwell-comics/modsvc/types"
)

// NotificationRepository defines persistence operations for notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n types.Notification) (types.Notification, error)
	ListByUser(ctx context.Context, userID, limit int) ([]types.Notification, error)
	CountUnread(ctx context.Context, userID int) (int, error)
	MarkRead(ctx context.Context, userID, id int) error
	MarkAllRead(ctx context.Context, userID int) (int64, error)
}

// NotificationService stores in-app notifications and pushes them to the
// recipient's live connections.
type NotificationService struct {
	repo        NotificationRepository
	users       UserLookup
	broadcaster presence.Broadcaster
	logger      *slog.Logger
}

func NewNotificationService(
	repo NotificationRepository,
	users UserLookup,
	broadcaster presence.Broadcaster,
	logger *slog.Logger,
) *NotificationService {
	if broadcaster == nil {
		broadcaster = presence.NopBroadcaster{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationService{
		repo:        repo,
		users:       users,
		broadcaster: broadcaster,
		logger:      logger.With("component", "notifications"),
	}
}

// CreateAndPush stores a notification for a user or moderator. Administrators
// do not receive notifications; ok is false for them.
func (s *NotificationService) CreateAndPush(ctx context.Context, userID int, title, message, link string) (types.Notification, bool, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return types.Notification{}, false, err
	}
	if user.Role == types.RoleAdmin {
		return types.Notification{}, false, nil
	}

	n, err := s.repo.Create(ctx, types.Notification{
		UserID:  userID,
		Title:   title,
		Message: message,
		Link:    link,
	})
	if err != nil {
		return types.Notification{}, false, err
	}
	s.broadcaster.Notify(presence.User(userID), presence.EventReceiveNotification, n)
	return n, true, nil
}

// HandleDecision turns a decision event into a notification.
func (s *NotificationService) HandleDecision(ctx context.Context, event types.DecisionEvent) error {
	_, ok, err := s.CreateAndPush(ctx, event.UserID, event.Title, event.Message, event.Link)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Debug("skipped decision notification", "kind", event.Kind, "user_id", event.UserID)
	}
	return nil
}

func (s *NotificationService) List(ctx context.Context, userID, limit int) ([]types.Notification, error) {
	return s.repo.ListByUser(ctx, userID, limit)
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID int) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id int) error {
	return s.repo.MarkRead(ctx, userID, id)
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID int) (int64, error) {
	return s.repo.MarkAllRead(ctx, userID)
}
