// internal/service/notification/service.go
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stockwatch/internal/domain/market"
	"stockwatch/internal/domain/notification"
	xerrors "stockwatch/internal/pkg/errors"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

type NotificationRepository interface {
	Create(ctx context.Context, n *notification.Notification) error
	History(ctx context.Context, userID string, limit, offset int) ([]notification.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkAsRead(ctx context.Context, id, userID string) error
	MarkAllAsRead(ctx context.Context, userID string) error
	Clear(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

type PriceAlertRepository interface {
	Create(ctx context.Context, a *notification.PriceAlert) error
	FindByID(ctx context.Context, id, userID string) (*notification.PriceAlert, error)
	ListByUser(ctx context.Context, userID string) ([]notification.PriceAlert, error)
	ListActive(ctx context.Context) ([]notification.PriceAlert, error)
	Update(ctx context.Context, a *notification.PriceAlert) error
	Delete(ctx context.Context, id, userID string) error
}

type PreferencesRepository interface {
	Get(ctx context.Context, userID string) (*notification.Preferences, error)
	Upsert(ctx context.Context, p *notification.Preferences) error
}

// Pusher delivers realtime events to a user's open connections.
type Pusher interface {
	PushNotification(userID string, n *notification.Notification)
	PushPriceAlert(userID string, a *notification.PriceAlert)
	PushUnreadCount(userID string, count int)
}

// NotificationService handles notification business logic
type NotificationService struct {
	notifications NotificationRepository
	alerts        PriceAlertRepository
	preferences   PreferencesRepository
	pusher        Pusher
	logger        *zap.Logger
	now           func() time.Time
}

func NewNotificationService(
	notifications NotificationRepository,
	alerts PriceAlertRepository,
	preferences PreferencesRepository,
	pusher Pusher,
	logger *zap.Logger,
) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		notifications: notifications,
		alerts:        alerts,
		preferences:   preferences,
		pusher:        pusher,
		logger:        logger,
		now:           time.Now,
	}
}

// ========== Notifications ==========

// CreateAndPush persists a notification and pushes it to the user's connections.
func (s *NotificationService) CreateAndPush(ctx context.Context, req *notification.CreateNotificationRequest) (*notification.Notification, error) {
	priority := req.Priority
	if priority == "" {
		priority = notification.PriorityMedium
	}

	n := &notification.Notification{
		ID:        ulid.Make().String(),
		UserID:    req.UserID,
		Type:      req.Type,
		Title:     req.Title,
		Message:   req.Message,
		Timestamp: s.now(),
		Priority:  priority,
		Status:    notification.StatusUnread,
		ExpiresAt: req.ExpiresAt,
		Actions:   req.Actions,
		Data:      req.Data,
	}

	if err := s.notifications.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	if s.pusher != nil {
		s.pusher.PushNotification(n.UserID, n)
	}
	return n, nil
}

// History returns live notifications newest first plus the unread count.
func (s *NotificationService) History(ctx context.Context, userID string, filters notification.HistoryFilters) (*notification.HistoryResponse, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)
	offset := max(filters.Offset, 0)

	list, err := s.notifications.History(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get notifications: %w", err)
	}
	unread, err := s.notifications.UnreadCount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count unread: %w", err)
	}

	return &notification.HistoryResponse{Notifications: list, UnreadCount: unread}, nil
}

// MarkAsRead marks a notification as read and pushes the new unread count.
func (s *NotificationService) MarkAsRead(ctx context.Context, id, userID string) error {
	if err := s.notifications.MarkAsRead(ctx, id, userID); err != nil {
		return xerrors.Wrap(err, "failed to mark as read")
	}
	s.pushUnreadCount(ctx, userID)
	return nil
}

func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID string) error {
	if err := s.notifications.MarkAllAsRead(ctx, userID); err != nil {
		return fmt.Errorf("failed to mark all as read: %w", err)
	}
	if s.pusher != nil {
		s.pusher.PushUnreadCount(userID, 0)
	}
	return nil
}

// Clear hides every notification of the user from history.
func (s *NotificationService) Clear(ctx context.Context, userID string) error {
	if err := s.notifications.Clear(ctx, userID); err != nil {
		return fmt.Errorf("failed to clear notifications: %w", err)
	}
	if s.pusher != nil {
		s.pusher.PushUnreadCount(userID, 0)
	}
	return nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.notifications.UnreadCount(ctx, userID)
}

// DeleteExpired removes expired notifications. Runs on the monitor schedule.
func (s *NotificationService) DeleteExpired(ctx context.Context) (int64, error) {
	deleted, err := s.notifications.DeleteExpired(ctx)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.logger.Info("deleted expired notifications", zap.Int64("count", deleted))
	}
	return deleted, nil
}

func (s *NotificationService) pushUnreadCount(ctx context.Context, userID string) {
	if s.pusher == nil {
		return
	}
	count, err := s.notifications.UnreadCount(ctx, userID)
	if err != nil {
		s.logger.Warn("failed to get unread count", zap.String("user_id", userID), zap.Error(err))
		return
	}
	s.pusher.PushUnreadCount(userID, count)
}

// ========== Preferences ==========

// Preferences returns the stored preferences or the defaults.
func (s *NotificationService) Preferences(ctx context.Context, userID string) (*notification.Preferences, error) {
	p, err := s.preferences.Get(ctx, userID)
	if errors.Is(err, xerrors.ErrNotFound) {
		d := notification.DefaultPreferences()
		d.UserID = userID
		return &d, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}
	return p, nil
}

// UpdatePreferences replaces the preferences. DND times must be "HH:MM".
func (s *NotificationService) UpdatePreferences(ctx context.Context, userID string, p notification.Preferences) (*notification.Preferences, error) {
	if err := validateClock(p.DoNotDisturb.StartTime); err != nil {
		return nil, err
	}
	if err := validateClock(p.DoNotDisturb.EndTime); err != nil {
		return nil, err
	}

	p.UserID = userID
	if err := s.preferences.Upsert(ctx, &p); err != nil {
		return nil, fmt.Errorf("failed to save preferences: %w", err)
	}
	return &p, nil
}

func validateClock(v string) error {
	if v == "" {
		return nil
	}
	if _, err := time.Parse("15:04", v); err != nil {
		return xerrors.Wrap(xerrors.ErrInvalidInput, fmt.Sprintf("invalid time %q, expected HH:MM", v))
	}
	return nil
}

// ========== Price alerts ==========

func (s *NotificationService) ListPriceAlerts(ctx context.Context, userID string) ([]notification.PriceAlert, error) {
	return s.alerts.ListByUser(ctx, userID)
}

func (s *NotificationService) CreatePriceAlert(ctx context.Context, userID string, req *notification.CreatePriceAlertRequest) (*notification.PriceAlert, error) {
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if err := market.ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	if !req.Condition.Valid() {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "unknown condition "+string(req.Condition))
	}

	frequency := req.Frequency
	if frequency == "" {
		frequency = notification.FrequencyOnce
	}
	if !frequency.Valid() {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "unknown frequency "+string(frequency))
	}

	a := &notification.PriceAlert{
		ID:        ulid.Make().String(),
		UserID:    userID,
		Symbol:    symbol,
		Condition: req.Condition,
		Value:     req.Value,
		Frequency: frequency,
		CreatedAt: s.now(),
	}
	if err := s.alerts.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to create price alert: %w", err)
	}
	return a, nil
}

// UpdatePriceAlert applies the set fields. Clearing Triggered re-arms the alert.
func (s *NotificationService) UpdatePriceAlert(ctx context.Context, userID, id string, req *notification.UpdatePriceAlertRequest) (*notification.PriceAlert, error) {
	a, err := s.alerts.FindByID(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	if req.Condition != nil {
		if !req.Condition.Valid() {
			return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "unknown condition "+string(*req.Condition))
		}
		a.Condition = *req.Condition
	}
	if req.Value != nil {
		a.Value = *req.Value
	}
	if req.Frequency != nil {
		if !req.Frequency.Valid() {
			return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "unknown frequency "+string(*req.Frequency))
		}
		a.Frequency = *req.Frequency
	}
	if req.Triggered != nil {
		a.Triggered = *req.Triggered
	}

	if err := s.alerts.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *NotificationService) DeletePriceAlert(ctx context.Context, userID, id string) error {
	return s.alerts.Delete(ctx, id, userID)
}
