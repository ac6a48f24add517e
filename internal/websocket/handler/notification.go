// internal/websocket/handler/notification.go
package handler

import (
	"context"
	"fmt"

	wstypes "stockwatch/internal/domain/websocket"
	ws "stockwatch/internal/websocket"

	"go.uber.org/zap"
)

// NotificationReader is the part of the notification service the socket
// handler needs.
type NotificationReader interface {
	MarkAsRead(ctx context.Context, id, userID string) error
	MarkAllAsRead(ctx context.Context, userID string) error
	UnreadCount(ctx context.Context, userID string) (int, error)
}

type NotificationHandler struct {
	notifications NotificationReader
	logger        *zap.Logger
}

func NewNotificationHandler(notifications NotificationReader, logger *zap.Logger) *NotificationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationHandler{notifications: notifications, logger: logger}
}

func (h *NotificationHandler) SupportedEvents() []wstypes.EventType {
	return []wstypes.EventType{
		wstypes.EventTypeNotificationRead,
		wstypes.EventTypeNotificationReadAll,
		wstypes.EventTypeNotificationCount,
	}
}

func (h *NotificationHandler) HandleMessage(ctx context.Context, client *ws.Client, msg *wstypes.WSMessage) error {
	switch msg.Type {
	case wstypes.EventTypeNotificationRead:
		return h.handleMarkAsRead(ctx, client, msg)
	case wstypes.EventTypeNotificationReadAll:
		return h.handleMarkAllAsRead(ctx, client)
	case wstypes.EventTypeNotificationCount:
		return h.handleGetCount(ctx, client)
	default:
		return fmt.Errorf("unsupported event type: %s", msg.Type)
	}
}

// handleMarkAsRead acks with the new unread count. The service also pushes
// the count to the user's other connections.
func (h *NotificationHandler) handleMarkAsRead(ctx context.Context, client *ws.Client, msg *wstypes.WSMessage) error {
	var req wstypes.NotificationReadData
	if err := msg.DecodeData(&req); err != nil {
		return fmt.Errorf("invalid mark as read request: %w", err)
	}
	if req.NotificationID == "" {
		return fmt.Errorf("notificationId is required")
	}

	if err := h.notifications.MarkAsRead(ctx, req.NotificationID, client.UserID()); err != nil {
		return err
	}

	count, err := h.notifications.UnreadCount(ctx, client.UserID())
	if err != nil {
		h.logger.Warn("failed to get unread count", zap.String("user_id", client.UserID()), zap.Error(err))
	}
	client.Send(wstypes.EventTypeNotificationRead, map[string]any{
		"notificationId": req.NotificationID,
		"unread":         count,
	})
	return nil
}

func (h *NotificationHandler) handleMarkAllAsRead(ctx context.Context, client *ws.Client) error {
	if err := h.notifications.MarkAllAsRead(ctx, client.UserID()); err != nil {
		return err
	}
	client.Send(wstypes.EventTypeNotificationReadAll, wstypes.CountData{Unread: 0})
	return nil
}

func (h *NotificationHandler) handleGetCount(ctx context.Context, client *ws.Client) error {
	count, err := h.notifications.UnreadCount(ctx, client.UserID())
	if err != nil {
		return err
	}
	client.Send(wstypes.EventTypeNotificationCount, wstypes.CountData{Unread: count})
	return nil
}
