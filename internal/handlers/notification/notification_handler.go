// internal/handlers/notification/notification_handler.go
package notification

import (
	"context"
	"net/http"

	"stockwatch/internal/domain/notification"
	"stockwatch/internal/middleware"
	"stockwatch/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

// NotificationService is the notification use case behind the handler.
type NotificationService interface {
	CreateAndPush(ctx context.Context, req *notification.CreateNotificationRequest) (*notification.Notification, error)
	History(ctx context.Context, userID string, filters notification.HistoryFilters) (*notification.HistoryResponse, error)
	MarkAsRead(ctx context.Context, id, userID string) error
	MarkAllAsRead(ctx context.Context, userID string) error
	Clear(ctx context.Context, userID string) error
	Preferences(ctx context.Context, userID string) (*notification.Preferences, error)
	UpdatePreferences(ctx context.Context, userID string, p notification.Preferences) (*notification.Preferences, error)
	ListPriceAlerts(ctx context.Context, userID string) ([]notification.PriceAlert, error)
	CreatePriceAlert(ctx context.Context, userID string, req *notification.CreatePriceAlertRequest) (*notification.PriceAlert, error)
	UpdatePriceAlert(ctx context.Context, userID, id string, req *notification.UpdatePriceAlertRequest) (*notification.PriceAlert, error)
	DeletePriceAlert(ctx context.Context, userID, id string) error
}

type NotificationHandler struct {
	notificationService NotificationService
}

func NewNotificationHandler(notificationService NotificationService) *NotificationHandler {
	return &NotificationHandler{
		notificationService: notificationService,
	}
}

// ========== History ==========

// GetHistory returns the user's notifications, newest first
func (h *NotificationHandler) GetHistory(c *gin.Context) {
	var filters notification.HistoryFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid query parameters", err)
		return
	}

	result, err := h.notificationService.History(c.Request.Context(), middleware.MustGetUserID(c), filters)
	if err != nil {
		response.FromError(c, "failed to get notifications", err)
		return
	}
	if result.Notifications == nil {
		result.Notifications = []notification.Notification{}
	}
	response.JSON(c, http.StatusOK, result)
}

func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	if err := h.notificationService.MarkAsRead(c.Request.Context(), c.Param("id"), middleware.MustGetUserID(c)); err != nil {
		response.FromError(c, "failed to mark notification as read", err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"message": "notification marked as read"})
}

func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	if err := h.notificationService.MarkAllAsRead(c.Request.Context(), middleware.MustGetUserID(c)); err != nil {
		response.FromError(c, "failed to mark all as read", err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"message": "all notifications marked as read"})
}

func (h *NotificationHandler) Clear(c *gin.Context) {
	if err := h.notificationService.Clear(c.Request.Context(), middleware.MustGetUserID(c)); err != nil {
		response.FromError(c, "failed to clear notifications", err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"message": "notifications cleared"})
}

// ========== Preferences ==========

func (h *NotificationHandler) GetPreferences(c *gin.Context) {
	prefs, err := h.notificationService.Preferences(c.Request.Context(), middleware.MustGetUserID(c))
	if err != nil {
		response.FromError(c, "failed to get preferences", err)
		return
	}
	response.JSON(c, http.StatusOK, prefs)
}

// UpdatePreferences applies the body on top of the stored preferences, so
// fields left out keep their values.
func (h *NotificationHandler) UpdatePreferences(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	current, err := h.notificationService.Preferences(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, "failed to get preferences", err)
		return
	}
	if err := c.ShouldBindJSON(current); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	saved, err := h.notificationService.UpdatePreferences(c.Request.Context(), userID, *current)
	if err != nil {
		response.FromError(c, "failed to update preferences", err)
		return
	}
	response.JSON(c, http.StatusOK, saved)
}

// ========== Price alerts ==========

func (h *NotificationHandler) ListPriceAlerts(c *gin.Context) {
	alerts, err := h.notificationService.ListPriceAlerts(c.Request.Context(), middleware.MustGetUserID(c))
	if err != nil {
		response.FromError(c, "failed to list price alerts", err)
		return
	}
	if alerts == nil {
		alerts = []notification.PriceAlert{}
	}
	response.JSON(c, http.StatusOK, alerts)
}

func (h *NotificationHandler) CreatePriceAlert(c *gin.Context) {
	var req notification.CreatePriceAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	alert, err := h.notificationService.CreatePriceAlert(c.Request.Context(), middleware.MustGetUserID(c), &req)
	if err != nil {
		response.FromError(c, "failed to create price alert", err)
		return
	}
	response.JSON(c, http.StatusCreated, alert)
}

func (h *NotificationHandler) UpdatePriceAlert(c *gin.Context) {
	var req notification.UpdatePriceAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	alert, err := h.notificationService.UpdatePriceAlert(c.Request.Context(), middleware.MustGetUserID(c), c.Param("id"), &req)
	if err != nil {
		response.FromError(c, "failed to update price alert", err)
		return
	}
	response.JSON(c, http.StatusOK, alert)
}

func (h *NotificationHandler) DeletePriceAlert(c *gin.Context) {
	if err := h.notificationService.DeletePriceAlert(c.Request.Context(), middleware.MustGetUserID(c), c.Param("id")); err != nil {
		response.FromError(c, "failed to delete price alert", err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"message": "price alert deleted"})
}

// ========== Admin ==========

// CreateNotification stores a notification for any user and pushes it
// (admin only).
func (h *NotificationHandler) CreateNotification(c *gin.Context) {
	var req notification.CreateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	n, err := h.notificationService.CreateAndPush(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, "failed to create notification", err)
		return
	}
	response.JSON(c, http.StatusCreated, n)
}
