package notification

import "time"

type CreatePriceAlertRequest struct {
	Symbol    string    `json:"symbol" binding:"required"`
	Condition Condition `json:"condition" binding:"required"`
	Value     float64   `json:"value"`
	Frequency Frequency `json:"frequency"`
}

// UpdatePriceAlertRequest changes only the fields that are set.
type UpdatePriceAlertRequest struct {
	Condition *Condition `json:"condition,omitempty"`
	Value     *float64   `json:"value,omitempty"`
	Frequency *Frequency `json:"frequency,omitempty"`
	Triggered *bool      `json:"triggered,omitempty"`
}

type CreateNotificationRequest struct {
	UserID    string         `json:"userId" binding:"required"`
	Type      Type           `json:"type" binding:"required"`
	Title     string         `json:"title" binding:"required,max=255"`
	Message   string         `json:"message" binding:"required"`
	Priority  Priority       `json:"priority"`
	ExpiresAt *time.Time     `json:"expiresAt,omitempty"`
	Actions   []Action       `json:"actions,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

type HistoryFilters struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

type HistoryResponse struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int            `json:"unreadCount"`
}
