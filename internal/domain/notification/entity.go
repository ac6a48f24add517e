// internal/domain/notification/entity.go
package notification

import (
	"time"
)

type Type string

const (
	TypePriceAlert   Type = "price_alert"
	TypeNews         Type = "news"
	TypePortfolio    Type = "portfolio"
	TypeTrade        Type = "trade"
	TypeSystem       Type = "system"
	TypeSecurity     Type = "security"
	TypeSubscription Type = "subscription"
	TypeWatchlist    Type = "watchlist"
	TypeEarnings     Type = "earnings"
	TypeDividend     Type = "dividend"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

type Status string

const (
	StatusUnread   Status = "unread"
	StatusRead     Status = "read"
	StatusArchived Status = "archived"
	StatusDeleted  Status = "deleted"
)

// Action is a button offered with a notification.
type Action struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	URL   string `json:"url,omitempty"`
}

type Notification struct {
	ID        string         `json:"id" db:"id"`
	UserID    string         `json:"userId" db:"user_id"`
	Type      Type           `json:"type" db:"type"`
	Title     string         `json:"title" db:"title"`
	Message   string         `json:"message" db:"message"`
	Timestamp time.Time      `json:"timestamp" db:"created_at"`
	Priority  Priority       `json:"priority" db:"priority"`
	Status    Status         `json:"status" db:"status"`
	ExpiresAt *time.Time     `json:"expiresAt,omitempty" db:"expires_at"`
	Actions   []Action       `json:"actions,omitempty" db:"actions"`
	Data      map[string]any `json:"data,omitempty" db:"data"`
}

// Expired reports whether the notification has passed its expiry.
func (n *Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && !now.Before(*n.ExpiresAt)
}

type Condition string

const (
	ConditionAbove         Condition = "above"
	ConditionBelow         Condition = "below"
	ConditionPercentChange Condition = "percent_change"
)

func (c Condition) Valid() bool {
	switch c {
	case ConditionAbove, ConditionBelow, ConditionPercentChange:
		return true
	}
	return false
}

type Frequency string

const (
	FrequencyOnce   Frequency = "once"
	FrequencyAlways Frequency = "always"
)

func (f Frequency) Valid() bool {
	return f == FrequencyOnce || f == FrequencyAlways
}

type PriceAlert struct {
	ID            string     `json:"id" db:"id"`
	UserID        string     `json:"userId,omitempty" db:"user_id"`
	Symbol        string     `json:"symbol" db:"symbol"`
	Condition     Condition  `json:"condition" db:"condition"`
	Value         float64    `json:"value" db:"value"`
	Triggered     bool       `json:"triggered" db:"triggered"`
	CreatedAt     time.Time  `json:"createdAt" db:"created_at"`
	LastTriggered *time.Time `json:"lastTriggered,omitempty" db:"last_triggered"`
	Frequency     Frequency  `json:"frequency" db:"frequency"`
}

// Matches reports whether a quote satisfies the alert condition.
// percent_change compares the absolute daily change against Value.
func (a *PriceAlert) Matches(price, changePercent float64) bool {
	switch a.Condition {
	case ConditionAbove:
		return price >= a.Value
	case ConditionBelow:
		return price <= a.Value
	case ConditionPercentChange:
		if changePercent < 0 {
			changePercent = -changePercent
		}
		return changePercent >= a.Value
	}
	return false
}

// DoNotDisturb is a same-day quiet window in "HH:MM" wall-clock time.
type DoNotDisturb struct {
	Enabled   bool   `json:"enabled"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// TypeToggles are the per-type delivery switches.
type TypeToggles struct {
	PriceAlerts bool `json:"priceAlerts"`
	News        bool `json:"news"`
	Portfolio   bool `json:"portfolio"`
	Trades      bool `json:"trades"`
	System      bool `json:"system"`
}

type Preferences struct {
	UserID       string       `json:"-" db:"user_id"`
	InApp        bool         `json:"inApp"`
	Sound        bool         `json:"sound"`
	Desktop      bool         `json:"desktop"`
	Email        bool         `json:"email"`
	DoNotDisturb DoNotDisturb `json:"doNotDisturb"`
	Types        TypeToggles  `json:"types"`
}

// DefaultPreferences enables everything except DND.
func DefaultPreferences() Preferences {
	return Preferences{
		InApp:        true,
		Sound:        true,
		Desktop:      true,
		DoNotDisturb: DoNotDisturb{StartTime: "22:00", EndTime: "07:00"},
		Types: TypeToggles{
			PriceAlerts: true,
			News:        true,
			Portfolio:   true,
			Trades:      true,
			System:      true,
		},
	}
}

// TypeEnabled reports the per-type switch. Types without a switch are on.
func (p *Preferences) TypeEnabled(t Type) bool {
	switch t {
	case TypePriceAlert:
		return p.Types.PriceAlerts
	case TypeNews:
		return p.Types.News
	case TypePortfolio:
		return p.Types.Portfolio
	case TypeTrade:
		return p.Types.Trades
	case TypeSystem:
		return p.Types.System
	}
	return true
}
