// internal/domain/auth/entity.go
package auth

import (
	"database/sql"
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	PermViewMarketData  = "view_market_data"
	PermManageWatchlist = "manage_watchlist"
	PermManageAlerts    = "manage_alerts"
	PermManageUsers     = "manage_users"

	StatusActive    = "active"
	StatusSuspended = "suspended"
)

// DefaultPermissions are granted to every registered user.
var DefaultPermissions = []string{PermViewMarketData, PermManageWatchlist, PermManageAlerts}

// AdminPermissions adds user management on top of the defaults.
var AdminPermissions = []string{PermViewMarketData, PermManageWatchlist, PermManageAlerts, PermManageUsers}

// User is a stockwatch account.
type User struct {
	ID           string         `json:"id" db:"id"`
	Email        string         `json:"email" db:"email"`
	FirstName    string         `json:"first_name" db:"first_name"`
	LastName     string         `json:"last_name" db:"last_name"`
	PasswordHash string         `json:"-" db:"password_hash"`
	Role         string         `json:"role" db:"role"`
	Permissions  []string       `json:"permissions" db:"permissions"`
	Preferences  map[string]any `json:"preferences" db:"preferences"`
	Status       string         `json:"status" db:"status"` // active, suspended
	LastLogin    sql.NullTime   `json:"last_login" db:"last_login"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" db:"updated_at"`
}

func (u *User) Info() UserInfo {
	return UserInfo{
		ID:          u.ID,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Role:        u.Role,
		Permissions: u.Permissions,
		Preferences: u.Preferences,
	}
}
