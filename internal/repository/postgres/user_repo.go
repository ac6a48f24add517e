// internal/repository/postgres/user_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"stockwatch/internal/domain/auth"
	xerrors "stockwatch/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, first_name, last_name, password_hash, role, permissions,
	preferences, status, last_login, created_at, updated_at`

// Create inserts a user. A duplicate email yields ErrConflict.
func (r *UserRepository) Create(ctx context.Context, u *auth.User) error {
	prefs, err := marshalPreferences(u.Preferences)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO users (id, email, first_name, last_name, password_hash, role, permissions, preferences, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`
	err = r.db.QueryRow(ctx, query,
		u.ID, u.Email, u.FirstName, u.LastName, u.PasswordHash, u.Role,
		pq.Array(u.Permissions), prefs, u.Status,
	).Scan(&u.CreatedAt, &u.UpdatedAt)

	return translate(err, "failed to create user")
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	return r.scanOne(r.db.QueryRow(ctx, query, email))
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*auth.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, time.Now(), id)
	return err
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, hash string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`,
		hash, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// UpdatePreferences replaces the stored preferences map.
func (r *UserRepository) UpdatePreferences(ctx context.Context, id string, prefs map[string]any) error {
	data, err := marshalPreferences(prefs)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET preferences = $1, updated_at = $2 WHERE id = $3`,
		data, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update preferences: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// UpdateRole sets role and permissions together.
func (r *UserRepository) UpdateRole(ctx context.Context, id, role string, permissions []string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE users SET role = $1, permissions = $2, updated_at = $3 WHERE id = $4`,
		role, pq.Array(permissions), time.Now(), id,
	)
	return translate(err, "failed to update role")
}

func (r *UserRepository) scanOne(row pgx.Row) (*auth.User, error) {
	var (
		u     auth.User
		perms pq.StringArray
		prefs []byte
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash, &u.Role, &perms,
		&prefs, &u.Status, &u.LastLogin, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, translate(err, "failed to find user")
	}

	u.Permissions = []string(perms)
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &u.Preferences); err != nil {
			return nil, fmt.Errorf("failed to unmarshal preferences: %w", err)
		}
	}
	return &u, nil
}

func marshalPreferences(prefs map[string]any) ([]byte, error) {
	if prefs == nil {
		prefs = map[string]any{}
	}
	data, err := json.Marshal(prefs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal preferences: %w", err)
	}
	return data, nil
}
