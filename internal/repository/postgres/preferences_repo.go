// internal/repository/postgres/preferences_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"stockwatch/internal/domain/notification"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PreferencesRepository struct {
	db *pgxpool.Pool
}

func NewPreferencesRepository(db *pgxpool.Pool) *PreferencesRepository {
	return &PreferencesRepository{db: db}
}

// Get returns ErrNotFound when the user never saved preferences.
func (r *PreferencesRepository) Get(ctx context.Context, userID string) (*notification.Preferences, error) {
	var data []byte
	err := r.db.QueryRow(ctx,
		`SELECT preferences FROM notification_preferences WHERE user_id = $1`, userID,
	).Scan(&data)
	if err != nil {
		return nil, translate(err, "failed to load preferences")
	}

	var p notification.Preferences
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal preferences: %w", err)
	}
	p.UserID = userID
	return &p, nil
}

func (r *PreferencesRepository) Upsert(ctx context.Context, p *notification.Preferences) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO notification_preferences (user_id, preferences, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET preferences = EXCLUDED.preferences, updated_at = NOW()`,
		p.UserID, data,
	)
	return translate(err, "failed to save preferences")
}
