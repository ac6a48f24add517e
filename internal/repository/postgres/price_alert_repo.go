// internal/repository/postgres/price_alert_repo.go
package postgres

import (
	"context"
	"fmt"

	"stockwatch/internal/domain/notification"
	xerrors "stockwatch/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PriceAlertRepository struct {
	db *pgxpool.Pool
}

func NewPriceAlertRepository(db *pgxpool.Pool) *PriceAlertRepository {
	return &PriceAlertRepository{db: db}
}

const alertColumns = `id, user_id, symbol, condition, value, frequency, triggered, last_triggered, created_at`

func (r *PriceAlertRepository) Create(ctx context.Context, a *notification.PriceAlert) error {
	query := `
		INSERT INTO price_alerts (id, user_id, symbol, condition, value, frequency, triggered)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query,
		a.ID, a.UserID, a.Symbol, a.Condition, a.Value, a.Frequency, a.Triggered,
	).Scan(&a.CreatedAt)
	return translate(err, "failed to create price alert")
}

func (r *PriceAlertRepository) FindByID(ctx context.Context, id, userID string) (*notification.PriceAlert, error) {
	query := `SELECT ` + alertColumns + ` FROM price_alerts WHERE id = $1 AND user_id = $2`
	a, err := scanAlert(r.db.QueryRow(ctx, query, id, userID))
	if err != nil {
		return nil, translate(err, "failed to find price alert")
	}
	return a, nil
}

func (r *PriceAlertRepository) ListByUser(ctx context.Context, userID string) ([]notification.PriceAlert, error) {
	query := `SELECT ` + alertColumns + ` FROM price_alerts WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list price alerts: %w", err)
	}
	return collectAlerts(rows)
}

// ListActive returns alerts the monitor should evaluate: every "always"
// alert and "once" alerts that have not fired.
func (r *PriceAlertRepository) ListActive(ctx context.Context) ([]notification.PriceAlert, error) {
	query := `SELECT ` + alertColumns + ` FROM price_alerts
		WHERE frequency = 'always' OR triggered = FALSE
		ORDER BY symbol`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active price alerts: %w", err)
	}
	return collectAlerts(rows)
}

// Update writes every mutable column of the alert.
func (r *PriceAlertRepository) Update(ctx context.Context, a *notification.PriceAlert) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE price_alerts
		SET condition = $1, value = $2, frequency = $3, triggered = $4, last_triggered = $5
		WHERE id = $6 AND user_id = $7`,
		a.Condition, a.Value, a.Frequency, a.Triggered, a.LastTriggered, a.ID, a.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update price alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *PriceAlertRepository) Delete(ctx context.Context, id, userID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM price_alerts WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete price alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func scanAlert(row pgx.Row) (*notification.PriceAlert, error) {
	var a notification.PriceAlert
	err := row.Scan(&a.ID, &a.UserID, &a.Symbol, &a.Condition, &a.Value, &a.Frequency,
		&a.Triggered, &a.LastTriggered, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func collectAlerts(rows pgx.Rows) ([]notification.PriceAlert, error) {
	defer rows.Close()

	alerts := make([]notification.PriceAlert, 0)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}
