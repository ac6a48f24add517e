// internal/service/notification/monitor.go
package notification

import (
	"context"
	"fmt"
	"sync"

	"stockwatch/internal/domain/market"
	"stockwatch/internal/domain/notification"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// QuoteSource returns the latest quote for a symbol.
type QuoteSource interface {
	Quote(ctx context.Context, symbol string) (*market.Quote, error)
}

// AlertMonitor evaluates armed price alerts against live quotes.
//
// A "once" alert fires on its first qualifying check and stays triggered.
// An "always" alert fires each time its condition goes from false to true
// and re-arms once the condition clears; Triggered tracks the last state.
type AlertMonitor struct {
	service *NotificationService
	quotes  QuoteSource
	workers int
	logger  *zap.Logger
}

func NewAlertMonitor(service *NotificationService, quotes QuoteSource, workers int, logger *zap.Logger) *AlertMonitor {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertMonitor{service: service, quotes: quotes, workers: workers, logger: logger}
}

func (m *AlertMonitor) Name() string { return "price-alert-monitor" }

// Run performs one evaluation pass.
func (m *AlertMonitor) Run(ctx context.Context) error {
	alerts, err := m.service.alerts.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to load alerts: %w", err)
	}
	if len(alerts) == 0 {
		return nil
	}

	quotes := m.fetchQuotes(ctx, alerts)

	for i := range alerts {
		a := &alerts[i]
		q, ok := quotes[a.Symbol]
		if !ok {
			continue
		}
		if err := m.evaluate(ctx, a, q); err != nil {
			m.logger.Error("failed to evaluate alert",
				zap.String("alert_id", a.ID),
				zap.String("symbol", a.Symbol),
				zap.Error(err),
			)
		}
	}

	if _, err := m.service.DeleteExpired(ctx); err != nil {
		m.logger.Warn("failed to delete expired notifications", zap.Error(err))
	}
	return nil
}

// fetchQuotes loads each distinct symbol once. Failed symbols are skipped.
func (m *AlertMonitor) fetchQuotes(ctx context.Context, alerts []notification.PriceAlert) map[string]*market.Quote {
	var (
		mu     sync.Mutex
		quotes = make(map[string]*market.Quote)
		seen   = make(map[string]bool)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)

	for _, a := range alerts {
		if seen[a.Symbol] {
			continue
		}
		seen[a.Symbol] = true

		symbol := a.Symbol
		g.Go(func() error {
			q, err := m.quotes.Quote(gctx, symbol)
			if err != nil {
				m.logger.Warn("quote fetch failed", zap.String("symbol", symbol), zap.Error(err))
				return nil
			}
			mu.Lock()
			quotes[symbol] = q
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return quotes
}

func (m *AlertMonitor) evaluate(ctx context.Context, a *notification.PriceAlert, q *market.Quote) error {
	matches := a.Matches(q.Price, q.ChangePercent)

	switch {
	case matches && !a.Triggered:
		return m.fire(ctx, a, q)
	case !matches && a.Triggered && a.Frequency == notification.FrequencyAlways:
		a.Triggered = false
		return m.service.alerts.Update(ctx, a)
	}
	return nil
}

func (m *AlertMonitor) fire(ctx context.Context, a *notification.PriceAlert, q *market.Quote) error {
	now := m.service.now()
	a.Triggered = true
	a.LastTriggered = &now
	if err := m.service.alerts.Update(ctx, a); err != nil {
		return err
	}

	m.logger.Info("price alert fired",
		zap.String("alert_id", a.ID),
		zap.String("user_id", a.UserID),
		zap.String("symbol", a.Symbol),
		zap.Float64("price", q.Price),
	)

	// The client turns the price_alert event into its own notification,
	// so the history row is stored without a separate push.
	n := &notification.Notification{
		ID:        ulid.Make().String(),
		UserID:    a.UserID,
		Type:      notification.TypePriceAlert,
		Title:     fmt.Sprintf("Price alert: %s", a.Symbol),
		Message:   describe(a, q),
		Timestamp: now,
		Priority:  notification.PriorityHigh,
		Status:    notification.StatusUnread,
		Data: map[string]any{
			"alertId":       a.ID,
			"symbol":        a.Symbol,
			"price":         q.Price,
			"changePercent": q.ChangePercent,
		},
	}
	if err := m.service.notifications.Create(ctx, n); err != nil {
		m.logger.Warn("failed to record alert notification", zap.String("alert_id", a.ID), zap.Error(err))
	}

	if m.service.pusher != nil {
		m.service.pusher.PushPriceAlert(a.UserID, a)
	}
	return nil
}

func describe(a *notification.PriceAlert, q *market.Quote) string {
	switch a.Condition {
	case notification.ConditionAbove:
		return fmt.Sprintf("%s is at %.2f, above your target of %.2f", a.Symbol, q.Price, a.Value)
	case notification.ConditionBelow:
		return fmt.Sprintf("%s is at %.2f, below your target of %.2f", a.Symbol, q.Price, a.Value)
	default:
		return fmt.Sprintf("%s moved %.2f%% today (threshold %.2f%%)", a.Symbol, q.ChangePercent, a.Value)
	}
}
