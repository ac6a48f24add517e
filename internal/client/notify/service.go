// Package notify keeps the client's notification state: the realtime
// channel, price alerts, preferences and local delivery (sound and
// desktop notifications).
package notify

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"stockwatch/internal/client/api"
	"stockwatch/internal/domain/notification"
	ws "stockwatch/internal/domain/websocket"
	"stockwatch/internal/pkg/observable"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// ChannelPath is where the server serves the notification stream.
const ChannelPath = "/ws/notifications"

// State is the local notification state.
type State struct {
	Notifications []notification.Notification
	UnreadCount   int
	PriceAlerts   []notification.PriceAlert
	Preferences   notification.Preferences
}

// Transport is the subset of *api.Client the service needs.
type Transport interface {
	Get(ctx context.Context, path string, out any, opts ...api.RequestOption) error
	Post(ctx context.Context, path string, body, out any, opts ...api.RequestOption) error
	Patch(ctx context.Context, path string, body, out any, opts ...api.RequestOption) error
	Delete(ctx context.Context, path string, out any, opts ...api.RequestOption) error
}

type Service struct {
	api     Transport
	channel *Channel
	state   *observable.Subject[State]
	sound   SoundPlayer
	desktop DesktopNotifier
	logger  *zap.Logger
	now     func() time.Time
}

// NewService wires event handlers onto channel. sound and desktop may be nil.
func NewService(transport Transport, channel *Channel, sound SoundPlayer, desktop DesktopNotifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		api:     transport,
		channel: channel,
		state:   observable.NewSubject(State{Preferences: notification.DefaultPreferences()}),
		sound:   sound,
		desktop: desktop,
		logger:  logger.With(zap.String("component", "notifications")),
		now:     time.Now,
	}
	if channel != nil {
		channel.On(ws.EventTypeNotification, s.onNotification)
		channel.On(ws.EventTypePriceAlert, s.onPriceAlert)
		channel.On(ws.EventTypeError, s.onError)
		channel.On(ws.EventTypeConnected, func(*ws.WSMessage) { s.logger.Debug("realtime connected") })
		channel.On(ws.EventTypeDisconnected, func(*ws.WSMessage) { s.logger.Debug("realtime disconnected") })
	}
	return s
}

func (s *Service) State() *observable.Subject[State] { return s.state }

func (s *Service) Channel() *Channel { return s.channel }

func (s *Service) onNotification(msg *ws.WSMessage) {
	var n notification.Notification
	if err := msg.DecodeData(&n); err != nil {
		s.logger.Warn("bad notification payload", zap.Error(err))
		return
	}
	if n.Status == "" {
		n.Status = notification.StatusUnread
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = s.now()
	}
	s.Receive(context.Background(), n)
}

func (s *Service) onPriceAlert(msg *ws.WSMessage) {
	var alert notification.PriceAlert
	if err := msg.DecodeData(&alert); err != nil {
		s.logger.Warn("bad price alert payload", zap.Error(err))
		return
	}
	s.ApplyPriceAlert(context.Background(), alert)
}

func (s *Service) onError(msg *ws.WSMessage) {
	var data ws.ErrorData
	if err := msg.DecodeData(&data); err != nil {
		s.logger.Warn("bad error payload", zap.Error(err))
		return
	}
	s.logger.Warn("realtime error", zap.String("code", data.Code), zap.String("message", data.Message))
}

// Receive records n as the newest unread notification, then runs local
// delivery through the gate.
func (s *Service) Receive(ctx context.Context, n notification.Notification) {
	st := s.state.Update(func(st State) State {
		list := make([]notification.Notification, 0, len(st.Notifications)+1)
		list = append(list, n)
		st.Notifications = append(list, st.Notifications...)
		if n.Status == notification.StatusUnread {
			st.UnreadCount++
		}
		return st
	})
	s.deliver(ctx, st.Preferences, n)
}

// deliver never fails; sound and desktop errors are logged.
func (s *Service) deliver(ctx context.Context, prefs notification.Preferences, n notification.Notification) {
	decision := Gate(prefs, n.Type, s.now())
	if decision != Deliver {
		s.logger.Debug("local delivery suppressed",
			zap.String("id", n.ID), zap.Stringer("reason", decision))
		return
	}

	if prefs.Sound && s.sound != nil {
		if err := s.sound.Play(ctx, SoundFor(n.Priority)); err != nil {
			s.logger.Warn("sound playback failed", zap.Error(err))
		}
	}
	if prefs.Desktop && s.desktop != nil && s.desktop.Permitted() {
		if err := s.desktop.Notify(ctx, n); err != nil {
			s.logger.Warn("desktop notification failed", zap.Error(err))
		}
	}
}

// ApplyPriceAlert replaces the alert with the same symbol. A triggered
// alert produces a high priority notification, except for a once alert
// that had already fired.
func (s *Service) ApplyPriceAlert(ctx context.Context, alert notification.PriceAlert) {
	alreadyFired := false
	s.state.Update(func(st State) State {
		alerts := make([]notification.PriceAlert, len(st.PriceAlerts))
		copy(alerts, st.PriceAlerts)
		for i := range alerts {
			if alerts[i].Symbol == alert.Symbol {
				alreadyFired = alerts[i].Triggered && alerts[i].Frequency == notification.FrequencyOnce
				alerts[i] = alert
				break
			}
		}
		st.PriceAlerts = alerts
		return st
	})

	if !alert.Triggered || alreadyFired {
		return
	}
	s.Receive(ctx, notification.Notification{
		ID:        ulid.Make().String(),
		Type:      notification.TypePriceAlert,
		Title:     fmt.Sprintf("Price alert: %s", alert.Symbol),
		Message:   describeAlert(alert),
		Timestamp: s.now(),
		Priority:  notification.PriorityHigh,
		Status:    notification.StatusUnread,
		Data:      map[string]any{"symbol": alert.Symbol, "alertId": alert.ID},
	})
}

func describeAlert(a notification.PriceAlert) string {
	switch a.Condition {
	case notification.ConditionAbove:
		return fmt.Sprintf("%s rose above %.2f", a.Symbol, a.Value)
	case notification.ConditionBelow:
		return fmt.Sprintf("%s fell below %.2f", a.Symbol, a.Value)
	case notification.ConditionPercentChange:
		return fmt.Sprintf("%s moved more than %.2f%%", a.Symbol, a.Value)
	}
	return fmt.Sprintf("%s alert triggered", a.Symbol)
}

// --- Loaders ---

func (s *Service) LoadPreferences(ctx context.Context) (notification.Preferences, error) {
	var prefs notification.Preferences
	if err := s.api.Get(ctx, "/notifications/preferences", &prefs, api.NoCache()); err != nil {
		return prefs, err
	}
	s.state.Update(func(st State) State {
		st.Preferences = prefs
		return st
	})
	return prefs, nil
}

func (s *Service) LoadPriceAlerts(ctx context.Context) ([]notification.PriceAlert, error) {
	var alerts []notification.PriceAlert
	if err := s.api.Get(ctx, "/notifications/price-alerts", &alerts, api.NoCache()); err != nil {
		return nil, err
	}
	s.state.Update(func(st State) State {
		st.PriceAlerts = alerts
		return st
	})
	return alerts, nil
}

func (s *Service) LoadHistory(ctx context.Context, limit int) ([]notification.Notification, error) {
	var resp notification.HistoryResponse
	err := s.api.Get(ctx, "/notifications/history", &resp,
		api.NoCache(), api.WithParams(map[string]any{"limit": limit}))
	if err != nil {
		return nil, err
	}
	s.state.Update(func(st State) State {
		st.Notifications = resp.Notifications
		st.UnreadCount = resp.UnreadCount
		return st
	})
	return resp.Notifications, nil
}

// --- Mutations: the server call comes first, local state changes only on success ---

func (s *Service) CreatePriceAlert(ctx context.Context, req notification.CreatePriceAlertRequest) (notification.PriceAlert, error) {
	var alert notification.PriceAlert
	if err := s.api.Post(ctx, "/notifications/price-alerts", req, &alert); err != nil {
		return alert, err
	}
	s.state.Update(func(st State) State {
		st.PriceAlerts = append(append([]notification.PriceAlert(nil), st.PriceAlerts...), alert)
		return st
	})
	return alert, nil
}

func (s *Service) UpdatePriceAlert(ctx context.Context, id string, req notification.UpdatePriceAlertRequest) (notification.PriceAlert, error) {
	var alert notification.PriceAlert
	if err := s.api.Patch(ctx, "/notifications/price-alerts/"+url.PathEscape(id), req, &alert); err != nil {
		return alert, err
	}
	s.state.Update(func(st State) State {
		alerts := append([]notification.PriceAlert(nil), st.PriceAlerts...)
		for i := range alerts {
			if alerts[i].ID == id {
				alerts[i] = alert
			}
		}
		st.PriceAlerts = alerts
		return st
	})
	return alert, nil
}

func (s *Service) DeletePriceAlert(ctx context.Context, id string) error {
	if err := s.api.Delete(ctx, "/notifications/price-alerts/"+url.PathEscape(id), nil); err != nil {
		return err
	}
	s.state.Update(func(st State) State {
		alerts := make([]notification.PriceAlert, 0, len(st.PriceAlerts))
		for _, a := range st.PriceAlerts {
			if a.ID != id {
				alerts = append(alerts, a)
			}
		}
		st.PriceAlerts = alerts
		return st
	})
	return nil
}

func (s *Service) MarkAsRead(ctx context.Context, id string) error {
	if err := s.api.Post(ctx, "/notifications/"+url.PathEscape(id)+"/read", nil, nil); err != nil {
		return err
	}
	s.state.Update(func(st State) State {
		list := append([]notification.Notification(nil), st.Notifications...)
		for i := range list {
			if list[i].ID == id && list[i].Status == notification.StatusUnread {
				list[i].Status = notification.StatusRead
				if st.UnreadCount > 0 {
					st.UnreadCount--
				}
			}
		}
		st.Notifications = list
		return st
	})
	return nil
}

func (s *Service) MarkAllAsRead(ctx context.Context) error {
	if err := s.api.Post(ctx, "/notifications/mark-all-read", nil, nil); err != nil {
		return err
	}
	s.state.Update(func(st State) State {
		list := append([]notification.Notification(nil), st.Notifications...)
		for i := range list {
			if list[i].Status == notification.StatusUnread {
				list[i].Status = notification.StatusRead
			}
		}
		st.Notifications = list
		st.UnreadCount = 0
		return st
	})
	return nil
}

func (s *Service) UpdatePreferences(ctx context.Context, prefs notification.Preferences) (notification.Preferences, error) {
	var saved notification.Preferences
	if err := s.api.Patch(ctx, "/notifications/preferences", prefs, &saved); err != nil {
		return saved, err
	}
	s.state.Update(func(st State) State {
		st.Preferences = saved
		return st
	})
	return saved, nil
}

func (s *Service) ClearNotifications(ctx context.Context) error {
	if err := s.api.Post(ctx, "/notifications/clear", nil, nil); err != nil {
		return err
	}
	s.state.Update(func(st State) State {
		st.Notifications = nil
		st.UnreadCount = 0
		return st
	})
	return nil
}
