package notification

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"stockwatch/internal/domain/market"
	"stockwatch/internal/domain/notification"
	xerrors "stockwatch/internal/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memNotifications struct {
	mu   sync.Mutex
	rows []notification.Notification
}

func (m *memNotifications) Create(_ context.Context, n *notification.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, *n)
	return nil
}

func (m *memNotifications) History(_ context.Context, userID string, limit, offset int) ([]notification.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []notification.Notification
	for _, n := range m.rows {
		if n.UserID == userID && n.Status != notification.StatusDeleted {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if offset >= len(out) {
		return []notification.Notification{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memNotifications) UnreadCount(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, row := range m.rows {
		if row.UserID == userID && row.Status == notification.StatusUnread {
			n++
		}
	}
	return n, nil
}

func (m *memNotifications) setStatus(userID string, match func(*notification.Notification) bool, status notification.Status) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	changed := 0
	for i := range m.rows {
		if m.rows[i].UserID == userID && match(&m.rows[i]) {
			m.rows[i].Status = status
			changed++
		}
	}
	return changed
}

func (m *memNotifications) MarkAsRead(_ context.Context, id, userID string) error {
	if m.setStatus(userID, func(n *notification.Notification) bool { return n.ID == id }, notification.StatusRead) == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (m *memNotifications) MarkAllAsRead(_ context.Context, userID string) error {
	m.setStatus(userID, func(n *notification.Notification) bool { return n.Status == notification.StatusUnread }, notification.StatusRead)
	return nil
}

func (m *memNotifications) Clear(_ context.Context, userID string) error {
	m.setStatus(userID, func(*notification.Notification) bool { return true }, notification.StatusDeleted)
	return nil
}

func (m *memNotifications) DeleteExpired(context.Context) (int64, error) { return 0, nil }

type memAlerts struct {
	mu   sync.Mutex
	rows map[string]notification.PriceAlert
}

func newMemAlerts() *memAlerts {
	return &memAlerts{rows: map[string]notification.PriceAlert{}}
}

func (m *memAlerts) Create(_ context.Context, a *notification.PriceAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[a.ID] = *a
	return nil
}

func (m *memAlerts) FindByID(_ context.Context, id, userID string) (*notification.PriceAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok || a.UserID != userID {
		return nil, xerrors.ErrNotFound
	}
	return &a, nil
}

func (m *memAlerts) ListByUser(_ context.Context, userID string) ([]notification.PriceAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []notification.PriceAlert
	for _, a := range m.rows {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memAlerts) ListActive(context.Context) ([]notification.PriceAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []notification.PriceAlert
	for _, a := range m.rows {
		if a.Frequency == notification.FrequencyAlways || !a.Triggered {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memAlerts) Update(_ context.Context, a *notification.PriceAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[a.ID]; !ok {
		return xerrors.ErrNotFound
	}
	m.rows[a.ID] = *a
	return nil
}

func (m *memAlerts) Delete(_ context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok || a.UserID != userID {
		return xerrors.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memAlerts) get(id string) notification.PriceAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id]
}

type memPreferences struct {
	rows map[string]notification.Preferences
}

func (m *memPreferences) Get(_ context.Context, userID string) (*notification.Preferences, error) {
	p, ok := m.rows[userID]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return &p, nil
}

func (m *memPreferences) Upsert(_ context.Context, p *notification.Preferences) error {
	m.rows[p.UserID] = *p
	return nil
}

type recordingPusher struct {
	mu            sync.Mutex
	notifications []*notification.Notification
	alerts        []notification.PriceAlert
	counts        []int
}

func (r *recordingPusher) PushNotification(_ string, n *notification.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
}

func (r *recordingPusher) PushPriceAlert(_ string, a *notification.PriceAlert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, *a)
}

func (r *recordingPusher) PushUnreadCount(_ string, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts = append(r.counts, count)
}

type fixture struct {
	svc    *NotificationService
	notes  *memNotifications
	alerts *memAlerts
	prefs  *memPreferences
	pusher *recordingPusher
	clock  time.Time
}

func newFixture() *fixture {
	f := &fixture{
		notes:  &memNotifications{},
		alerts: newMemAlerts(),
		prefs:  &memPreferences{rows: map[string]notification.Preferences{}},
		pusher: &recordingPusher{},
		clock:  time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC),
	}
	f.svc = NewNotificationService(f.notes, f.alerts, f.prefs, f.pusher, zap.NewNop())
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

func TestCreateAndPush(t *testing.T) {
	f := newFixture()

	n, err := f.svc.CreateAndPush(context.Background(), &notification.CreateNotificationRequest{
		UserID: "u1", Type: notification.TypeSystem, Title: "Maintenance", Message: "tonight",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, notification.PriorityMedium, n.Priority)
	assert.Equal(t, notification.StatusUnread, n.Status)
	require.Len(t, f.pusher.notifications, 1)
	assert.Equal(t, n.ID, f.pusher.notifications[0].ID)
}

func TestHistoryNewestFirstWithUnreadCount(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	for _, title := range []string{"first", "second", "third"} {
		_, err := f.svc.CreateAndPush(ctx, &notification.CreateNotificationRequest{
			UserID: "u1", Type: notification.TypeNews, Title: title, Message: "m",
		})
		require.NoError(t, err)
		f.advance(time.Minute)
	}
	require.NoError(t, f.svc.MarkAsRead(ctx, f.notes.rows[0].ID, "u1"))

	resp, err := f.svc.History(ctx, "u1", notification.HistoryFilters{})
	require.NoError(t, err)
	require.Len(t, resp.Notifications, 3)
	assert.Equal(t, "third", resp.Notifications[0].Title)
	assert.Equal(t, 2, resp.UnreadCount)
	assert.Equal(t, []int{2}, f.pusher.counts)
}

func TestMarkAsReadUnknown(t *testing.T) {
	f := newFixture()
	err := f.svc.MarkAsRead(context.Background(), "missing", "u1")
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestClearHidesHistory(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.svc.CreateAndPush(ctx, &notification.CreateNotificationRequest{UserID: "u1", Type: notification.TypeNews, Title: "t", Message: "m"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Clear(ctx, "u1"))

	resp, err := f.svc.History(ctx, "u1", notification.HistoryFilters{})
	require.NoError(t, err)
	assert.Empty(t, resp.Notifications)
	assert.Equal(t, 0, resp.UnreadCount)
}

func TestPreferencesDefaultAndUpdate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	p, err := f.svc.Preferences(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, p.InApp)
	assert.True(t, p.Types.PriceAlerts)

	p.Sound = false
	p.DoNotDisturb = notification.DoNotDisturb{Enabled: true, StartTime: "23:00", EndTime: "23:30"}
	_, err = f.svc.UpdatePreferences(ctx, "u1", *p)
	require.NoError(t, err)

	stored, err := f.svc.Preferences(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, stored.Sound)
	assert.True(t, stored.DoNotDisturb.Enabled)

	p.DoNotDisturb.StartTime = "25:99"
	_, err = f.svc.UpdatePreferences(ctx, "u1", *p)
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
}

func TestCreatePriceAlertValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	a, err := f.svc.CreatePriceAlert(ctx, "u1", &notification.CreatePriceAlertRequest{
		Symbol: " aapl ", Condition: notification.ConditionAbove, Value: 200,
	})
	require.NoError(t, err)
	assert.Equal(t, "AAPL", a.Symbol)
	assert.Equal(t, notification.FrequencyOnce, a.Frequency)

	_, err = f.svc.CreatePriceAlert(ctx, "u1", &notification.CreatePriceAlertRequest{
		Symbol: "AAPL;ls", Condition: notification.ConditionAbove,
	})
	assert.ErrorIs(t, err, xerrors.ErrInvalidSymbol)

	_, err = f.svc.CreatePriceAlert(ctx, "u1", &notification.CreatePriceAlertRequest{
		Symbol: "AAPL", Condition: "sideways",
	})
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
}

func TestUpdatePriceAlertRearms(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a, err := f.svc.CreatePriceAlert(ctx, "u1", &notification.CreatePriceAlertRequest{
		Symbol: "MSFT", Condition: notification.ConditionBelow, Value: 300,
	})
	require.NoError(t, err)

	stored := f.alerts.get(a.ID)
	stored.Triggered = true
	f.alerts.rows[a.ID] = stored

	value := 280.0
	rearm := false
	updated, err := f.svc.UpdatePriceAlert(ctx, "u1", a.ID, &notification.UpdatePriceAlertRequest{Value: &value, Triggered: &rearm})
	require.NoError(t, err)
	assert.Equal(t, 280.0, updated.Value)
	assert.False(t, updated.Triggered)

	_, err = f.svc.UpdatePriceAlert(ctx, "u2", a.ID, &notification.UpdatePriceAlertRequest{Value: &value})
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

type stubQuotes struct {
	mu     sync.Mutex
	prices map[string]market.Quote
	calls  map[string]int
}

func (s *stubQuotes) Quote(_ context.Context, symbol string) (*market.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[symbol]++
	q, ok := s.prices[symbol]
	if !ok {
		return nil, errors.New("no quote")
	}
	return &q, nil
}

func (s *stubQuotes) set(symbol string, price, change float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = market.Quote{Symbol: symbol, Price: price, ChangePercent: change}
}

func TestMonitorOnceFiresOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	quotes := &stubQuotes{prices: map[string]market.Quote{}}
	monitor := NewAlertMonitor(f.svc, quotes, 2, zap.NewNop())

	a, err := f.svc.CreatePriceAlert(ctx, "u1", &notification.CreatePriceAlertRequest{
		Symbol: "AAPL", Condition: notification.ConditionAbove, Value: 200,
	})
	require.NoError(t, err)

	quotes.set("AAPL", 199, 0)
	require.NoError(t, monitor.Run(ctx))
	assert.Empty(t, f.pusher.alerts)

	quotes.set("AAPL", 201, 0)
	require.NoError(t, monitor.Run(ctx))
	require.Len(t, f.pusher.alerts, 1)
	assert.True(t, f.pusher.alerts[0].Triggered)
	assert.NotNil(t, f.alerts.get(a.ID).LastTriggered)
	require.Len(t, f.notes.rows, 1)
	assert.Equal(t, notification.TypePriceAlert, f.notes.rows[0].Type)
	assert.Equal(t, notification.PriorityHigh, f.notes.rows[0].Priority)

	quotes.set("AAPL", 150, 0)
	require.NoError(t, monitor.Run(ctx))
	quotes.set("AAPL", 250, 0)
	require.NoError(t, monitor.Run(ctx))
	assert.Len(t, f.pusher.alerts, 1)
}

func TestMonitorAlwaysFiresOnEachCrossing(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	quotes := &stubQuotes{prices: map[string]market.Quote{}}
	monitor := NewAlertMonitor(f.svc, quotes, 2, zap.NewNop())

	_, err := f.svc.CreatePriceAlert(ctx, "u1", &notification.CreatePriceAlertRequest{
		Symbol: "TSLA", Condition: notification.ConditionPercentChange, Value: 5, Frequency: notification.FrequencyAlways,
	})
	require.NoError(t, err)

	steps := []struct {
		change float64
		fired  int
	}{
		{change: 1, fired: 0},
		{change: -6, fired: 1},
		{change: 7, fired: 1}, // still above threshold, no new crossing
		{change: 2, fired: 1}, // clears and re-arms
		{change: 5, fired: 2},
	}
	for i, step := range steps {
		quotes.set("TSLA", 100, step.change)
		require.NoError(t, monitor.Run(ctx))
		assert.Len(t, f.pusher.alerts, step.fired, "step %d", i)
	}
}

func TestMonitorFetchesEachSymbolOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	quotes := &stubQuotes{prices: map[string]market.Quote{}}
	quotes.set("NVDA", 10, 0)
	monitor := NewAlertMonitor(f.svc, quotes, 4, zap.NewNop())

	for _, v := range []float64{100, 200, 300} {
		_, err := f.svc.CreatePriceAlert(ctx, "u1", &notification.CreatePriceAlertRequest{
			Symbol: "NVDA", Condition: notification.ConditionAbove, Value: v,
		})
		require.NoError(t, err)
	}
	_, err := f.svc.CreatePriceAlert(ctx, "u1", &notification.CreatePriceAlertRequest{
		Symbol: "GONE", Condition: notification.ConditionAbove, Value: 1,
	})
	require.NoError(t, err)

	require.NoError(t, monitor.Run(ctx))
	assert.Equal(t, 1, quotes.calls["NVDA"])
	assert.Equal(t, 1, quotes.calls["GONE"])
	assert.Empty(t, f.pusher.alerts)
}
