package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"stockwatch/internal/client/api"
	"stockwatch/internal/domain/notification"
	ws "stockwatch/internal/domain/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type call struct {
	method string
	path   string
	body   any
}

type fakeTransport struct {
	mu        sync.Mutex
	calls     []call
	err       error
	responses map[string]any
}

func (f *fakeTransport) do(method, path string, body, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{method, path, body})
	if f.err != nil {
		return f.err
	}
	if v, ok := f.responses[method+" "+path]; ok && out != nil {
		if fn, ok := v.(func(any) any); ok {
			v = fn(body)
		}
		raw, _ := json.Marshal(v)
		return json.Unmarshal(raw, out)
	}
	return nil
}

func (f *fakeTransport) Get(_ context.Context, path string, out any, _ ...api.RequestOption) error {
	return f.do("GET", path, nil, out)
}

func (f *fakeTransport) Post(_ context.Context, path string, body, out any, _ ...api.RequestOption) error {
	return f.do("POST", path, body, out)
}

func (f *fakeTransport) Patch(_ context.Context, path string, body, out any, _ ...api.RequestOption) error {
	return f.do("PATCH", path, body, out)
}

func (f *fakeTransport) Delete(_ context.Context, path string, out any, _ ...api.RequestOption) error {
	return f.do("DELETE", path, nil, out)
}

type fakeSound struct {
	played []string
	err    error
}

func (f *fakeSound) Play(_ context.Context, sound string) error {
	f.played = append(f.played, sound)
	return f.err
}

type fakeDesktop struct {
	permitted bool
	shown     []notification.Notification
	err       error
}

func (f *fakeDesktop) Permitted() bool { return f.permitted }

func (f *fakeDesktop) Notify(_ context.Context, n notification.Notification) error {
	f.shown = append(f.shown, n)
	return f.err
}

func newTestService(clock time.Time) (*Service, *fakeTransport, *fakeSound, *fakeDesktop) {
	tr := &fakeTransport{responses: map[string]any{}}
	snd := &fakeSound{}
	desk := &fakeDesktop{permitted: true}
	svc := NewService(tr, nil, snd, desk, zap.NewNop())
	svc.now = func() time.Time { return clock }
	return svc, tr, snd, desk
}

func sample(id string, p notification.Priority) notification.Notification {
	return notification.Notification{
		ID: id, Type: notification.TypeNews, Title: "t", Message: "m",
		Priority: p, Status: notification.StatusUnread,
	}
}

func TestReceiveInsideQuietWindowRecordsButSkipsDesktop(t *testing.T) {
	svc, _, snd, desk := newTestService(at(10, 15))
	svc.state.Update(func(st State) State {
		st.Preferences.DoNotDisturb = notification.DoNotDisturb{Enabled: true, StartTime: "10:00", EndTime: "11:00"}
		return st
	})

	svc.Receive(context.Background(), sample("n1", notification.PriorityMedium))

	st := svc.State().Value()
	require.Len(t, st.Notifications, 1)
	assert.Equal(t, 1, st.UnreadCount)
	assert.Empty(t, desk.shown)
	assert.Empty(t, snd.played)
}

func TestReceivePrependsAndDelivers(t *testing.T) {
	svc, _, snd, desk := newTestService(at(12, 0))

	svc.Receive(context.Background(), sample("n1", notification.PriorityLow))
	svc.Receive(context.Background(), sample("n2", notification.PriorityUrgent))

	st := svc.State().Value()
	require.Len(t, st.Notifications, 2)
	assert.Equal(t, "n2", st.Notifications[0].ID)
	assert.Equal(t, 2, st.UnreadCount)
	assert.Equal(t, []string{"soft", "urgent"}, snd.played)
	assert.Len(t, desk.shown, 2)
}

func TestDeliveryErrorsAreSwallowed(t *testing.T) {
	svc, _, snd, desk := newTestService(at(12, 0))
	snd.err = errors.New("no audio device")
	desk.err = errors.New("notification api missing")

	svc.Receive(context.Background(), sample("n1", notification.PriorityHigh))

	assert.Equal(t, 1, svc.State().Value().UnreadCount)
	assert.Len(t, desk.shown, 1)
}

func TestDesktopRequiresPermission(t *testing.T) {
	svc, _, snd, desk := newTestService(at(12, 0))
	desk.permitted = false

	svc.Receive(context.Background(), sample("n1", notification.PriorityHigh))

	assert.Empty(t, desk.shown)
	assert.Equal(t, []string{"alert"}, snd.played)
}

func TestPriceAlertReplacedInPlaceAndSynthesized(t *testing.T) {
	svc, _, snd, _ := newTestService(at(12, 0))
	svc.state.Update(func(st State) State {
		st.PriceAlerts = []notification.PriceAlert{
			{ID: "a1", Symbol: "AAPL", Condition: notification.ConditionAbove, Value: 200, Frequency: notification.FrequencyAlways},
			{ID: "a2", Symbol: "MSFT", Condition: notification.ConditionBelow, Value: 300, Frequency: notification.FrequencyOnce},
		}
		return st
	})

	svc.ApplyPriceAlert(context.Background(), notification.PriceAlert{
		ID: "a2", Symbol: "MSFT", Condition: notification.ConditionBelow, Value: 300,
		Triggered: true, Frequency: notification.FrequencyOnce,
	})

	st := svc.State().Value()
	require.Len(t, st.PriceAlerts, 2)
	assert.Equal(t, "AAPL", st.PriceAlerts[0].Symbol)
	assert.True(t, st.PriceAlerts[1].Triggered)
	require.Len(t, st.Notifications, 1)
	n := st.Notifications[0]
	assert.Equal(t, notification.TypePriceAlert, n.Type)
	assert.Equal(t, notification.PriorityHigh, n.Priority)
	assert.Equal(t, 1, st.UnreadCount)
	assert.Equal(t, []string{"alert"}, snd.played)

	// A once alert that already fired does not notify again.
	svc.ApplyPriceAlert(context.Background(), st.PriceAlerts[1])
	assert.Len(t, svc.State().Value().Notifications, 1)
}

func TestUntriggeredPriceAlertOnlyUpdates(t *testing.T) {
	svc, _, _, _ := newTestService(at(12, 0))
	svc.state.Update(func(st State) State {
		st.PriceAlerts = []notification.PriceAlert{{ID: "a1", Symbol: "AAPL", Value: 1, Triggered: true}}
		return st
	})

	svc.ApplyPriceAlert(context.Background(), notification.PriceAlert{ID: "a1", Symbol: "AAPL", Value: 1})

	st := svc.State().Value()
	assert.False(t, st.PriceAlerts[0].Triggered)
	assert.Empty(t, st.Notifications)
}

func TestCreatePriceAlertRoundTrip(t *testing.T) {
	svc, tr, _, _ := newTestService(at(12, 0))
	start := time.Now()
	tr.responses["POST /notifications/price-alerts"] = func(body any) any {
		req := body.(notification.CreatePriceAlertRequest)
		return notification.PriceAlert{
			ID: "a9", Symbol: req.Symbol, Condition: req.Condition, Value: req.Value,
			Frequency: req.Frequency, CreatedAt: time.Now(),
		}
	}

	_, err := svc.CreatePriceAlert(context.Background(), notification.CreatePriceAlertRequest{
		Symbol: "NVDA", Condition: notification.ConditionPercentChange, Value: 4.5,
		Frequency: notification.FrequencyAlways,
	})
	require.NoError(t, err)

	alerts := svc.State().Value().PriceAlerts
	require.Len(t, alerts, 1)
	a := alerts[0]
	assert.Equal(t, "NVDA", a.Symbol)
	assert.Equal(t, notification.ConditionPercentChange, a.Condition)
	assert.Equal(t, 4.5, a.Value)
	assert.False(t, a.Triggered)
	assert.False(t, a.CreatedAt.Before(start.Truncate(time.Second)))
}

func TestFailedMutationsLeaveStateAlone(t *testing.T) {
	svc, tr, _, _ := newTestService(at(12, 0))
	svc.Receive(context.Background(), sample("n1", notification.PriorityLow))
	svc.state.Update(func(st State) State {
		st.PriceAlerts = []notification.PriceAlert{{ID: "a1", Symbol: "AAPL"}}
		return st
	})
	before := svc.State().Value()
	tr.err = &api.Error{Kind: api.KindStatus, Status: 500, Message: "boom"}

	ctx := context.Background()
	assert.Error(t, svc.MarkAsRead(ctx, "n1"))
	assert.Error(t, svc.MarkAllAsRead(ctx))
	assert.Error(t, svc.ClearNotifications(ctx))
	assert.Error(t, svc.DeletePriceAlert(ctx, "a1"))
	_, err := svc.CreatePriceAlert(ctx, notification.CreatePriceAlertRequest{Symbol: "X"})
	assert.Error(t, err)
	_, err = svc.UpdatePreferences(ctx, notification.Preferences{})
	assert.Error(t, err)

	assert.Equal(t, before, svc.State().Value())
}

func TestClearNotificationsIsIdempotent(t *testing.T) {
	svc, tr, _, _ := newTestService(at(12, 0))
	svc.Receive(context.Background(), sample("n1", notification.PriorityLow))

	for i := 0; i < 2; i++ {
		require.NoError(t, svc.ClearNotifications(context.Background()))
		st := svc.State().Value()
		assert.Empty(t, st.Notifications)
		assert.Equal(t, 0, st.UnreadCount)
	}
	assert.Len(t, tr.calls, 2)
}

func TestMarkAsReadAndAll(t *testing.T) {
	svc, tr, _, _ := newTestService(at(12, 0))
	ctx := context.Background()
	svc.Receive(ctx, sample("n1", notification.PriorityLow))
	svc.Receive(ctx, sample("n2", notification.PriorityLow))
	svc.Receive(ctx, sample("n3", notification.PriorityLow))

	require.NoError(t, svc.MarkAsRead(ctx, "n2"))
	require.NoError(t, svc.MarkAsRead(ctx, "n2"))
	assert.Equal(t, 2, svc.State().Value().UnreadCount)
	assert.Equal(t, "/notifications/n2/read", tr.calls[0].path)

	require.NoError(t, svc.MarkAllAsRead(ctx))
	st := svc.State().Value()
	assert.Equal(t, 0, st.UnreadCount)
	for _, n := range st.Notifications {
		assert.Equal(t, notification.StatusRead, n.Status)
	}
}

func TestUpdateAndDeletePriceAlert(t *testing.T) {
	svc, tr, _, _ := newTestService(at(12, 0))
	svc.state.Update(func(st State) State {
		st.PriceAlerts = []notification.PriceAlert{{ID: "a1", Symbol: "AAPL", Value: 100}, {ID: "a2", Symbol: "TSLA"}}
		return st
	})
	tr.responses["PATCH /notifications/price-alerts/a1"] = notification.PriceAlert{ID: "a1", Symbol: "AAPL", Value: 150}

	v := 150.0
	_, err := svc.UpdatePriceAlert(context.Background(), "a1", notification.UpdatePriceAlertRequest{Value: &v})
	require.NoError(t, err)
	assert.Equal(t, 150.0, svc.State().Value().PriceAlerts[0].Value)

	require.NoError(t, svc.DeletePriceAlert(context.Background(), "a2"))
	alerts := svc.State().Value().PriceAlerts
	require.Len(t, alerts, 1)
	assert.Equal(t, "a1", alerts[0].ID)
}

func TestLoaders(t *testing.T) {
	svc, tr, _, _ := newTestService(at(12, 0))
	prefs := notification.DefaultPreferences()
	prefs.Sound = false
	tr.responses["GET /notifications/preferences"] = prefs
	tr.responses["GET /notifications/price-alerts"] = []notification.PriceAlert{{ID: "a1", Symbol: "AAPL"}}
	tr.responses["GET /notifications/history"] = notification.HistoryResponse{
		Notifications: []notification.Notification{sample("n1", notification.PriorityLow)},
		UnreadCount:   1,
	}

	ctx := context.Background()
	_, err := svc.LoadPreferences(ctx)
	require.NoError(t, err)
	_, err = svc.LoadPriceAlerts(ctx)
	require.NoError(t, err)
	_, err = svc.LoadHistory(ctx, 50)
	require.NoError(t, err)

	st := svc.State().Value()
	assert.False(t, st.Preferences.Sound)
	assert.Len(t, st.PriceAlerts, 1)
	assert.Len(t, st.Notifications, 1)
	assert.Equal(t, 1, st.UnreadCount)
}

func TestMalformedErrorEventIsLoggedNotRaised(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	svc := NewService(&fakeTransport{}, nil, nil, nil, zap.New(core))
	before := svc.State().Value()

	svc.onError(&ws.WSMessage{Type: ws.EventTypeError, Data: json.RawMessage(`"not an object"`)})
	svc.onError(&ws.WSMessage{Type: ws.EventTypeError, Data: json.RawMessage(`{"code":"RATE_LIMIT","message":"slow down"}`)})

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "bad error payload", entries[0].Message)
	assert.Equal(t, "realtime error", entries[1].Message)
	assert.Equal(t, "RATE_LIMIT", entries[1].ContextMap()["code"])
	assert.Equal(t, before, svc.State().Value())
}
