package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"stockwatch/internal/domain/notification"
	wstypes "stockwatch/internal/domain/websocket"
	"stockwatch/internal/pkg/jwt"
	ws "stockwatch/internal/websocket"

	"github.com/gin-gonic/gin"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type tokenAuth struct{}

func (tokenAuth) ValidateToken(_ context.Context, token string) (*jwt.Claims, error) {
	if token != "valid" {
		return nil, errors.New("invalid token")
	}
	return &jwt.Claims{Role: "user", RegisteredClaims: jwtlib.RegisteredClaims{Subject: "u1", ID: "j1"}}, nil
}

func setup(t *testing.T, origins []string) (*ws.Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := ws.NewHub(tokenAuth{}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/ws/notifications", NewWebSocketHandler(hub, origins, zap.NewNop()).HandleConnection)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/notifications"
}

func read(t *testing.T, conn *websocket.Conn) *wstypes.WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg wstypes.WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return &msg
}

func TestConnectAndReceivePush(t *testing.T) {
	hub, url := setup(t, []string{"*"})

	conn, _, err := websocket.DefaultDialer.Dial(url+"?token=valid", nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, wstypes.EventTypeConnected, read(t, conn).Type)

	hub.PushNotification("u1", &notification.Notification{ID: "n1", Title: "AAPL up"})
	msg := read(t, conn)
	assert.Equal(t, wstypes.EventTypeNotification, msg.Type)

	ping, err := wstypes.NewMessage(wstypes.EventTypePing, nil)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(ping))
	assert.Equal(t, wstypes.EventTypePong, read(t, conn).Type)
}

func TestBearerHeaderAccepted(t *testing.T) {
	_, url := setup(t, []string{"*"})

	header := http.Header{"Authorization": []string{"Bearer valid"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, wstypes.EventTypeConnected, read(t, conn).Type)
}

func TestRejectsBadToken(t *testing.T) {
	_, url := setup(t, []string{"*"})

	_, resp, err := websocket.DefaultDialer.Dial(url+"?token=nope", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestOriginCheck(t *testing.T) {
	_, url := setup(t, []string{"https://app.example.com"})

	_, resp, err := websocket.DefaultDialer.Dial(url+"?token=valid", http.Header{"Origin": []string{"https://evil.example.com"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?token=valid", http.Header{"Origin": []string{"https://app.example.com"}})
	require.NoError(t, err)
	conn.Close()
}
