// internal/websocket/hub.go
package websocket

import (
	"context"
	"sync"

	"stockwatch/internal/domain/notification"
	wstypes "stockwatch/internal/domain/websocket"
	"stockwatch/internal/pkg/jwt"

	"go.uber.org/zap"
)

// Authenticator validates access tokens, including the revocation check.
type Authenticator interface {
	ValidateToken(ctx context.Context, token string) (*jwt.Claims, error)
}

type Hub struct {
	// Registered clients by user ID
	clients map[string]map[*Client]bool
	mu      sync.RWMutex

	Register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
	done       chan struct{}
	stopOnce   sync.Once

	handlerRegistry *HandlerRegistry
	auth            Authenticator
	logger          *zap.Logger
}

type BroadcastMessage struct {
	UserIDs []string // nil means everyone
	Channel wstypes.ChannelType
	Message *wstypes.WSMessage
}

func NewHub(auth Authenticator, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:         make(map[string]map[*Client]bool),
		Register:        make(chan *Client),
		unregister:      make(chan *Client),
		broadcast:       make(chan *BroadcastMessage, 256),
		done:            make(chan struct{}),
		handlerRegistry: NewHandlerRegistry(),
		auth:            auth,
		logger:          logger.With(zap.String("component", "ws_hub")),
	}
}

// AuthenticateClient validates the access token of a connecting client.
func (h *Hub) AuthenticateClient(ctx context.Context, token string) (*ClientAuth, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	claims, err := h.auth.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}

	return &ClientAuth{
		UserID:      claims.Subject,
		SessionID:   claims.ID,
		Role:        claims.Role,
		Permissions: claims.Permissions,
		Email:       claims.Email,
	}, nil
}

func (h *Hub) RegisterHandler(handler MessageHandler) {
	h.handlerRegistry.Register(handler)
}

// HandleClientMessage dispatches to a registered handler. handled is false
// when no handler claims the event.
func (h *Hub) HandleClientMessage(ctx context.Context, client *Client, msg *wstypes.WSMessage) (handled bool, err error) {
	handler, exists := h.handlerRegistry.GetHandler(msg.Type)
	if !exists {
		return false, nil
	}
	return true, handler.HandleMessage(ctx, client, msg)
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	if h.clients[client.userID] == nil {
		h.clients[client.userID] = make(map[*Client]bool)
	}
	h.clients[client.userID][client] = true
	total := h.totalClients()
	h.mu.Unlock()

	h.logger.Info("client connected",
		zap.String("user_id", client.userID),
		zap.String("session_id", client.sessionID),
		zap.Int("total", total),
	)

	client.Send(wstypes.EventTypeConnected, map[string]any{
		"userId":      client.userID,
		"role":        client.role,
		"permissions": client.permissions,
	})
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.userID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	client.Close()
	if len(clients) == 0 {
		delete(h.clients, client.userID)
	}

	h.logger.Info("client disconnected",
		zap.String("user_id", client.userID),
		zap.String("session_id", client.sessionID),
		zap.Int("total", h.totalClients()),
	)
}

// remove asks the hub to drop a client without blocking after shutdown.
func (h *Hub) remove(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) deliver(msg *BroadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	send := func(clients map[*Client]bool) {
		for client := range clients {
			if client.IsSubscribed(msg.Channel) {
				client.SendMessage(msg.Message)
			}
		}
	}

	if msg.UserIDs == nil {
		for _, clients := range h.clients {
			send(clients)
		}
		return
	}
	for _, userID := range msg.UserIDs {
		send(h.clients[userID])
	}
}

func (h *Hub) publish(userIDs []string, channel wstypes.ChannelType, event wstypes.EventType, data any) {
	msg, err := wstypes.NewMessage(event, data)
	if err != nil {
		h.logger.Error("failed to encode event", zap.String("type", string(event)), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- &BroadcastMessage{UserIDs: userIDs, Channel: channel, Message: msg}:
	case <-h.done:
	}
}

func (h *Hub) ConnectedClients(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalClients()
}

func (h *Hub) IsUserConnected(userID string) bool {
	return h.ConnectedClients(userID) > 0
}

// ========== Push API ==========

func (h *Hub) PushNotification(userID string, n *notification.Notification) {
	h.publish([]string{userID}, wstypes.ChannelNotifications, wstypes.EventTypeNotification, n)
}

func (h *Hub) PushPriceAlert(userID string, a *notification.PriceAlert) {
	h.publish([]string{userID}, wstypes.ChannelPriceAlerts, wstypes.EventTypePriceAlert, a)
}

func (h *Hub) PushUnreadCount(userID string, count int) {
	h.publish([]string{userID}, wstypes.ChannelNotifications, wstypes.EventTypeNotificationCount,
		wstypes.CountData{Unread: count})
}

// SessionRevoked tells every connection of the user and then drops them.
func (h *Hub) SessionRevoked(userID, reason string) {
	h.DisconnectUser(userID, reason)
}

// DisconnectUser sends session:revoked to all of a user's clients and
// closes them.
func (h *Hub) DisconnectUser(userID, reason string) {
	msg, err := wstypes.NewMessage(wstypes.EventTypeSessionRevoked, wstypes.SessionEventData{
		Reason:  reason,
		Message: "You have been logged out",
	})
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[userID]
	if !ok {
		return
	}
	for client := range clients {
		client.SendMessage(msg)
		client.Close()
	}
	delete(h.clients, userID)
	h.logger.Info("disconnected user", zap.String("user_id", userID), zap.String("reason", reason))
}

func (h *Hub) totalClients() int {
	total := 0
	for _, clients := range h.clients {
		total += len(clients)
	}
	return total
}

func (h *Hub) shutdown() {
	h.stopOnce.Do(func() { close(h.done) })

	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, clients := range h.clients {
		for client := range clients {
			client.Close()
		}
		delete(h.clients, userID)
	}
}
