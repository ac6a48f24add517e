// internal/websocket/client.go
package websocket

import (
	"context"
	"slices"
	"sync"
	"time"

	wstypes "stockwatch/internal/domain/websocket"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// ClientAuth holds authentication information
type ClientAuth struct {
	UserID      string
	SessionID   string
	Role        string
	Permissions []string
	Email       string
}

type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	userID      string
	sessionID   string
	role        string
	permissions []string
	email       string

	send   chan []byte
	sendMu sync.Mutex
	closed bool

	subscriptions map[wstypes.ChannelType]bool
	subMutex      sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
}

// NewClient creates a client subscribed to the notification, price alert
// and system channels.
func NewClient(hub *Hub, conn *websocket.Conn, auth *ClientAuth) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		userID:      auth.UserID,
		sessionID:   auth.SessionID,
		role:        auth.Role,
		permissions: auth.Permissions,
		email:       auth.Email,
		subscriptions: map[wstypes.ChannelType]bool{
			wstypes.ChannelNotifications: true,
			wstypes.ChannelPriceAlerts:   true,
			wstypes.ChannelSystem:        true,
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

func (c *Client) UserID() string { return c.userID }

func (c *Client) HasRole(role string) bool {
	return c.role == role
}

func (c *Client) HasPermission(permission string) bool {
	return slices.Contains(c.permissions, permission)
}

func (c *Client) Subscribe(channel wstypes.ChannelType) bool {
	switch channel {
	case wstypes.ChannelNotifications, wstypes.ChannelPriceAlerts, wstypes.ChannelSystem:
	default:
		return false
	}

	c.subMutex.Lock()
	defer c.subMutex.Unlock()
	c.subscriptions[channel] = true
	return true
}

func (c *Client) Unsubscribe(channel wstypes.ChannelType) {
	c.subMutex.Lock()
	defer c.subMutex.Unlock()
	delete(c.subscriptions, channel)
}

func (c *Client) IsSubscribed(channel wstypes.ChannelType) bool {
	c.subMutex.RLock()
	defer c.subMutex.RUnlock()
	return c.subscriptions[channel]
}

// ReadPump handles incoming messages from client
func (c *Client) ReadPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}
		c.handleMessage(message)
	}
}

// WritePump drains the send queue and keeps the connection alive with
// pings. It ends with a close frame once the queue is closed.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(data []byte) {
	msg, err := wstypes.ParseMessage(data)
	if err != nil {
		c.SendError("invalid_message", "Failed to parse message", err.Error())
		return
	}

	handled, err := c.hub.HandleClientMessage(c.ctx, c, msg)
	if err != nil {
		c.SendError("handler_error", "Failed to process message", err.Error())
		return
	}
	if handled {
		return
	}

	switch msg.Type {
	case wstypes.EventTypePing:
		c.Send(wstypes.EventTypePong, nil)

	case wstypes.EventTypeSubscribe, wstypes.EventTypeUnsubscribe:
		var req wstypes.SubscribeRequest
		if err := msg.DecodeData(&req); err != nil {
			c.SendError("invalid_subscription", "Invalid subscription request", err.Error())
			return
		}
		accepted := make([]wstypes.ChannelType, 0, len(req.Channels))
		for _, channel := range req.Channels {
			if msg.Type == wstypes.EventTypeUnsubscribe {
				c.Unsubscribe(channel)
				accepted = append(accepted, channel)
			} else if c.Subscribe(channel) {
				accepted = append(accepted, channel)
			}
		}
		c.Send(msg.Type, wstypes.SubscribeRequest{Channels: accepted})

	default:
		c.SendError("unknown_event", "Unsupported event type", string(msg.Type))
	}
}

// Send encodes and queues an event.
func (c *Client) Send(event wstypes.EventType, data any) bool {
	msg, err := wstypes.NewMessage(event, data)
	if err != nil {
		c.hub.logger.Error("failed to encode message", zap.String("type", string(event)), zap.Error(err))
		return false
	}
	return c.SendMessage(msg)
}

// SendMessage queues msg. A client whose queue is full is dropped.
func (c *Client) SendMessage(msg *wstypes.WSMessage) bool {
	data, err := msg.ToJSON()
	if err != nil {
		c.hub.logger.Error("failed to marshal message", zap.Error(err))
		return false
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		c.hub.logger.Warn("send queue full, dropping client", zap.String("user_id", c.userID))
		go c.hub.remove(c)
		return false
	}
}

func (c *Client) SendError(code, message, details string) {
	c.Send(wstypes.EventTypeError, wstypes.ErrorData{
		Code:    code,
		Message: message,
		Details: details,
	})
}

// Close stops the client. Safe to call more than once.
func (c *Client) Close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	close(c.send)
}
