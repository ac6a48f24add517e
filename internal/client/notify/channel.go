package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	ws "stockwatch/internal/domain/websocket"
	"stockwatch/internal/pkg/observable"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ConnState is the realtime channel state.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
)

const (
	writeWait         = 10 * time.Second
	baseReconnectWait = time.Second
	maxReconnectWait  = 30 * time.Second
)

// DialFunc opens the underlying connection.
type DialFunc func(ctx context.Context) (*websocket.Conn, error)

// Channel is the long-lived notification connection. Handlers registered
// with On survive reconnects; registering an event twice replaces the
// earlier handler.
type Channel struct {
	dial   DialFunc
	logger *zap.Logger
	state  *observable.Subject[ConnState]

	mu           sync.Mutex
	conn         *websocket.Conn
	writeMu      sync.Mutex
	started      bool
	stopped      bool
	reconnecting bool
	stopCh       chan struct{}

	handlersMu sync.RWMutex
	handlers   map[ws.EventType]func(*ws.WSMessage)

	baseDelay time.Duration
	maxDelay  time.Duration
}

func NewChannel(dial DialFunc, logger *zap.Logger) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{
		dial:      dial,
		logger:    logger.With(zap.String("component", "notification_channel")),
		state:     observable.NewSubject(StateDisconnected),
		stopCh:    make(chan struct{}),
		handlers:  make(map[ws.EventType]func(*ws.WSMessage)),
		baseDelay: baseReconnectWait,
		maxDelay:  maxReconnectWait,
	}
}

func (c *Channel) State() *observable.Subject[ConnState] { return c.state }

func (c *Channel) On(event ws.EventType, fn func(*ws.WSMessage)) {
	c.handlersMu.Lock()
	c.handlers[event] = fn
	c.handlersMu.Unlock()
}

// Start connects and keeps reconnecting until Stop. A failed first dial
// is returned but the reconnect loop still runs.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started || c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	conn, err := c.connect(ctx)
	if err != nil {
		c.logger.Warn("initial connection failed, retrying in background", zap.Error(err))
		go c.reconnectLoop()
		return err
	}
	c.dispatch(&ws.WSMessage{Type: ws.EventTypeConnected, Timestamp: time.Now()})
	go c.readLoop(conn)
	return nil
}

// Stop closes the connection and ends reconnection. Safe to call twice.
func (c *Channel) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	close(c.stopCh)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		c.writeMu.Unlock()
		conn.Close()
	}
	c.state.Set(StateDisconnected)
}

func (c *Channel) connect(ctx context.Context) (*websocket.Conn, error) {
	c.state.Set(StateConnecting)

	conn, err := c.dial(ctx)
	if err != nil {
		c.state.Set(StateDisconnected)
		return nil, fmt.Errorf("dial notification channel: %w", err)
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		conn.Close()
		return nil, fmt.Errorf("channel stopped")
	}
	c.conn = conn
	c.mu.Unlock()

	c.state.Set(StateConnected)
	c.logger.Info("notification channel connected")

	if err := c.Send(ws.EventTypeSubscribe, ws.SubscribeRequest{
		Channels: []ws.ChannelType{ws.ChannelNotifications, ws.ChannelPriceAlerts},
	}); err != nil {
		c.logger.Warn("subscribe failed", zap.Error(err))
	}
	return conn, nil
}

// Send writes one envelope to the current connection.
func (c *Channel) Send(event ws.EventType, data any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("notification channel not connected")
	}

	msg, err := ws.NewMessage(event, data)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	defer func() {
		c.mu.Lock()
		current := c.conn == conn
		if current {
			c.conn = nil
		}
		stopped := c.stopped
		c.mu.Unlock()
		conn.Close()

		if current && !stopped {
			c.state.Set(StateDisconnected)
			c.dispatch(&ws.WSMessage{Type: ws.EventTypeDisconnected, Timestamp: time.Now()})
			go c.reconnectLoop()
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("notification channel closed by server")
			} else {
				c.logger.Debug("notification channel read ended", zap.Error(err))
			}
			return
		}

		msg, err := ws.ParseMessage(data)
		if err != nil {
			c.logger.Warn("ignoring malformed frame", zap.Error(err))
			continue
		}
		c.dispatch(msg)
	}
}

// dispatch runs the handler for msg. Events other than disconnect are
// dropped unless the channel is connected.
func (c *Channel) dispatch(msg *ws.WSMessage) {
	if msg.Type != ws.EventTypeDisconnected && c.state.Value() != StateConnected {
		return
	}
	c.handlersMu.RLock()
	fn := c.handlers[msg.Type]
	c.handlersMu.RUnlock()
	if fn == nil {
		c.logger.Debug("no handler for event", zap.String("type", string(msg.Type)))
		return
	}
	fn(msg)
}

// reconnectLoop dials with exponential backoff until it succeeds or the
// channel stops. Only one loop runs at a time.
func (c *Channel) reconnectLoop() {
	c.mu.Lock()
	if c.reconnecting || c.stopped {
		c.mu.Unlock()
		return
	}
	c.reconnecting = true
	c.mu.Unlock()

	done := func() {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
	}

	for attempt := 1; ; attempt++ {
		delay := c.backoff(attempt)
		c.logger.Info("reconnecting notification channel",
			zap.Int("attempt", attempt), zap.Duration("delay", delay))

		select {
		case <-time.After(delay):
		case <-c.stopCh:
			done()
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		conn, err := c.connect(ctx)
		cancel()
		if err != nil {
			c.logger.Warn("reconnect failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		// Cleared before the read loop starts so a connection that drops
		// at once can schedule the next reconnect.
		done()
		c.dispatch(&ws.WSMessage{Type: ws.EventTypeConnected, Timestamp: time.Now()})
		go c.readLoop(conn)
		return
	}
}

func (c *Channel) backoff(attempt int) time.Duration {
	if attempt > 16 {
		return c.maxDelay
	}
	d := c.baseDelay << uint(attempt-1)
	if d > c.maxDelay {
		d = c.maxDelay
	}
	return d
}
