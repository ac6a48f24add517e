// internal/domain/websocket/types.go
package websocket

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType names a realtime event.
type EventType string

const (
	EventTypePing         EventType = "ping"
	EventTypePong         EventType = "pong"
	EventTypeConnected    EventType = "connect"
	EventTypeDisconnected EventType = "disconnect"
	EventTypeError        EventType = "error"

	// server -> client
	EventTypeNotification      EventType = "notification"
	EventTypePriceAlert        EventType = "price_alert"
	EventTypeNotificationCount EventType = "notification:count"
	EventTypeSessionRevoked    EventType = "session:revoked"

	// client -> server
	EventTypeNotificationRead    EventType = "notification:read"
	EventTypeNotificationReadAll EventType = "notification:read_all"
	EventTypeSubscribe           EventType = "subscribe"
	EventTypeUnsubscribe         EventType = "unsubscribe"
)

// WSMessage is the envelope of every frame in both directions.
type WSMessage struct {
	Type      EventType       `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	ID        string          `json:"id,omitempty"`
}

type ChannelType string

const (
	ChannelNotifications ChannelType = "notifications"
	ChannelPriceAlerts   ChannelType = "price_alerts"
	ChannelSystem        ChannelType = "system"
)

type SubscribeRequest struct {
	Channels []ChannelType `json:"channels"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type NotificationReadData struct {
	NotificationID string `json:"notificationId"`
}

type CountData struct {
	Unread int `json:"unread"`
}

type SessionEventData struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// NewMessage encodes data into a fresh envelope.
func NewMessage(eventType EventType, data any) (*WSMessage, error) {
	msg := &WSMessage{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		ID:        ulid.Make().String(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		msg.Data = raw
	}
	return msg, nil
}

func (m *WSMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeData unmarshals the payload into v.
func (m *WSMessage) DecodeData(v any) error {
	if len(m.Data) == 0 {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

func ParseMessage(data []byte) (*WSMessage, error) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
