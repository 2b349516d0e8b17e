package messaging

import (
	"context"
	"fmt"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Message is the envelope used on the notifications and events channels.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type MessageBroker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string, handler func([]byte) error) error
	Close() error
}

// Channel names
const (
	ChannelNotifications = "notifications"
	ChannelEvents        = "events"
)

// RoomChannel is the per-room fan-out channel for RTC signaling.
func RoomChannel(roomID string) string {
	return fmt.Sprintf("rtc:room:%s", roomID)
}
