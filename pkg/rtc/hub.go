// Package rtc fans signaling messages out to the WebSocket clients of a video room.
// Delivery goes through the message broker so clients connected to different API
// instances still see each other's messages.
package rtc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jwalitptl/telehealth-api/pkg/messaging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const sendBufferSize = 256

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is a single socket attached to a room.
type Client struct {
	ID     string
	UserID uuid.UUID
	RoomID string
	Send   chan []byte
	conn   Conn
}

func NewClient(userID uuid.UUID, roomID string, conn Conn) *Client {
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		RoomID: roomID,
		Send:   make(chan []byte, sendBufferSize),
		conn:   conn,
	}
}

// envelope is what travels on the broker channel of a room.
type envelope struct {
	SenderID uuid.UUID       `json:"sender_id"`
	Data     json.RawMessage `json:"data"`
}

type room struct {
	clients map[*Client]struct{}
	cancel  context.CancelFunc
}

// Hub tracks local clients per room and keeps one broker subscription per room
// while it has at least one local client.
type Hub struct {
	mu          sync.Mutex
	rooms       map[string]*room
	broker      messaging.Broker
	logger      zerolog.Logger
	connections prometheus.Gauge
}

// NewHub creates a hub. connections may be nil.
func NewHub(broker messaging.Broker, logger zerolog.Logger, connections prometheus.Gauge) *Hub {
	return &Hub{
		rooms:       make(map[string]*room),
		broker:      broker,
		logger:      logger.With().Str("component", "rtc_hub").Logger(),
		connections: connections,
	}
}

// Register attaches a client to its room, subscribing to the room channel if needed.
func (h *Hub) Register(ctx context.Context, client *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[client.RoomID]
	if !ok {
		subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		msgs, err := h.broker.Subscribe(subCtx, messaging.RoomChannel(client.RoomID))
		if err != nil {
			cancel()
			return fmt.Errorf("failed to subscribe to room %s: %w", client.RoomID, err)
		}
		r = &room{clients: make(map[*Client]struct{}), cancel: cancel}
		h.rooms[client.RoomID] = r
		go h.pump(client.RoomID, r, msgs)
	}

	r.clients[client] = struct{}{}
	if h.connections != nil {
		h.connections.Inc()
	}
	return nil
}

// Unregister detaches a client and closes its Send channel. The room subscription is
// dropped with the last local client.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[client.RoomID]
	if !ok {
		return
	}
	if _, ok := r.clients[client]; !ok {
		return
	}

	delete(r.clients, client)
	close(client.Send)
	if h.connections != nil {
		h.connections.Dec()
	}

	if len(r.clients) == 0 {
		r.cancel()
		delete(h.rooms, client.RoomID)
	}
}

// Publish sends msg to every member of the room except sender.
func (h *Hub) Publish(ctx context.Context, roomID string, sender uuid.UUID, msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal room message: %w", err)
	}
	return h.broker.Publish(ctx, messaging.RoomChannel(roomID), envelope{SenderID: sender, Data: data})
}

// pump belongs to one room entry. A pump whose entry was replaced after the last
// client left keeps draining until the broker closes its channel but delivers nothing.
func (h *Hub) pump(roomID string, owner *room, msgs <-chan []byte) {
	for raw := range msgs {
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			h.logger.Warn().Err(err).Str("room_id", roomID).Msg("dropping malformed room message")
			continue
		}
		h.deliver(roomID, owner, env)
	}
}

func (h *Hub) deliver(roomID string, owner *room, env envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[roomID] != owner {
		return
	}
	for client := range owner.clients {
		if client.UserID == env.SenderID {
			continue
		}
		select {
		case client.Send <- env.Data:
		default:
			h.logger.Warn().Str("room_id", roomID).Str("client_id", client.ID).Msg("client buffer full, message dropped")
		}
	}
}

// ClientCount returns the number of local clients in a room.
func (h *Hub) ClientCount(roomID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[roomID]; ok {
		return len(r.clients)
	}
	return 0
}

// RoomCount returns the number of rooms with local clients.
func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Close drops every subscription and disconnects all clients.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, r := range h.rooms {
		r.cancel()
		for client := range r.clients {
			close(client.Send)
			client.conn.Close()
		}
		delete(h.rooms, id)
	}
}
