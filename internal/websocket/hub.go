// Package websocket pushes seat state changes to every viewer of a flight's seat map.
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cx-tal-miterani/flight-reservation/internal/inventory"
	"github.com/cx-tal-miterani/flight-reservation/internal/logger"
	"github.com/cx-tal-miterani/flight-reservation/internal/models"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	MessageTypeSeatsUpdated   MessageType = "seats_updated"
	MessageTypeSessionExpired MessageType = "session_expired"
)

// SeatUpdate represents a seat status change
type SeatUpdate struct {
	Code   string            `json:"code"`
	Status models.SeatStatus `json:"status"`
	HeldBy string            `json:"heldBy,omitempty"`
}

// Message represents a WebSocket message
type Message struct {
	Type      MessageType  `json:"type"`
	FlightID  string       `json:"flightId"`
	Seats     []SeatUpdate `json:"seats,omitempty"`
	SessionID string       `json:"sessionId,omitempty"`
	Message   string       `json:"message,omitempty"`
	Timestamp int64        `json:"timestamp"`
}

// Hub manages WebSocket connections per flight
type Hub struct {
	clients    map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	done       chan struct{}
	mu         sync.RWMutex
	log        logger.Logger
}

var _ inventory.Publisher = (*Hub)(nil)

// NewHub creates a new Hub. Call Run to start delivering messages.
func NewHub(log logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 256),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run starts the hub's main loop and returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for flightID, clients := range h.clients {
				for client := range clients {
					close(client.send)
				}
				delete(h.clients, flightID)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.flightID] == nil {
				h.clients[client.flightID] = make(map[*Client]bool)
			}
			h.clients[client.flightID][client] = true
			h.log.Debug("WebSocket client registered", "flightID", client.flightID, "total", len(h.clients[client.flightID]))
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				h.log.Error("Failed to marshal websocket message", "error", err)
				continue
			}

			h.mu.Lock()
			for client := range h.clients[message.FlightID] {
				select {
				case client.send <- data:
				default:
					// slow reader
					h.remove(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove drops a client; callers hold h.mu.
func (h *Hub) remove(client *Client) {
	clients, ok := h.clients[client.flightID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)
	h.log.Debug("WebSocket client unregistered", "flightID", client.flightID, "remaining", len(clients))
	if len(clients) == 0 {
		delete(h.clients, client.flightID)
	}
}

// PublishSeatEvent broadcasts one seat change to the flight's viewers. It
// never blocks the inventory; when the queue is full the update is dropped
// and viewers catch up on their next seat map fetch.
func (h *Hub) PublishSeatEvent(event models.SeatEvent) {
	h.enqueue(&Message{
		Type:      MessageTypeSeatsUpdated,
		FlightID:  event.FlightID,
		Seats:     []SeatUpdate{{Code: event.Code, Status: event.Status, HeldBy: event.HeldBy}},
		Timestamp: time.Now().UnixMilli(),
	})
}

// BroadcastSessionExpired tells viewers that a session's holds were released.
func (h *Hub) BroadcastSessionExpired(flightID, sessionID string) {
	h.enqueue(&Message{
		Type:      MessageTypeSessionExpired,
		FlightID:  flightID,
		SessionID: sessionID,
		Message:   "Session expired, please restart search",
		Timestamp: time.Now().UnixMilli(),
	})
}

func (h *Hub) enqueue(msg *Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.log.Warn("WebSocket broadcast queue full, dropping update", "flightID", msg.FlightID, "type", msg.Type)
	}
}

// ClientCount returns the number of clients watching a flight
func (h *Hub) ClientCount(flightID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[flightID])
}
