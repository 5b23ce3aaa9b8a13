package ws

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// Event represents a WebSocket message to be broadcast
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// guardianEvent is an internal struct for routing events to one guardian's connections
type guardianEvent struct {
	GuardianID uuid.UUID
	Event      Event
}

// paymentEventPayload is the payload for payment.status events
type paymentEventPayload struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
}

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	// Registered clients by guardian ID
	rooms map[uuid.UUID]map[*Client]bool

	// Inbound messages from clients (register/unregister)
	register   chan *Client
	unregister chan *Client

	// Outbound messages to broadcast
	broadcast chan *guardianEvent

	// Mutex for thread-safe room access
	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *guardianEvent, 256),
	}
}

// Run starts the hub's main loop
// This should be called as a goroutine: go hub.Run()
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.guardianID] == nil {
				h.rooms[client.guardianID] = make(map[*Client]bool)
			}
			h.rooms[client.guardianID][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.rooms[client.guardianID]; ok {
				if _, exists := clients[client]; exists {
					delete(clients, client)
					close(client.send)
					// Clean up empty rooms
					if len(clients) == 0 {
						delete(h.rooms, client.guardianID)
					}
				}
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.Lock()
			clients := h.rooms[event.GuardianID]

			// Marshal event to JSON once
			message, err := json.Marshal(event.Event)
			if err != nil {
				h.mu.Unlock()
				continue
			}

			// Send to all of this guardian's connections
			for client := range clients {
				select {
				case client.send <- message:
				default:
					// Client's send buffer is full, close and unregister
					close(client.send)
					delete(h.rooms[event.GuardianID], client)
					if len(h.rooms[event.GuardianID]) == 0 {
						delete(h.rooms, event.GuardianID)
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastToGuardian sends an event to all connections of one guardian
func (h *Hub) BroadcastToGuardian(guardianID uuid.UUID, event Event) {
	h.broadcast <- &guardianEvent{
		GuardianID: guardianID,
		Event:      event,
	}
}

// PaymentStatusChanged pushes a payment.status event to the guardian's
// open sessions. Satisfies service.Notifier.
func (h *Hub) PaymentStatusChanged(guardianID uuid.UUID, transactionID, status string) {
	payload, err := json.Marshal(paymentEventPayload{
		TransactionID: transactionID,
		Status:        status,
	})
	if err != nil {
		return
	}
	h.BroadcastToGuardian(guardianID, Event{Type: "payment.status", Payload: payload})
}
