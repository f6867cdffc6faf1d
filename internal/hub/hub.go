// Package hub fans queue events out to connected displays, counter
// terminals, and kiosks. Delivery is fire-and-forget: there is no backlog
// and no replay, clients reconcile through snapshot polling.
package hub

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
)

// Event types published by the queue services.
const (
	EventTicketCreated       = "ticket-created"
	EventTicketCalled        = "ticket-called"
	EventTicketRecalled      = "ticket-recalled"
	EventTicketAutoCancelled = "ticket-auto-cancelled"
	EventTicketCompleted     = "ticket-completed"
	EventTicketTransferred   = "ticket-transferred"
	EventQueueReset          = "queue-reset"
)

const sendBuffer = 16

type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type Client struct {
	ID   string
	Send chan []byte
}

type Hub struct {
	mu      sync.Mutex
	clients map[string]*Client
	closed  bool
}

func New() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

func (h *Hub) Subscribe() *Client {
	client := &Client{ID: uuid.NewString(), Send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(client.Send)
		return client
	}
	h.clients[client.ID] = client
	return client
}

func (h *Hub) Unsubscribe(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

// Publish pushes one event to every connected client. It never blocks: a
// client whose buffer is full is pruned on the spot and its channel
// closed. Failures are local to that client and invisible to the caller.
func (h *Hub) Publish(eventType string, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("event marshal error type=%s: %v", eventType, err)
		return
	}
	frame, err := json.Marshal(Envelope{Type: eventType, Payload: body})
	if err != nil {
		log.Printf("event marshal error type=%s: %v", eventType, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		select {
		case client.Send <- frame:
		default:
			log.Printf("drop slow client %s", id)
			delete(h.clients, id)
			close(client.Send)
		}
	}
}

// Close disconnects every client. Further Publish calls are no-ops and
// further Subscribe calls return an already-closed client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, client := range h.clients {
		delete(h.clients, id)
		close(client.Send)
	}
}
