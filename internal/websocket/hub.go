package websocket

import (
	"encoding/json"
	"sync"
)

const (
	EventBalance = "balance"
	EventLoan    = "loan"
)

type BalanceUpdate struct {
	AccountID     string `json:"account_id"`
	AccountNumber string `json:"account_number"`
	Balance       string `json:"balance"`
	Active        bool   `json:"active"`
}

type LoanUpdate struct {
	LoanID  string `json:"loan_id"`
	Status  string `json:"status"`
	Balance string `json:"balance"`
}

// Event is the frame written to clients.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub fans committed updates out to every connection a user holds. Slow
// clients drop frames instead of blocking the sender.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(userID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*Client]struct{})
	}
	h.clients[userID][client] = struct{}{}
}

func (h *Hub) Unregister(userID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		return
	}
	delete(h.clients[userID], client)
	if len(h.clients[userID]) == 0 {
		delete(h.clients, userID)
	}
}

func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) BroadcastBalance(userID string, update BalanceUpdate) {
	h.broadcast(userID, Event{Type: EventBalance, Data: update})
}

func (h *Hub) BroadcastLoan(userID string, update LoanUpdate) {
	h.broadcast(userID, Event{Type: EventLoan, Data: update})
}

func (h *Hub) broadcast(userID string, event Event) {
	if userID == "" {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[userID] {
		select {
		case client.send <- payload:
		default:
		}
	}
}
