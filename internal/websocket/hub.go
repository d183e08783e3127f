package websocket

import (
	"encoding/json"
	"sync"

	"copytrade/internal/logger"
)

const (
	EventBalance        = "balance"
	EventReferralJoined = "referral.joined"
	EventOrder          = "order"
	EventRecharge       = "recharge"
	EventWithdraw       = "withdraw"
	EventSessionLogout  = "session.logout"
)

// Event is one push message: {"type": ..., "data": ...}.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type BalanceUpdate struct {
	Balance          string `json:"balance"`
	AvailableBalance string `json:"available_balance"`
	Reason           string `json:"reason,omitempty"`
	StockID          int64  `json:"stock_id,omitempty"`
	Profit           string `json:"profit,omitempty"`
}

type Hub struct {
	mu      sync.RWMutex
	clients map[int64]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[int64]map[*Client]struct{}),
	}
}

func (h *Hub) Register(userID int64, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*Client]struct{})
	}
	h.clients[userID][client] = struct{}{}
}

func (h *Hub) Unregister(userID int64, client *Client) {
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

// Broadcast sends event to every open session of the user. Slow sessions
// drop the message instead of blocking the caller. A logout event closes the
// sessions once delivered.
func (h *Hub) Broadcast(userID int64, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.WithComponent("websocket").WithError(err).Warn("unable to encode event")
		return
	}
	f := frame{payload: payload, last: event.Type == EventSessionLogout}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[userID] {
		select {
		case client.send <- f:
		default:
		}
	}
}

func (h *Hub) Sessions(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}
