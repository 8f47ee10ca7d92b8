package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"creator-platform/internal/logging"
	"creator-platform/internal/models"
	"creator-platform/internal/money"
)

type Client struct {
	Hub       *Hub
	Conn      *websocket.Conn
	Send      chan []byte
	CreatorID int64
}

// PaymentAlert is pushed to a creator's overlay when a payment completes.
type PaymentAlert struct {
	TargetCreatorID int64     `json:"-"`
	TransactionID   string    `json:"transaction_id"`
	Kind            string    `json:"kind"`
	AmountMinor     int64     `json:"amount_minor"`
	Currency        string    `json:"currency"`
	AmountDisplay   string    `json:"amount_display"`
	Message         string    `json:"message,omitempty"`
	TierID          *int64    `json:"tier_id,omitempty"`
	CompletedAt     time.Time `json:"completed_at"`
}

type Hub struct {
	Clients        map[int64]map[*Client]struct{}
	Register       chan *Client
	Unregister     chan *Client
	BroadcastAlert chan PaymentAlert
	done           chan struct{}
	logger         *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		Clients:        make(map[int64]map[*Client]struct{}),
		Register:       make(chan *Client),
		Unregister:     make(chan *Client),
		BroadcastAlert: make(chan PaymentAlert, 64),
		done:           make(chan struct{}),
		logger:         logging.OrDiscard(logger),
	}
}

// PaymentCompleted queues an alert for the creator. It never blocks the
// caller; alerts are dropped when the queue is full.
func (h *Hub) PaymentCompleted(txn models.Transaction, _ *models.Supporter) {
	alert := PaymentAlert{
		TargetCreatorID: txn.CreatorID,
		TransactionID:   txn.ID,
		Kind:            string(txn.Kind),
		AmountMinor:     txn.AmountMinor,
		Currency:        txn.Currency,
		AmountDisplay:   money.Format(txn.AmountMinor, txn.Currency),
		TierID:          txn.MembershipTierID,
	}
	if txn.IsPublic {
		alert.Message = txn.Message
	}
	if txn.CompletedAt != nil {
		alert.CompletedAt = *txn.CompletedAt
	}

	select {
	case h.BroadcastAlert <- alert:
	default:
		h.logger.Warn("alert queue full, dropping payment alert",
			"creator_id", txn.CreatorID, "transaction_id", txn.ID)
	}
}

// Attach registers client. It returns false once Run has stopped, in which
// case the caller owns the connection.
func (h *Hub) Attach(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Detach unregisters client. It does not block after Run has stopped.
func (h *Hub) Detach(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

// Run owns the client registry until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, clients := range h.Clients {
				for client := range clients {
					close(client.Send)
				}
			}
			h.Clients = make(map[int64]map[*Client]struct{})
			return

		case client := <-h.Register:
			if h.Clients[client.CreatorID] == nil {
				h.Clients[client.CreatorID] = make(map[*Client]struct{})
			}
			h.Clients[client.CreatorID][client] = struct{}{}
			h.logger.Info("websocket client registered", "creator_id", client.CreatorID)

		case client := <-h.Unregister:
			h.remove(client)

		case alert := <-h.BroadcastAlert:
			clients := h.Clients[alert.TargetCreatorID]
			if len(clients) == 0 {
				continue
			}
			jsonData, err := json.Marshal(alert)
			if err != nil {
				h.logger.Error("failed to marshal payment alert", "error", err)
				continue
			}
			for client := range clients {
				select {
				case client.Send <- jsonData:
					h.logger.Debug("sent alert", "creator_id", client.CreatorID, "transaction_id", alert.TransactionID)
				default:
					h.remove(client)
				}
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	clients, ok := h.Clients[client.CreatorID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.Clients, client.CreatorID)
	}
	close(client.Send)
	h.logger.Info("websocket client unregistered", "creator_id", client.CreatorID)
}
