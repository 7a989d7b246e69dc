// Package notify streams call notifications to UI websocket clients.
package notify

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/telecall/internal/domain"
)

const broadcastBacklog = 64

// Notification types.
const (
	TypeParticipants = "participants"
	TypeError        = "error"
	TypeState        = "state"
)

// Notification is one frame pushed to UI clients. A participants frame
// without a list means the channel has nobody else left.
type Notification struct {
	Type         string                     `json:"type"`
	Participants []domain.RemoteParticipant `json:"participants,omitempty"`
	Error        string                     `json:"error,omitempty"`
	Kind         domain.ErrorKind           `json:"kind,omitempty"`
	State        string                     `json:"state,omitempty"`
}

// Client is one UI connection registered with the hub.
type Client interface {
	ID() string
	TrySend(b []byte) error
	Close()
}

// Hub fans notifications out to every registered client. All client
// bookkeeping happens on the Run goroutine.
type Hub struct {
	clients    map[Client]bool
	broadcast  chan []byte
	register   chan Client
	unregister chan Client
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[Client]bool),
		broadcast:  make(chan []byte, broadcastBacklog),
		register:   make(chan Client),
		unregister: make(chan Client),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			log.Info().Str("module", "notify").Str("client_id", client.ID()).Msg("client registered")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
				log.Info().Str("module", "notify").Str("client_id", client.ID()).Msg("client unregistered")
			}

		case msg := <-h.broadcast:
			for client := range h.clients {
				if err := client.TrySend(msg); err != nil {
					log.Warn().Err(err).Str("module", "notify").Str("client_id", client.ID()).Msg("dropping slow client")
					client.Close()
					delete(h.clients, client)
				}
			}
		}
	}
}

// Register and Unregister block until Run picks the client up, or ctx ends.
func (h *Hub) Register(ctx context.Context, c Client) {
	select {
	case h.register <- c:
	case <-ctx.Done():
	}
}

func (h *Hub) Unregister(ctx context.Context, c Client) {
	select {
	case h.unregister <- c:
	case <-ctx.Done():
	}
}

// Publish queues n for every client; it never blocks the caller.
func (h *Hub) Publish(n Notification) {
	b, err := json.Marshal(n)
	if err != nil {
		log.Error().Err(err).Str("module", "notify").Msg("marshal notification")
		return
	}
	select {
	case h.broadcast <- b:
	default:
		log.Warn().Str("module", "notify").Str("type", n.Type).Msg("broadcast channel full, dropping notification")
	}
}

func (h *Hub) ParticipantsChanged(ps []domain.RemoteParticipant) {
	if ps == nil {
		ps = []domain.RemoteParticipant{}
	}
	h.Publish(Notification{Type: TypeParticipants, Participants: ps})
}

func (h *Hub) CallFailed(err error) {
	h.Publish(Notification{Type: TypeError, Error: err.Error(), Kind: domain.KindOf(err)})
}

func (h *Hub) StateChanged(st domain.CallState) {
	h.Publish(Notification{Type: TypeState, State: st.String()})
}
