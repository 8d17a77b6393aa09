// Package notify relays file status events to live websocket clients.
// Group membership lives in this process only; a restart drops every
// subscription and clients have to resubscribe.
package notify

import (
	"context"

	"go.uber.org/zap"
)

type message struct {
	fileID  string
	payload []byte
}

type subscription struct {
	client *Client
	fileID string
}

// Hub tracks which clients are subscribed to which file. All state is
// owned by the Run goroutine, so no locks are needed and events for a
// single file keep their published order.
type Hub struct {
	register    chan *Client
	unregister  chan *Client
	subscribe   chan subscription
	unsubscribe chan subscription
	broadcast   chan message

	// fileID -> subscribed clients
	groups map[string]map[*Client]bool

	// client -> fileIDs it joined, for cleanup on disconnect
	members map[*Client]map[string]bool
}

func NewHub() *Hub {
	return &Hub{
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		subscribe:   make(chan subscription),
		unsubscribe: make(chan subscription),
		broadcast:   make(chan message, 64),
		groups:      make(map[string]map[*Client]bool),
		members:     make(map[*Client]map[string]bool),
	}
}

// Broadcast hands an event to every client subscribed to fileID.
// Implements event.Relay.
func (h *Hub) Broadcast(fileID string, payload []byte) {
	h.broadcast <- message{fileID: fileID, payload: payload}
}

// Run owns all hub state until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range h.members {
				close(c.send)
			}
			return

		case c := <-h.register:
			h.members[c] = make(map[string]bool)

		case c := <-h.unregister:
			if _, ok := h.members[c]; !ok {
				continue
			}

			for fileID := range h.members[c] {
				h.leave(c, fileID)
			}
			delete(h.members, c)
			close(c.send)

		case s := <-h.subscribe:
			if _, ok := h.members[s.client]; !ok {
				continue
			}

			if h.groups[s.fileID] == nil {
				h.groups[s.fileID] = make(map[*Client]bool)
			}
			h.groups[s.fileID][s.client] = true
			h.members[s.client][s.fileID] = true

			zap.L().Debug("Client subscribed", zap.String("fileID", s.fileID))

		case s := <-h.unsubscribe:
			if _, ok := h.members[s.client]; !ok {
				continue
			}

			h.leave(s.client, s.fileID)
			delete(h.members[s.client], s.fileID)

		case m := <-h.broadcast:
			for c := range h.groups[m.fileID] {
				select {
				case c.send <- m.payload:
				default:
					// Slow consumer, drop it rather than block
					// delivery to everyone else
					for fileID := range h.members[c] {
						h.leave(c, fileID)
					}
					delete(h.members, c)
					close(c.send)
				}
			}
		}
	}
}

func (h *Hub) leave(c *Client, fileID string) {
	group, ok := h.groups[fileID]
	if !ok {
		return
	}

	delete(group, c)
	if len(group) == 0 {
		delete(h.groups, fileID)
	}
}
