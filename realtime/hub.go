package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"

	"github.com/openscrim/tournament-engine/events"
)

// Hub fans bracket events out to websocket subscribers. Clients join the
// room of one tournament; everything the engine publishes for that
// tournament is pushed to the room. The hub implements events.Publisher.
type Hub struct {
	Register   chan *Client
	Unregister chan *Client

	rooms  map[string]map[*Client]bool
	mu     sync.RWMutex
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		rooms:      make(map[string]map[*Client]bool),
		logger:     logger,
	}
}

// Run owns the room membership maps. Start it once in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			if _, ok := h.rooms[client.Room]; !ok {
				h.rooms[client.Room] = make(map[*Client]bool)
			}
			h.rooms[client.Room][client] = true
			h.logger.Debug("websocket client joined",
				slog.String("room", client.Room),
				slog.Int("clients", len(h.rooms[client.Room])),
			)
			h.mu.Unlock()

		case client := <-h.Unregister:
			h.mu.Lock()
			if room, ok := h.rooms[client.Room]; ok {
				if _, joined := room[client]; joined {
					client.closeSend()
					delete(room, client)
					if len(room) == 0 {
						delete(h.rooms, client.Room)
					}
					h.logger.Debug("websocket client left",
						slog.String("room", client.Room),
						slog.Int("clients", len(room)),
					)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish implements events.Publisher by broadcasting the event to the
// tournament's room. Slow clients are skipped, never waited on.
func (h *Hub) Publish(ctx context.Context, ev events.Event) {
	h.BroadcastToRoom(strconv.Itoa(ev.TournamentID), ev)
}

// BroadcastToRoom sends one message to every client of a room.
func (h *Hub) BroadcastToRoom(roomID string, message interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room, ok := h.rooms[roomID]
	if !ok {
		return
	}

	payload, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to encode broadcast message",
			slog.String("room", roomID),
			slog.Any("error", err),
		)
		return
	}

	for client := range room {
		client.mu.Lock()
		if client.closed {
			client.mu.Unlock()
			continue
		}
		select {
		case client.send <- payload:
		default:
			// Buffer full: drop for this client rather than block the hub.
		}
		client.mu.Unlock()
	}
}
