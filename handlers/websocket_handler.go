package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/openscrim/tournament-engine/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict to the deployed frontend origins.
		return true
	},
}

type WebSocketHandler struct {
	hub    *realtime.Hub
	logger *slog.Logger
}

func NewWebSocketHandler(hub *realtime.Hub, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, logger: logger}
}

// ServeWs joins the caller to the event stream of one tournament.
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	if _, err := idParam(r, "tournamentID"); err != nil {
		http.Error(w, "invalid tournamentID", http.StatusBadRequest)
		return
	}
	// Room names are the plain tournament id; the hub publishes events
	// under the same key.
	room := chi.URLParam(r, "tournamentID")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Debug("websocket upgrade failed",
			slog.String("room", room),
			slog.Any("error", err),
		)
		return
	}

	client := realtime.NewClient(h.hub, conn, room, h.logger)
	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
