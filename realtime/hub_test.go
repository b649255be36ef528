package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openscrim/tournament-engine/events"
)

func testHub() *Hub {
	h := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	go h.Run()
	return h
}

func join(t *testing.T, h *Hub, room string) *Client {
	t.Helper()
	c := NewClient(h, nil, room, slog.New(slog.NewTextHandler(io.Discard, nil)))
	select {
	case h.Register <- c:
	case <-time.After(time.Second):
		t.Fatal("hub did not accept the client")
	}
	// Receiving on Register happens before the room insert; wait until the
	// membership is visible.
	for i := 0; i < 1000; i++ {
		h.mu.RLock()
		_, joined := h.rooms[room][c]
		h.mu.RUnlock()
		if joined {
			return c
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("client never joined the room")
	return nil
}

func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message delivered to the client")
		return nil
	}
}

func TestHubRoutesEventsToTournamentRoom(t *testing.T) {
	h := testHub()
	subscriber := join(t, h, "7")
	bystander := join(t, h, "8")

	h.Publish(context.Background(), events.New(events.MatchReady, 7, events.MatchStatePayload{
		MatchID: 3,
		State:   "ready_up",
	}))

	var ev events.Event
	require.NoError(t, json.Unmarshal(receive(t, subscriber), &ev))
	assert.Equal(t, events.MatchReady, ev.Type)
	assert.Equal(t, 7, ev.TournamentID)

	assert.Empty(t, bystander.send)
}

func TestHubSkipsSlowClients(t *testing.T) {
	h := testHub()
	slow := join(t, h, "1")

	// Overrun the send buffer; the hub must drop instead of blocking.
	for i := 0; i < sendBuffer+5; i++ {
		h.BroadcastToRoom("1", map[string]int{"seq": i})
	}
	assert.Len(t, slow.send, sendBuffer)
}

func TestHubUnregisterClosesClient(t *testing.T) {
	h := testHub()
	c := join(t, h, "2")

	select {
	case h.Unregister <- c:
	case <-time.After(time.Second):
		t.Fatal("hub did not accept the unregister")
	}

	// The send channel is closed once the hub processes the departure.
	deadline := time.After(time.Second)
	for {
		select {
		case _, open := <-c.send:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("send channel was not closed")
		}
	}
}

func TestHubBroadcastToEmptyRoom(t *testing.T) {
	h := testHub()
	// No panic, no delivery.
	h.BroadcastToRoom("404", "hello")
}
