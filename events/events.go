package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type identifies a domain event the engine emits. Delivery and formatting
// belong to the subscribing collaborators.
type Type string

const (
	MatchReady          Type = "match.ready"
	MatchStateChanged   Type = "match.state_changed"
	TeamAdvanced        Type = "team.advanced"
	DisputeRaised       Type = "dispute.raised"
	TournamentCompleted Type = "tournament.completed"
	SwissRoundPaired    Type = "swiss.round_paired"
)

// Event is the envelope every emission is wrapped in.
type Event struct {
	ID           uuid.UUID   `json:"id"`
	Type         Type        `json:"type"`
	TournamentID int         `json:"tournament_id"`
	Payload      interface{} `json:"payload,omitempty"`
	EmittedAt    time.Time   `json:"emitted_at"`
}

// New builds an envelope with a fresh id and timestamp.
func New(t Type, tournamentID int, payload interface{}) Event {
	return Event{
		ID:           uuid.New(),
		Type:         t,
		TournamentID: tournamentID,
		Payload:      payload,
		EmittedAt:    time.Now().UTC(),
	}
}

// Publisher fans events out to whoever listens. Implementations must not
// block the engine; failures are logged by the implementation, never
// surfaced to the mutating operation.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// NopPublisher drops everything. Used in tests and when no realtime
// transport is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) {}

// Payloads.

type MatchStatePayload struct {
	MatchID  int    `json:"match_id"`
	State    string `json:"state"`
	Round    int    `json:"round"`
	Position int    `json:"position"`
	Segment  string `json:"segment"`
}

type TeamAdvancedPayload struct {
	TeamID      int    `json:"team_id"`
	FromMatchID int    `json:"from_match_id"`
	ToMatchID   int    `json:"to_match_id"`
	Slot        int    `json:"slot"`
	AsLoser     bool   `json:"as_loser"`
	Segment     string `json:"segment"`
}

type DisputePayload struct {
	MatchID int `json:"match_id"`
}

type SwissRoundPayload struct {
	Round   int `json:"round"`
	Matches int `json:"matches"`
}
