package models

import "time"

// TournamentStatus mirrors the tournament_status ENUM in the database.
type TournamentStatus string

const (
	StatusDraft              TournamentStatus = "draft"
	StatusRegistrationOpen   TournamentStatus = "registration_open"
	StatusRegistrationClosed TournamentStatus = "registration_closed"
	StatusInProgress         TournamentStatus = "in_progress"
	StatusCompleted          TournamentStatus = "completed"
	StatusCanceled           TournamentStatus = "canceled"
)

type BracketType string

const (
	BracketSingleElimination BracketType = "single_elimination"
	BracketDoubleElimination BracketType = "double_elimination"
	BracketSwiss             BracketType = "swiss"
)

type MatchFormat string

const (
	FormatBO1 MatchFormat = "bo1"
	FormatBO3 MatchFormat = "bo3"
)

type SeedingMethod string

const (
	SeedingManual SeedingMethod = "manual"
	SeedingRandom SeedingMethod = "random"
)

// Format describes how the bracket of a tournament is built and played.
type Format struct {
	BracketType BracketType   `json:"bracket_type" db:"bracket_type"`
	TeamCount   int           `json:"team_count" db:"team_count"`
	MatchFormat MatchFormat   `json:"match_format" db:"match_format"`
	Seeding     SeedingMethod `json:"seeding" db:"seeding"`

	// Swiss-only settings. Zero for elimination brackets.
	SwissRounds int `json:"swiss_rounds,omitempty" db:"swiss_rounds"`
	PlayoffSize int `json:"playoff_size,omitempty" db:"playoff_size"`
}

// Tournament is the root document of a bracket. TeamIDs is ordered: for
// manual seeding the slice order is the seed order (index 0 = seed 1).
type Tournament struct {
	ID          int              `json:"id" db:"id"`
	Name        string           `json:"name" db:"name"`
	OrganizerID int              `json:"organizer_id" db:"organizer_id"`
	TeamIDs     []int            `json:"team_ids" db:"team_ids"`
	Format      Format           `json:"format"`
	Status      TournamentStatus `json:"status" db:"status"`
	MapPool     []string         `json:"map_pool" db:"map_pool"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`

	// Loaded on demand, not mapped directly.
	Matches []Match `json:"matches,omitempty" db:"-"`
}

// HasTeam reports whether the team is registered for the tournament.
func (t *Tournament) HasTeam(teamID int) bool {
	for _, id := range t.TeamIDs {
		if id == teamID {
			return true
		}
	}
	return false
}
