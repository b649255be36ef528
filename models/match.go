package models

import "time"

// BracketSegment is the sub-graph of a double elimination bracket a match
// belongs to. Single elimination and Swiss matches use SegmentNone.
type BracketSegment string

const (
	SegmentNone       BracketSegment = "none"
	SegmentWinners    BracketSegment = "winners"
	SegmentLosers     BracketSegment = "losers"
	SegmentGrandFinal BracketSegment = "grand_final"
)

// MatchState is the single authoritative lifecycle field of a match. Every
// transition is persisted; no phase is ever re-derived from record contents.
type MatchState string

const (
	// StateAwaitingTeams marks a later-round match whose slots have not been
	// filled by advancement yet.
	StateAwaitingTeams  MatchState = "awaiting_teams"
	StateReadyUp        MatchState = "ready_up"
	StateMapBanning     MatchState = "map_banning"
	StatePlaying        MatchState = "playing"
	StateWaitingResults MatchState = "waiting_results"
	StateCompleted      MatchState = "completed"
	StateDisputed       MatchState = "disputed"
)

type VetoAction string

const (
	VetoBan  VetoAction = "ban"
	VetoPick VetoAction = "pick"
)

// VetoPhase is the persisted step of the ban/pick protocol.
type VetoPhase string

const (
	PhaseBanOneTeam1  VetoPhase = "ban1_team1"
	PhaseBanOneTeam2  VetoPhase = "ban1_team2"
	PhasePickMapOne   VetoPhase = "pick_map1"
	PhaseSideMapOne   VetoPhase = "side_map1"
	PhasePickMapTwo   VetoPhase = "pick_map2"
	PhaseSideMapTwo   VetoPhase = "side_map2"
	PhaseBanTwoTeam1  VetoPhase = "ban2_team1"
	PhaseBanTwoTeam2  VetoPhase = "ban2_team2"
	PhaseSideDecider  VetoPhase = "side_decider"
	PhaseVetoDone     VetoPhase = "done"
	// Best-of-1 alternating ban phases.
	PhaseBanDownTeam1 VetoPhase = "bandown_team1"
	PhaseBanDownTeam2 VetoPhase = "bandown_team2"
)

type Side string

const (
	SideCT Side = "ct"
	SideT  Side = "t"
)

// VetoEntry is one ban or pick. Sequence is strictly increasing across the
// whole veto and no map appears twice.
type VetoEntry struct {
	TeamID   int        `json:"team_id"`
	Map      string     `json:"map"`
	Action   VetoAction `json:"action"`
	Sequence int        `json:"sequence"`
}

// SideSelection records which side a team starts on for one picked map.
type SideSelection struct {
	MapNumber int    `json:"map_number"` // 1-based game number
	Map       string `json:"map"`
	TeamID    int    `json:"team_id"` // team that chose
	Side      Side   `json:"side"`    // side the choosing team starts on
}

// VetoState is stored as one JSONB document on the match row.
type VetoState struct {
	Phase   VetoPhase       `json:"phase"`
	Entries []VetoEntry     `json:"entries"`
	Sides   []SideSelection `json:"sides"`
	Maps    []string        `json:"maps"` // picked maps in play order, decider last
}

// Remaining returns the maps of the pool that are neither banned nor picked.
func (v *VetoState) Remaining(pool []string) []string {
	used := make(map[string]bool, len(v.Entries))
	for _, e := range v.Entries {
		used[e.Map] = true
	}
	out := make([]string, 0, len(pool))
	for _, m := range pool {
		if !used[m] {
			out = append(out, m)
		}
	}
	return out
}

// MapUsed reports whether a map was already banned or picked.
func (v *VetoState) MapUsed(name string) bool {
	for _, e := range v.Entries {
		if e.Map == name {
			return true
		}
	}
	return false
}

// ResultSubmission is the score pair one team reported.
type ResultSubmission struct {
	TeamID      int       `json:"team_id"`
	Team1Score  int       `json:"team1_score"`
	Team2Score  int       `json:"team2_score"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Dispute is recorded when both submissions exist and disagree. Terminal
// until an administrator resolves it.
type Dispute struct {
	Submissions []ResultSubmission `json:"submissions"`
	RaisedAt    time.Time          `json:"raised_at"`
	ResolvedBy  *int               `json:"resolved_by,omitempty"`
}

// ReadyState tracks independent ready-up signals of both teams.
type ReadyState struct {
	Team1 bool `json:"team1"`
	Team2 bool `json:"team2"`
}

// Match is a single node of the bracket graph. WinnerNextMatchID /
// LoserNextMatchID form the dependency index built at generation time;
// advancement and cascading reverts follow these links instead of scanning
// the whole bracket.
type Match struct {
	ID           int            `json:"id" db:"id"`
	TournamentID int            `json:"tournament_id" db:"tournament_id"`
	Round        int            `json:"round" db:"round"`
	Position     int            `json:"position" db:"position"`
	Segment      BracketSegment `json:"segment" db:"segment"`
	BracketKey   string         `json:"bracket_key" db:"bracket_key"`

	Team1ID *int `json:"team1_id,omitempty" db:"team1_id"`
	Team2ID *int `json:"team2_id,omitempty" db:"team2_id"`

	Score1    *int `json:"score1,omitempty" db:"score1"`
	Score2    *int `json:"score2,omitempty" db:"score2"`
	WinnerID  *int `json:"winner_id,omitempty" db:"winner_id"`
	Completed bool `json:"completed" db:"completed"`

	State MatchState `json:"state" db:"state"`

	MapPool     []string           `json:"map_pool" db:"map_pool"`
	Ready       ReadyState         `json:"ready"`
	Veto        *VetoState         `json:"veto,omitempty"`
	Submissions []ResultSubmission `json:"submissions,omitempty"`
	Dispute     *Dispute           `json:"dispute,omitempty"`

	WinnerNextMatchID *int `json:"winner_next_match_id,omitempty" db:"winner_next_match_id"`
	WinnerNextSlot    *int `json:"winner_next_slot,omitempty" db:"winner_next_slot"`
	LoserNextMatchID  *int `json:"loser_next_match_id,omitempty" db:"loser_next_match_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// Set by the generators before rows exist; resolved to the id columns in
	// the linking pass of bracket persistence. Never stored.
	WinnerNextKey *string `json:"-" db:"-"`
	LoserNextKey  *string `json:"-" db:"-"`
}

// HasTeam reports whether the team occupies one of the match slots.
func (m *Match) HasTeam(teamID int) bool {
	return (m.Team1ID != nil && *m.Team1ID == teamID) ||
		(m.Team2ID != nil && *m.Team2ID == teamID)
}

// SlotOf returns 1 or 2 for the slot the team occupies, 0 if absent.
func (m *Match) SlotOf(teamID int) int {
	if m.Team1ID != nil && *m.Team1ID == teamID {
		return 1
	}
	if m.Team2ID != nil && *m.Team2ID == teamID {
		return 2
	}
	return 0
}

// OpponentOf returns the id of the other team, if both slots are filled.
func (m *Match) OpponentOf(teamID int) *int {
	switch m.SlotOf(teamID) {
	case 1:
		return m.Team2ID
	case 2:
		return m.Team1ID
	}
	return nil
}

// OpenSlot returns the first empty slot (1 or 2), or 0 when full.
func (m *Match) OpenSlot() int {
	if m.Team1ID == nil {
		return 1
	}
	if m.Team2ID == nil {
		return 2
	}
	return 0
}

// SubmissionOf returns the recorded result submission of a team, if any.
func (m *Match) SubmissionOf(teamID int) *ResultSubmission {
	for i := range m.Submissions {
		if m.Submissions[i].TeamID == teamID {
			return &m.Submissions[i]
		}
	}
	return nil
}
