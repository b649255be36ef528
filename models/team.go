package models

// TeamRole is the role of a member inside a team roster.
type TeamRole string

const (
	RolePlayer     TeamRole = "player"
	RoleSubstitute TeamRole = "substitute"
	RoleCoach      TeamRole = "coach"
)

type TeamMember struct {
	UserID int      `json:"user_id"`
	Role   TeamRole `json:"role"`
}

// Team is owned by the roster collaborator; the engine only reads it to
// resolve captains and rosters. Inside the bracket teams travel by id.
type Team struct {
	ID        int          `json:"id"`
	Name      string       `json:"name"`
	CaptainID int          `json:"captain_id"`
	Roster    []TeamMember `json:"roster,omitempty"`
}
