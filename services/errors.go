package services

import "errors"

// Engine error taxonomy. Validation errors are rejected synchronously and
// surfaced to the caller unchanged; a score disagreement is recorded state
// (disputed), never an error.
var (
	ErrNotFound = errors.New("requested resource not found")

	// Match protocol violations.
	ErrNotYourTurn             = errors.New("not this team's turn to act")
	ErrMapAlreadyUsed          = errors.New("map was already banned or picked")
	ErrMapNotInPool            = errors.New("map is not part of the match map pool")
	ErrAlreadyReady            = errors.New("team already signaled ready")
	ErrAlreadySubmitted        = errors.New("team already submitted a result")
	ErrTeamNotInMatch          = errors.New("team is not part of this match")
	ErrInvalidSide             = errors.New("invalid side choice")
	ErrInvalidScore            = errors.New("invalid score submission")
	ErrMatchNotInExpectedState = errors.New("match is not in the expected state")
	ErrMatchAlreadyCompleted   = errors.New("match is already completed")
	ErrNoDisputeToResolve      = errors.New("match has no dispute to resolve")

	// Advancement. Defensive: should be unreachable under single-writer
	// semantics, but duplicate or conflicting deliveries must be caught.
	ErrAdvancementConflict = errors.New("advancement conflict: slot occupied by a different team")

	// Tournament lifecycle.
	ErrTournamentNotInExpectedStatus = errors.New("tournament is not in the expected status")
	ErrTournamentFull                = errors.New("tournament registration is full")
	ErrRegistrationConflict          = errors.New("team is already registered for this tournament")
	ErrTeamNotRegistered             = errors.New("team is not registered for this tournament")
	ErrInvalidSeedingList            = errors.New("seeding list must reorder exactly the registered teams")
	ErrTournamentNameRequired        = errors.New("tournament name is required")
	ErrInvalidMapPool                = errors.New("map pool does not fit the match format")
	ErrInvalidFormat                 = errors.New("invalid tournament format")

	// Swiss stage.
	ErrSwissRoundIncomplete  = errors.New("current swiss round is not complete")
	ErrSwissStageNotFinished = errors.New("swiss stage rounds are not finished")
	ErrPlayoffAlreadyExists  = errors.New("playoff bracket was already generated")
	ErrSwissRoundSuperseded  = errors.New("a later swiss round was already paired from this result")

	// Administrative surface.
	ErrInvalidAdminKey = errors.New("invalid admin key")
)
