package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openscrim/tournament-engine/events"
	"github.com/openscrim/tournament-engine/models"
)

// swissBracket seeds a closed Swiss tournament and generates round 1.
func swissBracket(t *testing.T, teams, rounds, playoffSize int) (*engine, *models.Tournament) {
	t.Helper()
	e := newEngine()
	teamIDs := make([]int, teams)
	for i := range teamIDs {
		teamIDs[i] = i + 1
	}
	tournament := e.seedTournament(&models.Tournament{
		Name:        "swiss stage",
		OrganizerID: 1,
		TeamIDs:     teamIDs,
		Format: models.Format{
			BracketType: models.BracketSwiss,
			TeamCount:   teams,
			MatchFormat: models.FormatBO3,
			Seeding:     models.SeedingManual,
			SwissRounds: rounds,
			PlayoffSize: playoffSize,
		},
		Status:  models.StatusRegistrationClosed,
		MapPool: DefaultMapPool,
	})
	_, err := e.startBracket(tournament.ID)
	require.NoError(t, err)
	return e, tournament
}

func TestSwissRoundCompletionPairsNextRound(t *testing.T) {
	e, tournament := swissBracket(t, 4, 2, 2)

	// Round 1 is the seed split: 1v3 and 2v4.
	r1m1 := e.matchByKey(tournament.ID, "R1M1")
	r1m2 := e.matchByKey(tournament.ID, "R1M2")
	assert.Equal(t, 1, *r1m1.Team1ID)
	assert.Equal(t, 3, *r1m1.Team2ID)
	assert.Equal(t, 2, *r1m2.Team1ID)
	assert.Equal(t, 4, *r1m2.Team2ID)

	// The round is not paired forward until its last match completes.
	require.NoError(t, e.playMatch(r1m1.ID, 13, 5))
	assert.Nil(t, e.matchByKey(tournament.ID, "R2M1"))

	require.NoError(t, e.playMatch(r1m2.ID, 13, 9))

	// Winners meet winners, losers meet losers.
	r2m1 := e.matchByKey(tournament.ID, "R2M1")
	require.NotNil(t, r2m1)
	assert.Equal(t, 1, *r2m1.Team1ID)
	assert.Equal(t, 2, *r2m1.Team2ID)
	assert.Equal(t, models.StateReadyUp, r2m1.State)

	r2m2 := e.matchByKey(tournament.ID, "R2M2")
	require.NotNil(t, r2m2)
	assert.Equal(t, 3, *r2m2.Team1ID)
	assert.Equal(t, 4, *r2m2.Team2ID)

	paired := e.publisher.ofType(events.SwissRoundPaired)
	require.Len(t, paired, 1)
	payload := paired[0].Payload.(events.SwissRoundPayload)
	assert.Equal(t, 2, payload.Round)
	assert.Equal(t, 2, payload.Matches)
}

func TestSwissFinalRoundCutsPlayoff(t *testing.T) {
	e, tournament := swissBracket(t, 4, 2, 2)
	ctx := context.Background()

	require.NoError(t, e.playMatch(e.matchByKey(tournament.ID, "R1M1").ID, 13, 5))
	require.NoError(t, e.playMatch(e.matchByKey(tournament.ID, "R1M2").ID, 13, 9))
	require.NoError(t, e.playMatch(e.matchByKey(tournament.ID, "R2M1").ID, 13, 7))
	require.NoError(t, e.playMatch(e.matchByKey(tournament.ID, "R2M2").ID, 13, 4))

	// After the last stage round the top of the table crosses into a single
	// elimination cutoff whose rounds continue the numbering. Team 1 is 2-0;
	// teams 2 and 3 are 1-1 with equal Buchholz, so the better seed goes
	// through.
	playoff := e.matchByKey(tournament.ID, "R3M1")
	require.NotNil(t, playoff)
	assert.Equal(t, 1, *playoff.Team1ID)
	assert.Equal(t, 2, *playoff.Team2ID)
	assert.Equal(t, models.StateReadyUp, playoff.State)
	assert.Nil(t, playoff.WinnerNextMatchID)

	stored, err := e.tournaments.GetByID(ctx, nil, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, stored.Status)

	// The playoff final decides the tournament.
	require.NoError(t, e.playMatch(playoff.ID, 16, 6))
	stored, err = e.tournaments.GetByID(ctx, nil, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
}

func TestSwissWithoutPlayoffCompletesAfterLastRound(t *testing.T) {
	e, tournament := swissBracket(t, 2, 1, 0)
	ctx := context.Background()

	require.NoError(t, e.playMatch(e.matchByKey(tournament.ID, "R1M1").ID, 13, 8))

	stored, err := e.tournaments.GetByID(ctx, nil, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	assert.Len(t, e.publisher.ofType(events.TournamentCompleted), 1)
}

func TestGeneratePlayoffGuards(t *testing.T) {
	e, tournament := swissBracket(t, 4, 2, 2)
	ctx := context.Background()

	// Round 1 still open.
	_, err := e.swissService.GeneratePlayoff(ctx, tournament.ID)
	assert.ErrorIs(t, err, ErrSwissRoundIncomplete)

	require.NoError(t, e.playMatch(e.matchByKey(tournament.ID, "R1M1").ID, 13, 5))
	require.NoError(t, e.playMatch(e.matchByKey(tournament.ID, "R1M2").ID, 13, 9))
	require.NoError(t, e.playMatch(e.matchByKey(tournament.ID, "R2M1").ID, 13, 7))
	require.NoError(t, e.playMatch(e.matchByKey(tournament.ID, "R2M2").ID, 13, 4))

	// The final round completion already generated the cutoff.
	_, err = e.swissService.GeneratePlayoff(ctx, tournament.ID)
	assert.ErrorIs(t, err, ErrPlayoffAlreadyExists)
}

func TestGeneratePlayoffRequiresFinishedStage(t *testing.T) {
	e := newEngine()
	tournament := e.seedTournament(&models.Tournament{
		Name:        "short stage",
		OrganizerID: 1,
		TeamIDs:     []int{1, 2, 3, 4},
		Format: models.Format{
			BracketType: models.BracketSwiss,
			TeamCount:   4,
			MatchFormat: models.FormatBO3,
			Seeding:     models.SeedingManual,
			SwissRounds: 3,
			PlayoffSize: 2,
		},
		Status:  models.StatusInProgress,
		MapPool: DefaultMapPool,
	})
	ctx := context.Background()

	// One fully completed round of three.
	team1, team2 := 1, 2
	score1, score2 := 13, 6
	m := &models.Match{
		TournamentID: tournament.ID,
		Round:        1,
		Position:     1,
		Segment:      models.SegmentNone,
		BracketKey:   "R1M1",
		Team1ID:      &team1,
		Team2ID:      &team2,
		Score1:       &score1,
		Score2:       &score2,
		WinnerID:     &team1,
		Completed:    true,
		State:        models.StateCompleted,
		MapPool:      append([]string(nil), DefaultMapPool...),
	}
	require.NoError(t, e.matches.Create(ctx, nil, m))

	_, err := e.swissService.GeneratePlayoff(ctx, tournament.ID)
	assert.ErrorIs(t, err, ErrSwissStageNotFinished)
}

func TestGeneratePlayoffRejectsNonSwiss(t *testing.T) {
	e, tournament := fourTeamBracket(t)
	_, err := e.swissService.GeneratePlayoff(context.Background(), tournament.ID)
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestSwissStandingsExcludePlayoffResults(t *testing.T) {
	e, tournament := swissBracket(t, 4, 2, 2)
	ctx := context.Background()

	require.NoError(t, e.playMatch(e.matchByKey(tournament.ID, "R1M1").ID, 13, 5))
	require.NoError(t, e.playMatch(e.matchByKey(tournament.ID, "R1M2").ID, 13, 9))
	require.NoError(t, e.playMatch(e.matchByKey(tournament.ID, "R2M1").ID, 13, 7))
	require.NoError(t, e.playMatch(e.matchByKey(tournament.ID, "R2M2").ID, 13, 4))

	playoff := e.matchByKey(tournament.ID, "R3M1")
	require.NotNil(t, playoff)
	require.NoError(t, e.playMatch(playoff.ID, 6, 16))

	// Team 2 won the playoff final, but the Swiss table still shows the
	// stage record only: team 1 kept its 2-0.
	standings, err := e.swissService.Standings(ctx, tournament.ID)
	require.NoError(t, err)
	require.Len(t, standings, 4)
	assert.Equal(t, 1, standings[0].TeamID)
	assert.Equal(t, 2, standings[0].Wins)
	assert.Equal(t, 0, standings[0].Losses)
}

func TestSwissRevertBlockedAfterNextRoundPaired(t *testing.T) {
	e, tournament := swissBracket(t, 4, 2, 2)
	ctx := context.Background()

	r1m1 := e.matchByKey(tournament.ID, "R1M1")
	require.NoError(t, e.playMatch(r1m1.ID, 13, 5))

	// Round 1 is still open, so its completed match can be reverted and
	// replayed.
	_, err := e.matchService.RevertMatch(ctx, r1m1.ID)
	require.NoError(t, err)
	require.NoError(t, e.playMatch(r1m1.ID, 13, 5))

	require.NoError(t, e.playMatch(e.matchByKey(tournament.ID, "R1M2").ID, 13, 9))

	// Round 2 was paired from these standings; the result is locked in.
	_, err = e.matchService.RevertMatch(ctx, r1m1.ID)
	assert.ErrorIs(t, err, ErrSwissRoundSuperseded)

	err = e.matchService.RevertRound(ctx, tournament.ID, 1, models.SegmentNone)
	assert.ErrorIs(t, err, ErrSwissRoundSuperseded)
}

func TestSwissStandingsRejectsElimination(t *testing.T) {
	e, tournament := fourTeamBracket(t)
	_, err := e.swissService.Standings(context.Background(), tournament.ID)
	assert.ErrorIs(t, err, ErrInvalidFormat)
}
