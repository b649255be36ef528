package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openscrim/tournament-engine/events"
	"github.com/openscrim/tournament-engine/models"
)

func TestAdvanceRequiresCompletedMatch(t *testing.T) {
	e, tournament := fourTeamBracket(t)

	open := e.matchByKey(tournament.ID, "R1M1")
	err := e.advancer.Advance(context.Background(), open)
	assert.ErrorIs(t, err, ErrMatchNotInExpectedState)
}

func TestAdvanceRoutesWinnerThroughLinks(t *testing.T) {
	e, tournament := fourTeamBracket(t)
	ctx := context.Background()

	r1m1 := e.matchByKey(tournament.ID, "R1M1")
	_, err := e.matchService.ForceComplete(ctx, r1m1.ID, 13, 5)
	require.NoError(t, err)

	final := e.matchByKey(tournament.ID, "R2M1")
	require.NotNil(t, final.Team1ID)
	assert.Equal(t, 1, *final.Team1ID)
	assert.Nil(t, final.Team2ID)
	assert.Equal(t, models.StateAwaitingTeams, final.State)

	advanced := e.publisher.ofType(events.TeamAdvanced)
	require.Len(t, advanced, 1)
	payload := advanced[0].Payload.(events.TeamAdvancedPayload)
	assert.Equal(t, 1, payload.TeamID)
	assert.Equal(t, r1m1.ID, payload.FromMatchID)
	assert.Equal(t, final.ID, payload.ToMatchID)
	assert.Equal(t, 1, payload.Slot)
	assert.False(t, payload.AsLoser)

	// The second semifinal readies the final.
	r1m2 := e.matchByKey(tournament.ID, "R1M2")
	_, err = e.matchService.ForceComplete(ctx, r1m2.ID, 7, 13)
	require.NoError(t, err)

	final = e.matchByKey(tournament.ID, "R2M1")
	assert.Equal(t, 3, *final.Team2ID)
	assert.Equal(t, models.StateReadyUp, final.State)
	assert.NotEmpty(t, e.publisher.ofType(events.MatchReady))
}

func TestAdvanceIsIdempotent(t *testing.T) {
	e, tournament := fourTeamBracket(t)
	ctx := context.Background()

	r1m1 := e.matchByKey(tournament.ID, "R1M1")
	_, err := e.matchService.ForceComplete(ctx, r1m1.ID, 13, 5)
	require.NoError(t, err)

	completed := e.matchByKey(tournament.ID, "R1M1")
	require.NoError(t, e.advancer.Advance(ctx, completed))
	require.NoError(t, e.advancer.Advance(ctx, completed))

	final := e.matchByKey(tournament.ID, "R2M1")
	assert.Equal(t, 1, *final.Team1ID)
	assert.Nil(t, final.Team2ID)
}

func TestAdvanceConflictOnOccupiedSlot(t *testing.T) {
	e, tournament := fourTeamBracket(t)
	ctx := context.Background()

	r1m1 := e.matchByKey(tournament.ID, "R1M1")
	_, err := e.matchService.ForceComplete(ctx, r1m1.ID, 13, 5)
	require.NoError(t, err)

	// Corrupt the downstream slot with a different team.
	final := e.matchByKey(tournament.ID, "R2M1")
	other := 9
	final.Team1ID = &other
	require.NoError(t, e.matches.Update(ctx, nil, final))

	completed := e.matchByKey(tournament.ID, "R1M1")
	err = e.advancer.Advance(ctx, completed)
	assert.ErrorIs(t, err, ErrAdvancementConflict)
}

func TestDoubleEliminationPlaythrough(t *testing.T) {
	e := newEngine()
	tournament := e.seedTournament(&models.Tournament{
		Name:        "double knockout",
		OrganizerID: 1,
		TeamIDs:     []int{1, 2, 3, 4},
		Format: models.Format{
			BracketType: models.BracketDoubleElimination,
			TeamCount:   4,
			MatchFormat: models.FormatBO3,
			Seeding:     models.SeedingManual,
		},
		Status:  models.StatusRegistrationClosed,
		MapPool: DefaultMapPool,
	})
	_, err := e.startBracket(tournament.ID)
	require.NoError(t, err)
	ctx := context.Background()

	// Winners round 1: both losers drop into the same losers match.
	require.NoError(t, e.playMatch(e.matchByKey(tournament.ID, "WR1M1").ID, 13, 5))
	require.NoError(t, e.playMatch(e.matchByKey(tournament.ID, "WR1M2").ID, 13, 7))

	lr1 := e.matchByKey(tournament.ID, "LR1M1")
	require.NotNil(t, lr1.Team1ID)
	require.NotNil(t, lr1.Team2ID)
	assert.Equal(t, 4, *lr1.Team1ID)
	assert.Equal(t, 3, *lr1.Team2ID)
	assert.Equal(t, models.StateReadyUp, lr1.State)

	// Its winner waits in the losers final for the winners final loser.
	require.NoError(t, e.playMatch(lr1.ID, 13, 2))
	lr2 := e.matchByKey(tournament.ID, "LR2M1")
	require.NotNil(t, lr2.Team1ID)
	assert.Equal(t, 4, *lr2.Team1ID)
	assert.Nil(t, lr2.Team2ID)
	assert.Equal(t, models.StateAwaitingTeams, lr2.State)

	// Winners final: winner takes grand final slot 1, loser drops into the
	// losers final.
	require.NoError(t, e.playMatch(e.matchByKey(tournament.ID, "WR2M1").ID, 13, 8))

	lr2 = e.matchByKey(tournament.ID, "LR2M1")
	assert.Equal(t, 4, *lr2.Team1ID)
	assert.Equal(t, 2, *lr2.Team2ID)
	assert.Equal(t, models.StateReadyUp, lr2.State)

	gf := e.matchByKey(tournament.ID, "GFR1M1")
	assert.Equal(t, 1, *gf.Team1ID)
	assert.Nil(t, gf.Team2ID)

	require.NoError(t, e.playMatch(lr2.ID, 13, 11))
	gf = e.matchByKey(tournament.ID, "GFR1M1")
	assert.Equal(t, 4, *gf.Team2ID)
	assert.Equal(t, models.StateReadyUp, gf.State)

	// Upper-bracket entrant wins the grand final: no reset below eight
	// teams, the tournament is over.
	require.NoError(t, e.playMatch(gf.ID, 16, 14))

	stored, err := e.tournaments.GetByID(ctx, nil, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	assert.Len(t, e.publisher.ofType(events.TournamentCompleted), 1)
	assert.Equal(t, []int{tournament.ID}, e.archiver.archived)
}

func TestDoubleEliminationEightTeamPlaythrough(t *testing.T) {
	e := newEngine()
	tournament := e.seedTournament(&models.Tournament{
		Name:        "eight team knockout",
		OrganizerID: 1,
		TeamIDs:     []int{1, 2, 3, 4, 5, 6, 7, 8},
		Format: models.Format{
			BracketType: models.BracketDoubleElimination,
			TeamCount:   8,
			MatchFormat: models.FormatBO1,
			Seeding:     models.SeedingManual,
		},
		Status:  models.StatusRegistrationClosed,
		MapPool: DefaultMapPool,
	})
	_, err := e.startBracket(tournament.ID)
	require.NoError(t, err)
	ctx := context.Background()

	force := func(key string, s1, s2 int) {
		t.Helper()
		_, err := e.matchService.ForceComplete(ctx, e.matchByKey(tournament.ID, key).ID, s1, s2)
		require.NoError(t, err)
	}

	// Winners round 1: higher seeds win, losers pair up in losers round 1.
	force("WR1M1", 13, 5)
	force("WR1M2", 13, 6)
	force("WR1M3", 13, 7)
	force("WR1M4", 13, 8)

	lr1m1 := e.matchByKey(tournament.ID, "LR1M1")
	assert.Equal(t, 8, *lr1m1.Team1ID)
	assert.Equal(t, 7, *lr1m1.Team2ID)
	lr1m2 := e.matchByKey(tournament.ID, "LR1M2")
	assert.Equal(t, 6, *lr1m2.Team1ID)
	assert.Equal(t, 5, *lr1m2.Team2ID)

	force("LR1M1", 13, 9)
	force("LR1M2", 13, 10)

	// Winners round 2 losers drop in against the losers round 1 survivors.
	force("WR2M1", 13, 6)
	force("WR2M2", 13, 7)

	lr2m1 := e.matchByKey(tournament.ID, "LR2M1")
	assert.Equal(t, 8, *lr2m1.Team1ID)
	assert.Equal(t, 2, *lr2m1.Team2ID)
	lr2m2 := e.matchByKey(tournament.ID, "LR2M2")
	assert.Equal(t, 6, *lr2m2.Team1ID)
	assert.Equal(t, 4, *lr2m2.Team2ID)

	force("LR2M1", 5, 13)
	force("LR2M2", 4, 13)

	lr3m1 := e.matchByKey(tournament.ID, "LR3M1")
	assert.Equal(t, 2, *lr3m1.Team1ID)
	assert.Equal(t, 4, *lr3m1.Team2ID)
	force("LR3M1", 13, 11)

	// Winners final: loser joins the losers final.
	force("WR3M1", 13, 3)
	lr4m1 := e.matchByKey(tournament.ID, "LR4M1")
	assert.Equal(t, 2, *lr4m1.Team1ID)
	assert.Equal(t, 3, *lr4m1.Team2ID)
	force("LR4M1", 13, 10)

	gf := e.matchByKey(tournament.ID, "GFR1M1")
	assert.Equal(t, 1, *gf.Team1ID)
	assert.Equal(t, 2, *gf.Team2ID)
	assert.Equal(t, models.StateReadyUp, gf.State)

	// Lower entrant takes game one, forcing the bracket reset.
	force("GFR1M1", 10, 16)

	reset := e.matchByKey(tournament.ID, "GFR2M1")
	assert.Equal(t, 1, *reset.Team1ID)
	assert.Equal(t, 2, *reset.Team2ID)
	assert.Equal(t, models.StateReadyUp, reset.State)

	stored, err := e.tournaments.GetByID(ctx, nil, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, stored.Status)

	force("GFR2M1", 16, 12)

	stored, err = e.tournaments.GetByID(ctx, nil, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	assert.Len(t, e.publisher.ofType(events.TournamentCompleted), 1)
}

// grandFinalFixture seeds a running double elimination tournament with a
// decided first grand final and, optionally, an empty reset match.
func grandFinalFixture(t *testing.T, winnerSlot int, withReset bool) (*engine, int, int) {
	t.Helper()
	e := newEngine()
	tournament := e.seedTournament(&models.Tournament{
		Name:        "finals",
		OrganizerID: 1,
		TeamIDs:     []int{1, 2, 3, 4, 5, 6, 7, 8},
		Format: models.Format{
			BracketType: models.BracketDoubleElimination,
			TeamCount:   8,
			MatchFormat: models.FormatBO3,
			Seeding:     models.SeedingManual,
		},
		Status:  models.StatusInProgress,
		MapPool: DefaultMapPool,
	})

	upper, lower := 1, 2
	winner := upper
	if winnerSlot == 2 {
		winner = lower
	}
	score1, score2 := 16, 10
	gf1 := &models.Match{
		TournamentID: tournament.ID,
		Round:        1,
		Position:     1,
		Segment:      models.SegmentGrandFinal,
		BracketKey:   "GFR1M1",
		Team1ID:      &upper,
		Team2ID:      &lower,
		Score1:       &score1,
		Score2:       &score2,
		WinnerID:     &winner,
		Completed:    true,
		State:        models.StateCompleted,
		MapPool:      append([]string(nil), DefaultMapPool...),
	}
	if winnerSlot == 2 {
		gf1.Score1, gf1.Score2 = &score2, &score1
	}
	require.NoError(t, e.matches.Create(context.Background(), nil, gf1))

	resetID := 0
	if withReset {
		reset := &models.Match{
			TournamentID: tournament.ID,
			Round:        2,
			Position:     1,
			Segment:      models.SegmentGrandFinal,
			BracketKey:   "GFR2M1",
			State:        models.StateAwaitingTeams,
			MapPool:      append([]string(nil), DefaultMapPool...),
		}
		require.NoError(t, e.matches.Create(context.Background(), nil, reset))
		resetID = reset.ID
	}
	return e, gf1.ID, resetID
}

func TestGrandFinalUpperWinCompletes(t *testing.T) {
	e, gf1ID, resetID := grandFinalFixture(t, 1, true)
	ctx := context.Background()

	gf1, err := e.matches.GetByID(ctx, nil, gf1ID)
	require.NoError(t, err)
	require.NoError(t, e.advancer.Advance(ctx, gf1))

	// The reset match is never armed when the upper entrant wins.
	reset, err := e.matches.GetByID(ctx, nil, resetID)
	require.NoError(t, err)
	assert.Nil(t, reset.Team1ID)
	assert.Nil(t, reset.Team2ID)

	stored, err := e.tournaments.GetByID(ctx, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
}

func TestGrandFinalLowerWinForcesReset(t *testing.T) {
	e, gf1ID, resetID := grandFinalFixture(t, 2, true)
	ctx := context.Background()

	gf1, err := e.matches.GetByID(ctx, nil, gf1ID)
	require.NoError(t, err)
	require.NoError(t, e.advancer.Advance(ctx, gf1))

	reset, err := e.matches.GetByID(ctx, nil, resetID)
	require.NoError(t, err)
	require.NotNil(t, reset.Team1ID)
	require.NotNil(t, reset.Team2ID)
	assert.Equal(t, 1, *reset.Team1ID)
	assert.Equal(t, 2, *reset.Team2ID)
	assert.Equal(t, models.StateReadyUp, reset.State)

	// Arming the reset does not finish the tournament.
	stored, err := e.tournaments.GetByID(ctx, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, stored.Status)

	// Re-delivery of the same result is harmless.
	require.NoError(t, e.advancer.Advance(ctx, gf1))

	// The reset match decides the bracket.
	_, err = e.matchService.ForceComplete(ctx, resetID, 9, 16)
	require.NoError(t, err)
	stored, err = e.tournaments.GetByID(ctx, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
}

func TestGrandFinalLowerWinWithoutReset(t *testing.T) {
	e, gf1ID, _ := grandFinalFixture(t, 2, false)
	ctx := context.Background()

	gf1, err := e.matches.GetByID(ctx, nil, gf1ID)
	require.NoError(t, err)
	require.NoError(t, e.advancer.Advance(ctx, gf1))

	stored, err := e.tournaments.GetByID(ctx, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
}

func TestWalkoverWhenNoFeederRemains(t *testing.T) {
	e := newEngine()
	tournament := e.seedTournament(&models.Tournament{
		Name:        "walkover",
		OrganizerID: 1,
		TeamIDs:     []int{7, 8},
		Format:      singleElimFormat(2),
		Status:      models.StatusInProgress,
		MapPool:     DefaultMapPool,
	})
	ctx := context.Background()

	target := &models.Match{
		TournamentID: tournament.ID,
		Round:        2,
		Position:     1,
		Segment:      models.SegmentLosers,
		BracketKey:   "LR2M1",
		State:        models.StateAwaitingTeams,
		MapPool:      append([]string(nil), DefaultMapPool...),
	}
	require.NoError(t, e.matches.Create(ctx, nil, target))

	team1, team2 := 7, 8
	winner := 7
	score1, score2 := 13, 4
	feeder := &models.Match{
		TournamentID:      tournament.ID,
		Round:             1,
		Position:          1,
		Segment:           models.SegmentLosers,
		BracketKey:        "LR1M1",
		Team1ID:           &team1,
		Team2ID:           &team2,
		Score1:            &score1,
		Score2:            &score2,
		WinnerID:          &winner,
		Completed:         true,
		State:             models.StateCompleted,
		MapPool:           append([]string(nil), DefaultMapPool...),
		WinnerNextMatchID: &target.ID,
		WinnerNextSlot:    intRef(1),
	}
	require.NoError(t, e.matches.Create(ctx, nil, feeder))

	require.NoError(t, e.advancer.Advance(ctx, feeder))

	// No pending feeder can ever fill slot 2: the placed team walks over and
	// its advancement cascades.
	updated, err := e.matches.GetByID(ctx, nil, target.ID)
	require.NoError(t, err)
	assert.True(t, updated.Completed)
	require.NotNil(t, updated.WinnerID)
	assert.Equal(t, 7, *updated.WinnerID)

	// The walkover winner had no downstream link, so the tournament ends.
	stored, err := e.tournaments.GetByID(ctx, nil, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
}

func TestCompleteTournamentIsIdempotent(t *testing.T) {
	e := newEngine()
	tournament := e.seedTournament(&models.Tournament{
		Name:        "finale",
		OrganizerID: 1,
		TeamIDs:     []int{1, 2},
		Format:      singleElimFormat(2),
		Status:      models.StatusInProgress,
		MapPool:     DefaultMapPool,
	})
	ctx := context.Background()

	require.NoError(t, e.advancer.CompleteTournament(ctx, tournament.ID))
	require.NoError(t, e.advancer.CompleteTournament(ctx, tournament.ID))

	assert.Len(t, e.publisher.ofType(events.TournamentCompleted), 1)
	assert.Len(t, e.archiver.archived, 1)
}

func intRef(v int) *int { return &v }
