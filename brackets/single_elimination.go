package brackets

import (
	"context"
	"math/rand"

	"github.com/openscrim/tournament-engine/models"
)

type SingleEliminationGenerator struct {
	rng *rand.Rand
}

func NewSingleEliminationGenerator(rng *rand.Rand) *SingleEliminationGenerator {
	return &SingleEliminationGenerator{rng: rng}
}

func (g *SingleEliminationGenerator) Name() string { return "SingleElimination" }

// Generate builds the full single elimination bracket: round 1 pre-seeded,
// later rounds empty with n/2^round matches each, winner links wired by
// bracket key.
func (g *SingleEliminationGenerator) Generate(ctx context.Context, t *models.Tournament) ([]*models.Match, error) {
	n := len(t.TeamIDs)
	if err := validateEliminationSize(n); err != nil {
		return nil, err
	}

	seeded := seedOrder(t.TeamIDs, t.Format.Seeding, g.rng)
	return buildEliminationSegment(t, seeded, models.SegmentNone), nil
}

// buildEliminationSegment lays out one n-team knockout tree. Shared between
// the single elimination bracket and the winners segment of double
// elimination; the caller decides the segment tag.
func buildEliminationSegment(t *models.Tournament, seeded []int, segment models.BracketSegment) []*models.Match {
	n := len(seeded)
	rounds := roundsFor(n)
	matches := make([]*models.Match, 0, n-1)

	// Round 1: seed i vs seed n-1-i (0-indexed), positions in seed order.
	for p := 1; p <= n/2; p++ {
		m := newBracketMatch(t, segment, 1, p)
		m.Team1ID = intPtr(seeded[p-1])
		m.Team2ID = intPtr(seeded[n-p])
		m.State = models.StateReadyUp
		matches = append(matches, m)
	}

	for r := 2; r <= rounds; r++ {
		count := n >> uint(r)
		for p := 1; p <= count; p++ {
			matches = append(matches, newBracketMatch(t, segment, r, p))
		}
	}

	// Winner links: round r position p feeds round r+1 position ceil(p/2),
	// slot 1 when p is odd.
	for _, m := range matches {
		if m.Round == rounds {
			continue
		}
		m.WinnerNextKey = strPtr(matchKey(segment, m.Round+1, (m.Position+1)/2))
		m.WinnerNextSlot = intPtr(2 - m.Position%2)
	}

	return matches
}

func newBracketMatch(t *models.Tournament, segment models.BracketSegment, round, position int) *models.Match {
	pool := make([]string, len(t.MapPool))
	copy(pool, t.MapPool)
	return &models.Match{
		TournamentID: t.ID,
		Round:        round,
		Position:     position,
		Segment:      segment,
		BracketKey:   matchKey(segment, round, position),
		State:        models.StateAwaitingTeams,
		MapPool:      pool,
	}
}
