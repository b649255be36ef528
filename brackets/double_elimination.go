package brackets

import (
	"context"
	"math/rand"

	"github.com/openscrim/tournament-engine/models"
)

type DoubleEliminationGenerator struct {
	rng *rand.Rand
}

func NewDoubleEliminationGenerator(rng *rand.Rand) *DoubleEliminationGenerator {
	return &DoubleEliminationGenerator{rng: rng}
}

func (g *DoubleEliminationGenerator) Name() string { return "DoubleElimination" }

// Generate builds winners segment, losers segment and grand final.
//
// The losers segment interleaves consolidation rounds with drop-in rounds:
// 2*(W-1) rounds for W winners rounds, n/2^(ceil(r/2)+1) matches in losers
// round r. Odd losers rounds pair up survivors; in even rounds each
// survivor meets a team dropping out of the winners segment. Winners round
// 1 losers pair into losers round 1 at position ceil(p/2); a loser of
// winners round r>1 drops into losers round (r-1)*2 at position p. Dropped
// teams take the first open slot of the target, so losers matches carry no
// fixed loser slot. Every generated losers match is fed by exactly two
// inbound links.
func (g *DoubleEliminationGenerator) Generate(ctx context.Context, t *models.Tournament) ([]*models.Match, error) {
	n := len(t.TeamIDs)
	if err := validateEliminationSize(n); err != nil {
		return nil, err
	}

	seeded := seedOrder(t.TeamIDs, t.Format.Seeding, g.rng)
	winners := buildEliminationSegment(t, seeded, models.SegmentWinners)

	winnersRounds := roundsFor(n)
	losersRounds := 0
	if winnersRounds > 1 {
		losersRounds = (winnersRounds - 1) * 2
	}

	losers := make([]*models.Match, 0)
	for r := 1; r <= losersRounds; r++ {
		count := n >> uint((r+1)/2+1)
		for p := 1; p <= count; p++ {
			losers = append(losers, newBracketMatch(t, models.SegmentLosers, r, p))
		}
	}

	grandFinalKey := matchKey(models.SegmentGrandFinal, 1, 1)

	// Losers winner links. The last losers round is the losers final: its
	// winner becomes the second entrant of the grand final. Odd-round
	// winners keep their position and wait for a winners-segment drop-in;
	// even-round winners pair up.
	for _, m := range losers {
		switch {
		case m.Round == losersRounds:
			m.WinnerNextKey = strPtr(grandFinalKey)
			m.WinnerNextSlot = intPtr(2)
		case m.Round%2 == 1:
			m.WinnerNextKey = strPtr(matchKey(models.SegmentLosers, m.Round+1, m.Position))
			m.WinnerNextSlot = intPtr(1)
		default:
			m.WinnerNextKey = strPtr(matchKey(models.SegmentLosers, m.Round+1, (m.Position+1)/2))
			m.WinnerNextSlot = intPtr(2 - m.Position%2)
		}
	}

	// Drop-down links out of the winners segment. A two-team bracket has no
	// losers segment; the winners final loser goes straight to the grand
	// final for the rematch.
	for _, m := range winners {
		switch {
		case losersRounds == 0:
			m.LoserNextKey = strPtr(grandFinalKey)
		case m.Round == 1:
			m.LoserNextKey = strPtr(matchKey(models.SegmentLosers, 1, (m.Position+1)/2))
		default:
			m.LoserNextKey = strPtr(matchKey(models.SegmentLosers, (m.Round-1)*2, m.Position))
		}

		if m.Round == winnersRounds {
			m.WinnerNextKey = strPtr(grandFinalKey)
			m.WinnerNextSlot = intPtr(1)
		}
	}

	matches := append(winners, losers...)
	matches = append(matches, newBracketMatch(t, models.SegmentGrandFinal, 1, 1))
	if n >= 8 {
		// Bracket reset match, populated only if the losers-bracket entrant
		// takes the first grand final.
		matches = append(matches, newBracketMatch(t, models.SegmentGrandFinal, 2, 1))
	}

	return matches, nil
}
