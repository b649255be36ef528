package brackets

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/openscrim/tournament-engine/models"
)

var (
	// ErrInvalidTeamCount is returned for team counts an elimination
	// bracket cannot be built from.
	ErrInvalidTeamCount = errors.New("invalid team count for bracket generation")
)

// Generator turns the ordered team list of a tournament into the match set
// of its opening stage. Generated matches carry bracket keys and
// winner/loser next-keys; resolving keys to row ids happens in the linking
// pass of bracket persistence.
type Generator interface {
	Generate(ctx context.Context, tournament *models.Tournament) ([]*models.Match, error)

	Name() string
}

// ForType returns the generator for a bracket type.
func ForType(bt models.BracketType, rng *rand.Rand) (Generator, error) {
	switch bt {
	case models.BracketSingleElimination:
		return NewSingleEliminationGenerator(rng), nil
	case models.BracketDoubleElimination:
		return NewDoubleEliminationGenerator(rng), nil
	case models.BracketSwiss:
		return NewSwissGenerator(rng), nil
	default:
		return nil, fmt.Errorf("unsupported bracket type %q", bt)
	}
}

var eliminationSizes = map[int]bool{2: true, 4: true, 8: true, 16: true, 32: true}

func validateEliminationSize(n int) error {
	if !eliminationSizes[n] {
		return fmt.Errorf("%w: got %d, want one of 2, 4, 8, 16, 32", ErrInvalidTeamCount, n)
	}
	return nil
}

// matchKey builds the stable bracket key of a match, e.g. "R1M2" for a
// plain bracket, "LR3M1" for a losers-segment match.
func matchKey(segment models.BracketSegment, round, position int) string {
	prefix := ""
	switch segment {
	case models.SegmentWinners:
		prefix = "W"
	case models.SegmentLosers:
		prefix = "L"
	case models.SegmentGrandFinal:
		prefix = "GF"
	}
	return fmt.Sprintf("%sR%dM%d", prefix, round, position)
}

// seedOrder applies the seeding method to the ordered team list. Manual
// seeding keeps the given order; random seeding shuffles a copy.
func seedOrder(teamIDs []int, method models.SeedingMethod, rng *rand.Rand) []int {
	seeded := make([]int, len(teamIDs))
	copy(seeded, teamIDs)
	if method == models.SeedingRandom && rng != nil {
		rng.Shuffle(len(seeded), func(i, j int) {
			seeded[i], seeded[j] = seeded[j], seeded[i]
		})
	}
	return seeded
}

func roundsFor(n int) int {
	rounds := 0
	for size := n; size > 1; size /= 2 {
		rounds++
	}
	return rounds
}

func intPtr(v int) *int { return &v }

func strPtr(s string) *string { return &s }
