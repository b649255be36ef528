package brackets

import (
	"context"

	"github.com/openscrim/tournament-engine/models"
)

// PlayoffMatches builds the single elimination cutoff stage for the teams
// that survived a Swiss stage. qualified is already in standings order and
// becomes the playoff seeding. Rounds are shifted by roundOffset so the
// playoff continues the stage's round numbering.
func PlayoffMatches(ctx context.Context, t *models.Tournament, qualified []int, roundOffset int) ([]*models.Match, error) {
	stage := *t
	stage.TeamIDs = qualified
	stage.Format.Seeding = models.SeedingManual

	gen := NewSingleEliminationGenerator(nil)
	matches, err := gen.Generate(ctx, &stage)
	if err != nil {
		return nil, err
	}
	OffsetRounds(matches, roundOffset)
	return matches, nil
}

// OffsetRounds shifts a generated match set by a number of rounds,
// rewriting bracket keys and the key references between matches.
func OffsetRounds(matches []*models.Match, offset int) {
	if offset == 0 {
		return
	}
	rekeyed := make(map[string]string, len(matches))
	for _, m := range matches {
		old := m.BracketKey
		m.Round += offset
		m.BracketKey = matchKey(m.Segment, m.Round, m.Position)
		rekeyed[old] = m.BracketKey
	}
	for _, m := range matches {
		if m.WinnerNextKey != nil {
			if next, ok := rekeyed[*m.WinnerNextKey]; ok {
				m.WinnerNextKey = strPtr(next)
			}
		}
		if m.LoserNextKey != nil {
			if next, ok := rekeyed[*m.LoserNextKey]; ok {
				m.LoserNextKey = strPtr(next)
			}
		}
	}
}
