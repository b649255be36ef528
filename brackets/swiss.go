package brackets

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"github.com/openscrim/tournament-engine/models"
)

// Standing is one row of a Swiss stage table. Seed is the team's index in
// the tournament's ordered team list and acts as the last tiebreak.
type Standing struct {
	TeamID   int `json:"team_id"`
	Seed     int `json:"seed"`
	Wins     int `json:"wins"`
	Losses   int `json:"losses"`
	Buchholz int `json:"buchholz"`
	Rank     int `json:"rank"`
}

func (s Standing) diff() int { return s.Wins - s.Losses }

// PairingOptions keeps the fairness rules of the pairing algorithm
// configurable; the defaults reconstruct common Swiss behavior.
type PairingOptions struct {
	// AvoidRematches skips pairings both teams already played, with
	// backtracking; when no rematch-free pairing exists the constraint is
	// relaxed rather than failing the round.
	AvoidRematches bool
	// RandomFirstRound shuffles round 1 instead of the seed-split pairing
	// (1 vs n/2+1, 2 vs n/2+2, ...).
	RandomFirstRound bool
}

func DefaultPairingOptions() PairingOptions {
	return PairingOptions{AvoidRematches: true}
}

// SwissGenerator only produces round 1; later rounds depend on results and
// are paired per round by NextRoundPairings.
type SwissGenerator struct {
	rng *rand.Rand
}

func NewSwissGenerator(rng *rand.Rand) *SwissGenerator {
	return &SwissGenerator{rng: rng}
}

func (g *SwissGenerator) Name() string { return "Swiss" }

func (g *SwissGenerator) Generate(ctx context.Context, t *models.Tournament) ([]*models.Match, error) {
	n := len(t.TeamIDs)
	if n < 2 || n%2 != 0 {
		return nil, fmt.Errorf("%w: swiss stage needs an even team count of at least 2, got %d", ErrInvalidTeamCount, n)
	}

	order := seedOrder(t.TeamIDs, t.Format.Seeding, g.rng)

	var pairs [][2]int
	if t.Format.Seeding == models.SeedingRandom {
		for i := 0; i < n; i += 2 {
			pairs = append(pairs, [2]int{order[i], order[i+1]})
		}
	} else {
		// Seed-split: top half against bottom half (1 vs n/2+1, ...).
		for i := 0; i < n/2; i++ {
			pairs = append(pairs, [2]int{order[i], order[i+n/2]})
		}
	}

	return SwissRoundMatches(t, 1, pairs), nil
}

// SwissRoundMatches materializes pairings into match records for a round.
func SwissRoundMatches(t *models.Tournament, round int, pairs [][2]int) []*models.Match {
	matches := make([]*models.Match, 0, len(pairs))
	for i, pair := range pairs {
		m := newBracketMatch(t, models.SegmentNone, round, i+1)
		m.Team1ID = intPtr(pair[0])
		m.Team2ID = intPtr(pair[1])
		m.State = models.StateReadyUp
		matches = append(matches, m)
	}
	return matches
}

// ComputeStandings derives the Swiss table from completed stage matches.
// Buchholz is the sum of each opponent's win/loss differential.
func ComputeStandings(teamIDs []int, matches []*models.Match) []Standing {
	seedOf := make(map[int]int, len(teamIDs))
	for i, id := range teamIDs {
		seedOf[id] = i + 1
	}

	wins := make(map[int]int)
	losses := make(map[int]int)
	opponents := make(map[int][]int)

	for _, m := range matches {
		if !m.Completed || m.WinnerID == nil || m.Team1ID == nil || m.Team2ID == nil {
			continue
		}
		loser := *m.Team1ID
		if loser == *m.WinnerID {
			loser = *m.Team2ID
		}
		wins[*m.WinnerID]++
		losses[loser]++
		opponents[*m.Team1ID] = append(opponents[*m.Team1ID], *m.Team2ID)
		opponents[*m.Team2ID] = append(opponents[*m.Team2ID], *m.Team1ID)
	}

	standings := make([]Standing, 0, len(teamIDs))
	for _, id := range teamIDs {
		s := Standing{TeamID: id, Seed: seedOf[id], Wins: wins[id], Losses: losses[id]}
		for _, opp := range opponents[id] {
			s.Buchholz += wins[opp] - losses[opp]
		}
		standings = append(standings, s)
	}

	SortStandings(standings)
	for i := range standings {
		standings[i].Rank = i + 1
	}
	return standings
}

// SortStandings orders by record, then Buchholz, then seed.
func SortStandings(standings []Standing) {
	sort.SliceStable(standings, func(i, j int) bool {
		a, b := standings[i], standings[j]
		if a.diff() != b.diff() {
			return a.diff() > b.diff()
		}
		if a.Buchholz != b.Buchholz {
			return a.Buchholz > b.Buchholz
		}
		return a.Seed < b.Seed
	})
}

// OpponentHistory builds the played-before lookup from stage matches.
func OpponentHistory(matches []*models.Match) map[int]map[int]bool {
	history := make(map[int]map[int]bool)
	note := func(a, b int) {
		if history[a] == nil {
			history[a] = make(map[int]bool)
		}
		history[a][b] = true
	}
	for _, m := range matches {
		if m.Team1ID == nil || m.Team2ID == nil {
			continue
		}
		note(*m.Team1ID, *m.Team2ID)
		note(*m.Team2ID, *m.Team1ID)
	}
	return history
}

// NextRoundPairings pairs the next Swiss round: teams are grouped into
// record buckets, each bucket (plus floaters from above) is paired
// top-versus-bottom, and rematches are avoided by backtracking where a
// rematch-free pairing exists.
func NextRoundPairings(standings []Standing, history map[int]map[int]bool, opts PairingOptions) ([][2]int, error) {
	if len(standings)%2 != 0 {
		return nil, fmt.Errorf("cannot pair an odd number of teams (%d)", len(standings))
	}

	ordered := make([]Standing, len(standings))
	copy(ordered, standings)
	SortStandings(ordered)

	buckets := bucketByRecord(ordered)

	faced := func(a, b int) bool {
		if !opts.AvoidRematches {
			return false
		}
		return history[a] != nil && history[a][b]
	}

	var pairs [][2]int
	var carry []Standing
	for _, bucket := range buckets {
		group := append(carry, bucket...)
		carry = nil

		got, leftover := pairGroup(group, faced)
		if got == nil {
			// No rematch-free pairing inside this group: relax for the
			// group rather than failing the round.
			got, leftover = pairGroup(group, func(int, int) bool { return false })
		}
		pairs = append(pairs, got...)
		carry = leftover
	}

	if len(carry) > 0 {
		return nil, fmt.Errorf("pairing left %d teams unmatched", len(carry))
	}
	return pairs, nil
}

func bucketByRecord(ordered []Standing) [][]Standing {
	var buckets [][]Standing
	for i := 0; i < len(ordered); {
		j := i
		for j < len(ordered) && ordered[j].diff() == ordered[i].diff() {
			j++
		}
		bucket := make([]Standing, j-i)
		copy(bucket, ordered[i:j])
		buckets = append(buckets, bucket)
		i = j
	}
	return buckets
}

// pairGroup pairs an ordered group top-versus-bottom, backtracking over
// partner choices when a candidate pairing is a rematch. Returns nil pairs
// when no complete pairing satisfies the constraint; an odd group always
// floats exactly one team down.
func pairGroup(group []Standing, faced func(a, b int) bool) ([][2]int, []Standing) {
	if len(group) == 0 {
		return [][2]int{}, nil
	}
	if len(group)%2 != 0 {
		// Try every floater from the bottom up so stronger teams stay in
		// their own bucket.
		for f := len(group) - 1; f >= 0; f-- {
			rest := make([]Standing, 0, len(group)-1)
			rest = append(rest, group[:f]...)
			rest = append(rest, group[f+1:]...)
			if pairs, leftover := pairGroup(rest, faced); pairs != nil && len(leftover) == 0 {
				return pairs, []Standing{group[f]}
			}
		}
		return nil, nil
	}

	var backtrack func(remaining []Standing) [][2]int
	backtrack = func(remaining []Standing) [][2]int {
		if len(remaining) == 0 {
			return [][2]int{}
		}
		top := remaining[0]
		// Preferred partner is the bottom of the group.
		for k := len(remaining) - 1; k >= 1; k-- {
			candidate := remaining[k]
			if faced(top.TeamID, candidate.TeamID) {
				continue
			}
			rest := make([]Standing, 0, len(remaining)-2)
			rest = append(rest, remaining[1:k]...)
			rest = append(rest, remaining[k+1:]...)
			if sub := backtrack(rest); sub != nil {
				return append([][2]int{{top.TeamID, candidate.TeamID}}, sub...)
			}
		}
		return nil
	}

	pairs := backtrack(group)
	if pairs == nil {
		return nil, nil
	}
	return pairs, []Standing{}
}
