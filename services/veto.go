package services

import (
	"fmt"

	"github.com/openscrim/tournament-engine/models"
)

// Veto protocol. The current step lives in the persisted phase field of the
// veto document; it is never re-derived from ban or pick counts.
//
// Best-of-3 (seven-map pool):
//
//	ban1_team1 -> ban1_team2 -> pick_map1 (team1) -> side_map1 (team2)
//	-> pick_map2 (team2) -> side_map2 (team1) -> ban2_team1 -> ban2_team2
//	-> decider assigned automatically -> side_decider (team2) -> done
//
// Best-of-1: teams alternate bans starting with team1 until one map
// remains; that map is the decider and the team that did not make the last
// ban chooses its side.
const maxBO3VetoEntries = 6 // 4 bans + 2 picks; the decider is assigned, not entered

func initVeto(m *models.Match, format models.MatchFormat) {
	veto := &models.VetoState{
		Entries: []models.VetoEntry{},
		Sides:   []models.SideSelection{},
		Maps:    []string{},
	}
	if format == models.FormatBO1 {
		veto.Phase = models.PhaseBanDownTeam1
	} else {
		veto.Phase = models.PhaseBanOneTeam1
	}
	m.Veto = veto
}

// vetoActor returns the slot (1 or 2) expected to act in the given phase.
func vetoActor(m *models.Match, phase models.VetoPhase) int {
	switch phase {
	case models.PhaseBanOneTeam1, models.PhasePickMapOne, models.PhaseBanTwoTeam1, models.PhaseBanDownTeam1:
		return 1
	case models.PhaseBanOneTeam2, models.PhasePickMapTwo, models.PhaseBanTwoTeam2, models.PhaseBanDownTeam2:
		return 2
	case models.PhaseSideMapOne:
		return 2 // map 1 was picked by team 1
	case models.PhaseSideMapTwo:
		return 1
	case models.PhaseSideDecider:
		return deciderSideChooser(m)
	}
	return 0
}

// deciderSideChooser picks who selects the decider side. In a best-of-3 the
// second team chooses; in a best-of-1 it is whichever team did not make the
// final ban of the alternating sequence.
func deciderSideChooser(m *models.Match) int {
	if m.Veto == nil {
		return 2
	}
	bans := 0
	picks := 0
	for _, e := range m.Veto.Entries {
		if e.Action == models.VetoBan {
			bans++
		} else {
			picks++
		}
	}
	if picks > 0 {
		return 2
	}
	// Alternating bans started by team 1: an odd total means team 1 banned
	// last.
	if bans%2 == 1 {
		return 2
	}
	return 1
}

func requireVetoTurn(m *models.Match, teamID int, wantPhases ...models.VetoPhase) error {
	if m.Veto == nil {
		return ErrMatchNotInExpectedState
	}
	slot := m.SlotOf(teamID)
	if slot == 0 {
		return ErrTeamNotInMatch
	}
	phaseOK := false
	for _, p := range wantPhases {
		if m.Veto.Phase == p {
			phaseOK = true
			break
		}
	}
	if !phaseOK {
		return fmt.Errorf("%w: veto phase is %s", ErrNotYourTurn, m.Veto.Phase)
	}
	if vetoActor(m, m.Veto.Phase) != slot {
		return ErrNotYourTurn
	}
	return nil
}

func requireMapAvailable(m *models.Match, name string) error {
	inPool := false
	for _, p := range m.MapPool {
		if p == name {
			inPool = true
			break
		}
	}
	if !inPool {
		return fmt.Errorf("%w: %q", ErrMapNotInPool, name)
	}
	if m.Veto.MapUsed(name) {
		return fmt.Errorf("%w: %q", ErrMapAlreadyUsed, name)
	}
	return nil
}

func applyBan(m *models.Match, teamID int, name string) error {
	err := requireVetoTurn(m, teamID,
		models.PhaseBanOneTeam1, models.PhaseBanOneTeam2,
		models.PhaseBanTwoTeam1, models.PhaseBanTwoTeam2,
		models.PhaseBanDownTeam1, models.PhaseBanDownTeam2,
	)
	if err != nil {
		return err
	}
	if err := requireMapAvailable(m, name); err != nil {
		return err
	}

	veto := m.Veto
	veto.Entries = append(veto.Entries, models.VetoEntry{
		TeamID:   teamID,
		Map:      name,
		Action:   models.VetoBan,
		Sequence: len(veto.Entries) + 1,
	})

	switch veto.Phase {
	case models.PhaseBanOneTeam1:
		veto.Phase = models.PhaseBanOneTeam2
	case models.PhaseBanOneTeam2:
		veto.Phase = models.PhasePickMapOne
	case models.PhaseBanTwoTeam1:
		veto.Phase = models.PhaseBanTwoTeam2
	case models.PhaseBanTwoTeam2:
		assignDecider(m)
	case models.PhaseBanDownTeam1, models.PhaseBanDownTeam2:
		if len(veto.Remaining(m.MapPool)) == 1 {
			assignDecider(m)
		} else if veto.Phase == models.PhaseBanDownTeam1 {
			veto.Phase = models.PhaseBanDownTeam2
		} else {
			veto.Phase = models.PhaseBanDownTeam1
		}
	}
	return nil
}

// assignDecider appends the single remaining map and moves to decider side
// selection. The decider is never chosen by a team.
func assignDecider(m *models.Match) {
	remaining := m.Veto.Remaining(m.MapPool)
	if len(remaining) == 1 {
		m.Veto.Maps = append(m.Veto.Maps, remaining[0])
	}
	m.Veto.Phase = models.PhaseSideDecider
}

func applyPick(m *models.Match, teamID int, name string) error {
	err := requireVetoTurn(m, teamID, models.PhasePickMapOne, models.PhasePickMapTwo)
	if err != nil {
		return err
	}
	if err := requireMapAvailable(m, name); err != nil {
		return err
	}
	if len(m.Veto.Entries) >= maxBO3VetoEntries {
		return fmt.Errorf("%w: veto sequence exhausted", ErrNotYourTurn)
	}

	veto := m.Veto
	veto.Entries = append(veto.Entries, models.VetoEntry{
		TeamID:   teamID,
		Map:      name,
		Action:   models.VetoPick,
		Sequence: len(veto.Entries) + 1,
	})
	veto.Maps = append(veto.Maps, name)

	if veto.Phase == models.PhasePickMapOne {
		veto.Phase = models.PhaseSideMapOne
	} else {
		veto.Phase = models.PhaseSideMapTwo
	}
	return nil
}

// applySide records a side selection. Returns true when the veto is
// finished and the match may start playing.
func applySide(m *models.Match, teamID int, side models.Side) (bool, error) {
	err := requireVetoTurn(m, teamID,
		models.PhaseSideMapOne, models.PhaseSideMapTwo, models.PhaseSideDecider)
	if err != nil {
		return false, err
	}
	if side != models.SideCT && side != models.SideT {
		return false, fmt.Errorf("%w: %q", ErrInvalidSide, side)
	}

	veto := m.Veto
	mapNumber := len(veto.Sides) + 1
	veto.Sides = append(veto.Sides, models.SideSelection{
		MapNumber: mapNumber,
		Map:       veto.Maps[mapNumber-1],
		TeamID:    teamID,
		Side:      side,
	})

	switch veto.Phase {
	case models.PhaseSideMapOne:
		veto.Phase = models.PhasePickMapTwo
	case models.PhaseSideMapTwo:
		veto.Phase = models.PhaseBanTwoTeam1
	case models.PhaseSideDecider:
		veto.Phase = models.PhaseVetoDone
		return true, nil
	}
	return false, nil
}
