package services

import "github.com/openscrim/tournament-engine/models"

// DefaultMapPool is the seven-map competitive pool used when a tournament
// is created without an explicit one.
var DefaultMapPool = []string{
	"Ancient", "Anubis", "Dust2", "Inferno", "Mirage", "Nuke", "Train",
}

func isValidStatusTransition(current, next models.TournamentStatus) bool {
	if current == next {
		return true
	}
	allowed := map[models.TournamentStatus][]models.TournamentStatus{
		models.StatusDraft:              {models.StatusRegistrationOpen, models.StatusCanceled},
		models.StatusRegistrationOpen:   {models.StatusRegistrationClosed, models.StatusCanceled},
		models.StatusRegistrationClosed: {models.StatusInProgress, models.StatusRegistrationOpen, models.StatusCanceled},
		models.StatusInProgress:         {models.StatusCompleted, models.StatusCanceled},
		models.StatusCompleted:          {},
		models.StatusCanceled:           {},
	}
	for _, s := range allowed[current] {
		if next == s {
			return true
		}
	}
	return false
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func sameIntSet(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[int]int, len(a))
	for _, v := range a {
		seen[v]++
	}
	for _, v := range b {
		seen[v]--
		if seen[v] < 0 {
			return false
		}
	}
	return true
}
