package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openscrim/tournament-engine/events"
	"github.com/openscrim/tournament-engine/models"
	"github.com/openscrim/tournament-engine/repositories"
)

// StageProgressHook is notified when a Swiss stage match completes, so the
// pairing engine can close out the round. Wired by SwissService.
type StageProgressHook interface {
	OnSwissMatchCompleted(ctx context.Context, t *models.Tournament, m *models.Match) error
}

// AdvancementService routes winners and losers of completed matches through
// the bracket graph. Routing follows the winner/loser links written at
// generation time; nothing is derived by scanning the bracket.
type AdvancementService struct {
	txRunner       repositories.TxRunner
	tournamentRepo repositories.TournamentRepository
	matchRepo      repositories.MatchRepository
	publisher      events.Publisher
	archiver       SnapshotArchiver
	logger         *slog.Logger

	swissHook StageProgressHook
}

func NewAdvancementService(
	txRunner repositories.TxRunner,
	tournamentRepo repositories.TournamentRepository,
	matchRepo repositories.MatchRepository,
	publisher events.Publisher,
	archiver SnapshotArchiver,
	logger *slog.Logger,
) *AdvancementService {
	return &AdvancementService{
		txRunner:       txRunner,
		tournamentRepo: tournamentRepo,
		matchRepo:      matchRepo,
		publisher:      publisher,
		archiver:       archiver,
		logger:         logger,
	}
}

// SetSwissHook registers the Swiss round-progress hook. Separate from the
// constructor because SwissService and AdvancementService reference each
// other.
func (s *AdvancementService) SetSwissHook(hook StageProgressHook) {
	s.swissHook = hook
}

// Advance propagates the outcome of a completed match. Safe to invoke more
// than once for the same match: refilling a slot with the same team is a
// no-op, while a different team raises ErrAdvancementConflict.
func (s *AdvancementService) Advance(ctx context.Context, m *models.Match) error {
	if !m.Completed || m.WinnerID == nil {
		return fmt.Errorf("%w: match %d is not completed", ErrMatchNotInExpectedState, m.ID)
	}

	var tournament *models.Tournament
	err := repositories.WithRetry(ctx, func() error {
		return s.txRunner.RunInTx(ctx, func(q repositories.SQLExecutor) error {
			var loadErr error
			tournament, loadErr = s.tournamentRepo.GetByID(ctx, q, m.TournamentID)
			return loadErr
		})
	})
	if err != nil {
		return err
	}

	if m.Segment == models.SegmentGrandFinal {
		return s.advanceGrandFinal(ctx, tournament, m)
	}

	if tournament.Format.BracketType == models.BracketSwiss && m.Round <= tournament.Format.SwissRounds {
		if s.swissHook != nil {
			return s.swissHook.OnSwissMatchCompleted(ctx, tournament, m)
		}
		return nil
	}

	winnerID := *m.WinnerID
	loserID := derefInt(m.OpponentOf(winnerID))

	if m.WinnerNextMatchID != nil {
		if err := s.placeTeam(ctx, tournament, *m.WinnerNextMatchID, winnerID, derefInt(m.WinnerNextSlot), m, false); err != nil {
			return err
		}
	} else {
		// No downstream match: this was the deciding match of the bracket.
		return s.CompleteTournament(ctx, tournament.ID)
	}

	if m.LoserNextMatchID != nil && loserID != 0 {
		if err := s.placeTeam(ctx, tournament, *m.LoserNextMatchID, loserID, 0, m, true); err != nil {
			return err
		}
	}
	return nil
}

// placeTeam writes one team into one slot of the target match, inside a
// transaction on the target document. fixedSlot 0 means "first open slot"
// (losers drop-downs).
func (s *AdvancementService) placeTeam(ctx context.Context, tournament *models.Tournament, targetID, teamID, fixedSlot int, from *models.Match, asLoser bool) error {
	var target *models.Match
	var placedSlot int
	var walkover bool

	err := repositories.WithRetry(ctx, func() error {
		return s.txRunner.RunInTx(ctx, func(q repositories.SQLExecutor) error {
			placedSlot, walkover = 0, false

			var err error
			target, err = s.matchRepo.GetByIDForUpdate(ctx, q, targetID)
			if err != nil {
				return err
			}

			if target.HasTeam(teamID) {
				// Duplicate delivery; already advanced.
				return nil
			}

			slot := fixedSlot
			if slot == 0 {
				slot = target.OpenSlot()
				if slot == 0 {
					return fmt.Errorf("%w: match %d is full", ErrAdvancementConflict, targetID)
				}
			}
			switch slot {
			case 1:
				if target.Team1ID != nil {
					return fmt.Errorf("%w: match %d slot 1 holds team %d", ErrAdvancementConflict, targetID, *target.Team1ID)
				}
				target.Team1ID = &teamID
			case 2:
				if target.Team2ID != nil {
					return fmt.Errorf("%w: match %d slot 2 holds team %d", ErrAdvancementConflict, targetID, *target.Team2ID)
				}
				target.Team2ID = &teamID
			default:
				return fmt.Errorf("invalid advancement slot %d for match %d", slot, targetID)
			}
			placedSlot = slot

			if target.Team1ID != nil && target.Team2ID != nil {
				target.State = models.StateReadyUp
			} else {
				// The other slot may be unfillable: in the losers segment a
				// feeder match can be empty filler that will never play. When
				// no pending feeder remains, the present team walks over.
				pending, err := s.matchRepo.CountPendingFeeders(ctx, q, targetID)
				if err != nil {
					return err
				}
				if pending == 0 {
					target.WinnerID = &teamID
					target.Completed = true
					target.State = models.StateCompleted
					walkover = true
				}
			}

			return s.matchRepo.Update(ctx, q, target)
		})
	})
	if err != nil {
		return err
	}

	if placedSlot != 0 {
		s.publisher.Publish(ctx, events.New(events.TeamAdvanced, tournament.ID, events.TeamAdvancedPayload{
			TeamID:      teamID,
			FromMatchID: from.ID,
			ToMatchID:   targetID,
			Slot:        placedSlot,
			AsLoser:     asLoser,
			Segment:     string(target.Segment),
		}))
		if target.State == models.StateReadyUp {
			s.publisher.Publish(ctx, events.New(events.MatchReady, tournament.ID, events.MatchStatePayload{
				MatchID:  target.ID,
				State:    string(target.State),
				Round:    target.Round,
				Position: target.Position,
				Segment:  string(target.Segment),
			}))
		}
	}

	if walkover {
		s.logger.Info("walkover advancement",
			slog.Int("match_id", target.ID),
			slog.Int("team_id", teamID),
		)
		return s.Advance(ctx, target)
	}
	return nil
}

// advanceGrandFinal applies the bracket reset rule: a win by the losers
// bracket entrant (slot 2) of the first grand final forces the reset match
// when one was generated.
func (s *AdvancementService) advanceGrandFinal(ctx context.Context, tournament *models.Tournament, m *models.Match) error {
	if m.Round != 1 {
		// Reset match decided: the bracket is over.
		return s.CompleteTournament(ctx, tournament.ID)
	}

	upperWon := m.Team1ID != nil && *m.WinnerID == *m.Team1ID
	if upperWon {
		return s.CompleteTournament(ctx, tournament.ID)
	}

	reset, err := s.findResetMatch(ctx, tournament.ID)
	if err != nil {
		return err
	}
	if reset == nil {
		return s.CompleteTournament(ctx, tournament.ID)
	}

	err = repositories.WithRetry(ctx, func() error {
		return s.txRunner.RunInTx(ctx, func(q repositories.SQLExecutor) error {
			locked, err := s.matchRepo.GetByIDForUpdate(ctx, q, reset.ID)
			if err != nil {
				return err
			}
			if locked.Team1ID != nil || locked.Team2ID != nil {
				// Already populated by an earlier delivery.
				if locked.Team1ID != nil && m.Team1ID != nil && *locked.Team1ID == *m.Team1ID {
					return nil
				}
				return fmt.Errorf("%w: reset match %d already populated", ErrAdvancementConflict, locked.ID)
			}
			locked.Team1ID = m.Team1ID
			locked.Team2ID = m.Team2ID
			locked.State = models.StateReadyUp
			return s.matchRepo.Update(ctx, q, locked)
		})
	})
	if err != nil {
		return err
	}

	s.publisher.Publish(ctx, events.New(events.MatchReady, tournament.ID, events.MatchStatePayload{
		MatchID:  reset.ID,
		State:    string(models.StateReadyUp),
		Round:    reset.Round,
		Position: reset.Position,
		Segment:  string(reset.Segment),
	}))
	return nil
}

func (s *AdvancementService) findResetMatch(ctx context.Context, tournamentID int) (*models.Match, error) {
	var reset *models.Match
	segment := models.SegmentGrandFinal
	err := repositories.WithRetry(ctx, func() error {
		return s.txRunner.RunInTx(ctx, func(q repositories.SQLExecutor) error {
			matches, err := s.matchRepo.ListByTournament(ctx, q, tournamentID, repositories.MatchFilter{Segment: &segment})
			if err != nil {
				return err
			}
			reset = nil
			for _, m := range matches {
				if m.Round == 2 {
					reset = m
					break
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return reset, nil
}

// CompleteTournament flips the tournament to completed, emits the
// completion event and archives the final bracket snapshot. Idempotent.
func (s *AdvancementService) CompleteTournament(ctx context.Context, tournamentID int) error {
	alreadyDone := false
	err := repositories.WithRetry(ctx, func() error {
		return s.txRunner.RunInTx(ctx, func(q repositories.SQLExecutor) error {
			t, err := s.tournamentRepo.GetByIDForUpdate(ctx, q, tournamentID)
			if err != nil {
				return err
			}
			if t.Status == models.StatusCompleted {
				alreadyDone = true
				return nil
			}
			return s.tournamentRepo.UpdateStatus(ctx, q, tournamentID, models.StatusCompleted)
		})
	})
	if err != nil || alreadyDone {
		return err
	}

	s.publisher.Publish(ctx, events.New(events.TournamentCompleted, tournamentID, nil))

	if s.archiver != nil {
		if archiveErr := s.archiveSnapshot(ctx, tournamentID); archiveErr != nil {
			// The tournament is complete either way; archiving is best
			// effort.
			s.logger.Error("failed to archive bracket snapshot",
				slog.Int("tournament_id", tournamentID),
				slog.Any("error", archiveErr),
			)
		}
	}
	return nil
}

func (s *AdvancementService) archiveSnapshot(ctx context.Context, tournamentID int) error {
	var tournament *models.Tournament
	var matches []*models.Match
	err := s.txRunner.RunInTx(ctx, func(q repositories.SQLExecutor) error {
		var err error
		if tournament, err = s.tournamentRepo.GetByID(ctx, q, tournamentID); err != nil {
			return err
		}
		matches, err = s.matchRepo.ListByTournament(ctx, q, tournamentID, repositories.MatchFilter{})
		return err
	})
	if err != nil {
		return err
	}
	return s.archiver.ArchiveBracket(ctx, tournament, matches)
}
