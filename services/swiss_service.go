package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openscrim/tournament-engine/brackets"
	"github.com/openscrim/tournament-engine/events"
	"github.com/openscrim/tournament-engine/models"
	"github.com/openscrim/tournament-engine/repositories"
)

// SwissService closes out Swiss rounds: when the last match of a round
// completes it pairs the next round, and after the final round it cuts the
// top of the standings over into a single elimination playoff.
type SwissService struct {
	txRunner       repositories.TxRunner
	tournamentRepo repositories.TournamentRepository
	matchRepo      repositories.MatchRepository
	publisher      events.Publisher
	bracketService *BracketService
	advancer       *AdvancementService
	logger         *slog.Logger
}

func NewSwissService(
	txRunner repositories.TxRunner,
	tournamentRepo repositories.TournamentRepository,
	matchRepo repositories.MatchRepository,
	publisher events.Publisher,
	bracketService *BracketService,
	advancer *AdvancementService,
	logger *slog.Logger,
) *SwissService {
	return &SwissService{
		txRunner:       txRunner,
		tournamentRepo: tournamentRepo,
		matchRepo:      matchRepo,
		publisher:      publisher,
		bracketService: bracketService,
		advancer:       advancer,
		logger:         logger,
	}
}

// OnSwissMatchCompleted is invoked by advancement for every completed Swiss
// stage match. It is a no-op until the match's round is fully decided.
func (s *SwissService) OnSwissMatchCompleted(ctx context.Context, t *models.Tournament, m *models.Match) error {
	var created []*models.Match
	var createdRound int
	var stageOver bool

	err := repositories.WithRetry(ctx, func() error {
		return s.txRunner.RunInTx(ctx, func(q repositories.SQLExecutor) error {
			created, createdRound, stageOver = nil, 0, false

			// The tournament lock serializes two matches of the same round
			// finishing at once; only one of them pairs the next round.
			locked, err := s.tournamentRepo.GetByIDForUpdate(ctx, q, t.ID)
			if err != nil {
				return err
			}
			if locked.Status != models.StatusInProgress {
				return nil
			}

			segment := models.SegmentNone
			stage, err := s.matchRepo.ListByTournament(ctx, q, t.ID, repositories.MatchFilter{Segment: &segment})
			if err != nil {
				return err
			}

			for _, sm := range stage {
				if sm.Round == m.Round && !sm.Completed {
					return nil
				}
				if sm.Round > m.Round {
					// Next round already paired by a concurrent completion.
					return nil
				}
			}

			if m.Round < locked.Format.SwissRounds {
				created, err = s.pairNextRound(ctx, q, locked, stage, m.Round+1)
				createdRound = m.Round + 1
				return err
			}

			created, err = s.generatePlayoff(ctx, q, locked, stage)
			stageOver = created == nil && err == nil
			return err
		})
	})
	if err != nil {
		return err
	}

	if stageOver {
		// No playoff cutoff configured: the final Swiss round decides the
		// tournament.
		return s.advancer.CompleteTournament(ctx, t.ID)
	}
	if created != nil {
		s.publisher.Publish(ctx, events.New(events.SwissRoundPaired, t.ID, events.SwissRoundPayload{
			Round:   createdRound,
			Matches: len(created),
		}))
		for _, nm := range created {
			if nm.State == models.StateReadyUp {
				s.publisher.Publish(ctx, events.New(events.MatchReady, t.ID, events.MatchStatePayload{
					MatchID:  nm.ID,
					State:    string(nm.State),
					Round:    nm.Round,
					Position: nm.Position,
					Segment:  string(nm.Segment),
				}))
			}
		}
	}
	return nil
}

func (s *SwissService) pairNextRound(ctx context.Context, q repositories.SQLExecutor, t *models.Tournament, stage []*models.Match, round int) ([]*models.Match, error) {
	standings := brackets.ComputeStandings(t.TeamIDs, stage)
	history := brackets.OpponentHistory(stage)

	pairs, err := brackets.NextRoundPairings(standings, history, brackets.DefaultPairingOptions())
	if err != nil {
		return nil, fmt.Errorf("pairing round %d: %w", round, err)
	}

	matches := brackets.SwissRoundMatches(t, round, pairs)
	for _, nm := range matches {
		if err := s.matchRepo.Create(ctx, q, nm); err != nil {
			return nil, err
		}
	}
	s.logger.Info("swiss round paired",
		slog.Int("tournament_id", t.ID),
		slog.Int("round", round),
		slog.Int("matches", len(matches)),
	)
	return matches, nil
}

// generatePlayoff cuts the top PlayoffSize teams of the final standings
// into a single elimination bracket whose rounds continue the stage
// numbering. Returns nil matches when no cutoff is configured.
func (s *SwissService) generatePlayoff(ctx context.Context, q repositories.SQLExecutor, t *models.Tournament, stage []*models.Match) ([]*models.Match, error) {
	size := t.Format.PlayoffSize
	if size < 2 {
		return nil, nil
	}
	if size > len(t.TeamIDs) {
		return nil, fmt.Errorf("%w: playoff size %d exceeds team count %d", ErrInvalidFormat, size, len(t.TeamIDs))
	}

	standings := brackets.ComputeStandings(t.TeamIDs, stage)
	qualified := make([]int, 0, size)
	for _, st := range standings[:size] {
		qualified = append(qualified, st.TeamID)
	}

	matches, err := brackets.PlayoffMatches(ctx, t, qualified, t.Format.SwissRounds)
	if err != nil {
		return nil, err
	}
	if err := s.bracketService.PersistMatchSet(ctx, q, matches); err != nil {
		return nil, err
	}
	s.logger.Info("swiss playoff generated",
		slog.Int("tournament_id", t.ID),
		slog.Int("qualified", size),
		slog.Int("matches", len(matches)),
	)
	return matches, nil
}

// GeneratePlayoff is the administrative entry point for the cutoff stage,
// for operators that want to trigger it explicitly instead of relying on
// the final round completing it.
func (s *SwissService) GeneratePlayoff(ctx context.Context, tournamentID int) ([]*models.Match, error) {
	var created []*models.Match
	err := repositories.WithRetry(ctx, func() error {
		return s.txRunner.RunInTx(ctx, func(q repositories.SQLExecutor) error {
			t, err := s.tournamentRepo.GetByIDForUpdate(ctx, q, tournamentID)
			if err != nil {
				if errors.Is(err, repositories.ErrTournamentNotFound) {
					return ErrNotFound
				}
				return err
			}
			if t.Format.BracketType != models.BracketSwiss {
				return fmt.Errorf("%w: tournament is not swiss", ErrInvalidFormat)
			}
			if t.Status != models.StatusInProgress {
				return fmt.Errorf("%w: status is %s", ErrTournamentNotInExpectedStatus, t.Status)
			}

			segment := models.SegmentNone
			all, err := s.matchRepo.ListByTournament(ctx, q, tournamentID, repositories.MatchFilter{Segment: &segment})
			if err != nil {
				return err
			}
			stage := make([]*models.Match, 0, len(all))
			lastRound := 0
			for _, sm := range all {
				if sm.Round > t.Format.SwissRounds {
					return ErrPlayoffAlreadyExists
				}
				stage = append(stage, sm)
				if sm.Round > lastRound {
					lastRound = sm.Round
				}
				if !sm.Completed {
					return fmt.Errorf("%w: round %d has open matches", ErrSwissRoundIncomplete, sm.Round)
				}
			}
			if lastRound < t.Format.SwissRounds {
				return fmt.Errorf("%w: %d of %d rounds played", ErrSwissStageNotFinished, lastRound, t.Format.SwissRounds)
			}
			if t.Format.PlayoffSize < 2 {
				return fmt.Errorf("%w: no playoff cutoff configured", ErrInvalidFormat)
			}

			created, err = s.generatePlayoff(ctx, q, t, stage)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	for _, nm := range created {
		if nm.State == models.StateReadyUp {
			s.publisher.Publish(ctx, events.New(events.MatchReady, tournamentID, events.MatchStatePayload{
				MatchID:  nm.ID,
				State:    string(nm.State),
				Round:    nm.Round,
				Position: nm.Position,
				Segment:  string(nm.Segment),
			}))
		}
	}
	return created, nil
}

// Standings returns the current Swiss table of a tournament.
func (s *SwissService) Standings(ctx context.Context, tournamentID int) ([]brackets.Standing, error) {
	var standings []brackets.Standing
	err := repositories.WithRetry(ctx, func() error {
		return s.txRunner.RunInTx(ctx, func(q repositories.SQLExecutor) error {
			t, err := s.tournamentRepo.GetByID(ctx, q, tournamentID)
			if err != nil {
				if errors.Is(err, repositories.ErrTournamentNotFound) {
					return ErrNotFound
				}
				return err
			}
			if t.Format.BracketType != models.BracketSwiss {
				return fmt.Errorf("%w: tournament is not swiss", ErrInvalidFormat)
			}
			segment := models.SegmentNone
			all, err := s.matchRepo.ListByTournament(ctx, q, tournamentID, repositories.MatchFilter{Segment: &segment})
			if err != nil {
				return err
			}
			// Playoff matches share the segment but live past the stage
			// rounds; they never count toward the table.
			stage := make([]*models.Match, 0, len(all))
			for _, sm := range all {
				if sm.Round <= t.Format.SwissRounds {
					stage = append(stage, sm)
				}
			}
			standings = brackets.ComputeStandings(t.TeamIDs, stage)
			return nil
		})
	})
	return standings, err
}
