package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/openscrim/tournament-engine/brackets"
	"github.com/openscrim/tournament-engine/events"
	"github.com/openscrim/tournament-engine/models"
	"github.com/openscrim/tournament-engine/repositories"
)

// BracketService turns a closed registration into a persisted bracket
// graph. Generation is all or nothing: the matches, their links and the
// tournament status flip commit together or not at all.
type BracketService struct {
	txRunner       repositories.TxRunner
	tournamentRepo repositories.TournamentRepository
	matchRepo      repositories.MatchRepository
	publisher      events.Publisher
	logger         *slog.Logger
}

func NewBracketService(
	txRunner repositories.TxRunner,
	tournamentRepo repositories.TournamentRepository,
	matchRepo repositories.MatchRepository,
	publisher events.Publisher,
	logger *slog.Logger,
) *BracketService {
	return &BracketService{
		txRunner:       txRunner,
		tournamentRepo: tournamentRepo,
		matchRepo:      matchRepo,
		publisher:      publisher,
		logger:         logger,
	}
}

// GenerateAndSaveBracket builds the full bracket for a tournament whose
// registration is closed and moves it to in_progress. The FOR UPDATE lock
// on the tournament row serializes concurrent generation attempts; the
// loser of the race fails the status check.
func (s *BracketService) GenerateAndSaveBracket(ctx context.Context, tournamentID int) ([]*models.Match, error) {
	var created []*models.Match
	var tournament *models.Tournament

	err := repositories.WithRetry(ctx, func() error {
		return s.txRunner.RunInTx(ctx, func(q repositories.SQLExecutor) error {
			t, err := s.tournamentRepo.GetByIDForUpdate(ctx, q, tournamentID)
			if err != nil {
				if errors.Is(err, repositories.ErrTournamentNotFound) {
					return ErrNotFound
				}
				return err
			}
			if t.Status != models.StatusRegistrationClosed {
				return fmt.Errorf("%w: status is %s", ErrTournamentNotInExpectedStatus, t.Status)
			}

			rng := rand.New(rand.NewSource(time.Now().UnixNano()))
			gen, err := brackets.ForType(t.Format.BracketType, rng)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidFormat, err)
			}
			matches, err := gen.Generate(ctx, t)
			if err != nil {
				return err
			}

			if err := s.PersistMatchSet(ctx, q, matches); err != nil {
				return err
			}
			if err := s.tournamentRepo.UpdateStatus(ctx, q, tournamentID, models.StatusInProgress); err != nil {
				return err
			}

			created = matches
			tournament = t
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("bracket generated",
		slog.Int("tournament_id", tournamentID),
		slog.String("type", string(tournament.Format.BracketType)),
		slog.Int("matches", len(created)),
	)
	for _, m := range created {
		if m.State == models.StateReadyUp {
			s.publisher.Publish(ctx, events.New(events.MatchReady, tournamentID, events.MatchStatePayload{
				MatchID:  m.ID,
				State:    string(m.State),
				Round:    m.Round,
				Position: m.Position,
				Segment:  string(m.Segment),
			}))
		}
	}
	return created, nil
}

// PersistMatchSet writes a generated batch in two passes: create every row,
// then resolve the generator's bracket-key references into the stored link
// columns. Both passes share the caller's transaction.
func (s *BracketService) PersistMatchSet(ctx context.Context, q repositories.SQLExecutor, matches []*models.Match) error {
	idByKey := make(map[string]int, len(matches))
	for _, m := range matches {
		if err := s.matchRepo.Create(ctx, q, m); err != nil {
			return err
		}
		idByKey[m.BracketKey] = m.ID
	}

	for _, m := range matches {
		if m.WinnerNextKey == nil && m.LoserNextKey == nil {
			continue
		}
		if m.WinnerNextKey != nil {
			id, ok := idByKey[*m.WinnerNextKey]
			if !ok {
				return fmt.Errorf("unresolved winner link %q from match %s", *m.WinnerNextKey, m.BracketKey)
			}
			m.WinnerNextMatchID = &id
		}
		if m.LoserNextKey != nil {
			id, ok := idByKey[*m.LoserNextKey]
			if !ok {
				return fmt.Errorf("unresolved loser link %q from match %s", *m.LoserNextKey, m.BracketKey)
			}
			m.LoserNextMatchID = &id
		}
		if err := s.matchRepo.UpdateLinks(ctx, q, m.ID, m.WinnerNextMatchID, m.WinnerNextSlot, m.LoserNextMatchID); err != nil {
			return err
		}
	}
	return nil
}

// GetBracket returns the tournament with its full ordered match list.
func (s *BracketService) GetBracket(ctx context.Context, tournamentID int) (*models.Tournament, error) {
	var tournament *models.Tournament
	err := repositories.WithRetry(ctx, func() error {
		return s.txRunner.RunInTx(ctx, func(q repositories.SQLExecutor) error {
			t, err := s.tournamentRepo.GetByID(ctx, q, tournamentID)
			if err != nil {
				if errors.Is(err, repositories.ErrTournamentNotFound) {
					return ErrNotFound
				}
				return err
			}
			matches, err := s.matchRepo.ListByTournament(ctx, q, tournamentID, repositories.MatchFilter{})
			if err != nil {
				return err
			}
			t.Matches = make([]models.Match, len(matches))
			for i, m := range matches {
				t.Matches[i] = *m
			}
			tournament = t
			return nil
		})
	})
	return tournament, err
}
