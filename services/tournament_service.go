package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/openscrim/tournament-engine/models"
	"github.com/openscrim/tournament-engine/repositories"
)

// TournamentView is the aggregate the read endpoints serve: the tournament
// with its matches and the resolved team records.
type TournamentView struct {
	Tournament *models.Tournament `json:"tournament"`
	Teams      []*models.Team     `json:"teams"`
}

// CreateTournamentInput carries the organizer's creation request.
type CreateTournamentInput struct {
	Name        string        `json:"name"`
	OrganizerID int           `json:"organizer_id"`
	Format      models.Format `json:"format"`
	MapPool     []string      `json:"map_pool"`
}

// TournamentService owns the tournament lifecycle outside the bracket:
// creation, registration, seeding and status transitions.
type TournamentService struct {
	txRunner       repositories.TxRunner
	tournamentRepo repositories.TournamentRepository
	matchRepo      repositories.MatchRepository
	teamDirectory  repositories.TeamDirectory
	logger         *slog.Logger
}

func NewTournamentService(
	txRunner repositories.TxRunner,
	tournamentRepo repositories.TournamentRepository,
	matchRepo repositories.MatchRepository,
	teamDirectory repositories.TeamDirectory,
	logger *slog.Logger,
) *TournamentService {
	return &TournamentService{
		txRunner:       txRunner,
		tournamentRepo: tournamentRepo,
		matchRepo:      matchRepo,
		teamDirectory:  teamDirectory,
		logger:         logger,
	}
}

// Create validates and persists a new tournament in draft status.
func (s *TournamentService) Create(ctx context.Context, input CreateTournamentInput) (*models.Tournament, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ErrTournamentNameRequired
	}
	if err := validateFormat(input.Format); err != nil {
		return nil, err
	}

	pool := input.MapPool
	if len(pool) == 0 {
		pool = append([]string(nil), DefaultMapPool...)
	}
	if err := validateMapPool(pool, input.Format.MatchFormat); err != nil {
		return nil, err
	}

	t := &models.Tournament{
		Name:        name,
		OrganizerID: input.OrganizerID,
		TeamIDs:     []int{},
		Format:      input.Format,
		Status:      models.StatusDraft,
		MapPool:     pool,
	}
	err := repositories.WithRetry(ctx, func() error {
		return s.txRunner.RunInTx(ctx, func(q repositories.SQLExecutor) error {
			return s.tournamentRepo.Create(ctx, q, t)
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("tournament created",
		slog.Int("tournament_id", t.ID),
		slog.String("type", string(t.Format.BracketType)),
	)
	return t, nil
}

// Get loads the tournament aggregate; the match list and team records are
// fetched in parallel.
func (s *TournamentService) Get(ctx context.Context, tournamentID int) (*TournamentView, error) {
	var tournament *models.Tournament
	err := repositories.WithRetry(ctx, func() error {
		return s.txRunner.RunInTx(ctx, func(q repositories.SQLExecutor) error {
			var err error
			tournament, err = s.tournamentRepo.GetByID(ctx, q, tournamentID)
			return err
		})
	})
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	view := &TournamentView{Tournament: tournament}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return repositories.WithRetry(gctx, func() error {
			return s.txRunner.RunInTx(gctx, func(q repositories.SQLExecutor) error {
				matches, err := s.matchRepo.ListByTournament(gctx, q, tournamentID, repositories.MatchFilter{})
				if err != nil {
					return err
				}
				tournament.Matches = make([]models.Match, len(matches))
				for i, m := range matches {
					tournament.Matches[i] = *m
				}
				return nil
			})
		})
	})
	g.Go(func() error {
		return repositories.WithRetry(gctx, func() error {
			return s.txRunner.RunInTx(gctx, func(q repositories.SQLExecutor) error {
				teams, err := s.teamDirectory.ListByIDs(gctx, q, tournament.TeamIDs)
				if err != nil {
					return err
				}
				view.Teams = teams
				return nil
			})
		})
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return view, nil
}

// List returns all tournaments without their match lists.
func (s *TournamentService) List(ctx context.Context) ([]*models.Tournament, error) {
	var tournaments []*models.Tournament
	err := repositories.WithRetry(ctx, func() error {
		return s.txRunner.RunInTx(ctx, func(q repositories.SQLExecutor) error {
			var err error
			tournaments, err = s.tournamentRepo.List(ctx, q)
			return err
		})
	})
	return tournaments, err
}

// OpenRegistration moves a draft tournament into registration.
func (s *TournamentService) OpenRegistration(ctx context.Context, tournamentID int) error {
	return s.transition(ctx, tournamentID, models.StatusRegistrationOpen)
}

// CloseRegistration freezes the team list; the bracket can be generated
// once closed.
func (s *TournamentService) CloseRegistration(ctx context.Context, tournamentID int) error {
	return s.transition(ctx, tournamentID, models.StatusRegistrationClosed)
}

// Cancel terminally cancels a tournament from any non-final status.
func (s *TournamentService) Cancel(ctx context.Context, tournamentID int) error {
	return s.transition(ctx, tournamentID, models.StatusCanceled)
}

func (s *TournamentService) transition(ctx context.Context, tournamentID int, next models.TournamentStatus) error {
	return repositories.WithRetry(ctx, func() error {
		return s.txRunner.RunInTx(ctx, func(q repositories.SQLExecutor) error {
			t, err := s.tournamentRepo.GetByIDForUpdate(ctx, q, tournamentID)
			if err != nil {
				if errors.Is(err, repositories.ErrTournamentNotFound) {
					return ErrNotFound
				}
				return err
			}
			if t.Status == next {
				return nil
			}
			if !isValidStatusTransition(t.Status, next) {
				return fmt.Errorf("%w: %s -> %s", ErrTournamentNotInExpectedStatus, t.Status, next)
			}
			if next == models.StatusRegistrationClosed && len(t.TeamIDs) != t.Format.TeamCount {
				return fmt.Errorf("%w: %d of %d teams registered",
					ErrTournamentNotInExpectedStatus, len(t.TeamIDs), t.Format.TeamCount)
			}
			return s.tournamentRepo.UpdateStatus(ctx, q, tournamentID, next)
		})
	})
}

// RegisterTeam adds a team id to an open registration. The team must exist
// in the directory and the capacity is the format's team count.
func (s *TournamentService) RegisterTeam(ctx context.Context, tournamentID, teamID int) (*models.Tournament, error) {
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
			if t.Status != models.StatusRegistrationOpen {
				return fmt.Errorf("%w: status is %s", ErrTournamentNotInExpectedStatus, t.Status)
			}
			if t.HasTeam(teamID) {
				return ErrRegistrationConflict
			}
			if len(t.TeamIDs) >= t.Format.TeamCount {
				return ErrTournamentFull
			}
			if _, err := s.teamDirectory.GetByID(ctx, q, teamID); err != nil {
				if errors.Is(err, repositories.ErrTeamNotFound) {
					return fmt.Errorf("%w: team %d", ErrNotFound, teamID)
				}
				return err
			}
			t.TeamIDs = append(t.TeamIDs, teamID)
			if err := s.tournamentRepo.Update(ctx, q, t); err != nil {
				return err
			}
			tournament = t
			return nil
		})
	})
	return tournament, err
}

// UnregisterTeam removes a team from an open registration.
func (s *TournamentService) UnregisterTeam(ctx context.Context, tournamentID, teamID int) (*models.Tournament, error) {
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
			if t.Status != models.StatusRegistrationOpen {
				return fmt.Errorf("%w: status is %s", ErrTournamentNotInExpectedStatus, t.Status)
			}
			if !t.HasTeam(teamID) {
				return ErrTeamNotRegistered
			}
			kept := make([]int, 0, len(t.TeamIDs)-1)
			for _, id := range t.TeamIDs {
				if id != teamID {
					kept = append(kept, id)
				}
			}
			t.TeamIDs = kept
			if err := s.tournamentRepo.Update(ctx, q, t); err != nil {
				return err
			}
			tournament = t
			return nil
		})
	})
	return tournament, err
}

// SetManualSeeding replaces the team order with an explicit seed order. The
// list must be a permutation of the registered teams.
func (s *TournamentService) SetManualSeeding(ctx context.Context, tournamentID int, orderedTeamIDs []int) (*models.Tournament, error) {
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
			if t.Status != models.StatusRegistrationOpen && t.Status != models.StatusRegistrationClosed {
				return fmt.Errorf("%w: status is %s", ErrTournamentNotInExpectedStatus, t.Status)
			}
			if !sameIntSet(t.TeamIDs, orderedTeamIDs) {
				return ErrInvalidSeedingList
			}
			t.TeamIDs = append([]int(nil), orderedTeamIDs...)
			t.Format.Seeding = models.SeedingManual
			if err := s.tournamentRepo.Update(ctx, q, t); err != nil {
				return err
			}
			tournament = t
			return nil
		})
	})
	return tournament, err
}

func validateFormat(f models.Format) error {
	switch f.MatchFormat {
	case models.FormatBO1, models.FormatBO3:
	default:
		return fmt.Errorf("%w: unknown match format %q", ErrInvalidFormat, f.MatchFormat)
	}
	switch f.Seeding {
	case models.SeedingManual, models.SeedingRandom:
	default:
		return fmt.Errorf("%w: unknown seeding method %q", ErrInvalidFormat, f.Seeding)
	}

	switch f.BracketType {
	case models.BracketSingleElimination, models.BracketDoubleElimination:
		switch f.TeamCount {
		case 2, 4, 8, 16, 32:
		default:
			return fmt.Errorf("%w: elimination brackets need 2, 4, 8, 16 or 32 teams", ErrInvalidFormat)
		}
		if f.SwissRounds != 0 || f.PlayoffSize != 0 {
			return fmt.Errorf("%w: swiss settings on an elimination bracket", ErrInvalidFormat)
		}
	case models.BracketSwiss:
		if f.TeamCount < 2 || f.TeamCount%2 != 0 {
			return fmt.Errorf("%w: swiss needs an even team count of at least 2", ErrInvalidFormat)
		}
		if f.SwissRounds < 1 {
			return fmt.Errorf("%w: swiss needs at least one round", ErrInvalidFormat)
		}
		if f.PlayoffSize != 0 {
			switch f.PlayoffSize {
			case 2, 4, 8, 16, 32:
			default:
				return fmt.Errorf("%w: playoff size must be 2, 4, 8, 16 or 32", ErrInvalidFormat)
			}
			if f.PlayoffSize > f.TeamCount {
				return fmt.Errorf("%w: playoff size exceeds team count", ErrInvalidFormat)
			}
		}
	default:
		return fmt.Errorf("%w: unknown bracket type %q", ErrInvalidFormat, f.BracketType)
	}
	return nil
}

func validateMapPool(pool []string, format models.MatchFormat) error {
	seen := make(map[string]bool, len(pool))
	for _, m := range pool {
		if strings.TrimSpace(m) == "" || seen[m] {
			return fmt.Errorf("%w: empty or duplicate map name", ErrInvalidMapPool)
		}
		seen[m] = true
	}
	if format == models.FormatBO3 && len(pool) != 7 {
		// The ban/pick sequence consumes exactly seven maps.
		return fmt.Errorf("%w: best-of-3 needs a seven-map pool, got %d", ErrInvalidMapPool, len(pool))
	}
	if format == models.FormatBO1 && len(pool) < 2 {
		return fmt.Errorf("%w: best-of-1 needs at least two maps", ErrInvalidMapPool)
	}
	return nil
}
