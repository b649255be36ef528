package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openscrim/tournament-engine/events"
	"github.com/openscrim/tournament-engine/models"
	"github.com/openscrim/tournament-engine/repositories"
)

// MatchService drives the in-match lifecycle: ready-up, the map veto, score
// submission and reconciliation, dispute resolution and reverts. Every
// mutation locks the match row, validates against the persisted state and
// writes the result in the same transaction.
type MatchService struct {
	txRunner       repositories.TxRunner
	tournamentRepo repositories.TournamentRepository
	matchRepo      repositories.MatchRepository
	publisher      events.Publisher
	advancer       *AdvancementService
	logger         *slog.Logger
}

func NewMatchService(
	txRunner repositories.TxRunner,
	tournamentRepo repositories.TournamentRepository,
	matchRepo repositories.MatchRepository,
	publisher events.Publisher,
	advancer *AdvancementService,
	logger *slog.Logger,
) *MatchService {
	return &MatchService{
		txRunner:       txRunner,
		tournamentRepo: tournamentRepo,
		matchRepo:      matchRepo,
		publisher:      publisher,
		advancer:       advancer,
		logger:         logger,
	}
}

// GetMatch loads a single match.
func (s *MatchService) GetMatch(ctx context.Context, matchID int) (*models.Match, error) {
	var match *models.Match
	err := repositories.WithRetry(ctx, func() error {
		return s.txRunner.RunInTx(ctx, func(q repositories.SQLExecutor) error {
			var err error
			match, err = s.matchRepo.GetByID(ctx, q, matchID)
			return err
		})
	})
	if errors.Is(err, repositories.ErrMatchNotFound) {
		return nil, ErrNotFound
	}
	return match, err
}

// SignalReady marks one team ready. When both teams are ready the match
// moves to map_banning and the veto document is initialized.
func (s *MatchService) SignalReady(ctx context.Context, matchID, teamID int) (*models.Match, error) {
	return s.mutate(ctx, matchID, func(q repositories.SQLExecutor, t *models.Tournament, m *models.Match) error {
		if m.State != models.StateReadyUp {
			return fmt.Errorf("%w: match %d is %s", ErrMatchNotInExpectedState, m.ID, m.State)
		}
		switch m.SlotOf(teamID) {
		case 1:
			if m.Ready.Team1 {
				return ErrAlreadyReady
			}
			m.Ready.Team1 = true
		case 2:
			if m.Ready.Team2 {
				return ErrAlreadyReady
			}
			m.Ready.Team2 = true
		default:
			return ErrTeamNotInMatch
		}
		if m.Ready.Team1 && m.Ready.Team2 {
			initVeto(m, t.Format.MatchFormat)
			m.State = models.StateMapBanning
		}
		return nil
	})
}

// BanMap applies one ban of the veto sequence.
func (s *MatchService) BanMap(ctx context.Context, matchID, teamID int, mapName string) (*models.Match, error) {
	return s.mutate(ctx, matchID, func(q repositories.SQLExecutor, t *models.Tournament, m *models.Match) error {
		if m.State != models.StateMapBanning {
			return fmt.Errorf("%w: match %d is %s", ErrMatchNotInExpectedState, m.ID, m.State)
		}
		return applyBan(m, teamID, mapName)
	})
}

// PickMap applies one best-of-3 map pick.
func (s *MatchService) PickMap(ctx context.Context, matchID, teamID int, mapName string) (*models.Match, error) {
	return s.mutate(ctx, matchID, func(q repositories.SQLExecutor, t *models.Tournament, m *models.Match) error {
		if m.State != models.StateMapBanning {
			return fmt.Errorf("%w: match %d is %s", ErrMatchNotInExpectedState, m.ID, m.State)
		}
		return applyPick(m, teamID, mapName)
	})
}

// SelectSide records a starting-side choice. The last side selection of the
// veto moves the match to playing.
func (s *MatchService) SelectSide(ctx context.Context, matchID, teamID int, side models.Side) (*models.Match, error) {
	return s.mutate(ctx, matchID, func(q repositories.SQLExecutor, t *models.Tournament, m *models.Match) error {
		if m.State != models.StateMapBanning {
			return fmt.Errorf("%w: match %d is %s", ErrMatchNotInExpectedState, m.ID, m.State)
		}
		done, err := applySide(m, teamID, side)
		if err != nil {
			return err
		}
		if done {
			m.State = models.StatePlaying
		}
		return nil
	})
}

// SubmitResult records one team's reported score. The first submission
// parks the match in waiting_results; a matching second submission
// completes it, a conflicting one raises a dispute. Draws are rejected.
func (s *MatchService) SubmitResult(ctx context.Context, matchID, teamID, team1Score, team2Score int) (*models.Match, error) {
	match, err := s.mutate(ctx, matchID, func(q repositories.SQLExecutor, t *models.Tournament, m *models.Match) error {
		if m.State != models.StatePlaying && m.State != models.StateWaitingResults {
			return fmt.Errorf("%w: match %d is %s", ErrMatchNotInExpectedState, m.ID, m.State)
		}
		if m.SlotOf(teamID) == 0 {
			return ErrTeamNotInMatch
		}
		if team1Score < 0 || team2Score < 0 {
			return fmt.Errorf("%w: scores must be non-negative", ErrInvalidScore)
		}
		if team1Score == team2Score {
			return fmt.Errorf("%w: draws are not possible", ErrInvalidScore)
		}
		if m.SubmissionOf(teamID) != nil {
			return ErrAlreadySubmitted
		}

		m.Submissions = append(m.Submissions, models.ResultSubmission{
			TeamID:      teamID,
			Team1Score:  team1Score,
			Team2Score:  team2Score,
			SubmittedAt: time.Now().UTC(),
		})

		if len(m.Submissions) < 2 {
			m.State = models.StateWaitingResults
			return nil
		}

		first, second := m.Submissions[0], m.Submissions[1]
		if first.Team1Score == second.Team1Score && first.Team2Score == second.Team2Score {
			completeWithScore(m, first.Team1Score, first.Team2Score)
			return nil
		}

		m.State = models.StateDisputed
		m.Dispute = &models.Dispute{
			Submissions: append([]models.ResultSubmission(nil), m.Submissions...),
			RaisedAt:    time.Now().UTC(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if match.State == models.StateDisputed {
		s.publisher.Publish(ctx, events.New(events.DisputeRaised, match.TournamentID, events.DisputePayload{
			MatchID: match.ID,
		}))
	}
	if match.Completed {
		if err := s.advancer.Advance(ctx, match); err != nil {
			return nil, err
		}
	}
	return match, nil
}

// ResolveDispute closes a disputed match with an authoritative score and
// advances the winner.
func (s *MatchService) ResolveDispute(ctx context.Context, matchID, resolvedBy, team1Score, team2Score int) (*models.Match, error) {
	match, err := s.mutate(ctx, matchID, func(q repositories.SQLExecutor, t *models.Tournament, m *models.Match) error {
		if m.State != models.StateDisputed || m.Dispute == nil {
			return ErrNoDisputeToResolve
		}
		if team1Score < 0 || team2Score < 0 || team1Score == team2Score {
			return fmt.Errorf("%w: scores must be non-negative and decisive", ErrInvalidScore)
		}
		m.Dispute.ResolvedBy = &resolvedBy
		completeWithScore(m, team1Score, team2Score)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return match, s.advancer.Advance(ctx, match)
}

// ResetDispute discards both submissions and sends the match back to
// playing for a fresh pair of reports. The veto outcome is kept.
func (s *MatchService) ResetDispute(ctx context.Context, matchID, resolvedBy int) (*models.Match, error) {
	return s.mutate(ctx, matchID, func(q repositories.SQLExecutor, t *models.Tournament, m *models.Match) error {
		if m.State != models.StateDisputed || m.Dispute == nil {
			return ErrNoDisputeToResolve
		}
		m.Submissions = nil
		m.Dispute = nil
		m.State = models.StatePlaying
		s.logger.Info("dispute reset",
			slog.Int("match_id", m.ID),
			slog.Int("resolved_by", resolvedBy),
		)
		return nil
	})
}

// ForceComplete sets an authoritative score on any non-completed match with
// both teams present, skipping whatever remained of the in-match protocol.
func (s *MatchService) ForceComplete(ctx context.Context, matchID, team1Score, team2Score int) (*models.Match, error) {
	match, err := s.mutate(ctx, matchID, func(q repositories.SQLExecutor, t *models.Tournament, m *models.Match) error {
		if m.Completed {
			return ErrMatchAlreadyCompleted
		}
		if m.Team1ID == nil || m.Team2ID == nil {
			return fmt.Errorf("%w: both slots must be filled", ErrMatchNotInExpectedState)
		}
		if team1Score < 0 || team2Score < 0 || team1Score == team2Score {
			return fmt.Errorf("%w: scores must be non-negative and decisive", ErrInvalidScore)
		}
		completeWithScore(m, team1Score, team2Score)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return match, s.advancer.Advance(ctx, match)
}

// RevertMatch voids a completed match and removes everything its result
// caused downstream, in one transaction. The match itself is wiped back to
// ready_up: scores, winner, veto and ready flags are all cleared.
func (s *MatchService) RevertMatch(ctx context.Context, matchID int) (*models.Match, error) {
	var match *models.Match
	var tournamentID int
	err := repositories.WithRetry(ctx, func() error {
		return s.txRunner.RunInTx(ctx, func(q repositories.SQLExecutor) error {
			m, err := s.matchRepo.GetByIDForUpdate(ctx, q, matchID)
			if err != nil {
				if errors.Is(err, repositories.ErrMatchNotFound) {
					return ErrNotFound
				}
				return err
			}
			if !m.Completed {
				return fmt.Errorf("%w: match %d is not completed", ErrMatchNotInExpectedState, m.ID)
			}
			if err := s.guardSwissRevert(ctx, q, m.TournamentID, m.Round); err != nil {
				return err
			}
			if err := s.revertLocked(ctx, q, m); err != nil {
				return err
			}
			match = m
			tournamentID = m.TournamentID
			return s.reopenTournament(ctx, q, m.TournamentID)
		})
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(ctx, events.New(events.MatchStateChanged, tournamentID, events.MatchStatePayload{
		MatchID:  match.ID,
		State:    string(match.State),
		Round:    match.Round,
		Position: match.Position,
		Segment:  string(match.Segment),
	}))
	return match, nil
}

// RevertRound voids every completed match of one round of a segment,
// cascading through their downstream effects, in one transaction.
func (s *MatchService) RevertRound(ctx context.Context, tournamentID, round int, segment models.BracketSegment) error {
	return repositories.WithRetry(ctx, func() error {
		return s.txRunner.RunInTx(ctx, func(q repositories.SQLExecutor) error {
			filter := repositories.MatchFilter{Round: &round}
			if segment != "" {
				filter.Segment = &segment
			}
			if err := s.guardSwissRevert(ctx, q, tournamentID, round); err != nil {
				return err
			}
			matches, err := s.matchRepo.ListByTournament(ctx, q, tournamentID, filter)
			if err != nil {
				return err
			}
			reverted := false
			for _, m := range matches {
				locked, err := s.matchRepo.GetByIDForUpdate(ctx, q, m.ID)
				if err != nil {
					return err
				}
				if !locked.Completed {
					continue
				}
				if err := s.revertLocked(ctx, q, locked); err != nil {
					return err
				}
				reverted = true
			}
			if !reverted {
				return fmt.Errorf("%w: no completed matches in round %d", ErrMatchNotInExpectedState, round)
			}
			return s.reopenTournament(ctx, q, tournamentID)
		})
	})
}

// revertLocked clears the result of an already locked match after first
// undoing everything downstream of it. Recursion bottoms out at matches
// whose slots were never consumed.
func (s *MatchService) revertLocked(ctx context.Context, q repositories.SQLExecutor, m *models.Match) error {
	if m.WinnerID != nil {
		winner := *m.WinnerID
		loser := derefInt(m.OpponentOf(winner))

		if m.WinnerNextMatchID != nil {
			if err := s.removeAdvancedTeam(ctx, q, *m.WinnerNextMatchID, winner); err != nil {
				return err
			}
		}
		if m.LoserNextMatchID != nil && loser != 0 {
			if err := s.removeAdvancedTeam(ctx, q, *m.LoserNextMatchID, loser); err != nil {
				return err
			}
		}
		if m.Segment == models.SegmentGrandFinal && m.Round == 1 {
			if err := s.clearResetMatch(ctx, q, m.TournamentID); err != nil {
				return err
			}
		}
	}

	m.Score1, m.Score2 = nil, nil
	m.WinnerID = nil
	m.Completed = false
	m.Ready = models.ReadyState{}
	m.Veto = nil
	m.Submissions = nil
	m.Dispute = nil
	if m.Team1ID != nil && m.Team2ID != nil {
		m.State = models.StateReadyUp
	} else {
		// A walkover completion has nothing to play again until the empty
		// slot is refilled.
		m.State = models.StateAwaitingTeams
	}
	return s.matchRepo.Update(ctx, q, m)
}

// guardSwissRevert rejects reverting a Swiss stage result once a later
// round exists: its pairings were computed from standings that include the
// result being voided, and the pairing engine never re-pairs a round.
func (s *MatchService) guardSwissRevert(ctx context.Context, q repositories.SQLExecutor, tournamentID, round int) error {
	t, err := s.tournamentRepo.GetByID(ctx, q, tournamentID)
	if err != nil {
		return err
	}
	if t.Format.BracketType != models.BracketSwiss || round > t.Format.SwissRounds {
		return nil
	}
	matches, err := s.matchRepo.ListByTournament(ctx, q, tournamentID, repositories.MatchFilter{})
	if err != nil {
		return err
	}
	for _, m := range matches {
		if m.Round > round {
			return fmt.Errorf("%w: round %d", ErrSwissRoundSuperseded, round)
		}
	}
	return nil
}

// removeAdvancedTeam takes one previously advanced team back out of a
// downstream match, reverting that match first if it already completed.
func (s *MatchService) removeAdvancedTeam(ctx context.Context, q repositories.SQLExecutor, matchID, teamID int) error {
	m, err := s.matchRepo.GetByIDForUpdate(ctx, q, matchID)
	if err != nil {
		return err
	}
	slot := m.SlotOf(teamID)
	if slot == 0 {
		return nil
	}
	if m.Completed {
		if err := s.revertLocked(ctx, q, m); err != nil {
			return err
		}
	}
	if slot == 1 {
		m.Team1ID = nil
	} else {
		m.Team2ID = nil
	}
	m.Ready = models.ReadyState{}
	m.Veto = nil
	m.Submissions = nil
	m.Dispute = nil
	m.State = models.StateAwaitingTeams
	return s.matchRepo.Update(ctx, q, m)
}

func (s *MatchService) clearResetMatch(ctx context.Context, q repositories.SQLExecutor, tournamentID int) error {
	segment := models.SegmentGrandFinal
	matches, err := s.matchRepo.ListByTournament(ctx, q, tournamentID, repositories.MatchFilter{Segment: &segment})
	if err != nil {
		return err
	}
	for _, gf := range matches {
		if gf.Round != 2 || (gf.Team1ID == nil && gf.Team2ID == nil) {
			continue
		}
		reset, err := s.matchRepo.GetByIDForUpdate(ctx, q, gf.ID)
		if err != nil {
			return err
		}
		if reset.Completed {
			if err := s.revertLocked(ctx, q, reset); err != nil {
				return err
			}
		}
		reset.Team1ID, reset.Team2ID = nil, nil
		reset.Ready = models.ReadyState{}
		reset.Veto = nil
		reset.Submissions = nil
		reset.Dispute = nil
		reset.State = models.StateAwaitingTeams
		if err := s.matchRepo.Update(ctx, q, reset); err != nil {
			return err
		}
	}
	return nil
}

// reopenTournament moves a completed tournament back to in_progress after a
// revert re-opened its bracket.
func (s *MatchService) reopenTournament(ctx context.Context, q repositories.SQLExecutor, tournamentID int) error {
	t, err := s.tournamentRepo.GetByIDForUpdate(ctx, q, tournamentID)
	if err != nil {
		return err
	}
	if t.Status != models.StatusCompleted {
		return nil
	}
	return s.tournamentRepo.UpdateStatus(ctx, q, tournamentID, models.StatusInProgress)
}

// mutate is the shared read-modify-write loop: lock the match, load its
// tournament, apply fn and persist, retrying on transient failures. A state
// change event is emitted after commit only when the state actually moved.
func (s *MatchService) mutate(ctx context.Context, matchID int, fn func(q repositories.SQLExecutor, t *models.Tournament, m *models.Match) error) (*models.Match, error) {
	var match *models.Match
	var stateChanged bool
	err := repositories.WithRetry(ctx, func() error {
		return s.txRunner.RunInTx(ctx, func(q repositories.SQLExecutor) error {
			m, err := s.matchRepo.GetByIDForUpdate(ctx, q, matchID)
			if err != nil {
				if errors.Is(err, repositories.ErrMatchNotFound) {
					return ErrNotFound
				}
				return err
			}
			t, err := s.tournamentRepo.GetByID(ctx, q, m.TournamentID)
			if err != nil {
				return err
			}
			before := m.State
			if err := fn(q, t, m); err != nil {
				return err
			}
			if err := s.matchRepo.Update(ctx, q, m); err != nil {
				return err
			}
			stateChanged = m.State != before
			if stateChanged {
				s.logger.Debug("match state transition",
					slog.Int("match_id", m.ID),
					slog.String("from", string(before)),
					slog.String("to", string(m.State)),
				)
			}
			match = m
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if stateChanged {
		s.publisher.Publish(ctx, events.New(events.MatchStateChanged, match.TournamentID, events.MatchStatePayload{
			MatchID:  match.ID,
			State:    string(match.State),
			Round:    match.Round,
			Position: match.Position,
			Segment:  string(match.Segment),
		}))
	}
	return match, nil
}

// completeWithScore writes the final score onto a locked match.
func completeWithScore(m *models.Match, team1Score, team2Score int) {
	s1, s2 := team1Score, team2Score
	m.Score1, m.Score2 = &s1, &s2
	if s1 > s2 {
		m.WinnerID = m.Team1ID
	} else {
		m.WinnerID = m.Team2ID
	}
	m.Completed = true
	m.State = models.StateCompleted
}
