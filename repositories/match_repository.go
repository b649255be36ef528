package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/openscrim/tournament-engine/models"
)

var ErrMatchNotFound = errors.New("match not found")

// MatchFilter narrows ListByTournament. Nil fields match everything.
type MatchFilter struct {
	Round   *int
	Segment *models.BracketSegment
	State   *models.MatchState
}

type MatchRepository interface {
	Create(ctx context.Context, q SQLExecutor, m *models.Match) error
	GetByID(ctx context.Context, q SQLExecutor, id int) (*models.Match, error)
	// GetByIDForUpdate locks the match row for the duration of the caller's
	// transaction: every state machine transition is a read-modify-write
	// against the locked row.
	GetByIDForUpdate(ctx context.Context, q SQLExecutor, id int) (*models.Match, error)
	ListByTournament(ctx context.Context, q SQLExecutor, tournamentID int, filter MatchFilter) ([]*models.Match, error)
	Update(ctx context.Context, q SQLExecutor, m *models.Match) error
	UpdateLinks(ctx context.Context, q SQLExecutor, id int, winnerNext, winnerSlot, loserNext *int) error
	// CountPendingFeeders counts the incomplete matches whose winner or
	// loser still flows into the given match. It is the inverse lookup of
	// the dependency index built at bracket generation.
	CountPendingFeeders(ctx context.Context, q SQLExecutor, matchID int) (int, error)
}

type postgresMatchRepository struct{}

func NewPostgresMatchRepository() MatchRepository {
	return &postgresMatchRepository{}
}

const matchColumns = `
	id, tournament_id, round, position, segment, bracket_key,
	team1_id, team2_id, score1, score2, winner_id, completed, state,
	map_pool, ready, veto, submissions, dispute,
	winner_next_match_id, winner_next_slot, loser_next_match_id, created_at`

func (r *postgresMatchRepository) Create(ctx context.Context, q SQLExecutor, m *models.Match) error {
	ready, veto, submissions, dispute, err := marshalMatchDocs(m)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO matches
			(tournament_id, round, position, segment, bracket_key,
			 team1_id, team2_id, score1, score2, winner_id, completed, state,
			 map_pool, ready, veto, submissions, dispute,
			 winner_next_match_id, winner_next_slot, loser_next_match_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING id, created_at`

	return q.QueryRowContext(ctx, query,
		m.TournamentID,
		m.Round,
		m.Position,
		m.Segment,
		m.BracketKey,
		m.Team1ID,
		m.Team2ID,
		m.Score1,
		m.Score2,
		m.WinnerID,
		m.Completed,
		m.State,
		pq.Array(m.MapPool),
		ready,
		veto,
		submissions,
		dispute,
		m.WinnerNextMatchID,
		m.WinnerNextSlot,
		m.LoserNextMatchID,
	).Scan(&m.ID, &m.CreatedAt)
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, q SQLExecutor, id int) (*models.Match, error) {
	return r.get(ctx, q, id, false)
}

func (r *postgresMatchRepository) GetByIDForUpdate(ctx context.Context, q SQLExecutor, id int) (*models.Match, error) {
	return r.get(ctx, q, id, true)
}

func (r *postgresMatchRepository) get(ctx context.Context, q SQLExecutor, id int, forUpdate bool) (*models.Match, error) {
	query := `SELECT` + matchColumns + ` FROM matches WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	m, err := scanMatch(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	return m, nil
}

func (r *postgresMatchRepository) ListByTournament(ctx context.Context, q SQLExecutor, tournamentID int, filter MatchFilter) ([]*models.Match, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT` + matchColumns + ` FROM matches WHERE tournament_id = $1`)

	args := []interface{}{tournamentID}
	placeholder := 2

	appendFilter := func(column string, value interface{}) {
		queryBuilder.WriteString(" AND " + column + " = $" + strconv.Itoa(placeholder))
		args = append(args, value)
		placeholder++
	}
	if filter.Round != nil {
		appendFilter("round", *filter.Round)
	}
	if filter.Segment != nil {
		appendFilter("segment", *filter.Segment)
	}
	if filter.State != nil {
		appendFilter("state", *filter.State)
	}

	queryBuilder.WriteString(" ORDER BY segment, round, position")

	rows, err := q.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		m, scanErr := scanMatch(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (r *postgresMatchRepository) Update(ctx context.Context, q SQLExecutor, m *models.Match) error {
	ready, veto, submissions, dispute, err := marshalMatchDocs(m)
	if err != nil {
		return err
	}

	query := `
		UPDATE matches
		SET team1_id = $1, team2_id = $2, score1 = $3, score2 = $4,
		    winner_id = $5, completed = $6, state = $7,
		    ready = $8, veto = $9, submissions = $10, dispute = $11
		WHERE id = $12`

	result, execErr := q.ExecContext(ctx, query,
		m.Team1ID,
		m.Team2ID,
		m.Score1,
		m.Score2,
		m.WinnerID,
		m.Completed,
		m.State,
		ready,
		veto,
		submissions,
		dispute,
		m.ID,
	)
	if execErr != nil {
		return execErr
	}
	return r.requireRow(result)
}

func (r *postgresMatchRepository) UpdateLinks(ctx context.Context, q SQLExecutor, id int, winnerNext, winnerSlot, loserNext *int) error {
	query := `
		UPDATE matches
		SET winner_next_match_id = $1, winner_next_slot = $2, loser_next_match_id = $3
		WHERE id = $4`

	result, err := q.ExecContext(ctx, query, winnerNext, winnerSlot, loserNext, id)
	if err != nil {
		return err
	}
	return r.requireRow(result)
}

func (r *postgresMatchRepository) CountPendingFeeders(ctx context.Context, q SQLExecutor, matchID int) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM matches
		WHERE (winner_next_match_id = $1 OR loser_next_match_id = $1)
		  AND completed = false`

	var count int
	if err := q.QueryRowContext(ctx, query, matchID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *postgresMatchRepository) requireRow(result sql.Result) error {
	rowsAffected, err := checkRowsAffected(result)
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrMatchNotFound
	}
	return nil
}

func marshalMatchDocs(m *models.Match) (ready, veto, submissions, dispute []byte, err error) {
	if ready, err = json.Marshal(m.Ready); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal ready state: %w", err)
	}
	if m.Veto != nil {
		if veto, err = json.Marshal(m.Veto); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("marshal veto state: %w", err)
		}
	}
	if m.Submissions == nil {
		submissions = []byte("[]")
	} else if submissions, err = json.Marshal(m.Submissions); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal submissions: %w", err)
	}
	if m.Dispute != nil {
		if dispute, err = json.Marshal(m.Dispute); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("marshal dispute: %w", err)
		}
	}
	return ready, veto, submissions, dispute, nil
}

func scanMatch(row rowScanner) (*models.Match, error) {
	m := &models.Match{}
	var mapPool pq.StringArray
	var ready, veto, submissions, dispute []byte

	err := row.Scan(
		&m.ID,
		&m.TournamentID,
		&m.Round,
		&m.Position,
		&m.Segment,
		&m.BracketKey,
		&m.Team1ID,
		&m.Team2ID,
		&m.Score1,
		&m.Score2,
		&m.WinnerID,
		&m.Completed,
		&m.State,
		&mapPool,
		&ready,
		&veto,
		&submissions,
		&dispute,
		&m.WinnerNextMatchID,
		&m.WinnerNextSlot,
		&m.LoserNextMatchID,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.MapPool = []string(mapPool)
	if len(ready) > 0 {
		if err := json.Unmarshal(ready, &m.Ready); err != nil {
			return nil, fmt.Errorf("unmarshal ready state: %w", err)
		}
	}
	if len(veto) > 0 {
		m.Veto = &models.VetoState{}
		if err := json.Unmarshal(veto, m.Veto); err != nil {
			return nil, fmt.Errorf("unmarshal veto state: %w", err)
		}
	}
	if len(submissions) > 0 {
		if err := json.Unmarshal(submissions, &m.Submissions); err != nil {
			return nil, fmt.Errorf("unmarshal submissions: %w", err)
		}
	}
	if len(dispute) > 0 {
		m.Dispute = &models.Dispute{}
		if err := json.Unmarshal(dispute, m.Dispute); err != nil {
			return nil, fmt.Errorf("unmarshal dispute: %w", err)
		}
	}
	return m, nil
}
