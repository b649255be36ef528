package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/openscrim/tournament-engine/models"
)

var (
	ErrTournamentNotFound     = errors.New("tournament not found")
	ErrTournamentNameConflict = errors.New("tournament name already exists")
)

type TournamentRepository interface {
	Create(ctx context.Context, q SQLExecutor, t *models.Tournament) error
	GetByID(ctx context.Context, q SQLExecutor, id int) (*models.Tournament, error)
	// GetByIDForUpdate loads the tournament row with a row lock, so status
	// transitions (and the bracket generation they guard) are serialized.
	GetByIDForUpdate(ctx context.Context, q SQLExecutor, id int) (*models.Tournament, error)
	Update(ctx context.Context, q SQLExecutor, t *models.Tournament) error
	UpdateStatus(ctx context.Context, q SQLExecutor, id int, status models.TournamentStatus) error
	List(ctx context.Context, q SQLExecutor) ([]*models.Tournament, error)
}

type postgresTournamentRepository struct{}

func NewPostgresTournamentRepository() TournamentRepository {
	return &postgresTournamentRepository{}
}

const tournamentColumns = `
	id, name, organizer_id, team_ids,
	bracket_type, team_count, match_format, seeding, swiss_rounds, playoff_size,
	status, map_pool, created_at`

func (r *postgresTournamentRepository) Create(ctx context.Context, q SQLExecutor, t *models.Tournament) error {
	query := `
		INSERT INTO tournaments
			(name, organizer_id, team_ids,
			 bracket_type, team_count, match_format, seeding, swiss_rounds, playoff_size,
			 status, map_pool)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at`

	err := q.QueryRowContext(ctx, query,
		t.Name,
		t.OrganizerID,
		pq.Array(t.TeamIDs),
		t.Format.BracketType,
		t.Format.TeamCount,
		t.Format.MatchFormat,
		t.Format.Seeding,
		t.Format.SwissRounds,
		t.Format.PlayoffSize,
		t.Status,
		pq.Array(t.MapPool),
	).Scan(&t.ID, &t.CreatedAt)

	return r.handleError(err)
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, q SQLExecutor, id int) (*models.Tournament, error) {
	return r.get(ctx, q, id, false)
}

func (r *postgresTournamentRepository) GetByIDForUpdate(ctx context.Context, q SQLExecutor, id int) (*models.Tournament, error) {
	return r.get(ctx, q, id, true)
}

func (r *postgresTournamentRepository) get(ctx context.Context, q SQLExecutor, id int, forUpdate bool) (*models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	t, err := scanTournament(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return t, nil
}

func (r *postgresTournamentRepository) Update(ctx context.Context, q SQLExecutor, t *models.Tournament) error {
	query := `
		UPDATE tournaments
		SET name = $1, team_ids = $2, seeding = $3, status = $4, map_pool = $5,
		    swiss_rounds = $6, playoff_size = $7
		WHERE id = $8`

	result, err := q.ExecContext(ctx, query,
		t.Name,
		pq.Array(t.TeamIDs),
		t.Format.Seeding,
		t.Status,
		pq.Array(t.MapPool),
		t.Format.SwissRounds,
		t.Format.PlayoffSize,
		t.ID,
	)
	if err != nil {
		return r.handleError(err)
	}
	return r.requireRow(result)
}

func (r *postgresTournamentRepository) UpdateStatus(ctx context.Context, q SQLExecutor, id int, status models.TournamentStatus) error {
	result, err := q.ExecContext(ctx, `UPDATE tournaments SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	return r.requireRow(result)
}

func (r *postgresTournamentRepository) List(ctx context.Context, q SQLExecutor) ([]*models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tournaments ORDER BY created_at DESC`
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tournaments := make([]*models.Tournament, 0)
	for rows.Next() {
		t, scanErr := scanTournament(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		tournaments = append(tournaments, t)
	}
	return tournaments, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTournament(row rowScanner) (*models.Tournament, error) {
	t := &models.Tournament{}
	var teamIDs pq.Int64Array
	var mapPool pq.StringArray
	err := row.Scan(
		&t.ID,
		&t.Name,
		&t.OrganizerID,
		&teamIDs,
		&t.Format.BracketType,
		&t.Format.TeamCount,
		&t.Format.MatchFormat,
		&t.Format.Seeding,
		&t.Format.SwissRounds,
		&t.Format.PlayoffSize,
		&t.Status,
		&mapPool,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.TeamIDs = make([]int, len(teamIDs))
	for i, id := range teamIDs {
		t.TeamIDs[i] = int(id)
	}
	t.MapPool = []string(mapPool)
	return t, nil
}

func (r *postgresTournamentRepository) requireRow(result sql.Result) error {
	rowsAffected, err := checkRowsAffected(result)
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrTournamentNotFound
	}
	return nil
}

func (r *postgresTournamentRepository) handleError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == "tournaments_name_key" {
		return ErrTournamentNameConflict
	}
	return err
}
