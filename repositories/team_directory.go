package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/openscrim/tournament-engine/models"
)

var ErrTeamNotFound = errors.New("team not found")

// TeamDirectory is the read-only view of the roster data owned by the
// team service. The engine resolves names and captains from it; inside the
// bracket teams travel by id only.
type TeamDirectory interface {
	GetByID(ctx context.Context, q SQLExecutor, id int) (*models.Team, error)
	ListByIDs(ctx context.Context, q SQLExecutor, ids []int) ([]*models.Team, error)
}

type postgresTeamDirectory struct{}

func NewPostgresTeamDirectory() TeamDirectory {
	return &postgresTeamDirectory{}
}

const teamColumns = `id, name, captain_id, roster`

func (d *postgresTeamDirectory) GetByID(ctx context.Context, q SQLExecutor, id int) (*models.Team, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+teamColumns+` FROM teams WHERE id = $1`, id)
	team, err := scanTeam(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTeamNotFound
	}
	return team, err
}

func (d *postgresTeamDirectory) ListByIDs(ctx context.Context, q SQLExecutor, ids []int) ([]*models.Team, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := q.QueryContext(ctx,
		`SELECT `+teamColumns+` FROM teams WHERE id = ANY($1) ORDER BY id`,
		pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("listing teams: %w", err)
	}
	defer rows.Close()

	var teams []*models.Team
	for rows.Next() {
		team, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		teams = append(teams, team)
	}
	return teams, rows.Err()
}

func scanTeam(row rowScanner) (*models.Team, error) {
	var t models.Team
	var roster []byte
	if err := row.Scan(&t.ID, &t.Name, &t.CaptainID, &roster); err != nil {
		return nil, err
	}
	if len(roster) > 0 {
		if err := json.Unmarshal(roster, &t.Roster); err != nil {
			return nil, fmt.Errorf("decoding team roster: %w", err)
		}
	}
	return &t, nil
}
