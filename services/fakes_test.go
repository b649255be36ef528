package services

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/openscrim/tournament-engine/events"
	"github.com/openscrim/tournament-engine/models"
	"github.com/openscrim/tournament-engine/repositories"
)

// In-memory collaborators for service tests. The fakes keep the repository
// contracts: reads return copies, writes only persist through Update, and
// Update touches the same column set as the SQL implementation.

type memTxRunner struct{}

func (memTxRunner) RunInTx(ctx context.Context, fn func(q repositories.SQLExecutor) error) error {
	return fn(nil)
}

type memTournamentRepo struct {
	mu    sync.Mutex
	seq   int
	items map[int]*models.Tournament
}

func newMemTournamentRepo() *memTournamentRepo {
	return &memTournamentRepo{items: make(map[int]*models.Tournament)}
}

func cloneTournament(t *models.Tournament) *models.Tournament {
	c := *t
	c.TeamIDs = append([]int(nil), t.TeamIDs...)
	c.MapPool = append([]string(nil), t.MapPool...)
	c.Matches = nil
	return &c
}

func (r *memTournamentRepo) Create(ctx context.Context, q repositories.SQLExecutor, t *models.Tournament) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	t.ID = r.seq
	r.items[t.ID] = cloneTournament(t)
	return nil
}

func (r *memTournamentRepo) GetByID(ctx context.Context, q repositories.SQLExecutor, id int) (*models.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.items[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	return cloneTournament(t), nil
}

func (r *memTournamentRepo) GetByIDForUpdate(ctx context.Context, q repositories.SQLExecutor, id int) (*models.Tournament, error) {
	return r.GetByID(ctx, q, id)
}

func (r *memTournamentRepo) Update(ctx context.Context, q repositories.SQLExecutor, t *models.Tournament) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[t.ID]; !ok {
		return repositories.ErrTournamentNotFound
	}
	r.items[t.ID] = cloneTournament(t)
	return nil
}

func (r *memTournamentRepo) UpdateStatus(ctx context.Context, q repositories.SQLExecutor, id int, status models.TournamentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.items[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.Status = status
	return nil
}

func (r *memTournamentRepo) List(ctx context.Context, q repositories.SQLExecutor) ([]*models.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Tournament, 0, len(r.items))
	for _, t := range r.items {
		out = append(out, cloneTournament(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memMatchRepo struct {
	mu    sync.Mutex
	seq   int
	items map[int]*models.Match
}

func newMemMatchRepo() *memMatchRepo {
	return &memMatchRepo{items: make(map[int]*models.Match)}
}

func cloneIntPtr(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneMatch(m *models.Match) *models.Match {
	c := *m
	c.Team1ID = cloneIntPtr(m.Team1ID)
	c.Team2ID = cloneIntPtr(m.Team2ID)
	c.Score1 = cloneIntPtr(m.Score1)
	c.Score2 = cloneIntPtr(m.Score2)
	c.WinnerID = cloneIntPtr(m.WinnerID)
	c.WinnerNextMatchID = cloneIntPtr(m.WinnerNextMatchID)
	c.WinnerNextSlot = cloneIntPtr(m.WinnerNextSlot)
	c.LoserNextMatchID = cloneIntPtr(m.LoserNextMatchID)
	c.MapPool = append([]string(nil), m.MapPool...)
	if m.Submissions != nil {
		c.Submissions = append([]models.ResultSubmission(nil), m.Submissions...)
	}
	if m.Veto != nil {
		v := *m.Veto
		v.Entries = append([]models.VetoEntry(nil), m.Veto.Entries...)
		v.Sides = append([]models.SideSelection(nil), m.Veto.Sides...)
		v.Maps = append([]string(nil), m.Veto.Maps...)
		c.Veto = &v
	}
	if m.Dispute != nil {
		d := *m.Dispute
		d.Submissions = append([]models.ResultSubmission(nil), m.Dispute.Submissions...)
		d.ResolvedBy = cloneIntPtr(m.Dispute.ResolvedBy)
		c.Dispute = &d
	}
	return &c
}

func (r *memMatchRepo) Create(ctx context.Context, q repositories.SQLExecutor, m *models.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	m.ID = r.seq
	r.items[m.ID] = cloneMatch(m)
	return nil
}

func (r *memMatchRepo) GetByID(ctx context.Context, q repositories.SQLExecutor, id int) (*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.items[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	return cloneMatch(m), nil
}

func (r *memMatchRepo) GetByIDForUpdate(ctx context.Context, q repositories.SQLExecutor, id int) (*models.Match, error) {
	return r.GetByID(ctx, q, id)
}

func (r *memMatchRepo) ListByTournament(ctx context.Context, q repositories.SQLExecutor, tournamentID int, filter repositories.MatchFilter) ([]*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Match, 0)
	for _, m := range r.items {
		if m.TournamentID != tournamentID {
			continue
		}
		if filter.Round != nil && m.Round != *filter.Round {
			continue
		}
		if filter.Segment != nil && m.Segment != *filter.Segment {
			continue
		}
		if filter.State != nil && m.State != *filter.State {
			continue
		}
		out = append(out, cloneMatch(m))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Segment != out[j].Segment {
			return out[i].Segment < out[j].Segment
		}
		if out[i].Round != out[j].Round {
			return out[i].Round < out[j].Round
		}
		return out[i].Position < out[j].Position
	})
	return out, nil
}

// Update persists the mutable result columns; links are written only through
// UpdateLinks, like the SQL repository.
func (r *memMatchRepo) Update(ctx context.Context, q repositories.SQLExecutor, m *models.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[m.ID]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	c := cloneMatch(m)
	stored.Team1ID = c.Team1ID
	stored.Team2ID = c.Team2ID
	stored.Score1 = c.Score1
	stored.Score2 = c.Score2
	stored.WinnerID = c.WinnerID
	stored.Completed = c.Completed
	stored.State = c.State
	stored.Ready = c.Ready
	stored.Veto = c.Veto
	stored.Submissions = c.Submissions
	stored.Dispute = c.Dispute
	return nil
}

func (r *memMatchRepo) UpdateLinks(ctx context.Context, q repositories.SQLExecutor, id int, winnerNext, winnerSlot, loserNext *int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	stored.WinnerNextMatchID = cloneIntPtr(winnerNext)
	stored.WinnerNextSlot = cloneIntPtr(winnerSlot)
	stored.LoserNextMatchID = cloneIntPtr(loserNext)
	return nil
}

func (r *memMatchRepo) CountPendingFeeders(ctx context.Context, q repositories.SQLExecutor, matchID int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, m := range r.items {
		feeds := (m.WinnerNextMatchID != nil && *m.WinnerNextMatchID == matchID) ||
			(m.LoserNextMatchID != nil && *m.LoserNextMatchID == matchID)
		if feeds && !m.Completed {
			count++
		}
	}
	return count, nil
}

type memTeamDirectory struct {
	mu    sync.Mutex
	items map[int]*models.Team
}

func newMemTeamDirectory(teams ...*models.Team) *memTeamDirectory {
	d := &memTeamDirectory{items: make(map[int]*models.Team)}
	for _, t := range teams {
		d.items[t.ID] = t
	}
	return d
}

func (d *memTeamDirectory) GetByID(ctx context.Context, q repositories.SQLExecutor, id int) (*models.Team, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.items[id]
	if !ok {
		return nil, repositories.ErrTeamNotFound
	}
	c := *t
	return &c, nil
}

func (d *memTeamDirectory) ListByIDs(ctx context.Context, q repositories.SQLExecutor, ids []int) ([]*models.Team, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*models.Team
	for _, id := range ids {
		if t, ok := d.items[id]; ok {
			c := *t
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// recordingPublisher collects every emitted event for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, ev events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) ofType(t events.Type) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, ev := range p.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type recordingArchiver struct {
	mu       sync.Mutex
	archived []int
}

func (a *recordingArchiver) ArchiveBracket(ctx context.Context, t *models.Tournament, matches []*models.Match) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.archived = append(a.archived, t.ID)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// engine bundles a fully wired service stack over the in-memory fakes.
type engine struct {
	tournaments *memTournamentRepo
	matches     *memMatchRepo
	teams       *memTeamDirectory
	publisher   *recordingPublisher
	archiver    *recordingArchiver

	tournamentService *TournamentService
	bracketService    *BracketService
	swissService      *SwissService
	matchService      *MatchService
	advancer          *AdvancementService
}

func newEngine(teams ...*models.Team) *engine {
	e := &engine{
		tournaments: newMemTournamentRepo(),
		matches:     newMemMatchRepo(),
		teams:       newMemTeamDirectory(teams...),
		publisher:   &recordingPublisher{},
		archiver:    &recordingArchiver{},
	}
	logger := testLogger()
	runner := memTxRunner{}

	e.advancer = NewAdvancementService(runner, e.tournaments, e.matches, e.publisher, e.archiver, logger)
	e.bracketService = NewBracketService(runner, e.tournaments, e.matches, e.publisher, logger)
	e.swissService = NewSwissService(runner, e.tournaments, e.matches, e.publisher, e.bracketService, e.advancer, logger)
	e.advancer.SetSwissHook(e.swissService)
	e.matchService = NewMatchService(runner, e.tournaments, e.matches, e.publisher, e.advancer, logger)
	e.tournamentService = NewTournamentService(runner, e.tournaments, e.matches, e.teams, logger)
	return e
}

// seedTournament stores a tournament directly in the fake repository.
func (e *engine) seedTournament(t *models.Tournament) *models.Tournament {
	_ = e.tournaments.Create(context.Background(), nil, t)
	return t
}

// startBracket generates and persists the bracket of a seeded tournament
// whose registration is closed.
func (e *engine) startBracket(tournamentID int) ([]*models.Match, error) {
	return e.bracketService.GenerateAndSaveBracket(context.Background(), tournamentID)
}

// matchByKey finds a stored match by its bracket key.
func (e *engine) matchByKey(tournamentID int, key string) *models.Match {
	all, _ := e.matches.ListByTournament(context.Background(), nil, tournamentID, repositories.MatchFilter{})
	for _, m := range all {
		if m.BracketKey == key {
			return m
		}
	}
	return nil
}

// playMatch reports the same score from both teams, completing the match and
// triggering advancement.
func (e *engine) playMatch(matchID, score1, score2 int) error {
	m, err := e.matchService.GetMatch(context.Background(), matchID)
	if err != nil {
		return err
	}
	if _, err := e.matchService.SignalReady(context.Background(), matchID, *m.Team1ID); err != nil {
		return err
	}
	if _, err := e.matchService.SignalReady(context.Background(), matchID, *m.Team2ID); err != nil {
		return err
	}
	if err := e.runVeto(matchID); err != nil {
		return err
	}
	if _, err := e.matchService.SubmitResult(context.Background(), matchID, *m.Team1ID, score1, score2); err != nil {
		return err
	}
	_, err = e.matchService.SubmitResult(context.Background(), matchID, *m.Team2ID, score1, score2)
	return err
}

// runVeto walks the ban/pick protocol picking whatever map or side is legal
// next, until the match is playing.
func (e *engine) runVeto(matchID int) error {
	ctx := context.Background()
	for {
		m, err := e.matchService.GetMatch(ctx, matchID)
		if err != nil {
			return err
		}
		if m.State != models.StateMapBanning || m.Veto == nil {
			return nil
		}
		actor := *m.Team1ID
		if vetoActor(m, m.Veto.Phase) == 2 {
			actor = *m.Team2ID
		}
		switch m.Veto.Phase {
		case models.PhasePickMapOne, models.PhasePickMapTwo:
			_, err = e.matchService.PickMap(ctx, matchID, actor, m.Veto.Remaining(m.MapPool)[0])
		case models.PhaseSideMapOne, models.PhaseSideMapTwo, models.PhaseSideDecider:
			_, err = e.matchService.SelectSide(ctx, matchID, actor, models.SideCT)
		default:
			_, err = e.matchService.BanMap(ctx, matchID, actor, m.Veto.Remaining(m.MapPool)[0])
		}
		if err != nil {
			return err
		}
	}
}
