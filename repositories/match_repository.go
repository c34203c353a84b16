package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/deckstorm/tcg-arena/models"
	"github.com/lib/pq"
)

var (
	ErrMatchNotFound          = errors.New("match not found")
	ErrMatchTournamentInvalid = errors.New("match tournament conflict or invalid")
)

// MatchFilter narrows ListByTournament. Nil fields are not applied.
type MatchFilter struct {
	Round    *int
	Status   *models.MatchStatus
	PlayerID *int
}

type MatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, match *models.Match) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error)
	Update(ctx context.Context, exec SQLExecutor, match *models.Match) error
	Delete(ctx context.Context, exec SQLExecutor, id int) error
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, filter MatchFilter) ([]*models.Match, error)
	CountUnfinishedInRound(ctx context.Context, exec SQLExecutor, tournamentID, round int) (int, error)
	CancelScheduledByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) (int64, error)
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

func (r *postgresMatchRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const matchColumns = `
	id, tournament_id, player_a_id, player_b_id, winner_id, round, phase,
	status, player_a_score, player_b_score, scheduled_date, started_at,
	finished_at, notes, created_at, updated_at`

func (r *postgresMatchRepository) scanMatch(row interface{ Scan(...interface{}) error }) (*models.Match, error) {
	var m models.Match
	err := row.Scan(
		&m.ID, &m.TournamentID, &m.PlayerAID, &m.PlayerBID, &m.WinnerID,
		&m.Round, &m.Phase, &m.Status, &m.PlayerAScore, &m.PlayerBScore,
		&m.ScheduledDate, &m.StartedAt, &m.FinishedAt, &m.Notes,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, match *models.Match) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO matches
			(tournament_id, player_a_id, player_b_id, winner_id, round, phase,
			 status, player_a_score, player_b_score, scheduled_date, started_at,
			 finished_at, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())
		RETURNING id, created_at, updated_at`
	err := executor.QueryRowContext(ctx, query,
		match.TournamentID, match.PlayerAID, match.PlayerBID, match.WinnerID,
		match.Round, match.Phase, match.Status,
		match.PlayerAScore, match.PlayerBScore, match.ScheduledDate,
		match.StartedAt, match.FinishedAt, match.Notes,
	).Scan(&match.ID, &match.CreatedAt, &match.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" { // foreign_key_violation
			return ErrMatchTournamentInvalid
		}
		return err
	}
	return nil
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`
	return r.scanMatch(executor.QueryRowContext(ctx, query, id))
}

func (r *postgresMatchRepository) Update(ctx context.Context, exec SQLExecutor, match *models.Match) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE matches SET
			player_a_id = $1, player_b_id = $2, winner_id = $3, round = $4,
			phase = $5, status = $6, player_a_score = $7, player_b_score = $8,
			scheduled_date = $9, started_at = $10, finished_at = $11, notes = $12,
			updated_at = NOW()
		WHERE id = $13`
	result, err := executor.ExecContext(ctx, query,
		match.PlayerAID, match.PlayerBID, match.WinnerID, match.Round,
		match.Phase, match.Status, match.PlayerAScore, match.PlayerBScore,
		match.ScheduledDate, match.StartedAt, match.FinishedAt, match.Notes,
		match.ID,
	)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) Delete(ctx context.Context, exec SQLExecutor, id int) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `DELETE FROM matches WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, filter MatchFilter) ([]*models.Match, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + matchColumns + ` FROM matches WHERE tournament_id = $1`
	args := []interface{}{tournamentID}

	if filter.Round != nil {
		args = append(args, *filter.Round)
		query += fmt.Sprintf(` AND round = $%d`, len(args))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if filter.PlayerID != nil {
		args = append(args, *filter.PlayerID)
		query += fmt.Sprintf(` AND (player_a_id = $%d OR player_b_id = $%d)`, len(args), len(args))
	}
	query += ` ORDER BY round ASC, id ASC`

	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		m, errScan := r.scanMatch(rows)
		if errScan != nil {
			return nil, errScan
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (r *postgresMatchRepository) CountUnfinishedInRound(ctx context.Context, exec SQLExecutor, tournamentID, round int) (int, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT COUNT(*) FROM matches
		WHERE tournament_id = $1 AND round = $2 AND status NOT IN ($3, $4, $5)`
	var count int
	err := executor.QueryRowContext(ctx, query,
		tournamentID, round,
		models.MatchFinished, models.MatchForfeit, models.MatchCancelled,
	).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *postgresMatchRepository) CancelScheduledByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) (int64, error) {
	executor := r.getExecutor(exec)
	query := `
		UPDATE matches SET status = $1, updated_at = NOW()
		WHERE tournament_id = $2 AND status = $3`
	result, err := executor.ExecContext(ctx, query, models.MatchCancelled, tournamentID, models.MatchScheduled)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
