package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/deckstorm/tcg-arena/models"
	"github.com/lib/pq"
)

var (
	ErrTournamentNotFound     = errors.New("tournament not found")
	ErrTournamentNameConflict = errors.New("tournament name already exists")
)

type TournamentRepository interface {
	Create(ctx context.Context, exec SQLExecutor, tournament *models.Tournament) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error)
	Update(ctx context.Context, exec SQLExecutor, tournament *models.Tournament) error
	List(ctx context.Context, exec SQLExecutor, status *models.TournamentStatus, limit, offset int) ([]*models.Tournament, error)
	Delete(ctx context.Context, exec SQLExecutor, id int) error
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

func (r *postgresTournamentRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const tournamentColumns = `
	id, name, description, location, type, status, is_finished,
	min_players, max_players, current_round, total_rounds, start_date,
	registration_deadline, requires_approval, check_in_required,
	rules, additional_info, logo_key, created_at, updated_at`

func (r *postgresTournamentRepository) scanTournament(row interface{ Scan(...interface{}) error }) (*models.Tournament, error) {
	var t models.Tournament
	err := row.Scan(
		&t.ID, &t.Name, &t.Description, &t.Location, &t.Type, &t.Status, &t.IsFinished,
		&t.MinPlayers, &t.MaxPlayers, &t.CurrentRound, &t.TotalRounds, &t.StartDate,
		&t.RegistrationDeadline, &t.RequiresApproval, &t.CheckInRequired,
		&t.Rules, &t.AdditionalInfo, &t.LogoKey, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *postgresTournamentRepository) Create(ctx context.Context, exec SQLExecutor, tournament *models.Tournament) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO tournaments
			(name, description, location, type, status, is_finished,
			 min_players, max_players, current_round, total_rounds, start_date,
			 registration_deadline, requires_approval, check_in_required,
			 rules, additional_info, logo_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $18)
		RETURNING id, created_at, updated_at`
	now := time.Now()
	err := executor.QueryRowContext(ctx, query,
		tournament.Name, tournament.Description, tournament.Location,
		tournament.Type, tournament.Status, tournament.IsFinished,
		tournament.MinPlayers, tournament.MaxPlayers,
		tournament.CurrentRound, tournament.TotalRounds, tournament.StartDate,
		tournament.RegistrationDeadline, tournament.RequiresApproval, tournament.CheckInRequired,
		tournament.Rules, tournament.AdditionalInfo, tournament.LogoKey, now,
	).Scan(&tournament.ID, &tournament.CreatedAt, &tournament.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" { // unique_violation
			return ErrTournamentNameConflict
		}
		return err
	}
	return nil
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + tournamentColumns + ` FROM tournaments WHERE id = $1`
	return r.scanTournament(executor.QueryRowContext(ctx, query, id))
}

func (r *postgresTournamentRepository) Update(ctx context.Context, exec SQLExecutor, tournament *models.Tournament) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE tournaments SET
			name = $1, description = $2, location = $3, type = $4, status = $5,
			is_finished = $6, min_players = $7, max_players = $8,
			current_round = $9, total_rounds = $10, start_date = $11,
			registration_deadline = $12, requires_approval = $13, check_in_required = $14,
			rules = $15, additional_info = $16, logo_key = $17, updated_at = NOW()
		WHERE id = $18`
	result, err := executor.ExecContext(ctx, query,
		tournament.Name, tournament.Description, tournament.Location,
		tournament.Type, tournament.Status, tournament.IsFinished,
		tournament.MinPlayers, tournament.MaxPlayers,
		tournament.CurrentRound, tournament.TotalRounds, tournament.StartDate,
		tournament.RegistrationDeadline, tournament.RequiresApproval, tournament.CheckInRequired,
		tournament.Rules, tournament.AdditionalInfo, tournament.LogoKey,
		tournament.ID,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrTournamentNameConflict
		}
		return err
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) List(ctx context.Context, exec SQLExecutor, status *models.TournamentStatus, limit, offset int) ([]*models.Tournament, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + tournamentColumns + ` FROM tournaments`
	args := []interface{}{}
	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, *status)
	}
	query += ` ORDER BY start_date DESC`
	if limit > 0 {
		args = append(args, limit, offset)
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}

	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tournaments := make([]*models.Tournament, 0)
	for rows.Next() {
		t, errScan := r.scanTournament(rows)
		if errScan != nil {
			return nil, errScan
		}
		tournaments = append(tournaments, t)
	}
	return tournaments, rows.Err()
}

func (r *postgresTournamentRepository) Delete(ctx context.Context, exec SQLExecutor, id int) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `DELETE FROM tournaments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}
