package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/deckstorm/tcg-arena/models"
	"github.com/lib/pq"
)

var (
	ErrRegistrationNotFound = errors.New("tournament registration not found")
	ErrRegistrationConflict = errors.New("player is already registered for this tournament")
)

type RegistrationRepository interface {
	Create(ctx context.Context, exec SQLExecutor, registration *models.Registration) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Registration, error)
	GetByTournamentAndPlayer(ctx context.Context, exec SQLExecutor, tournamentID, playerID int) (*models.Registration, error)
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, status *models.RegistrationStatus) ([]*models.Registration, error)
	CountByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, status *models.RegistrationStatus) (int, error)
	Update(ctx context.Context, exec SQLExecutor, registration *models.Registration) error
	Delete(ctx context.Context, exec SQLExecutor, id int) error
}

type postgresRegistrationRepository struct {
	db *sql.DB
}

func NewPostgresRegistrationRepository(db *sql.DB) RegistrationRepository {
	return &postgresRegistrationRepository{db: db}
}

func (r *postgresRegistrationRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const registrationColumns = `
	id, tournament_id, player_id, status, confirmation_code, checked_in,
	checked_in_at, eliminated_at, eliminated_round, notes, registered_at, updated_at`

func (r *postgresRegistrationRepository) scanRegistration(row interface{ Scan(...interface{}) error }) (*models.Registration, error) {
	var reg models.Registration
	err := row.Scan(
		&reg.ID, &reg.TournamentID, &reg.PlayerID, &reg.Status, &reg.ConfirmationCode,
		&reg.CheckedIn, &reg.CheckedInAt, &reg.EliminatedAt, &reg.EliminatedRound,
		&reg.Notes, &reg.RegisteredAt, &reg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, err
	}
	return &reg, nil
}

func (r *postgresRegistrationRepository) Create(ctx context.Context, exec SQLExecutor, registration *models.Registration) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO tournament_registrations
			(tournament_id, player_id, status, confirmation_code, checked_in,
			 checked_in_at, eliminated_at, eliminated_round, notes, registered_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING id, registered_at, updated_at`
	err := executor.QueryRowContext(ctx, query,
		registration.TournamentID, registration.PlayerID, registration.Status,
		registration.ConfirmationCode, registration.CheckedIn, registration.CheckedInAt,
		registration.EliminatedAt, registration.EliminatedRound, registration.Notes,
	).Scan(&registration.ID, &registration.RegisteredAt, &registration.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" { // unique (tournament_id, player_id)
			return ErrRegistrationConflict
		}
		return err
	}
	return nil
}

func (r *postgresRegistrationRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Registration, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + registrationColumns + ` FROM tournament_registrations WHERE id = $1`
	return r.scanRegistration(executor.QueryRowContext(ctx, query, id))
}

func (r *postgresRegistrationRepository) GetByTournamentAndPlayer(ctx context.Context, exec SQLExecutor, tournamentID, playerID int) (*models.Registration, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + registrationColumns + ` FROM tournament_registrations WHERE tournament_id = $1 AND player_id = $2`
	return r.scanRegistration(executor.QueryRowContext(ctx, query, tournamentID, playerID))
}

func (r *postgresRegistrationRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, status *models.RegistrationStatus) ([]*models.Registration, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + registrationColumns + ` FROM tournament_registrations WHERE tournament_id = $1`
	args := []interface{}{tournamentID}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	query += ` ORDER BY registered_at ASC`

	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	registrations := make([]*models.Registration, 0)
	for rows.Next() {
		reg, errScan := r.scanRegistration(rows)
		if errScan != nil {
			return nil, errScan
		}
		registrations = append(registrations, reg)
	}
	return registrations, rows.Err()
}

func (r *postgresRegistrationRepository) CountByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, status *models.RegistrationStatus) (int, error) {
	executor := r.getExecutor(exec)
	query := `SELECT COUNT(*) FROM tournament_registrations WHERE tournament_id = $1`
	args := []interface{}{tournamentID}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	var count int
	if err := executor.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *postgresRegistrationRepository) Update(ctx context.Context, exec SQLExecutor, registration *models.Registration) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE tournament_registrations SET
			status = $1, confirmation_code = $2, checked_in = $3, checked_in_at = $4,
			eliminated_at = $5, eliminated_round = $6, notes = $7, updated_at = NOW()
		WHERE id = $8`
	result, err := executor.ExecContext(ctx, query,
		registration.Status, registration.ConfirmationCode,
		registration.CheckedIn, registration.CheckedInAt,
		registration.EliminatedAt, registration.EliminatedRound, registration.Notes,
		registration.ID,
	)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrRegistrationNotFound)
}

func (r *postgresRegistrationRepository) Delete(ctx context.Context, exec SQLExecutor, id int) error {
	executor := r.getExecutor(exec)
	result, err := executor.ExecContext(ctx, `DELETE FROM tournament_registrations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrRegistrationNotFound)
}
