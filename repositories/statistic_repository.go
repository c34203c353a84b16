package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/deckstorm/tcg-arena/models"
)

var ErrStatisticNotFound = errors.New("statistic not found")

type StatisticRepository interface {
	Create(ctx context.Context, exec SQLExecutor, stat *models.Statistic) error
	ListByMatch(ctx context.Context, exec SQLExecutor, matchID int) ([]*models.Statistic, error)
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Statistic, error)
	DeleteByMatch(ctx context.Context, exec SQLExecutor, matchID int) error
}

type postgresStatisticRepository struct {
	db *sql.DB
}

func NewPostgresStatisticRepository(db *sql.DB) StatisticRepository {
	return &postgresStatisticRepository{db: db}
}

func (r *postgresStatisticRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const statisticColumns = `
	id, match_id, player_id, points, opponent_points, is_winner, is_player_a, created_at`

func (r *postgresStatisticRepository) scanStatistic(row interface{ Scan(...interface{}) error }) (*models.Statistic, error) {
	var s models.Statistic
	err := row.Scan(
		&s.ID, &s.MatchID, &s.PlayerID, &s.Points, &s.OpponentPoints,
		&s.IsWinner, &s.IsPlayerA, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStatisticNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *postgresStatisticRepository) Create(ctx context.Context, exec SQLExecutor, stat *models.Statistic) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO statistics
			(match_id, player_id, points, opponent_points, is_winner, is_player_a, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, created_at`
	return executor.QueryRowContext(ctx, query,
		stat.MatchID, stat.PlayerID, stat.Points, stat.OpponentPoints,
		stat.IsWinner, stat.IsPlayerA,
	).Scan(&stat.ID, &stat.CreatedAt)
}

func (r *postgresStatisticRepository) ListByMatch(ctx context.Context, exec SQLExecutor, matchID int) ([]*models.Statistic, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + statisticColumns + ` FROM statistics WHERE match_id = $1 ORDER BY id ASC`
	return r.queryStatistics(ctx, executor, query, matchID)
}

func (r *postgresStatisticRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Statistic, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT s.id, s.match_id, s.player_id, s.points, s.opponent_points,
		       s.is_winner, s.is_player_a, s.created_at
		FROM statistics s
		JOIN matches m ON m.id = s.match_id
		WHERE m.tournament_id = $1
		ORDER BY s.id ASC`
	return r.queryStatistics(ctx, executor, query, tournamentID)
}

func (r *postgresStatisticRepository) queryStatistics(ctx context.Context, executor SQLExecutor, query string, args ...interface{}) ([]*models.Statistic, error) {
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make([]*models.Statistic, 0)
	for rows.Next() {
		s, errScan := r.scanStatistic(rows)
		if errScan != nil {
			return nil, errScan
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

func (r *postgresStatisticRepository) DeleteByMatch(ctx context.Context, exec SQLExecutor, matchID int) error {
	executor := r.getExecutor(exec)
	_, err := executor.ExecContext(ctx, `DELETE FROM statistics WHERE match_id = $1`, matchID)
	return err
}
