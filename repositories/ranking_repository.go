package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/deckstorm/tcg-arena/models"
	"github.com/lib/pq"
)

var ErrRankingNotFound = errors.New("ranking not found")

// PlayerSeedStats агрегат по всем турнирам игрока, используется при посеве.
type PlayerSeedStats struct {
	PlayerID        int
	AvgPoints       float64
	AvgWinRate      float64
	TournamentCount int
}

type RankingRepository interface {
	Create(ctx context.Context, exec SQLExecutor, ranking *models.Ranking) error
	GetByTournamentAndPlayer(ctx context.Context, exec SQLExecutor, tournamentID, playerID int) (*models.Ranking, error)
	Update(ctx context.Context, exec SQLExecutor, ranking *models.Ranking) error
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Ranking, error)
	DeleteByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) error
	AggregateByPlayers(ctx context.Context, exec SQLExecutor, playerIDs []int) (map[int]PlayerSeedStats, error)
}

type postgresRankingRepository struct {
	db *sql.DB
}

func NewPostgresRankingRepository(db *sql.DB) RankingRepository {
	return &postgresRankingRepository{db: db}
}

func (r *postgresRankingRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const rankingColumns = `
	id, tournament_id, player_id, rank, points, wins, losses, draws, win_rate,
	created_at, updated_at`

func (r *postgresRankingRepository) scanRanking(row interface{ Scan(...interface{}) error }) (*models.Ranking, error) {
	var rk models.Ranking
	err := row.Scan(
		&rk.ID, &rk.TournamentID, &rk.PlayerID, &rk.Rank, &rk.Points,
		&rk.Wins, &rk.Losses, &rk.Draws, &rk.WinRate,
		&rk.CreatedAt, &rk.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRankingNotFound
		}
		return nil, err
	}
	return &rk, nil
}

func (r *postgresRankingRepository) Create(ctx context.Context, exec SQLExecutor, ranking *models.Ranking) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO rankings
			(tournament_id, player_id, rank, points, wins, losses, draws, win_rate, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING id, created_at, updated_at`
	return executor.QueryRowContext(ctx, query,
		ranking.TournamentID, ranking.PlayerID, ranking.Rank, ranking.Points,
		ranking.Wins, ranking.Losses, ranking.Draws, ranking.WinRate,
	).Scan(&ranking.ID, &ranking.CreatedAt, &ranking.UpdatedAt)
}

func (r *postgresRankingRepository) GetByTournamentAndPlayer(ctx context.Context, exec SQLExecutor, tournamentID, playerID int) (*models.Ranking, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + rankingColumns + ` FROM rankings WHERE tournament_id = $1 AND player_id = $2`
	return r.scanRanking(executor.QueryRowContext(ctx, query, tournamentID, playerID))
}

func (r *postgresRankingRepository) Update(ctx context.Context, exec SQLExecutor, ranking *models.Ranking) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE rankings SET
			rank = $1, points = $2, wins = $3, losses = $4, draws = $5,
			win_rate = $6, updated_at = NOW()
		WHERE id = $7`
	result, err := executor.ExecContext(ctx, query,
		ranking.Rank, ranking.Points, ranking.Wins, ranking.Losses,
		ranking.Draws, ranking.WinRate, ranking.ID,
	)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrRankingNotFound)
}

func (r *postgresRankingRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Ranking, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + rankingColumns + ` FROM rankings
		WHERE tournament_id = $1
		ORDER BY rank ASC, points DESC, win_rate DESC`

	rows, err := executor.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rankings := make([]*models.Ranking, 0)
	for rows.Next() {
		rk, errScan := r.scanRanking(rows)
		if errScan != nil {
			return nil, errScan
		}
		rankings = append(rankings, rk)
	}
	return rankings, rows.Err()
}

func (r *postgresRankingRepository) DeleteByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) error {
	executor := r.getExecutor(exec)
	_, err := executor.ExecContext(ctx, `DELETE FROM rankings WHERE tournament_id = $1`, tournamentID)
	return err
}

// AggregateByPlayers возвращает средние показатели игроков по завершённым
// турнирам. Игроки без истории в карту не попадают.
func (r *postgresRankingRepository) AggregateByPlayers(ctx context.Context, exec SQLExecutor, playerIDs []int) (map[int]PlayerSeedStats, error) {
	stats := make(map[int]PlayerSeedStats, len(playerIDs))
	if len(playerIDs) == 0 {
		return stats, nil
	}

	executor := r.getExecutor(exec)
	ids := make([]int64, len(playerIDs))
	for i, id := range playerIDs {
		ids[i] = int64(id)
	}
	query := `
		SELECT player_id,
		       AVG(points)   AS avg_points,
		       AVG(win_rate) AS avg_win_rate,
		       COUNT(id)     AS tournament_count
		FROM rankings
		WHERE player_id = ANY($1)
		GROUP BY player_id`

	rows, err := executor.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var s PlayerSeedStats
		if err := rows.Scan(&s.PlayerID, &s.AvgPoints, &s.AvgWinRate, &s.TournamentCount); err != nil {
			return nil, err
		}
		stats[s.PlayerID] = s
	}
	return stats, rows.Err()
}
