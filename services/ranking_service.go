package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/deckstorm/tcg-arena/models"
	"github.com/deckstorm/tcg-arena/repositories"
)

// TieBreakers are secondary ranking signals. Both are fractions in [0, 1]:
// OpponentWinRate averages the win share of every opponent faced,
// GameWinRate is the player's own game points over all points contested.
type TieBreakers struct {
	OpponentWinRate float64 `json:"opponent_win_rate"`
	GameWinRate     float64 `json:"game_win_rate"`
}

type RankingService interface {
	ListTournamentRankings(ctx context.Context, tournamentID int) ([]*models.Ranking, error)
	// ApplyMatchResult bumps winner and loser rows right after a score
	// report. Rows are created on first touch with rank 0; the final ranks
	// come from RecomputeTournamentRankings.
	ApplyMatchResult(ctx context.Context, exec repositories.SQLExecutor, match *models.Match) error
	// RecomputeTournamentRankings rebuilds every ranking row of the
	// tournament by replaying its finished matches. Idempotent.
	RecomputeTournamentRankings(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) error
	CalculateTieBreakers(ctx context.Context, tournamentID int, playerIDs []int) (map[int]TieBreakers, error)
}

type rankingService struct {
	tournamentRepo   repositories.TournamentRepository
	matchRepo        repositories.MatchRepository
	registrationRepo repositories.RegistrationRepository
	rankingRepo      repositories.RankingRepository
}

func NewRankingService(
	tournamentRepo repositories.TournamentRepository,
	matchRepo repositories.MatchRepository,
	registrationRepo repositories.RegistrationRepository,
	rankingRepo repositories.RankingRepository,
) RankingService {
	return &rankingService{
		tournamentRepo:   tournamentRepo,
		matchRepo:        matchRepo,
		registrationRepo: registrationRepo,
		rankingRepo:      rankingRepo,
	}
}

func (s *rankingService) ListTournamentRankings(ctx context.Context, tournamentID int) ([]*models.Ranking, error) {
	if _, err := s.getTournament(ctx, nil, tournamentID); err != nil {
		return nil, err
	}
	return s.rankingRepo.ListByTournament(ctx, nil, tournamentID)
}

func (s *rankingService) ApplyMatchResult(ctx context.Context, exec repositories.SQLExecutor, match *models.Match) error {
	if match.WinnerID == nil {
		// draws are settled by the full recompute
		return nil
	}

	winner := *match.WinnerID
	if err := s.bump(ctx, exec, match.TournamentID, winner, func(r *models.Ranking) {
		r.Wins++
		r.Points += 3
	}); err != nil {
		return err
	}

	loserID := match.OpponentOf(winner)
	if loserID == nil {
		// bye, nobody to debit
		return nil
	}
	return s.bump(ctx, exec, match.TournamentID, *loserID, func(r *models.Ranking) {
		r.Losses++
	})
}

func (s *rankingService) bump(ctx context.Context, exec repositories.SQLExecutor, tournamentID, playerID int, apply func(*models.Ranking)) error {
	ranking, err := s.rankingRepo.GetByTournamentAndPlayer(ctx, exec, tournamentID, playerID)
	if err != nil {
		if !errors.Is(err, repositories.ErrRankingNotFound) {
			return err
		}
		ranking = &models.Ranking{TournamentID: tournamentID, PlayerID: playerID}
		apply(ranking)
		ranking.RecalculateWinRate()
		return s.rankingRepo.Create(ctx, exec, ranking)
	}

	apply(ranking)
	ranking.RecalculateWinRate()
	return s.rankingRepo.Update(ctx, exec, ranking)
}

type tally struct {
	points, wins, losses, draws int
}

func (s *rankingService) RecomputeTournamentRankings(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) error {
	tournament, err := s.getTournament(ctx, exec, tournamentID)
	if err != nil {
		return err
	}

	matches, err := s.matchRepo.ListByTournament(ctx, exec, tournamentID, repositories.MatchFilter{})
	if err != nil {
		return fmt.Errorf("list matches for ranking recompute: %w", err)
	}

	confirmed := models.RegistrationConfirmed
	registrations, err := s.registrationRepo.ListByTournament(ctx, exec, tournamentID, &confirmed)
	if err != nil {
		return fmt.Errorf("list registrations for ranking recompute: %w", err)
	}

	winPts, drawPts, lossPts := pointsTableFor(tournament.Type)

	tallies := make(map[int]*tally, len(registrations))
	touch := func(playerID int) *tally {
		t, ok := tallies[playerID]
		if !ok {
			t = &tally{}
			tallies[playerID] = t
		}
		return t
	}
	for _, reg := range registrations {
		touch(reg.PlayerID)
	}

	for _, m := range matches {
		if !m.Status.IsComplete() || m.FinishedAt == nil {
			continue
		}
		switch {
		case m.WinnerID != nil:
			w := touch(*m.WinnerID)
			w.wins++
			w.points += winPts
			if loserID := m.OpponentOf(*m.WinnerID); loserID != nil {
				l := touch(*loserID)
				l.losses++
				l.points += lossPts
			}
		case m.PlayerAID != nil && m.PlayerBID != nil:
			// draw
			for _, pid := range []int{*m.PlayerAID, *m.PlayerBID} {
				t := touch(pid)
				t.draws++
				t.points += drawPts
			}
		}
	}

	type row struct {
		playerID int
		tally    *tally
		winRate  float64
	}
	rows := make([]row, 0, len(tallies))
	for pid, t := range tallies {
		games := t.wins + t.losses + t.draws
		winRate := 0.0
		if games > 0 {
			winRate = float64(t.wins) / float64(games) * 100
		}
		rows = append(rows, row{playerID: pid, tally: t, winRate: winRate})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.tally.points != b.tally.points {
			return a.tally.points > b.tally.points
		}
		if a.winRate != b.winRate {
			return a.winRate > b.winRate
		}
		if a.tally.wins != b.tally.wins {
			return a.tally.wins > b.tally.wins
		}
		return a.playerID < b.playerID
	})

	for i, r := range rows {
		if err := s.upsert(ctx, exec, tournamentID, r.playerID, i+1, r.tally, r.winRate); err != nil {
			return err
		}
	}
	return nil
}

func (s *rankingService) upsert(ctx context.Context, exec repositories.SQLExecutor, tournamentID, playerID, rank int, t *tally, winRate float64) error {
	ranking, err := s.rankingRepo.GetByTournamentAndPlayer(ctx, exec, tournamentID, playerID)
	if err != nil {
		if !errors.Is(err, repositories.ErrRankingNotFound) {
			return err
		}
		ranking = &models.Ranking{TournamentID: tournamentID, PlayerID: playerID}
	}

	ranking.Rank = rank
	ranking.Points = t.points
	ranking.Wins = t.wins
	ranking.Losses = t.losses
	ranking.Draws = t.draws
	ranking.WinRate = winRate

	if ranking.ID == 0 {
		return s.rankingRepo.Create(ctx, exec, ranking)
	}
	return s.rankingRepo.Update(ctx, exec, ranking)
}

func (s *rankingService) CalculateTieBreakers(ctx context.Context, tournamentID int, playerIDs []int) (map[int]TieBreakers, error) {
	matches, err := s.matchRepo.ListByTournament(ctx, nil, tournamentID, repositories.MatchFilter{})
	if err != nil {
		return nil, fmt.Errorf("list matches for tie breakers: %w", err)
	}

	finished := make([]*models.Match, 0, len(matches))
	winShare := make(map[int]*struct{ wins, games int })
	for _, m := range matches {
		if !m.Status.IsComplete() || m.FinishedAt == nil {
			continue
		}
		finished = append(finished, m)
		for _, pid := range []*int{m.PlayerAID, m.PlayerBID} {
			if pid == nil {
				continue
			}
			t, ok := winShare[*pid]
			if !ok {
				t = &struct{ wins, games int }{}
				winShare[*pid] = t
			}
			t.games++
			if m.WinnerID != nil && *m.WinnerID == *pid {
				t.wins++
			}
		}
	}

	result := make(map[int]TieBreakers, len(playerIDs))
	for _, pid := range playerIDs {
		var opponentRates []float64
		var ownPoints, totalPoints int

		for _, m := range finished {
			if !m.Involves(pid) {
				continue
			}
			if oppID := m.OpponentOf(pid); oppID != nil {
				if t, ok := winShare[*oppID]; ok && t.games > 0 {
					opponentRates = append(opponentRates, float64(t.wins)/float64(t.games))
				}
			}
			if m.PlayerAID != nil && *m.PlayerAID == pid {
				ownPoints += m.PlayerAScore
			} else {
				ownPoints += m.PlayerBScore
			}
			totalPoints += m.PlayerAScore + m.PlayerBScore
		}

		var tb TieBreakers
		if len(opponentRates) > 0 {
			sum := 0.0
			for _, r := range opponentRates {
				sum += r
			}
			tb.OpponentWinRate = sum / float64(len(opponentRates))
		}
		if totalPoints > 0 {
			tb.GameWinRate = float64(ownPoints) / float64(totalPoints)
		}
		result[pid] = tb
	}
	return result, nil
}

func (s *rankingService) getTournament(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Tournament, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, exec, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return tournament, nil
}
