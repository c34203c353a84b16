package models

import "time"

// Ranking is one standings row per (tournament, player). Recomputed
// idempotently from finished matches; Rank 0 means "not yet ranked".
type Ranking struct {
	ID           int       `json:"id" db:"id"`
	TournamentID int       `json:"tournament_id" db:"tournament_id"`
	PlayerID     int       `json:"player_id" db:"player_id"`
	Rank         int       `json:"rank" db:"rank"`
	Points       int       `json:"points" db:"points"`
	Wins         int       `json:"wins" db:"wins"`
	Losses       int       `json:"losses" db:"losses"`
	Draws        int       `json:"draws" db:"draws"`
	WinRate      float64   `json:"win_rate" db:"win_rate"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`

	Player *Player `json:"player,omitempty" db:"-"`
}

// GamesPlayed is the total of decided and drawn games.
func (r *Ranking) GamesPlayed() int {
	return r.Wins + r.Losses + r.Draws
}

// RecalculateWinRate refreshes WinRate from the current tallies, as a
// percentage. Zero games means zero percent.
func (r *Ranking) RecalculateWinRate() {
	total := r.GamesPlayed()
	if total == 0 {
		r.WinRate = 0
		return
	}
	r.WinRate = float64(r.Wins) / float64(total) * 100
}
