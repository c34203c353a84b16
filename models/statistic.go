package models

import "time"

// Statistic is the per-player record of one finished match: own and opponent
// game points plus which seat the player occupied. Deleted when the match is
// reset.
type Statistic struct {
	ID             int       `json:"id" db:"id"`
	MatchID        int       `json:"match_id" db:"match_id"`
	PlayerID       int       `json:"player_id" db:"player_id"`
	Points         int       `json:"points" db:"points"`
	OpponentPoints int       `json:"opponent_points" db:"opponent_points"`
	IsWinner       bool      `json:"is_winner" db:"is_winner"`
	IsPlayerA      bool      `json:"is_player_a" db:"is_player_a"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
