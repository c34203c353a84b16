package models

import "time"

type MatchStatus string

const (
	MatchScheduled  MatchStatus = "scheduled"
	MatchInProgress MatchStatus = "in_progress"
	MatchFinished   MatchStatus = "finished"
	MatchForfeit    MatchStatus = "forfeit"
	MatchCancelled  MatchStatus = "cancelled"
)

// IsComplete reports whether the match has produced a result.
func (s MatchStatus) IsComplete() bool {
	return s == MatchFinished || s == MatchForfeit
}

type MatchPhase string

const (
	PhaseQualification MatchPhase = "qualification"
	PhaseQuarterFinal  MatchPhase = "quarter_final"
	PhaseSemiFinal     MatchPhase = "semi_final"
	PhaseFinal         MatchPhase = "final"
)

// Match is a single pairing inside a tournament. Either player slot may be
// empty before assignment (byes, placeholder nodes of an elimination
// bracket). Winner stays nil on a draw.
type Match struct {
	ID            int         `json:"id" db:"id"`
	TournamentID  int         `json:"tournament_id" db:"tournament_id"`
	PlayerAID     *int        `json:"player_a_id,omitempty" db:"player_a_id"`
	PlayerBID     *int        `json:"player_b_id,omitempty" db:"player_b_id"`
	WinnerID      *int        `json:"winner_id,omitempty" db:"winner_id"`
	Round         int         `json:"round" db:"round"`
	Phase         MatchPhase  `json:"phase" db:"phase"`
	Status        MatchStatus `json:"status" db:"status"`
	PlayerAScore  int         `json:"player_a_score" db:"player_a_score"`
	PlayerBScore  int         `json:"player_b_score" db:"player_b_score"`
	ScheduledDate time.Time   `json:"scheduled_date" db:"scheduled_date"`
	StartedAt     *time.Time  `json:"started_at,omitempty" db:"started_at"`
	FinishedAt    *time.Time  `json:"finished_at,omitempty" db:"finished_at"`
	Notes         *string     `json:"notes,omitempty" db:"notes"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at" db:"updated_at"`

	PlayerA *Player `json:"player_a,omitempty" db:"-"`
	PlayerB *Player `json:"player_b,omitempty" db:"-"`
}

// OpponentOf returns the other player slot, or nil for a bye.
func (m *Match) OpponentOf(playerID int) *int {
	if m.PlayerAID != nil && *m.PlayerAID == playerID {
		return m.PlayerBID
	}
	if m.PlayerBID != nil && *m.PlayerBID == playerID {
		return m.PlayerAID
	}
	return nil
}

// Involves reports whether playerID occupies either slot.
func (m *Match) Involves(playerID int) bool {
	return (m.PlayerAID != nil && *m.PlayerAID == playerID) ||
		(m.PlayerBID != nil && *m.PlayerBID == playerID)
}
