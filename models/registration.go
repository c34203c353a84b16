package models

import "time"

type RegistrationStatus string

const (
	RegistrationPending    RegistrationStatus = "pending"
	RegistrationConfirmed  RegistrationStatus = "confirmed"
	RegistrationCancelled  RegistrationStatus = "cancelled"
	RegistrationWaitlisted RegistrationStatus = "waitlisted"
	RegistrationEliminated RegistrationStatus = "eliminated"
)

// Registration links a player to a tournament. Unique per (tournament,
// player) pair; tournament-scoped player state (check-in, elimination) lives
// here, never on the Player itself.
type Registration struct {
	ID               int                `json:"id" db:"id"`
	TournamentID     int                `json:"tournament_id" db:"tournament_id"`
	PlayerID         int                `json:"player_id" db:"player_id"`
	Status           RegistrationStatus `json:"status" db:"status"`
	ConfirmationCode *string            `json:"confirmation_code,omitempty" db:"confirmation_code"`
	CheckedIn        bool               `json:"checked_in" db:"checked_in"`
	CheckedInAt      *time.Time         `json:"checked_in_at,omitempty" db:"checked_in_at"`
	EliminatedAt     *time.Time         `json:"eliminated_at,omitempty" db:"eliminated_at"`
	EliminatedRound  *int               `json:"eliminated_round,omitempty" db:"eliminated_round"`
	Notes            *string            `json:"notes,omitempty" db:"notes"`
	RegisteredAt     time.Time          `json:"registered_at" db:"registered_at"`
	UpdatedAt        time.Time          `json:"updated_at" db:"updated_at"`

	Player *Player `json:"player,omitempty" db:"-"`
}

// IsActive reports whether the registration still competes: confirmed and
// not yet eliminated.
func (r *Registration) IsActive() bool {
	return r.Status == RegistrationConfirmed && r.EliminatedAt == nil
}
