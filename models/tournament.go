package models

import "time"

// TournamentType enumerates the supported competition formats.
type TournamentType string

const (
	TypeSingleElimination TournamentType = "single_elimination"
	TypeDoubleElimination TournamentType = "double_elimination"
	TypeSwissSystem       TournamentType = "swiss_system"
	TypeRoundRobin        TournamentType = "round_robin"
)

// TournamentStatus matches the ENUM in the database.
type TournamentStatus string

const (
	StatusDraft              TournamentStatus = "draft"
	StatusRegistrationOpen   TournamentStatus = "registration_open"
	StatusRegistrationClosed TournamentStatus = "registration_closed"
	StatusInProgress         TournamentStatus = "in_progress"
	StatusFinished           TournamentStatus = "finished"
	StatusCancelled          TournamentStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s TournamentStatus) IsTerminal() bool {
	return s == StatusFinished || s == StatusCancelled
}

type Tournament struct {
	ID                   int              `json:"id" db:"id"`
	Name                 string           `json:"name" db:"name"`
	Description          *string          `json:"description,omitempty" db:"description"`
	Location             *string          `json:"location,omitempty" db:"location"`
	Type                 TournamentType   `json:"type" db:"type"`
	Status               TournamentStatus `json:"status" db:"status"`
	IsFinished           bool             `json:"is_finished" db:"is_finished"`
	MinPlayers           int              `json:"min_players" db:"min_players"`
	MaxPlayers           *int             `json:"max_players,omitempty" db:"max_players"`
	CurrentRound         int              `json:"current_round" db:"current_round"`
	TotalRounds          int              `json:"total_rounds" db:"total_rounds"`
	StartDate            time.Time        `json:"start_date" db:"start_date"`
	RegistrationDeadline *time.Time       `json:"registration_deadline,omitempty" db:"registration_deadline"`
	RequiresApproval     bool             `json:"requires_approval" db:"requires_approval"`
	CheckInRequired      bool             `json:"check_in_required" db:"check_in_required"`
	Rules                *string          `json:"rules,omitempty" db:"rules"`
	AdditionalInfo       *string          `json:"additional_info,omitempty" db:"additional_info"`
	LogoKey              *string          `json:"-" db:"logo_key"`
	LogoURL              *string          `json:"logo_url,omitempty" db:"-"`
	CreatedAt            time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at" db:"updated_at"`

	// Опциональные связанные сущности (не мапятся напрямую)
	Registrations []Registration `json:"registrations,omitempty" db:"-"`
	Matches       []Match        `json:"matches,omitempty" db:"-"`
	Rankings      []Ranking      `json:"rankings,omitempty" db:"-"`
}

// MinPlayersOrDefault returns the configured minimum, never below two.
func (t *Tournament) MinPlayersOrDefault() int {
	if t.MinPlayers < 2 {
		return 2
	}
	return t.MinPlayers
}
