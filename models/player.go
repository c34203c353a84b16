package models

import "time"

// Player is the stable competitive identity tied to a user account. It
// carries no tournament-specific state; that lives on Registration and
// Ranking rows.
type Player struct {
	ID          int       `json:"id" db:"id"`
	UserID      int       `json:"user_id" db:"user_id"`
	DisplayName string    `json:"display_name" db:"display_name"`
	AvatarKey   *string   `json:"-" db:"avatar_key"`
	AvatarURL   *string   `json:"avatar_url,omitempty" db:"-"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`

	User *User `json:"user,omitempty" db:"-"`
}
