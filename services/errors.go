package services

import "errors"

// Общие ошибки сервисного слоя; HTTP-слой маппит их в статус-коды.
var (
	// Валидация и бизнес-правила
	ErrValidationFailed     = errors.New("validation failed")
	ErrPasswordTooShort     = errors.New("password is too short")
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrRegistrationNotOpen  = errors.New("tournament registration is not open")
	ErrTournamentFull       = errors.New("tournament registration is full")
	ErrInsufficientPlayers  = errors.New("not enough confirmed players to start the tournament")
	ErrDeadlinePassed       = errors.New("registration deadline has passed")
	ErrPlayerLimitsInvalid  = errors.New("min/max player configuration is invalid")
	ErrInvalidMatchData     = errors.New("match data is invalid")
	ErrPlayerNotRegistered  = errors.New("player is not a confirmed registrant of the tournament")
	ErrFormatUnsupported    = errors.New("tournament format is not supported")
	ErrSeedingMethodUnknown = errors.New("unknown seeding method")

	// Недопустимые переходы состояний
	ErrInvalidMatchTransition  = errors.New("match state does not allow this operation")
	ErrInvalidStatusTransition = errors.New("tournament status transition is not allowed")
	ErrTournamentNotInProgress = errors.New("tournament is not in progress")
	ErrRoundNotComplete        = errors.New("current round still has unfinished matches")

	// Конфликты
	ErrRegistrationConflict   = errors.New("player is already registered for this tournament")
	ErrTournamentNameConflict = errors.New("tournament name already exists")
	ErrUserEmailConflict      = errors.New("email address is already in use")
	ErrNextRoundExists        = errors.New("next round matches already exist")
	ErrAlreadyCheckedIn       = errors.New("player has already checked in")

	// Сущность не найдена
	ErrUserNotFound         = errors.New("user not found")
	ErrPlayerNotFound       = errors.New("player not found")
	ErrTournamentNotFound   = errors.New("tournament not found")
	ErrMatchNotFound        = errors.New("match not found")
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrRankingNotFound      = errors.New("ranking not found")
)
