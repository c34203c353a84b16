package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/deckstorm/tcg-arena/models"
	"github.com/deckstorm/tcg-arena/repositories"
)

// TransitionValidation is the non-mutating answer to "may this tournament
// move to the target status". Errors block the transition, warnings do not.
type TransitionValidation struct {
	CanTransition bool     `json:"can_transition"`
	Errors        []string `json:"errors"`
	Warnings      []string `json:"warnings"`
}

// TransitionRuleView describes one edge of the status graph for UI use.
type TransitionRuleView struct {
	From          models.TournamentStatus `json:"from"`
	To            models.TournamentStatus `json:"to"`
	Preconditions []string                `json:"preconditions"`
}

type TournamentStateService interface {
	ValidateTransition(ctx context.Context, tournamentID int, target models.TournamentStatus) (*TransitionValidation, error)
	// Transition re-validates and, only if valid, mutates the status and
	// applies the transition's side effects inside one transaction.
	Transition(ctx context.Context, tournamentID int, target models.TournamentStatus, reason *string) (*models.Tournament, error)
	// TransitionTx is Transition running under a caller supplied executor,
	// for orchestration paths that already hold a transaction.
	TransitionTx(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament, target models.TournamentStatus, reason *string) error
	AvailableTransitions(ctx context.Context, tournamentID int) ([]models.TournamentStatus, error)
	// StateHistory reconstructs the linear path the tournament has taken to
	// its current status.
	StateHistory(ctx context.Context, tournamentID int) ([]models.TournamentStatus, error)
	TransitionTable() []TransitionRuleView
}

// checkFunc collects precondition violations; it never mutates.
type checkFunc func(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament) (errs []string, warnings []string, err error)

type transitionRule struct {
	from          models.TournamentStatus
	to            models.TournamentStatus
	preconditions []string
	check         checkFunc
}

type tournamentStateService struct {
	txManager        repositories.TxManager
	tournamentRepo   repositories.TournamentRepository
	matchRepo        repositories.MatchRepository
	registrationRepo repositories.RegistrationRepository
	clock            Clock

	rules []transitionRule
}

func NewTournamentStateService(
	txManager repositories.TxManager,
	tournamentRepo repositories.TournamentRepository,
	matchRepo repositories.MatchRepository,
	registrationRepo repositories.RegistrationRepository,
	clock Clock,
) TournamentStateService {
	s := &tournamentStateService{
		txManager:        txManager,
		tournamentRepo:   tournamentRepo,
		matchRepo:        matchRepo,
		registrationRepo: registrationRepo,
		clock:            clock,
	}
	s.rules = []transitionRule{
		{
			from: models.StatusDraft,
			to:   models.StatusRegistrationOpen,
			preconditions: []string{
				"registration deadline is set and in the future",
				"min players is at least 2",
				"max players, when set, is not below min players",
			},
			check: s.checkOpenRegistration,
		},
		{
			from: models.StatusRegistrationOpen,
			to:   models.StatusRegistrationClosed,
		},
		{
			from: models.StatusRegistrationClosed,
			to:   models.StatusRegistrationOpen,
			preconditions: []string{
				"registration deadline has not passed",
			},
			check: s.checkReopenRegistration,
		},
		{
			from: models.StatusRegistrationClosed,
			to:   models.StatusInProgress,
			preconditions: []string{
				"confirmed player count reaches min players",
				"all required players are checked in",
			},
			check: s.checkStart,
		},
		{
			from: models.StatusInProgress,
			to:   models.StatusFinished,
			preconditions: []string{
				"no matches remain scheduled",
				"the last round is completed",
			},
			check: s.checkFinish,
		},
	}
	return s
}

func (s *tournamentStateService) ruleFor(from, to models.TournamentStatus) *transitionRule {
	if to == models.StatusCancelled && !from.IsTerminal() {
		return &transitionRule{from: from, to: models.StatusCancelled}
	}
	for i := range s.rules {
		if s.rules[i].from == from && s.rules[i].to == to {
			return &s.rules[i]
		}
	}
	return nil
}

func (s *tournamentStateService) validate(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament, target models.TournamentStatus) (*TransitionValidation, error) {
	v := &TransitionValidation{Errors: []string{}, Warnings: []string{}}

	rule := s.ruleFor(t.Status, target)
	if rule == nil {
		v.Errors = append(v.Errors, fmt.Sprintf("transition from %s to %s is not allowed", t.Status, target))
		return v, nil
	}

	if rule.check != nil {
		errs, warnings, err := rule.check(ctx, exec, t)
		if err != nil {
			return nil, err
		}
		v.Errors = append(v.Errors, errs...)
		v.Warnings = append(v.Warnings, warnings...)
	}

	v.CanTransition = len(v.Errors) == 0
	return v, nil
}

func (s *tournamentStateService) ValidateTransition(ctx context.Context, tournamentID int, target models.TournamentStatus) (*TransitionValidation, error) {
	tournament, err := s.getTournament(ctx, nil, tournamentID)
	if err != nil {
		return nil, err
	}
	return s.validate(ctx, nil, tournament, target)
}

func (s *tournamentStateService) Transition(ctx context.Context, tournamentID int, target models.TournamentStatus, reason *string) (*models.Tournament, error) {
	var tournament *models.Tournament
	err := s.txManager.WithinTx(ctx, func(tx repositories.SQLExecutor) error {
		var errTx error
		tournament, errTx = s.getTournament(ctx, tx, tournamentID)
		if errTx != nil {
			return errTx
		}
		return s.TransitionTx(ctx, tx, tournament, target, reason)
	})
	if err != nil {
		return nil, err
	}
	return tournament, nil
}

func (s *tournamentStateService) TransitionTx(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament, target models.TournamentStatus, reason *string) error {
	v, err := s.validate(ctx, exec, tournament, target)
	if err != nil {
		return err
	}
	if !v.CanTransition {
		return fmt.Errorf("%w: %s -> %s: %v", ErrInvalidStatusTransition, tournament.Status, target, v.Errors)
	}

	tournament.Status = target
	switch target {
	case models.StatusInProgress:
		tournament.CurrentRound = 1
	case models.StatusFinished:
		tournament.IsFinished = true
	case models.StatusCancelled:
		if reason != nil && *reason != "" {
			note := "cancelled: " + *reason
			if tournament.AdditionalInfo != nil && *tournament.AdditionalInfo != "" {
				note = *tournament.AdditionalInfo + "\n" + note
			}
			tournament.AdditionalInfo = &note
		}
	}

	return s.tournamentRepo.Update(ctx, exec, tournament)
}

func (s *tournamentStateService) AvailableTransitions(ctx context.Context, tournamentID int) ([]models.TournamentStatus, error) {
	tournament, err := s.getTournament(ctx, nil, tournamentID)
	if err != nil {
		return nil, err
	}

	targets := make([]models.TournamentStatus, 0, 2)
	for _, rule := range s.rules {
		if rule.from == tournament.Status {
			targets = append(targets, rule.to)
		}
	}
	if !tournament.Status.IsTerminal() {
		targets = append(targets, models.StatusCancelled)
	}
	return targets, nil
}

var statusPath = []models.TournamentStatus{
	models.StatusDraft,
	models.StatusRegistrationOpen,
	models.StatusRegistrationClosed,
	models.StatusInProgress,
	models.StatusFinished,
}

func (s *tournamentStateService) StateHistory(ctx context.Context, tournamentID int) ([]models.TournamentStatus, error) {
	tournament, err := s.getTournament(ctx, nil, tournamentID)
	if err != nil {
		return nil, err
	}

	history := make([]models.TournamentStatus, 0, len(statusPath))
	for _, status := range statusPath {
		history = append(history, status)
		if status == tournament.Status {
			return history, nil
		}
	}
	// cancelled tournaments: the linear path is unknowable, report the
	// terminal state only
	return []models.TournamentStatus{tournament.Status}, nil
}

func (s *tournamentStateService) TransitionTable() []TransitionRuleView {
	table := make([]TransitionRuleView, 0, len(s.rules)+1)
	for _, rule := range s.rules {
		pre := rule.preconditions
		if pre == nil {
			pre = []string{}
		}
		table = append(table, TransitionRuleView{From: rule.from, To: rule.to, Preconditions: pre})
	}
	for _, from := range statusPath[:len(statusPath)-1] {
		table = append(table, TransitionRuleView{From: from, To: models.StatusCancelled, Preconditions: []string{}})
	}
	return table
}

func (s *tournamentStateService) checkOpenRegistration(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament) ([]string, []string, error) {
	var errs, warnings []string

	if t.RegistrationDeadline == nil {
		errs = append(errs, "registration deadline is not set")
	} else if !t.RegistrationDeadline.After(s.clock()) {
		errs = append(errs, "registration deadline is in the past")
	}
	if t.MinPlayers < 2 {
		errs = append(errs, fmt.Sprintf("min players must be at least 2, got %d", t.MinPlayers))
	}
	if t.MaxPlayers != nil && *t.MaxPlayers < t.MinPlayers {
		errs = append(errs, fmt.Sprintf("max players %d is below min players %d", *t.MaxPlayers, t.MinPlayers))
	}
	return errs, warnings, nil
}

func (s *tournamentStateService) checkReopenRegistration(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament) ([]string, []string, error) {
	if t.RegistrationDeadline != nil && !t.RegistrationDeadline.After(s.clock()) {
		return []string{"registration deadline has passed"}, nil, nil
	}
	return nil, nil, nil
}

func (s *tournamentStateService) checkStart(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament) ([]string, []string, error) {
	confirmed := models.RegistrationConfirmed
	registrations, err := s.registrationRepo.ListByTournament(ctx, exec, t.ID, &confirmed)
	if err != nil {
		return nil, nil, fmt.Errorf("list registrations: %w", err)
	}

	eligible := 0
	notCheckedIn := 0
	for _, reg := range registrations {
		if t.CheckInRequired && !reg.CheckedIn {
			notCheckedIn++
			continue
		}
		eligible++
	}

	var errs, warnings []string
	minPlayers := t.MinPlayersOrDefault()
	if eligible < minPlayers {
		errs = append(errs, fmt.Sprintf("need at least %d eligible players, have %d", minPlayers, eligible))
	}
	if t.CheckInRequired && notCheckedIn > 0 {
		errs = append(errs, fmt.Sprintf("%d confirmed players have not checked in", notCheckedIn))
	}
	return errs, warnings, nil
}

func (s *tournamentStateService) checkFinish(ctx context.Context, exec repositories.SQLExecutor, t *models.Tournament) ([]string, []string, error) {
	scheduled := models.MatchScheduled
	pending, err := s.matchRepo.ListByTournament(ctx, exec, t.ID, repositories.MatchFilter{Status: &scheduled})
	if err != nil {
		return nil, nil, fmt.Errorf("list scheduled matches: %w", err)
	}

	var errs, warnings []string
	if len(pending) > 0 {
		errs = append(errs, fmt.Sprintf("%d matches are still scheduled", len(pending)))
	}

	switch t.Type {
	case models.TypeSingleElimination, models.TypeDoubleElimination:
		confirmed := models.RegistrationConfirmed
		registrations, errList := s.registrationRepo.ListByTournament(ctx, exec, t.ID, &confirmed)
		if errList != nil {
			return nil, nil, fmt.Errorf("list registrations: %w", errList)
		}
		active := 0
		for _, reg := range registrations {
			if reg.IsActive() {
				active++
			}
		}
		if active > 1 {
			errs = append(errs, fmt.Sprintf("%d players remain uneliminated", active))
		}
	default:
		if t.CurrentRound < t.TotalRounds {
			errs = append(errs, fmt.Sprintf("round %d of %d is not the last", t.CurrentRound, t.TotalRounds))
		}
	}
	return errs, warnings, nil
}

func (s *tournamentStateService) getTournament(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Tournament, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, exec, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return tournament, nil
}
