package services

import (
	"sync"
	"time"

	"github.com/deckstorm/tcg-arena/models"
)

// Clock выдаёт текущее время; в тестах подменяется фиксированным значением.
type Clock func() time.Time

// ProgressNotifier pushes live tournament events to subscribers. The
// websocket hub implements it; services treat it as optional.
type ProgressNotifier interface {
	NotifyTournament(tournamentID int, eventType string, payload interface{})
}

// TournamentLocker serializes mutating paths per tournament. Score reports
// and round advancement for the same tournament must not interleave, or two
// concurrent reports could each miss the other's result and leave a
// completed round undetected.
type TournamentLocker struct {
	locks sync.Map // tournament id -> *sync.Mutex
}

func NewTournamentLocker() *TournamentLocker {
	return &TournamentLocker{}
}

// Lock blocks until the tournament's mutex is held and returns the unlock.
func (l *TournamentLocker) Lock(tournamentID int) func() {
	v, _ := l.locks.LoadOrStore(tournamentID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func intPtr(v int) *int {
	return &v
}

// pointsTableFor returns the scoring weights for a format. Swiss and round
// robin award league style points; knockout formats only count advancement.
func pointsTableFor(t models.TournamentType) (win, draw, loss int) {
	switch t {
	case models.TypeSwissSystem, models.TypeRoundRobin:
		return 3, 1, 0
	default:
		return 1, 0, 0
	}
}
