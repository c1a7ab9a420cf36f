package lobby

import (
	"sync"
	"time"

	"github.com/park285/cheese-lobby/internal/domain"
)

// gameClock tracks the time budget of the side to move. The remaining pool only
// applies when the game has an initial time; the per-move cap applies on its own.
type gameClock struct {
	mu        sync.Mutex
	settings  domain.TimeSettings
	remaining map[domain.Color]time.Duration
	turn      domain.Color
	turnStart time.Time
	timer     *time.Timer
	stopped   bool

	now    func() time.Time
	onFlag func(domain.Color)
}

func newGameClock(ts domain.TimeSettings, now func() time.Time, onFlag func(domain.Color)) *gameClock {
	initial := time.Duration(ts.InitialSec) * time.Second
	cl := &gameClock{
		settings:  ts,
		remaining: map[domain.Color]time.Duration{domain.White: initial, domain.Black: initial},
		turn:      domain.White,
		turnStart: now(),
		now:       now,
		onFlag:    onFlag,
	}
	cl.mu.Lock()
	cl.armLocked()
	cl.mu.Unlock()
	return cl
}

func (cl *gameClock) budgetLocked(color domain.Color) time.Duration {
	budget := time.Duration(-1)
	if cl.settings.InitialSec > 0 {
		budget = cl.remaining[color]
	}
	if cl.settings.PerMoveMaxSec > 0 {
		perMove := time.Duration(cl.settings.PerMoveMaxSec) * time.Second
		if budget < 0 || perMove < budget {
			budget = perMove
		}
	}
	return budget
}

func (cl *gameClock) armLocked() {
	if cl.timer != nil {
		cl.timer.Stop()
		cl.timer = nil
	}
	budget := cl.budgetLocked(cl.turn)
	if cl.stopped || budget < 0 {
		return
	}
	color := cl.turn
	cl.timer = time.AfterFunc(budget, func() { cl.onFlag(color) })
}

// Switch charges the elapsed turn to mover, adds the increment and starts the
// opponent's turn.
func (cl *gameClock) Switch(mover domain.Color) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.stopped || mover != cl.turn {
		return
	}
	now := cl.now()
	if cl.settings.InitialSec > 0 {
		left := cl.remaining[mover] - now.Sub(cl.turnStart)
		if left < 0 {
			left = 0
		}
		cl.remaining[mover] = left + time.Duration(cl.settings.IncrementSec)*time.Second
	}
	cl.turn = mover.Opposite()
	cl.turnStart = now
	cl.armLocked()
}

// Expired reports whether color is on move and has used up its budget.
func (cl *gameClock) Expired(color domain.Color) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.stopped || color != cl.turn {
		return false
	}
	budget := cl.budgetLocked(color)
	return budget >= 0 && cl.now().Sub(cl.turnStart) >= budget
}

// Remaining returns color's pool, charging the running turn.
func (cl *gameClock) Remaining(color domain.Color) time.Duration {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	left := cl.remaining[color]
	if color == cl.turn && !cl.stopped {
		left -= cl.now().Sub(cl.turnStart)
	}
	if left < 0 {
		return 0
	}
	return left
}

func (cl *gameClock) Stop() {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.stopped = true
	if cl.timer != nil {
		cl.timer.Stop()
		cl.timer = nil
	}
}
