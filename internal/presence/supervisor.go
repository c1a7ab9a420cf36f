package presence

import (
	"sync"
	"time"

	"github.com/park285/cheese-lobby/internal/obslog"
	"go.uber.org/zap"
)

const DefaultGrace = 5 * time.Second

// Supervisor debounces transport drops: a disconnect only becomes final when the
// player has not reconnected within the grace period.
type Supervisor struct {
	grace    time.Duration
	onExpire func(playerID int64)

	mu     sync.Mutex
	seq    uint64
	timers map[int64]graceTimer
}

type graceTimer struct {
	gen   uint64
	timer *time.Timer
}

// New returns a supervisor calling onExpire, on its own goroutine, for each player whose
// grace period ran out.
func New(grace time.Duration, onExpire func(playerID int64)) *Supervisor {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Supervisor{grace: grace, onExpire: onExpire, timers: make(map[int64]graceTimer)}
}

func (s *Supervisor) Grace() time.Duration { return s.grace }

// Disconnected starts (or restarts) the grace timer for playerID.
func (s *Supervisor) Disconnected(playerID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.timers[playerID]; ok {
		prev.timer.Stop()
	}
	s.seq++
	gen := s.seq
	s.timers[playerID] = graceTimer{
		gen:   gen,
		timer: time.AfterFunc(s.grace, func() { s.expire(playerID, gen) }),
	}
	obslog.L().Debug("presence_grace_started", zap.Int64("player_id", playerID), zap.Duration("grace", s.grace))
}

// Reconnected cancels a pending grace timer. It reports whether one was pending,
// i.e. whether this connect resumes the previous session.
func (s *Supervisor) Reconnected(playerID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[playerID]
	if !ok {
		return false
	}
	t.timer.Stop()
	delete(s.timers, playerID)
	obslog.L().Debug("presence_resumed", zap.Int64("player_id", playerID))
	return true
}

// Pending reports whether playerID is inside a grace period.
func (s *Supervisor) Pending(playerID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[playerID]
	return ok
}

// Stop cancels every pending timer without firing callbacks.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.timer.Stop()
		delete(s.timers, id)
	}
}

func (s *Supervisor) expire(playerID int64, gen uint64) {
	s.mu.Lock()
	t, ok := s.timers[playerID]
	// a reconnect or a newer disconnect replaced this timer after it had already fired
	if !ok || t.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.timers, playerID)
	s.mu.Unlock()

	obslog.L().Info("presence_offline", zap.Int64("player_id", playerID))
	if s.onExpire != nil {
		s.onExpire(playerID)
	}
}
