package lobby

import (
	"sync"
	"testing"
	"time"

	"github.com/park285/cheese-lobby/internal/domain"
	"github.com/stretchr/testify/assert"
)

type fakeNow struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeNow) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeNow) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestGameClockIncrementAndExpiry(t *testing.T) {
	fn := &fakeNow{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	cl := newGameClock(domain.TimeSettings{InitialSec: 300, IncrementSec: 5}, fn.Now, func(domain.Color) {})
	defer cl.Stop()

	fn.Advance(20 * time.Second)
	assert.Equal(t, 280*time.Second, cl.Remaining(domain.White))
	cl.Switch(domain.White)
	assert.Equal(t, 285*time.Second, cl.Remaining(domain.White))

	// a stale switch for the side not on move changes nothing
	cl.Switch(domain.White)
	assert.Equal(t, 285*time.Second, cl.Remaining(domain.White))

	fn.Advance(300 * time.Second)
	assert.True(t, cl.Expired(domain.Black))
	assert.False(t, cl.Expired(domain.White))
	assert.Zero(t, cl.Remaining(domain.Black))
}

func TestGameClockPerMoveCap(t *testing.T) {
	fn := &fakeNow{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	cl := newGameClock(domain.TimeSettings{InitialSec: 600, PerMoveMaxSec: 30}, fn.Now, func(domain.Color) {})
	defer cl.Stop()

	fn.Advance(29 * time.Second)
	assert.False(t, cl.Expired(domain.White))
	fn.Advance(time.Second)
	assert.True(t, cl.Expired(domain.White))

	cl.Stop()
	assert.False(t, cl.Expired(domain.White))
}

func TestGameClockFiresOnFlag(t *testing.T) {
	flagged := make(chan domain.Color, 1)
	cl := newGameClock(domain.TimeSettings{PerMoveMaxSec: 1}, time.Now, func(c domain.Color) { flagged <- c })
	defer cl.Stop()
	cl.Switch(domain.White)

	select {
	case c := <-flagged:
		assert.Equal(t, domain.Black, c)
	case <-time.After(3 * time.Second):
		t.Fatal("clock never flagged")
	}
}
