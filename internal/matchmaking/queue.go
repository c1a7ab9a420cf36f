package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/cheese-lobby/internal/domain"
)

const (
	// MaxScoreGap is the widest point difference two players may be paired at.
	MaxScoreGap = 50
	// DefaultAcceptTimeout is how long a pending match waits for both accepts.
	DefaultAcceptTimeout = 30 * time.Second
)

var (
	ErrMatchNotFound  = errors.New("match not found")
	ErrNotParticipant = errors.New("player is not part of this match")
	ErrInPendingMatch = errors.New("player already has a pending match")
)

// ScoreSource provides the ranking score used for pairing.
type ScoreSource interface {
	GetStats(ctx context.Context, playerID int64) (*domain.PlayerStats, error)
}

type Entry struct {
	PlayerID   int64
	Score      int
	EnqueuedAt time.Time
}

// Match is a pairing awaiting both acceptances. Player1 is the player whose enqueue
// produced the pairing.
type Match struct {
	ID        string
	Player1   Entry
	Player2   Entry
	CreatedAt time.Time
	Accepted1 bool
	Accepted2 bool
}

// Opponent returns the other participant, or 0 when playerID is not part of m.
func (m *Match) Opponent(playerID int64) int64 {
	switch playerID {
	case m.Player1.PlayerID:
		return m.Player2.PlayerID
	case m.Player2.PlayerID:
		return m.Player1.PlayerID
	}
	return 0
}

func (m *Match) Has(playerID int64) bool { return m.Opponent(playerID) != 0 }

type AcceptResult struct {
	Ready     bool
	Player1ID int64
	Player2ID int64
	// Match is the finalized pairing, set once Ready.
	Match *Match
}

// Queue holds waiting players and pending matches under one lock, so a player can
// never be observed both queued and paired.
type Queue struct {
	scores  ScoreSource
	timeout time.Duration
	now     func() time.Time

	mu      sync.Mutex
	order   []int64 // insertion order; pairing scans it front to back
	entries map[int64]*Entry
	pending map[string]*Match
	byUser  map[int64]string
}

type Option func(*Queue)

func WithAcceptTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

func NewQueue(scores ScoreSource, opts ...Option) *Queue {
	q := &Queue{
		scores:  scores,
		timeout: DefaultAcceptTimeout,
		now:     time.Now,
		entries: make(map[int64]*Entry),
		pending: make(map[string]*Match),
		byUser:  make(map[int64]string),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue looks up the player's score (0 when unknown), inserts or refreshes their
// entry and tries to pair them. It returns the new match, or nil when the player
// stays queued.
func (q *Queue) Enqueue(ctx context.Context, playerID int64) (*Match, error) {
	score := 0
	if q.scores != nil {
		st, err := q.scores.GetStats(ctx, playerID)
		if err != nil {
			return nil, fmt.Errorf("load score: %w", err)
		}
		if st != nil {
			score = st.Points
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, busy := q.byUser[playerID]; busy {
		return nil, ErrInPendingMatch
	}
	e := Entry{PlayerID: playerID, Score: score, EnqueuedAt: q.now()}
	if cur, ok := q.entries[playerID]; ok {
		*cur = e
	} else {
		q.insertLocked(e)
	}
	return q.findMatchLocked(playerID), nil
}

// FindMatch retries pairing for an already queued player.
func (q *Queue) FindMatch(playerID int64) *Match {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.findMatchLocked(playerID)
}

// findMatchLocked takes the first queued entry within MaxScoreGap, not the closest one.
func (q *Queue) findMatchLocked(playerID int64) *Match {
	self, ok := q.entries[playerID]
	if !ok {
		return nil
	}
	for _, otherID := range q.order {
		if otherID == playerID {
			continue
		}
		other := q.entries[otherID]
		if abs(self.Score-other.Score) > MaxScoreGap {
			continue
		}
		m := &Match{
			ID:        uuid.NewString(),
			Player1:   *self,
			Player2:   *other,
			CreatedAt: q.now(),
		}
		q.removeLocked(playerID)
		q.removeLocked(otherID)
		q.pending[m.ID] = m
		q.byUser[playerID] = m.ID
		q.byUser[otherID] = m.ID
		cp := *m
		return &cp
	}
	return nil
}

// Leave removes the player from the queue. When the player is inside a pending match
// the match is dissolved, the opponent goes back to the queue and the dissolved match
// is returned so the opponent can be told.
func (q *Queue) Leave(playerID int64) *Match {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removeLocked(playerID)
	id, ok := q.byUser[playerID]
	if !ok {
		return nil
	}
	m := q.pending[id]
	q.dropPendingLocked(m)
	if m.Player1.PlayerID == playerID {
		q.insertLocked(m.Player2)
	} else {
		q.insertLocked(m.Player1)
	}
	cp := *m
	return &cp
}

// Accept records the caller's acceptance. Once both have accepted the match is removed
// and the result carries both player ids.
func (q *Queue) Accept(matchID string, playerID int64) (AcceptResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	m, ok := q.pending[matchID]
	if !ok {
		return AcceptResult{}, ErrMatchNotFound
	}
	switch playerID {
	case m.Player1.PlayerID:
		m.Accepted1 = true
	case m.Player2.PlayerID:
		m.Accepted2 = true
	default:
		return AcceptResult{}, ErrNotParticipant
	}
	if !m.Accepted1 || !m.Accepted2 {
		return AcceptResult{}, nil
	}
	q.dropPendingLocked(m)
	cp := *m
	return AcceptResult{Ready: true, Player1ID: m.Player1.PlayerID, Player2ID: m.Player2.PlayerID, Match: &cp}, nil
}

// Decline dissolves the match and puts both original entries back in the queue.
func (q *Queue) Decline(matchID string, playerID int64) (*Match, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	m, ok := q.pending[matchID]
	if !ok {
		return nil, ErrMatchNotFound
	}
	if !m.Has(playerID) {
		return nil, ErrNotParticipant
	}
	q.dropPendingLocked(m)
	q.insertLocked(m.Player1)
	q.insertLocked(m.Player2)
	cp := *m
	return &cp, nil
}

// Requeue puts entries back, e.g. when game creation for an accepted match failed.
func (q *Queue) Requeue(entries ...Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range entries {
		if _, busy := q.byUser[e.PlayerID]; busy {
			continue
		}
		q.insertLocked(e)
	}
}

// SweepExpired dissolves every pending match older than the accept timeout and
// returns them; both players of each go back to the queue as on decline.
func (q *Queue) SweepExpired(now time.Time) []*Match {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*Match
	for _, m := range q.pending {
		if now.Sub(m.CreatedAt) <= q.timeout {
			continue
		}
		q.dropPendingLocked(m)
		q.insertLocked(m.Player1)
		q.insertLocked(m.Player2)
		cp := *m
		out = append(out, &cp)
	}
	return out
}

// Pending returns a copy of the match, if still pending.
func (q *Queue) Pending(matchID string) (*Match, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	m, ok := q.pending[matchID]
	if !ok {
		return nil, false
	}
	cp := *m
	return &cp, true
}

// Entry returns the queued entry for playerID.
func (q *Queue) Entry(playerID int64) (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[playerID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (q *Queue) IsQueued(playerID int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.entries[playerID]
	return ok
}

func (q *Queue) InPending(playerID int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.byUser[playerID]
	return ok
}

func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) insertLocked(e Entry) {
	if cur, ok := q.entries[e.PlayerID]; ok {
		*cur = e
		return
	}
	cp := e
	q.entries[e.PlayerID] = &cp
	q.order = append(q.order, e.PlayerID)
}

func (q *Queue) removeLocked(playerID int64) {
	if _, ok := q.entries[playerID]; !ok {
		return
	}
	delete(q.entries, playerID)
	for i, id := range q.order {
		if id == playerID {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
}

func (q *Queue) dropPendingLocked(m *Match) {
	delete(q.pending, m.ID)
	delete(q.byUser, m.Player1.PlayerID)
	delete(q.byUser, m.Player2.PlayerID)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
