package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/park285/cheese-lobby/internal/domain"
)

// Memory is an in-process Store used for development and tests when no database is configured.
type Memory struct {
	mu sync.RWMutex

	nextRoomID int64
	nextGameID int64

	players map[int64]*domain.Player
	stats   map[int64]*domain.PlayerStats
	rooms   map[int64]*domain.Room
	codes   map[string]int64
	games   map[int64]*domain.Game
	moves   map[int64][]*domain.Move // gameID -> moves in append order
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		players: make(map[int64]*domain.Player),
		stats:   make(map[int64]*domain.PlayerStats),
		rooms:   make(map[int64]*domain.Room),
		codes:   make(map[string]int64),
		games:   make(map[int64]*domain.Game),
		moves:   make(map[int64][]*domain.Move),
	}
}

func (m *Memory) GetPlayer(ctx context.Context, id int64) (*domain.Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.players[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) UpsertPlayer(ctx context.Context, p *domain.Player) error {
	if p == nil {
		return nil
	}
	cp := *p
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.mu.Lock()
	m.players[cp.ID] = &cp
	if _, ok := m.stats[cp.ID]; !ok {
		m.stats[cp.ID] = &domain.PlayerStats{PlayerID: cp.ID}
	}
	m.mu.Unlock()
	return nil
}

func (m *Memory) SetPlayerStatus(ctx context.Context, id int64, status domain.PlayerStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[id]
	if !ok {
		p = &domain.Player{ID: id, CreatedAt: time.Now()}
		m.players[id] = p
	}
	p.Status = status
	return nil
}

// SetStats seeds a player's stats row; used by tests and local fixtures.
func (m *Memory) SetStats(s domain.PlayerStats) {
	m.mu.Lock()
	m.stats[s.PlayerID] = &s
	m.mu.Unlock()
}

func (m *Memory) GetStats(ctx context.Context, playerID int64) (*domain.PlayerStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stats[playerID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) ApplyResult(ctx context.Context, playerID int64, outcome domain.StatOutcome, points int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stats[playerID]
	if !ok {
		s = &domain.PlayerStats{PlayerID: playerID}
		m.stats[playerID] = s
	}
	s.Apply(outcome, points)
	return nil
}

func (m *Memory) CreateRoom(ctx context.Context, r *domain.Room) (*domain.Room, error) {
	if r == nil {
		return nil, ErrRoomNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	if cp.Code == "" {
		for i := 0; i < 5; i++ {
			c, err := NewRoomCode()
			if err != nil {
				return nil, err
			}
			if _, taken := m.codes[c]; !taken {
				cp.Code = c
				break
			}
		}
		if cp.Code == "" {
			return nil, ErrRoomCodeTaken
		}
	} else if _, taken := m.codes[cp.Code]; taken {
		return nil, ErrRoomCodeTaken
	}
	m.nextRoomID++
	cp.ID = m.nextRoomID
	if cp.Status == "" {
		cp.Status = domain.RoomWaiting
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.rooms[cp.ID] = &cp
	m.codes[cp.Code] = cp.ID
	out := cp
	return &out, nil
}

func (m *Memory) GetRoom(ctx context.Context, id int64) (*domain.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	if !ok {
		return nil, nil
	}
	return r.Clone(), nil
}

func (m *Memory) GetRoomByCode(ctx context.Context, code string) (*domain.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.codes[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return nil, nil
	}
	return m.rooms[id].Clone(), nil
}

func (m *Memory) UpdateRoom(ctx context.Context, r *domain.Room) error {
	if r == nil {
		return ErrRoomNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[r.ID]; !ok {
		return ErrRoomNotFound
	}
	m.rooms[r.ID] = r.Clone()
	return nil
}

func (m *Memory) DeleteRoom(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[id]; ok {
		delete(m.codes, r.Code)
		delete(m.rooms, id)
	}
	return nil
}

func (m *Memory) ListWaitingRooms(ctx context.Context) ([]*domain.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Room, 0)
	for _, r := range m.rooms {
		if r.Status == domain.RoomWaiting {
			out = append(out, r.Clone())
		}
	}
	sortRoomsNewestFirst(out)
	return out, nil
}

func sortRoomsNewestFirst(rooms []*domain.Room) {
	sort.Slice(rooms, func(i, j int) bool {
		if !rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
		}
		return rooms[i].ID > rooms[j].ID
	})
}

func (m *Memory) CreateGame(ctx context.Context, g *domain.Game) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextGameID++
	cp := *g
	cp.ID = m.nextGameID
	if cp.Status == "" {
		cp.Status = domain.GamePlaying
	}
	if cp.StartedAt.IsZero() {
		cp.StartedAt = time.Now()
	}
	m.games[cp.ID] = &cp
	return cp.ID, nil
}

func (m *Memory) GetGame(ctx context.Context, id int64) (*domain.Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[id]
	if !ok {
		return nil, nil
	}
	cp := *g
	return &cp, nil
}

func (m *Memory) ActiveGameForPlayer(ctx context.Context, playerID int64) (*domain.Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *domain.Game
	for _, g := range m.games {
		if g.Status != domain.GamePlaying {
			continue
		}
		if g.WhiteID != playerID && g.BlackID != playerID {
			continue
		}
		if latest == nil || g.ID > latest.ID {
			latest = g
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (m *Memory) FinishGame(ctx context.Context, id int64, outcome domain.Outcome) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[id]
	if !ok || g.Status != domain.GamePlaying {
		return false, nil
	}
	g.Status = domain.GameFinished
	g.Result = outcome.Result
	g.Reason = outcome.Reason
	g.WhitePointChange = outcome.WhiteDelta
	g.BlackPointChange = outcome.BlackDelta
	g.EndedAt = outcome.EndedAt
	if g.EndedAt.IsZero() {
		g.EndedAt = time.Now()
	}
	return true, nil
}

func (m *Memory) AppendMove(ctx context.Context, mv *domain.Move) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.moves[mv.GameID] {
		if existing.Seq == mv.Seq {
			return ErrDuplicateMove
		}
	}
	cp := *mv
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.moves[mv.GameID] = append(m.moves[mv.GameID], &cp)
	return nil
}

func (m *Memory) ListMoves(ctx context.Context, gameID int64) ([]*domain.Move, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.moves[gameID]
	out := make([]*domain.Move, 0, len(list))
	for _, mv := range list {
		cp := *mv
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (m *Memory) LastMove(ctx context.Context, gameID int64) (*domain.Move, error) {
	moves, err := m.ListMoves(ctx, gameID)
	if err != nil || len(moves) == 0 {
		return nil, err
	}
	return moves[len(moves)-1], nil
}
