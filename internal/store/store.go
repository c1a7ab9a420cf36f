package store

import (
	"context"
	"errors"

	"github.com/park285/cheese-lobby/internal/domain"
)

var (
	ErrDuplicateMove = errors.New("move already recorded")
	ErrRoomCodeTaken = errors.New("room code already in use")
	ErrRoomNotFound  = errors.New("room not found")
)

// Lookups return (nil, nil) when the record does not exist.

type PlayerStore interface {
	GetPlayer(ctx context.Context, id int64) (*domain.Player, error)
	UpsertPlayer(ctx context.Context, p *domain.Player) error
	SetPlayerStatus(ctx context.Context, id int64, status domain.PlayerStatus) error
}

type RoomStore interface {
	CreateRoom(ctx context.Context, r *domain.Room) (*domain.Room, error)
	GetRoom(ctx context.Context, id int64) (*domain.Room, error)
	GetRoomByCode(ctx context.Context, code string) (*domain.Room, error)
	UpdateRoom(ctx context.Context, r *domain.Room) error
	DeleteRoom(ctx context.Context, id int64) error
	ListWaitingRooms(ctx context.Context) ([]*domain.Room, error)
}

type GameStore interface {
	CreateGame(ctx context.Context, g *domain.Game) (int64, error)
	GetGame(ctx context.Context, id int64) (*domain.Game, error)
	ActiveGameForPlayer(ctx context.Context, playerID int64) (*domain.Game, error)
	// FinishGame moves a playing game to finished; it reports false when the game was
	// already finished so callers can treat duplicates as no-ops.
	FinishGame(ctx context.Context, id int64, outcome domain.Outcome) (bool, error)
}

type MoveStore interface {
	AppendMove(ctx context.Context, m *domain.Move) error
	ListMoves(ctx context.Context, gameID int64) ([]*domain.Move, error)
	LastMove(ctx context.Context, gameID int64) (*domain.Move, error)
}

type StatsStore interface {
	GetStats(ctx context.Context, playerID int64) (*domain.PlayerStats, error)
	ApplyResult(ctx context.Context, playerID int64, outcome domain.StatOutcome, points int) error
}

// Store is the full storage collaborator used by the coordinator.
type Store interface {
	PlayerStore
	RoomStore
	GameStore
	MoveStore
	StatsStore
}

// Split composes a Store from independently backed parts, e.g. postgres for games and
// redis for rooms.
type Split struct {
	PlayerStore
	RoomStore
	GameStore
	MoveStore
	StatsStore
}

var _ Store = Split{}

// WithRooms returns base with its room storage replaced.
func WithRooms(base Store, rooms RoomStore) Store {
	if rooms == nil {
		return base
	}
	return Split{PlayerStore: base, RoomStore: rooms, GameStore: base, MoveStore: base, StatsStore: base}
}
