package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/park285/cheese-lobby/internal/domain"
	"github.com/redis/go-redis/v9"
)

const ttlRoom = 24 * time.Hour

// RedisRooms keeps rooms in Redis so that room state survives a coordinator restart
// while games and stats stay in the relational store.
type RedisRooms struct{ rdb *redis.Client }

var _ RoomStore = (*RedisRooms)(nil)

func NewRedisRooms(rdb *redis.Client) *RedisRooms { return &RedisRooms{rdb: rdb} }

// OpenRedis parses a redis:// or rediss:// URL and verifies the connection.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func (s *RedisRooms) keyRoom(id int64) string    { return "lobby:room:" + strconv.FormatInt(id, 10) }
func (s *RedisRooms) keyCode(code string) string { return "lobby:room:code:" + code }
func (s *RedisRooms) keySeq() string             { return "lobby:room:seq" }
func (s *RedisRooms) keyWaiting() string         { return "lobby:rooms:waiting" }

func normalizeCode(code string) string { return strings.ToUpper(strings.TrimSpace(code)) }

func (s *RedisRooms) CreateRoom(ctx context.Context, r *domain.Room) (*domain.Room, error) {
	if r == nil {
		return nil, ErrRoomNotFound
	}
	cp := r.Clone()
	id, err := s.rdb.Incr(ctx, s.keySeq()).Result()
	if err != nil {
		return nil, fmt.Errorf("room seq: %w", err)
	}
	cp.ID = id
	if cp.Status == "" {
		cp.Status = domain.RoomWaiting
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}

	fixedCode := cp.Code != ""
	claimed := false
	for attempt := 0; attempt < 5 && !claimed; attempt++ {
		if !fixedCode {
			c, err := NewRoomCode()
			if err != nil {
				return nil, err
			}
			cp.Code = c
		}
		cp.Code = normalizeCode(cp.Code)
		ok, err := s.rdb.SetNX(ctx, s.keyCode(cp.Code), id, ttlRoom).Result()
		if err != nil {
			return nil, fmt.Errorf("claim room code: %w", err)
		}
		claimed = ok
		if !ok && fixedCode {
			break
		}
	}
	if !claimed {
		return nil, ErrRoomCodeTaken
	}
	if err := s.save(ctx, cp); err != nil {
		_ = s.rdb.Del(ctx, s.keyCode(cp.Code)).Err()
		return nil, err
	}
	return cp.Clone(), nil
}

func (s *RedisRooms) save(ctx context.Context, r *domain.Room) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.keyRoom(r.ID), raw, ttlRoom)
	pipe.Expire(ctx, s.keyCode(r.Code), ttlRoom)
	if r.Status == domain.RoomWaiting {
		pipe.ZAdd(ctx, s.keyWaiting(), redis.Z{Score: float64(r.CreatedAt.UnixNano()), Member: r.ID})
	} else {
		pipe.ZRem(ctx, s.keyWaiting(), r.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save room: %w", err)
	}
	return nil
}

func (s *RedisRooms) GetRoom(ctx context.Context, id int64) (*domain.Room, error) {
	raw, err := s.rdb.Get(ctx, s.keyRoom(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load room: %w", err)
	}
	var r domain.Room
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode room: %w", err)
	}
	return &r, nil
}

func (s *RedisRooms) GetRoomByCode(ctx context.Context, code string) (*domain.Room, error) {
	id, err := s.rdb.Get(ctx, s.keyCode(normalizeCode(code))).Int64()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve room code: %w", err)
	}
	return s.GetRoom(ctx, id)
}

func (s *RedisRooms) UpdateRoom(ctx context.Context, r *domain.Room) error {
	if r == nil {
		return ErrRoomNotFound
	}
	n, err := s.rdb.Exists(ctx, s.keyRoom(r.ID)).Result()
	if err != nil {
		return fmt.Errorf("check room: %w", err)
	}
	if n == 0 {
		return ErrRoomNotFound
	}
	return s.save(ctx, r)
}

func (s *RedisRooms) DeleteRoom(ctx context.Context, id int64) error {
	r, err := s.GetRoom(ctx, id)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, s.keyRoom(id))
	pipe.ZRem(ctx, s.keyWaiting(), id)
	if r != nil {
		pipe.Del(ctx, s.keyCode(r.Code))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	return nil
}

func (s *RedisRooms) ListWaitingRooms(ctx context.Context) ([]*domain.Room, error) {
	ids, err := s.rdb.ZRevRange(ctx, s.keyWaiting(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list waiting rooms: %w", err)
	}
	out := make([]*domain.Room, 0, len(ids))
	for _, raw := range ids {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		r, err := s.GetRoom(ctx, id)
		if err != nil {
			return nil, err
		}
		// expired or stale index entries
		if r == nil || r.Status != domain.RoomWaiting {
			_ = s.rdb.ZRem(ctx, s.keyWaiting(), raw).Err()
			continue
		}
		out = append(out, r)
	}
	sortRoomsNewestFirst(out)
	return out, nil
}
