package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/park285/cheese-lobby/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

const pgUniqueViolation = "23505"

// Postgres implements Store on database/sql with the lib/pq driver.
type Postgres struct {
	db *sql.DB
}

var _ Store = (*Postgres)(nil)

func OpenPostgres(databaseURL string) (*Postgres, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

// Migrate creates the tables when missing.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation
}

func (p *Postgres) GetPlayer(ctx context.Context, id int64) (*domain.Player, error) {
	const q = `SELECT player_id, username, displayname, status, created_at FROM players WHERE player_id = $1`
	var pl domain.Player
	var status string
	err := p.db.QueryRowContext(ctx, q, id).Scan(&pl.ID, &pl.Username, &pl.DisplayName, &status, &pl.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select player: %w", err)
	}
	pl.Status = domain.PlayerStatus(status)
	return &pl, nil
}

func (p *Postgres) UpsertPlayer(ctx context.Context, pl *domain.Player) error {
	if pl == nil {
		return nil
	}
	const q = `
		INSERT INTO players (player_id, username, displayname, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (player_id) DO UPDATE SET
			username = EXCLUDED.username,
			displayname = EXCLUDED.displayname,
			status = EXCLUDED.status`
	status := pl.Status
	if status == "" {
		status = domain.PlayerOffline
	}
	if _, err := p.db.ExecContext(ctx, q, pl.ID, pl.Username, pl.DisplayName, string(status)); err != nil {
		return fmt.Errorf("upsert player: %w", err)
	}
	const qs = `INSERT INTO player_stats (player_id) VALUES ($1) ON CONFLICT (player_id) DO NOTHING`
	if _, err := p.db.ExecContext(ctx, qs, pl.ID); err != nil {
		return fmt.Errorf("init player stats: %w", err)
	}
	return nil
}

func (p *Postgres) SetPlayerStatus(ctx context.Context, id int64, status domain.PlayerStatus) error {
	const q = `
		INSERT INTO players (player_id, status) VALUES ($1, $2)
		ON CONFLICT (player_id) DO UPDATE SET status = EXCLUDED.status`
	if _, err := p.db.ExecContext(ctx, q, id, string(status)); err != nil {
		return fmt.Errorf("update player status: %w", err)
	}
	return nil
}

func (p *Postgres) GetStats(ctx context.Context, playerID int64) (*domain.PlayerStats, error) {
	const q = `SELECT player_id, games_played, wins, losses, draws, point FROM player_stats WHERE player_id = $1`
	var s domain.PlayerStats
	err := p.db.QueryRowContext(ctx, q, playerID).Scan(&s.PlayerID, &s.GamesPlayed, &s.Wins, &s.Losses, &s.Draws, &s.Points)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select player stats: %w", err)
	}
	return &s, nil
}

func (p *Postgres) ApplyResult(ctx context.Context, playerID int64, outcome domain.StatOutcome, points int) error {
	var win, loss, draw int
	switch outcome {
	case domain.StatWin:
		win = 1
	case domain.StatLoss:
		loss = 1
	case domain.StatDraw:
		draw = 1
	default:
		return fmt.Errorf("unknown stat outcome %q", outcome)
	}
	const q = `
		INSERT INTO player_stats (player_id, games_played, wins, losses, draws, point)
		VALUES ($1, 1, $2, $3, $4, $5)
		ON CONFLICT (player_id) DO UPDATE SET
			games_played = player_stats.games_played + 1,
			wins = player_stats.wins + EXCLUDED.wins,
			losses = player_stats.losses + EXCLUDED.losses,
			draws = player_stats.draws + EXCLUDED.draws,
			point = player_stats.point + EXCLUDED.point`
	if _, err := p.db.ExecContext(ctx, q, playerID, win, loss, draw, points); err != nil {
		return fmt.Errorf("apply player stats: %w", err)
	}
	return nil
}

const roomColumns = `id, room_code, room_name, room_type, room_mode, password,
	time_initial_sec, per_move_max_sec, increment_sec,
	host_player_id, guest_player_id, host_ready, guest_ready, status, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (*domain.Room, error) {
	var (
		r                      domain.Room
		roomType, mode, status string
		guest                  sql.NullInt64
	)
	err := row.Scan(&r.ID, &r.Code, &r.Name, &roomType, &mode, &r.PasswordHash,
		&r.Time.InitialSec, &r.Time.PerMoveMaxSec, &r.Time.IncrementSec,
		&r.HostID, &guest, &r.HostReady, &r.GuestReady, &status, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.Type = domain.RoomType(roomType)
	r.Mode = domain.RoomMode(mode)
	r.Status = domain.RoomStatus(status)
	if guest.Valid {
		r.GuestID = guest.Int64
	}
	return &r, nil
}

func nullableID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func (p *Postgres) CreateRoom(ctx context.Context, r *domain.Room) (*domain.Room, error) {
	if r == nil {
		return nil, ErrRoomNotFound
	}
	cp := *r
	if cp.Status == "" {
		cp.Status = domain.RoomWaiting
	}
	q := `
		INSERT INTO rooms (room_code, room_name, room_type, room_mode, password,
			time_initial_sec, per_move_max_sec, increment_sec,
			host_player_id, guest_player_id, host_ready, guest_ready, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING ` + roomColumns
	fixedCode := cp.Code != ""
	for attempt := 0; attempt < 5; attempt++ {
		if !fixedCode {
			c, err := NewRoomCode()
			if err != nil {
				return nil, err
			}
			cp.Code = c
		}
		row := p.db.QueryRowContext(ctx, q,
			cp.Code, cp.Name, string(cp.Type), string(cp.Mode), cp.PasswordHash,
			cp.Time.InitialSec, cp.Time.PerMoveMaxSec, cp.Time.IncrementSec,
			cp.HostID, nullableID(cp.GuestID), cp.HostReady, cp.GuestReady, string(cp.Status),
		)
		created, err := scanRoom(row)
		if err == nil {
			return created, nil
		}
		if !isUniqueViolation(err) {
			return nil, fmt.Errorf("insert room: %w", err)
		}
		if fixedCode {
			return nil, ErrRoomCodeTaken
		}
	}
	return nil, ErrRoomCodeTaken
}

func (p *Postgres) GetRoom(ctx context.Context, id int64) (*domain.Room, error) {
	r, err := scanRoom(p.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select room: %w", err)
	}
	return r, nil
}

func (p *Postgres) GetRoomByCode(ctx context.Context, code string) (*domain.Room, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	r, err := scanRoom(p.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE room_code = $1`, code))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select room by code: %w", err)
	}
	return r, nil
}

func (p *Postgres) UpdateRoom(ctx context.Context, r *domain.Room) error {
	if r == nil {
		return ErrRoomNotFound
	}
	const q = `
		UPDATE rooms SET
			room_name = $2, room_type = $3, room_mode = $4, password = $5,
			time_initial_sec = $6, per_move_max_sec = $7, increment_sec = $8,
			host_player_id = $9, guest_player_id = $10, host_ready = $11, guest_ready = $12,
			status = $13
		WHERE id = $1`
	res, err := p.db.ExecContext(ctx, q,
		r.ID, r.Name, string(r.Type), string(r.Mode), r.PasswordHash,
		r.Time.InitialSec, r.Time.PerMoveMaxSec, r.Time.IncrementSec,
		r.HostID, nullableID(r.GuestID), r.HostReady, r.GuestReady, string(r.Status),
	)
	if err != nil {
		return fmt.Errorf("update room: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRoomNotFound
	}
	return nil
}

func (p *Postgres) DeleteRoom(ctx context.Context, id int64) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	return nil
}

func (p *Postgres) ListWaitingRooms(ctx context.Context) ([]*domain.Room, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE status = $1 ORDER BY created_at DESC, id DESC`, string(domain.RoomWaiting))
	if err != nil {
		return nil, fmt.Errorf("select waiting rooms: %w", err)
	}
	defer rows.Close()
	out := make([]*domain.Room, 0)
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const gameColumns = `game_id, game_mode, room_id, white_player_id, black_player_id, is_ranked,
	time_initial_sec, per_move_max_sec, increment_sec,
	status, result, end_reason, white_point_change, black_point_change, start_time, end_time`

func scanGame(row rowScanner) (*domain.Game, error) {
	var (
		g                            domain.Game
		mode, status, result, reason string
		roomID                       sql.NullInt64
		endTime                      sql.NullTime
	)
	err := row.Scan(&g.ID, &mode, &roomID, &g.WhiteID, &g.BlackID, &g.Ranked,
		&g.Time.InitialSec, &g.Time.PerMoveMaxSec, &g.Time.IncrementSec,
		&status, &result, &reason, &g.WhitePointChange, &g.BlackPointChange, &g.StartedAt, &endTime)
	if err != nil {
		return nil, err
	}
	g.Mode = domain.RoomMode(mode)
	g.Status = domain.GameStatus(status)
	g.Result = domain.Result(result)
	g.Reason = domain.EndReason(reason)
	if roomID.Valid {
		g.RoomID = roomID.Int64
	}
	if endTime.Valid {
		g.EndedAt = endTime.Time
	}
	return &g, nil
}

func (p *Postgres) CreateGame(ctx context.Context, g *domain.Game) (int64, error) {
	const q = `
		INSERT INTO games (game_mode, room_id, white_player_id, black_player_id, is_ranked,
			time_initial_sec, per_move_max_sec, increment_sec, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'playing')
		RETURNING game_id`
	mode := g.Mode
	if mode == "" {
		mode = domain.ModeNormal
	}
	var id int64
	err := p.db.QueryRowContext(ctx, q, string(mode), nullableID(g.RoomID), g.WhiteID, g.BlackID, g.Ranked,
		g.Time.InitialSec, g.Time.PerMoveMaxSec, g.Time.IncrementSec).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert game: %w", err)
	}
	return id, nil
}

func (p *Postgres) GetGame(ctx context.Context, id int64) (*domain.Game, error) {
	g, err := scanGame(p.db.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games WHERE game_id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select game: %w", err)
	}
	return g, nil
}

func (p *Postgres) ActiveGameForPlayer(ctx context.Context, playerID int64) (*domain.Game, error) {
	q := `SELECT ` + gameColumns + ` FROM games
		WHERE status = 'playing' AND (white_player_id = $1 OR black_player_id = $1)
		ORDER BY start_time DESC LIMIT 1`
	g, err := scanGame(p.db.QueryRowContext(ctx, q, playerID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select active game: %w", err)
	}
	return g, nil
}

func (p *Postgres) FinishGame(ctx context.Context, id int64, outcome domain.Outcome) (bool, error) {
	g, err := p.GetGame(ctx, id)
	if err != nil || g == nil || g.Status != domain.GamePlaying {
		return false, err
	}
	moves, err := p.ListMoves(ctx, id)
	if err != nil {
		return false, err
	}
	ended := outcome.EndedAt
	if ended.IsZero() {
		ended = time.Now()
		outcome.EndedAt = ended
	}
	pgn := BuildPGN(g, moves, outcome)
	const q = `
		UPDATE games SET status = 'finished', result = $2, end_reason = $3,
			white_point_change = $4, black_point_change = $5, pgn = $6, end_time = $7
		WHERE game_id = $1 AND status = 'playing'`
	res, err := p.db.ExecContext(ctx, q, id, string(outcome.Result), string(outcome.Reason),
		outcome.WhiteDelta, outcome.BlackDelta, pgn, ended)
	if err != nil {
		return false, fmt.Errorf("finish game: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("finish game rows: %w", err)
	}
	return n == 1, nil
}

func (p *Postgres) AppendMove(ctx context.Context, m *domain.Move) error {
	const q = `
		INSERT INTO game_moves (game_id, move_number, player_color, move_notation, board_state_fen)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := p.db.ExecContext(ctx, q, m.GameID, m.Seq, string(m.Color), m.Notation, m.FEN)
	if isUniqueViolation(err) {
		return ErrDuplicateMove
	}
	if err != nil {
		return fmt.Errorf("insert move: %w", err)
	}
	return nil
}

func (p *Postgres) ListMoves(ctx context.Context, gameID int64) ([]*domain.Move, error) {
	const q = `
		SELECT game_id, move_number, player_color, move_notation, board_state_fen, created_at
		FROM game_moves WHERE game_id = $1 ORDER BY move_number ASC`
	rows, err := p.db.QueryContext(ctx, q, gameID)
	if err != nil {
		return nil, fmt.Errorf("select moves: %w", err)
	}
	defer rows.Close()
	out := make([]*domain.Move, 0)
	for rows.Next() {
		var (
			m     domain.Move
			color string
		)
		if err := rows.Scan(&m.GameID, &m.Seq, &color, &m.Notation, &m.FEN, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan move: %w", err)
		}
		m.Color = domain.Color(color)
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (p *Postgres) LastMove(ctx context.Context, gameID int64) (*domain.Move, error) {
	const q = `
		SELECT game_id, move_number, player_color, move_notation, board_state_fen, created_at
		FROM game_moves WHERE game_id = $1 ORDER BY move_number DESC LIMIT 1`
	var (
		m     domain.Move
		color string
	)
	err := p.db.QueryRowContext(ctx, q, gameID).Scan(&m.GameID, &m.Seq, &color, &m.Notation, &m.FEN, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select last move: %w", err)
	}
	m.Color = domain.Color(color)
	return &m, nil
}
