package lobby

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/park285/cheese-lobby/internal/announce"
	"github.com/park285/cheese-lobby/internal/domain"
	"github.com/park285/cheese-lobby/internal/obslog"
	"github.com/park285/cheese-lobby/internal/store"
	"github.com/park285/cheese-lobby/pkg/lobbyproto"
	"go.uber.org/zap"
)

// createGame persists a new playing game between two players with coin-flipped colors.
// Timed room games get a server clock; ranked games are untimed.
func (c *Coordinator) createGame(ctx context.Context, p1, p2 int64, room *domain.Room, ranked bool) (*domain.Game, error) {
	white, black := c.assignColors(p1, p2)
	g := &domain.Game{
		Mode:      room.Mode,
		RoomID:    room.ID,
		WhiteID:   white,
		BlackID:   black,
		Ranked:    ranked,
		Time:      room.Time,
		Status:    domain.GamePlaying,
		StartedAt: c.now(),
	}
	id, err := c.store.CreateGame(ctx, g)
	if err != nil {
		return nil, err
	}
	g.ID = id

	c.mu.Lock()
	c.active[id] = struct{}{}
	if !ranked && g.Time.Timed() {
		c.clocks[id] = newGameClock(g.Time, c.now, func(color domain.Color) { c.flagFall(id, color) })
	}
	c.mu.Unlock()
	return g, nil
}

func (c *Coordinator) assignColors(p1, p2 int64) (white, black int64) {
	if c.coin() {
		return p1, p2
	}
	return p2, p1
}

func (c *Coordinator) announceStart(g *domain.Game) {
	c.sendAll(lobbyproto.TypeGameStarted, lobbyproto.GameStarted{
		GameID:        g.ID,
		RoomID:        g.RoomID,
		WhitePlayerID: g.WhiteID,
		BlackPlayerID: g.BlackID,
		IsRanked:      g.Ranked,
		GameMode:      g.Mode,
		TimeSettings:  g.Time,
	}, g.WhiteID, g.BlackID)
}

func (c *Coordinator) clock(gameID int64) *gameClock {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clocks[gameID]
}

// loadPlayingGame returns the game pid is playing in, or the reason it cannot act on it.
func (c *Coordinator) loadPlayingGame(ctx context.Context, pid, gameID int64) (*domain.Game, domain.Color, error) {
	if gameID <= 0 {
		return nil, "", validationErr("bad_payload")
	}
	g, err := c.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, "", storageErr(err)
	}
	if g == nil {
		return nil, "", notFoundErr("game_not_found")
	}
	color, ok := g.ColorOf(pid)
	if !ok {
		return nil, "", authorizationErr("game_not_participant")
	}
	if !g.Playing() {
		return g, color, preconditionErr("game_not_playing")
	}
	return g, color, nil
}

// loadEndingGame is loadPlayingGame for requests that end a game: a game that is
// already finished reports done so the duplicate request becomes a no-op.
func (c *Coordinator) loadEndingGame(ctx context.Context, pid, gameID int64) (g *domain.Game, color domain.Color, done bool, err error) {
	g, color, err = c.loadPlayingGame(ctx, pid, gameID)
	if g != nil && !g.Playing() {
		return g, color, true, nil
	}
	return g, color, false, err
}

func (c *Coordinator) makeMove(ctx context.Context, pid int64, p lobbyproto.MakeMove) error {
	move := strings.TrimSpace(p.Move)
	if move == "" {
		return validationErr("move_required")
	}
	if p.MoveNumber < 1 {
		return validationErr("invalid_move_number")
	}
	claimed, ok := domain.ParseColor(p.PlayerColor)
	if !ok {
		return validationErr("invalid_color")
	}

	unlock := c.gameLocks.Lock(p.GameID)
	defer unlock()

	g, color, err := c.loadPlayingGame(ctx, pid, p.GameID)
	if err != nil {
		return err
	}
	if claimed != color {
		return authorizationErr("wrong_color")
	}
	last, err := c.store.LastMove(ctx, g.ID)
	if err != nil {
		return storageErr(err)
	}
	expected, toMove, prevFEN := 1, domain.White, ""
	if last != nil {
		expected, toMove, prevFEN = last.Seq+1, last.Color.Opposite(), last.FEN
	}
	if p.MoveNumber < expected {
		return preconditionErr("move_duplicate").With("number", p.MoveNumber)
	}
	if color != toMove {
		return authorizationErr("not_your_turn")
	}
	if p.MoveNumber > expected {
		return preconditionErr("move_out_of_order").With("expected", expected)
	}

	fen := strings.TrimSpace(p.FEN)
	if c.rules != nil {
		checked, err := c.rules.CheckMove(prevFEN, move, fen)
		if err != nil {
			return validationErr("illegal_move").wrap(err)
		}
		if fen == "" {
			fen = checked
		}
	}

	err = c.store.AppendMove(ctx, &domain.Move{
		GameID:    g.ID,
		Seq:       p.MoveNumber,
		Color:     color,
		Notation:  move,
		FEN:       fen,
		CreatedAt: c.now(),
	})
	if errors.Is(err, store.ErrDuplicateMove) {
		return preconditionErr("move_duplicate").With("number", p.MoveNumber)
	}
	if err != nil {
		return storageErr(err)
	}

	c.mu.Lock()
	if from, ok := c.drawOffers[g.ID]; ok && from != pid {
		delete(c.drawOffers, g.ID)
	}
	cl := c.clocks[g.ID]
	c.mu.Unlock()
	if cl != nil {
		cl.Switch(color)
	}

	c.send(g.Opponent(pid), lobbyproto.TypeOpponentMove, lobbyproto.MakeMove{
		GameID:      g.ID,
		Move:        move,
		FEN:         fen,
		MoveNumber:  p.MoveNumber,
		PlayerColor: string(color),
	})
	c.send(pid, lobbyproto.TypeMoveConfirmed, lobbyproto.MoveConfirmed{GameID: g.ID, MoveNumber: p.MoveNumber})
	return nil
}

func (c *Coordinator) offerDraw(ctx context.Context, pid, gameID int64) error {
	unlock := c.gameLocks.Lock(gameID)
	defer unlock()

	g, _, err := c.loadPlayingGame(ctx, pid, gameID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.drawOffers[g.ID] = pid
	c.mu.Unlock()

	c.send(g.Opponent(pid), lobbyproto.TypeDrawOffered, lobbyproto.DrawOffered{GameID: g.ID, FromPlayerID: pid})
	c.send(pid, lobbyproto.TypeDrawOfferSent, lobbyproto.GameNotice{GameID: g.ID, Message: c.text("notices.draw_offer_sent")})
	return nil
}

func (c *Coordinator) acceptDraw(ctx context.Context, pid, gameID int64) error {
	unlock := c.gameLocks.Lock(gameID)
	defer unlock()

	g, _, done, err := c.loadEndingGame(ctx, pid, gameID)
	if done || err != nil {
		return err
	}
	c.mu.Lock()
	from, ok := c.drawOffers[g.ID]
	c.mu.Unlock()
	if !ok || from != g.Opponent(pid) {
		return preconditionErr("no_draw_offer")
	}
	return c.finishLocked(ctx, g, domain.Draw, domain.ReasonAgreement)
}

func (c *Coordinator) declineDraw(ctx context.Context, pid, gameID int64) error {
	unlock := c.gameLocks.Lock(gameID)
	defer unlock()

	g, _, err := c.loadPlayingGame(ctx, pid, gameID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	from, ok := c.drawOffers[g.ID]
	if ok && from == g.Opponent(pid) {
		delete(c.drawOffers, g.ID)
	}
	c.mu.Unlock()
	if !ok || from != g.Opponent(pid) {
		return preconditionErr("no_draw_offer")
	}
	c.sendAll(lobbyproto.TypeDrawDeclined, lobbyproto.GameNotice{GameID: g.ID, Message: c.text("notices.draw_declined")}, g.WhiteID, g.BlackID)
	return nil
}

func (c *Coordinator) resign(ctx context.Context, pid, gameID int64) error {
	unlock := c.gameLocks.Lock(gameID)
	defer unlock()

	g, color, done, err := c.loadEndingGame(ctx, pid, gameID)
	if done || err != nil {
		return err
	}
	return c.finishLocked(ctx, g, domain.LossFor(color), domain.ReasonResign)
}

// reportTimeout handles a client reporting its own flag fall. A game that already
// ended is left alone.
func (c *Coordinator) reportTimeout(ctx context.Context, pid int64, p lobbyproto.Timeout) error {
	claimed, ok := domain.ParseColor(p.PlayerColor)
	if !ok {
		return validationErr("invalid_color")
	}
	unlock := c.gameLocks.Lock(p.GameID)
	defer unlock()

	g, color, done, err := c.loadEndingGame(ctx, pid, p.GameID)
	if done || err != nil {
		return err
	}
	if claimed != color {
		return authorizationErr("timeout_other_color")
	}
	return c.finishLocked(ctx, g, domain.LossFor(color), domain.ReasonTimeout)
}

// Timeout ends gameID with color losing on time. Unknown or finished games are ignored.
func (c *Coordinator) Timeout(ctx context.Context, gameID int64, color domain.Color) error {
	unlock := c.gameLocks.Lock(gameID)
	defer unlock()
	return c.timeoutLocked(ctx, gameID, color)
}

func (c *Coordinator) timeoutLocked(ctx context.Context, gameID int64, color domain.Color) error {
	g, err := c.store.GetGame(ctx, gameID)
	if err != nil {
		return storageErr(err)
	}
	if !g.Playing() {
		return nil
	}
	return c.finishLocked(ctx, g, domain.LossFor(color), domain.ReasonTimeout)
}

// flagFall runs on the clock timer. A move that landed while the timer fired wins.
func (c *Coordinator) flagFall(gameID int64, color domain.Color) {
	unlock := c.gameLocks.Lock(gameID)
	defer unlock()

	cl := c.clock(gameID)
	if cl == nil || !cl.Expired(color) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()
	obslog.L().Info("clock_flag_fall", zap.Int64("game_id", gameID), zap.String("color", string(color)))
	if err := c.timeoutLocked(ctx, gameID, color); err != nil {
		obslog.L().Error("clock_timeout_error", zap.Int64("game_id", gameID), zap.Error(err))
	}
}

// reportTerminal records a result a client detected on the board; duplicates are no-ops.
func (c *Coordinator) reportTerminal(ctx context.Context, pid int64, p lobbyproto.GameEnd) error {
	result := domain.Result(strings.ToLower(strings.TrimSpace(p.Result)))
	if !result.Valid() {
		return validationErr("invalid_result")
	}
	unlock := c.gameLocks.Lock(p.GameID)
	defer unlock()

	g, _, done, err := c.loadEndingGame(ctx, pid, p.GameID)
	if done || err != nil {
		return err
	}
	if c.rules != nil {
		last, err := c.store.LastMove(ctx, g.ID)
		if err != nil {
			return storageErr(err)
		}
		fen := ""
		if last != nil {
			fen = last.FEN
		}
		if err := c.rules.CheckTerminal(fen, result); err != nil {
			return validationErr("result_not_terminal").wrap(err)
		}
	}
	return c.finishLocked(ctx, g, result, domain.ReasonCheckmate)
}

func (c *Coordinator) chat(ctx context.Context, pid int64, p lobbyproto.ChatMessage) error {
	if strings.TrimSpace(p.Message) == "" {
		return validationErr("chat_empty")
	}
	if utf8.RuneCountInString(p.Message) > c.maxChat {
		return validationErr("chat_too_long").With("limit", c.maxChat)
	}
	g, _, err := c.loadPlayingGame(ctx, pid, p.GameID)
	if err != nil {
		return err
	}
	c.send(g.Opponent(pid), lobbyproto.TypeChatMessage, lobbyproto.ChatRelay{
		GameID:       g.ID,
		FromPlayerID: pid,
		Message:      p.Message,
		Timestamp:    c.now().UnixMilli(),
	})
	return nil
}

// finishLocked ends g under its game lock. The store update is conditional, so a game
// that another path already finished is left untouched.
func (c *Coordinator) finishLocked(ctx context.Context, g *domain.Game, result domain.Result, reason domain.EndReason) error {
	outcome := domain.NewOutcome(g, result, reason)
	outcome.EndedAt = c.now()
	done, err := c.store.FinishGame(ctx, g.ID, outcome)
	if err != nil {
		return storageErr(err)
	}

	c.mu.Lock()
	delete(c.drawOffers, g.ID)
	delete(c.active, g.ID)
	if cl, ok := c.clocks[g.ID]; ok {
		cl.Stop()
		delete(c.clocks, g.ID)
	}
	c.mu.Unlock()
	if !done {
		return nil
	}

	g.Status = domain.GameFinished
	g.Result = result
	g.Reason = reason
	g.WhitePointChange = outcome.WhiteDelta
	g.BlackPointChange = outcome.BlackDelta
	g.EndedAt = outcome.EndedAt

	if g.Ranked {
		c.applyStats(ctx, g)
	}
	c.closeRoom(ctx, g.RoomID)

	obslog.L().Info("game_end",
		zap.Int64("game_id", g.ID),
		zap.String("result", string(result)),
		zap.String("reason", string(reason)),
		zap.Bool("ranked", g.Ranked),
	)
	c.metrics.GameFinished(string(reason))
	c.sendAll(lobbyproto.TypeGameEnded, lobbyproto.GameEnded{
		GameID:           g.ID,
		Result:           result,
		Reason:           reason,
		WhitePointChange: outcome.WhiteDelta,
		BlackPointChange: outcome.BlackDelta,
	}, g.WhiteID, g.BlackID)
	c.publishResult(ctx, g, outcome)
	return nil
}

func (c *Coordinator) applyStats(ctx context.Context, g *domain.Game) {
	white, black := domain.StatOutcomes(g.Result)
	if err := c.store.ApplyResult(ctx, g.WhiteID, white, g.WhitePointChange); err != nil {
		obslog.L().Error("stats_update_error", zap.Int64("game_id", g.ID), zap.Int64("player_id", g.WhiteID), zap.Error(err))
	}
	if err := c.store.ApplyResult(ctx, g.BlackID, black, g.BlackPointChange); err != nil {
		obslog.L().Error("stats_update_error", zap.Int64("game_id", g.ID), zap.Int64("player_id", g.BlackID), zap.Error(err))
	}
}

func (c *Coordinator) closeRoom(ctx context.Context, roomID int64) {
	if roomID <= 0 {
		return
	}
	unlock := c.roomLocks.Lock(roomID)
	defer unlock()
	room, err := c.store.GetRoom(ctx, roomID)
	if err != nil || room == nil {
		if err != nil {
			obslog.L().Warn("room_finish_error", zap.Int64("room_id", roomID), zap.Error(err))
		}
		return
	}
	room.Status = domain.RoomFinished
	if err := c.store.UpdateRoom(ctx, room); err != nil {
		obslog.L().Warn("room_finish_error", zap.Int64("room_id", roomID), zap.Error(err))
	}
}

func (c *Coordinator) publishResult(ctx context.Context, g *domain.Game, outcome domain.Outcome) {
	moves, err := c.store.ListMoves(ctx, g.ID)
	if err != nil {
		obslog.L().Warn("move_list_error", zap.Int64("game_id", g.ID), zap.Error(err))
	}
	c.results.Publish(announce.Result{
		GameID:           g.ID,
		WhitePlayerID:    g.WhiteID,
		BlackPlayerID:    g.BlackID,
		Result:           string(g.Result),
		Reason:           string(g.Reason),
		IsRanked:         g.Ranked,
		WhitePointChange: g.WhitePointChange,
		BlackPointChange: g.BlackPointChange,
		PGN:              store.BuildPGN(g, moves, outcome),
		EndedAt:          g.EndedAt,
	})
}
