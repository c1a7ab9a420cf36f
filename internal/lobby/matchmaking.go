package lobby

import (
	"context"
	"errors"
	"strings"

	"github.com/park285/cheese-lobby/internal/domain"
	"github.com/park285/cheese-lobby/internal/matchmaking"
	"github.com/park285/cheese-lobby/internal/obslog"
	"github.com/park285/cheese-lobby/pkg/lobbyproto"
	"go.uber.org/zap"
)

const rankedRoomName = "Ranked Match"

func (c *Coordinator) joinMatchmaking(ctx context.Context, pid int64) error {
	g, err := c.store.ActiveGameForPlayer(ctx, pid)
	if err != nil {
		return storageErr(err)
	}
	if g != nil {
		return preconditionErr("player_busy_game")
	}
	m, err := c.queue.Enqueue(ctx, pid)
	if errors.Is(err, matchmaking.ErrInPendingMatch) {
		return preconditionErr("player_busy_match")
	}
	if err != nil {
		return storageErr(err)
	}
	if m == nil {
		c.send(pid, lobbyproto.TypeMatchmakingJoined, lobbyproto.MatchmakingJoined{
			QueueSize: c.queue.Size(),
			Message:   c.text("notices.searching"),
		})
		return nil
	}
	p1, p2 := m.Player1.PlayerID, m.Player2.PlayerID
	obslog.L().Info("match_found",
		zap.String("match_id", m.ID),
		zap.Int64("player1_id", p1),
		zap.Int64("player2_id", p2),
		zap.Int("score_gap", m.Player1.Score-m.Player2.Score),
	)
	c.send(p1, lobbyproto.TypeMatchFound, lobbyproto.MatchFound{MatchID: m.ID, OpponentID: p2})
	c.send(p2, lobbyproto.TypeMatchFound, lobbyproto.MatchFound{MatchID: m.ID, OpponentID: p1})
	return nil
}

func (c *Coordinator) leaveMatchmaking(pid int64) {
	if m := c.queue.Leave(pid); m != nil {
		c.notifyDissolved(m, pid)
	}
	c.send(pid, lobbyproto.TypeMatchmakingLeft, lobbyproto.Notice{Message: c.text("notices.left_queue")})
}

// notifyDissolved tells the opponent of leaver that their pending match is gone.
func (c *Coordinator) notifyDissolved(m *matchmaking.Match, leaver int64) {
	obslog.L().Info("match_dissolved", zap.String("match_id", m.ID), zap.Int64("player_id", leaver))
	c.send(m.Opponent(leaver), lobbyproto.TypeMatchDeclined, lobbyproto.MatchDeclined{
		MatchID:    m.ID,
		ByOpponent: true,
		Message:    c.text("notices.opponent_declined"),
	})
}

func matchErr(err error) error {
	switch {
	case errors.Is(err, matchmaking.ErrMatchNotFound):
		return notFoundErr("match_not_found")
	case errors.Is(err, matchmaking.ErrNotParticipant):
		return authorizationErr("match_not_participant")
	default:
		return storageErr(err)
	}
}

func (c *Coordinator) acceptMatch(ctx context.Context, pid int64, matchID string) error {
	matchID = strings.TrimSpace(matchID)
	if matchID == "" {
		return validationErr("bad_payload")
	}
	res, err := c.queue.Accept(matchID, pid)
	if err != nil {
		return matchErr(err)
	}
	if !res.Ready {
		c.send(pid, lobbyproto.TypeMatchAccepted, lobbyproto.MatchAccepted{MatchID: matchID, Message: c.text("notices.waiting_accept")})
		return nil
	}
	return c.startRankedGame(ctx, res.Match)
}

// startRankedGame creates the room and game for a fully accepted match. On failure both
// players go back to the queue.
func (c *Coordinator) startRankedGame(ctx context.Context, m *matchmaking.Match) error {
	p1, p2 := m.Player1.PlayerID, m.Player2.PlayerID
	room, err := c.store.CreateRoom(ctx, &domain.Room{
		Name:       rankedRoomName,
		Type:       domain.RoomPublic,
		Mode:       domain.ModeNormal,
		HostID:     p1,
		GuestID:    p2,
		HostReady:  true,
		GuestReady: true,
		Status:     domain.RoomPlaying,
	})
	if err != nil {
		c.requeueFailedMatch(m, err)
		return storageErr(err)
	}
	g, err := c.createGame(ctx, p1, p2, room, true)
	if err != nil {
		if derr := c.store.DeleteRoom(ctx, room.ID); derr != nil {
			obslog.L().Warn("room_cleanup_error", zap.Int64("room_id", room.ID), zap.Error(derr))
		}
		c.requeueFailedMatch(m, err)
		return storageErr(err)
	}
	obslog.L().Info("ranked_game_started", zap.String("match_id", m.ID), zap.Int64("game_id", g.ID), zap.Int64("room_id", room.ID))
	c.announceStart(g)
	return nil
}

func (c *Coordinator) requeueFailedMatch(m *matchmaking.Match, cause error) {
	obslog.L().Error("ranked_game_create_error", zap.String("match_id", m.ID), zap.Error(cause))
	c.queue.Requeue(m.Player1, m.Player2)
	size := c.queue.Size()
	for _, id := range []int64{m.Player1.PlayerID, m.Player2.PlayerID} {
		c.send(id, lobbyproto.TypeMatchmakingJoined, lobbyproto.MatchmakingJoined{QueueSize: size, Message: c.text("notices.searching")})
	}
}

func (c *Coordinator) declineMatch(pid int64, matchID string) error {
	matchID = strings.TrimSpace(matchID)
	if matchID == "" {
		return validationErr("bad_payload")
	}
	m, err := c.queue.Decline(matchID, pid)
	if err != nil {
		return matchErr(err)
	}
	obslog.L().Info("match_declined", zap.String("match_id", m.ID), zap.Int64("player_id", pid))
	c.send(pid, lobbyproto.TypeMatchDeclined, lobbyproto.MatchDeclined{MatchID: m.ID, Message: c.text("notices.match_declined")})
	c.send(m.Opponent(pid), lobbyproto.TypeMatchDeclined, lobbyproto.MatchDeclined{
		MatchID:    m.ID,
		ByOpponent: true,
		Message:    c.text("notices.opponent_declined"),
	})
	return nil
}

// SweepExpired returns the players of every abandoned pending match to the queue and
// tells both of them.
func (c *Coordinator) SweepExpired() int {
	expired := c.queue.SweepExpired(c.now())
	for _, m := range expired {
		obslog.L().Info("match_expired", zap.String("match_id", m.ID), zap.Int64("player1_id", m.Player1.PlayerID), zap.Int64("player2_id", m.Player2.PlayerID))
		c.sendAll(lobbyproto.TypeMatchExpired, lobbyproto.MatchExpired{MatchID: m.ID, Message: c.text("notices.match_expired")},
			m.Player1.PlayerID, m.Player2.PlayerID)
	}
	return len(expired)
}
