package lobby

import (
	"context"
	"time"

	"github.com/park285/cheese-lobby/internal/obslog"
	"github.com/park285/cheese-lobby/pkg/lobbyproto"
	"go.uber.org/zap"
)

// Handle processes one inbound event from playerID. It never panics and sends exactly
// one error event to the actor when the event is rejected.
func (c *Coordinator) Handle(ctx context.Context, playerID int64, env lobbyproto.Envelope) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			obslog.L().Error("handler_panic",
				zap.Int64("player_id", playerID),
				zap.String("type", env.Type),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			c.reject(playerID, env.Type, &Error{Kind: KindStorage, Key: "errors.internal"})
		}
		c.metrics.EventHandled(env.Type, time.Since(start))
	}()
	if err := c.dispatch(ctx, playerID, env); err != nil {
		c.reject(playerID, env.Type, err)
	}
}

// Malformed rejects a frame the transport could not decode.
func (c *Coordinator) Malformed(playerID int64, err error) {
	c.reject(playerID, "", validationErr("bad_payload").wrap(err))
}

func withPayload[T any](env lobbyproto.Envelope, fn func(T) error) error {
	var p T
	if err := env.Decode(&p); err != nil {
		return validationErr("bad_payload").wrap(err)
	}
	return fn(p)
}

func (c *Coordinator) dispatch(ctx context.Context, pid int64, env lobbyproto.Envelope) error {
	switch env.Type {
	case lobbyproto.TypeJoinMatchmaking:
		return c.joinMatchmaking(ctx, pid)
	case lobbyproto.TypeLeaveMatchmaking:
		c.leaveMatchmaking(pid)
		return nil
	case lobbyproto.TypeAcceptMatch:
		return withPayload(env, func(p lobbyproto.MatchRef) error { return c.acceptMatch(ctx, pid, p.MatchID) })
	case lobbyproto.TypeDeclineMatch:
		return withPayload(env, func(p lobbyproto.MatchRef) error { return c.declineMatch(pid, p.MatchID) })

	case lobbyproto.TypeCreateRoom:
		return withPayload(env, func(p lobbyproto.CreateRoom) error { return c.createRoom(ctx, pid, p) })
	case lobbyproto.TypeJoinRoom:
		return withPayload(env, func(p lobbyproto.JoinRoom) error { return c.joinRoom(ctx, pid, p) })
	case lobbyproto.TypeRequestJoin:
		return withPayload(env, func(p lobbyproto.RequestJoin) error { return c.requestJoin(ctx, pid, p) })
	case lobbyproto.TypeApproveJoin:
		return withPayload(env, func(p lobbyproto.JoinDecision) error { return c.approveJoin(ctx, pid, p) })
	case lobbyproto.TypeRejectJoin:
		return withPayload(env, func(p lobbyproto.JoinDecision) error { return c.rejectJoin(ctx, pid, p) })
	case lobbyproto.TypeRoomReady:
		return withPayload(env, func(p lobbyproto.RoomReady) error { return c.updateReady(ctx, pid, p) })
	case lobbyproto.TypeStartGame:
		return withPayload(env, func(p lobbyproto.RoomRef) error { return c.startGame(ctx, pid, p.RoomID) })
	case lobbyproto.TypeInvitePlayer:
		return withPayload(env, func(p lobbyproto.InvitePlayer) error { return c.invite(ctx, pid, p) })
	case lobbyproto.TypeLeaveRoom:
		return withPayload(env, func(p lobbyproto.RoomRef) error { return c.leaveRoom(ctx, pid, p.RoomID) })
	case lobbyproto.TypeListRooms:
		return c.listRooms(ctx, pid)

	case lobbyproto.TypeMakeMove:
		return withPayload(env, func(p lobbyproto.MakeMove) error { return c.makeMove(ctx, pid, p) })
	case lobbyproto.TypeOfferDraw:
		return withPayload(env, func(p lobbyproto.GameRef) error { return c.offerDraw(ctx, pid, p.GameID) })
	case lobbyproto.TypeAcceptDraw:
		return withPayload(env, func(p lobbyproto.GameRef) error { return c.acceptDraw(ctx, pid, p.GameID) })
	case lobbyproto.TypeDeclineDraw:
		return withPayload(env, func(p lobbyproto.GameRef) error { return c.declineDraw(ctx, pid, p.GameID) })
	case lobbyproto.TypeResign:
		return withPayload(env, func(p lobbyproto.GameRef) error { return c.resign(ctx, pid, p.GameID) })
	case lobbyproto.TypeTimeout:
		return withPayload(env, func(p lobbyproto.Timeout) error { return c.reportTimeout(ctx, pid, p) })
	case lobbyproto.TypeChatMessage:
		return withPayload(env, func(p lobbyproto.ChatMessage) error { return c.chat(ctx, pid, p) })
	case lobbyproto.TypeGameEnd:
		return withPayload(env, func(p lobbyproto.GameEnd) error { return c.reportTerminal(ctx, pid, p) })

	case lobbyproto.TypePing:
		c.send(pid, lobbyproto.TypePong, nil)
		return nil
	default:
		return validationErr("unknown_event").With("type", env.Type)
	}
}
