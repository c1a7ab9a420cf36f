package lobby

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/park285/cheese-lobby/internal/domain"
	"github.com/park285/cheese-lobby/internal/obslog"
	"github.com/park285/cheese-lobby/pkg/lobbyproto"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func (c *Coordinator) createRoom(ctx context.Context, pid int64, p lobbyproto.CreateRoom) error {
	name := strings.TrimSpace(p.RoomName)
	if name == "" {
		return validationErr("room_name_required")
	}
	rt := domain.RoomType(strings.ToLower(strings.TrimSpace(p.RoomType)))
	if rt == "" {
		rt = domain.RoomPublic
	}
	if !rt.Valid() {
		return validationErr("room_type_invalid")
	}
	mode := domain.RoomMode(strings.ToLower(strings.TrimSpace(p.RoomMode)))
	if mode == "" {
		mode = domain.ModeNormal
	}
	if !mode.Valid() {
		return validationErr("room_mode_invalid")
	}
	if p.TimeInitialSec < 0 || p.PerMoveMaxSec < 0 || p.IncrementSec < 0 {
		return validationErr("room_time_invalid")
	}

	room := &domain.Room{
		Name:   name,
		Type:   rt,
		Mode:   mode,
		HostID: pid,
		Status: domain.RoomWaiting,
		Time: domain.TimeSettings{
			InitialSec:    p.TimeInitialSec,
			PerMoveMaxSec: p.PerMoveMaxSec,
			IncrementSec:  p.IncrementSec,
		},
		CreatedAt: c.now(),
	}
	if rt == domain.RoomPrivate && p.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), c.bcryptCost)
		if err != nil {
			return storageErr(err)
		}
		room.PasswordHash = string(hash)
	}
	created, err := c.store.CreateRoom(ctx, room)
	if err != nil {
		return storageErr(err)
	}
	obslog.L().Info("room_created",
		zap.Int64("room_id", created.ID),
		zap.String("code", created.Code),
		zap.Int64("host_id", pid),
		zap.String("room_type", string(created.Type)),
	)
	c.send(pid, lobbyproto.TypeRoomCreated, lobbyproto.RoomView{Room: created.Snapshot()})
	c.broadcastRoomList(ctx)
	return nil
}

func (c *Coordinator) loadRoom(ctx context.Context, roomID int64) (*domain.Room, error) {
	if roomID <= 0 {
		return nil, validationErr("bad_payload")
	}
	room, err := c.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, storageErr(err)
	}
	if room == nil {
		return nil, notFoundErr("room_not_found")
	}
	return room, nil
}

func (c *Coordinator) resolveRoomID(ctx context.Context, p lobbyproto.JoinRoom) (int64, error) {
	if p.RoomID > 0 {
		return p.RoomID, nil
	}
	code := strings.TrimSpace(p.RoomCode)
	if code == "" {
		return 0, validationErr("bad_payload")
	}
	room, err := c.store.GetRoomByCode(ctx, code)
	if err != nil {
		return 0, storageErr(err)
	}
	if room == nil {
		return 0, notFoundErr("room_not_found")
	}
	return room.ID, nil
}

// checkSeatOpen reports why pid cannot take the guest seat of room.
func checkSeatOpen(room *domain.Room, pid int64) error {
	switch {
	case room.HasMember(pid):
		return preconditionErr("room_already_member")
	case room.Status != domain.RoomWaiting:
		return preconditionErr("room_not_waiting")
	case room.HostID == 0:
		return preconditionErr("room_no_host")
	case room.GuestID != 0:
		return preconditionErr("room_full")
	}
	return nil
}

func checkPassword(room *domain.Room, password string) error {
	if !room.NeedsPassword() {
		return nil
	}
	if password == "" {
		return validationErr("password_required")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(room.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return authorizationErr("incorrect_password")
		}
		return storageErr(err)
	}
	return nil
}

func (c *Coordinator) joinRoom(ctx context.Context, pid int64, p lobbyproto.JoinRoom) error {
	roomID, err := c.resolveRoomID(ctx, p)
	if err != nil {
		return err
	}
	unlock := c.roomLocks.Lock(roomID)
	defer unlock()

	room, err := c.loadRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if err := checkSeatOpen(room, pid); err != nil {
		return err
	}
	if err := checkPassword(room, p.Password); err != nil {
		return err
	}
	if err := c.seatGuest(ctx, room, pid); err != nil {
		return err
	}
	c.rejectRequests(room.ID, c.takeJoinRequests(room.ID), "reasons.room_filled")
	obslog.L().Info("room_joined", zap.Int64("room_id", room.ID), zap.Int64("guest_id", pid))
	c.sendAll(lobbyproto.TypeRoomUpdated, lobbyproto.RoomView{Room: room.Snapshot()}, room.Occupants()...)
	c.broadcastRoomList(ctx)
	return nil
}

func (c *Coordinator) seatGuest(ctx context.Context, room *domain.Room, pid int64) error {
	room.GuestID = pid
	room.GuestReady = false
	if err := c.store.UpdateRoom(ctx, room); err != nil {
		return storageErr(err)
	}
	return nil
}

func (c *Coordinator) requestJoin(ctx context.Context, pid int64, p lobbyproto.RequestJoin) error {
	unlock := c.roomLocks.Lock(p.RoomID)
	defer unlock()

	room, err := c.loadRoom(ctx, p.RoomID)
	if err != nil {
		return err
	}
	if room.IsHost(pid) {
		return validationErr("self_join_request")
	}
	if err := checkSeatOpen(room, pid); err != nil {
		return err
	}
	if err := checkPassword(room, p.Password); err != nil {
		return err
	}
	if c.addJoinRequest(room.ID, pid) {
		name := c.playerName(ctx, pid)
		obslog.L().Info("room_join_requested", zap.Int64("room_id", room.ID), zap.Int64("requester_id", pid))
		c.send(room.HostID, lobbyproto.TypeRoomJoinRequest, lobbyproto.RoomJoinRequest{
			RoomID:        room.ID,
			RequesterID:   pid,
			RequesterName: name,
		})
	}
	c.send(pid, lobbyproto.TypeJoinRequestSent, lobbyproto.JoinRequestSent{RoomID: room.ID, Message: c.text("notices.join_request_sent")})
	return nil
}

func (c *Coordinator) playerName(ctx context.Context, pid int64) string {
	p, err := c.store.GetPlayer(ctx, pid)
	if err != nil {
		obslog.L().Warn("player_lookup_error", zap.Int64("player_id", pid), zap.Error(err))
	}
	if name := p.Name(); name != "" {
		return name
	}
	return strconv.FormatInt(pid, 10)
}

func (c *Coordinator) approveJoin(ctx context.Context, pid int64, p lobbyproto.JoinDecision) error {
	unlock := c.roomLocks.Lock(p.RoomID)
	defer unlock()

	room, err := c.loadRoom(ctx, p.RoomID)
	if err != nil {
		return err
	}
	if !room.IsHost(pid) {
		return authorizationErr("host_only_manage")
	}
	if !c.hasJoinRequest(room.ID, p.RequesterID) {
		return preconditionErr("join_request_missing")
	}
	if err := checkSeatOpen(room, p.RequesterID); err != nil {
		return err
	}
	if err := c.seatGuest(ctx, room, p.RequesterID); err != nil {
		return err
	}
	others := c.takeJoinRequests(room.ID)
	obslog.L().Info("room_join_approved", zap.Int64("room_id", room.ID), zap.Int64("guest_id", p.RequesterID))
	c.send(p.RequesterID, lobbyproto.TypeJoinApproved, lobbyproto.JoinApproved{Room: room.Snapshot()})
	c.rejectRequests(room.ID, without(others, p.RequesterID), "reasons.host_chose_another")
	c.sendAll(lobbyproto.TypeRoomUpdated, lobbyproto.RoomView{Room: room.Snapshot()}, room.Occupants()...)
	c.broadcastRoomList(ctx)
	return nil
}

func (c *Coordinator) rejectJoin(ctx context.Context, pid int64, p lobbyproto.JoinDecision) error {
	unlock := c.roomLocks.Lock(p.RoomID)
	defer unlock()

	room, err := c.loadRoom(ctx, p.RoomID)
	if err != nil {
		return err
	}
	if !room.IsHost(pid) {
		return authorizationErr("host_only_manage")
	}
	if !c.removeJoinRequest(room.ID, p.RequesterID) {
		return preconditionErr("join_request_missing")
	}
	c.rejectRequests(room.ID, []int64{p.RequesterID}, "reasons.rejected_by_host")
	return nil
}

func (c *Coordinator) updateReady(ctx context.Context, pid int64, p lobbyproto.RoomReady) error {
	unlock := c.roomLocks.Lock(p.RoomID)
	defer unlock()

	room, err := c.loadRoom(ctx, p.RoomID)
	if err != nil {
		return err
	}
	if !room.HasMember(pid) {
		return authorizationErr("room_not_member")
	}
	if room.Status != domain.RoomWaiting {
		return preconditionErr("room_not_waiting")
	}
	if room.IsHost(pid) {
		room.HostReady = p.IsReady
	} else {
		room.GuestReady = p.IsReady
	}
	if err := c.store.UpdateRoom(ctx, room); err != nil {
		return storageErr(err)
	}
	c.sendAll(lobbyproto.TypeRoomUpdated, lobbyproto.RoomView{Room: room.Snapshot()}, room.Occupants()...)
	return nil
}

func (c *Coordinator) startGame(ctx context.Context, pid int64, roomID int64) error {
	unlock := c.roomLocks.Lock(roomID)
	defer unlock()

	room, err := c.loadRoom(ctx, roomID)
	if err != nil {
		return err
	}
	switch {
	case !room.IsHost(pid):
		return authorizationErr("host_only_start")
	case room.Status != domain.RoomWaiting:
		return preconditionErr("room_not_waiting")
	case room.GuestID == 0:
		return preconditionErr("not_enough_players")
	case !room.HostReady || !room.GuestReady:
		return preconditionErr("players_not_ready")
	}

	room.Status = domain.RoomPlaying
	if err := c.store.UpdateRoom(ctx, room); err != nil {
		return storageErr(err)
	}
	g, err := c.createGame(ctx, room.HostID, room.GuestID, room, false)
	if err != nil {
		room.Status = domain.RoomWaiting
		if rerr := c.store.UpdateRoom(ctx, room); rerr != nil {
			obslog.L().Error("room_revert_error", zap.Int64("room_id", room.ID), zap.Error(rerr))
		}
		return storageErr(err)
	}
	for _, id := range room.Occupants() {
		if m := c.queue.Leave(id); m != nil {
			c.notifyDissolved(m, id)
		}
	}
	obslog.L().Info("room_start_game",
		zap.Int64("room_id", room.ID),
		zap.Int64("game_id", g.ID),
		zap.Int64("white_id", g.WhiteID),
		zap.Int64("black_id", g.BlackID),
	)
	c.rejectRequests(room.ID, c.takeJoinRequests(room.ID), "reasons.room_closed")
	c.announceStart(g)
	c.broadcastRoomList(ctx)
	return nil
}

func (c *Coordinator) invite(ctx context.Context, pid int64, p lobbyproto.InvitePlayer) error {
	if p.TargetPlayerID == pid {
		return validationErr("invite_self")
	}
	if p.TargetPlayerID <= 0 {
		return validationErr("bad_payload")
	}
	room, err := c.loadRoom(ctx, p.RoomID)
	if err != nil {
		return err
	}
	if !room.HasMember(pid) {
		return authorizationErr("room_not_member")
	}
	// the invitation is a notice only; an absent target simply does not receive it
	c.send(p.TargetPlayerID, lobbyproto.TypeRoomInvitation, lobbyproto.RoomInvitation{
		RoomID:       room.ID,
		RoomCode:     room.Code,
		FromPlayerID: pid,
	})
	c.send(pid, lobbyproto.TypeInvitationSent, lobbyproto.InvitationSent{
		RoomID:         room.ID,
		TargetPlayerID: p.TargetPlayerID,
		Message:        c.text("notices.invitation_sent"),
	})
	return nil
}

// leaveRoom removes pid from a room that is not mid-game. A departing host hands the
// room to the guest, or closes it when alone.
func (c *Coordinator) leaveRoom(ctx context.Context, pid int64, roomID int64) error {
	unlock := c.roomLocks.Lock(roomID)
	defer unlock()

	room, err := c.loadRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.HasMember(pid) {
		return authorizationErr("room_not_member")
	}
	if room.Status == domain.RoomPlaying {
		return preconditionErr("room_in_game")
	}

	var remaining int64
	switch {
	case room.IsHost(pid) && room.GuestID != 0:
		remaining = room.GuestID
		room.HostID = room.GuestID
		room.GuestID = 0
		room.HostReady = false
		room.GuestReady = false
		if err := c.store.UpdateRoom(ctx, room); err != nil {
			return storageErr(err)
		}
		c.rejectRequests(room.ID, c.takeJoinRequests(room.ID), "reasons.host_left")
		obslog.L().Info("room_host_promoted", zap.Int64("room_id", room.ID), zap.Int64("host_id", remaining))
	case room.IsHost(pid):
		if err := c.store.DeleteRoom(ctx, room.ID); err != nil {
			return storageErr(err)
		}
		c.rejectRequests(room.ID, c.takeJoinRequests(room.ID), "reasons.host_left")
		obslog.L().Info("room_closed", zap.Int64("room_id", room.ID))
	default:
		remaining = room.HostID
		room.GuestID = 0
		room.GuestReady = false
		if err := c.store.UpdateRoom(ctx, room); err != nil {
			return storageErr(err)
		}
	}

	c.send(pid, lobbyproto.TypeRoomLeft, lobbyproto.RoomRef{RoomID: room.ID})
	if remaining != 0 {
		c.send(remaining, lobbyproto.TypeRoomUpdated, lobbyproto.RoomView{Room: room.Snapshot()})
	}
	c.broadcastRoomList(ctx)
	return nil
}

func (c *Coordinator) listRooms(ctx context.Context, pid int64) error {
	rooms, err := c.waitingRooms(ctx)
	if err != nil {
		return storageErr(err)
	}
	c.send(pid, lobbyproto.TypeRoomListUpdated, rooms)
	return nil
}

func (c *Coordinator) waitingRooms(ctx context.Context) (lobbyproto.RoomList, error) {
	rooms, err := c.store.ListWaitingRooms(ctx)
	if err != nil {
		return lobbyproto.RoomList{}, err
	}
	out := lobbyproto.RoomList{Rooms: make([]domain.Snapshot, 0, len(rooms))}
	for _, r := range rooms {
		out.Rooms = append(out.Rooms, r.Snapshot())
	}
	return out, nil
}

// broadcastRoomList pushes the waiting-room list to every connected player.
func (c *Coordinator) broadcastRoomList(ctx context.Context) {
	rooms, err := c.waitingRooms(ctx)
	if err != nil {
		obslog.L().Warn("room_list_error", zap.Error(err))
		return
	}
	c.hub.Broadcast(lobbyproto.Must(lobbyproto.TypeRoomListUpdated, rooms))
}

// addJoinRequest records a pending request and reports whether it is new.
func (c *Coordinator) addJoinRequest(roomID, pid int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range c.joinRequests[roomID] {
		if id == pid {
			return false
		}
	}
	c.joinRequests[roomID] = append(c.joinRequests[roomID], pid)
	return true
}

func (c *Coordinator) hasJoinRequest(roomID, pid int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range c.joinRequests[roomID] {
		if id == pid {
			return true
		}
	}
	return false
}

func (c *Coordinator) removeJoinRequest(roomID, pid int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.joinRequests[roomID]
	for i, id := range list {
		if id == pid {
			list = append(list[:i:i], list[i+1:]...)
			if len(list) == 0 {
				delete(c.joinRequests, roomID)
			} else {
				c.joinRequests[roomID] = list
			}
			return true
		}
	}
	return false
}

func (c *Coordinator) takeJoinRequests(roomID int64) []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.joinRequests[roomID]
	delete(c.joinRequests, roomID)
	return list
}

func (c *Coordinator) rejectRequests(roomID int64, requesters []int64, reasonKey string) {
	if len(requesters) == 0 {
		return
	}
	c.sendAll(lobbyproto.TypeJoinRejected, lobbyproto.JoinRejected{RoomID: roomID, Reason: c.text(reasonKey)}, requesters...)
}

func without(ids []int64, drop int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}
