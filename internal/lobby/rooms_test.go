package lobby

import (
	"testing"
	"time"

	"github.com/park285/cheese-lobby/internal/domain"
	"github.com/park285/cheese-lobby/internal/store"
	"github.com/park285/cheese-lobby/pkg/lobbyproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createRoom(t *testing.T, l *testLobby, host int64, p lobbyproto.CreateRoom) domain.Snapshot {
	t.Helper()
	l.do(host, lobbyproto.TypeCreateRoom, p)
	var view lobbyproto.RoomView
	l.conns[host].last(t, lobbyproto.TypeRoomCreated, &view)
	return view.Room
}

func TestCreateRoomValidation(t *testing.T) {
	tests := []struct {
		name string
		in   lobbyproto.CreateRoom
	}{
		{"missing name", lobbyproto.CreateRoom{RoomName: "  "}},
		{"bad type", lobbyproto.CreateRoom{RoomName: "r", RoomType: "secret"}},
		{"bad mode", lobbyproto.CreateRoom{RoomName: "r", RoomMode: "blitz"}},
		{"negative time", lobbyproto.CreateRoom{RoomName: "r", TimeInitialSec: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLobby(t)
			a := l.connect(1)
			l.do(1, lobbyproto.TypeCreateRoom, tt.in)
			assert.Equal(t, string(KindValidation), a.lastError(t).Code)
			assert.Zero(t, a.count(lobbyproto.TypeRoomCreated))
		})
	}
}

func TestCreateRoomBroadcastsList(t *testing.T) {
	l := newTestLobby(t)
	l.connect(1)
	watcher := l.connect(9)

	room := createRoom(t, l, 1, lobbyproto.CreateRoom{RoomName: "open"})
	assert.Len(t, room.Code, 6)
	assert.Equal(t, domain.RoomPublic, room.Type)
	assert.Equal(t, domain.ModeNormal, room.Mode)
	assert.False(t, room.HasPassword)

	var list lobbyproto.RoomList
	watcher.last(t, lobbyproto.TypeRoomListUpdated, &list)
	require.Len(t, list.Rooms, 1)
	assert.Equal(t, room.ID, list.Rooms[0].ID)
}

func TestPrivateRoomPassword(t *testing.T) {
	l := newTestLobby(t)
	host, guest := l.connect(1), l.connect(2)
	room := createRoom(t, l, 1, lobbyproto.CreateRoom{RoomName: "private", RoomType: "private", Password: "xyz"})
	assert.True(t, room.HasPassword)

	stored, err := l.st.GetRoom(t.Context(), room.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "xyz", stored.PasswordHash)

	l.do(2, lobbyproto.TypeJoinRoom, lobbyproto.JoinRoom{RoomID: room.ID})
	e := guest.lastError(t)
	assert.Equal(t, string(KindValidation), e.Code)
	assert.Equal(t, "password required", e.Message)

	l.do(2, lobbyproto.TypeJoinRoom, lobbyproto.JoinRoom{RoomID: room.ID, Password: "abc"})
	e = guest.lastError(t)
	assert.Equal(t, string(KindAuthorization), e.Code)
	assert.Equal(t, "incorrect password", e.Message)

	l.do(2, lobbyproto.TypeJoinRoom, lobbyproto.JoinRoom{RoomCode: room.Code, Password: "xyz"})
	var hv, gv lobbyproto.RoomView
	host.last(t, lobbyproto.TypeRoomUpdated, &hv)
	guest.last(t, lobbyproto.TypeRoomUpdated, &gv)
	assert.Equal(t, int64(2), hv.Room.GuestID)
	assert.Equal(t, hv, gv)
}

func TestJoinFullRoom(t *testing.T) {
	l := newTestLobby(t)
	l.connect(1)
	l.connect(2)
	c := l.connect(3)
	room := createRoom(t, l, 1, lobbyproto.CreateRoom{RoomName: "duel"})
	l.do(2, lobbyproto.TypeJoinRoom, lobbyproto.JoinRoom{RoomID: room.ID})

	l.do(3, lobbyproto.TypeJoinRoom, lobbyproto.JoinRoom{RoomID: room.ID})
	e := c.lastError(t)
	assert.Equal(t, string(KindPrecondition), e.Code)
	assert.Equal(t, "room is full", e.Message)
}

func TestJoinRequestFlow(t *testing.T) {
	l := newTestLobby(t)
	host, b, c := l.connect(1), l.connect(2), l.connect(3)
	require.NoError(t, l.st.UpsertPlayer(t.Context(), &domain.Player{ID: 2, Username: "bob"}))
	room := createRoom(t, l, 1, lobbyproto.CreateRoom{RoomName: "gated"})

	l.do(2, lobbyproto.TypeRequestJoin, lobbyproto.RequestJoin{RoomID: room.ID})
	l.do(2, lobbyproto.TypeRequestJoin, lobbyproto.RequestJoin{RoomID: room.ID})
	l.do(3, lobbyproto.TypeRequestJoin, lobbyproto.RequestJoin{RoomID: room.ID})

	assert.Equal(t, 2, host.count(lobbyproto.TypeRoomJoinRequest))
	assert.Equal(t, 2, b.count(lobbyproto.TypeJoinRequestSent))
	var req lobbyproto.RoomJoinRequest
	require.NoError(t, jsonFirst(host, lobbyproto.TypeRoomJoinRequest, &req))
	assert.Equal(t, "bob", req.RequesterName)

	l.do(2, lobbyproto.TypeApproveJoin, lobbyproto.JoinDecision{RoomID: room.ID, RequesterID: 3})
	assert.Equal(t, string(KindAuthorization), b.lastError(t).Code)

	l.do(1, lobbyproto.TypeApproveJoin, lobbyproto.JoinDecision{RoomID: room.ID, RequesterID: 2})
	var approved lobbyproto.JoinApproved
	b.last(t, lobbyproto.TypeJoinApproved, &approved)
	assert.Equal(t, int64(2), approved.Room.GuestID)

	var rejected lobbyproto.JoinRejected
	c.last(t, lobbyproto.TypeJoinRejected, &rejected)
	assert.Equal(t, "host chose another", rejected.Reason)

	l.do(1, lobbyproto.TypeApproveJoin, lobbyproto.JoinDecision{RoomID: room.ID, RequesterID: 3})
	assert.Equal(t, string(KindPrecondition), host.lastError(t).Code)
}

func TestRejectJoin(t *testing.T) {
	l := newTestLobby(t)
	l.connect(1)
	b := l.connect(2)
	room := createRoom(t, l, 1, lobbyproto.CreateRoom{RoomName: "gated"})

	l.do(1, lobbyproto.TypeRequestJoin, lobbyproto.RequestJoin{RoomID: room.ID})
	assert.Equal(t, string(KindValidation), l.conns[1].lastError(t).Code)

	l.do(2, lobbyproto.TypeRequestJoin, lobbyproto.RequestJoin{RoomID: room.ID})
	l.do(1, lobbyproto.TypeRejectJoin, lobbyproto.JoinDecision{RoomID: room.ID, RequesterID: 2})
	var rejected lobbyproto.JoinRejected
	b.last(t, lobbyproto.TypeJoinRejected, &rejected)
	assert.Equal(t, "rejected by host", rejected.Reason)
	assert.False(t, l.c.hasJoinRequest(room.ID, 2))
}

func TestStartGameRequiresReadyPlayers(t *testing.T) {
	l := newTestLobby(t)
	host, guest := l.connect(1), l.connect(2)
	room := createRoom(t, l, 1, lobbyproto.CreateRoom{RoomName: "duel"})

	l.do(1, lobbyproto.TypeStartGame, lobbyproto.RoomRef{RoomID: room.ID})
	assert.Equal(t, "not enough players", host.lastError(t).Message)

	l.do(2, lobbyproto.TypeJoinRoom, lobbyproto.JoinRoom{RoomID: room.ID})
	l.do(1, lobbyproto.TypeRoomReady, lobbyproto.RoomReady{RoomID: room.ID, IsReady: true})
	l.do(1, lobbyproto.TypeStartGame, lobbyproto.RoomRef{RoomID: room.ID})
	assert.Equal(t, "both players must be ready", host.lastError(t).Message)

	l.do(2, lobbyproto.TypeRoomReady, lobbyproto.RoomReady{RoomID: room.ID, IsReady: true})
	l.do(2, lobbyproto.TypeStartGame, lobbyproto.RoomRef{RoomID: room.ID})
	assert.Equal(t, string(KindAuthorization), guest.lastError(t).Code)

	l.do(1, lobbyproto.TypeStartGame, lobbyproto.RoomRef{RoomID: room.ID})
	var hs, gs lobbyproto.GameStarted
	host.last(t, lobbyproto.TypeGameStarted, &hs)
	guest.last(t, lobbyproto.TypeGameStarted, &gs)
	assert.Equal(t, hs, gs)
	assert.False(t, hs.IsRanked)
	assert.Equal(t, int64(1), hs.WhitePlayerID)
	assert.Equal(t, room.ID, hs.RoomID)

	stored, err := l.st.GetRoom(t.Context(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomPlaying, stored.Status)

	l.do(2, lobbyproto.TypeLeaveRoom, lobbyproto.RoomRef{RoomID: room.ID})
	assert.Equal(t, "the game in this room is still in progress", guest.lastError(t).Message)
}

func TestStartGameRemovesPlayersFromQueue(t *testing.T) {
	l := newTestLobby(t)
	l.connect(1)
	l.connect(2)
	l.do(2, lobbyproto.TypeJoinMatchmaking, nil)
	require.True(t, l.c.Queue().IsQueued(2))

	l.roomGame(1, 2, lobbyproto.CreateRoom{})
	assert.False(t, l.c.Queue().IsQueued(2))
}

func TestStartGameFailureKeepsPendingMatch(t *testing.T) {
	var flaky *flakyStore
	l := newTestLobbyOn(t, func(m *store.Memory) store.Store {
		flaky = &flakyStore{Memory: m}
		return flaky
	})
	host := l.connect(1)
	l.connect(2)
	third := l.connect(3)
	room := createRoom(t, l, 1, lobbyproto.CreateRoom{RoomName: "duel"})
	l.do(2, lobbyproto.TypeJoinRoom, lobbyproto.JoinRoom{RoomID: room.ID})
	l.do(1, lobbyproto.TypeRoomReady, lobbyproto.RoomReady{RoomID: room.ID, IsReady: true})
	l.do(2, lobbyproto.TypeRoomReady, lobbyproto.RoomReady{RoomID: room.ID, IsReady: true})
	matchID := l.pair(2, 1000, 3, 1000)

	flaky.failRoomUpdates(true)
	l.do(1, lobbyproto.TypeStartGame, lobbyproto.RoomRef{RoomID: room.ID})
	assert.Equal(t, string(KindStorage), host.lastError(t).Code)
	assert.True(t, l.c.Queue().InPending(2))
	assert.True(t, l.c.Queue().InPending(3))
	assert.Zero(t, third.count(lobbyproto.TypeMatchDeclined))
	assert.Zero(t, l.c.ActiveGames())
	stored, err := l.st.GetRoom(t.Context(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomWaiting, stored.Status)

	flaky.failRoomUpdates(false)
	l.do(1, lobbyproto.TypeStartGame, lobbyproto.RoomRef{RoomID: room.ID})
	assert.Equal(t, 1, host.count(lobbyproto.TypeGameStarted))
	var declined lobbyproto.MatchDeclined
	third.last(t, lobbyproto.TypeMatchDeclined, &declined)
	assert.Equal(t, matchID, declined.MatchID)
	assert.True(t, declined.ByOpponent)
	assert.False(t, l.c.Queue().InPending(2))
	assert.True(t, l.c.Queue().IsQueued(3))
}

func TestHostLeavePromotesGuest(t *testing.T) {
	l := newTestLobby(t)
	host, guest := l.connect(1), l.connect(2)
	room := createRoom(t, l, 1, lobbyproto.CreateRoom{RoomName: "duel"})
	l.do(2, lobbyproto.TypeJoinRoom, lobbyproto.JoinRoom{RoomID: room.ID})
	l.do(2, lobbyproto.TypeRoomReady, lobbyproto.RoomReady{RoomID: room.ID, IsReady: true})

	l.do(1, lobbyproto.TypeLeaveRoom, lobbyproto.RoomRef{RoomID: room.ID})

	assert.Equal(t, 1, host.count(lobbyproto.TypeRoomLeft))
	var view lobbyproto.RoomView
	guest.last(t, lobbyproto.TypeRoomUpdated, &view)
	assert.Equal(t, int64(2), view.Room.HostID)
	assert.Zero(t, view.Room.GuestID)
	assert.False(t, view.Room.HostReady)
	assert.False(t, view.Room.GuestReady)

	l.do(2, lobbyproto.TypeLeaveRoom, lobbyproto.RoomRef{RoomID: room.ID})
	stored, err := l.st.GetRoom(t.Context(), room.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestGuestLeaveFreesSeat(t *testing.T) {
	l := newTestLobby(t)
	host := l.connect(1)
	l.connect(2)
	room := createRoom(t, l, 1, lobbyproto.CreateRoom{RoomName: "duel"})
	l.do(2, lobbyproto.TypeJoinRoom, lobbyproto.JoinRoom{RoomID: room.ID})

	l.do(2, lobbyproto.TypeLeaveRoom, lobbyproto.RoomRef{RoomID: room.ID})
	var view lobbyproto.RoomView
	host.last(t, lobbyproto.TypeRoomUpdated, &view)
	assert.Equal(t, int64(1), view.Room.HostID)
	assert.Zero(t, view.Room.GuestID)
}

func TestInvitePlayer(t *testing.T) {
	l := newTestLobby(t)
	host, target := l.connect(1), l.connect(2)
	room := createRoom(t, l, 1, lobbyproto.CreateRoom{RoomName: "duel"})

	l.do(1, lobbyproto.TypeInvitePlayer, lobbyproto.InvitePlayer{RoomID: room.ID, TargetPlayerID: 2})
	var inv lobbyproto.RoomInvitation
	target.last(t, lobbyproto.TypeRoomInvitation, &inv)
	assert.Equal(t, room.ID, inv.RoomID)
	assert.Equal(t, room.Code, inv.RoomCode)
	assert.Equal(t, int64(1), inv.FromPlayerID)
	assert.Equal(t, 1, host.count(lobbyproto.TypeInvitationSent))

	// an offline target is not an error; the notice is just undeliverable
	l.do(1, lobbyproto.TypeInvitePlayer, lobbyproto.InvitePlayer{RoomID: room.ID, TargetPlayerID: 7})
	assert.Zero(t, host.count(lobbyproto.TypeError))
	assert.Equal(t, 2, host.count(lobbyproto.TypeInvitationSent))

	l.do(1, lobbyproto.TypeInvitePlayer, lobbyproto.InvitePlayer{RoomID: room.ID, TargetPlayerID: 1})
	assert.Equal(t, string(KindValidation), host.lastError(t).Code)
}

func TestInvitePlayerInsideGracePeriod(t *testing.T) {
	l := newTestLobby(t, func(c *Config) { c.Grace = time.Second })
	host, target := l.connect(1), l.connect(2)
	room := createRoom(t, l, 1, lobbyproto.CreateRoom{RoomName: "duel"})

	l.c.Disconnect(2, target)
	assert.True(t, l.reg.IsOnline(2))

	l.do(1, lobbyproto.TypeInvitePlayer, lobbyproto.InvitePlayer{RoomID: room.ID, TargetPlayerID: 2})
	assert.Zero(t, host.count(lobbyproto.TypeError))
	assert.Equal(t, 1, host.count(lobbyproto.TypeInvitationSent))
	assert.Zero(t, target.count(lobbyproto.TypeRoomInvitation))
}

func TestListRoomsOnlyWaiting(t *testing.T) {
	l := newTestLobby(t)
	a := l.connect(1)
	l.connect(2)
	l.connect(3)
	l.roomGame(1, 2, lobbyproto.CreateRoom{RoomName: "busy"})
	open := createRoom(t, l, 3, lobbyproto.CreateRoom{RoomName: "open"})

	a.reset()
	l.do(1, lobbyproto.TypeListRooms, nil)
	var list lobbyproto.RoomList
	a.last(t, lobbyproto.TypeRoomListUpdated, &list)
	require.Len(t, list.Rooms, 1)
	assert.Equal(t, open.ID, list.Rooms[0].ID)
}
