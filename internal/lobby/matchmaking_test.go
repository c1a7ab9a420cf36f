package lobby

import (
	"sync"
	"testing"
	"time"

	"github.com/park285/cheese-lobby/internal/domain"
	"github.com/park285/cheese-lobby/pkg/lobbyproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinMatchmakingPairsWithinGap(t *testing.T) {
	l := newTestLobby(t)
	a, b := l.connect(1), l.connect(2)
	l.st.SetStats(statsFor(1, 1000))
	l.st.SetStats(statsFor(2, 1030))

	l.do(1, lobbyproto.TypeJoinMatchmaking, nil)
	var joined lobbyproto.MatchmakingJoined
	a.last(t, lobbyproto.TypeMatchmakingJoined, &joined)
	assert.Equal(t, 1, joined.QueueSize)

	l.do(2, lobbyproto.TypeJoinMatchmaking, nil)
	var fa, fb lobbyproto.MatchFound
	a.last(t, lobbyproto.TypeMatchFound, &fa)
	b.last(t, lobbyproto.TypeMatchFound, &fb)
	assert.NotEmpty(t, fa.MatchID)
	assert.Equal(t, fa.MatchID, fb.MatchID)
	assert.Equal(t, int64(2), fa.OpponentID)
	assert.Equal(t, int64(1), fb.OpponentID)
	assert.Equal(t, 0, l.c.Queue().Size())
}

func TestJoinMatchmakingKeepsDistantPlayersQueued(t *testing.T) {
	l := newTestLobby(t)
	a, b := l.connect(1), l.connect(2)
	l.st.SetStats(statsFor(1, 1000))
	l.st.SetStats(statsFor(2, 1051))

	l.do(1, lobbyproto.TypeJoinMatchmaking, nil)
	l.do(2, lobbyproto.TypeJoinMatchmaking, nil)

	assert.Zero(t, a.count(lobbyproto.TypeMatchFound))
	assert.Zero(t, b.count(lobbyproto.TypeMatchFound))
	assert.Equal(t, 2, l.c.Queue().Size())
}

func TestJoinMatchmakingRejectsPlayerInPendingMatch(t *testing.T) {
	l := newTestLobby(t)
	a := l.connect(1)
	l.connect(2)
	l.pair(1, 1000, 2, 1000)

	l.do(1, lobbyproto.TypeJoinMatchmaking, nil)
	e := a.lastError(t)
	assert.Equal(t, string(KindPrecondition), e.Code)
	assert.Equal(t, "you already have a pending match", e.Message)
}

func TestAcceptMatchStartsRankedGame(t *testing.T) {
	l := newTestLobby(t)
	a, b := l.connect(1), l.connect(2)
	matchID := l.pair(1, 1000, 2, 1020)

	l.do(1, lobbyproto.TypeAcceptMatch, lobbyproto.MatchRef{MatchID: matchID})
	assert.Equal(t, 1, a.count(lobbyproto.TypeMatchAccepted))
	assert.Zero(t, b.count(lobbyproto.TypeGameStarted))

	l.do(2, lobbyproto.TypeAcceptMatch, lobbyproto.MatchRef{MatchID: matchID})
	var ga, gb lobbyproto.GameStarted
	a.last(t, lobbyproto.TypeGameStarted, &ga)
	b.last(t, lobbyproto.TypeGameStarted, &gb)
	assert.Equal(t, ga, gb)
	assert.True(t, ga.IsRanked)
	assert.ElementsMatch(t, []int64{1, 2}, []int64{ga.WhitePlayerID, ga.BlackPlayerID})
	assert.Equal(t, 1, l.c.ActiveGames())
	assert.Zero(t, l.c.Queue().PendingCount())

	room, err := l.st.GetRoom(t.Context(), ga.RoomID)
	require.NoError(t, err)
	require.NotNil(t, room)
	assert.Equal(t, domain.RoomPlaying, room.Status)
	assert.Equal(t, rankedRoomName, room.Name)
}

func TestAcceptUnknownMatch(t *testing.T) {
	l := newTestLobby(t)
	a := l.connect(1)

	l.do(1, lobbyproto.TypeAcceptMatch, lobbyproto.MatchRef{MatchID: "missing"})
	assert.Equal(t, string(KindNotFound), a.lastError(t).Code)
}

func TestAcceptMatchByOutsider(t *testing.T) {
	l := newTestLobby(t)
	l.connect(1)
	l.connect(2)
	c := l.connect(3)
	matchID := l.pair(1, 1000, 2, 1000)

	l.do(3, lobbyproto.TypeAcceptMatch, lobbyproto.MatchRef{MatchID: matchID})
	assert.Equal(t, string(KindAuthorization), c.lastError(t).Code)
}

func TestDeclineMatchRequeuesBoth(t *testing.T) {
	l := newTestLobby(t)
	a, b := l.connect(1), l.connect(2)
	matchID := l.pair(1, 1000, 2, 1000)

	l.do(2, lobbyproto.TypeDeclineMatch, lobbyproto.MatchRef{MatchID: matchID})

	var da, db lobbyproto.MatchDeclined
	a.last(t, lobbyproto.TypeMatchDeclined, &da)
	b.last(t, lobbyproto.TypeMatchDeclined, &db)
	assert.True(t, da.ByOpponent)
	assert.False(t, db.ByOpponent)
	assert.Equal(t, 2, l.c.Queue().Size())
	assert.Zero(t, l.c.Queue().PendingCount())

	// a second decline finds nothing
	l.do(1, lobbyproto.TypeDeclineMatch, lobbyproto.MatchRef{MatchID: matchID})
	assert.Equal(t, string(KindNotFound), a.lastError(t).Code)
	assert.Equal(t, 2, l.c.Queue().Size())
}

func TestSweepExpiredMatchesDeclineOutcome(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	l := newTestLobby(t, func(c *Config) { c.Now = clock })
	a, b := l.connect(1), l.connect(2)
	matchID := l.pair(1, 1000, 2, 1000)

	assert.Zero(t, l.c.SweepExpired())

	mu.Lock()
	now = now.Add(31 * time.Second)
	mu.Unlock()
	assert.Equal(t, 1, l.c.SweepExpired())

	var ea, eb lobbyproto.MatchExpired
	a.last(t, lobbyproto.TypeMatchExpired, &ea)
	b.last(t, lobbyproto.TypeMatchExpired, &eb)
	assert.Equal(t, matchID, ea.MatchID)
	assert.Equal(t, matchID, eb.MatchID)
	assert.True(t, l.c.Queue().IsQueued(1))
	assert.True(t, l.c.Queue().IsQueued(2))
	assert.Equal(t, 2, l.c.Queue().Size())
}

func TestLeaveMatchmakingDissolvesPendingMatch(t *testing.T) {
	l := newTestLobby(t)
	a, b := l.connect(1), l.connect(2)
	l.pair(1, 1000, 2, 1000)

	l.do(1, lobbyproto.TypeLeaveMatchmaking, nil)

	assert.Equal(t, 1, a.count(lobbyproto.TypeMatchmakingLeft))
	var d lobbyproto.MatchDeclined
	b.last(t, lobbyproto.TypeMatchDeclined, &d)
	assert.True(t, d.ByOpponent)
	assert.False(t, l.c.Queue().IsQueued(1))
	assert.True(t, l.c.Queue().IsQueued(2))
}

func TestJoinMatchmakingWhilePlaying(t *testing.T) {
	l := newTestLobby(t)
	a := l.connect(1)
	l.connect(2)
	matchID := l.pair(1, 1000, 2, 1000)
	l.do(1, lobbyproto.TypeAcceptMatch, lobbyproto.MatchRef{MatchID: matchID})
	l.do(2, lobbyproto.TypeAcceptMatch, lobbyproto.MatchRef{MatchID: matchID})

	l.do(1, lobbyproto.TypeJoinMatchmaking, nil)
	e := a.lastError(t)
	assert.Equal(t, string(KindPrecondition), e.Code)
	assert.False(t, l.c.Queue().IsQueued(1))
}
