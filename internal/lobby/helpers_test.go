package lobby

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/park285/cheese-lobby/internal/domain"
	"github.com/park285/cheese-lobby/internal/hub"
	"github.com/park285/cheese-lobby/internal/store"
	"github.com/park285/cheese-lobby/pkg/lobbyproto"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type recConn struct {
	id string

	mu     sync.Mutex
	events []lobbyproto.Envelope
	closed string
}

func (r *recConn) ID() string { return r.id }

func (r *recConn) Send(env lobbyproto.Envelope) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed != "" {
		return false
	}
	r.events = append(r.events, env)
	return true
}

func (r *recConn) Close(reason string) {
	r.mu.Lock()
	r.closed = reason
	r.mu.Unlock()
}

func (r *recConn) all(eventType string) []lobbyproto.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []lobbyproto.Envelope
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (r *recConn) count(eventType string) int { return len(r.all(eventType)) }

func (r *recConn) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// last decodes the most recent eventType payload into v.
func (r *recConn) last(t *testing.T, eventType string, v any) {
	t.Helper()
	got := r.all(eventType)
	require.NotEmpty(t, got, "no %s event for %s", eventType, r.id)
	require.NoError(t, json.Unmarshal(got[len(got)-1].Payload, v))
}

func (r *recConn) lastError(t *testing.T) lobbyproto.Error {
	t.Helper()
	var e lobbyproto.Error
	r.last(t, lobbyproto.TypeError, &e)
	return e
}

type testLobby struct {
	t     *testing.T
	c     *Coordinator
	st    *store.Memory
	reg   *hub.Registry
	conns map[int64]*recConn
}

func newTestLobby(t *testing.T, mutate ...func(*Config)) *testLobby {
	t.Helper()
	return newTestLobbyOn(t, nil, mutate...)
}

// newTestLobbyOn lets wrap put a decorated store in front of the memory store.
func newTestLobbyOn(t *testing.T, wrap func(*store.Memory) store.Store, mutate ...func(*Config)) *testLobby {
	t.Helper()
	cfg := Config{
		Grace:         50 * time.Millisecond,
		AcceptTimeout: 30 * time.Second,
		BcryptCost:    bcrypt.MinCost,
		Coin:          func() bool { return true },
	}
	for _, m := range mutate {
		m(&cfg)
	}
	st := store.NewMemory()
	var backend store.Store = st
	if wrap != nil {
		backend = wrap(st)
	}
	reg := hub.NewRegistry()
	c := New(backend, reg, cfg)
	t.Cleanup(c.Close)
	return &testLobby{t: t, c: c, st: st, reg: reg, conns: make(map[int64]*recConn)}
}

func (l *testLobby) connect(pid int64) *recConn {
	conn := &recConn{id: fmt.Sprintf("conn-%d-%d", pid, len(l.conns))}
	l.c.Connect(context.Background(), pid, conn)
	l.conns[pid] = conn
	return conn
}

func (l *testLobby) do(pid int64, eventType string, payload any) {
	l.t.Helper()
	l.c.Handle(context.Background(), pid, lobbyproto.Must(eventType, payload))
}

// pair queues two players with the given scores and returns the match id.
func (l *testLobby) pair(p1 int64, s1 int, p2 int64, s2 int) string {
	l.t.Helper()
	l.st.SetStats(statsFor(p1, s1))
	l.st.SetStats(statsFor(p2, s2))
	l.do(p1, lobbyproto.TypeJoinMatchmaking, nil)
	l.do(p2, lobbyproto.TypeJoinMatchmaking, nil)
	var found lobbyproto.MatchFound
	l.conns[p1].last(l.t, lobbyproto.TypeMatchFound, &found)
	return found.MatchID
}

// flakyStore fails room updates on demand.
type flakyStore struct {
	*store.Memory

	mu         sync.Mutex
	failUpdate bool
}

var errRoomWrite = errors.New("room write: connection reset")

func (f *flakyStore) failRoomUpdates(fail bool) {
	f.mu.Lock()
	f.failUpdate = fail
	f.mu.Unlock()
}

func (f *flakyStore) UpdateRoom(ctx context.Context, r *domain.Room) error {
	f.mu.Lock()
	fail := f.failUpdate
	f.mu.Unlock()
	if fail {
		return errRoomWrite
	}
	return f.Memory.UpdateRoom(ctx, r)
}

func statsFor(pid int64, points int) domain.PlayerStats {
	return domain.PlayerStats{PlayerID: pid, Points: points}
}

// roomGame seats host and guest in a fresh room, readies both and starts the game.
func (l *testLobby) roomGame(host, guest int64, create lobbyproto.CreateRoom) lobbyproto.GameStarted {
	l.t.Helper()
	if create.RoomName == "" {
		create.RoomName = "casual"
	}
	l.do(host, lobbyproto.TypeCreateRoom, create)
	var created lobbyproto.RoomView
	l.conns[host].last(l.t, lobbyproto.TypeRoomCreated, &created)
	roomID := created.Room.ID
	l.do(guest, lobbyproto.TypeJoinRoom, lobbyproto.JoinRoom{RoomID: roomID, Password: create.Password})
	l.do(host, lobbyproto.TypeRoomReady, lobbyproto.RoomReady{RoomID: roomID, IsReady: true})
	l.do(guest, lobbyproto.TypeRoomReady, lobbyproto.RoomReady{RoomID: roomID, IsReady: true})
	l.do(host, lobbyproto.TypeStartGame, lobbyproto.RoomRef{RoomID: roomID})
	var started lobbyproto.GameStarted
	l.conns[host].last(l.t, lobbyproto.TypeGameStarted, &started)
	return started
}

func jsonFirst(r *recConn, eventType string, v any) error {
	got := r.all(eventType)
	if len(got) == 0 {
		return fmt.Errorf("no %s event for %s", eventType, r.id)
	}
	return json.Unmarshal(got[0].Payload, v)
}

func (r *recConn) closedReason() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
