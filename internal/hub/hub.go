package hub

import (
	"sync"

	"github.com/park285/cheese-lobby/internal/obslog"
	"github.com/park285/cheese-lobby/pkg/lobbyproto"
	"go.uber.org/zap"
)

// Conn is a live transport handle. Send must not block: it enqueues the event on the
// connection's single outbound queue and reports false when the handle is closed or
// cannot accept more events.
type Conn interface {
	ID() string
	Send(env lobbyproto.Envelope) bool
	Close(reason string)
}

const ReasonSuperseded = "superseded by a newer connection"

// Registry maps each player to their one connection. A dropped connection stays
// registered, detached, until the reconnect grace period decides its fate.
type Registry struct {
	mu    sync.RWMutex
	conns map[int64]*entry
}

type entry struct {
	conn     Conn
	detached bool
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[int64]*entry)}
}

// Register stores c as the player's handle and closes any older handle.
func (r *Registry) Register(playerID int64, c Conn) (superseded bool) {
	r.mu.Lock()
	old := r.conns[playerID]
	r.conns[playerID] = &entry{conn: c}
	r.mu.Unlock()
	if old != nil && old.conn != c {
		obslog.L().Info("connection_superseded",
			zap.Int64("player_id", playerID),
			zap.String("old_conn", old.conn.ID()),
			zap.String("new_conn", c.ID()),
			zap.Bool("old_detached", old.detached),
		)
		old.conn.Close(ReasonSuperseded)
		return true
	}
	return false
}

// Detach marks c as dropped when it is still the player's current handle, so a
// superseded connection closing late cannot affect its replacement. The player stays
// registered; sends to a detached handle are undeliverable.
func (r *Registry) Detach(playerID int64, c Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.conns[playerID]
	if !ok || cur.conn != c {
		return false
	}
	cur.detached = true
	return true
}

// Remove drops the player's entry only while it is detached. It reports false when a
// newer connection was registered in the meantime.
func (r *Registry) Remove(playerID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.conns[playerID]
	if !ok || !cur.detached {
		return false
	}
	delete(r.conns, playerID)
	return true
}

func (r *Registry) live(playerID int64) Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e := r.conns[playerID]
	if e == nil || e.detached {
		return nil
	}
	return e.conn
}

// Send delivers env to the player's live handle. It reports false when the player
// has no live handle or the handle refused the event; callers treat that as undeliverable.
func (r *Registry) Send(playerID int64, env lobbyproto.Envelope) bool {
	c := r.live(playerID)
	if c == nil {
		return false
	}
	return c.Send(env)
}

// SendAll sends env to each listed player and returns how many accepted it.
func (r *Registry) SendAll(env lobbyproto.Envelope, playerIDs ...int64) int {
	n := 0
	for _, id := range playerIDs {
		if id != 0 && r.Send(id, env) {
			n++
		}
	}
	return n
}

// Broadcast sends env to every player with a live handle.
func (r *Registry) Broadcast(env lobbyproto.Envelope) int {
	r.mu.RLock()
	targets := make([]Conn, 0, len(r.conns))
	for _, e := range r.conns {
		if !e.detached {
			targets = append(targets, e.conn)
		}
	}
	r.mu.RUnlock()
	n := 0
	for _, c := range targets {
		if c.Send(env) {
			n++
		}
	}
	return n
}

// IsOnline reports whether the player is registered, including inside a grace period.
func (r *Registry) IsOnline(playerID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[playerID]
	return ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll closes every handle, used on shutdown.
func (r *Registry) CloseAll(reason string) {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[int64]*entry)
	r.mu.Unlock()
	for _, e := range conns {
		e.conn.Close(reason)
	}
}
