package lobby

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/park285/cheese-lobby/internal/announce"
	"github.com/park285/cheese-lobby/internal/domain"
	"github.com/park285/cheese-lobby/internal/hub"
	"github.com/park285/cheese-lobby/internal/matchmaking"
	"github.com/park285/cheese-lobby/internal/metrics"
	"github.com/park285/cheese-lobby/internal/msgcat"
	"github.com/park285/cheese-lobby/internal/obslog"
	"github.com/park285/cheese-lobby/internal/presence"
	"github.com/park285/cheese-lobby/internal/store"
	"github.com/park285/cheese-lobby/pkg/lobbyproto"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultSweepInterval = 10 * time.Second
	DefaultMaxChatLength = 500

	statusTimeout = 5 * time.Second
)

// MoveValidator is the optional server-side rules check. Without one, clients are
// trusted for chess legality and only color ownership and turn order are enforced.
type MoveValidator interface {
	CheckMove(prevFEN, move, claimedFEN string) (string, error)
	CheckTerminal(fen string, result domain.Result) error
}

type Config struct {
	Grace         time.Duration
	AcceptTimeout time.Duration
	SweepInterval time.Duration
	MaxChatLength int
	BcryptCost    int

	Validator MoveValidator
	Results   announce.Publisher
	Metrics   metrics.LobbyMetrics
	Catalog   *msgcat.Catalog

	// Coin decides color assignment; true gives white to the first player.
	Coin func() bool
	Now  func() time.Time
}

// Coordinator owns all in-memory lobby state of one process: the matchmaking queue,
// pending join requests, draw offers and game clocks.
type Coordinator struct {
	store    store.Store
	hub      *hub.Registry
	queue    *matchmaking.Queue
	presence *presence.Supervisor
	catalog  *msgcat.Catalog
	metrics  metrics.LobbyMetrics
	results  announce.Publisher
	rules    MoveValidator

	sweepInterval time.Duration
	maxChat       int
	bcryptCost    int
	coin          func() bool
	now           func() time.Time

	roomLocks   *keyedMutex
	gameLocks   *keyedMutex
	playerLocks *keyedMutex

	mu           sync.Mutex
	joinRequests map[int64][]int64 // roomID -> requesters in arrival order
	drawOffers   map[int64]int64   // gameID -> offering player
	clocks       map[int64]*gameClock
	active       map[int64]struct{}
}

func New(st store.Store, reg *hub.Registry, cfg Config) *Coordinator {
	c := &Coordinator{
		store:         st,
		hub:           reg,
		catalog:       cfg.Catalog,
		metrics:       cfg.Metrics,
		results:       cfg.Results,
		rules:         cfg.Validator,
		sweepInterval: cfg.SweepInterval,
		maxChat:       cfg.MaxChatLength,
		bcryptCost:    cfg.BcryptCost,
		coin:          cfg.Coin,
		now:           cfg.Now,
		roomLocks:     newKeyedMutex(),
		gameLocks:     newKeyedMutex(),
		playerLocks:   newKeyedMutex(),
		joinRequests:  make(map[int64][]int64),
		drawOffers:    make(map[int64]int64),
		clocks:        make(map[int64]*gameClock),
		active:        make(map[int64]struct{}),
	}
	if c.catalog == nil {
		c.catalog = msgcat.Default()
	}
	if c.metrics == nil {
		c.metrics = metrics.Noop()
	}
	if c.results == nil {
		c.results = announce.Discard()
	}
	if c.sweepInterval <= 0 {
		c.sweepInterval = DefaultSweepInterval
	}
	if c.maxChat <= 0 {
		c.maxChat = DefaultMaxChatLength
	}
	if c.bcryptCost == 0 {
		c.bcryptCost = bcrypt.DefaultCost
	}
	if c.coin == nil {
		c.coin = cryptoCoin
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.queue = matchmaking.NewQueue(st, matchmaking.WithAcceptTimeout(cfg.AcceptTimeout), matchmaking.WithClock(c.now))
	c.presence = presence.New(cfg.Grace, c.expirePresence)
	return c
}

func cryptoCoin() bool {
	var b [1]byte
	if _, err := rand.Read(b[:]); err != nil {
		return time.Now().UnixNano()%2 == 0
	}
	return b[0]&1 == 0
}

func (c *Coordinator) Queue() *matchmaking.Queue { return c.queue }

// ActiveGames counts games started by this coordinator that have not finished.
func (c *Coordinator) ActiveGames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

// Connect registers a new transport handle for playerID. A connect inside the grace
// period of an earlier drop resumes the session without any status change.
func (c *Coordinator) Connect(ctx context.Context, playerID int64, conn hub.Conn) {
	unlock := c.playerLocks.Lock(playerID)
	resumed := c.presence.Reconnected(playerID)
	c.hub.Register(playerID, conn)
	if !resumed {
		sctx, cancel := context.WithTimeout(ctx, statusTimeout)
		if err := c.store.SetPlayerStatus(sctx, playerID, domain.PlayerOnline); err != nil {
			obslog.L().Warn("player_status_error", zap.Int64("player_id", playerID), zap.String("status", string(domain.PlayerOnline)), zap.Error(err))
		}
		cancel()
	}
	unlock()
	obslog.L().Info("player_connected", zap.Int64("player_id", playerID), zap.String("conn", conn.ID()), zap.Bool("resumed", resumed))
	c.send(playerID, lobbyproto.TypeConnected, lobbyproto.Connected{PlayerID: playerID, Message: c.text("notices.connected")})
}

// Disconnect is called when conn's transport closed. Only the player's current handle
// starts a grace period; a superseded handle closing is ignored. The player stays
// registered until the grace period runs out.
func (c *Coordinator) Disconnect(playerID int64, conn hub.Conn) {
	unlock := c.playerLocks.Lock(playerID)
	defer unlock()
	if !c.hub.Detach(playerID, conn) {
		return
	}
	c.presence.Disconnected(playerID)
}

// expirePresence runs when a grace period ends. A connect that won the race for the
// player lock has already replaced the detached handle and nothing happens.
func (c *Coordinator) expirePresence(playerID int64) {
	unlock := c.playerLocks.Lock(playerID)
	defer unlock()
	if !c.hub.Remove(playerID) {
		return
	}
	if m := c.queue.Leave(playerID); m != nil {
		c.notifyDissolved(m, playerID)
	}
	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()
	if err := c.store.SetPlayerStatus(ctx, playerID, domain.PlayerOffline); err != nil {
		obslog.L().Warn("player_status_error", zap.Int64("player_id", playerID), zap.String("status", string(domain.PlayerOffline)), zap.Error(err))
	}
}

// Run sweeps expired pending matches until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	t := time.NewTicker(c.sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.SweepExpired()
		}
	}
}

// Close stops grace timers and game clocks.
func (c *Coordinator) Close() {
	c.presence.Stop()
	c.mu.Lock()
	for id, cl := range c.clocks {
		cl.Stop()
		delete(c.clocks, id)
	}
	c.mu.Unlock()
}

func (c *Coordinator) text(key string) string { return c.catalog.Text(key, nil) }

func (c *Coordinator) send(playerID int64, eventType string, payload any) bool {
	return c.hub.Send(playerID, lobbyproto.Must(eventType, payload))
}

func (c *Coordinator) sendAll(eventType string, payload any, playerIDs ...int64) {
	c.hub.SendAll(lobbyproto.Must(eventType, payload), playerIDs...)
}

// reject sends the single error event for a failed action.
func (c *Coordinator) reject(playerID int64, eventType string, err error) {
	le := asError(err)
	fields := []zap.Field{
		zap.Int64("player_id", playerID),
		zap.String("type", eventType),
		zap.String("kind", string(le.Kind)),
		zap.String("key", le.Key),
	}
	if le.Kind == KindStorage {
		obslog.L().Error("event_failed", append(fields, zap.Error(le.Err))...)
	} else {
		obslog.L().Debug("event_rejected", fields...)
	}
	c.metrics.EventRejected(string(le.Kind))
	c.send(playerID, lobbyproto.TypeError, lobbyproto.Error{Code: string(le.Kind), Message: c.catalog.Text(le.Key, le.Data)})
}
