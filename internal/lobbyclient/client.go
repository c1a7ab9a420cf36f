package lobbyclient

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/park285/cheese-lobby/pkg/lobbyproto"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

var ErrNotConnected = errors.New("lobby websocket not connected")

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
)

type EventCallback func(env lobbyproto.Envelope)

type StateCallback func(state State)

// HeaderProvider injects handshake headers, e.g. Authorization.
type HeaderProvider func() map[string]string

type callbackEntry struct {
	id       int
	callback EventCallback
}

type stateCallbackEntry struct {
	id       int
	callback StateCallback
}

// Client is a reconnecting lobby websocket client. Every frame received is passed
// to the registered event callbacks in arrival order.
type Client struct {
	url string

	conn   *websocket.Conn
	connM  sync.Mutex
	writeM sync.Mutex
	state  State
	stateM sync.RWMutex

	eventCbs []callbackEntry
	stateCbs []stateCallbackEntry
	cbM      sync.RWMutex
	nextCbID int

	maxReconnectAttempts int
	pingInterval         time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc

	headerProvider HeaderProvider
	logger         *zap.Logger
}

type Option func(*Client)

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headerProvider = h }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithPingInterval(d time.Duration) Option {
	return func(c *Client) { c.pingInterval = d }
}

// WithReconnect sets how many redials follow a dropped connection; 0 disables them.
func WithReconnect(maxAttempts int) Option {
	return func(c *Client) { c.maxReconnectAttempts = maxAttempts }
}

func New(url string, opts ...Option) *Client {
	c := &Client{
		url:                  url,
		state:                StateDisconnected,
		maxReconnectAttempts: 5,
		pingInterval:         30 * time.Second,
		stopCh:               make(chan struct{}),
		logger:               zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.rootCtx, c.rootCancel = context.WithCancel(context.Background())
	return c
}

func (c *Client) Connect(ctx context.Context) error {
	switch c.State() {
	case StateConnected, StateConnecting:
		return nil
	}
	c.setState(StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, err := c.dial(dialCtx)
	if err != nil {
		c.setState(StateFailed)
		c.scheduleReconnect()
		return err
	}
	c.attach(conn)
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, c.url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      c.buildHeaders(),
	})
	return conn, err
}

func (c *Client) attach(conn *websocket.Conn) {
	c.connM.Lock()
	c.conn = conn
	c.connM.Unlock()
	c.setState(StateConnected)

	c.wg.Add(2)
	go c.listen(conn)
	go c.pingLoop(conn)
}

func (c *Client) current() *websocket.Conn {
	c.connM.Lock()
	defer c.connM.Unlock()
	return c.conn
}

// Send writes one event. Writes are serialised across goroutines.
func (c *Client) Send(ctx context.Context, eventType string, payload any) error {
	env, err := lobbyproto.New(eventType, payload)
	if err != nil {
		return err
	}
	conn := c.current()
	if conn == nil || c.State() != StateConnected {
		return ErrNotConnected
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	c.writeM.Lock()
	defer c.writeM.Unlock()
	return wsjson.Write(ctx, conn, env)
}

// SendRaw writes data as a single text frame without validating it.
func (c *Client) SendRaw(ctx context.Context, data []byte) error {
	conn := c.current()
	if conn == nil || c.State() != StateConnected {
		return ErrNotConnected
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	c.writeM.Lock()
	defer c.writeM.Unlock()
	return conn.Write(ctx, websocket.MessageText, data)
}

func (c *Client) listen(conn *websocket.Conn) {
	defer c.wg.Done()
	for {
		var env lobbyproto.Envelope
		if err := wsjson.Read(c.rootCtx, conn, &env); err != nil {
			if c.isStopping() {
				return
			}
			c.logger.Debug("lobby_ws_read_error", zap.Error(err))
			c.drop(conn, websocket.StatusGoingAway, "reconnect")
			return
		}

		c.cbM.RLock()
		callbacks := make([]callbackEntry, len(c.eventCbs))
		copy(callbacks, c.eventCbs)
		c.cbM.RUnlock()
		for _, entry := range callbacks {
			if entry.callback != nil {
				entry.callback(env)
			}
		}
	}
}

func (c *Client) pingLoop(conn *websocket.Conn) {
	defer c.wg.Done()
	if c.pingInterval <= 0 {
		return
	}
	t := time.NewTicker(c.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-c.stopCh:
			return
		case <-t.C:
			if c.current() != conn {
				return
			}
			ctx, cancel := context.WithTimeout(c.rootCtx, 3*time.Second)
			err := conn.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				if c.isStopping() {
					return
				}
				c.drop(conn, websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

// drop closes conn once and starts reconnecting if it was still the live connection.
func (c *Client) drop(conn *websocket.Conn, code websocket.StatusCode, reason string) {
	c.connM.Lock()
	live := c.conn == conn
	if live {
		c.conn = nil
	}
	c.connM.Unlock()
	_ = conn.Close(code, reason)
	if !live {
		return
	}
	c.setState(StateDisconnected)
	c.scheduleReconnect()
}

func (c *Client) scheduleReconnect() {
	if c.maxReconnectAttempts <= 0 {
		return
	}
	c.setState(StateReconnecting)

	go func() {
		for attempt := 1; attempt <= c.maxReconnectAttempts; attempt++ {
			select {
			case <-c.stopCh:
				return
			case <-time.After(backoffDuration(attempt)):
			}

			dialCtx, cancel := context.WithTimeout(c.rootCtx, 10*time.Second)
			conn, err := c.dial(dialCtx)
			cancel()
			if err != nil {
				c.logger.Debug("lobby_ws_redial_failed", zap.Int("attempt", attempt), zap.Error(err))
				continue
			}
			c.attach(conn)
			return
		}
		c.setState(StateFailed)
	}()
}

func (c *Client) OnEvent(cb EventCallback) int {
	c.cbM.Lock()
	defer c.cbM.Unlock()
	c.nextCbID++
	c.eventCbs = append(c.eventCbs, callbackEntry{id: c.nextCbID, callback: cb})
	return c.nextCbID
}

func (c *Client) RemoveEventCallback(id int) {
	c.cbM.Lock()
	defer c.cbM.Unlock()
	for i, cb := range c.eventCbs {
		if cb.id == id {
			c.eventCbs = append(c.eventCbs[:i], c.eventCbs[i+1:]...)
			break
		}
	}
}

func (c *Client) OnStateChange(cb StateCallback) int {
	c.cbM.Lock()
	defer c.cbM.Unlock()
	c.nextCbID++
	c.stateCbs = append(c.stateCbs, stateCallbackEntry{id: c.nextCbID, callback: cb})
	return c.nextCbID
}

func (c *Client) State() State {
	c.stateM.RLock()
	defer c.stateM.RUnlock()
	return c.state
}

func (c *Client) setState(state State) {
	c.stateM.Lock()
	c.state = state
	c.stateM.Unlock()

	c.cbM.RLock()
	callbacks := make([]stateCallbackEntry, len(c.stateCbs))
	copy(callbacks, c.stateCbs)
	c.cbM.RUnlock()
	for _, entry := range callbacks {
		if entry.callback != nil {
			entry.callback(state)
		}
	}
}

func (c *Client) Close(ctx context.Context) error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.connM.Lock()
	conn := c.conn
	c.conn = nil
	c.connM.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "close")
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		c.rootCancel()
		c.setState(StateDisconnected)
		return nil
	}
}

func (c *Client) isStopping() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

func (c *Client) buildHeaders() http.Header {
	hdr := http.Header{}
	if c.headerProvider == nil {
		return hdr
	}
	for k, v := range c.headerProvider() {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		hdr.Set(k, v)
	}
	return hdr
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}
