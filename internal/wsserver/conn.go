package wsserver

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/cheese-lobby/pkg/lobbyproto"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const reasonSlowConsumer = "outbound queue full"

// conn is one accepted websocket. Outbound events go through a single buffered queue
// drained by writeLoop, which keeps per-player order.
type conn struct {
	id     string
	ws     *websocket.Conn
	out    chan lobbyproto.Envelope
	logger *zap.Logger

	writeTimeout time.Duration

	mu          sync.Mutex
	closed      bool
	closeReason string
	done        chan struct{}
}

func newConn(ws *websocket.Conn, buffer int, writeTimeout time.Duration, logger *zap.Logger) *conn {
	return &conn{
		id:           uuid.NewString(),
		ws:           ws,
		out:          make(chan lobbyproto.Envelope, buffer),
		logger:       logger,
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
}

func (c *conn) ID() string { return c.id }

// Send enqueues env without blocking. A full queue closes the connection.
func (c *conn) Send(env lobbyproto.Envelope) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	select {
	case c.out <- env:
		c.mu.Unlock()
		return true
	default:
	}
	c.mu.Unlock()
	c.logger.Warn("ws_send_overflow", zap.String("conn", c.id), zap.String("type", env.Type))
	c.Close(reasonSlowConsumer)
	return false
}

// Close stops the writer after it flushes queued events, then closes the socket.
func (c *conn) Close(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.closeReason = reason
	close(c.done)
}

func (c *conn) writeLoop(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		reason := c.closeReason
		c.mu.Unlock()
		if reason == "" {
			reason = "closed"
		}
		_ = c.ws.Close(websocket.StatusNormalClosure, reason)
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-c.out:
			if err := c.write(ctx, env); err != nil {
				c.logger.Debug("ws_write_error", zap.String("conn", c.id), zap.Error(err))
				c.Close("write failed")
				return
			}
		case <-c.done:
			c.drain(ctx)
			return
		}
	}
}

// drain flushes what was queued before Close, e.g. the error that preceded a kick.
func (c *conn) drain(ctx context.Context) {
	for {
		select {
		case env := <-c.out:
			if err := c.write(ctx, env); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *conn) write(ctx context.Context, env lobbyproto.Envelope) error {
	wctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()
	return wsjson.Write(wctx, c.ws, env)
}

func (c *conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
