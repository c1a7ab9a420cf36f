package wsserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/park285/cheese-lobby/internal/hub"
	"github.com/park285/cheese-lobby/pkg/lobbyproto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const (
	DefaultSendBuffer   = 64
	DefaultWriteTimeout = 5 * time.Second
	DefaultReadLimit    = 64 << 10
)

// Lobby is the coordinator surface the transport drives.
type Lobby interface {
	Connect(ctx context.Context, playerID int64, conn hub.Conn)
	Disconnect(playerID int64, conn hub.Conn)
	Handle(ctx context.Context, playerID int64, env lobbyproto.Envelope)
	Malformed(playerID int64, err error)
}

type Options struct {
	Path         string
	SendBuffer   int
	WriteTimeout time.Duration
	ReadLimit    int64
	Auth         Authenticator
	Registry     *prometheus.Registry
	Logger       *zap.Logger
	// OriginPatterns are passed to websocket.Accept; empty accepts any origin.
	OriginPatterns []string
}

type Server struct {
	lobby Lobby
	opts  Options
	mux   *http.ServeMux
}

func New(lobby Lobby, opts Options) *Server {
	if opts.Path == "" {
		opts.Path = "/ws"
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultSendBuffer
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = DefaultReadLimit
	}
	if opts.Auth == nil {
		opts.Auth = QueryAuth{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Server{lobby: lobby, opts: opts, mux: http.NewServeMux()}
	s.mux.HandleFunc(opts.Path, s.ServeWS)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	if opts.Registry != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

// ServeWS authenticates the handshake, upgrades and runs the read loop until the
// client goes away.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	log := s.opts.Logger
	playerID, err := s.opts.Auth.Authenticate(r)
	if err != nil {
		log.Info("ws_auth_failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	accept := &websocket.AcceptOptions{CompressionMode: websocket.CompressionNoContextTakeover}
	if len(s.opts.OriginPatterns) > 0 {
		accept.OriginPatterns = s.opts.OriginPatterns
	} else {
		accept.InsecureSkipVerify = true
	}
	ws, err := websocket.Accept(w, r, accept)
	if err != nil {
		log.Warn("ws_accept_error", zap.Int64("player_id", playerID), zap.Error(err))
		return
	}
	ws.SetReadLimit(s.opts.ReadLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := newConn(ws, s.opts.SendBuffer, s.opts.WriteTimeout, log)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(ctx)
	}()

	log.Debug("ws_connected", zap.Int64("player_id", playerID), zap.String("conn", c.ID()))
	s.lobby.Connect(ctx, playerID, c)
	s.readLoop(ctx, playerID, c)

	c.Close("client gone")
	s.lobby.Disconnect(playerID, c)
	<-writerDone
	log.Debug("ws_disconnected", zap.Int64("player_id", playerID), zap.String("conn", c.ID()))
}

func (s *Server) readLoop(ctx context.Context, playerID int64, c *conn) {
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status == -1 && !errors.Is(err, context.Canceled) {
				s.opts.Logger.Debug("ws_read_error", zap.Int64("player_id", playerID), zap.Error(err))
			}
			return
		}
		env, err := lobbyproto.Parse(data)
		if err != nil {
			s.lobby.Malformed(playerID, err)
			continue
		}
		s.lobby.Handle(ctx, playerID, env)
		if c.isClosed() {
			return
		}
	}
}
