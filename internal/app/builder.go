package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/park285/cheese-lobby/internal/announce"
	"github.com/park285/cheese-lobby/internal/config"
	"github.com/park285/cheese-lobby/internal/hub"
	"github.com/park285/cheese-lobby/internal/lobby"
	"github.com/park285/cheese-lobby/internal/metrics"
	"github.com/park285/cheese-lobby/internal/msgcat"
	"github.com/park285/cheese-lobby/internal/rules"
	"github.com/park285/cheese-lobby/internal/store"
	"github.com/park285/cheese-lobby/internal/wsserver"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Deps is the wired lobby server.
type Deps struct {
	Config      *config.AppConfig
	Store       store.Store
	Hub         *hub.Registry
	Coordinator *lobby.Coordinator
	Server      *wsserver.Server
	Registry    *prometheus.Registry

	publisher *announce.Async
	closers   []io.Closer
	logger    *zap.Logger
}

func New(cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Deps{Config: cfg, logger: logger}

	catalog, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	st, err := d.openStore(cfg)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.Store = st

	d.Registry = prometheus.NewRegistry()
	lobbyCfg := lobby.Config{
		Grace:         cfg.ReconnectGrace,
		AcceptTimeout: cfg.MatchAcceptTimeout,
		SweepInterval: cfg.MatchSweepInterval,
		MaxChatLength: cfg.MaxChatLength,
		Metrics:       metrics.NewMetrics(d.Registry),
		Catalog:       catalog,
	}
	if cfg.StrictMoves {
		lobbyCfg.Validator = rules.New()
	}
	if strings.TrimSpace(cfg.ResultWebhookURL) != "" {
		d.publisher = announce.NewAsync(announce.NewClient(cfg.ResultWebhookURL), 0, logger)
		lobbyCfg.Results = d.publisher
	}

	d.Hub = hub.NewRegistry()
	d.Coordinator = lobby.New(st, d.Hub, lobbyCfg)
	queue := d.Coordinator.Queue()
	metrics.RegisterGauges(d.Registry, metrics.Gauges{
		Connections:    d.Hub.Count,
		QueueSize:      queue.Size,
		PendingMatches: queue.PendingCount,
		ActiveGames:    d.Coordinator.ActiveGames,
	})

	var auth wsserver.Authenticator = wsserver.QueryAuth{}
	if cfg.AuthSecret != "" {
		auth = wsserver.NewTokenAuth(cfg.AuthSecret)
	} else {
		logger.Warn("auth_disabled", zap.String("hint", "set AUTH_SECRET to require signed connect tokens"))
	}
	d.Server = wsserver.New(d.Coordinator, wsserver.Options{
		Path:       cfg.WSPath,
		SendBuffer: cfg.SendBuffer,
		Auth:       auth,
		Registry:   d.Registry,
		Logger:     logger,
	})
	return d, nil
}

// openStore picks postgres when DATABASE_URL is set and moves rooms to redis when
// REDIS_URL is set.
func (d *Deps) openStore(cfg *config.AppConfig) (store.Store, error) {
	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, pg)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := pg.Migrate(ctx); err != nil {
			return nil, err
		}
		st = pg
	} else {
		d.logger.Warn("store_in_memory", zap.String("hint", "set DATABASE_URL to persist games"))
		st = store.NewMemory()
	}

	if cfg.RedisURL != "" {
		rdb, err := store.OpenRedis(context.Background(), cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, redisCloser{rdb})
		st = store.WithRooms(st, store.NewRedisRooms(rdb))
	}
	return st, nil
}

type redisCloser struct{ rdb *redis.Client }

func (c redisCloser) Close() error { return c.rdb.Close() }

// Run serves until ctx is cancelled, then closes every connection and drains the
// result publisher.
func (d *Deps) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              d.Config.ListenAddr,
		Handler:           d.Server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	bg, stop := context.WithCancel(context.Background())
	defer stop()
	go d.Coordinator.Run(bg)
	if d.publisher != nil {
		go d.publisher.Run(bg)
	}

	errCh := make(chan error, 1)
	go func() {
		d.logger.Info("lobby_listening", zap.String("addr", srv.Addr), zap.String("ws_path", d.Config.WSPath))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	d.logger.Info("lobby_shutdown")
	d.Hub.CloseAll("server shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		d.logger.Warn("http_shutdown_error", zap.Error(err))
	}
	stop()
	if d.publisher != nil {
		select {
		case <-d.publisher.Done():
		case <-sctx.Done():
		}
	}
	d.Close()
	return serveErr
}

// Close releases stores and timers; safe after a failed New.
func (d *Deps) Close() {
	if d.Coordinator != nil {
		d.Coordinator.Close()
	}
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			d.logger.Warn("close_error", zap.Error(err))
		}
	}
	d.closers = nil
}
