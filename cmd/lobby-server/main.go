package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/park285/cheese-lobby/internal/app"
	appcfg "github.com/park285/cheese-lobby/internal/config"
	"github.com/park285/cheese-lobby/internal/obslog"
	"go.uber.org/zap"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	deps, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal("lobby_init_error", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Wait for termination signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("signal_received", zap.String("signal", sig.String()))
		cancel()
	}()

	if err := deps.Run(ctx); err != nil {
		logger.Error("lobby_server_error", zap.Error(err))
		obslog.Sync()
		os.Exit(1)
	}
}
