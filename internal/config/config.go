package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	ListenAddr string
	WSPath     string

	DatabaseURL string
	RedisURL    string

	AuthSecret string

	ReconnectGrace     time.Duration
	MatchAcceptTimeout time.Duration
	MatchSweepInterval time.Duration
	StrictMoves        bool
	ResultWebhookURL   string
	MessagesDir        string
	SendBuffer         int
	MaxChatLength      int
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:         ":8080",
		WSPath:             "/ws",
		ReconnectGrace:     5000 * time.Millisecond,
		MatchAcceptTimeout: 30 * time.Second,
		MatchSweepInterval: 10 * time.Second,
		SendBuffer:         64,
		MaxChatLength:      500,
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("WS_PATH")); v != "" {
		if !strings.HasPrefix(v, "/") {
			v = "/" + v
		}
		cfg.WSPath = v
	}

	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.AuthSecret = strings.TrimSpace(os.Getenv("AUTH_SECRET"))
	cfg.ResultWebhookURL = strings.TrimSpace(os.Getenv("RESULT_WEBHOOK_URL"))
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))

	if v := strings.TrimSpace(os.Getenv("RECONNECT_GRACE_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.ReconnectGrace = time.Duration(n) * time.Millisecond
		}
	}
	if v := strings.TrimSpace(os.Getenv("MATCH_ACCEPT_TIMEOUT_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MatchAcceptTimeout = time.Duration(n) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("MATCH_SWEEP_INTERVAL_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MatchSweepInterval = time.Duration(n) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("STRICT_MOVES")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.StrictMoves = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("SEND_BUFFER")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SendBuffer = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MAX_CHAT_LENGTH")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxChatLength = n
		}
	}

	if cfg.RedisURL != "" && !strings.HasPrefix(cfg.RedisURL, "redis://") && !strings.HasPrefix(cfg.RedisURL, "rediss://") {
		return nil, errors.New("REDIS_URL must use redis:// or rediss://")
	}
	if cfg.ResultWebhookURL != "" && !strings.HasPrefix(cfg.ResultWebhookURL, "http://") && !strings.HasPrefix(cfg.ResultWebhookURL, "https://") {
		return nil, errors.New("RESULT_WEBHOOK_URL must be an http(s) URL")
	}

	return cfg, nil
}
