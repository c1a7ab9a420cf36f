package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/park285/cheese-lobby/internal/lobbyclient"
	"github.com/park285/cheese-lobby/internal/wsserver"
	"github.com/park285/cheese-lobby/pkg/lobbyproto"
)

func main() {
	wsURL := flag.String("url", getenv("LOBBY_WS_URL", "ws://127.0.0.1:8080/ws"), "lobby websocket url")
	player := flag.Int64("player", 0, "player id (playerId query or signed token subject)")
	token := flag.String("token", "", "connect token; signed locally from AUTH_SECRET when empty")
	send := flag.String("send", lobbyproto.TypePing, "event type to send after connecting")
	payload := flag.String("payload", "", "raw JSON payload for -send")
	wait := flag.Duration("wait", 0, "stop after this long; 0 waits for Ctrl-C")
	flag.Parse()

	if *player <= 0 && *token == "" {
		log.Fatal("-player or -token is required")
	}

	target, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("bad -url: %v", err)
	}
	q := target.Query()
	tok := *token
	if tok == "" {
		if secret := os.Getenv("AUTH_SECRET"); secret != "" {
			tok, err = wsserver.NewTokenAuth(secret).Issue(*player, time.Hour)
			if err != nil {
				log.Fatalf("sign token: %v", err)
			}
		}
	}
	if tok == "" {
		q.Set("playerId", strconv.FormatInt(*player, 10))
	}
	target.RawQuery = q.Encode()

	client := lobbyclient.New(target.String(),
		lobbyclient.WithReconnect(0),
		lobbyclient.WithHeaderProvider(func() map[string]string {
			if tok == "" {
				return nil
			}
			return map[string]string{"Authorization": "Bearer " + tok}
		}),
	)
	client.OnStateChange(func(state lobbyclient.State) {
		log.Printf("WS state: %s", state)
	})
	client.OnEvent(func(env lobbyproto.Envelope) {
		fmt.Printf("%s %s\n", env.Type, string(env.Payload))
	})

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	if err := client.Connect(cctx); err != nil {
		log.Fatalf("WS connect error: %v", err)
	}

	if *send != "" {
		var body any
		if *payload != "" {
			if !json.Valid([]byte(*payload)) {
				log.Fatalf("-payload is not valid JSON")
			}
			body = json.RawMessage(*payload)
		}
		if err := client.Send(context.Background(), *send, body); err != nil {
			log.Printf("send %s error: %v", *send, err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	if *wait > 0 {
		select {
		case <-sigCh:
		case <-time.After(*wait):
		}
	} else {
		<-sigCh
	}

	_ = client.Close(context.Background())
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
