package lobbyclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/park285/cheese-lobby/pkg/lobbyproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func TestBackoffDuration(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, backoffDuration(0))
	assert.Equal(t, 100*time.Millisecond, backoffDuration(1))
	assert.Equal(t, 400*time.Millisecond, backoffDuration(3))
	assert.Equal(t, 3200*time.Millisecond, backoffDuration(6))
	assert.Equal(t, 3200*time.Millisecond, backoffDuration(10))
}

func TestSendWithoutConnection(t *testing.T) {
	c := New("ws://127.0.0.1:1/ws")
	assert.ErrorIs(t, c.Send(context.Background(), lobbyproto.TypePing, nil), ErrNotConnected)
	assert.Equal(t, StateDisconnected, c.State())
}

// echoServer greets every connection with a connected event carrying the dial count
// and closes the first connection right away.
func echoServer(t *testing.T, auth *atomic.Value) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var dials atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		n := dials.Add(1)
		ctx := r.Context()
		_ = wsjson.Write(ctx, ws, lobbyproto.Must(lobbyproto.TypeConnected, lobbyproto.Connected{PlayerID: n}))
		if n == 1 {
			_ = ws.Close(websocket.StatusGoingAway, "restart")
			return
		}
		for {
			var env lobbyproto.Envelope
			if err := wsjson.Read(ctx, ws, &env); err != nil {
				return
			}
			if env.Type == lobbyproto.TypePing {
				_ = wsjson.Write(ctx, ws, lobbyproto.Must(lobbyproto.TypePong, nil))
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &dials
}

func TestReconnectsAfterServerClose(t *testing.T) {
	var auth atomic.Value
	srv, dials := echoServer(t, &auth)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	events := make(chan lobbyproto.Envelope, 16)
	c := New(url, WithReconnect(3), WithPingInterval(0), WithHeaderProvider(func() map[string]string {
		return map[string]string{"Authorization": "Bearer t", "X-Empty": " "}
	}))
	c.OnEvent(func(env lobbyproto.Envelope) { events <- env })
	require.NoError(t, c.Connect(context.Background()))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = c.Close(ctx)
	}()

	assert.Eventually(t, func() bool { return dials.Load() == 2 && c.State() == StateConnected }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "Bearer t", auth.Load())

	require.NoError(t, c.Send(context.Background(), lobbyproto.TypePing, nil))
	deadline := time.After(2 * time.Second)
	for {
		select {
		case env := <-events:
			if env.Type == lobbyproto.TypePong {
				return
			}
		case <-deadline:
			t.Fatal("no pong after reconnect")
		}
	}
}

func TestCloseStopsReconnecting(t *testing.T) {
	var auth atomic.Value
	srv, dials := echoServer(t, &auth)
	c := New("ws"+strings.TrimPrefix(srv.URL, "http"), WithReconnect(0), WithPingInterval(0))

	var states []State
	statesCh := make(chan State, 16)
	c.OnStateChange(func(s State) { statesCh <- s })
	require.NoError(t, c.Connect(context.Background()))

	assert.Eventually(t, func() bool { return c.State() == StateDisconnected }, 2*time.Second, 10*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Close(ctx))
	assert.Equal(t, int64(1), dials.Load())

	close(statesCh)
	for s := range statesCh {
		states = append(states, s)
	}
	assert.Equal(t, StateConnecting, states[0])
	assert.Contains(t, states, StateConnected)
}
