package announce

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

func startServer(t *testing.T, h fasthttp.RequestHandler) Option {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: h}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })
	return WithDial(func(addr string) (net.Conn, error) { return ln.Dial() })
}

func TestPostResultSendsJSON(t *testing.T) {
	var got Result
	var header string
	dial := startServer(t, func(ctx *fasthttp.RequestCtx) {
		header = string(ctx.Request.Header.Peek("X-Lobby-Node"))
		_ = json.Unmarshal(ctx.PostBody(), &got)
		ctx.SetStatusCode(fasthttp.StatusNoContent)
	})
	c := NewClient("http://hooks.test/results", dial,
		WithHeaderProvider(func() map[string]string { return map[string]string{"X-Lobby-Node": "n1", " ": "skip"} }))

	err := c.PostResult(context.Background(), Result{GameID: 9, Result: "white_win", Reason: "resignation", WhitePointChange: 3, IsRanked: true})
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.GameID)
	assert.Equal(t, "resignation", got.Reason)
	assert.True(t, got.IsRanked)
	assert.Equal(t, "n1", header)
}

func TestPostResultRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	dial := startServer(t, func(ctx *fasthttp.RequestCtx) {
		if calls.Add(1) < 3 {
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			return
		}
		ctx.SetStatusCode(fasthttp.StatusOK)
	})
	c := NewClient("http://hooks.test/results", dial, WithRetry(3))
	require.NoError(t, c.PostResult(context.Background(), Result{GameID: 1}))
	assert.Equal(t, int32(3), calls.Load())
}

func TestPostResultDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	dial := startServer(t, func(ctx *fasthttp.RequestCtx) {
		calls.Add(1)
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		ctx.SetBodyString("nope")
	})
	c := NewClient("http://hooks.test/results", dial, WithRetry(3))
	err := c.PostResult(context.Background(), Result{GameID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=400")
	assert.Equal(t, int32(1), calls.Load())
}

type recordingPoster struct {
	mu  sync.Mutex
	ids []int64
}

func (r *recordingPoster) PostResult(_ context.Context, res Result) error {
	r.mu.Lock()
	r.ids = append(r.ids, res.GameID)
	r.mu.Unlock()
	return nil
}

func (r *recordingPoster) list() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.ids...)
}

func TestAsyncPublishesInOrder(t *testing.T) {
	p := &recordingPoster{}
	a := NewAsync(p, 4, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go a.Run(ctx)

	a.Publish(Result{GameID: 1})
	a.Publish(Result{GameID: 2})
	require.Eventually(t, func() bool { return len(p.list()) == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	<-a.Done()
	assert.Equal(t, []int64{1, 2}, p.list())
}

func TestAsyncDropsWhenFull(t *testing.T) {
	p := &recordingPoster{}
	a := NewAsync(p, 1, nil)
	a.Publish(Result{GameID: 1})
	a.Publish(Result{GameID: 2})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a.Run(ctx)
	assert.Equal(t, []int64{1}, p.list())
}
