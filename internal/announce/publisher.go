package announce

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Publisher hands finished games to the webhook without blocking the caller.
type Publisher interface {
	Publish(r Result)
}

type poster interface {
	PostResult(ctx context.Context, r Result) error
}

// Async queues results and posts them from one background goroutine. Results are
// dropped, with a warning, when the queue is full.
type Async struct {
	client poster
	logger *zap.Logger
	queue  chan Result

	startOnce sync.Once
	done      chan struct{}
}

func NewAsync(client poster, buffer int, logger *zap.Logger) *Async {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 128
	}
	return &Async{client: client, logger: logger, queue: make(chan Result, buffer), done: make(chan struct{})}
}

func (a *Async) Publish(r Result) {
	select {
	case a.queue <- r:
	default:
		a.logger.Warn("result_webhook_dropped", zap.Int64("game_id", r.GameID))
	}
}

// Run drains the queue until ctx is cancelled, then flushes what is already queued
// with a short deadline.
func (a *Async) Run(ctx context.Context) {
	a.startOnce.Do(func() {
		defer close(a.done)
		for {
			select {
			case r := <-a.queue:
				a.post(ctx, r)
			case <-ctx.Done():
				a.flush()
				return
			}
		}
	})
}

// Done is closed after Run returns.
func (a *Async) Done() <-chan struct{} { return a.done }

func (a *Async) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case r := <-a.queue:
			a.post(ctx, r)
		default:
			return
		}
	}
}

func (a *Async) post(ctx context.Context, r Result) {
	if err := a.client.PostResult(ctx, r); err != nil {
		a.logger.Warn("result_webhook_failed", zap.Int64("game_id", r.GameID), zap.Error(err))
		return
	}
	a.logger.Debug("result_webhook_sent", zap.Int64("game_id", r.GameID))
}

type discard struct{}

// Discard is the Publisher used when no webhook is configured.
func Discard() Publisher { return discard{} }

func (discard) Publish(Result) {}
