// Package worker contains the pipeline stages that run outside the
// request path: the initializer that fans a run out into crawl
// messages, and the crawler and extractor pools that drain the queues.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rolewatch/rolewatch-api/internal/queue"
)

// Handler processes one message from a queue. Implementations own the
// acknowledgement: a handled message must be acked or released before
// Handle returns, and a returned error leaves the message invisible
// until its visibility timeout expires, after which it is redelivered.
type Handler interface {
	Queue() string
	Handle(ctx context.Context, msg *queue.Message) error
}

// Config holds pool configuration.
type Config struct {
	PollInterval time.Duration
	Concurrency  int
}

// Pool runs a fixed number of goroutines that poll one queue and hand
// messages to a handler. Each goroutine drains the queue on its tick so
// a burst does not pay the poll interval per message.
type Pool struct {
	bus          *queue.Bus
	handler      Handler
	pollInterval time.Duration
	concurrency  int
	inFlight     atomic.Int64
	stop         chan struct{}
	wg           sync.WaitGroup
	logger       *slog.Logger
}

// NewPool creates a pool for the handler's queue.
func NewPool(bus *queue.Bus, handler Handler, cfg Config, logger *slog.Logger) *Pool {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		bus:          bus,
		handler:      handler,
		pollInterval: cfg.PollInterval,
		concurrency:  cfg.Concurrency,
		stop:         make(chan struct{}),
		logger:       logger.With("component", "worker", "queue", handler.Queue()),
	}
}

// Start begins consuming. Workers stop when Stop is called or the
// context is canceled; in-flight messages finish first.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info("starting", "concurrency", p.concurrency, "poll_interval", p.pollInterval)
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.run(ctx)
	}
}

// Stop gracefully stops the pool, waiting for in-flight messages.
func (p *Pool) Stop() {
	p.logger.Info("stopping")
	close(p.stop)
	p.wg.Wait()
	p.logger.Info("stopped")
}

// InFlight returns the number of messages currently being handled.
// The idle monitor uses this to keep the process alive mid-run.
func (p *Pool) InFlight() int64 {
	return p.inFlight.Load()
}

func (p *Pool) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drain(ctx)
		}
	}
}

// drain processes messages until the queue is empty or the pool stops.
func (p *Pool) drain(ctx context.Context) {
	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		msg, err := p.bus.Receive(ctx, p.handler.Queue())
		if err != nil {
			p.logger.Error("receive failed", "error", err)
			return
		}
		if msg == nil {
			return
		}

		p.inFlight.Add(1)
		if err := p.handler.Handle(ctx, msg); err != nil {
			// Unacked; the bus redelivers after the visibility timeout.
			p.logger.Error("handler failed, message will be redelivered",
				"message_id", msg.ID,
				"receive_count", msg.ReceiveCount,
				"error", err,
			)
		}
		p.inFlight.Add(-1)
	}
}
