// Package uiloop runs observer callbacks on a single presentation goroutine.
//
// Network handlers never call observers inline. They Post closures, and the
// goroutine running Loop.Run executes them one at a time in FIFO order, so
// observer code never races with protocol state mutation.
package uiloop

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// DefaultQueueSize is the number of callbacks buffered before Post drops.
const DefaultQueueSize = 1024

// Loop is a single-consumer queue of closures.
type Loop struct {
	queue   chan func()
	done    chan struct{}
	closed  atomic.Bool
	once    sync.Once
	dropped atomic.Uint64
	logger  *slog.Logger
}

// Option configures a Loop.
type Option func(*Loop)

// WithQueueSize sets the queue capacity.
func WithQueueSize(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.queue = make(chan func(), n)
		}
	}
}

// WithLogger sets the logger used for panics and drops.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a loop. Call Run to start draining it.
func New(opts ...Option) *Loop {
	l := &Loop{
		queue:  make(chan func(), DefaultQueueSize),
		done:   make(chan struct{}),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "uiloop")
	return l
}

// Post queues fn. It never blocks: if the loop is closed or the queue is
// full the callback is discarded and false is returned.
func (l *Loop) Post(fn func()) bool {
	if fn == nil || l.closed.Load() {
		return false
	}
	select {
	case l.queue <- fn:
		return true
	case <-l.done:
		return false
	default:
		l.dropped.Add(1)
		l.logger.Warn("presentation queue full, discarding callback")
		return false
	}
}

// Run executes queued callbacks until ctx is cancelled or Close is called.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case fn := <-l.queue:
			l.execute(fn)
		case <-l.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *Loop) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("callback panic",
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

// Flush blocks until every callback posted before it has run.
// It must not be called from a callback.
func (l *Loop) Flush(ctx context.Context) error {
	ran := make(chan struct{})
	if !l.Post(func() { close(ran) }) {
		return context.Canceled
	}
	select {
	case <-ran:
		return nil
	case <-l.done:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the loop. Callbacks still queued are discarded.
func (l *Loop) Close() {
	l.once.Do(func() {
		l.closed.Store(true)
		close(l.done)
	})
}

// Dropped returns the number of callbacks discarded because the queue was full.
func (l *Loop) Dropped() uint64 {
	return l.dropped.Load()
}
