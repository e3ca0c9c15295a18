package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Publisher forwards consent lifecycle events to a sink. In sync mode Emit
// appends inline; with an async buffer events are queued and drained by a
// background goroutine so audit latency stays off the consent hot path.
// Audit failures are logged, never propagated into consent operations.
type Publisher struct {
	sink   Sink
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	inbox  chan Event
	wg     sync.WaitGroup
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to async mode with the given queue
// size. A full queue drops the event (and logs) rather than blocking the
// consent operation.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.inbox = make(chan Event, size)
	}
}

// NewPublisher builds a publisher over the given sink.
func NewPublisher(sink Sink, logger *slog.Logger, opts ...Option) *Publisher {
	p := &Publisher{
		sink:   sink,
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit records one event. Never returns an error to the caller's hot path;
// sink failures are logged and swallowed.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if p.inbox == nil {
		p.append(ctx, event)
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.logger.Warn("audit publisher closed, dropping event", "action", event.Action, "consent_id", event.ConsentID)
		return
	}
	select {
	case p.inbox <- event:
	default:
		p.logger.Warn("audit buffer full, dropping event", "action", event.Action, "consent_id", event.ConsentID)
	}
}

// Close stops the background drain after flushing queued events.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.inbox != nil {
		close(p.inbox)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.inbox {
		p.append(context.Background(), event)
	}
}

func (p *Publisher) append(ctx context.Context, event Event) {
	if err := p.sink.Append(ctx, event); err != nil {
		p.logger.ErrorContext(ctx, "failed to append audit event",
			"error", err,
			"action", event.Action,
			"consent_id", event.ConsentID,
		)
	}
}
