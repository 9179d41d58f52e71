// Package events delivers transfer lifecycle events to subscribers outside
// the request path.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/erazemk/prenos/internal/model"
)

// Type names a lifecycle event.
type Type string

// Event types.
const (
	TransferCreated   Type = "transfer.created"
	TransferApproved  Type = "transfer.approved"
	TransferRejected  Type = "transfer.rejected"
	TransferCancelled Type = "transfer.cancelled"
	TransferCompleted Type = "transfer.completed"
	TransferUndone    Type = "transfer.undone"
)

// Event is a snapshot of a transfer right after a lifecycle change.
type Event struct {
	Type     Type
	Transfer model.Transfer
	ActorID  int64
	At       time.Time
}

// Handler receives events. Handlers run on the bus goroutine, one event at
// a time.
type Handler func(context.Context, Event)

// DefaultBuffer is the queue size used by NewBus when size is not positive.
const DefaultBuffer = 256

// Bus is a buffered, in-process event queue. Publish never blocks: when the
// queue is full the event is dropped and logged.
type Bus struct {
	ch     chan Event
	logger *slog.Logger

	mu       sync.RWMutex
	handlers []Handler
}

// NewBus creates a bus holding up to size undelivered events.
func NewBus(size int, logger *slog.Logger) *Bus {
	if size <= 0 {
		size = DefaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{ch: make(chan Event, size), logger: logger}
}

// Subscribe registers h for every later event.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish queues e for delivery.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	select {
	case b.ch <- e:
	default:
		b.logger.Warn("event queue full, dropping event", "event", e.Type, "transfer", e.Transfer.ID)
	}
}

// Run delivers queued events until ctx is done. Events still queued at that
// point are delivered before Run returns.
func (b *Bus) Run(ctx context.Context) error {
	for {
		select {
		case e := <-b.ch:
			b.dispatch(ctx, e)
		case <-ctx.Done():
			b.drain(context.WithoutCancel(ctx))
			return nil
		}
	}
}

func (b *Bus) drain(ctx context.Context) {
	for {
		select {
		case e := <-b.ch:
			b.dispatch(ctx, e)
		default:
			return
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, e Event) {
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()

	for _, h := range handlers {
		b.safeCall(ctx, h, e)
	}
}

func (b *Bus) safeCall(ctx context.Context, h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "event", e.Type, "transfer", e.Transfer.ID, "panic", r)
		}
	}()
	h(ctx, e)
}
