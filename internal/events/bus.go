package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Handler receives committed events. Errors are logged, never propagated to the writer.
type Handler func(ctx context.Context, evt Event) error

// Bus fans events out to in-process subscribers in publish order.
type Bus struct {
	log *zap.Logger

	mu       sync.RWMutex
	handlers map[string][]Handler
	all      []Handler
}

func NewBus(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{
		log:      log.Named("events.bus"),
		handlers: make(map[string][]Handler),
	}
}

// Subscribe registers h for the given topics, or for every topic when none are given.
func (b *Bus) Subscribe(h Handler, topics ...string) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(topics) == 0 {
		b.all = append(b.all, h)
		return
	}
	for _, topic := range topics {
		b.handlers[topic] = append(b.handlers[topic], h)
	}
}

func (b *Bus) Publish(ctx context.Context, evts ...Event) {
	if b == nil {
		return
	}
	for _, evt := range evts {
		if evt == nil {
			continue
		}
		b.mu.RLock()
		targets := make([]Handler, 0, len(b.all)+len(b.handlers[evt.Topic()]))
		targets = append(targets, b.handlers[evt.Topic()]...)
		targets = append(targets, b.all...)
		b.mu.RUnlock()

		for _, h := range targets {
			if err := h(ctx, evt); err != nil {
				b.log.Warn("event handler failed",
					zap.String("topic", evt.Topic()),
					zap.String("invoice_id", evt.Invoice().String()),
					zap.Error(err),
				)
			}
		}
	}
}

// Recorder collects published events, handy for tests and diagnostics.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Handle(_ context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *Recorder) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.Topic())
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
