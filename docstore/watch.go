package docstore

import (
	"context"
	"sync"
)

type QueryFunc func(ctx context.Context) ([]Document, error)

type watch struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (w *watch) Cancel()               { w.cancel() }
func (w *watch) Done() <-chan struct{} { return w.done }

// Watch runs query once, then again every time changes fires, handing each
// result to fn on a single goroutine. Signals that arrive while a delivery
// is running are coalesced into one re-query. stop runs when the watch
// ends, either through Cancel, ctx or a closed changes channel.
func Watch(ctx context.Context, query QueryFunc, changes <-chan struct{}, fn Listener, stop func()) Subscription {
	ctx, cancel := context.WithCancel(ctx)
	w := &watch{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(w.done)
		defer cancel()
		if stop != nil {
			defer stop()
		}
		for {
			docs, err := query(ctx)
			if ctx.Err() != nil {
				return
			}
			fn(docs, err)

			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
			}
		}
	}()
	return w
}

// Broker fans change signals out to in-process watchers, keyed by
// collection.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[chan struct{}]struct{})}
}

// Listen returns a coalescing signal channel for collection and the func
// that unregisters it.
func (b *Broker) Listen(collection string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	b.mu.Lock()
	if b.subs[collection] == nil {
		b.subs[collection] = make(map[chan struct{}]struct{})
	}
	b.subs[collection][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if m := b.subs[collection]; m != nil {
				delete(m, ch)
				if len(m) == 0 {
					delete(b.subs, collection)
				}
			}
		})
	}
}

func (b *Broker) Notify(collection string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[collection] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Listeners reports how many watchers are registered on collection.
func (b *Broker) Listeners(collection string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[collection])
}
