package connection

import (
	"context"
	"sync"
)

// feed fans values out to subscribers without ever blocking the publisher.
// A subscriber whose buffer is full misses the value.
type feed[T any] struct {
	name   string
	buffer int

	mu     sync.RWMutex
	subs   map[chan T]struct{}
	closed bool
}

func newFeed[T any](name string, buffer int) *feed[T] {
	return &feed[T]{
		name:   name,
		buffer: max(buffer, 1),
		subs:   make(map[chan T]struct{}),
	}
}

// subscribe returns the receive channel and a disposer. The subscription
// also ends when ctx is done. The channel is closed on dispose.
func (f *feed[T]) subscribe(ctx context.Context) (<-chan T, func()) {
	ch := make(chan T, f.buffer)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	stop := make(chan struct{})
	dispose := func() {
		once.Do(func() {
			close(stop)
			f.mu.Lock()
			defer f.mu.Unlock()
			if _, ok := f.subs[ch]; ok {
				delete(f.subs, ch)
				close(ch)
			}
		})
	}
	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				dispose()
			case <-stop:
			}
		}()
	}
	return ch, dispose
}

func (f *feed[T]) publish(v T) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for ch := range f.subs {
		select {
		case ch <- v:
		default:
			feedDroppedTotal.WithLabelValues(f.name).Inc()
		}
	}
}

func (f *feed[T]) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for ch := range f.subs {
		close(ch)
	}
	clear(f.subs)
}
