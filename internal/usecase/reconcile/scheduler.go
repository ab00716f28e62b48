package reconcile

import (
	"container/heap"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrSchedulerRunning is returned by Start on a scheduler that is already running.
var ErrSchedulerRunning = errors.New("retry scheduler already running")

// Handler resends one message. It runs on the scheduler's workers.
type Handler func(ctx context.Context, messageID string) error

type retryItem struct {
	messageID string
	due       time.Time
	index     int
}

// retryHeap orders items by due time.
type retryHeap []*retryItem

func (h retryHeap) Len() int           { return len(h) }
func (h retryHeap) Less(i, j int) bool { return h[i].due.Before(h[j].due) }
func (h retryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *retryHeap) Push(x any) {
	item := x.(*retryItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *retryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// SchedulerOption configures a RetryScheduler.
type SchedulerOption func(*RetryScheduler)

// WithWorkers bounds how many resends run at once.
func WithWorkers(n int) SchedulerOption {
	return func(s *RetryScheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithSchedulerLogger sets the logger.
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *RetryScheduler) { s.logger = logger }
}

// RetryScheduler holds at most one pending retry per message id and fires
// each one on a dedicated loop goroutine when it comes due.
type RetryScheduler struct {
	mu    sync.Mutex
	items retryHeap
	index map[string]*retryItem
	wake  chan struct{}

	workers int
	logger  *slog.Logger

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRetryScheduler creates a stopped scheduler. Schedule may be called
// before Start; entries fire once the loop runs.
func NewRetryScheduler(opts ...SchedulerOption) *RetryScheduler {
	s := &RetryScheduler{
		index:   make(map[string]*retryItem),
		wake:    make(chan struct{}, 1),
		workers: 4,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RetryScheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Schedule sets the due time for messageID, replacing any earlier entry.
func (s *RetryScheduler) Schedule(messageID string, at time.Time) {
	s.mu.Lock()
	if item, ok := s.index[messageID]; ok {
		item.due = at
		heap.Fix(&s.items, item.index)
	} else {
		item := &retryItem{messageID: messageID, due: at}
		heap.Push(&s.items, item)
		s.index[messageID] = item
	}
	retryPending.Set(float64(len(s.items)))
	s.mu.Unlock()
	s.signal()
}

// Cancel drops the pending retry for messageID, if any.
func (s *RetryScheduler) Cancel(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.index[messageID]
	if !ok {
		return
	}
	heap.Remove(&s.items, item.index)
	delete(s.index, messageID)
	retryPending.Set(float64(len(s.items)))
}

// Len returns the number of pending retries.
func (s *RetryScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Pending reports whether messageID has a retry waiting.
func (s *RetryScheduler) Pending(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[messageID]
	return ok
}

// next pops the earliest due item, or returns how long to wait for it.
// wait < 0 means the heap is empty.
func (s *RetryScheduler) next(now time.Time) (*retryItem, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return nil, -1
	}
	top := s.items[0]
	if d := top.due.Sub(now); d > 0 {
		return nil, d
	}
	heap.Pop(&s.items)
	delete(s.index, top.messageID)
	retryPending.Set(float64(len(s.items)))
	return top, 0
}

// Start runs the scheduler loop until ctx is done or Stop is called.
func (s *RetryScheduler) Start(ctx context.Context, handler Handler) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel != nil {
		return ErrSchedulerRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, handler, s.done)
	s.logger.Info("retry scheduler started", slog.Int("workers", s.workers), slog.Int("pending", s.Len()))
	return nil
}

func (s *RetryScheduler) loop(ctx context.Context, handler Handler, done chan struct{}) {
	defer close(done)

	var eg errgroup.Group
	eg.SetLimit(s.workers)
	defer func() { _ = eg.Wait() }()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		item, wait := s.next(time.Now())
		if item != nil {
			retryLag.Observe(time.Since(item.due).Seconds())
			id := item.messageID
			// blocks while every worker is busy
			eg.Go(func() error {
				s.fire(ctx, handler, id)
				return nil
			})
			continue
		}

		var timeout <-chan time.Time
		if wait >= 0 {
			timer.Reset(wait)
			timeout = timer.C
		}
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		case <-timeout:
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}
}

func (s *RetryScheduler) fire(ctx context.Context, handler Handler, messageID string) {
	defer func() {
		if r := recover(); r != nil {
			retryFiredTotal.WithLabelValues("error").Inc()
			s.logger.Error("panic in retry handler",
				slog.String("message_id", messageID),
				slog.Any("panic", r))
		}
	}()
	if ctx.Err() != nil {
		return
	}
	if err := handler(ctx, messageID); err != nil {
		retryFiredTotal.WithLabelValues("error").Inc()
		s.logger.Warn("retry failed",
			slog.String("message_id", messageID),
			slog.Any("error", err))
		return
	}
	retryFiredTotal.WithLabelValues("success").Inc()
	s.logger.Debug("retry sent", slog.String("message_id", messageID))
}

// Stop ends the loop, waits for running resends and discards every pending
// retry. The scheduler can be started again afterwards.
func (s *RetryScheduler) Stop() {
	s.runMu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.runMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	s.mu.Lock()
	dropped := len(s.items)
	s.items = nil
	s.index = make(map[string]*retryItem)
	retryPending.Set(0)
	s.mu.Unlock()

	s.logger.Info("retry scheduler stopped", slog.Int("dropped", dropped))
}
