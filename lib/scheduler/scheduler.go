// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package scheduler serializes and retries outbound requests.
//
// Items are sorted into named queues by a [QueueFunc]. Each queue has
// at most one item in flight and is strictly first in, first out; a
// failure holds the queue while the [RetryPolicy] backoff runs, so a
// later message is never delivered ahead of an earlier one. Different
// queues progress independently. Items with no queue are dispatched
// at once, concurrently, with a single attempt.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/chatsync/lib/clock"
)

var (
	// ErrGiveUp wraps the last error of an item the retry policy
	// abandoned.
	ErrGiveUp = errors.New("scheduler: gave up")
	// ErrRemoved resolves an item taken off its queue with Remove.
	ErrRemoved = errors.New("scheduler: removed from queue")
	// ErrClosed resolves items still queued when the scheduler closes.
	ErrClosed = errors.New("scheduler: closed")
)

// QueueFunc names the queue for an item. The empty name means the
// item is dispatched immediately with no retries.
type QueueFunc[T any] func(item T) string

// RetryPolicy decides whether to retry an item after its attempts-th
// failed attempt, and how long to wait first.
type RetryPolicy[T any] func(item T, attempts int, err error) (delay time.Duration, retry bool)

// Processor performs one attempt.
type Processor[T any] func(ctx context.Context, item T) error

// Config holds the collaborators of a Scheduler.
type Config[T comparable] struct {
	Queue     QueueFunc[T]
	Retry     RetryPolicy[T]
	Processor Processor[T]

	// OnQueued, if set, is called from Queue for an item that has to
	// wait behind another in its queue. It runs without the
	// scheduler's lock and may call back into the scheduler; the item
	// is not dispatched until it returns.
	OnQueued func(item T)

	// Clock times retry delays. If nil, clock.Real() is used.
	Clock clock.Clock
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Result is the pending outcome of a queued item.
type Result struct {
	done chan struct{}
	err  error
	once sync.Once
}

func newResult() *Result { return &Result{done: make(chan struct{})} }

func (r *Result) resolve(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

// Done is closed when the item succeeds, is abandoned, or is removed.
func (r *Result) Done() <-chan struct{} { return r.done }

// Err returns the outcome. Only meaningful after Done is closed.
func (r *Result) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Wait blocks until the item is resolved or ctx is done.
func (r *Result) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type entry[T comparable] struct {
	item     T
	attempts int
	inFlight bool
	result   *Result
	// ready is closed once OnQueued has returned for the item.
	ready chan struct{}
}

var readyNow = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Scheduler dispatches items through named FIFO queues.
type Scheduler[T comparable] struct {
	queueFunc QueueFunc[T]
	retry     RetryPolicy[T]
	process   Processor[T]
	onQueued  func(T)
	clock     clock.Clock
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	queues  map[string][]*entry[T]
	running map[string]bool
	closed  bool
}

// New returns a running scheduler. Call Close to stop it.
func New[T comparable](config Config[T]) *Scheduler[T] {
	if config.Queue == nil || config.Retry == nil || config.Processor == nil {
		panic("scheduler: Queue, Retry, and Processor are required")
	}
	schedulerClock := config.Clock
	if schedulerClock == nil {
		schedulerClock = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler[T]{
		queueFunc: config.Queue,
		retry:     config.Retry,
		process:   config.Processor,
		onQueued:  config.OnQueued,
		clock:     schedulerClock,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		queues:    make(map[string][]*entry[T]),
		running:   make(map[string]bool),
	}
}

// Queue submits an item and returns its pending result.
func (s *Scheduler[T]) Queue(item T) *Result {
	result := newResult()
	name := s.queueFunc(item)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		result.resolve(ErrClosed)
		return result
	}

	if name == "" {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			result.resolve(s.process(s.ctx, item))
		}()
		s.mu.Unlock()
		return result
	}

	queued := &entry[T]{item: item, result: result, ready: readyNow}
	waiting := len(s.queues[name]) > 0 && s.onQueued != nil
	if waiting {
		queued.ready = make(chan struct{})
	}
	s.queues[name] = append(s.queues[name], queued)
	if !s.running[name] {
		s.running[name] = true
		s.wg.Add(1)
		go s.run(name)
	}
	s.mu.Unlock()

	if waiting {
		defer close(queued.ready)
		s.onQueued(item)
	}
	return result
}

// QueueItems returns the items waiting in or being processed by the
// named queue, head first.
func (s *Scheduler[T]) QueueItems(name string) []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]T, len(s.queues[name]))
	for i, queued := range s.queues[name] {
		items[i] = queued.item
	}
	return items
}

// Remove takes item off its queue unless it is being processed right
// now. The remaining items keep their order. The removed item's result
// resolves with ErrRemoved.
func (s *Scheduler[T]) Remove(item T) bool {
	name := s.queueFunc(item)
	if name == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := s.queues[name]
	for i, queued := range queue {
		if queued.item != item || queued.inFlight {
			continue
		}
		s.queues[name] = append(queue[:i:i], queue[i+1:]...)
		queued.result.resolve(ErrRemoved)
		return true
	}
	return false
}

// Close stops dispatching, resolves every waiting item with ErrClosed,
// and waits for in-flight attempts to return.
func (s *Scheduler[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for name, queue := range s.queues {
		for _, queued := range queue {
			if !queued.inFlight {
				queued.result.resolve(ErrClosed)
			}
		}
		delete(s.queues, name)
	}
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

// run drains one queue.
func (s *Scheduler[T]) run(name string) {
	defer s.wg.Done()
	for {
		head := s.takeHead(name)
		if head == nil {
			return
		}

		err := s.process(s.ctx, head.item)

		s.mu.Lock()
		head.inFlight = false
		s.mu.Unlock()

		if err == nil {
			s.finish(name, head, nil)
			continue
		}
		head.attempts++
		delay, retry := s.retry(head.item, head.attempts, err)
		if !retry || s.ctx.Err() != nil {
			s.logger.Warn("giving up on queued item",
				"queue", name,
				"attempts", head.attempts,
				"error", err,
			)
			s.finish(name, head, fmt.Errorf("%w after %d attempts: %w", ErrGiveUp, head.attempts, err))
			continue
		}

		s.logger.Debug("retrying queued item",
			"queue", name,
			"attempts", head.attempts,
			"delay", delay,
			"error", err,
		)
		if !s.sleep(delay) {
			s.finish(name, head, ErrClosed)
			return
		}
	}
}

// takeHead marks the head of the queue in flight, or retires the
// worker when the queue is empty. A head whose OnQueued call is still
// running is waited for first; it may have been removed meanwhile.
func (s *Scheduler[T]) takeHead(name string) *entry[T] {
	for {
		s.mu.Lock()
		queue := s.queues[name]
		if s.closed || len(queue) == 0 {
			delete(s.running, name)
			delete(s.queues, name)
			s.mu.Unlock()
			return nil
		}
		head := queue[0]
		select {
		case <-head.ready:
			head.inFlight = true
			s.mu.Unlock()
			return head
		default:
		}
		s.mu.Unlock()
		<-head.ready
	}
}

// finish pops head if it is still at the front and resolves it.
func (s *Scheduler[T]) finish(name string, head *entry[T], err error) {
	s.mu.Lock()
	if queue := s.queues[name]; len(queue) > 0 && queue[0] == head {
		s.queues[name] = queue[1:]
	}
	s.mu.Unlock()
	head.result.resolve(err)
}

func (s *Scheduler[T]) sleep(delay time.Duration) bool {
	wake := make(chan struct{})
	timer := s.clock.AfterFunc(delay, func() { close(wake) })
	select {
	case <-wake:
		return true
	case <-s.ctx.Done():
		timer.Stop()
		return false
	}
}
