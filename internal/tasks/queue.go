package tasks

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"message-service/internal/observability"
)

// ErrQueueClosed is returned by Enqueue after Shutdown.
var ErrQueueClosed = errors.New("task queue closed")

// ErrQueueFull is returned when the backlog is exhausted.
var ErrQueueFull = errors.New("task queue full")

// Task is a unit of work detached from the request that produced it.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Queue runs detached tasks with at most workers running at once and at most
// capacity more waiting. Every task failure is logged with its name.
type Queue struct {
	group   errgroup.Group
	slots   *semaphore.Weighted
	pending atomic.Int64

	mu     sync.RWMutex
	closed bool

	ctx     context.Context
	cancel  context.CancelFunc
	onError func(name string, err error)
}

// NewQueue builds a queue for workers concurrent tasks and a backlog of capacity.
func NewQueue(workers, capacity int) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if capacity < 0 {
		capacity = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		slots:  semaphore.NewWeighted(int64(workers)),
		ctx:    ctx,
		cancel: cancel,
		onError: func(name string, err error) {
			log.Printf("task failed name=%s: %v", name, err)
		},
	}
	q.group.SetLimit(workers + capacity)
	return q
}

// Enqueue hands the task over without waiting for it to run.
func (q *Queue) Enqueue(task Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	q.setPending(q.pending.Add(1))
	accepted := q.group.TryGo(func() error {
		q.run(task)
		return nil
	})
	if !accepted {
		q.setPending(q.pending.Add(-1))
		return ErrQueueFull
	}
	return nil
}

// Shutdown stops accepting tasks and waits for the accepted ones. When ctx
// expires first, running tasks see their context cancelled and waiting ones
// are dropped.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = q.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}

func (q *Queue) run(task Task) {
	err := q.slots.Acquire(q.ctx, 1)
	q.setPending(q.pending.Add(-1))
	if err != nil {
		q.onError(task.Name, fmt.Errorf("dropped before start: %w", err))
		return
	}
	defer q.slots.Release(1)
	if err := q.ctx.Err(); err != nil {
		q.onError(task.Name, fmt.Errorf("dropped before start: %w", err))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			q.onError(task.Name, fmt.Errorf("panic: %v", r))
		}
	}()
	if err := task.Run(q.ctx); err != nil {
		q.onError(task.Name, err)
	}
}

func (q *Queue) setPending(n int64) {
	observability.SetDispatchQueueDepth(int(n))
}
