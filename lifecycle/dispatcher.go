package lifecycle

import (
	"context"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

const defaultQueueDepth = 64

// Task is a unit of background work submitted to a Dispatcher. Tasks
// with the same key are deduplicated while one is queued or running.
type Task struct {
	Key string
	Run func(ctx context.Context)
}

// Dispatcher runs submitted tasks serially on a single worker
// goroutine. It exists so request handlers can trigger expensive work
// (corpus scoring, index rebuilds) without blocking or overlapping.
type Dispatcher struct {
	logger *logrus.Entry

	mu       sync.Mutex
	inflight map[string]struct{}

	queue chan Task
}

// NewDispatcher returns a Dispatcher with the provided queue depth. A
// non-positive depth selects the default.
func NewDispatcher(depth int, logger *logrus.Entry) *Dispatcher {
	if depth <= 0 {
		depth = defaultQueueDepth
	}

	if logger == nil {
		logger = logrus.NewEntry(&logrus.Logger{Out: io.Discard})
	}

	return &Dispatcher{
		logger:   logger,
		inflight: make(map[string]struct{}),
		queue:    make(chan Task, depth),
	}
}

// Submit enqueues task unless a task with the same key is already
// queued or running, or the queue is full. It reports whether the task
// was accepted.
func (d *Dispatcher) Submit(task Task) bool {
	d.mu.Lock()

	if _, exists := d.inflight[task.Key]; exists {
		d.mu.Unlock()

		return false
	}

	d.inflight[task.Key] = struct{}{}
	d.mu.Unlock()

	select {
	case d.queue <- task:
		return true
	default:
		d.release(task.Key)
		d.logger.WithField("task", task.Key).Warn("task queue full, dropping task")

		return false
	}
}

func (d *Dispatcher) release(key string) {
	d.mu.Lock()
	delete(d.inflight, key)
	d.mu.Unlock()
}

// Run executes queued tasks until the context gets cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case task := <-d.queue:
			task.Run(ctx)
			d.release(task.Key)
		}
	}
}
