package concurrent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrPoolStopped is returned when submitting to a pool that is not running
var ErrPoolStopped = errors.New("worker pool is not running")

// Task is a unit of work run by a pool worker
type Task func(ctx context.Context)

type WorkerPool struct {
	name        string
	workerCount int
	queueSize   int
	taskQueue   chan *workerTask
	running     bool
	wg          sync.WaitGroup
	mu          sync.RWMutex
	logger      *logrus.Entry

	active    int64
	completed int64
	failed    int64
}

type workerTask struct {
	ctx      context.Context
	run      Task
	queuedAt time.Time
}

// PoolStats is a snapshot of the pool counters
type PoolStats struct {
	Workers   int   `json:"workers"`
	Queued    int   `json:"queued"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// NewWorkerPool creates a pool of workerCount workers in front of a queue of
// queueSize pending tasks. Both are at least 1 and 0 respectively.
func NewWorkerPool(name string, workerCount, queueSize int, logger *logrus.Entry) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &WorkerPool{
		name:        name,
		workerCount: workerCount,
		queueSize:   queueSize,
		logger:      logger.WithField("pool", name),
	}
}

func (wp *WorkerPool) Start() error {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.running {
		return fmt.Errorf("worker pool %s is already running", wp.name)
	}
	wp.taskQueue = make(chan *workerTask, wp.queueSize)
	wp.running = true

	wp.logger.Debugf("Starting worker pool with %d workers", wp.workerCount)
	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.work(i, wp.taskQueue)
	}
	return nil
}

// Stop refuses new tasks, runs the ones already queued and waits for every
// worker to finish. Stopping a stopped pool does nothing.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if !wp.running {
		wp.mu.Unlock()
		return
	}
	wp.running = false
	close(wp.taskQueue)
	wp.mu.Unlock()

	wp.wg.Wait()
	wp.logger.Debug("Worker pool stopped")
}

// Submit queues task, blocking while the queue is full. It returns the
// context error when ctx ends first.
func (wp *WorkerPool) Submit(ctx context.Context, task Task) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if !wp.running {
		return ErrPoolStopped
	}

	select {
	case wp.taskQueue <- &workerTask{ctx: ctx, run: task, queuedAt: time.Now()}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (wp *WorkerPool) work(id int, tasks <-chan *workerTask) {
	defer wp.wg.Done()
	for task := range tasks {
		wp.run(id, task)
	}
}

func (wp *WorkerPool) run(id int, task *workerTask) {
	atomic.AddInt64(&wp.active, 1)
	defer atomic.AddInt64(&wp.active, -1)

	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&wp.failed, 1)
			wp.logger.WithField("worker", id).Errorf("❌ Task panicked: %v", r)
		}
	}()

	wp.logger.WithField("worker", id).Debugf("Task picked up after %v", time.Since(task.queuedAt))
	task.run(task.ctx)
	atomic.AddInt64(&wp.completed, 1)
}

func (wp *WorkerPool) IsRunning() bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	return wp.running
}

func (wp *WorkerPool) Stats() PoolStats {
	wp.mu.RLock()
	queued := 0
	if wp.taskQueue != nil {
		queued = len(wp.taskQueue)
	}
	wp.mu.RUnlock()

	return PoolStats{
		Workers:   wp.workerCount,
		Queued:    queued,
		Active:    atomic.LoadInt64(&wp.active),
		Completed: atomic.LoadInt64(&wp.completed),
		Failed:    atomic.LoadInt64(&wp.failed),
	}
}
