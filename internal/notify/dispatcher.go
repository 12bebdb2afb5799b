// Package notify runs best-effort side effects for newly created data points.
package notify

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Task is a unit of detached work. The context is cancelled on shutdown.
type Task func(ctx context.Context) error

// DispatcherConfig sizes the background executor.
type DispatcherConfig struct {
	Workers   int
	QueueSize int
	Logger    *logrus.Logger
}

// Dispatcher executes submitted tasks on a fixed set of workers. Callers get
// a submission acknowledgement only; task failures are logged.
type Dispatcher struct {
	log   *logrus.Entry
	queue chan namedTask

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

type namedTask struct {
	name string
	run  Task
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		log:    cfg.Logger.WithField("component", "dispatcher"),
		queue:  make(chan namedTask, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Submit enqueues a task without blocking. It returns false when the queue is
// full or the dispatcher has been shut down.
func (d *Dispatcher) Submit(name string, task Task) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		d.log.Warnf("dispatcher stopped, dropping %s", name)
		return false
	}
	select {
	case d.queue <- namedTask{name: name, run: task}:
		return true
	default:
		d.log.Warnf("queue full, dropping %s", name)
		return false
	}
}

// Shutdown stops accepting work and waits for queued tasks to finish or ctx to expire.
// Tasks still running when ctx expires see their context cancelled.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for t := range d.queue {
		d.run(t)
	}
}

func (d *Dispatcher) run(t namedTask) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Errorf("%s panicked: %v", t.name, r)
		}
	}()
	if err := t.run(d.ctx); err != nil {
		d.log.WithField("task", t.name).Warnf("side effect failed: %v", err)
	}
}
