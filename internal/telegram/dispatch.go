package telegram

import "sync"

// queueDepth bounds each identity's pending-message queue. Enqueueing past
// the bound blocks the update loop, so one flooding participant applies
// backpressure rather than growing memory without limit.
const queueDepth = 32

// dispatcher runs tasks with per-key FIFO ordering: tasks enqueued under the
// same key run one after another in enqueue order, while distinct keys run
// concurrently on their own workers. Dispatch must be called from a single
// goroutine for the ordering guarantee to hold; Close must only be called
// after the last Dispatch has returned.
type dispatcher struct {
	mu     sync.Mutex
	queues map[string]chan func()
	wg     sync.WaitGroup
	closed bool
}

func newDispatcher() *dispatcher {
	return &dispatcher{queues: make(map[string]chan func())}
}

// Dispatch enqueues task behind any earlier tasks for the same key, starting
// a worker for the key on first use. Tasks dispatched after Close are
// dropped.
func (d *dispatcher) Dispatch(key string, task func()) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	q, ok := d.queues[key]
	if !ok {
		q = make(chan func(), queueDepth)
		d.queues[key] = q
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for t := range q {
				t()
			}
		}()
	}
	d.mu.Unlock()

	q <- task
}

// Close stops accepting new tasks and waits for every queued task to finish.
func (d *dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, q := range d.queues {
		close(q)
	}
	d.mu.Unlock()

	d.wg.Wait()
}
