package loop

import (
	"context"
	"sync"
)

// defaultQueueCap bounds how many tasks may be pending at once. Demand is
// driven by user interaction, so the queue stays short in practice.
const defaultQueueCap = 64

// Loop executes posted tasks one at a time on a single goroutine. It
// stands in for the browser's event loop: everything the engine delivers
// asynchronously (watch notifications, UI surface callbacks) goes through
// here, so callers observe registration completing before the first
// delivery, and no two callbacks ever run concurrently.
type Loop struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	tasks  chan func()
}

// New creates a Loop. Call Start before posting.
func New() *Loop {
	ctx, cancel := context.WithCancel(context.Background())
	return &Loop{
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(chan func(), defaultQueueCap),
	}
}

// Start launches the dispatch goroutine.
func (l *Loop) Start() {
	l.wg.Add(1)
	go l.run()
}

// Stop halts dispatch and waits for the in-flight task to finish. Tasks
// still queued are dropped.
func (l *Loop) Stop() {
	l.cancel()
	l.wg.Wait()
}

// Post queues fn for execution. It returns false if the loop is stopped
// or the queue is full.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.ctx.Done():
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.ctx.Done():
		return false
	default:
		return false
	}
}

func (l *Loop) run() {
	defer l.wg.Done()
	for {
		select {
		case <-l.ctx.Done():
			return
		case fn := <-l.tasks:
			fn()
		}
	}
}
