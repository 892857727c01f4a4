// Package schedule implements §4.8: asynchronous strategy choices and
// deadline-scheduled re-evaluations, both run off a small fixed-size
// worker pool with a bounded number of outstanding async tasks.
package schedule

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 3

// DefaultMaxOutstanding bounds the number of choose_strategy_async tasks
// that may be queued or running at once, grounded on the hedged-request
// style outstanding-work cap.
const DefaultMaxOutstanding = 64

// Handle lets a caller cancel or release a previously scheduled
// re-evaluation. Cancel is cooperative: the timer thread checks the flag
// immediately before running the task and skips it if set, but does not
// interrupt a task already executing.
type Handle struct {
	task *scheduledTask
}

// Cancel marks the scheduled task as cancelled. Idempotent.
func (h *Handle) Cancel() {
	h.task.mu.Lock()
	h.task.cancelled = true
	h.task.mu.Unlock()
}

// Free releases the handle's reference to its task. Go's garbage
// collector reclaims the task once both the heap and the handle drop it;
// Free exists so callers have an explicit release point matching the
// teacher's resource-handle API shape.
func (h *Handle) Free() {
	h.task = nil
}

// Pool runs one-shot async choose tasks over a fixed worker set and a
// single dedicated timer goroutine for deadline-ordered re-evaluations.
type Pool struct {
	workers int
	oneShot chan func()
	sem     *semaphore.Weighted
	heap    *deadlineHeap
	wake    chan struct{}
	now     func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New constructs a Pool with the given worker count and outstanding-task
// cap. now defaults to time.Now when nil, overridable for deterministic
// tests. workers <= 0 and maxOutstanding <= 0 fall back to the package
// defaults.
func New(workers int, maxOutstanding int64, now func() time.Time) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if maxOutstanding <= 0 {
		maxOutstanding = DefaultMaxOutstanding
	}
	if now == nil {
		now = time.Now
	}
	p := &Pool{
		workers: workers,
		oneShot: make(chan func(), maxOutstanding),
		sem:     semaphore.NewWeighted(maxOutstanding),
		heap:    &deadlineHeap{},
		wake:    make(chan struct{}, 1),
		now:     now,
		stopCh:  make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.workerLoop()
	}
	p.wg.Add(1)
	go p.timerLoop()
	return p
}

// Stop halts all workers and the timer goroutine. Safe to call more than
// once; outstanding tasks already dispatched to a worker still run to
// completion.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

func (p *Pool) workerLoop() {
	defer p.wg.Done()
	for {
		select {
		case fn := <-p.oneShot:
			fn()
		case <-p.stopCh:
			return
		}
	}
}

// ChooseStrategyAsync submits a one-shot choose_strategy task: choose is
// run on a pool worker and callback is invoked with its result. Returns
// immediately; blocks only long enough to acquire a slot in the
// outstanding-task semaphore, honoring ctx cancellation while waiting.
func (p *Pool) ChooseStrategyAsync(ctx context.Context, choose func() any, callback func(any)) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	p.oneShot <- func() {
		defer p.sem.Release(1)
		result := choose()
		if callback != nil {
			callback(result)
		}
	}
	return nil
}

// ScheduleReevaluation schedules run to execute on the timer thread once
// secondsInFuture elapses. pre is invoked synchronously on the timer
// thread immediately before run (e.g. to snapshot chooser state); post
// receives run's result. Returns a Handle whose Cancel prevents
// execution if called before the deadline arrives.
func (p *Pool) ScheduleReevaluation(pre func(), run func() any, post func(any), secondsInFuture float64) *Handle {
	deadline := p.now().Add(time.Duration(secondsInFuture * float64(time.Second)))
	t := &scheduledTask{deadline: deadline, pre: pre, run: run, post: post}
	p.heap.Push(t)
	select {
	case p.wake <- struct{}{}:
	default:
	}
	return &Handle{task: t}
}

// timerLoop executes scheduled re-evaluations in non-decreasing deadline
// order, sleeping between them and waking early whenever a new task with
// an earlier deadline is pushed.
func (p *Pool) timerLoop() {
	defer p.wg.Done()
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		item, ok := p.heap.Peek()
		if !ok {
			drainTimer(timer)
			timer.Reset(time.Hour)
		} else {
			wait := item.deadline.Sub(p.now())
			if wait < 0 {
				wait = 0
			}
			drainTimer(timer)
			timer.Reset(wait)
		}

		select {
		case <-p.stopCh:
			return
		case <-p.wake:
			continue
		case <-timer.C:
			p.runReady()
		}
	}
}

// runReady pops and executes every task whose deadline has arrived,
// skipping any marked cancelled in the meantime.
func (p *Pool) runReady() {
	for {
		item, ok := p.heap.Peek()
		if !ok || item.deadline.After(p.now()) {
			return
		}
		item, _ = p.heap.Pop()

		item.mu.Lock()
		cancelled := item.cancelled
		item.mu.Unlock()
		if cancelled {
			continue
		}

		if item.pre != nil {
			item.pre()
		}
		var result any
		if item.run != nil {
			result = item.run()
		}
		if item.post != nil {
			item.post(result)
		}
	}
}

func drainTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
