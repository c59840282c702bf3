// Package renderthread provides the dedicated render-thread execution
// context. All direct calls into the render engine funnel through one
// goroutine owned by a Dispatcher: callers on the host's main thread submit
// closures to a single-consumer queue and block on a completion signal, or
// install repeating loop tasks that the render goroutine keeps rescheduling
// cooperatively, one tick per task per pass. A separate queue carries work
// the render thread posts back for the main thread to drain.
package renderthread

import (
	"sync"
	"sync/atomic"
	"time"
)

const defaultQueueSize = 64

// Dispatcher owns the render goroutine and its task queues.
type Dispatcher interface {
	// Start launches the render goroutine. Idempotent: calling Start on a
	// running dispatcher is a no-op.
	Start()

	// Stop signals the render goroutine to exit and waits for it to
	// finish the task it is executing. Queued tasks that have not started
	// are discarded. Safe to call more than once.
	Stop()

	// IsRunning reports whether the render goroutine is live.
	//
	// Returns:
	//   - bool: true if the render goroutine is running
	IsRunning() bool

	// RunAndWait executes fn on the render thread and blocks until it
	// completes. If the dispatcher is not running, fn executes inline on
	// the calling goroutine; once the render goroutine has exited it is
	// safe to run cleanup work from any thread.
	//
	// Must not be called from the render thread itself while the
	// dispatcher is running.
	//
	// Parameters:
	//   - fn: the closure to execute
	RunAndWait(fn func())

	// RunStatusAndWait executes fn on the render thread, blocks until it
	// completes and returns its error.
	//
	// Parameters:
	//   - fn: the closure to execute
	//
	// Returns:
	//   - error: the error returned by fn
	RunStatusAndWait(fn func() error) error

	// KeepRunning adds fn to the scheduled loop tasks. The render
	// goroutine round-robins the loop tasks whenever the task queue is
	// empty and unschedules each one once it returns false, leaving the
	// others running. Queued tasks are always served between loop ticks,
	// so a blocking RunAndWait never starves behind the loops.
	//
	// Parameters:
	//   - fn: the loop tick; return false to unschedule
	KeepRunning(fn func() bool)

	// HasLoopTask reports whether any loop task is currently scheduled.
	//
	// Returns:
	//   - bool: true if at least one loop task is installed
	HasLoopTask() bool

	// PostToMain queues work for the main thread. The main thread must
	// drain the queue via DrainMain; posting never blocks the render
	// thread.
	//
	// Parameters:
	//   - fn: the closure to run on the main thread
	PostToMain(fn func())

	// DrainMain runs all work queued for the main thread. Must be called
	// from the main thread.
	DrainMain()
}

// loopTask wraps a scheduled loop tick so it can be dropped by identity.
type loopTask struct {
	fn func() bool
}

// dispatcher implements the Dispatcher interface.
type dispatcher struct {
	tasks chan func()

	mainMu    sync.Mutex
	mainQueue []func()

	loopMu   sync.Mutex
	loops    []*loopTask
	nextLoop int

	quit     chan struct{}
	quitOnce *sync.Once
	wg       sync.WaitGroup
	running  atomic.Bool
}

var _ Dispatcher = &dispatcher{}

// DispatcherOption is a functional option for configuring a Dispatcher.
type DispatcherOption func(*dispatcher)

// WithQueueSize sets the render-thread task queue capacity.
//
// Parameters:
//   - size: queue capacity (default 64)
//
// Returns:
//   - DispatcherOption: option function to apply
func WithQueueSize(size int) DispatcherOption {
	return func(d *dispatcher) {
		if size > 0 {
			d.tasks = make(chan func(), size)
		}
	}
}

// NewDispatcher creates a stopped Dispatcher.
//
// Parameters:
//   - options: functional options for dispatcher configuration
//
// Returns:
//   - Dispatcher: the new dispatcher
func NewDispatcher(options ...DispatcherOption) Dispatcher {
	d := &dispatcher{
		tasks:    make(chan func(), defaultQueueSize),
		quit:     make(chan struct{}),
		quitOnce: &sync.Once{},
	}

	for _, opt := range options {
		opt(d)
	}

	return d
}

func (d *dispatcher) Start() {
	if !d.running.CompareAndSwap(false, true) {
		return
	}

	d.quit = make(chan struct{})
	d.quitOnce = &sync.Once{}

	d.wg.Add(1)
	go d.run()
}

func (d *dispatcher) Stop() {
	if !d.running.Load() {
		return
	}
	d.quitOnce.Do(func() {
		close(d.quit)
	})
	d.wg.Wait()
	d.running.Store(false)

	d.loopMu.Lock()
	d.loops = nil
	d.nextLoop = 0
	d.loopMu.Unlock()
}

func (d *dispatcher) IsRunning() bool {
	return d.running.Load()
}

// run is the render goroutine body. Queued tasks take priority; the loop
// tasks fill the gaps, one tick each in rotation. With no work at all, block
// until a task arrives or the dispatcher stops.
func (d *dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case <-d.quit:
			return
		case task := <-d.tasks:
			task()
			continue
		default:
		}

		if t := d.nextLoopTask(); t != nil {
			if !t.fn() {
				d.dropLoopTask(t)
			}
			continue
		}

		select {
		case <-d.quit:
			return
		case task := <-d.tasks:
			task()
		}
	}
}

// nextLoopTask returns the next scheduled loop task in rotation, or nil when
// none are installed.
func (d *dispatcher) nextLoopTask() *loopTask {
	d.loopMu.Lock()
	defer d.loopMu.Unlock()
	if len(d.loops) == 0 {
		return nil
	}
	if d.nextLoop >= len(d.loops) {
		d.nextLoop = 0
	}
	t := d.loops[d.nextLoop]
	d.nextLoop++
	return t
}

// dropLoopTask unschedules a loop task that declined to continue.
func (d *dispatcher) dropLoopTask(t *loopTask) {
	d.loopMu.Lock()
	defer d.loopMu.Unlock()
	for i, lt := range d.loops {
		if lt == t {
			d.loops = append(d.loops[:i], d.loops[i+1:]...)
			if d.nextLoop > i {
				d.nextLoop--
			}
			return
		}
	}
}

func (d *dispatcher) RunAndWait(fn func()) {
	if !d.running.Load() {
		fn()
		return
	}

	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}

	select {
	case d.tasks <- wrapped:
	case <-d.quit:
		// Dispatcher stopped while the queue was full; run inline.
		fn()
		return
	}

	select {
	case <-done:
	case <-d.quit:
		// The render goroutine may still pick the task up before
		// observing quit; poll briefly rather than abandon the wait so
		// the caller still observes a consistent post-state.
		for {
			select {
			case <-done:
				return
			default:
			}
			if !d.running.Load() {
				return
			}
			time.Sleep(time.Millisecond)
		}
	}
}

func (d *dispatcher) RunStatusAndWait(fn func() error) error {
	var err error
	d.RunAndWait(func() {
		err = fn()
	})
	return err
}

func (d *dispatcher) KeepRunning(fn func() bool) {
	d.loopMu.Lock()
	defer d.loopMu.Unlock()
	d.loops = append(d.loops, &loopTask{fn: fn})
}

func (d *dispatcher) HasLoopTask() bool {
	d.loopMu.Lock()
	defer d.loopMu.Unlock()
	return len(d.loops) > 0
}

func (d *dispatcher) PostToMain(fn func()) {
	d.mainMu.Lock()
	defer d.mainMu.Unlock()
	d.mainQueue = append(d.mainQueue, fn)
}

func (d *dispatcher) DrainMain() {
	d.mainMu.Lock()
	queue := d.mainQueue
	d.mainQueue = nil
	d.mainMu.Unlock()

	for _, fn := range queue {
		fn()
	}
}
