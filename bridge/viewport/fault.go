package viewport

import "sync"

// Fault latches an error raised on one thread for delivery on another. The
// render goroutine records failures it cannot report to a caller; the next
// main-thread entry point picks the error up and surfaces it. Check clears
// the latch so a single failure is reported exactly once.
type Fault struct {
	mu  sync.Mutex
	err error
}

// Set latches err. A nil err is ignored; an already-latched error is kept so
// the first failure wins.
//
// Parameters:
//   - err: the error to latch
func (f *Fault) Set(err error) {
	if err == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err == nil {
		f.err = err
	}
}

// Check returns the latched error and clears the latch.
//
// Returns:
//   - error: the latched error, or nil
func (f *Fault) Check() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := f.err
	f.err = nil
	return err
}
