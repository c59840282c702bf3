package renderthread

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAndWaitExecutesAndBlocks(t *testing.T) {
	d := NewDispatcher()
	d.Start()
	defer d.Stop()

	var ran atomic.Bool
	d.RunAndWait(func() {
		time.Sleep(10 * time.Millisecond)
		ran.Store(true)
	})

	// The call must not return before the closure has completed.
	assert.True(t, ran.Load())
}

func TestRunAndWaitInlineWhenStopped(t *testing.T) {
	d := NewDispatcher()

	ran := false
	d.RunAndWait(func() { ran = true })
	assert.True(t, ran)
}

func TestRunStatusAndWaitPropagatesError(t *testing.T) {
	d := NewDispatcher()
	d.Start()
	defer d.Stop()

	err := d.RunStatusAndWait(func() error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	assert.NoError(t, d.RunStatusAndWait(func() error { return nil }))
}

func TestTasksExecuteInSubmissionOrder(t *testing.T) {
	d := NewDispatcher()
	d.Start()
	defer d.Stop()

	var order []int
	for i := 0; i < 10; i++ {
		i := i
		d.RunAndWait(func() {
			order = append(order, i)
		})
	}

	require.Len(t, order, 10)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestKeepRunningReschedulesUntilFalse(t *testing.T) {
	d := NewDispatcher()
	d.Start()
	defer d.Stop()

	var ticks atomic.Int32
	done := make(chan struct{})
	d.KeepRunning(func() bool {
		if ticks.Add(1) >= 5 {
			close(done)
			return false
		}
		return true
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop task never completed")
	}

	// Wait for the final tick's unschedule to land.
	require.Eventually(t, func() bool {
		return !d.HasLoopTask()
	}, time.Second, time.Millisecond)
	assert.Equal(t, int32(5), ticks.Load())
}

func TestQueuedTasksServedBetweenLoopTicks(t *testing.T) {
	d := NewDispatcher()
	d.Start()
	defer d.Stop()

	var ticks atomic.Int32
	d.KeepRunning(func() bool {
		ticks.Add(1)
		time.Sleep(time.Millisecond)
		return true
	})

	// A blocking dispatch must get through while the loop is running.
	var ran atomic.Bool
	doneCh := make(chan struct{})
	go func() {
		d.RunAndWait(func() { ran.Store(true) })
		close(doneCh)
	}()

	select {
	case <-doneCh:
	case <-time.After(time.Second):
		t.Fatal("RunAndWait starved behind the loop task")
	}
	assert.True(t, ran.Load())
	assert.Greater(t, ticks.Load(), int32(0))
}

func TestKeepRunningSchedulesLoopsIndependently(t *testing.T) {
	d := NewDispatcher()
	d.Start()
	defer d.Stop()

	// Two loop tasks share the render goroutine; each unschedules on its
	// own terms.
	var first, second atomic.Int32
	d.KeepRunning(func() bool {
		return first.Add(1) < 3
	})
	d.KeepRunning(func() bool {
		second.Add(1)
		time.Sleep(time.Millisecond)
		return true
	})

	require.Eventually(t, func() bool {
		return first.Load() == 3 && second.Load() > 3
	}, time.Second, time.Millisecond)

	// The first loop stays unscheduled without taking the second down.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(3), first.Load())
	assert.True(t, d.HasLoopTask())

	observed := second.Load()
	require.Eventually(t, func() bool {
		return second.Load() > observed
	}, time.Second, time.Millisecond)
}

func TestPostToMainDrainsOnMainThread(t *testing.T) {
	d := NewDispatcher()
	d.Start()
	defer d.Stop()

	var posted atomic.Int32
	d.RunAndWait(func() {
		for i := 0; i < 3; i++ {
			d.PostToMain(func() { posted.Add(1) })
		}
	})

	assert.Equal(t, int32(0), posted.Load(), "main work must not run on the render thread")
	d.DrainMain()
	assert.Equal(t, int32(3), posted.Load())

	// Draining an empty queue is a no-op.
	d.DrainMain()
	assert.Equal(t, int32(3), posted.Load())
}

func TestStartIsIdempotentAndStopIsSafe(t *testing.T) {
	d := NewDispatcher(WithQueueSize(8))

	d.Start()
	d.Start()
	assert.True(t, d.IsRunning())

	d.Stop()
	assert.False(t, d.IsRunning())
	d.Stop() // no-op

	// The dispatcher restarts cleanly.
	d.Start()
	assert.True(t, d.IsRunning())
	err := d.RunStatusAndWait(func() error { return nil })
	assert.NoError(t, err)
	d.Stop()
}
