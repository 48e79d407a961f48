package timers

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRepeater_RunsUntilTaskReturnsFalse(t *testing.T) {
	var runs atomic.Int32
	repeater := NewRepeater(5*time.Millisecond, func(ctx context.Context) bool {
		return runs.Add(1) < 3
	})
	repeater.Start()

	require.Eventually(t, func() bool { return !repeater.Running() }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, int32(3), runs.Load())
}

func TestRepeater_CyclesNeverOverlap(t *testing.T) {
	var active, maxActive, runs atomic.Int32
	repeater := NewRepeater(time.Millisecond, func(ctx context.Context) bool {
		now := active.Add(1)
		if now > maxActive.Load() {
			maxActive.Store(now)
		}
		time.Sleep(10 * time.Millisecond)
		active.Add(-1)
		runs.Add(1)
		return true
	})
	repeater.Start()

	require.Eventually(t, func() bool { return runs.Load() >= 4 }, 2*time.Second, 5*time.Millisecond)
	repeater.Stop()
	require.Equal(t, int32(1), maxActive.Load())
}

func TestRepeater_StopIsIdempotentAndCancelsCycle(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan struct{})
	repeater := NewRepeater(time.Millisecond, func(ctx context.Context) bool {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return true
	})
	repeater.Start()

	<-started
	repeater.Stop()
	repeater.Stop()

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("cycle context was not cancelled")
	}
	require.False(t, repeater.Running())
}

func TestRepeater_StopBeforeFirstCycle(t *testing.T) {
	var runs atomic.Int32
	repeater := NewRepeater(20*time.Millisecond, func(ctx context.Context) bool {
		runs.Add(1)
		return true
	})
	repeater.Start()
	repeater.Stop()

	time.Sleep(50 * time.Millisecond)
	require.Zero(t, runs.Load())

	repeater.Start()
	time.Sleep(50 * time.Millisecond)
	require.Zero(t, runs.Load())
}

func TestRepeater_TaskMayStopItself(t *testing.T) {
	var repeater *Repeater
	done := make(chan struct{})
	repeater = NewRepeater(time.Millisecond, func(ctx context.Context) bool {
		repeater.Stop()
		close(done)
		return true
	})
	repeater.Start()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}
	require.False(t, repeater.Running())
}

func TestDebouncer_BurstRunsOnlyLast(t *testing.T) {
	debouncer := NewDebouncer(30 * time.Millisecond)

	var mu sync.Mutex
	var fired []int
	for i := 1; i <= 5; i++ {
		value := i
		debouncer.Trigger(func() {
			mu.Lock()
			fired = append(fired, value)
			mu.Unlock()
		})
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, debouncer.Pending())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{5}, fired)
	require.False(t, debouncer.Pending())
}

func TestDebouncer_CancelDropsPendingCall(t *testing.T) {
	debouncer := NewDebouncer(20 * time.Millisecond)

	var fired atomic.Bool
	debouncer.Trigger(func() { fired.Store(true) })
	debouncer.Cancel()
	debouncer.Cancel()

	time.Sleep(60 * time.Millisecond)
	require.False(t, fired.Load())
	require.False(t, debouncer.Pending())
}
