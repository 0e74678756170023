package health

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmatc13/conductor/pkg/logging"
)

func newTestMonitor() *Monitor {
	return NewMonitor(logging.Discard(), nil)
}

func TestTrackWithoutWatchStaysUnknown(t *testing.T) {
	m := newTestMonitor()
	m.Track("db", 10*time.Millisecond)

	rec, ok := m.Record("db")
	require.True(t, ok)
	assert.Equal(t, StatusUnknown, rec.Status)
	assert.False(t, m.Watching("db"))

	time.Sleep(30 * time.Millisecond)
	rec, _ = m.Record("db")
	assert.Equal(t, StatusUnknown, rec.Status)
	assert.True(t, rec.LastCheck.IsZero())
}

func TestWatchSamplesImmediately(t *testing.T) {
	m := newTestMonitor()
	defer m.Stop()

	m.Watch("db", func(context.Context) error { return nil }, time.Hour)

	require.Eventually(t, func() bool {
		rec, ok := m.Record("db")
		return ok && rec.Status == StatusHealthy
	}, time.Second, 5*time.Millisecond)
}

func TestEscalationAfterThreeFailures(t *testing.T) {
	m := newTestMonitor()
	defer m.Stop()

	var calls atomic.Int32
	m.Watch("db", func(context.Context) error {
		calls.Add(1)
		return fmt.Errorf("refused")
	}, 5*time.Millisecond)

	// One failure: degraded, not yet unhealthy.
	require.Eventually(t, func() bool {
		rec, ok := m.Record("db")
		return ok && rec.ConsecutiveFailures >= 1
	}, time.Second, time.Millisecond)
	rec, _ := m.Record("db")
	if rec.ConsecutiveFailures < EscalationThreshold {
		assert.Equal(t, StatusDegraded, rec.Status)
	}

	// At the threshold: unhealthy.
	require.Eventually(t, func() bool {
		rec, ok := m.Record("db")
		return ok && rec.Status == StatusUnhealthy
	}, time.Second, time.Millisecond)

	rec, _ = m.Record("db")
	assert.GreaterOrEqual(t, rec.ConsecutiveFailures, EscalationThreshold)
	assert.Equal(t, "refused", rec.LastError)
}

func TestRecoveryResetsFailureStreak(t *testing.T) {
	m := newTestMonitor()
	defer m.Stop()

	var failing atomic.Bool
	failing.Store(true)
	m.Watch("db", func(context.Context) error {
		if failing.Load() {
			return fmt.Errorf("refused")
		}
		return nil
	}, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		rec, _ := m.Record("db")
		return rec.Status == StatusUnhealthy
	}, time.Second, time.Millisecond)

	failing.Store(false)

	require.Eventually(t, func() bool {
		rec, _ := m.Record("db")
		return rec.Status == StatusHealthy
	}, time.Second, time.Millisecond)

	rec, _ := m.Record("db")
	assert.Zero(t, rec.ConsecutiveFailures)
	assert.Empty(t, rec.LastError)
}

func TestWatchReplacesExistingLoop(t *testing.T) {
	m := newTestMonitor()
	defer m.Stop()

	var first, second atomic.Int32
	m.Watch("db", func(context.Context) error { first.Add(1); return nil }, 5*time.Millisecond)
	m.Watch("db", func(context.Context) error { second.Add(1); return nil }, 5*time.Millisecond)

	frozen := first.Load()
	require.Eventually(t, func() bool {
		return second.Load() >= 3
	}, time.Second, time.Millisecond)
	assert.Equal(t, frozen, first.Load(), "the replaced loop must not run again")
}

func TestUnwatchStopsLoop(t *testing.T) {
	m := newTestMonitor()

	var calls atomic.Int32
	m.Watch("db", func(context.Context) error { calls.Add(1); return nil }, 5*time.Millisecond)

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, time.Second, time.Millisecond)

	m.Unwatch("db")
	assert.False(t, m.Watching("db"))

	frozen := calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, frozen, calls.Load())

	// Unwatching again is a no-op.
	m.Unwatch("db")
}

func TestStopQuiescesAllLoops(t *testing.T) {
	m := newTestMonitor()

	var calls atomic.Int32
	check := func(context.Context) error { calls.Add(1); return nil }
	m.Watch("a", check, 5*time.Millisecond)
	m.Watch("b", check, 5*time.Millisecond)
	m.Watch("c", check, 5*time.Millisecond)

	m.Stop()
	assert.False(t, m.Watching("a"))
	assert.False(t, m.Watching("b"))
	assert.False(t, m.Watching("c"))

	frozen := calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, frozen, calls.Load(), "no check may run after Stop returns")
}

func TestCheckPanicCountsAsFailure(t *testing.T) {
	m := newTestMonitor()
	defer m.Stop()

	m.Watch("db", func(context.Context) error { panic("boom") }, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		rec, _ := m.Record("db")
		return rec.Status == StatusUnhealthy
	}, time.Second, time.Millisecond)

	rec, _ := m.Record("db")
	assert.Contains(t, rec.LastError, "panicked")
}

func TestAggregateEmptyIsHealthy(t *testing.T) {
	m := newTestMonitor()
	s := m.Aggregate()
	assert.Equal(t, StatusHealthy, s.Status)
	assert.Zero(t, s.Services)
}

func TestAggregateWorstOf(t *testing.T) {
	m := newTestMonitor()
	m.Track("a", time.Second)
	m.Track("b", time.Second)
	m.Track("c", time.Second)

	m.observe("a", nil, 10*time.Millisecond)
	s := m.Aggregate()
	assert.Equal(t, StatusUnknown, s.Status, "unsampled services dominate healthy ones")
	assert.Equal(t, 1, s.Healthy)
	assert.Equal(t, 2, s.Unknown)

	m.observe("b", nil, 20*time.Millisecond)
	m.observe("c", nil, 30*time.Millisecond)
	s = m.Aggregate()
	assert.Equal(t, StatusHealthy, s.Status)
	assert.Equal(t, 20*time.Millisecond, s.AverageLatency)

	m.observe("b", fmt.Errorf("slow"), 0)
	s = m.Aggregate()
	assert.Equal(t, StatusDegraded, s.Status)
	assert.Equal(t, 1, s.Degraded)

	for i := 0; i < EscalationThreshold; i++ {
		m.observe("c", fmt.Errorf("down"), 0)
	}
	s = m.Aggregate()
	assert.Equal(t, StatusUnhealthy, s.Status)
	assert.Equal(t, 1, s.Unhealthy)
}

func TestSnapshotCopies(t *testing.T) {
	m := newTestMonitor()
	m.Track("a", time.Second)

	snap := m.Snapshot()
	require.Len(t, snap, 1)

	// Mutating the snapshot must not leak into the monitor.
	rec := snap["a"]
	rec.Status = StatusUnhealthy
	snap["a"] = rec

	got, _ := m.Record("a")
	assert.Equal(t, StatusUnknown, got.Status)
}
