// Package health provides continuous health monitoring for running services.
// Each monitored service gets one cancellable loop that samples its health
// check, tracks consecutive failures, and escalates Degraded to Unhealthy at
// the escalation threshold. Results aggregate into a worst-of system status.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cmatc13/conductor/pkg/logging"
	"github.com/cmatc13/conductor/pkg/metrics"
)

// Status represents the health status of a service.
type Status string

const (
	// StatusHealthy indicates the last health check passed.
	StatusHealthy Status = "healthy"
	// StatusDegraded indicates recent failures below the escalation threshold.
	StatusDegraded Status = "degraded"
	// StatusUnhealthy indicates failures at or above the escalation threshold.
	StatusUnhealthy Status = "unhealthy"
	// StatusUnknown indicates the service has never been sampled.
	StatusUnknown Status = "unknown"
)

// EscalationThreshold is the number of consecutive failed checks after which
// a service is classified Unhealthy rather than Degraded.
const EscalationThreshold = 3

// CheckFunc performs a single health check. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

// Record holds the monitoring state for one service.
type Record struct {
	// Status is the current health classification.
	Status Status `json:"status"`
	// ConsecutiveFailures is the current failure streak.
	ConsecutiveFailures int `json:"consecutive_failures"`
	// LastCheck is when the service was last sampled.
	LastCheck time.Time `json:"last_check"`
	// LastError is the text of the most recent failure, empty when healthy.
	LastError string `json:"last_error,omitempty"`
	// CheckInterval is the configured interval between samples.
	CheckInterval time.Duration `json:"check_interval"`
	// LastLatency is the duration of the most recent check.
	LastLatency time.Duration `json:"last_latency"`
}

// Summary is the aggregated system-wide health view.
type Summary struct {
	Status         Status        `json:"status"`
	Services       int           `json:"services"`
	Healthy        int           `json:"healthy"`
	Degraded       int           `json:"degraded"`
	Unhealthy      int           `json:"unhealthy"`
	Unknown        int           `json:"unknown"`
	AverageLatency time.Duration `json:"average_latency"`
	CheckedAt      time.Time     `json:"checked_at"`
}

type watcher struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Monitor owns one repeating health check loop per watched service.
type Monitor struct {
	mu       sync.RWMutex
	records  map[string]*Record
	watchers map[string]*watcher
	logger   *logging.Logger
	metrics  *metrics.Metrics
}

// NewMonitor creates a new health monitor. The metrics collector may be nil.
func NewMonitor(logger *logging.Logger, m *metrics.Metrics) *Monitor {
	return &Monitor{
		records:  make(map[string]*Record),
		watchers: make(map[string]*watcher),
		logger:   logger,
		metrics:  m,
	}
}

// Track registers a record for a service without starting a check loop.
// Services that own no health check stay Unknown forever but still appear
// in the aggregated view.
func (m *Monitor) Track(name string, interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.records[name]; ok {
		rec.CheckInterval = interval
		return
	}
	m.records[name] = &Record{
		Status:        StatusUnknown,
		CheckInterval: interval,
	}
}

// Watch starts a repeating check loop for a service, replacing any existing
// loop for the same name so re-registration never orphans a monitor task.
func (m *Monitor) Watch(name string, check CheckFunc, interval time.Duration) {
	m.Unwatch(name)

	ctx, cancel := context.WithCancel(context.Background())
	w := &watcher{cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	if rec, ok := m.records[name]; ok {
		rec.CheckInterval = interval
	} else {
		m.records[name] = &Record{Status: StatusUnknown, CheckInterval: interval}
	}
	m.watchers[name] = w
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.MonitorLoops.Inc()
	}

	go m.run(ctx, w, name, check, interval)
}

// Unwatch cancels the check loop for a service and waits for it to exit.
// It is a no-op if the service is not being watched.
func (m *Monitor) Unwatch(name string) {
	m.mu.Lock()
	w, ok := m.watchers[name]
	if ok {
		delete(m.watchers, name)
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	w.cancel()
	<-w.done
	if m.metrics != nil {
		m.metrics.MonitorLoops.Dec()
	}
}

// Stop cancels every check loop and waits for all of them to exit. After
// Stop returns no monitor goroutine will touch any service.
func (m *Monitor) Stop() {
	m.mu.Lock()
	ws := make([]*watcher, 0, len(m.watchers))
	for name, w := range m.watchers {
		ws = append(ws, w)
		delete(m.watchers, name)
	}
	m.mu.Unlock()

	for _, w := range ws {
		w.cancel()
	}
	for _, w := range ws {
		<-w.done
	}
	if m.metrics != nil {
		m.metrics.MonitorLoops.Sub(float64(len(ws)))
	}
	if len(ws) > 0 {
		m.logger.Info("health monitoring stopped", "loops", len(ws))
	}
}

// Watching reports whether a check loop is live for the service.
func (m *Monitor) Watching(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.watchers[name]
	return ok
}

// Record returns a copy of the monitoring state for a service.
func (m *Monitor) Record(name string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[name]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Snapshot returns a copy of all monitoring state.
func (m *Monitor) Snapshot() map[string]Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Record, len(m.records))
	for name, rec := range m.records {
		out[name] = *rec
	}
	return out
}

// Aggregate computes the worst-of system status plus per-status counts and
// the average check latency across sampled services. It is a pure read and
// never blocks the per-service loops beyond a read lock.
func (m *Monitor) Aggregate() Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Summary{Status: StatusHealthy, CheckedAt: time.Now()}
	var totalLatency time.Duration
	var sampled int

	for _, rec := range m.records {
		s.Services++
		switch rec.Status {
		case StatusHealthy:
			s.Healthy++
		case StatusDegraded:
			s.Degraded++
		case StatusUnhealthy:
			s.Unhealthy++
		default:
			s.Unknown++
		}
		if !rec.LastCheck.IsZero() {
			totalLatency += rec.LastLatency
			sampled++
		}
	}

	switch {
	case s.Unhealthy > 0:
		s.Status = StatusUnhealthy
	case s.Degraded > 0:
		s.Status = StatusDegraded
	case s.Unknown > 0:
		s.Status = StatusUnknown
	}

	if sampled > 0 {
		s.AverageLatency = totalLatency / time.Duration(sampled)
	}

	return s
}

// run is the per-service check loop. Cancellation interrupts the sleep
// between cycles promptly.
func (m *Monitor) run(ctx context.Context, w *watcher, name string, check CheckFunc, interval time.Duration) {
	defer close(w.done)

	for {
		start := time.Now()
		err := safeCheck(ctx, check)
		if ctx.Err() != nil {
			return
		}
		m.observe(name, err, time.Since(start))

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// observe applies one check result to the service's record.
func (m *Monitor) observe(name string, err error, latency time.Duration) {
	m.mu.Lock()
	rec, ok := m.records[name]
	if !ok {
		rec = &Record{Status: StatusUnknown}
		m.records[name] = rec
	}

	prev := rec.Status
	rec.LastCheck = time.Now()
	rec.LastLatency = latency

	if err == nil {
		rec.Status = StatusHealthy
		rec.ConsecutiveFailures = 0
		rec.LastError = ""
	} else {
		rec.ConsecutiveFailures++
		rec.LastError = err.Error()
		if rec.ConsecutiveFailures >= EscalationThreshold {
			rec.Status = StatusUnhealthy
		} else {
			rec.Status = StatusDegraded
		}
	}

	status := rec.Status
	failures := rec.ConsecutiveFailures
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordHealthCheck(name, err == nil, failures, latency)
	}

	if status == prev {
		return
	}
	switch status {
	case StatusHealthy:
		if prev != StatusUnknown {
			m.logger.Info("service recovered", "service", name)
		}
	case StatusDegraded:
		m.logger.Warn("service degraded", "service", name, "failures", failures, "error", err)
	case StatusUnhealthy:
		m.logger.Error("service unhealthy", "service", name, "failures", failures, "error", err)
	}
}

// safeCheck invokes the check and converts a panic into an error so a
// misbehaving callback never crashes the monitor.
func safeCheck(ctx context.Context, check CheckFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("health check panicked: %v", r)
		}
	}()
	return check(ctx)
}
