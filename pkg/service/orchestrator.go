// pkg/service/orchestrator.go
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cmatc13/conductor/pkg/errors"
	"github.com/cmatc13/conductor/pkg/health"
	"github.com/cmatc13/conductor/pkg/logging"
	"github.com/cmatc13/conductor/pkg/metrics"
)

// Options holds lifecycle timing configuration for the orchestrator.
type Options struct {
	// GracePeriod bounds each stop callback; exceeding it is a forced
	// stop, not an error.
	GracePeriod time.Duration
	// StartTimeout bounds each start callback.
	StartTimeout time.Duration
	// RestartPause is the pause between stop and start during a restart.
	RestartPause time.Duration
	// DefaultCheckInterval applies to services registered without one.
	DefaultCheckInterval time.Duration
}

// DefaultOptions returns the default lifecycle timing.
func DefaultOptions() Options {
	return Options{
		GracePeriod:          5 * time.Second,
		StartTimeout:         30 * time.Second,
		RestartPause:         time.Second,
		DefaultCheckInterval: 30 * time.Second,
	}
}

// Orchestrator drives service bring-up and tear-down in dependency order and
// hands running services to the health monitor. All control operations are
// serialized; per-service steps execute strictly sequentially in resolved
// order since later services may depend on earlier ones.
type Orchestrator struct {
	catalog *Catalog
	monitor *health.Monitor
	logger  *logging.Logger
	metrics *metrics.Metrics
	opts    Options
	events  *journal

	mu          sync.Mutex // serializes control operations
	initialized bool
}

// New creates a new orchestrator. The metrics collector may be nil.
func New(opts Options, logger *logging.Logger, m *metrics.Metrics) *Orchestrator {
	def := DefaultOptions()
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = def.GracePeriod
	}
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = def.StartTimeout
	}
	if opts.RestartPause < 0 {
		opts.RestartPause = def.RestartPause
	}
	if opts.DefaultCheckInterval <= 0 {
		opts.DefaultCheckInterval = def.DefaultCheckInterval
	}

	return &Orchestrator{
		catalog: NewCatalog(),
		monitor: health.NewMonitor(logger, m),
		logger:  logger,
		metrics: m,
		opts:    opts,
		events:  newJournal(),
	}
}

// Catalog returns the underlying service catalog.
func (o *Orchestrator) Catalog() *Catalog {
	return o.catalog
}

// Register adds a service or overwrites the metadata of an existing one.
// Registration never starts the service. Re-registering a monitored running
// service replaces its monitor loop rather than orphaning it.
func (o *Orchestrator) Register(reg Registration) error {
	if reg.HealthCheckInterval <= 0 {
		reg.HealthCheckInterval = o.opts.DefaultCheckInterval
	}

	existed := o.catalog.Has(reg.Name)
	if err := o.catalog.Register(reg); err != nil {
		return errors.WrapWithCode(
			errors.WrapWithDomain(errors.WrapWithOperation(err, errors.OpRegister), errors.OrchestratorDomain),
			errors.OrchErrInvalidRegistration,
		)
	}

	if o.metrics != nil {
		o.metrics.ServicesRegistered.Set(float64(o.catalog.Len()))
	}
	o.monitor.Track(reg.Name, reg.HealthCheckInterval)

	if !existed {
		o.events.append(reg.Name, "", StatusRegistered, "registered")
		o.logger.Info("service registered", "service", reg.Name,
			"priority", reg.Priority, "dependencies", len(reg.Dependencies))
		return nil
	}

	o.logger.Warn("service re-registered, configuration updated", "service", reg.Name)
	if o.monitor.Watching(reg.Name) {
		if reg.HealthChecker != nil {
			o.monitor.Watch(reg.Name, reg.HealthChecker.HealthCheck, reg.HealthCheckInterval)
		} else {
			o.monitor.Unwatch(reg.Name)
		}
	}
	return nil
}

// InitializeAll resolves the startup order and starts every service in it,
// gating each on its required dependencies. A cycle or missing required
// dependency aborts before any service is touched; a failed start aborts
// the sequence, leaving already-started services running. Calling it again
// after success is a no-op.
func (o *Orchestrator) InitializeAll(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.initialized {
		o.logger.Warn("services already initialized")
		return nil
	}

	order, err := o.catalog.StartupOrder()
	if err != nil {
		return errors.WrapWithCode(
			errors.WrapWithDomain(errors.WrapWithOperation(err, errors.OpInitializeAll), errors.OrchestratorDomain),
			resolveErrCode(err),
		)
	}

	o.logger.Info("starting services", "order", order)
	begin := time.Now()

	for _, name := range order {
		if err := o.startService(ctx, name); err != nil {
			o.logger.Error("initialization aborted", "service", name, "error", err)
			return err
		}
	}

	o.initialized = true
	o.logger.Info("all services started", "services", len(order),
		"elapsed", time.Since(begin).Seconds())
	return nil
}

func resolveErrCode(err error) string {
	var cycle *CycleError
	if errors.As(err, &cycle) {
		return errors.OrchErrCycle
	}
	return errors.OrchErrMissingDependency
}

// ShutdownAll stops health monitoring, waits for every monitor loop to
// quiesce, then stops each running service in shutdown order under the
// grace period. It always completes in bounded time; a hung stop callback
// is abandoned and recorded as a forced stop.
func (o *Orchestrator) ShutdownAll(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.monitor.Stop()

	order := o.catalog.ShutdownOrder()
	o.logger.Info("stopping services", "order", order)
	begin := time.Now()

	var errs []error
	for _, name := range order {
		status, ok := o.catalog.Status(name)
		if !ok || status != StatusRunning {
			continue
		}
		if err := o.stopService(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}

	o.initialized = false
	o.logger.Info("shutdown complete", "elapsed", time.Since(begin).Seconds(),
		"errors", len(errs))
	return errors.Join(errs...)
}

// RestartOne stops a single service with grace, pauses briefly, and re-runs
// its startup step including the dependency check. No other service is
// touched.
func (o *Orchestrator) RestartOne(ctx context.Context, name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.catalog.Has(name) {
		return errors.WrapWithCode(
			errors.WrapWithDomain(
				errors.WrapWithOperation(fmt.Errorf("service %q is not registered", name), errors.OpRestartOne),
				errors.OrchestratorDomain,
			),
			errors.OrchErrUnknownService,
		)
	}

	o.logger.Info("restarting service", "service", name)

	// The monitor must not touch the service mid-stop.
	o.monitor.Unwatch(name)

	if status, _ := o.catalog.Status(name); status == StatusRunning {
		if err := o.stopService(ctx, name); err != nil {
			o.logger.Warn("stop failed during restart, continuing", "service", name, "error", err)
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(o.opts.RestartPause):
	}

	return o.startService(ctx, name)
}

// startService runs the single-service startup step: dependency gating,
// the start callback under the start timeout, duration recording, and
// health monitor hand-off.
func (o *Orchestrator) startService(ctx context.Context, name string) error {
	if status, _ := o.catalog.Status(name); status == StatusRunning {
		return nil
	}

	starter, _, checker, cfg, interval, ok := o.catalog.callbacks(name)
	if !ok {
		return fmt.Errorf("service %q is not registered", name)
	}

	o.catalog.clearWarnings(name)
	for _, dep := range o.catalog.Dependencies(name) {
		satisfied, reason := o.dependencySatisfied(ctx, dep)
		if satisfied {
			continue
		}
		if dep.Kind == DependencyRequired {
			err := errors.WrapWithCode(
				errors.WrapWithDomain(
					errors.WrapWithOperation(
						fmt.Errorf("required dependency %q not met: %s", dep.Name, reason),
						errors.OpInitializeAll,
					),
					errors.OrchestratorDomain,
				),
				errors.OrchErrDependencyNotMet,
			)
			prev := o.catalog.setStatus(name, StatusError, err)
			o.events.append(name, prev, StatusError, reason)
			return err
		}
		warning := fmt.Sprintf("%s dependency %q not met: %s", dep.Kind, dep.Name, reason)
		o.catalog.addWarning(name, warning)
		o.logger.Warn("dependency not met, starting anyway",
			"service", name, "dependency", dep.Name, "kind", dep.Kind, "reason", reason)
	}

	prev := o.catalog.setStatus(name, StatusInitializing, nil)
	o.events.append(name, prev, StatusInitializing, "")
	o.logger.Info("starting service", "service", name)

	startCtx, cancel := context.WithTimeout(ctx, o.opts.StartTimeout)
	begin := time.Now()
	err := safeStart(startCtx, starter, cfg)
	elapsed := time.Since(begin)
	cancel()

	if err != nil {
		err = errors.WrapWithCode(
			errors.WrapWithDomain(errors.WrapWithOperation(err, errors.OpInitializeAll), errors.OrchestratorDomain),
			errors.OrchErrStartupFailed,
		)
		o.catalog.setStatus(name, StatusError, err)
		o.events.append(name, StatusInitializing, StatusError, "start failed")
		o.logger.Error("service failed to start", "service", name, "error", err)
		return err
	}

	o.catalog.setStatus(name, StatusRunning, nil)
	o.catalog.recordStartup(name, elapsed)
	o.events.append(name, StatusInitializing, StatusRunning, "")
	o.logger.Info("service started", "service", name, "elapsed", elapsed.Seconds())

	if o.metrics != nil {
		o.metrics.RecordServiceUp(name, true)
		o.metrics.RecordStartup(name, elapsed)
	}

	if checker != nil {
		o.monitor.Watch(name, checker.HealthCheck, interval)
	}
	return nil
}

// stopService runs the stop callback under the grace period. A timeout
// forces the status to Stopped; a callback error records Error. Either way
// the service is no longer running when this returns.
func (o *Orchestrator) stopService(ctx context.Context, name string) error {
	_, stopper, _, _, _, ok := o.catalog.callbacks(name)
	if !ok {
		return fmt.Errorf("service %q is not registered", name)
	}

	prev := o.catalog.setStatus(name, StatusStopping, nil)
	o.events.append(name, prev, StatusStopping, "")
	o.logger.Info("stopping service", "service", name)

	begin := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- safeStop(ctx, stopper)
	}()

	var err error
	forced := false
	select {
	case err = <-done:
	case <-time.After(o.opts.GracePeriod):
		forced = true
	case <-ctx.Done():
		forced = true
	}
	elapsed := time.Since(begin)

	switch {
	case forced:
		o.catalog.setStatus(name, StatusStopped, nil)
		o.events.append(name, StatusStopping, StatusStopped, "forced stop after grace period")
		o.logger.Warn("stop timed out, forcing stop", "service", name,
			"grace_period", o.opts.GracePeriod)
	case err != nil:
		err = errors.WrapWithCode(
			errors.WrapWithDomain(errors.WrapWithOperation(err, errors.OpShutdownAll), errors.OrchestratorDomain),
			errors.OrchErrShutdownFailed,
		)
		o.catalog.setStatus(name, StatusError, err)
		o.events.append(name, StatusStopping, StatusError, "stop failed")
		o.logger.Error("service failed to stop", "service", name, "error", err)
	default:
		o.catalog.setStatus(name, StatusStopped, nil)
		o.events.append(name, StatusStopping, StatusStopped, "")
		o.logger.Info("service stopped", "service", name, "elapsed", elapsed.Seconds())
	}

	o.catalog.recordShutdown(name, elapsed, forced)
	if o.metrics != nil {
		o.metrics.RecordServiceUp(name, false)
		o.metrics.RecordShutdown(name, elapsed, forced)
	}

	if forced {
		return nil
	}
	return err
}

// dependencySatisfied reports whether a single edge is met right now. A
// dependency without a health check is gated on its running state alone,
// even when the edge requires health checking.
func (o *Orchestrator) dependencySatisfied(ctx context.Context, dep Dependency) (bool, string) {
	status, ok := o.catalog.Status(dep.Name)
	if !ok {
		return false, "not registered"
	}
	if status != StatusRunning {
		return false, fmt.Sprintf("status is %s", status)
	}
	if !dep.HealthCheckRequired {
		return true, ""
	}

	_, _, checker, _, _, _ := o.catalog.callbacks(dep.Name)
	if checker == nil {
		return true, ""
	}
	if err := safeCheck(ctx, checker); err != nil {
		return false, fmt.Sprintf("health check failing: %v", err)
	}
	return true, ""
}

// safeStart invokes a start callback, converting a panic into an error so a
// misbehaving service never crashes the orchestrator.
func safeStart(ctx context.Context, s Starter, cfg Config) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("start callback panicked: %v", r)
		}
	}()
	return s.Start(ctx, cfg)
}

// safeStop invokes a stop callback, converting a panic into an error.
func safeStop(ctx context.Context, s Stopper) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stop callback panicked: %v", r)
		}
	}()
	return s.Stop(ctx)
}

// safeCheck invokes a health check callback, converting a panic into an
// error.
func safeCheck(ctx context.Context, c HealthChecker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("health check panicked: %v", r)
		}
	}()
	return c.HealthCheck(ctx)
}
