// Package service provides a process-local service lifecycle orchestrator:
// a catalog of named services with declared dependencies and priorities, a
// dependency resolver that computes safe startup and shutdown orders, and an
// orchestrator that brings services up and down and hands running services
// to the health monitor.
package service

import (
	"context"
	"time"
)

// Status represents the lifecycle state of a service.
type Status string

const (
	// StatusRegistered indicates the service is registered but not started.
	StatusRegistered Status = "registered"
	// StatusInitializing indicates the service is starting.
	StatusInitializing Status = "initializing"
	// StatusRunning indicates the service started successfully.
	StatusRunning Status = "running"
	// StatusStopping indicates the service is shutting down.
	StatusStopping Status = "stopping"
	// StatusStopped indicates the service has been stopped.
	StatusStopped Status = "stopped"
	// StatusError indicates the service failed to start or stop cleanly.
	StatusError Status = "error"
)

// DependencyKind is the ordering-and-gating strength of a dependency edge.
type DependencyKind string

const (
	// DependencyRequired blocks the dependent from starting unless the
	// dependency is running (and healthy, if health gating is set). Only
	// required edges constrain startup ordering.
	DependencyRequired DependencyKind = "required"
	// DependencyOptional lets the dependent start regardless; an unmet
	// optional dependency is recorded as a warning.
	DependencyOptional DependencyKind = "optional"
	// DependencySoft lets the dependent start and retry the connection on
	// its own.
	DependencySoft DependencyKind = "soft"
)

// Dependency is a directed edge from a dependent service to a dependency.
// The target may be registered after the dependent; it is only an error if
// still absent when the startup order is resolved.
type Dependency struct {
	// Name is the dependency's service name.
	Name string `json:"name"`
	// Kind is the edge strength.
	Kind DependencyKind `json:"kind"`
	// HealthCheckRequired gates the edge on the dependency's health check
	// passing, not merely on it being in the running state.
	HealthCheckRequired bool `json:"health_check_required"`
}

// Config is the opaque configuration payload passed verbatim to a service's
// start callback. The orchestrator never inspects its contents.
type Config map[string]any

// Starter starts a service. A nil error means the service is up.
type Starter interface {
	Start(ctx context.Context, cfg Config) error
}

// Stopper stops a service.
type Stopper interface {
	Stop(ctx context.Context) error
}

// HealthChecker samples a service's health. A nil error means healthy.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// StartFunc adapts a function to the Starter interface.
type StartFunc func(ctx context.Context, cfg Config) error

// Start implements Starter.
func (f StartFunc) Start(ctx context.Context, cfg Config) error { return f(ctx, cfg) }

// StopFunc adapts a function to the Stopper interface.
type StopFunc func(ctx context.Context) error

// Stop implements Stopper.
func (f StopFunc) Stop(ctx context.Context) error { return f(ctx) }

// HealthCheckFunc adapts a function to the HealthChecker interface.
type HealthCheckFunc func(ctx context.Context) error

// HealthCheck implements HealthChecker.
func (f HealthCheckFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// nopStarter is substituted for an absent start callback: the service is
// considered running instantly.
type nopStarter struct{}

func (nopStarter) Start(context.Context, Config) error { return nil }

// nopStopper is substituted for an absent stop callback.
type nopStopper struct{}

func (nopStopper) Stop(context.Context) error { return nil }

// Registration describes a service to register with the orchestrator.
type Registration struct {
	// Name uniquely identifies the service. Case-sensitive, immutable.
	Name string
	// Config is passed verbatim to the start callback.
	Config Config
	// Starter is optional; absence means the service starts instantly.
	Starter Starter
	// Stopper is optional; absence means the service stops instantly.
	Stopper Stopper
	// HealthChecker is optional; absence means the service is never
	// sampled and stays Unknown.
	HealthChecker HealthChecker
	// Priority sorts services with no ordering constraint between them;
	// higher starts earlier.
	Priority int
	// Dependencies are the service's declared edges.
	Dependencies []Dependency
	// HealthCheckInterval is the interval between health checks. Zero
	// means the orchestrator's default.
	HealthCheckInterval time.Duration
}

// Info is a read-only snapshot of a service's catalog entry.
type Info struct {
	Name            string       `json:"name"`
	Status          Status       `json:"status"`
	Priority        int          `json:"priority"`
	Dependencies    []Dependency `json:"dependencies"`
	Warnings        []string     `json:"warnings,omitempty"`
	Error           string       `json:"error,omitempty"`
	StartupSeconds  float64      `json:"startup_seconds"`
	ShutdownSeconds float64      `json:"shutdown_seconds"`
	ForcedStop      bool         `json:"forced_stop"`
	HasHealthCheck  bool         `json:"has_health_check"`
}
