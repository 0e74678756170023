// pkg/service/query.go
package service

import (
	"github.com/cmatc13/conductor/pkg/health"
)

// View is the discovery payload for one service.
type View struct {
	Name         string        `json:"name"`
	Status       Status        `json:"status"`
	Health       health.Status `json:"health"`
	Dependencies []string      `json:"dependencies"`
	Dependents   []string      `json:"dependents"`
}

// Overview summarizes the whole registry.
type Overview struct {
	Initialized  bool           `json:"initialized"`
	Total        int            `json:"total_services"`
	Running      int            `json:"running_services"`
	Healthy      int            `json:"healthy_services"`
	MonitorLoops int            `json:"monitor_loops"`
	Health       health.Summary `json:"health"`
}

// Status returns a service's lifecycle status.
func (o *Orchestrator) Status(name string) (Status, bool) {
	return o.catalog.Status(name)
}

// Info returns a snapshot of a service's catalog entry.
func (o *Orchestrator) Info(name string) (Info, bool) {
	return o.catalog.Get(name)
}

// Health returns a service's health record.
func (o *Orchestrator) Health(name string) (health.Record, bool) {
	return o.monitor.Record(name)
}

// AggregatedHealth returns the worst-of system health summary.
func (o *Orchestrator) AggregatedHealth() health.Summary {
	return o.monitor.Aggregate()
}

// HealthSnapshot returns the health record of every registered service.
func (o *Orchestrator) HealthSnapshot() map[string]health.Record {
	return o.monitor.Snapshot()
}

// Dependencies returns a service's declared edges.
func (o *Orchestrator) Dependencies(name string) []Dependency {
	return o.catalog.Dependencies(name)
}

// Dependents returns the services that declare an edge to the given one.
func (o *Orchestrator) Dependents(name string) []string {
	return o.catalog.Dependents(name)
}

// Events returns the recorded lifecycle transitions, oldest first.
func (o *Orchestrator) Events() []Event {
	return o.events.snapshot()
}

// Discover returns status, health, dependencies and dependents for every
// registered service.
func (o *Orchestrator) Discover() map[string]View {
	views := make(map[string]View)
	for _, name := range o.catalog.ListNames() {
		status, _ := o.catalog.Status(name)
		hs := health.StatusUnknown
		if rec, ok := o.monitor.Record(name); ok {
			hs = rec.Status
		}
		deps := o.catalog.Dependencies(name)
		depNames := make([]string, 0, len(deps))
		for _, dep := range deps {
			depNames = append(depNames, dep.Name)
		}
		views[name] = View{
			Name:         name,
			Status:       status,
			Health:       hs,
			Dependencies: depNames,
			Dependents:   o.catalog.Dependents(name),
		}
	}
	return views
}

// Overview returns a registry-wide summary.
func (o *Orchestrator) Overview() Overview {
	summary := o.monitor.Aggregate()

	running := 0
	loops := 0
	for _, name := range o.catalog.ListNames() {
		if status, _ := o.catalog.Status(name); status == StatusRunning {
			running++
		}
		if o.monitor.Watching(name) {
			loops++
		}
	}

	o.mu.Lock()
	initialized := o.initialized
	o.mu.Unlock()

	return Overview{
		Initialized:  initialized,
		Total:        o.catalog.Len(),
		Running:      running,
		Healthy:      summary.Healthy,
		MonitorLoops: loops,
		Health:       summary,
	}
}
