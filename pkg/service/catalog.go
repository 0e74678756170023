// pkg/service/catalog.go
package service

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// entry is the catalog's record for one registered service.
type entry struct {
	name     string
	config   Config
	priority int
	deps     []Dependency
	interval time.Duration
	starter  Starter
	stopper  Stopper
	checker  HealthChecker
	seq      int

	status          Status
	err             error
	warnings        []string
	startupSeconds  float64
	shutdownSeconds float64
	forcedStop      bool
	instance        any
}

// Catalog is the authoritative in-memory table of registered services. It
// holds static metadata and lifecycle state; all mutations are serialized
// behind its mutex since health monitor goroutines read concurrently with
// the orchestrator.
type Catalog struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	order      []string
	dependents map[string]map[string]struct{}
	seq        int
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		entries:    make(map[string]*entry),
		dependents: make(map[string]map[string]struct{}),
	}
}

// Register adds a service to the catalog or overwrites the metadata of an
// existing one. Registration never starts the service. Re-registration keeps
// the entry's lifecycle state and registration position.
func (c *Catalog) Register(reg Registration) error {
	if reg.Name == "" {
		return fmt.Errorf("service name must not be empty")
	}
	for _, dep := range reg.Dependencies {
		if dep.Name == reg.Name {
			return fmt.Errorf("service %q cannot depend on itself", reg.Name)
		}
	}

	starter := reg.Starter
	if starter == nil {
		starter = nopStarter{}
	}
	stopper := reg.Stopper
	if stopper == nil {
		stopper = nopStopper{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.entries[reg.Name]
	if exists {
		// Drop the old reverse edges before indexing the new ones.
		for _, dep := range e.deps {
			delete(c.dependents[dep.Name], e.name)
		}
	} else {
		e = &entry{
			name:   reg.Name,
			status: StatusRegistered,
			seq:    c.seq,
		}
		c.seq++
		c.entries[reg.Name] = e
		c.order = append(c.order, reg.Name)
	}

	e.config = reg.Config
	e.priority = reg.Priority
	e.deps = append([]Dependency(nil), reg.Dependencies...)
	e.interval = reg.HealthCheckInterval
	e.starter = starter
	e.stopper = stopper
	e.checker = reg.HealthChecker

	for _, dep := range reg.Dependencies {
		if c.dependents[dep.Name] == nil {
			c.dependents[dep.Name] = make(map[string]struct{})
		}
		c.dependents[dep.Name][reg.Name] = struct{}{}
	}

	return nil
}

// Get returns a snapshot of a service's entry.
func (c *Catalog) Get(name string) (Info, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[name]
	if !ok {
		return Info{}, false
	}
	return c.infoLocked(e), true
}

// Has reports whether a service is registered.
func (c *Catalog) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[name]
	return ok
}

// Len returns the number of registered services.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// ListNames returns all service names in registration order.
func (c *Catalog) ListNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...)
}

// Dependencies returns a service's declared edges.
func (c *Catalog) Dependencies(name string) []Dependency {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[name]
	if !ok {
		return nil
	}
	return append([]Dependency(nil), e.deps...)
}

// Dependents returns the names of services that declare an edge to the
// given service, sorted for determinism.
func (c *Catalog) Dependents(name string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dependentsLocked(name)
}

func (c *Catalog) dependentsLocked(name string) []string {
	set := c.dependents[name]
	out := make([]string, 0, len(set))
	for dep := range set {
		out = append(out, dep)
	}
	sort.Strings(out)
	return out
}

// SetInstance stores an opaque handle for the concrete service object.
func (c *Catalog) SetInstance(name string, instance any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[name]
	if !ok {
		return fmt.Errorf("service %q is not registered", name)
	}
	e.instance = instance
	return nil
}

// GetInstance returns the opaque handle stored for a service.
func (c *Catalog) GetInstance(name string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[name]
	if !ok || e.instance == nil {
		return nil, false
	}
	return e.instance, true
}

// Status returns a service's lifecycle status.
func (c *Catalog) Status(name string) (Status, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[name]
	if !ok {
		return "", false
	}
	return e.status, true
}

func (c *Catalog) infoLocked(e *entry) Info {
	info := Info{
		Name:            e.name,
		Status:          e.status,
		Priority:        e.priority,
		Dependencies:    append([]Dependency(nil), e.deps...),
		Warnings:        append([]string(nil), e.warnings...),
		StartupSeconds:  e.startupSeconds,
		ShutdownSeconds: e.shutdownSeconds,
		ForcedStop:      e.forcedStop,
		HasHealthCheck:  e.checker != nil,
	}
	if e.err != nil {
		info.Error = e.err.Error()
	}
	return info
}

// setStatus transitions a service and returns the previous status.
func (c *Catalog) setStatus(name string, status Status, err error) Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[name]
	if !ok {
		return ""
	}
	prev := e.status
	e.status = status
	e.err = err
	return prev
}

func (c *Catalog) addWarning(name, warning string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[name]; ok {
		e.warnings = append(e.warnings, warning)
	}
}

func (c *Catalog) clearWarnings(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[name]; ok {
		e.warnings = nil
	}
}

func (c *Catalog) recordStartup(name string, elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[name]; ok {
		e.startupSeconds = elapsed.Seconds()
	}
}

func (c *Catalog) recordShutdown(name string, elapsed time.Duration, forced bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[name]; ok {
		e.shutdownSeconds = elapsed.Seconds()
		e.forcedStop = forced
	}
}

func (c *Catalog) callbacks(name string) (Starter, Stopper, HealthChecker, Config, time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[name]
	if !ok {
		return nil, nil, nil, nil, 0, false
	}
	return e.starter, e.stopper, e.checker, e.config, e.interval, true
}
