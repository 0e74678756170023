// pkg/service/resolver.go
package service

import (
	"fmt"
	"sort"
	"strings"
)

// CycleError reports a required-dependency cycle in the catalog.
type CycleError struct {
	// Services are the implicated service names, in cycle order.
	Services []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Services, " -> "))
}

// MissingDependencyError reports a required dependency that is not
// registered at resolution time.
type MissingDependencyError struct {
	Service    string
	Dependency string
}

// Error implements the error interface.
func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("service %q requires %q which is not registered", e.Service, e.Dependency)
}

// resolveNode is the resolver's snapshot of one catalog entry.
type resolveNode struct {
	name     string
	priority int
	seq      int
	required []string
}

// snapshotNodes copies the metadata the resolver needs under a single read
// lock so resolution works on a consistent view of the catalog.
func (c *Catalog) snapshotNodes() map[string]*resolveNode {
	c.mu.RLock()
	defer c.mu.RUnlock()

	nodes := make(map[string]*resolveNode, len(c.entries))
	for name, e := range c.entries {
		n := &resolveNode{name: name, priority: e.priority, seq: e.seq}
		for _, dep := range e.deps {
			if dep.Kind == DependencyRequired {
				n.required = append(n.required, dep.Name)
			}
		}
		nodes[name] = n
	}
	return nodes
}

// sortByPriority orders names by descending priority, then by registration
// order, for deterministic resolution.
func sortByPriority(names []string, nodes map[string]*resolveNode) {
	sort.SliceStable(names, func(i, j int) bool {
		a, b := nodes[names[i]], nodes[names[j]]
		if a.priority != b.priority {
			return a.priority > b.priority
		}
		return a.seq < b.seq
	})
}

// StartupOrder computes a valid initialization order: a depth-first
// topological sort over required edges, with ties between independent
// services broken by descending priority then registration order. It fails
// on a cycle or on a required dependency that is still unregistered.
func (c *Catalog) StartupOrder() ([]string, error) {
	nodes := c.snapshotNodes()

	roots := make([]string, 0, len(nodes))
	for name := range nodes {
		roots = append(roots, name)
	}
	sortByPriority(roots, nodes)

	const (
		unvisited = iota
		inProgress
		done
	)
	state := make(map[string]int, len(nodes))
	stack := make([]string, 0, len(nodes))
	order := make([]string, 0, len(nodes))

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case inProgress:
			// The node is on the current recursion stack: cycle.
			idx := 0
			for i, n := range stack {
				if n == name {
					idx = i
					break
				}
			}
			cycle := append(append([]string(nil), stack[idx:]...), name)
			return &CycleError{Services: cycle}
		}

		state[name] = inProgress
		stack = append(stack, name)

		for _, dep := range nodes[name].required {
			if _, ok := nodes[dep]; !ok {
				return &MissingDependencyError{Service: name, Dependency: dep}
			}
			if err := visit(dep); err != nil {
				return err
			}
		}

		stack = stack[:len(stack)-1]
		state[name] = done
		order = append(order, name)
		return nil
	}

	for _, name := range roots {
		if err := visit(name); err != nil {
			return nil, err
		}
	}

	return order, nil
}

// ShutdownOrder computes a tear-down order that stops every dependent before
// the services it depends on. Unlike StartupOrder it never fails: with a
// cyclic or otherwise unresolvable catalog it degrades to best-effort
// ordering so shutdown always makes progress.
func (c *Catalog) ShutdownOrder() []string {
	nodes := c.snapshotNodes()

	base, err := c.StartupOrder()
	if err != nil {
		base = make([]string, 0, len(nodes))
		for name := range nodes {
			base = append(base, name)
		}
		sortByPriority(base, nodes)
	}

	c.mu.RLock()
	dependents := make(map[string][]string, len(nodes))
	for name := range nodes {
		dependents[name] = c.dependentsLocked(name)
	}
	c.mu.RUnlock()

	visited := make(map[string]bool, len(nodes))
	order := make([]string, 0, len(nodes))

	var visit func(name string)
	visit = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true
		for _, dep := range dependents[name] {
			if _, ok := nodes[dep]; ok {
				visit(dep)
			}
		}
		order = append(order, name)
	}

	for i := len(base) - 1; i >= 0; i-- {
		visit(base[i])
	}

	// Anything the traversal missed is appended rather than dropped;
	// shutdown must cover every registered service.
	for name := range nodes {
		if !visited[name] {
			order = append(order, name)
		}
	}

	return order
}
