package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogRegisterRejectsEmptyName(t *testing.T) {
	c := NewCatalog()
	err := c.Register(Registration{})
	assert.Error(t, err)
}

func TestCatalogRegisterRejectsSelfDependency(t *testing.T) {
	c := NewCatalog()
	err := c.Register(Registration{
		Name:         "loop",
		Dependencies: []Dependency{required("loop")},
	})
	assert.Error(t, err)
}

func TestCatalogReRegisterKeepsStateAndPosition(t *testing.T) {
	c := NewCatalog()
	mustRegister(t, c,
		Registration{Name: "a", Priority: 1},
		Registration{Name: "b", Priority: 2},
	)
	c.setStatus("a", StatusRunning, nil)

	// Overwrite a's metadata; its status and registration position survive.
	require.NoError(t, c.Register(Registration{Name: "a", Priority: 42}))

	status, ok := c.Status("a")
	require.True(t, ok)
	assert.Equal(t, StatusRunning, status)

	info, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 42, info.Priority)

	assert.Equal(t, []string{"a", "b"}, c.ListNames())
	assert.Equal(t, 2, c.Len())
}

func TestCatalogReRegisterReindexesDependents(t *testing.T) {
	c := NewCatalog()
	mustRegister(t, c,
		Registration{Name: "db"},
		Registration{Name: "cache"},
		Registration{Name: "app", Dependencies: []Dependency{required("db")}},
	)
	assert.Equal(t, []string{"app"}, c.Dependents("db"))

	// Re-register app pointing at cache instead; the reverse edge moves.
	require.NoError(t, c.Register(Registration{
		Name:         "app",
		Dependencies: []Dependency{required("cache")},
	}))

	assert.Empty(t, c.Dependents("db"))
	assert.Equal(t, []string{"app"}, c.Dependents("cache"))
}

func TestCatalogDependentsSorted(t *testing.T) {
	c := NewCatalog()
	mustRegister(t, c,
		Registration{Name: "db"},
		Registration{Name: "zeta", Dependencies: []Dependency{required("db")}},
		Registration{Name: "alpha", Dependencies: []Dependency{required("db")}},
	)
	assert.Equal(t, []string{"alpha", "zeta"}, c.Dependents("db"))
}

func TestCatalogInstances(t *testing.T) {
	c := NewCatalog()
	mustRegister(t, c, Registration{Name: "db"})

	_, ok := c.GetInstance("db")
	assert.False(t, ok)

	type conn struct{ addr string }
	require.NoError(t, c.SetInstance("db", &conn{addr: "localhost"}))

	got, ok := c.GetInstance("db")
	require.True(t, ok)
	assert.Equal(t, "localhost", got.(*conn).addr)

	assert.Error(t, c.SetInstance("missing", 1))
}

func TestCatalogInfoSnapshot(t *testing.T) {
	c := NewCatalog()
	mustRegister(t, c, Registration{
		Name:          "db",
		Priority:      90,
		HealthChecker: HealthCheckFunc(func(ctx context.Context) error { return nil }),
	})

	c.setStatus("db", StatusRunning, nil)
	c.recordStartup("db", 250*time.Millisecond)
	c.addWarning("db", "slow disk")

	info, ok := c.Get("db")
	require.True(t, ok)
	assert.Equal(t, StatusRunning, info.Status)
	assert.Equal(t, 90, info.Priority)
	assert.InDelta(t, 0.25, info.StartupSeconds, 0.001)
	assert.Equal(t, []string{"slow disk"}, info.Warnings)
	assert.True(t, info.HasHealthCheck)
	assert.False(t, info.ForcedStop)

	c.clearWarnings("db")
	info, _ = c.Get("db")
	assert.Empty(t, info.Warnings)
}
