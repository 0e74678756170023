package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmatc13/conductor/pkg/config"
	"github.com/cmatc13/conductor/pkg/health"
	"github.com/cmatc13/conductor/pkg/logging"
	"github.com/cmatc13/conductor/pkg/service"
)

func testConfig() *config.Config {
	return &config.Config{
		API: config.APIConfig{
			Port:           "0",
			RateLimit:      1000,
			AllowedOrigins: []string{"*"},
		},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *service.Orchestrator) {
	t.Helper()
	orch := service.New(service.Options{
		GracePeriod:          100 * time.Millisecond,
		StartTimeout:         time.Second,
		RestartPause:         time.Millisecond,
		DefaultCheckInterval: 5 * time.Millisecond,
	}, logging.Discard(), nil)
	return NewServer(cfg, orch, logging.Discard(), nil), orch
}

func doRequest(s *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpointHealthy(t *testing.T) {
	s, _ := newTestServer(t, testConfig())

	rec := doRequest(s, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status  health.Status  `json:"status"`
		Summary health.Summary `json:"summary"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, health.StatusHealthy, body.Status)
}

func TestHealthEndpointUnhealthy(t *testing.T) {
	s, orch := newTestServer(t, testConfig())

	require.NoError(t, orch.Register(service.Registration{
		Name: "db",
		HealthChecker: service.HealthCheckFunc(func(context.Context) error {
			return fmt.Errorf("refused")
		}),
		HealthCheckInterval: 5 * time.Millisecond,
	}))
	require.NoError(t, orch.InitializeAll(context.Background()))
	defer orch.ShutdownAll(context.Background())

	require.Eventually(t, func() bool {
		return orch.AggregatedHealth().Status == health.StatusUnhealthy
	}, time.Second, 5*time.Millisecond)

	rec := doRequest(s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDiscoverEndpoint(t *testing.T) {
	s, orch := newTestServer(t, testConfig())

	require.NoError(t, orch.Register(service.Registration{Name: "db", Priority: 90}))
	require.NoError(t, orch.Register(service.Registration{
		Name: "app",
		Dependencies: []service.Dependency{
			{Name: "db", Kind: service.DependencyRequired},
		},
	}))

	rec := doRequest(s, http.MethodGet, "/api/v1/services")
	require.Equal(t, http.StatusOK, rec.Code)

	var views map[string]service.View
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&views))
	require.Len(t, views, 2)
	assert.Equal(t, []string{"db"}, views["app"].Dependencies)
	assert.Equal(t, []string{"app"}, views["db"].Dependents)
}

func TestServiceEndpoint(t *testing.T) {
	s, orch := newTestServer(t, testConfig())
	require.NoError(t, orch.Register(service.Registration{Name: "db", Priority: 90}))

	rec := doRequest(s, http.MethodGet, "/api/v1/services/db")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Name     string         `json:"name"`
		Status   service.Status `json:"status"`
		Priority int            `json:"priority"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "db", body.Name)
	assert.Equal(t, service.StatusRegistered, body.Status)
	assert.Equal(t, 90, body.Priority)
}

func TestServiceEndpointNotFound(t *testing.T) {
	s, _ := newTestServer(t, testConfig())

	for _, path := range []string{
		"/api/v1/services/ghost",
		"/api/v1/services/ghost/dependencies",
		"/api/v1/services/ghost/dependents",
	} {
		rec := doRequest(s, http.MethodGet, path)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestDependencyEndpoints(t *testing.T) {
	s, orch := newTestServer(t, testConfig())

	require.NoError(t, orch.Register(service.Registration{Name: "db"}))
	require.NoError(t, orch.Register(service.Registration{
		Name: "app",
		Dependencies: []service.Dependency{
			{Name: "db", Kind: service.DependencyRequired, HealthCheckRequired: true},
		},
	}))

	rec := doRequest(s, http.MethodGet, "/api/v1/services/app/dependencies")
	require.Equal(t, http.StatusOK, rec.Code)
	var deps []service.Dependency
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&deps))
	require.Len(t, deps, 1)
	assert.Equal(t, "db", deps[0].Name)
	assert.True(t, deps[0].HealthCheckRequired)

	rec = doRequest(s, http.MethodGet, "/api/v1/services/db/dependents")
	require.Equal(t, http.StatusOK, rec.Code)
	var dependents []string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&dependents))
	assert.Equal(t, []string{"app"}, dependents)
}

func TestOverviewEndpoint(t *testing.T) {
	s, orch := newTestServer(t, testConfig())

	require.NoError(t, orch.Register(service.Registration{Name: "db"}))
	require.NoError(t, orch.InitializeAll(context.Background()))
	defer orch.ShutdownAll(context.Background())

	rec := doRequest(s, http.MethodGet, "/api/v1/overview")
	require.Equal(t, http.StatusOK, rec.Code)

	var ov service.Overview
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ov))
	assert.True(t, ov.Initialized)
	assert.Equal(t, 1, ov.Total)
	assert.Equal(t, 1, ov.Running)
}

func TestEventsEndpoint(t *testing.T) {
	s, orch := newTestServer(t, testConfig())

	require.NoError(t, orch.Register(service.Registration{Name: "db"}))

	rec := doRequest(s, http.MethodGet, "/api/v1/events")
	require.Equal(t, http.StatusOK, rec.Code)

	var events []service.Event
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&events))
	require.NotEmpty(t, events)
	assert.Equal(t, "db", events[0].Service)
}

func TestRestartEndpoint(t *testing.T) {
	s, orch := newTestServer(t, testConfig())

	require.NoError(t, orch.Register(service.Registration{Name: "db"}))
	require.NoError(t, orch.InitializeAll(context.Background()))
	defer orch.ShutdownAll(context.Background())

	rec := doRequest(s, http.MethodPost, "/api/v1/services/db/restart")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, http.MethodPost, "/api/v1/services/ghost/restart")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestControlEndpointsRequireToken(t *testing.T) {
	cfg := testConfig()
	cfg.API.JWTSecret = "test-secret"
	s, orch := newTestServer(t, cfg)

	require.NoError(t, orch.Register(service.Registration{Name: "db"}))

	// Control operations are rejected without a token.
	rec := doRequest(s, http.MethodPost, "/api/v1/services/db/restart")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(s, http.MethodPost, "/api/v1/initialize")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// The read-only surface stays open.
	rec = doRequest(s, http.MethodGet, "/api/v1/services")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestInitializeAndShutdownEndpoints(t *testing.T) {
	s, orch := newTestServer(t, testConfig())
	require.NoError(t, orch.Register(service.Registration{Name: "db"}))

	rec := doRequest(s, http.MethodPost, "/api/v1/initialize")
	require.Equal(t, http.StatusOK, rec.Code)

	status, _ := orch.Status("db")
	assert.Equal(t, service.StatusRunning, status)

	rec = doRequest(s, http.MethodPost, "/api/v1/shutdown")
	require.Equal(t, http.StatusOK, rec.Code)

	status, _ = orch.Status("db")
	assert.Equal(t, service.StatusStopped, status)
}
