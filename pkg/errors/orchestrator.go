// pkg/errors/orchestrator.go
package errors

// Orchestrator error codes
const (
	// OrchErrCycle indicates a required-dependency cycle in the catalog.
	OrchErrCycle = "ORCH_DEPENDENCY_CYCLE"
	// OrchErrMissingDependency indicates a required dependency that is not registered.
	OrchErrMissingDependency = "ORCH_MISSING_DEPENDENCY"
	// OrchErrDependencyNotMet indicates a required dependency that is not running or healthy.
	OrchErrDependencyNotMet = "ORCH_DEPENDENCY_NOT_MET"
	// OrchErrStartupFailed indicates a start callback failure.
	OrchErrStartupFailed = "ORCH_STARTUP_FAILED"
	// OrchErrShutdownFailed indicates a stop callback failure.
	OrchErrShutdownFailed = "ORCH_SHUTDOWN_FAILED"
	// OrchErrUnknownService indicates an operation on an unregistered service.
	OrchErrUnknownService = "ORCH_UNKNOWN_SERVICE"
	// OrchErrInvalidRegistration indicates a malformed registration.
	OrchErrInvalidRegistration = "ORCH_INVALID_REGISTRATION"
)

// Orchestrator domain name
const OrchestratorDomain = "orchestrator"

// Orchestrator operations
const (
	OpRegister      = "Register"
	OpInitializeAll = "InitializeAll"
	OpShutdownAll   = "ShutdownAll"
	OpRestartOne    = "RestartOne"
	OpResolveOrder  = "ResolveOrder"
	OpHealthCheck   = "HealthCheck"
)
