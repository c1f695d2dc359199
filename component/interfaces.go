// Package component defines the lifecycle contract for the process-level
// building blocks of the service: anything that must come up before work
// starts and be torn down afterwards, such as the lifecycle engine or a
// standalone storage provider. A Registry holds the registered components
// and drives them as a group.
package component

import "context"

// Component is a long-lived unit with an explicit lifecycle. Start and
// Stop are each called at most once per run by the Registry; Health may
// be called at any time in between.
type Component interface {
	// Name identifies the component. Names are unique within a Registry.
	Name() string

	// Start acquires the component's resources. A component whose Start
	// returns an error counts as never started.
	Start(ctx context.Context) error

	// Stop releases resources. The Registry only stops components whose
	// Start succeeded.
	Stop(ctx context.Context) error

	// Health reports the component's current condition.
	Health(ctx context.Context) Health
}

// HealthStatus classifies a health report.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
	StatusDegraded  HealthStatus = "degraded"
)

// Health is one component's answer to a health probe.
type Health struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// Describable lets a component contribute a line to the startup banner.
// Implementing it is optional.
type Describable interface {
	Describe() Description
}

// Description is the banner line of a Describable component.
type Description struct {
	// Name is the display name, e.g. "Lifecycle Engine". The component's
	// Name() is used when empty.
	Name string

	// Type groups components in the banner: "storage", "engine", "audit".
	Type string

	// Details is a short free-form summary, e.g.
	// "provider=s3 bucket=photoflow-media".
	Details string
}
