// Package unit runs the isolated compute units (containers) that host lab
// services such as authoritative name servers.
package unit

import "context"

// Unit states.
const (
	StateRunning = "running"
	StateStopped = "stopped"
)

// Mount binds a host path into the unit.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// Spec describes a unit to create.
type Spec struct {
	Name   string
	Image  string
	Mounts []Mount
	Env    []string
}

// Runtime creates and drives units by name.
type Runtime interface {
	Create(ctx context.Context, spec Spec) error
	Start(ctx context.Context, name string) error
	// Stop is a no-op for a unit that is not running.
	Stop(ctx context.Context, name string) error
	// Delete stops the unit if needed. Deleting a missing unit is a no-op.
	Delete(ctx context.Context, name string) error
	// Status reports whether the unit exists and, if so, its state.
	Status(ctx context.Context, name string) (exists bool, state string, err error)
	// PID returns the process id of a running unit.
	PID(ctx context.Context, name string) (int, error)
}
