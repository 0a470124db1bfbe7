package ports

import (
	"context"
	"time"

	"github.com/codyde/sentryvibe-sub001/internal/domain"
)

// PortRepository is the durable reservation table for dev-server
// ports. Assign is the only mutation that races across projects; it
// locks the target port row inside its transaction so concurrent
// reservations of the same port serialize while different ports
// proceed in parallel.
type PortRepository interface {
	// AllocationForProject returns the project's current reservation,
	// or nil when it holds none.
	AllocationForProject(ctx context.Context, projectID string) (*domain.PortAllocation, error)
	// Assign gives the project exclusive ownership of the port,
	// clearing any prior reservation the project held. Returns
	// domain.ErrPortTaken when another project owns the port.
	Assign(ctx context.Context, projectID string, port int, framework string) error
	// Release clears the project's ownership without deleting rows
	Release(ctx context.Context, projectID string) error
	// ReleaseOlderThan clears ownership of allocations reserved
	// before cutoff whose projects have no pending or active session.
	// Returns the number of allocations released.
	ReleaseOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}
