package ports

import (
	"context"

	"github.com/codyde/sentryvibe-sub001/internal/domain"
)

// EventFeed delivers the ordered per-build event stream. The returned
// channel preserves arrival order for the command id; calling the
// returned stop function ends delivery and closes the channel.
type EventFeed interface {
	Subscribe(ctx context.Context, commandID string) (events <-chan domain.BuildEvent, stop func(), err error)
}

// SnapshotPublisher pushes versioned snapshots to live subscribers
type SnapshotPublisher interface {
	Publish(ctx context.Context, projectID, sessionID string, raw []byte, version int64) error
}

// PortProber checks whether a local port can be bound. A true result
// means a bind-then-close succeeded and no foreign process holds it.
type PortProber interface {
	Probe(port int) bool
}
