package broadcast

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/codyde/sentryvibe-sub001/internal/logging"
	"github.com/codyde/sentryvibe-sub001/internal/ports"
)

const defaultPrefix = "sentryvibe:state:"

// RedisPublisher implements ports.SnapshotPublisher over Redis
// pub/sub. Subscribers hold a persistent subscription on the project
// channel; the pull/reconciliation path reads the cached blob from the
// session store instead.
type RedisPublisher struct {
	client *redis.Client
	prefix string
}

// Verify interface compliance at compile time
var _ ports.SnapshotPublisher = (*RedisPublisher)(nil)

// NewRedisPublisher creates a publisher from an existing client
func NewRedisPublisher(client *redis.Client, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RedisPublisher{client: client, prefix: prefix}
}

// Publish implements SnapshotPublisher.Publish. The snapshot payload
// already carries its version; callers publish inside the per-build
// refresh critical section, which keeps channel order monotonic.
func (p *RedisPublisher) Publish(ctx context.Context, projectID, sessionID string, raw []byte, version int64) error {
	channel := p.prefix + projectID
	if err := p.client.Publish(ctx, channel, raw).Err(); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}

	logging.Logger.Debug("published snapshot",
		"project_id", projectID,
		"session_id", sessionID,
		"version", version,
	)
	return nil
}
