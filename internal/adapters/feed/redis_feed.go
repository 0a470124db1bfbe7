package feed

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/codyde/sentryvibe-sub001/internal/domain"
	"github.com/codyde/sentryvibe-sub001/internal/logging"
	"github.com/codyde/sentryvibe-sub001/internal/ports"
)

const defaultPrefix = "sentryvibe:events:"

// RedisFeed implements ports.EventFeed over Redis pub/sub. Each build
// publishes on a channel keyed by its command id; Redis preserves
// per-channel publish order, which gives the per-build ordering the
// processor relies on.
type RedisFeed struct {
	client *redis.Client
	prefix string
}

// Verify interface compliance at compile time
var _ ports.EventFeed = (*RedisFeed)(nil)

// NewRedisFeed creates a feed from an existing client. Useful for
// sharing a client with the broadcast gateway and for miniredis tests.
func NewRedisFeed(client *redis.Client, prefix string) *RedisFeed {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RedisFeed{client: client, prefix: prefix}
}

// Subscribe implements EventFeed.Subscribe. Malformed payloads are
// logged and skipped; unrecognized types surface as UnknownEvent for
// the processor to ignore.
func (f *RedisFeed) Subscribe(ctx context.Context, commandID string) (<-chan domain.BuildEvent, func(), error) {
	channel := f.prefix + commandID
	sub := f.client.Subscribe(ctx, channel)

	// Force the SUBSCRIBE to complete so no events published after
	// Subscribe returns are missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	events := make(chan domain.BuildEvent, 64)
	var once sync.Once
	stop := func() {
		once.Do(func() {
			_ = sub.Close()
		})
	}

	go func() {
		defer close(events)
		for msg := range sub.Channel() {
			event, err := domain.DecodeEvent([]byte(msg.Payload))
			if err != nil {
				logging.Logger.Warn("dropping malformed build event",
					"command_id", commandID,
					"error", err,
				)
				continue
			}
			select {
			case events <- event:
			case <-ctx.Done():
				stop()
				return
			}
		}
	}()

	return events, stop, nil
}
