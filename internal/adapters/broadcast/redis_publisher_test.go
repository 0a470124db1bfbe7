package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublish_ReachesProjectChannelSubscribers(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	publisher := NewRedisPublisher(client, "")
	ctx := context.Background()

	sub := client.Subscribe(ctx, "sentryvibe:state:proj-1")
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	payload := []byte(`{"sessionId":"sess-1","version":3}`)
	require.NoError(t, publisher.Publish(ctx, "proj-1", "sess-1", payload, 3))

	select {
	case msg := <-sub.Channel():
		assert.JSONEq(t, string(payload), msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast")
	}
}

func TestPublish_NoSubscribersIsNotAnError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	publisher := NewRedisPublisher(client, "")
	assert.NoError(t, publisher.Publish(context.Background(), "proj-1", "sess-1", []byte(`{}`), 1))
}
