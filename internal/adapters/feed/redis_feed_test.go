package feed

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codyde/sentryvibe-sub001/internal/domain"
)

func newTestFeed(t *testing.T) (*RedisFeed, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisFeed(client, ""), mr
}

func TestSubscribe_DeliversDecodedEventsInOrder(t *testing.T) {
	feed, mr := newTestFeed(t)

	events, stop, err := feed.Subscribe(context.Background(), "cmd-1")
	require.NoError(t, err)
	defer stop()

	mr.Publish("sentryvibe:events:cmd-1", `{"type":"start","messageId":"msg-1"}`)
	mr.Publish("sentryvibe:events:cmd-1", `{"type":"text-delta","id":"txt-1","delta":"hi"}`)

	first := receiveEvent(t, events)
	start, ok := first.(domain.StartEvent)
	require.True(t, ok)
	assert.Equal(t, "msg-1", start.MessageID)

	second := receiveEvent(t, events)
	delta, ok := second.(domain.TextDeltaEvent)
	require.True(t, ok)
	assert.Equal(t, "hi", delta.Delta)
}

func TestSubscribe_SkipsMalformedPayloads(t *testing.T) {
	feed, mr := newTestFeed(t)

	events, stop, err := feed.Subscribe(context.Background(), "cmd-1")
	require.NoError(t, err)
	defer stop()

	mr.Publish("sentryvibe:events:cmd-1", `{"type":`)
	mr.Publish("sentryvibe:events:cmd-1", `{"type":"finish","messageId":"msg-1"}`)

	ev := receiveEvent(t, events)
	_, ok := ev.(domain.MessageFinishEvent)
	assert.True(t, ok, "malformed payload was skipped, next event delivered")
}

func TestSubscribe_UnknownTypesPassThrough(t *testing.T) {
	feed, mr := newTestFeed(t)

	events, stop, err := feed.Subscribe(context.Background(), "cmd-1")
	require.NoError(t, err)
	defer stop()

	mr.Publish("sentryvibe:events:cmd-1", `{"type":"tool-input-start","toolCallId":"c"}`)

	ev := receiveEvent(t, events)
	unknown, ok := ev.(domain.UnknownEvent)
	require.True(t, ok)
	assert.Equal(t, "tool-input-start", unknown.Type)
}

func TestSubscribe_ChannelsAreIsolatedPerCommand(t *testing.T) {
	feed, mr := newTestFeed(t)

	events1, stop1, err := feed.Subscribe(context.Background(), "cmd-1")
	require.NoError(t, err)
	defer stop1()
	events2, stop2, err := feed.Subscribe(context.Background(), "cmd-2")
	require.NoError(t, err)
	defer stop2()

	mr.Publish("sentryvibe:events:cmd-2", `{"type":"start","messageId":"other"}`)

	ev := receiveEvent(t, events2)
	start, ok := ev.(domain.StartEvent)
	require.True(t, ok)
	assert.Equal(t, "other", start.MessageID)

	select {
	case ev := <-events1:
		t.Fatalf("cmd-1 received foreign event %T", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStop_ClosesEventChannel(t *testing.T) {
	feed, _ := newTestFeed(t)

	events, stop, err := feed.Subscribe(context.Background(), "cmd-1")
	require.NoError(t, err)

	stop()
	// stop is safe to call twice
	stop()

	require.Eventually(t, func() bool {
		select {
		case _, open := <-events:
			return !open
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func receiveEvent(t *testing.T, events <-chan domain.BuildEvent) domain.BuildEvent {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}
