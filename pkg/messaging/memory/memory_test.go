package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := b.Subscribe(ctx, "rtc:room:room_abc")
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), "rtc:room:room_abc", map[string]string{"type": "offer"}))
	require.NoError(t, b.Publish(context.Background(), "rtc:room:other", map[string]string{"type": "answer"}))

	select {
	case msg := <-ch:
		assert.JSONEq(t, `{"type":"offer"}`, string(msg))
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}

	select {
	case msg := <-ch:
		t.Fatalf("unexpected message %s", msg)
	default:
	}
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	b := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := b.Subscribe(ctx, "notifications")
	require.NoError(t, err)
	assert.Equal(t, 1, b.Subscribers("notifications"))

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
	assert.Equal(t, 0, b.Subscribers("notifications"))
}

func TestPublishAfterClose(t *testing.T) {
	b := NewBroker()
	require.NoError(t, b.Close())
	assert.Error(t, b.Publish(context.Background(), "x", "y"))
}
