package rtc

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jwalitptl/telehealth-api/pkg/messaging"
	"github.com/jwalitptl/telehealth-api/pkg/messaging/memory"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu      sync.Mutex
	inbound chan []byte
	written [][]byte
	closed  bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 10)}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	msg, ok := <-f.inbound
	if !ok {
		return 0, nil, io.EOF
	}
	return 1, msg, nil
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, data)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case msg := <-c.Send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestPublishSkipsSender(t *testing.T) {
	broker := memory.NewBroker()
	hub := NewHub(broker, zerolog.Nop(), nil)
	defer hub.Close()

	doctor, patient := uuid.New(), uuid.New()
	dc := NewClient(doctor, "room_aaaaaaaaaaaa", newFakeConn())
	pc := NewClient(patient, "room_aaaaaaaaaaaa", newFakeConn())

	require.NoError(t, hub.Register(context.Background(), dc))
	require.NoError(t, hub.Register(context.Background(), pc))
	assert.Equal(t, 2, hub.ClientCount("room_aaaaaaaaaaaa"))
	assert.Equal(t, 1, broker.Subscribers(messaging.RoomChannel("room_aaaaaaaaaaaa")))

	require.NoError(t, hub.Publish(context.Background(), "room_aaaaaaaaaaaa", doctor, map[string]string{"type": "rtc_signal", "signal_type": "offer"}))

	assert.JSONEq(t, `{"type":"rtc_signal","signal_type":"offer"}`, string(receive(t, pc)))
	select {
	case msg := <-dc.Send:
		t.Fatalf("sender received its own message: %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRoomsAreIsolated(t *testing.T) {
	hub := NewHub(memory.NewBroker(), zerolog.Nop(), nil)
	defer hub.Close()

	a := NewClient(uuid.New(), "room_a", newFakeConn())
	b := NewClient(uuid.New(), "room_b", newFakeConn())
	require.NoError(t, hub.Register(context.Background(), a))
	require.NoError(t, hub.Register(context.Background(), b))

	require.NoError(t, hub.Publish(context.Background(), "room_a", uuid.New(), map[string]string{"type": "user_joined"}))

	receive(t, a)
	select {
	case msg := <-b.Send:
		t.Fatalf("room_b received %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLastClientDropsSubscription(t *testing.T) {
	broker := memory.NewBroker()
	hub := NewHub(broker, zerolog.Nop(), nil)

	c := NewClient(uuid.New(), "room_x", newFakeConn())
	require.NoError(t, hub.Register(context.Background(), c))
	assert.Equal(t, 1, hub.RoomCount())

	hub.Unregister(c)
	assert.Equal(t, 0, hub.RoomCount())

	_, open := <-c.Send
	assert.False(t, open)

	assert.Eventually(t, func() bool {
		return broker.Subscribers(messaging.RoomChannel("room_x")) == 0
	}, time.Second, 10*time.Millisecond)

	// second unregister is a no-op
	hub.Unregister(c)
}

func TestPumpsMoveMessages(t *testing.T) {
	conn := newFakeConn()
	c := NewClient(uuid.New(), "room_p", conn)

	done := make(chan struct{})
	go func() {
		c.WritePump()
		close(done)
	}()

	assert.True(t, c.Reply([]byte(`{"type":"error","message":"Invalid JSON"}`)))
	close(c.Send)
	<-done

	conn.mu.Lock()
	require.NotEmpty(t, conn.written)
	assert.JSONEq(t, `{"type":"error","message":"Invalid JSON"}`, string(conn.written[0]))
	assert.True(t, conn.closed)
	conn.mu.Unlock()

	var got []string
	conn.inbound <- []byte("one")
	conn.inbound <- []byte("two")
	close(conn.inbound)
	c.ReadPump(func(m []byte) { got = append(got, string(m)) })
	assert.Equal(t, []string{"one", "two"}, got)
}

func TestReconnectDeliversOnce(t *testing.T) {
	hub := NewHub(memory.NewBroker(), zerolog.Nop(), nil)
	defer hub.Close()

	doctor, patient := uuid.New(), uuid.New()
	for i := 0; i < 50; i++ {
		old := NewClient(patient, "room_reconnect", newFakeConn())
		require.NoError(t, hub.Register(context.Background(), old))
		hub.Unregister(old)

		fresh := NewClient(patient, "room_reconnect", newFakeConn())
		require.NoError(t, hub.Register(context.Background(), fresh))

		require.NoError(t, hub.Publish(context.Background(), "room_reconnect", doctor, map[string]string{"type": "rtc_signal", "signal_type": "ice-candidate"}))
		receive(t, fresh)
		select {
		case msg := <-fresh.Send:
			t.Fatalf("iteration %d: duplicate delivery %s", i, msg)
		case <-time.After(20 * time.Millisecond):
		}
		hub.Unregister(fresh)
	}
}
