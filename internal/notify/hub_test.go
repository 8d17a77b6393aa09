package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newBareClient builds a client without a live connection. The pumps
// are never started, so tests read c.send directly.
func newBareClient(h *Hub, buffer int) *Client {
	return &Client{hub: h, send: make(chan []byte, buffer)}
}

func recv(t *testing.T, ch chan []byte) []byte {
	t.Helper()

	select {
	case payload := <-ch:
		return payload
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for payload")
		return nil
	}
}

func assertNothing(t *testing.T, ch chan []byte) {
	t.Helper()

	select {
	case payload := <-ch:
		t.Fatalf("unexpected payload: %s", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func startHub(t *testing.T) *Hub {
	t.Helper()

	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func TestHubBroadcastReachesSubscribersOnly(t *testing.T) {
	h := startHub(t)

	sub := newBareClient(h, 16)
	other := newBareClient(h, 16)
	h.register <- sub
	h.register <- other

	h.subscribe <- subscription{client: sub, fileID: "file-a"}
	h.subscribe <- subscription{client: other, fileID: "file-b"}

	h.Broadcast("file-a", []byte("one"))
	assert.Equal(t, "one", string(recv(t, sub.send)))
	assertNothing(t, other.send)
}

func TestHubBroadcastPreservesOrder(t *testing.T) {
	h := startHub(t)

	sub := newBareClient(h, 16)
	h.register <- sub
	h.subscribe <- subscription{client: sub, fileID: "file-a"}

	h.Broadcast("file-a", []byte("first"))
	h.Broadcast("file-a", []byte("second"))
	h.Broadcast("file-a", []byte("third"))

	assert.Equal(t, "first", string(recv(t, sub.send)))
	assert.Equal(t, "second", string(recv(t, sub.send)))
	assert.Equal(t, "third", string(recv(t, sub.send)))
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	h := startHub(t)

	sub := newBareClient(h, 16)
	h.register <- sub
	h.subscribe <- subscription{client: sub, fileID: "file-a"}

	h.Broadcast("file-a", []byte("before"))
	require.Equal(t, "before", string(recv(t, sub.send)))

	h.unsubscribe <- subscription{client: sub, fileID: "file-a"}

	h.Broadcast("file-a", []byte("after"))
	assertNothing(t, sub.send)
}

func TestHubClientCanJoinMultipleGroups(t *testing.T) {
	h := startHub(t)

	sub := newBareClient(h, 16)
	h.register <- sub
	h.subscribe <- subscription{client: sub, fileID: "file-a"}
	h.subscribe <- subscription{client: sub, fileID: "file-b"}

	h.Broadcast("file-a", []byte("a"))
	h.Broadcast("file-b", []byte("b"))

	assert.Equal(t, "a", string(recv(t, sub.send)))
	assert.Equal(t, "b", string(recv(t, sub.send)))
}

func TestHubUnregisterClosesSend(t *testing.T) {
	h := startHub(t)

	sub := newBareClient(h, 16)
	h.register <- sub
	h.subscribe <- subscription{client: sub, fileID: "file-a"}

	h.unregister <- sub

	select {
	case _, ok := <-sub.send:
		assert.False(t, ok, "send channel should be closed")
	case <-time.After(2 * time.Second):
		t.Fatal("send channel was not closed")
	}

	// Broadcasting afterwards must not panic on the closed channel
	h.Broadcast("file-a", []byte("late"))

	// A follow-up synchronous op proves the hub is still alive
	alive := newBareClient(h, 1)
	h.register <- alive
}

func TestHubEvictsSlowConsumer(t *testing.T) {
	h := startHub(t)

	slow := newBareClient(h, 1)
	fast := newBareClient(h, 16)
	h.register <- slow
	h.register <- fast
	h.subscribe <- subscription{client: slow, fileID: "file-a"}
	h.subscribe <- subscription{client: fast, fileID: "file-a"}

	// Fill the slow client's buffer so the next delivery cannot land
	h.Broadcast("file-a", []byte("one"))
	h.Broadcast("file-a", []byte("two"))

	assert.Equal(t, "one", string(recv(t, fast.send)))
	assert.Equal(t, "two", string(recv(t, fast.send)))

	// The slow client got the first payload, then the close
	assert.Equal(t, "one", string(recv(t, slow.send)))
	select {
	case _, ok := <-slow.send:
		assert.False(t, ok, "slow client's channel should be closed")
	case <-time.After(2 * time.Second):
		t.Fatal("slow client was not evicted")
	}
}

func TestHubSubscribeWithoutRegisterIsIgnored(t *testing.T) {
	h := startHub(t)

	ghost := newBareClient(h, 1)
	h.subscribe <- subscription{client: ghost, fileID: "file-a"}

	h.Broadcast("file-a", []byte("x"))
	assertNothing(t, ghost.send)
}
