package syncer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userConnCount(h *Hub, userID string) (int, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns, ok := h.users[userID]
	return len(conns), ok
}

func waitForHub(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("hub condition not met in time")
}

func TestBroadcastReachesEveryConnectionOfUser(t *testing.T) {
	hub := NewHub()
	hub.Start()

	a := &Conn{UserID: "u1", Send: make(chan []byte, 1)}
	b := &Conn{UserID: "u1", Send: make(chan []byte, 1)}
	other := &Conn{UserID: "u2", Send: make(chan []byte, 1)}
	hub.Register(a)
	hub.Register(b)
	hub.Register(other)
	waitForHub(t, func() bool { n, _ := userConnCount(hub, "u1"); return n == 2 })

	require.NoError(t, hub.BroadcastToUser("u1", Message{Type: TypeChatsCleared}))

	for _, conn := range []*Conn{a, b} {
		select {
		case <-conn.Send:
		case <-time.After(time.Second):
			t.Fatal("connection never received the broadcast")
		}
	}
	select {
	case <-other.Send:
		t.Fatal("other user's connection must not receive the broadcast")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnregisterLastConnRemovesUserEntry(t *testing.T) {
	hub := NewHub()
	hub.Start()

	conn := &Conn{UserID: "u1", Send: make(chan []byte, 1)}
	hub.Register(conn)
	waitForHub(t, func() bool { _, ok := userConnCount(hub, "u1"); return ok })

	hub.Unregister(conn)
	waitForHub(t, func() bool { _, ok := userConnCount(hub, "u1"); return !ok })

	_, open := <-conn.Send
	assert.False(t, open, "send channel is closed on unregister")
}

func TestSlowConsumerDropCleansUpUserEntry(t *testing.T) {
	hub := NewHub()
	hub.Start()

	// Unbuffered channel with no reader: the broadcast cannot be delivered
	// and the connection is dropped as a slow consumer.
	conn := &Conn{UserID: "u1", Send: make(chan []byte)}
	hub.Register(conn)
	waitForHub(t, func() bool { _, ok := userConnCount(hub, "u1"); return ok })

	require.NoError(t, hub.BroadcastToUser("u1", Message{Type: TypeChatsCleared}))
	waitForHub(t, func() bool { _, ok := userConnCount(hub, "u1"); return !ok })

	_, open := <-conn.Send
	assert.False(t, open, "send channel is closed when the connection is dropped")
}
