package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, c chan Event) Event {
	t.Helper()
	select {
	case ev := <-c:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub()
	a := hub.Subscribe("user-a", 4)
	b := hub.Subscribe("user-b", 4)
	defer hub.Unsubscribe(a)
	defer hub.Unsubscribe(b)

	hub.Emit(EventNewBlock, "payload")

	assert.Equal(t, EventNewBlock, receive(t, a.C).Name)
	assert.Equal(t, EventNewBlock, receive(t, b.C).Name)
}

func TestHubEmitToUser(t *testing.T) {
	hub := NewHub()
	a := hub.Subscribe("user-a", 4)
	b := hub.Subscribe("user-b", 4)
	defer hub.Unsubscribe(a)
	defer hub.Unsubscribe(b)

	hub.EmitToUser("user-a", EventSubscriptionExpired, "payload")

	ev := receive(t, a.C)
	assert.Equal(t, EventSubscriptionExpired, ev.Name)
	assert.Equal(t, "user-a", ev.UserID)

	select {
	case ev := <-b.C:
		t.Fatalf("user-b received %s meant for user-a", ev.Name)
	default:
	}
}

func TestHubDropsWhenSubscriberFull(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("user-a", 1)
	defer hub.Unsubscribe(sub)

	// Second emit must not block even though the buffer is full.
	hub.Emit(EventNewBlock, 1)
	hub.Emit(EventNewBlock, 2)

	ev := receive(t, sub.C)
	assert.Equal(t, 1, ev.Payload)

	select {
	case ev := <-sub.C:
		t.Fatalf("expected dropped event, got %v", ev.Payload)
	default:
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("user-a", 1)

	hub.Unsubscribe(sub)
	_, open := <-sub.C
	require.False(t, open)

	// Double unsubscribe is safe.
	hub.Unsubscribe(sub)

	// Emitting after unsubscribe reaches nobody and does not panic.
	hub.Emit(EventNewBlock, "payload")
}
