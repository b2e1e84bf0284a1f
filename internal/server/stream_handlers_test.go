package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamHubPublishDeliversToSubscriber(t *testing.T) {
	hub := NewStreamHub(testLogger())
	ch := hub.subscribe("u1")
	defer hub.unsubscribe("u1", ch)

	hub.Publish("u1", "alert", map[string]string{"message": "low balance"})

	msg := <-ch
	assert.Equal(t, "alert", msg.Type)
}

func TestStreamHubPublishIsScopedPerUser(t *testing.T) {
	hub := NewStreamHub(testLogger())
	chA := hub.subscribe("u1")
	chB := hub.subscribe("u2")
	defer hub.unsubscribe("u1", chA)
	defer hub.unsubscribe("u2", chB)

	hub.Publish("u1", "alert", nil)

	select {
	case <-chA:
	default:
		t.Fatal("expected u1 subscriber to receive message")
	}
	select {
	case <-chB:
		t.Fatal("u2 subscriber should not receive u1's message")
	default:
	}
}

func TestStreamHubPublishDoesNotBlockOnFullChannel(t *testing.T) {
	hub := NewStreamHub(testLogger())
	ch := hub.subscribe("u1")
	defer hub.unsubscribe("u1", ch)

	for i := 0; i < 32; i++ {
		hub.Publish("u1", "alert", i)
	}
}

func TestStreamHubUnsubscribeRemovesUserEntryWhenEmpty(t *testing.T) {
	hub := NewStreamHub(testLogger())
	ch := hub.subscribe("u1")
	hub.unsubscribe("u1", ch)

	hub.mu.Lock()
	_, exists := hub.subs["u1"]
	hub.mu.Unlock()
	require.False(t, exists)
}
