package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSerializesEvent(t *testing.T) {
	h := NewHub()

	h.Publish(EventMessageStatus, map[string]interface{}{
		"wa_message_id": "wamid.X",
		"status":        "read",
	})

	select {
	case raw := <-h.broadcast:
		var event Event
		require.NoError(t, json.Unmarshal(raw, &event))
		assert.Equal(t, EventMessageStatus, event.Type)
		data, ok := event.Data.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "read", data["status"])
		assert.False(t, event.At.IsZero())
	case <-time.After(time.Second):
		t.Fatal("no event queued")
	}
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	h := NewHub()
	for i := 0; i < cap(h.broadcast); i++ {
		h.broadcast <- []byte("{}")
	}
	// must return instead of blocking
	done := make(chan struct{})
	go func() {
		h.Publish(EventCallUpdated, nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full buffer")
	}
}

func TestRunDeliversAndEvictsSlowClients(t *testing.T) {
	h := NewHub()
	go h.Run()

	healthy := &Client{hub: h, send: make(chan []byte, 1)}
	slow := &Client{hub: h, send: make(chan []byte)} // zero buffer, never read

	h.register <- healthy
	h.register <- slow

	h.broadcast <- []byte(`{"type":"conversation.updated"}`)

	select {
	case msg := <-healthy.send:
		assert.JSONEq(t, `{"type":"conversation.updated"}`, string(msg))
	case <-time.After(time.Second):
		t.Fatal("healthy client got nothing")
	}

	// the slow client's send channel is closed on eviction
	select {
	case _, open := <-slow.send:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("slow client was not evicted")
	}
}
