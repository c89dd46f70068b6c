package sse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesSubscribersOfTopic(t *testing.T) {
	h := New()
	ch, unsub := h.Subscribe("job:a")
	defer unsub()
	other, unsubOther := h.Subscribe("job:b")
	defer unsubOther()

	h.PublishJSON("job:a", "completed", map[string]string{"id": "a"})

	select {
	case evt := <-ch:
		assert.Equal(t, "completed", evt.Type)
		assert.JSONEq(t, `{"id":"a"}`, evt.Data)
	default:
		t.Fatal("expected an event")
	}
	assert.Len(t, other, 0)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	h := New()
	_, unsub := h.Subscribe("job:a")
	require.Equal(t, 1, h.subscribers("job:a"))
	unsub()
	unsub()
	assert.Equal(t, 0, h.subscribers("job:a"))
}

func TestPublishDropsForFullSubscriber(t *testing.T) {
	h := New()
	ch, unsub := h.Subscribe("job:a")
	defer unsub()
	for i := 0; i < 20; i++ {
		h.Publish("job:a", Event{Type: "running", Data: "{}"})
	}
	assert.Len(t, ch, 16)
}
