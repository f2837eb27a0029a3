package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicDeliversTypedPayload(t *testing.T) {
	bus := NewBus()

	var got SlideNavigatePayload
	unsub := SlideNavigate.Subscribe(bus, func(p SlideNavigatePayload) {
		got = p
	})
	defer unsub()

	SlideNavigate.Publish(bus, SlideNavigatePayload{DeckUUID: "d1", SlideIndex: 3})

	assert.Equal(t, "d1", got.DeckUUID)
	assert.Equal(t, 3, got.SlideIndex)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()

	calls := 0
	unsub := CursorMoved.Subscribe(bus, func(CursorMovedPayload) {
		calls++
	})

	CursorMoved.Publish(bus, CursorMovedPayload{ClientID: "c1"})
	unsub()
	CursorMoved.Publish(bus, CursorMovedPayload{ClientID: "c1"})

	assert.Equal(t, 1, calls)
}

func TestTopicsAreIsolated(t *testing.T) {
	bus := NewBus()

	started := 0
	completed := 0
	SlideStarted.Subscribe(bus, func(SlideGenerationPayload) { started++ })
	SlideCompleted.Subscribe(bus, func(SlideGenerationPayload) { completed++ })

	SlideStarted.Publish(bus, SlideGenerationPayload{SlideIndex: 0})

	assert.Equal(t, 1, started)
	assert.Equal(t, 0, completed)
}

func TestPanickingSubscriberDoesNotBlockOthers(t *testing.T) {
	bus := NewBus()

	CommentAdded.Subscribe(bus, func(CommentPayload) { panic("boom") })
	delivered := false
	CommentAdded.Subscribe(bus, func(CommentPayload) { delivered = true })

	assert.NotPanics(t, func() {
		CommentAdded.Publish(bus, CommentPayload{ThreadID: "t1"})
	})
	assert.True(t, delivered)
}
