package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventBus_Filter(t *testing.T) {
	bus := NewEventBus()
	one := bus.Subscribe("a")
	all := bus.Subscribe("")
	defer bus.Unsubscribe(one)
	defer bus.Unsubscribe(all)

	bus.Publish(Event{Action: ActionUpdated, Block: "b"})
	bus.Publish(Event{Action: ActionUpdated, Block: "a"})

	assert.Equal(t, Event{Action: ActionUpdated, Block: "a"}, <-one)
	assert.Empty(t, one)
	assert.Equal(t, "b", (<-all).Block)
	assert.Equal(t, "a", (<-all).Block)
}

func TestEventBus_DropsForSlowSubscriber(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe("a")
	defer bus.Unsubscribe(ch)

	for range 40 {
		bus.Publish(Event{Action: ActionUpdated, Block: "a"})
	}
	assert.Len(t, ch, cap(ch))
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe("a")
	bus.Unsubscribe(ch)

	_, open := <-ch
	assert.False(t, open)
	bus.Publish(Event{Action: ActionDeleted, Block: "a"})
}
