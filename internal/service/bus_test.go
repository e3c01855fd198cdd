package service

import "testing"

func TestEventBus(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe()
	if bus.Len() != 1 {
		t.Fatalf("len=%d, want 1", bus.Len())
	}

	bus.Publish(Event{Resource: ResourceAssets, Action: ActionCreated, ID: "a1"})
	ev := <-ch
	if ev.ID != "a1" || ev.Action != ActionCreated {
		t.Fatalf("event=%+v", ev)
	}

	bus.Unsubscribe(ch)
	bus.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel not closed")
	}
	if bus.Len() != 0 {
		t.Fatalf("len=%d, want 0", bus.Len())
	}
}

func TestEventBusDropsForSlowSubscriber(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe()
	for i := 0; i < cap(ch)+5; i++ {
		bus.Publish(Event{Resource: ResourceAssets, Action: ActionUpdated, ID: "a1"})
	}
	if len(ch) != cap(ch) {
		t.Fatalf("buffered=%d, want %d", len(ch), cap(ch))
	}
}

func TestNilBusPublish(t *testing.T) {
	var bus *EventBus
	bus.Publish(Event{Resource: ResourceAssets})
}
