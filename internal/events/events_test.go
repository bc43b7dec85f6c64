package events

import (
	"errors"
	"testing"
	"time"
)

func TestEventBus_PublishSubscribe(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch := bus.Subscribe(EventProgress)
	bus.PublishProgress("input.csv", 50, 10, 20)

	select {
	case received := <-ch:
		progress, ok := received.(*ProgressEvent)
		if !ok {
			t.Fatal("Expected ProgressEvent")
		}
		if progress.File != "input.csv" {
			t.Errorf("Expected file 'input.csv', got '%s'", progress.File)
		}
		if progress.Percentage != 50 {
			t.Errorf("Expected 50%%, got %f", progress.Percentage)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Timeout waiting for event")
	}
}

func TestEventBus_TypeFiltering(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	states := bus.Subscribe(EventStateChange)
	all := bus.SubscribeAll()

	bus.PublishPart("f", "u", 1, 5, `"e"`)
	bus.PublishStateChange("f", "u", "Transferring", "Finalizing")

	select {
	case ev := <-states:
		sc, ok := ev.(*StateChangeEvent)
		if !ok || sc.From != "Transferring" || sc.To != "Finalizing" {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Timeout waiting for state change")
	}

	select {
	case ev := <-states:
		t.Errorf("state subscriber should not receive %s", ev.Type())
	default:
	}

	if len(all) != 2 {
		t.Errorf("SubscribeAll should receive both events, got %d", len(all))
	}
}

func TestEventBus_DropsWhenFull(t *testing.T) {
	bus := NewEventBus(1)
	defer bus.Close()

	_ = bus.Subscribe(EventError)
	bus.PublishError("f", "u", 2, errors.New("boom"))
	bus.PublishError("f", "u", 2, errors.New("boom"))

	if got := bus.DroppedEvents(); got != 1 {
		t.Errorf("expected 1 dropped event, got %d", got)
	}
}

func TestEventBus_CloseClosesChannels(t *testing.T) {
	bus := NewEventBus(1)
	ch := bus.Subscribe(EventComplete)
	bus.Close()
	bus.Close() // idempotent

	if _, ok := <-ch; ok {
		t.Error("expected closed channel")
	}

	late := bus.SubscribeAll()
	if _, ok := <-late; ok {
		t.Error("subscribing after close should return a closed channel")
	}

	// Publishing after close is a no-op
	bus.PublishComplete("f", "h", "loc", 1, 1, time.Second)
}

func TestEventBus_NilPublish(t *testing.T) {
	var bus *EventBus
	bus.PublishStateChange("f", "u", "NotStarted", "Planning")
}
