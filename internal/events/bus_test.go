package events

import (
	"errors"
	"testing"
	"time"
)

func TestNewBus(t *testing.T) {
	bus := NewBus()
	if bus == nil {
		t.Fatal("expected non-nil bus")
	}
	if bus.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", bus.SubscriberCount())
	}
}

func TestBusSubscribeUnsubscribe(t *testing.T) {
	bus := NewBus()

	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()
	if bus.SubscriberCount() != 2 {
		t.Errorf("expected 2 subscribers, got %d", bus.SubscriberCount())
	}

	bus.Unsubscribe(ch1)
	if bus.SubscriberCount() != 1 {
		t.Errorf("expected 1 subscriber, got %d", bus.SubscriberCount())
	}
	if _, ok := <-ch1; ok {
		t.Error("expected unsubscribed channel to be closed")
	}

	bus.Unsubscribe(ch2)
	if bus.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", bus.SubscriberCount())
	}
}

func TestBusPublish(t *testing.T) {
	bus := NewBus()
	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()

	bus.Publish(NewPlayerOutcomeEvent("p-1", "matched", nil))

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case received := <-ch:
			if received.Type != EventPlayerOutcome {
				t.Errorf("subscriber %d: expected type %s, got %s", i, EventPlayerOutcome, received.Type)
			}
			if received.Subject != "p-1" {
				t.Errorf("subscriber %d: expected subject p-1, got %s", i, received.Subject)
			}
		case <-time.After(100 * time.Millisecond):
			t.Errorf("subscriber %d: timeout waiting for event", i)
		}
	}
}

func TestBusPublishNonBlocking(t *testing.T) {
	bus := NewBusWithBuffer(1)
	ch := bus.Subscribe()

	bus.Publish(NewProfileSwitchEvent("perfect"))
	bus.Publish(NewProfileSwitchEvent("poor_wifi"))
	bus.Publish(NewProfileSwitchEvent("intermittent"))

	select {
	case e := <-ch:
		if e.Data.Profile != "perfect" {
			t.Errorf("expected first event to be kept, got %s", e.Data.Profile)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for first event")
	}

	if bus.Dropped() != 2 {
		t.Errorf("expected 2 dropped deliveries, got %d", bus.Dropped())
	}
}

func TestBusSubscribeTypes(t *testing.T) {
	bus := NewBus()
	scenarios := bus.Subscribe(EventScenarioStart, EventScenarioComplete)
	all := bus.Subscribe()

	bus.Publish(NewScenarioStartEvent("burst", 2))
	bus.Publish(NewPlayerOutcomeEvent("p-1", "matched", nil))
	bus.Publish(NewPlayerOutcomeEvent("p-2", "matched", nil))
	bus.Publish(NewScenarioCompleteEvent("burst", "PASS", 2))

	if len(scenarios) != 2 {
		t.Errorf("expected 2 scenario events, got %d", len(scenarios))
	}
	if e := <-scenarios; e.Type != EventScenarioStart {
		t.Errorf("expected scenario_start first, got %s", e.Type)
	}
	if len(all) != 4 {
		t.Errorf("expected 4 events for the unfiltered subscriber, got %d", len(all))
	}

	stats := bus.Stats()
	if stats.Published != 4 {
		t.Errorf("expected 4 published, got %d", stats.Published)
	}
	if stats.Delivered != 6 {
		t.Errorf("expected 6 deliveries, got %d", stats.Delivered)
	}
	if stats.Dropped != 0 || stats.Subscribers != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestNilBusPublish(t *testing.T) {
	var bus *Bus
	bus.Publish(NewProfileSwitchEvent("perfect"))
}

func TestBusClose(t *testing.T) {
	bus := NewBus()

	ch := bus.Subscribe()
	bus.Close()

	if bus.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after close, got %d", bus.SubscriberCount())
	}
	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed")
	}
}

func TestEventCreation(t *testing.T) {
	t.Run("ScenarioEvents", func(t *testing.T) {
		start := NewScenarioStartEvent("burst", 50)
		if start.Type != EventScenarioStart || start.Data.Count != 50 {
			t.Errorf("unexpected start event: %+v", start)
		}

		done := NewScenarioCompleteEvent("burst", "PASS", 50)
		if done.Type != EventScenarioComplete || done.Data.Verdict != "PASS" {
			t.Errorf("unexpected complete event: %+v", done)
		}
	})

	t.Run("BurstStartEvent", func(t *testing.T) {
		e := NewBurstStartEvent("net_varying", 2, 10, "mobile_3g")
		if e.Data.Index != 2 || e.Data.Count != 10 || e.Data.Profile != "mobile_3g" {
			t.Errorf("unexpected burst event: %+v", e)
		}
	})

	t.Run("PlayerOutcomeWithError", func(t *testing.T) {
		e := NewPlayerOutcomeEvent("p-9", "connect_failed", errors.New("refused"))
		if e.Data.Category != "connect_failed" {
			t.Errorf("expected connect_failed, got %s", e.Data.Category)
		}
		if e.Data.Error != "refused" {
			t.Errorf("expected error text, got %q", e.Data.Error)
		}
	})

	t.Run("ProfileClear", func(t *testing.T) {
		e := NewProfileSwitchEvent("")
		if e.Type != EventProfileSwitch || e.Data.Profile != "" {
			t.Errorf("unexpected clear event: %+v", e)
		}
	})
}
