package events

import (
	"testing"
	"time"
)

func receive(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case e, ok := <-sub.C():
		if !ok {
			t.Fatal("subscription closed")
		}
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestHub_DeliversInOrder(t *testing.T) {
	hub := NewHub(16)
	defer hub.Close()

	sub := hub.Subscribe()
	defer sub.Close()

	for i := 1; i <= 5; i++ {
		hub.Publish(Event{Type: Progress, Progress: i * 10})
	}

	for i := 1; i <= 5; i++ {
		e := receive(t, sub)
		if e.Progress != i*10 {
			t.Errorf("event %d: Progress = %d, want %d", i, e.Progress, i*10)
		}
	}
}

func TestHub_FanOut(t *testing.T) {
	hub := NewHub(16)
	defer hub.Close()

	a := hub.Subscribe()
	b := hub.Subscribe()
	defer a.Close()
	defer b.Close()

	hub.Publish(Event{Type: Log, Message: "hello"})

	if e := receive(t, a); e.Message != "hello" {
		t.Errorf("a got %q, want hello", e.Message)
	}
	if e := receive(t, b); e.Message != "hello" {
		t.Errorf("b got %q, want hello", e.Message)
	}
}

func TestHub_SlowConsumerDropsOldestProgress(t *testing.T) {
	hub := NewHub(3)
	defer hub.Close()

	sub := hub.Subscribe()
	defer sub.Close()

	// Nobody reads while publishing. Publish must not block.
	done := make(chan struct{})
	go func() {
		for i := 1; i <= 50; i++ {
			hub.Publish(Event{Type: Progress, Progress: i})
		}
		hub.Publish(Event{Type: CampaignFinished, Message: "done"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}

	var last Event
	prev := 0
	for {
		e := receive(t, sub)
		if e.Type == CampaignFinished {
			last = e
			break
		}
		if e.Progress <= prev {
			t.Errorf("progress out of order: %d after %d", e.Progress, prev)
		}
		prev = e.Progress
	}

	if last.Message != "done" {
		t.Errorf("terminal event lost, got %+v", last)
	}
	if prev != 50 {
		t.Errorf("newest progress = %d, want 50 (oldest should be dropped first)", prev)
	}
	if sub.Dropped() == 0 {
		t.Error("expected dropped events to be counted")
	}
}

func TestHub_TerminalEventsNeverDropped(t *testing.T) {
	hub := NewHub(2)
	defer hub.Close()

	sub := hub.Subscribe()
	defer sub.Close()

	for i := 0; i < 10; i++ {
		hub.Publish(Event{Type: BotFinished, Bot: string(rune('A' + i))})
	}
	hub.Publish(Event{Type: Progress, Progress: 1})

	finished := 0
	for finished < 10 {
		if e := receive(t, sub); e.Type == BotFinished {
			finished++
		}
	}
}

func TestHub_CloseEndsSubscriptions(t *testing.T) {
	hub := NewHub(4)
	sub := hub.Subscribe()

	if hub.Count() != 1 {
		t.Errorf("Count() = %d, want 1", hub.Count())
	}

	hub.Close()

	select {
	case _, ok := <-sub.C():
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription channel not closed")
	}

	late := hub.Subscribe()
	if _, ok := <-late.C(); ok {
		t.Error("subscribing to a closed hub should yield a closed channel")
	}
	late.Close()
	late.Close()
}

func TestHub_SubscribeAfterCloseThenClose(t *testing.T) {
	hub := NewHub(4)
	hub.Close()

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("Close on a subscription from a closed hub panicked: %v", r)
		}
	}()
	sub := hub.Subscribe()
	sub.Close()
	hub.Close()

	if hub.Count() != 0 {
		t.Errorf("Count() = %d, want 0", hub.Count())
	}
}

func TestSubscription_CloseUnregisters(t *testing.T) {
	hub := NewHub(4)
	defer hub.Close()

	sub := hub.Subscribe()
	sub.Close()
	sub.Close()

	if hub.Count() != 0 {
		t.Errorf("Count() = %d, want 0", hub.Count())
	}
	hub.Publish(Event{Type: Log})
}
