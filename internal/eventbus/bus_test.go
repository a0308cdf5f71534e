package eventbus

import (
	"testing"
	"time"
)

func TestPublishFanout(t *testing.T) {
	t.Parallel()
	b := New()

	ch1, unsub1 := b.Subscribe(4)
	ch2, unsub2 := b.Subscribe(4)
	defer unsub1()
	defer unsub2()

	b.Publish(Event{Type: "reminder.added", Data: "id-1"})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case e := <-ch:
			if e.Type != "reminder.added" || e.Data != "id-1" {
				t.Fatalf("subscriber %d got %+v", i, e)
			}
			if e.Time.IsZero() {
				t.Fatalf("Publish must stamp a time")
			}
		default:
			t.Fatalf("subscriber %d received nothing", i)
		}
	}
}

func TestSlowSubscriberDropsNotBlocks(t *testing.T) {
	t.Parallel()
	b := New()

	ch, unsub := b.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Publish(Event{Type: "first"})
		b.Publish(Event{Type: "second"}) // buffer full, must not block
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	if got := b.Dropped(); got != 1 {
		t.Fatalf("Dropped = %d, want 1", got)
	}
	if e := <-ch; e.Type != "first" {
		t.Fatalf("kept event = %q, want first", e.Type)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()
	b := New()

	ch, unsub := b.Subscribe(1)
	unsub()
	unsub() // second call is a no-op

	// The channel is closed and removed; publishing must not panic.
	b.Publish(Event{Type: "after"})

	if _, ok := <-ch; ok {
		t.Fatal("channel still delivering after unsubscribe")
	}
}

func TestKeepsCallerTimestamp(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	at := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	b.Publish(Event{Type: "stamped", Time: at})
	if e := <-ch; !e.Time.Equal(at) {
		t.Fatalf("Time = %v, want caller timestamp kept", e.Time)
	}
}
