package alert

import (
	"testing"
	"time"
)

func sample(id string) Alert {
	return Alert{
		ID: id, EventID: "evt-1", EventType: "login.success",
		RiskScore: 80, Flags: []string{"new_device"},
		CreatedAt: time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
	}
}

func TestBroadcasterFansOut(t *testing.T) {
	b := NewBroadcaster()
	ch1, cancel1 := b.Subscribe()
	ch2, cancel2 := b.Subscribe()
	defer cancel1()
	defer cancel2()

	b.Publish(sample("a1"))
	for i, ch := range []<-chan Alert{ch1, ch2} {
		select {
		case a := <-ch:
			if a.ID != "a1" {
				t.Fatalf("subscriber %d: wrong alert %q", i, a.ID)
			}
		default:
			t.Fatalf("subscriber %d: no alert delivered", i)
		}
	}
}

func TestBroadcasterCancelStopsDelivery(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe()
	cancel()
	if b.Subscribers() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", b.Subscribers())
	}
	b.Publish(sample("a1"))
	if _, open := <-ch; open {
		t.Fatal("cancelled channel must be closed and empty")
	}
	// Double cancel is safe.
	cancel()
}

func TestBroadcasterNeverBlocks(t *testing.T) {
	b := NewBroadcaster()
	_, cancel := b.Subscribe()
	defer cancel()

	// Overrun the subscriber buffer; Publish must keep returning.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(sample("flood"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}
