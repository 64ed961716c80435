package notifier

import (
	"context"
	"sync"
	"testing"
	"time"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *captureSink) Deliver(_ context.Context, evt Event) {
	s.mu.Lock()
	s.events = append(s.events, evt)
	s.mu.Unlock()
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

type blockingSink struct {
	started chan struct{}
	release chan struct{}
	inner   captureSink
}

func (s *blockingSink) Deliver(ctx context.Context, evt Event) {
	s.started <- struct{}{}
	<-s.release
	s.inner.Deliver(ctx, evt)
}

func TestNotifier_CloseDrainsQueue(t *testing.T) {
	sink := &captureSink{}
	n := New(16, sink)

	for i := 0; i < 5; i++ {
		n.Publish("sync_completed", "vima", map[string]int{"i": i})
	}
	n.Close()

	if sink.count() != 5 {
		t.Fatalf("expected 5 delivered events after Close, got %d", sink.count())
	}
	if n.Dropped() != 0 {
		t.Fatalf("nothing should be dropped, got %d", n.Dropped())
	}
}

func TestNotifier_FullQueueDropsInsteadOfBlocking(t *testing.T) {
	sink := &blockingSink{
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
	n := New(1, sink)

	// First event is pulled by the worker and parks inside the sink.
	n.Publish("sync_started", "vima", nil)
	select {
	case <-sink.started:
	case <-time.After(time.Second):
		t.Fatal("worker never picked up the first event")
	}

	// Second fills the queue, third has nowhere to go.
	n.Publish("sync_progress", "vima", nil)

	done := make(chan struct{})
	go func() {
		n.Publish("sync_completed", "vima", nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full queue")
	}
	if n.Dropped() != 1 {
		t.Fatalf("expected 1 dropped event, got %d", n.Dropped())
	}

	close(sink.release)
	n.Close()
	if sink.inner.count() != 2 {
		t.Fatalf("expected the 2 queued events delivered, got %d", sink.inner.count())
	}
}

func TestNotifier_EventCarriesTypeSourceAndPayload(t *testing.T) {
	sink := &captureSink{}
	n := New(4, sink)
	n.Publish("new_transactions", "payshack", map[string]int{"count": 7})
	n.Close()

	if sink.count() != 1 {
		t.Fatalf("expected 1 event, got %d", sink.count())
	}
	evt := sink.events[0]
	if evt.Type != "new_transactions" || evt.Source != "payshack" {
		t.Fatalf("unexpected envelope: %+v", evt)
	}
	if string(evt.Payload) != `{"count":7}` {
		t.Fatalf("unexpected payload: %s", evt.Payload)
	}
	if evt.OccurredAt.IsZero() {
		t.Fatal("occurred_at must be stamped")
	}
}

func TestNotifier_CloseIsIdempotent(t *testing.T) {
	n := New(4, &captureSink{})
	n.Close()
	n.Close()
}

func TestNotifier_UnmarshalablePayloadIsDiscarded(t *testing.T) {
	sink := &captureSink{}
	n := New(4, sink)
	n.Publish("sync_completed", "vima", func() {})
	n.Close()

	if sink.count() != 0 {
		t.Fatalf("unmarshalable payload must not reach sinks, got %d", sink.count())
	}
}
