package stratumcore

import (
	"context"
	"testing"
	"time"
)

func receiveEvent(t *testing.T, ch chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatalf("subscriber channel closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return Event{}
}

func TestEventBusOrderedDelivery(t *testing.T) {
	bus := NewEventBus(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Start(ctx)
	defer bus.Stop()

	ch := bus.Subscribe()
	job := &Job{JobID: "1"}
	bus.NewBlock(job)
	bus.UpdatedJob(job, false)
	bus.Share(ShareRecord{Worker: "w1", Accepted: true}, "00ff")

	ev := receiveEvent(t, ch)
	if ev.Kind != EventNewBlock || ev.Job != job || !ev.Clean {
		t.Fatalf("first event = %+v", ev)
	}
	ev = receiveEvent(t, ch)
	if ev.Kind != EventUpdatedJob || ev.Clean {
		t.Fatalf("second event = %+v", ev)
	}
	ev = receiveEvent(t, ch)
	if ev.Kind != EventShare || ev.Share.Worker != "w1" || ev.BlockHex != "00ff" {
		t.Fatalf("third event = %+v", ev)
	}
}

func TestEventBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewEventBus(1)
	ch := bus.Subscribe()
	bus.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatalf("channel still open after Unsubscribe")
	}
	// A second call must not double-close.
	bus.Unsubscribe(ch)
}

func TestEventBusSyncFallbackWithoutWorkers(t *testing.T) {
	bus := NewEventBus(1)
	ch := bus.Subscribe()
	// Fill the queue so the next publish dispatches inline.
	for i := 0; i < eventQueueSize; i++ {
		bus.Share(ShareRecord{}, "")
	}
	bus.NewBlock(&Job{JobID: "a"})
	ev := receiveEvent(t, ch)
	if ev.Kind != EventNewBlock || ev.Job.JobID != "a" {
		t.Fatalf("inline event = %+v", ev)
	}
}

func TestMultiSinkForwardsInOrder(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	sinks := MultiSink{a, NopSink{}, b}
	sinks.NewBlock(&Job{JobID: "1"})
	sinks.Share(ShareRecord{Worker: "x"}, "")
	for _, s := range []*recordingSink{a, b} {
		if len(s.newBlocks) != 1 || s.shareCount() != 1 {
			t.Fatalf("sink missed events: %d blocks, %d shares", len(s.newBlocks), s.shareCount())
		}
	}
}

func TestEventKindString(t *testing.T) {
	if EventNewBlock.String() != "new_block" || EventKind(99).String() != "unknown" {
		t.Fatalf("unexpected kind names")
	}
}
