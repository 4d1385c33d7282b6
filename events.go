package stratumcore

import (
	"context"
	"sync"

	"github.com/remeh/sizedwaitgroup"
)

// EventSink receives job lifecycle and share notifications. Registry events
// are delivered while the registry's writer lock is held, so sinks must not
// call back into JobRegistry writers.
type EventSink interface {
	// NewBlock reports a job for a block not seen before; all earlier jobs
	// are gone.
	NewBlock(job *Job)
	// UpdatedJob reports a refreshed job on the current block. clean is
	// false: in-flight work stays valid.
	UpdatedJob(job *Job, clean bool)
	// Share reports one submission outcome. blockHex is set only for block
	// candidates.
	Share(rec ShareRecord, blockHex string)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) NewBlock(*Job)             {}
func (NopSink) UpdatedJob(*Job, bool)     {}
func (NopSink) Share(ShareRecord, string) {}

// MultiSink forwards every event to each sink in order.
type MultiSink []EventSink

func (m MultiSink) NewBlock(job *Job) {
	for _, s := range m {
		s.NewBlock(job)
	}
}

func (m MultiSink) UpdatedJob(job *Job, clean bool) {
	for _, s := range m {
		s.UpdatedJob(job, clean)
	}
}

func (m MultiSink) Share(rec ShareRecord, blockHex string) {
	for _, s := range m {
		s.Share(rec, blockHex)
	}
}

type EventKind int

const (
	EventNewBlock EventKind = iota
	EventUpdatedJob
	EventShare
)

func (k EventKind) String() string {
	switch k {
	case EventNewBlock:
		return "new_block"
	case EventUpdatedJob:
		return "updated_job"
	case EventShare:
		return "share"
	default:
		return "unknown"
	}
}

// Event is the channel form of an EventSink call.
type Event struct {
	Kind     EventKind
	Job      *Job
	Clean    bool
	Share    ShareRecord
	BlockHex string
}

const (
	eventSubscriberBuffer = 64
	eventQueueSize        = 1024
)

// EventBus is an EventSink that fans events out to channel subscribers.
// Events are queued and dispatched by a bounded set of workers; with a
// single worker subscribers see events in emission order. A subscriber
// whose channel is full misses the event.
type EventBus struct {
	queue   chan Event
	workers int

	subsMu sync.Mutex
	subs   map[chan Event]struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	wg        sizedwaitgroup.SizedWaitGroup
}

// NewEventBus creates a bus with the given number of dispatch workers
// (minimum one).
func NewEventBus(workers int) *EventBus {
	if workers <= 0 {
		workers = 1
	}
	return &EventBus{
		queue:   make(chan Event, eventQueueSize),
		workers: workers,
		subs:    make(map[chan Event]struct{}),
	}
}

// Start launches the dispatch workers. They exit when ctx is done or Stop
// is called.
func (b *EventBus) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, b.cancel = context.WithCancel(ctx)
		b.wg = sizedwaitgroup.New(b.workers)
		for i := 0; i < b.workers; i++ {
			b.wg.Add()
			go b.dispatchWorker(ctx, i)
		}
		logger.Info("started event dispatch workers", "count", b.workers)
	})
}

// Stop halts the workers after they finish the event in hand.
func (b *EventBus) Stop() {
	b.stopOnce.Do(func() {
		if b.cancel == nil {
			return
		}
		b.cancel()
		b.wg.Wait()
	})
}

func (b *EventBus) Subscribe() chan Event {
	ch := make(chan Event, eventSubscriberBuffer)
	b.subsMu.Lock()
	b.subs[ch] = struct{}{}
	b.subsMu.Unlock()
	return ch
}

func (b *EventBus) Unsubscribe(ch chan Event) {
	b.subsMu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.subsMu.Unlock()
}

func (b *EventBus) NewBlock(job *Job) {
	b.publish(Event{Kind: EventNewBlock, Job: job, Clean: true})
}

func (b *EventBus) UpdatedJob(job *Job, clean bool) {
	b.publish(Event{Kind: EventUpdatedJob, Job: job, Clean: clean})
}

func (b *EventBus) Share(rec ShareRecord, blockHex string) {
	b.publish(Event{Kind: EventShare, Share: rec, BlockHex: blockHex})
}

func (b *EventBus) publish(ev Event) {
	select {
	case b.queue <- ev:
	default:
		logger.Warn("event queue full, falling back to sync dispatch", "kind", ev.Kind.String())
		b.dispatch(ev, -1)
	}
}

func (b *EventBus) dispatchWorker(ctx context.Context, workerID int) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.queue:
			b.dispatch(ev, workerID)
		}
	}
}

func (b *EventBus) dispatch(ev Event, workerID int) {
	b.subsMu.Lock()
	blocked := 0
	subscribers := len(b.subs)
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			blocked++
		}
	}
	b.subsMu.Unlock()

	if blocked > 0 {
		logger.Warn("event broadcast blocked; dropping event", "worker", workerID, "kind", ev.Kind.String(), "subscribers", subscribers, "blocked", blocked)
	}
}
