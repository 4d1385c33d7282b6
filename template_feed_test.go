package stratumcore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeTemplateSource struct {
	mu    sync.Mutex
	tpl   GetBlockTemplateResult
	err   error
	best  string
	calls int
}

func (s *fakeTemplateSource) set(tpl GetBlockTemplateResult) {
	s.mu.Lock()
	s.tpl = tpl
	s.mu.Unlock()
}

func (s *fakeTemplateSource) FetchTemplate(context.Context) (GetBlockTemplateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.tpl, s.err
}

func (s *fakeTemplateSource) GetBestBlockHash(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.best == "" {
		return s.tpl.Previous, nil
	}
	return s.best, nil
}

func newTestFeed(t *testing.T, src *fakeTemplateSource, opts TemplateFeedOptions) (*TemplateFeed, *JobRegistry, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	reg := newTestRegistry(t, sink)
	return NewTemplateFeed(src, reg, opts), reg, sink
}

func TestTemplateFeedNewBlockAndTxUpdate(t *testing.T) {
	txs := testTransactions(t, 2)
	src := &fakeTemplateSource{tpl: testTemplate(t, txs[:1])}
	feed, reg, sink := newTestFeed(t, src, TemplateFeedOptions{})
	ctx := context.Background()

	if err := feed.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	first := reg.CurrentJob()
	if first == nil || len(sink.newBlocks) != 1 {
		t.Fatalf("first refresh did not install a block")
	}

	// Same template again: nothing to do.
	if err := feed.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if reg.CurrentJob() != first || len(sink.updated) != 0 {
		t.Fatalf("unchanged template produced a new job")
	}

	src.set(testTemplate(t, txs))
	if err := feed.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(sink.updated) != 1 || len(reg.ValidJobIDs()) != 2 {
		t.Fatalf("transaction change: %d updates, jobs %v", len(sink.updated), reg.ValidJobIDs())
	}
	if _, ok := reg.Job(first.JobID); !ok {
		t.Fatalf("update dropped the previous job")
	}

	next := templateAt(102, "c102")
	src.set(next)
	if err := feed.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(sink.newBlocks) != 2 || len(reg.ValidJobIDs()) != 1 {
		t.Fatalf("new block: %d blocks, jobs %v", len(sink.newBlocks), reg.ValidJobIDs())
	}
}

func TestTemplateFeedCurtimeRefresh(t *testing.T) {
	tpl := testTemplate(t, nil)
	src := &fakeTemplateSource{tpl: tpl}
	var now time.Time
	feed, _, sink := newTestFeed(t, src, TemplateFeedOptions{
		JobRefresh: 30 * time.Second,
		Now:        func() time.Time { return now },
	})
	ctx := context.Background()

	now = time.Now()
	if err := feed.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	tpl.CurTime += 10
	src.set(tpl)
	if err := feed.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(sink.updated) != 0 {
		t.Fatalf("young job refreshed on curtime alone")
	}

	now = now.Add(time.Minute)
	if err := feed.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(sink.updated) != 1 {
		t.Fatalf("aged job not refreshed: %d updates", len(sink.updated))
	}
}

func TestTemplateFeedCurtimeRefreshDisabled(t *testing.T) {
	tpl := testTemplate(t, nil)
	src := &fakeTemplateSource{tpl: tpl}
	feed, _, sink := newTestFeed(t, src, TemplateFeedOptions{
		Now: func() time.Time { return time.Now().Add(time.Hour) },
	})
	if err := feed.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	tpl.CurTime += 100
	src.set(tpl)
	if err := feed.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(sink.updated) != 0 {
		t.Fatalf("curtime refresh ran with job_refresh disabled")
	}
}

func TestTemplateFeedStaleTip(t *testing.T) {
	src := &fakeTemplateSource{tpl: testTemplate(t, nil), best: "00ff"}
	feed, reg, _ := newTestFeed(t, src, TemplateFeedOptions{CheckBestBlock: true})
	if err := feed.Refresh(context.Background()); !errors.Is(err, errStaleTemplate) {
		t.Fatalf("Refresh error = %v", err)
	}
	if reg.CurrentJob() != nil {
		t.Fatalf("stale template installed")
	}
}

func TestTemplateFeedFetchError(t *testing.T) {
	boom := errors.New("node down")
	src := &fakeTemplateSource{err: boom}
	feed, _, _ := newTestFeed(t, src, TemplateFeedOptions{})
	if err := feed.Refresh(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Refresh error = %v", err)
	}
	if !errors.Is(feed.LastError(), boom) {
		t.Fatalf("LastError = %v", feed.LastError())
	}
}

func TestTemplateFeedStartPolls(t *testing.T) {
	src := &fakeTemplateSource{tpl: testTemplate(t, nil)}
	feed, reg, _ := newTestFeed(t, src, TemplateFeedOptions{PollInterval: 5 * time.Millisecond})
	feed.Start(context.Background())
	defer feed.Stop()

	if reg.CurrentJob() == nil {
		t.Fatalf("Start did not perform an initial refresh")
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		src.mu.Lock()
		calls := src.calls
		src.mu.Unlock()
		if calls >= 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("poll loop made %d calls", calls)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTemplateFeedZMQNotification(t *testing.T) {
	src := &fakeTemplateSource{tpl: testTemplate(t, nil)}
	feed, reg, _ := newTestFeed(t, src, TemplateFeedOptions{ZMQHashBlockAddr: "tcp://127.0.0.1:28332"})

	if err := feed.handleZMQNotification(context.Background(), "rawtx", []byte{1}); err != nil {
		t.Fatalf("rawtx notification: %v", err)
	}
	if reg.CurrentJob() != nil {
		t.Fatalf("non-block topic triggered a refresh")
	}
	if !feed.ZMQHealthy() {
		t.Fatalf("notification did not mark the watcher healthy")
	}
	if err := feed.handleZMQNotification(context.Background(), "hashblock", make([]byte, 32)); err != nil {
		t.Fatalf("hashblock notification: %v", err)
	}
	if reg.CurrentJob() == nil {
		t.Fatalf("hashblock did not refresh")
	}

	feed.markZMQUnhealthy("receive", errors.New("eof"))
	feed.markZMQHealthy()
	if feed.zmqDisconnects.Load() != 1 || feed.zmqReconnects.Load() != 2 {
		t.Fatalf("disconnects=%d reconnects=%d", feed.zmqDisconnects.Load(), feed.zmqReconnects.Load())
	}
}

func TestNextZMQBackoff(t *testing.T) {
	if got := nextZMQBackoff(zmqRecreateBackoffMin); got != 2*zmqRecreateBackoffMin {
		t.Fatalf("backoff = %v", got)
	}
	if got := nextZMQBackoff(zmqRecreateBackoffMax); got != zmqRecreateBackoffMax {
		t.Fatalf("backoff not capped: %v", got)
	}
}
