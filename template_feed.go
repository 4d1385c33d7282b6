package stratumcore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const jobRetryDelay = 100 * time.Millisecond

// errStaleTemplate means the node's tip moved past the template's previous
// block between the two calls.
var errStaleTemplate = errors.New("stale template")

// bestBlockSource is implemented by sources that can report the chain tip.
type bestBlockSource interface {
	GetBestBlockHash(ctx context.Context) (string, error)
}

type TemplateFeedOptions struct {
	PollInterval time.Duration
	// JobRefresh is the minimum job age before a template that differs only
	// in curtime is installed. Zero disables curtime refreshes.
	JobRefresh       time.Duration
	ZMQHashBlockAddr string
	CheckBestBlock   bool
	Now              func() time.Time
}

// TemplateFeed pulls templates from a TemplateSource and drives the
// registry: on start, on every poll tick and on every ZMQ block
// notification.
type TemplateFeed struct {
	src      TemplateSource
	registry *JobRegistry
	opts     TemplateFeedOptions

	refreshMu sync.Mutex

	zmqHealthy     atomic.Bool
	zmqDisconnects atomic.Uint64
	zmqReconnects  atomic.Uint64

	statusMu    sync.RWMutex
	lastErr     error
	lastSuccess time.Time

	startOnce sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewTemplateFeed(src TemplateSource, registry *JobRegistry, opts TemplateFeedOptions) *TemplateFeed {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &TemplateFeed{src: src, registry: registry, opts: opts}
}

// Start performs a first refresh and launches the poll loop and, when
// configured, the ZMQ watcher.
func (f *TemplateFeed) Start(ctx context.Context) {
	f.startOnce.Do(func() {
		ctx, f.cancel = context.WithCancel(ctx)
		if err := f.Refresh(ctx); err != nil {
			logger.Error("initial template refresh", "error", err)
		}
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			f.pollLoop(ctx)
		}()
		if f.opts.ZMQHashBlockAddr != "" {
			f.wg.Add(1)
			go func() {
				defer f.wg.Done()
				f.zmqBlockLoop(ctx)
			}()
		}
	})
}

func (f *TemplateFeed) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
	f.wg.Wait()
}

func (f *TemplateFeed) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(f.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.Refresh(ctx); err != nil {
				if errors.Is(err, errStaleTemplate) {
					logger.Debug("skipping stale template", "error", err)
					continue
				}
				if ctx.Err() == nil {
					logger.Error("template refresh error", "error", err)
				}
			}
		}
	}
}

// Refresh fetches one template and installs it as a new block or as an
// update of the current job.
func (f *TemplateFeed) Refresh(ctx context.Context) error {
	f.refreshMu.Lock()
	defer f.refreshMu.Unlock()

	tpl, err := f.src.FetchTemplate(ctx)
	if err != nil {
		f.recordError(err)
		return err
	}

	if f.opts.CheckBestBlock {
		if bb, ok := f.src.(bestBlockSource); ok {
			best, err := bb.GetBestBlockHash(ctx)
			if err != nil {
				f.recordError(err)
				return fmt.Errorf("getbestblockhash: %w", err)
			}
			if best != tpl.Previous {
				return fmt.Errorf("%w: template builds on %s, tip is %s", errStaleTemplate, tpl.Previous, best)
			}
		}
	}

	isNew, err := f.registry.ProcessTemplate(tpl)
	if err != nil {
		f.recordError(err)
		return err
	}
	f.recordError(nil)
	if isNew {
		return nil
	}

	cur := f.registry.CurrentJob()
	if cur == nil || cur.Template.Previous != tpl.Previous {
		return nil
	}
	if !f.needsUpdate(cur, tpl) {
		return nil
	}
	if _, err := f.registry.UpdateCurrentJob(tpl); err != nil {
		f.recordError(err)
		return err
	}
	return nil
}

func (f *TemplateFeed) needsUpdate(cur *Job, tpl GetBlockTemplateResult) bool {
	if !sameTransactions(cur.Template, tpl) {
		return true
	}
	if f.opts.JobRefresh <= 0 || tpl.CurTime <= cur.Template.CurTime {
		return false
	}
	return f.opts.Now().Sub(cur.CreatedAt) >= f.opts.JobRefresh
}

func (f *TemplateFeed) recordError(err error) {
	f.statusMu.Lock()
	f.lastErr = err
	if err == nil {
		f.lastSuccess = f.opts.Now()
	}
	f.statusMu.Unlock()
}

// LastError is the error of the most recent refresh, or nil.
func (f *TemplateFeed) LastError() error {
	f.statusMu.RLock()
	defer f.statusMu.RUnlock()
	return f.lastErr
}

// FeedStatus is a point-in-time view of the feed's refresh history.
type FeedStatus struct {
	LastError   error
	LastSuccess time.Time
	ZMQEnabled  bool
	ZMQHealthy  bool
}

func (f *TemplateFeed) Status() FeedStatus {
	f.statusMu.RLock()
	defer f.statusMu.RUnlock()
	return FeedStatus{
		LastError:   f.lastErr,
		LastSuccess: f.lastSuccess,
		ZMQEnabled:  f.opts.ZMQHashBlockAddr != "",
		ZMQHealthy:  f.zmqHealthy.Load(),
	}
}

func (f *TemplateFeed) ZMQHealthy() bool {
	return f.zmqHealthy.Load()
}
