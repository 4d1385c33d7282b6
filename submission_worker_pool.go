package stratumcore

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/remeh/sizedwaitgroup"
)

const (
	// submissionWorkerQueueMultiplier determines how much backlog we allow
	// per worker goroutine.
	submissionWorkerQueueMultiplier = 32
	// submissionWorkerQueueMinDepth ensures the queue can hold at least this
	// many tasks regardless of CPU count.
	submissionWorkerQueueMinDepth = 128
)

var ErrPoolClosed = errors.New("submission pool closed")

type submissionTask struct {
	req  SubmitRequest
	done chan ShareResult
}

// SubmissionPool runs share validation on a fixed set of workers so that
// hashing load stays bounded regardless of how many connections submit.
type SubmissionPool struct {
	validator *ShareValidator
	tasks     chan submissionTask
	wg        sizedwaitgroup.SizedWaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewSubmissionPool starts workerCount workers; zero or less uses one per
// CPU.
func NewSubmissionPool(v *ShareValidator, workerCount int) *SubmissionPool {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	if workerCount <= 0 {
		workerCount = 1
	}
	queueDepth := max(workerCount*submissionWorkerQueueMultiplier, submissionWorkerQueueMinDepth)
	p := &SubmissionPool{
		validator: v,
		tasks:     make(chan submissionTask, queueDepth),
		wg:        sizedwaitgroup.New(workerCount),
	}
	for i := 0; i < workerCount; i++ {
		p.wg.Add()
		go p.worker(i)
	}
	return p
}

// Submit queues req and waits for its verdict. ctx only bounds the wait for
// a queue slot; once queued the share is always judged to completion.
func (p *SubmissionPool) Submit(ctx context.Context, req SubmitRequest) (ShareResult, error) {
	task := submissionTask{req: req, done: make(chan ShareResult, 1)}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ShareResult{}, ErrPoolClosed
	}
	select {
	case p.tasks <- task:
		p.mu.RUnlock()
	case <-ctx.Done():
		p.mu.RUnlock()
		return ShareResult{}, ctx.Err()
	}
	return <-task.done, nil
}

// Close stops accepting shares and waits for queued ones to finish.
func (p *SubmissionPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *SubmissionPool) worker(id int) {
	defer p.wg.Done()
	for task := range p.tasks {
		task.done <- p.run(id, task.req)
	}
}

func (p *SubmissionPool) run(id int, req SubmitRequest) (res ShareResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("submission worker panic", "worker", id, "job_id", req.JobID, "error", r)
			res = ShareResult{Err: newShareError(RejectInternal, fmt.Sprintf("panic: %v", r))}
		}
	}()
	return p.validator.Submit(req)
}
