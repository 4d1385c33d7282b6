package stratumcore

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type panickingJobSource struct{}

func (panickingJobSource) Job(string) (*Job, bool) { return nil, false }
func (panickingJobSource) Extranonce2Size() int    { panic("job source exploded") }

func TestSubmissionPoolConcurrentSubmits(t *testing.T) {
	v, job := newTestValidator(t, easyTemplate(t), nil, ValidatorOptions{})
	pool := NewSubmissionPool(v, 4)
	defer pool.Close()

	const n = 64
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := pool.Submit(context.Background(), testRequest(job, uint32ToBEHex(uint32(i))))
			if err != nil {
				errs <- err
				return
			}
			if !res.Accepted {
				errs <- res.Err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("submit failed: %v", err)
	}
	if got := job.Submissions(); got != n {
		t.Fatalf("registered %d submissions, want %d", got, n)
	}
}

func TestSubmissionPoolClosed(t *testing.T) {
	v, job := newTestValidator(t, easyTemplate(t), nil, ValidatorOptions{})
	pool := NewSubmissionPool(v, 1)
	pool.Close()
	pool.Close()
	if _, err := pool.Submit(context.Background(), testRequest(job, "00000000")); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("submit after close: %v", err)
	}
}

func TestSubmissionPoolRecoversPanic(t *testing.T) {
	pool := NewSubmissionPool(NewShareValidator(panickingJobSource{}, ValidatorOptions{}), 1)
	defer pool.Close()

	res, err := pool.Submit(context.Background(), SubmitRequest{JobID: "1"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Accepted || res.Err == nil || res.Err.Reason != RejectInternal {
		t.Fatalf("panic not converted to internal reject: %+v", res)
	}

	// The worker survives the panic.
	if res, _ := pool.Submit(context.Background(), SubmitRequest{JobID: "2"}); res.Err == nil {
		t.Fatalf("second submit after panic: %+v", res)
	}
}

func TestSubmissionPoolContextCancelled(t *testing.T) {
	v, job := newTestValidator(t, easyTemplate(t), nil, ValidatorOptions{})
	pool := &SubmissionPool{validator: v, tasks: make(chan submissionTask)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := pool.Submit(ctx, testRequest(job, "00000000")); !errors.Is(err, context.Canceled) {
		t.Fatalf("submit with cancelled context: %v", err)
	}
}
