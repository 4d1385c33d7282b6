package stratumcore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeBlockRPC struct {
	calls atomic.Int32
	// fail returns the error for the given 1-based attempt.
	fail func(attempt int32) error
}

func (f *fakeBlockRPC) SubmitBlock(_ context.Context, _ string) error {
	n := f.calls.Add(1)
	if f.fail != nil {
		return f.fail(n)
	}
	return nil
}

type submitResults struct {
	mu   sync.Mutex
	recs []ShareRecord
	errs []error
}

func (r *submitResults) record(rec ShareRecord, err error) {
	r.mu.Lock()
	r.recs = append(r.recs, rec)
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func newFastSubmitter(rpc BlockSubmitRPC, current func() *Job, res *submitResults) *BlockSubmitter {
	s := NewBlockSubmitter(rpc, current, res.record)
	s.retryInterval = time.Millisecond
	return s
}

func TestBlockSubmitterRetriesUntilAccepted(t *testing.T) {
	rpc := &fakeBlockRPC{fail: func(n int32) error {
		if n < 3 {
			return fmt.Errorf("submitblock: %w", context.DeadlineExceeded)
		}
		return nil
	}}
	res := &submitResults{}
	s := newFastSubmitter(rpc, nil, res)

	s.Share(ShareRecord{BlockHash: "aa", Height: 100}, "")
	s.Share(ShareRecord{BlockHash: "aa", Height: 100}, "00")
	s.Wait()

	if rpc.calls.Load() != 3 {
		t.Fatalf("submit attempts = %d, want 3", rpc.calls.Load())
	}
	if len(res.errs) != 1 || res.errs[0] != nil || res.recs[0].BlockHash != "aa" {
		t.Fatalf("results = %+v %v", res.recs, res.errs)
	}
}

func TestBlockSubmitterDoesNotRetryRejection(t *testing.T) {
	rpc := &fakeBlockRPC{fail: func(int32) error {
		return fmt.Errorf("%w: high-hash", errBlockRejected)
	}}
	res := &submitResults{}
	s := newFastSubmitter(rpc, nil, res)
	s.Share(ShareRecord{BlockHash: "aa", Height: 100}, "00")
	s.Wait()

	if rpc.calls.Load() != 1 {
		t.Fatalf("rejected block retried %d times", rpc.calls.Load())
	}
	if len(res.errs) != 1 || !errors.Is(res.errs[0], errBlockRejected) {
		t.Fatalf("result errors = %v", res.errs)
	}
}

func TestBlockSubmitterAbandonsStaleHeight(t *testing.T) {
	rpc := &fakeBlockRPC{fail: func(int32) error { return errors.New("connection refused") }}
	next := newTestJob(t, templateAt(101, "b101"))
	res := &submitResults{}
	s := newFastSubmitter(rpc, func() *Job { return next }, res)
	s.Share(ShareRecord{BlockHash: "aa", Height: 100}, "00")
	s.Wait()

	if rpc.calls.Load() != 1 || len(res.errs) != 1 || res.errs[0] == nil {
		t.Fatalf("calls=%d errs=%v", rpc.calls.Load(), res.errs)
	}
}

func TestBlockSubmitterRetryWindow(t *testing.T) {
	rpc := &fakeBlockRPC{fail: func(int32) error { return errors.New("connection refused") }}
	res := &submitResults{}
	s := newFastSubmitter(rpc, func() *Job { return nil }, res)
	s.maxRetryWindow = 20 * time.Millisecond
	s.Share(ShareRecord{BlockHash: "aa", Height: 100}, "00")
	s.Wait()

	if rpc.calls.Load() < 2 || len(res.errs) != 1 || res.errs[0] == nil {
		t.Fatalf("calls=%d errs=%v", rpc.calls.Load(), res.errs)
	}
}

func TestBlockSubmitterStopsOnRPCError(t *testing.T) {
	var calls atomic.Int32
	client, _ := newRPCTestServer(t, func(w http.ResponseWriter, call rpcCall) {
		if call.Method != "submitblock" {
			t.Errorf("method = %s", call.Method)
		}
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"result":null,"error":{"code":-22,"message":"Block decode failed"},"id":1}`)
	})
	res := &submitResults{}
	s := newFastSubmitter(client, func() *Job { return nil }, res)
	s.maxRetryWindow = 200 * time.Millisecond
	s.Share(ShareRecord{BlockHash: "aa", Height: 100}, "00")
	s.Wait()

	if calls.Load() != 1 {
		t.Fatalf("submitblock calls = %d, want 1", calls.Load())
	}
	var rpcErr *rpcError
	if len(res.errs) != 1 || !errors.As(res.errs[0], &rpcErr) || rpcErr.Code != -22 {
		t.Fatalf("result errors = %v", res.errs)
	}
}

func TestNodeAnswered(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"reason string", fmt.Errorf("%w: high-hash", errBlockRejected), true},
		{"rpc error", fmt.Errorf("submitblock: %w", &rpcError{Code: -25, Message: "bad-prevblk"}), true},
		{"http status", &httpStatusError{StatusCode: 503, Status: "503 Service Unavailable"}, false},
		{"timeout", fmt.Errorf("submitblock: %w", context.DeadlineExceeded), false},
		{"transport", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nodeAnswered(tt.err); got != tt.want {
				t.Fatalf("nodeAnswered(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
