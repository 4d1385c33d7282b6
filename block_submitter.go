package stratumcore

import (
	"context"
	"errors"
	"sync"
	"time"
)

// BlockSubmitRPC is the node call used to publish a found block.
type BlockSubmitRPC interface {
	SubmitBlock(ctx context.Context, blockHex string) error
}

// BlockSubmitter is an EventSink that submits block candidates to the node.
// Each candidate is retried on a short fixed interval until the node answers,
// a newer block is seen, or the retry window closes.
type BlockSubmitter struct {
	rpc BlockSubmitRPC
	// current reports the height being mined so a submission for an
	// outdated block can be abandoned.
	current func() *Job
	// onResult, when set, receives the outcome of every submission.
	onResult func(rec ShareRecord, err error)

	retryInterval  time.Duration
	maxRetryWindow time.Duration

	wg sync.WaitGroup
}

func NewBlockSubmitter(rpc BlockSubmitRPC, current func() *Job, onResult func(ShareRecord, error)) *BlockSubmitter {
	return &BlockSubmitter{
		rpc:            rpc,
		current:        current,
		onResult:       onResult,
		retryInterval:  100 * time.Millisecond,
		maxRetryWindow: 10 * time.Minute,
	}
}

func (s *BlockSubmitter) NewBlock(*Job)         {}
func (s *BlockSubmitter) UpdatedJob(*Job, bool) {}

func (s *BlockSubmitter) Share(rec ShareRecord, blockHex string) {
	if blockHex == "" {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// Not tied to any caller context so shutdown does not cancel an
		// in-flight submission.
		err := s.submitWithRetry(context.Background(), rec, blockHex)
		if s.onResult != nil {
			s.onResult(rec, err)
		}
	}()
}

// Wait blocks until every started submission has finished.
func (s *BlockSubmitter) Wait() {
	s.wg.Wait()
}

func (s *BlockSubmitter) submitWithRetry(ctx context.Context, rec ShareRecord, blockHex string) error {
	start := time.Now()
	attempt := 0
	for {
		attempt++
		err := s.rpc.SubmitBlock(ctx, blockHex)
		if err == nil {
			logger.Info("submitblock accepted", "hash", rec.BlockHash, "height", rec.Height, "worker", rec.Worker, "attempts", attempt)
			return nil
		}
		if nodeAnswered(err) {
			logger.Error("submitblock rejected by node", "hash", rec.BlockHash, "height", rec.Height, "error", err)
			return err
		}
		if attempt == 1 {
			logger.Error("submitblock error; retrying", "hash", rec.BlockHash, "height", rec.Height, "error", err)
		}

		if s.current != nil {
			if cur := s.current(); cur != nil && cur.Height() > rec.Height {
				logger.Warn("submitblock giving up after new block seen", "original_height", rec.Height, "current_height", cur.Height(), "attempts", attempt, "error", err)
				return err
			}
		}
		if time.Since(start) >= s.maxRetryWindow {
			logger.Error("submitblock giving up after retry window", "attempts", attempt, "duration", time.Since(start), "error", err)
			return err
		}
		if err := sleepContext(ctx, s.retryInterval); err != nil {
			return err
		}
	}
}

// nodeAnswered reports whether err carries a verdict from the node itself,
// either a submitblock reason string or a JSON-RPC error object.
func nodeAnswered(err error) bool {
	if errors.Is(err, errBlockRejected) {
		return true
	}
	var rpcErr *rpcError
	return errors.As(err, &rpcErr)
}
