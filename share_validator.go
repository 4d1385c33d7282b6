package stratumcore

import (
	"encoding/hex"
	"fmt"
	"math"
	"time"
)

type ValidatorOptions struct {
	// Algorithm defaults to sha256d.
	Algorithm Algorithm
	Events    EventSink
	// Now is the clock used for the ntime window; defaults to time.Now.
	Now func() time.Time
	// EmitInvalidBlockHashes adds the header hash of ordinary shares to
	// their share records.
	EmitInvalidBlockHashes bool
}

// ShareValidator adjudicates submitted shares against the jobs in a
// JobSource.
type ShareValidator struct {
	jobs                   JobSource
	algo                   Algorithm
	events                 EventSink
	now                    func() time.Time
	emitInvalidBlockHashes bool
}

func NewShareValidator(jobs JobSource, opts ValidatorOptions) *ShareValidator {
	if opts.Algorithm.HeaderHash == nil {
		opts.Algorithm = DefaultAlgorithm()
	}
	if opts.Algorithm.Multiplier <= 0 {
		opts.Algorithm.Multiplier = 1
	}
	if opts.Events == nil {
		opts.Events = NopSink{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &ShareValidator{
		jobs:                   jobs,
		algo:                   opts.Algorithm,
		events:                 opts.Events,
		now:                    opts.Now,
		emitInvalidBlockHashes: opts.EmitInvalidBlockHashes,
	}
}

// Submit runs one share through framing checks, duplicate detection and
// proof-of-work classification. A share notification is raised for every
// outcome.
func (v *ShareValidator) Submit(req SubmitRequest) ShareResult {
	en2Size := v.jobs.Extranonce2Size()
	if len(req.Extranonce2) != 2*en2Size || !isHex(req.Extranonce2) {
		return v.reject(req, nil, newShareError(RejectInvalidExtranonce2Size, ""))
	}

	job, ok := v.jobs.Job(req.JobID)
	if !ok || job.JobID != req.JobID {
		return v.reject(req, nil, newShareError(RejectJobNotFound, ""))
	}

	if len(req.NTime) != 8 {
		return v.reject(req, job, newShareError(RejectInvalidNTimeSize, ""))
	}
	ntime, err := parseUint32BEHex(req.NTime)
	if err != nil {
		return v.reject(req, job, newShareError(RejectInvalidNTimeSize, ""))
	}
	submitTime := v.now().Unix()
	if int64(ntime) < job.CurTime() || int64(ntime) > submitTime+int64(maxNTimeFutureDrift/time.Second) {
		return v.reject(req, job, newShareError(RejectNTimeOutOfRange, ""))
	}

	if len(req.Nonce) != 8 || !isHex(req.Nonce) {
		return v.reject(req, job, newShareError(RejectInvalidNonceSize, ""))
	}

	var versionBits uint32
	if req.VersionBits != "" {
		versionBits, err = parseUint32BEHex(req.VersionBits)
		if err != nil {
			return v.reject(req, job, newShareError(RejectInvalidVersionBits, ""))
		}
		if versionBits&^job.VersionMask != 0 {
			return v.reject(req, job, newShareError(RejectInvalidVersionBits, fmt.Sprintf("%08x outside mask %08x", versionBits, job.VersionMask)))
		}
	}

	if !validPoolDifficulty(req.Difficulty) || (req.PreviousDifficulty != 0 && !validPoolDifficulty(req.PreviousDifficulty)) {
		return v.reject(req, job, newShareError(RejectInternal, fmt.Sprintf("pool difficulty %v (previous %v)", req.Difficulty, req.PreviousDifficulty)))
	}
	en1, err := hex.DecodeString(req.Extranonce1)
	if err != nil || len(en1)+en2Size != job.coinbase.placeholderLen {
		return v.reject(req, job, newShareError(RejectInternal, fmt.Sprintf("extranonce1 %q does not fit the coinbase placeholder", req.Extranonce1)))
	}
	en2, err := hex.DecodeString(req.Extranonce2)
	if err != nil {
		return v.reject(req, job, newShareError(RejectInvalidExtranonce2Size, ""))
	}

	// "" and "00000000" leave the version untouched, so they share a key.
	if !job.RegisterSubmit(req.Extranonce1, req.Extranonce2, req.NTime, req.Nonce, uint32ToBEHex(versionBits)) {
		return v.reject(req, job, newShareError(RejectDuplicateShare, ""))
	}

	coinbase, err := job.SerializeCoinbase(en1, en2)
	if err != nil {
		return v.reject(req, job, newShareError(RejectInternal, err.Error()))
	}
	coinbaseHash := v.algo.CoinbaseHash(coinbase)
	merkleRoot := hex.EncodeToString(reverseBytes(job.merkle.WithFirst(coinbaseHash)))

	header, finalizer, err := job.BuildHeader(coinbase, merkleRoot, req.NTime, req.Nonce, versionBits)
	if err != nil {
		return v.reject(req, job, newShareError(RejectInternal, err.Error()))
	}
	headerHash, err := v.algo.HeaderHash(header, ntime)
	if err != nil {
		return v.reject(req, job, newShareError(RejectInternal, fmt.Sprintf("hash header: %v", err)))
	}
	headerInt := hashToBig(headerHash)

	shareDiff := shareDifficulty(headerInt, v.algo.Multiplier)
	if math.IsNaN(shareDiff) || shareDiff < 0 {
		return v.reject(req, job, newShareError(RejectInternal, fmt.Sprintf("share difficulty %v", shareDiff)))
	}

	rec := v.baseRecord(req, job)
	rec.ShareDiff = shareDiff
	result := ShareResult{Accepted: true, ShareDiff: shareDiff, Difficulty: req.Difficulty}

	var blockHex string
	if job.target.Cmp(headerInt) >= 0 {
		block, err := finalizer.Finalize()
		if err != nil {
			return v.reject(req, job, newShareError(RejectInternal, fmt.Sprintf("finalize block: %v", err)))
		}
		blockHex = hex.EncodeToString(block)
		result.BlockFound = true
		result.BlockHash = v.algo.BlockHash(header)
		result.BlockHex = blockHex
		rec.BlockHash = result.BlockHash
		logger.Info("block candidate found", "height", job.Height(), "job_id", job.JobID, "hash", result.BlockHash, "worker", req.Worker, "share_diff", shareDiff, "network_diff", job.Difficulty)
	} else {
		if v.emitInvalidBlockHashes {
			rec.BlockHashInvalid = sha256dBlockHash(header)
		}
		credited, ok := creditShare(shareDiff, req.Difficulty, req.PreviousDifficulty)
		if !ok {
			return v.reject(req, job, newShareError(RejectLowDifficulty, fmt.Sprintf("%v below pool difficulty %v", shareDiff, req.Difficulty)), shareDiff)
		}
		result.Difficulty = credited
	}

	rec.Difficulty = result.Difficulty
	rec.Accepted = true
	v.events.Share(rec, blockHex)
	return result
}

// creditShare applies the pool difficulty with the low-difficulty tolerance.
// Right after a retarget a share that still meets the previous difficulty is
// credited at that difficulty.
func creditShare(shareDiff, poolDiff, previousDiff float64) (float64, bool) {
	if shareDiff/poolDiff >= lowDifficultyTolerance {
		return poolDiff, true
	}
	if previousDiff > 0 && shareDiff >= previousDiff {
		return previousDiff, true
	}
	return 0, false
}

func validPoolDifficulty(d float64) bool {
	return d > 0 && !math.IsNaN(d) && !math.IsInf(d, 0)
}

func (v *ShareValidator) baseRecord(req SubmitRequest, job *Job) ShareRecord {
	rec := ShareRecord{
		JobID:       req.JobID,
		IP:          req.IP,
		Port:        req.Port,
		Worker:      req.Worker,
		Difficulty:  req.Difficulty,
		VersionBits: req.VersionBits,
		At:          v.now(),
	}
	if job != nil {
		rec.Height = job.Height()
		rec.BlockReward = job.CoinbaseValue()
		rec.BlockDiff = job.Difficulty * v.algo.Multiplier
		rec.BlockDiffActual = job.Difficulty
	}
	return rec
}

// reject logs and reports a rejected share. shareDiff is passed when the
// share got far enough to be hashed.
func (v *ShareValidator) reject(req SubmitRequest, job *Job, serr *ShareError, shareDiff ...float64) ShareResult {
	rec := v.baseRecord(req, job)
	rec.Reason = serr.Reason.String()
	rec.Error = serr.Message
	rec.Code = serr.Code
	if len(shareDiff) > 0 {
		rec.ShareDiff = shareDiff[0]
	}

	attrs := []any{"job_id", req.JobID, "worker", req.Worker, "ip", req.IP, "reason", serr.Reason.String(), "error", serr.Message}
	switch serr.Reason {
	case RejectJobNotFound, RejectLowDifficulty:
		logger.Debug("share rejected", attrs...)
	case RejectInternal:
		logger.Error("share validation failed", attrs...)
	default:
		logger.Warn("share rejected", attrs...)
	}

	v.events.Share(rec, "")
	return ShareResult{Err: serr, ShareDiff: rec.ShareDiff}
}
