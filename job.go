package stratumcore

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"time"
)

// JobOptions carries the pool-side parameters every job is built with.
type JobOptions struct {
	PayoutScript    []byte
	Extranonce1Size int
	Extranonce2Size int
	Reward          RewardType
	// TxMessages coins use tx version 2 and append a comment to the coinbase.
	TxMessages      bool
	Recipients      []Recipient
	CoinbaseMessage string
	// VersionMask is the base version-rolling mask; zero selects the BIP320
	// default unless DisableVersionRolling is set.
	VersionMask           uint32
	DisableVersionRolling bool
	VerifyTransactions    bool
}

func (o JobOptions) withDefaults() JobOptions {
	if o.Extranonce1Size <= 0 {
		o.Extranonce1Size = extranonce1Size
	}
	if o.Extranonce2Size <= 0 {
		o.Extranonce2Size = defaultExtranonce2Size
	}
	if o.VersionMask == 0 && !o.DisableVersionRolling {
		o.VersionMask = defaultVersionMask
	}
	if o.DisableVersionRolling {
		o.VersionMask = 0
	}
	return o
}

// Job is one unit of work bound to a block template. Everything except the
// duplicate registry is fixed at construction.
type Job struct {
	JobID           string
	Template        GetBlockTemplateResult
	Difficulty      float64
	CreatedAt       time.Time
	VersionMask     uint32
	Extranonce2Size int

	target        *big.Int
	merkle        *MerkleTree
	coinbase      coinbaseParts
	transactions  []templateTx
	prevHashBytes [32]byte
	bitsBytes     [4]byte
	// witnessCoinbase wraps the coinbase with the BIP141 reserved value when
	// serializing a block.
	witnessCoinbase bool

	submits duplicateShareSet
}

func newJob(id string, tpl GetBlockTemplateResult, opts JobOptions) (*Job, error) {
	opts = opts.withDefaults()
	if len(opts.PayoutScript) == 0 {
		return nil, fmt.Errorf("payout script not configured")
	}
	if opts.Extranonce2Size > maxExtranonce2Size {
		return nil, fmt.Errorf("extranonce2 size %d exceeds %d", opts.Extranonce2Size, maxExtranonce2Size)
	}
	if tpl.Height <= 0 {
		return nil, fmt.Errorf("template height invalid: %d", tpl.Height)
	}
	if tpl.CurTime <= 0 {
		return nil, fmt.Errorf("template curtime invalid: %d", tpl.CurTime)
	}

	target, err := validateBits(tpl.Bits, tpl.Target)
	if err != nil {
		return nil, err
	}

	var prevBytes [32]byte
	if err := decodeHexToFixedBytes(prevBytes[:], tpl.Previous); err != nil {
		return nil, fmt.Errorf("decode previousblockhash: %w", err)
	}
	var bitsBytes [4]byte
	if err := decodeHexToFixedBytes(bitsBytes[:], tpl.Bits); err != nil {
		return nil, fmt.Errorf("decode bits: %w", err)
	}

	var flagsBytes []byte
	if tpl.CoinbaseAux.Flags != "" {
		if flagsBytes, err = hex.DecodeString(tpl.CoinbaseAux.Flags); err != nil {
			return nil, fmt.Errorf("decode coinbase flags: %w", err)
		}
	}
	var commitScript []byte
	if tpl.DefaultWitnessCommitment != "" {
		if commitScript, err = hex.DecodeString(tpl.DefaultWitnessCommitment); err != nil {
			return nil, fmt.Errorf("decode witness commitment: %w", err)
		}
	}

	txs, err := decodeTemplateTransactions(tpl.Transactions, opts.VerifyTransactions)
	if err != nil {
		return nil, err
	}
	txids := make([][]byte, len(txs))
	for i, tx := range txs {
		txids[i] = tx.txid
	}

	payouts, err := splitCoinbaseValue(opts.PayoutScript, tpl.CoinbaseValue, opts.Recipients)
	if err != nil {
		return nil, err
	}
	parts, err := buildCoinbaseParts(coinbaseSpec{
		height:           tpl.Height,
		curTime:          tpl.CurTime,
		flags:            flagsBytes,
		commitmentScript: commitScript,
		payouts:          payouts,
		placeholderLen:   opts.Extranonce1Size + opts.Extranonce2Size,
		message:          opts.CoinbaseMessage,
		reward:           opts.Reward,
		txMessages:       opts.TxMessages,
	})
	if err != nil {
		return nil, fmt.Errorf("build coinbase: %w", err)
	}

	return &Job{
		JobID:           id,
		Template:        tpl,
		target:          target,
		Difficulty:      difficultyFromTarget(target),
		CreatedAt:       time.Now(),
		VersionMask:     computePoolMask(tpl, opts.VersionMask),
		Extranonce2Size: opts.Extranonce2Size,
		merkle:          newMerkleTree(txids),
		coinbase:        parts,
		transactions:    txs,
		prevHashBytes:   prevBytes,
		bitsBytes:       bitsBytes,
		witnessCoinbase: len(commitScript) > 0 && opts.Reward == RewardPOW && !opts.TxMessages,
	}, nil
}

// RegisterSubmit records a submission tuple and reports whether it is new.
// Hex fields are compared case-insensitively.
func (job *Job) RegisterSubmit(extranonce1, extranonce2, ntime, nonce, versionBits string) bool {
	return job.submits.add(makeDuplicateShareKey(extranonce1, extranonce2, ntime, nonce, versionBits))
}

// SerializeCoinbase returns the coinbase transaction with the extranonce
// pair in place of the placeholder.
func (job *Job) SerializeCoinbase(extranonce1, extranonce2 []byte) ([]byte, error) {
	return job.coinbase.assemble(extranonce1, extranonce2)
}

// CoinbaseParts returns coinb1 and coinb2 hex encoded for mining.notify.
func (job *Job) CoinbaseParts() (string, string) {
	return job.coinbase.hex()
}

func (job *Job) MerkleTree() *MerkleTree {
	return job.merkle
}

func (job *Job) MerkleBranches() []string {
	return job.merkle.Branches()
}

// Target returns a copy of the network target derived from the template bits.
func (job *Job) Target() *big.Int {
	return new(big.Int).Set(job.target)
}

func (job *Job) Height() int64 {
	return job.Template.Height
}

func (job *Job) PrevHash() string {
	return job.Template.Previous
}

func (job *Job) CurTime() int64 {
	return job.Template.CurTime
}

func (job *Job) CoinbaseValue() int64 {
	return job.Template.CoinbaseValue
}

// Submissions is the number of distinct tuples registered so far.
func (job *Job) Submissions() int {
	return job.submits.len()
}

// rolledVersion merges miner-supplied version bits into the template version
// under the job's mask.
func (job *Job) rolledVersion(versionBits uint32) uint32 {
	base := uint32(job.Template.Version)
	if versionBits == 0 {
		return base
	}
	return (base &^ job.VersionMask) | (versionBits & job.VersionMask)
}
