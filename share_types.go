package stratumcore

import (
	"fmt"
	"time"
)

// Stratum error codes for rejected shares.
const (
	CodeMalformed     = 20
	CodeJobNotFound   = 21
	CodeDuplicate     = 22
	CodeLowDifficulty = 23
)

type RejectReason int

const (
	RejectNone RejectReason = iota
	RejectInvalidExtranonce2Size
	RejectJobNotFound
	RejectInvalidNTimeSize
	RejectNTimeOutOfRange
	RejectInvalidNonceSize
	RejectInvalidVersionBits
	RejectDuplicateShare
	RejectLowDifficulty
	// RejectInternal means the share could not be judged because of a
	// broken invariant (bad pool difficulty, NaN math, header build
	// failure). It is never a verdict on the miner's work.
	RejectInternal
)

func (r RejectReason) String() string {
	switch r {
	case RejectNone:
		return "none"
	case RejectInvalidExtranonce2Size:
		return "invalid_extranonce2_size"
	case RejectJobNotFound:
		return "job_not_found"
	case RejectInvalidNTimeSize:
		return "invalid_ntime_size"
	case RejectNTimeOutOfRange:
		return "ntime_out_of_range"
	case RejectInvalidNonceSize:
		return "invalid_nonce_size"
	case RejectInvalidVersionBits:
		return "invalid_version_bits"
	case RejectDuplicateShare:
		return "duplicate_share"
	case RejectLowDifficulty:
		return "low_difficulty_share"
	case RejectInternal:
		return "internal_error"
	default:
		return "unknown"
	}
}

// Code is the stratum error code reported to the miner.
func (r RejectReason) Code() int {
	switch r {
	case RejectJobNotFound:
		return CodeJobNotFound
	case RejectDuplicateShare:
		return CodeDuplicate
	case RejectLowDifficulty:
		return CodeLowDifficulty
	default:
		return CodeMalformed
	}
}

func (r RejectReason) message() string {
	switch r {
	case RejectInvalidExtranonce2Size:
		return "incorrect size of extranonce2"
	case RejectJobNotFound:
		return "job not found"
	case RejectInvalidNTimeSize:
		return "incorrect size of ntime"
	case RejectNTimeOutOfRange:
		return "ntime out of range"
	case RejectInvalidNonceSize:
		return "incorrect size of nonce"
	case RejectInvalidVersionBits:
		return "invalid version bits"
	case RejectDuplicateShare:
		return "duplicate share"
	case RejectLowDifficulty:
		return "low difficulty share"
	case RejectInternal:
		return "internal error"
	default:
		return ""
	}
}

// ShareError is a rejected share's reason and wire code.
type ShareError struct {
	Reason  RejectReason
	Code    int
	Message string
}

func newShareError(reason RejectReason, detail string) *ShareError {
	msg := reason.message()
	if detail != "" {
		msg += ": " + detail
	}
	return &ShareError{Reason: reason, Code: reason.Code(), Message: msg}
}

func (e *ShareError) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// SubmitRequest is one parsed mining.submit plus the submitter's identity.
type SubmitRequest struct {
	JobID string
	// PreviousDifficulty is the difficulty before the last retarget, or 0.
	PreviousDifficulty float64
	Difficulty         float64
	Extranonce1        string
	Extranonce2        string
	NTime              string
	Nonce              string
	IP                 string
	Port               int
	Worker             string
	// VersionBits is the miner's rolled version as 8 hex chars, or empty.
	VersionBits string
}

// ShareRecord is the payload of a share notification.
type ShareRecord struct {
	JobID            string    `json:"job"`
	IP               string    `json:"ip"`
	Port             int       `json:"port"`
	Worker           string    `json:"worker"`
	Height           int64     `json:"height"`
	BlockReward      int64     `json:"blockReward"`
	Difficulty       float64   `json:"difficulty"`
	ShareDiff        float64   `json:"shareDiff"`
	BlockDiff        float64   `json:"blockDiff"`
	BlockDiffActual  float64   `json:"blockDiffActual"`
	BlockHash        string    `json:"blockHash,omitempty"`
	BlockHashInvalid string    `json:"blockHashInvalid,omitempty"`
	VersionBits      string    `json:"versionBits,omitempty"`
	Accepted         bool      `json:"accepted"`
	Reason           string    `json:"reason,omitempty"`
	Error            string    `json:"error,omitempty"`
	Code             int       `json:"code,omitempty"`
	At               time.Time `json:"at"`
}

// ShareResult is the verdict returned to the network layer.
type ShareResult struct {
	Accepted   bool
	BlockFound bool
	// Difficulty is the credited difficulty: the pool difficulty, or the
	// previous one when the share was accepted under the retarget grace.
	Difficulty float64
	ShareDiff  float64
	BlockHash  string
	BlockHex   string
	Err        *ShareError
}
