package stratumcore

import "time"

const (
	defaultVersionMask = uint32(0x1fffe000)

	// Extranonce1 width handed out by ExtranonceCounter.
	extranonce1Size = 4
	// Default miner-chosen extranonce2 width; with extranonce1 it fills the
	// 8-byte coinbase placeholder.
	defaultExtranonce2Size = 4
	maxExtranonce2Size     = 16

	// Shares may carry an ntime at most this far ahead of local time.
	maxNTimeFutureDrift = 7200 * time.Second

	// Ordinary shares must reach this fraction of the assigned difficulty.
	lowDifficultyTolerance = 0.99

	// Job ids wrap back to 1 whenever the counter hits a multiple of this.
	jobIDWrap = 0xffff

	// Extranonce counters start at instanceID shifted by this many bits.
	extranonceInstanceShift = 27

	// Consensus limit on the coinbase scriptSig.
	maxCoinbaseScript = 100

	defaultCoinbaseMessage = "/stratumcore/"

	defaultPollInterval    = time.Second
	defaultJobRefresh      = 30 * time.Second
	defaultMetricNamespace = "stratumcore"

	defaultLogRetentionDays = 3
)
