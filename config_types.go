package stratumcore

import "time"

// Config is the resolved runtime configuration. LoadConfig fills it from
// defaults and a TOML file; callers may also build one by hand starting from
// DefaultConfig.
type Config struct {
	Node    NodeConfig
	Pool    PoolConfig
	Logging LoggingConfig
	Metrics MetricsConfig
	State   StateConfig
}

type NodeConfig struct {
	RPCURL  string
	RPCUser string
	RPCPass string
	// ZMQHashBlockAddr enables block notifications when set.
	ZMQHashBlockAddr string
	PollInterval     time.Duration
	// JobRefresh is how long the current job may age before a template with
	// only a newer curtime replaces it.
	JobRefresh time.Duration
	// CheckBestBlock compares the template's previous hash against
	// getbestblockhash before installing it.
	CheckBestBlock bool
}

type PoolConfig struct {
	Network       string
	PayoutAddress string
	// PayoutScript is a raw scriptPubKey in hex and overrides PayoutAddress.
	PayoutScript           string
	InstanceID             uint32
	Algorithm              string
	Reward                 string
	TxMessages             bool
	CoinbaseMessage        string
	Extranonce2Size        int
	VersionMask            uint32
	DisableVersionRolling  bool
	VerifyTemplateTxs      bool
	SubmissionWorkers      int
	EventWorkers           int
	EmitInvalidBlockHashes bool
	Recipients             []RecipientConfig
}

type RecipientConfig struct {
	Address string
	Script  string
	Percent float64
}

type LoggingConfig struct {
	Level    string
	PoolLog  string
	ErrorLog string
	DebugLog string
	Stdout   bool

	// RetentionDays is how many daily log files are kept; 0 keeps all.
	RetentionDays int
}

type MetricsConfig struct {
	// Namespace prefixes every metric name; empty disables metrics.
	Namespace string
}

type StateConfig struct {
	// FoundBlocksDB is the sqlite journal path; empty disables it.
	FoundBlocksDB string
}
