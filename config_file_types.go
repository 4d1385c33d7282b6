package stratumcore

// File config types use pointers where the zero value is a valid setting so
// an absent key keeps the default.

type nodeFileConfig struct {
	RPCURL              string `toml:"rpc_url"`
	RPCUser             string `toml:"rpc_user"`
	RPCPass             string `toml:"rpc_pass"`
	ZMQHashBlockAddr    string `toml:"zmq_hashblock_addr"`
	PollIntervalSeconds *int   `toml:"poll_interval_seconds"`
	JobRefreshSeconds   *int   `toml:"job_refresh_seconds"`
	CheckBestBlock      *bool  `toml:"check_best_block"`
}

type recipientFileConfig struct {
	Address string  `toml:"address"`
	Script  string  `toml:"script"`
	Percent float64 `toml:"percent"`
}

type poolFileConfig struct {
	Network                string                `toml:"network"`
	PayoutAddress          string                `toml:"payout_address"`
	PayoutScript           string                `toml:"payout_script"`
	InstanceID             *int64                `toml:"instance_id"`
	Algorithm              string                `toml:"algorithm"`
	Reward                 string                `toml:"reward"`
	TxMessages             *bool                 `toml:"tx_messages"`
	CoinbaseMessage        *string               `toml:"coinbase_message"`
	Extranonce2Size        *int                  `toml:"extranonce2_size"`
	VersionMask            *string               `toml:"version_mask"` // "" = rolling disabled
	VerifyTemplateTxs      *bool                 `toml:"verify_template_txs"`
	SubmissionWorkers      *int                  `toml:"submission_workers"`
	EventWorkers           *int                  `toml:"event_workers"`
	EmitInvalidBlockHashes *bool                 `toml:"emit_invalid_block_hashes"`
	Recipients             []recipientFileConfig `toml:"recipients"`
}

type loggingFileConfig struct {
	Level    string `toml:"level"`
	PoolLog  string `toml:"pool_log"`
	ErrorLog string `toml:"error_log"`
	DebugLog string `toml:"debug_log"`
	Stdout   *bool  `toml:"stdout"`

	RetentionDays *int `toml:"retention_days"`
}

type metricsFileConfig struct {
	Namespace *string `toml:"namespace"`
}

type stateFileConfig struct {
	FoundBlocksDB string `toml:"found_blocks_db"`
}

type fileConfig struct {
	Node    nodeFileConfig    `toml:"node"`
	Pool    poolFileConfig    `toml:"pool"`
	Logging loggingFileConfig `toml:"logging"`
	Metrics metricsFileConfig `toml:"metrics"`
	State   stateFileConfig   `toml:"state"`
}
