package stratumcore

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
)

func DefaultConfig() Config {
	return Config{
		Node: NodeConfig{
			RPCURL:       "http://127.0.0.1:8332",
			PollInterval: defaultPollInterval,
			JobRefresh:   defaultJobRefresh,
		},
		Pool: PoolConfig{
			Network:           "mainnet",
			Algorithm:         "sha256d",
			Reward:            RewardPOW.String(),
			CoinbaseMessage:   defaultCoinbaseMessage,
			Extranonce2Size:   defaultExtranonce2Size,
			VersionMask:       defaultVersionMask,
			VerifyTemplateTxs: true,
			EventWorkers:      1,
		},
		Logging: LoggingConfig{
			Level:         "info",
			Stdout:        true,
			RetentionDays: defaultLogRetentionDays,
		},
		Metrics: MetricsConfig{
			Namespace: defaultMetricNamespace,
		},
	}
}

// chainParamsForNetwork maps a network name to the btcd parameters used for
// address decoding.
func chainParamsForNetwork(network string) (*chaincfg.Params, error) {
	switch strings.ToLower(strings.TrimSpace(network)) {
	case "", "mainnet", "main":
		return &chaincfg.MainNetParams, nil
	case "testnet", "testnet3", "test":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	case "simnet":
		return &chaincfg.SimNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network %q", network)
	}
}
