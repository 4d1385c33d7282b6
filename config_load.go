package stratumcore

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
)

// LoadConfig reads the TOML file at path over DefaultConfig and validates the
// result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	fc, ok, err := loadTOMLFile[fileConfig](path)
	if err != nil {
		return cfg, err
	}
	if !ok {
		return cfg, fmt.Errorf("config file %s: %w", path, os.ErrNotExist)
	}
	if err := applyFileConfig(&cfg, *fc); err != nil {
		return cfg, fmt.Errorf("config file %s: %w", path, err)
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ParseConfig is LoadConfig for in-memory TOML.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := applyFileConfig(&cfg, fc); err != nil {
		return cfg, err
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadTOMLFile[T any](path string) (*T, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}

	var cfg T
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, true, fmt.Errorf("parse %s: %w", path, err)
	}

	return &cfg, true, nil
}

func applyFileConfig(cfg *Config, fc fileConfig) error {
	n := fc.Node
	if n.RPCURL != "" {
		cfg.Node.RPCURL = strings.TrimSpace(n.RPCURL)
	}
	cfg.Node.RPCUser = n.RPCUser
	cfg.Node.RPCPass = n.RPCPass
	cfg.Node.ZMQHashBlockAddr = strings.TrimSpace(n.ZMQHashBlockAddr)
	if n.PollIntervalSeconds != nil {
		cfg.Node.PollInterval = time.Duration(*n.PollIntervalSeconds) * time.Second
	}
	if n.JobRefreshSeconds != nil {
		cfg.Node.JobRefresh = time.Duration(*n.JobRefreshSeconds) * time.Second
	}
	if n.CheckBestBlock != nil {
		cfg.Node.CheckBestBlock = *n.CheckBestBlock
	}

	p := fc.Pool
	if p.Network != "" {
		cfg.Pool.Network = p.Network
	}
	cfg.Pool.PayoutAddress = strings.TrimSpace(p.PayoutAddress)
	cfg.Pool.PayoutScript = strings.TrimSpace(p.PayoutScript)
	if p.InstanceID != nil {
		if *p.InstanceID < 0 || *p.InstanceID > 0xffffffff {
			return fmt.Errorf("instance_id %d out of range", *p.InstanceID)
		}
		cfg.Pool.InstanceID = uint32(*p.InstanceID)
	}
	if p.Algorithm != "" {
		cfg.Pool.Algorithm = p.Algorithm
	}
	if p.Reward != "" {
		cfg.Pool.Reward = p.Reward
	}
	if p.TxMessages != nil {
		cfg.Pool.TxMessages = *p.TxMessages
	}
	if p.CoinbaseMessage != nil {
		cfg.Pool.CoinbaseMessage = *p.CoinbaseMessage
	}
	if p.Extranonce2Size != nil {
		cfg.Pool.Extranonce2Size = *p.Extranonce2Size
	}
	if p.VersionMask != nil {
		mask := strings.TrimPrefix(strings.TrimSpace(*p.VersionMask), "0x")
		if mask == "" {
			cfg.Pool.VersionMask = 0
			cfg.Pool.DisableVersionRolling = true
		} else {
			v, err := parseUint32BEHex(leftPadHex(mask, 8))
			if err != nil {
				return fmt.Errorf("version_mask %q: %w", *p.VersionMask, err)
			}
			cfg.Pool.VersionMask = v
			cfg.Pool.DisableVersionRolling = v == 0
		}
	}
	if p.VerifyTemplateTxs != nil {
		cfg.Pool.VerifyTemplateTxs = *p.VerifyTemplateTxs
	}
	if p.SubmissionWorkers != nil {
		cfg.Pool.SubmissionWorkers = *p.SubmissionWorkers
	}
	if p.EventWorkers != nil {
		cfg.Pool.EventWorkers = *p.EventWorkers
	}
	if p.EmitInvalidBlockHashes != nil {
		cfg.Pool.EmitInvalidBlockHashes = *p.EmitInvalidBlockHashes
	}
	cfg.Pool.Recipients = cfg.Pool.Recipients[:0]
	for _, r := range p.Recipients {
		cfg.Pool.Recipients = append(cfg.Pool.Recipients, RecipientConfig{
			Address: strings.TrimSpace(r.Address),
			Script:  strings.TrimSpace(r.Script),
			Percent: r.Percent,
		})
	}

	l := fc.Logging
	if l.Level != "" {
		cfg.Logging.Level = l.Level
	}
	cfg.Logging.PoolLog = l.PoolLog
	cfg.Logging.ErrorLog = l.ErrorLog
	cfg.Logging.DebugLog = l.DebugLog
	if l.Stdout != nil {
		cfg.Logging.Stdout = *l.Stdout
	}
	if l.RetentionDays != nil {
		cfg.Logging.RetentionDays = *l.RetentionDays
	}

	if fc.Metrics.Namespace != nil {
		cfg.Metrics.Namespace = strings.TrimSpace(*fc.Metrics.Namespace)
	}
	cfg.State.FoundBlocksDB = strings.TrimSpace(fc.State.FoundBlocksDB)
	return nil
}

func leftPadHex(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
