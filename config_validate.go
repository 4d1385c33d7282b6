package stratumcore

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Node.RPCURL) == "" {
		return fmt.Errorf("rpc_url is required")
	}
	if parsedRPC, err := url.Parse(cfg.Node.RPCURL); err != nil {
		return fmt.Errorf("rpc_url parse error: %w", err)
	} else if parsedRPC.Scheme != "http" && parsedRPC.Scheme != "https" {
		if parsedRPC.Scheme == "" {
			return fmt.Errorf("rpc_url %q missing protocol scheme (http/https)", cfg.Node.RPCURL)
		}
		return fmt.Errorf("rpc_url %q must use http or https scheme", cfg.Node.RPCURL)
	}
	if cfg.Node.PollInterval <= 0 {
		return fmt.Errorf("poll_interval_seconds must be > 0")
	}
	if cfg.Node.JobRefresh < 0 {
		return fmt.Errorf("job_refresh_seconds cannot be negative")
	}

	if _, err := chainParamsForNetwork(cfg.Pool.Network); err != nil {
		return err
	}
	if cfg.Pool.PayoutAddress == "" && cfg.Pool.PayoutScript == "" {
		return fmt.Errorf("payout_address is required for coinbase outputs")
	}
	if cfg.Pool.PayoutScript != "" {
		if _, err := hex.DecodeString(cfg.Pool.PayoutScript); err != nil {
			return fmt.Errorf("payout_script is not valid hex: %w", err)
		}
	}
	if _, err := LookupAlgorithm(cfg.Pool.Algorithm); err != nil {
		return err
	}
	if _, err := parseRewardType(cfg.Pool.Reward); err != nil {
		return err
	}
	if cfg.Pool.Extranonce2Size <= 0 || cfg.Pool.Extranonce2Size > maxExtranonce2Size {
		return fmt.Errorf("extranonce2_size must be between 1 and %d, got %d", maxExtranonce2Size, cfg.Pool.Extranonce2Size)
	}
	if cfg.Pool.SubmissionWorkers < 0 {
		return fmt.Errorf("submission_workers cannot be negative")
	}
	if cfg.Pool.EventWorkers < 0 {
		return fmt.Errorf("event_workers cannot be negative")
	}

	var total float64
	for i, r := range cfg.Pool.Recipients {
		if r.Address == "" && r.Script == "" {
			return fmt.Errorf("recipient %d: address or script is required", i)
		}
		if r.Percent <= 0 || r.Percent >= 100 {
			return fmt.Errorf("recipient %d: percent must be between 0 and 100, got %v", i, r.Percent)
		}
		total += r.Percent
	}
	if total >= 100 {
		return fmt.Errorf("recipient percentages add up to %v; the pool output needs a share", total)
	}

	if _, err := parseLogLevel(cfg.Logging.Level); err != nil {
		return err
	}
	if cfg.Logging.RetentionDays < 0 {
		return fmt.Errorf("logging retention_days must be >= 0, got %d", cfg.Logging.RetentionDays)
	}
	return nil
}
