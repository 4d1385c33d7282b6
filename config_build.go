package stratumcore

import (
	"encoding/hex"
	"fmt"
)

// payoutScript resolves the pool's own output script.
func (c Config) payoutScript() ([]byte, error) {
	if c.Pool.PayoutScript != "" {
		script, err := hex.DecodeString(c.Pool.PayoutScript)
		if err != nil {
			return nil, fmt.Errorf("payout_script: %w", err)
		}
		return script, nil
	}
	params, err := chainParamsForNetwork(c.Pool.Network)
	if err != nil {
		return nil, err
	}
	script, err := scriptForAddress(c.Pool.PayoutAddress, params)
	if err != nil {
		return nil, fmt.Errorf("invalid payout address %s: %w", c.Pool.PayoutAddress, err)
	}
	return script, nil
}

func (c Config) recipients() ([]Recipient, error) {
	if len(c.Pool.Recipients) == 0 {
		return nil, nil
	}
	params, err := chainParamsForNetwork(c.Pool.Network)
	if err != nil {
		return nil, err
	}
	out := make([]Recipient, 0, len(c.Pool.Recipients))
	for i, r := range c.Pool.Recipients {
		var script []byte
		if r.Script != "" {
			script, err = hex.DecodeString(r.Script)
			if err != nil {
				return nil, fmt.Errorf("recipient %d script: %w", i, err)
			}
		} else {
			script, err = scriptForAddress(r.Address, params)
			if err != nil {
				return nil, fmt.Errorf("recipient %d address %s: %w", i, r.Address, err)
			}
		}
		out = append(out, Recipient{Script: script, Percent: r.Percent})
	}
	return out, nil
}

// JobOptions converts the pool section into job construction options.
func (c Config) JobOptions() (JobOptions, error) {
	script, err := c.payoutScript()
	if err != nil {
		return JobOptions{}, err
	}
	recipients, err := c.recipients()
	if err != nil {
		return JobOptions{}, err
	}
	reward, err := parseRewardType(c.Pool.Reward)
	if err != nil {
		return JobOptions{}, err
	}
	return JobOptions{
		PayoutScript:          script,
		Extranonce1Size:       extranonce1Size,
		Extranonce2Size:       c.Pool.Extranonce2Size,
		Reward:                reward,
		TxMessages:            c.Pool.TxMessages,
		Recipients:            recipients,
		CoinbaseMessage:       c.Pool.CoinbaseMessage,
		VersionMask:           c.Pool.VersionMask,
		DisableVersionRolling: c.Pool.DisableVersionRolling,
		VerifyTransactions:    c.Pool.VerifyTemplateTxs,
	}, nil
}

// ValidatorOptions returns the share validator settings; Events is left for
// the caller to fill.
func (c Config) ValidatorOptions() (ValidatorOptions, error) {
	algo, err := LookupAlgorithm(c.Pool.Algorithm)
	if err != nil {
		return ValidatorOptions{}, err
	}
	return ValidatorOptions{
		Algorithm:              algo,
		EmitInvalidBlockHashes: c.Pool.EmitInvalidBlockHashes,
	}, nil
}
