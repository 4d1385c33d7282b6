package stratumcore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// scriptForAddress validates a Bitcoin address for the given network locally
// and returns its scriptPubKey. Base58 (P2PKH/P2SH) and bech32/bech32m segwit
// destinations are supported.
func scriptForAddress(addr string, params *chaincfg.Params) ([]byte, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" || params == nil {
		return nil, errors.New("empty address")
	}

	addrDecoded, err := btcutil.DecodeAddress(addr, params)
	if err != nil {
		return nil, fmt.Errorf("decode address: %w", err)
	}

	if !addrDecoded.IsForNet(params) {
		return nil, fmt.Errorf("address %s is not valid for %s", addr, params.Name)
	}

	script, err := txscript.PayToAddrScript(addrDecoded)
	if err != nil {
		return nil, fmt.Errorf("pay to addr script: %w", err)
	}
	return script, nil
}

// scriptToAddress renders a standard scriptPubKey as an address for logs. It
// returns an empty string for non-standard scripts.
func scriptToAddress(script []byte, params *chaincfg.Params) string {
	_, addrs, _, err := txscript.ExtractPkScriptAddrs(script, params)
	if err != nil || len(addrs) != 1 {
		return ""
	}
	return addrs[0].EncodeAddress()
}
