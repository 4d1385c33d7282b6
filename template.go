package stratumcore

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// GetBlockTemplateResult mirrors the BIP22/23 getblocktemplate fields the
// job builder consumes.
type GetBlockTemplateResult struct {
	Bits                     string           `json:"bits"`
	CurTime                  int64            `json:"curtime"`
	Height                   int64            `json:"height"`
	Mintime                  int64            `json:"mintime"`
	Target                   string           `json:"target"`
	Version                  int32            `json:"version"`
	Previous                 string           `json:"previousblockhash"`
	CoinbaseValue            int64            `json:"coinbasevalue"`
	DefaultWitnessCommitment string           `json:"default_witness_commitment"`
	LongPollID               string           `json:"longpollid"`
	Transactions             []GBTTransaction `json:"transactions"`
	VbAvailable              map[string]int   `json:"vbavailable"`
	VbRequired               int              `json:"vbrequired"`
	Mutable                  []string         `json:"mutable"`
	Rules                    []string         `json:"rules"`
	CoinbaseAux              struct {
		Flags string `json:"flags"`
	} `json:"coinbaseaux"`
}

type GBTTransaction struct {
	Data string `json:"data"`
	Txid string `json:"txid"`
	Hash string `json:"hash"`
}

// TemplateSource fetches the current block template from a node.
type TemplateSource interface {
	FetchTemplate(ctx context.Context) (GetBlockTemplateResult, error)
}

func validateBits(bitsStr, targetStr string) (*big.Int, error) {
	if len(bitsStr) != 8 {
		return nil, fmt.Errorf("bits must be 8 hex characters, got %d", len(bitsStr))
	}
	target, err := targetFromBits(bitsStr)
	if err != nil {
		return nil, err
	}
	if target.Sign() <= 0 {
		return nil, fmt.Errorf("bits produced non-positive target")
	}
	if target.Cmp(maxUint256) > 0 {
		return nil, fmt.Errorf("bits target exceeds 256 bits")
	}
	if targetStr == "" {
		return target, nil
	}

	tplTarget := new(big.Int)
	if _, ok := tplTarget.SetString(targetStr, 16); !ok {
		return nil, fmt.Errorf("invalid template target %s", targetStr)
	}
	if tplTarget.Cmp(target) != 0 {
		return nil, fmt.Errorf("bits target %s mismatches template target %s", target.Text(16), tplTarget.Text(16))
	}
	return target, nil
}

// templateTx is a template transaction decoded once per job.
type templateTx struct {
	raw  []byte
	txid []byte // internal byte order
}

// decodeTemplateTransactions decodes template transactions and, when verify
// is set, checks the advertised txid and wtxid against the serialized data.
func decodeTemplateTransactions(txs []GBTTransaction, verify bool) ([]templateTx, error) {
	out := make([]templateTx, len(txs))
	for i, tx := range txs {
		txid, err := chainhash.NewHashFromStr(tx.Txid)
		if err != nil || len(tx.Txid) != 2*chainhash.HashSize {
			return nil, fmt.Errorf("tx %d has invalid txid %q", i, tx.Txid)
		}
		raw, err := hex.DecodeString(tx.Data)
		if err != nil {
			return nil, fmt.Errorf("decode tx %d data: %w", i, err)
		}
		if len(raw) == 0 {
			return nil, fmt.Errorf("tx %d data empty", i)
		}
		if verify {
			var msg wire.MsgTx
			if err := msg.Deserialize(bytes.NewReader(raw)); err != nil {
				return nil, fmt.Errorf("tx %d decode: %w", i, err)
			}
			if got := msg.TxHash(); !got.IsEqual(txid) {
				return nil, fmt.Errorf("tx %d txid mismatch with provided data", i)
			}
			if tx.Hash != "" {
				wtxid, err := chainhash.NewHashFromStr(tx.Hash)
				if err != nil {
					return nil, fmt.Errorf("decode wtxid %s: %w", tx.Hash, err)
				}
				if got := msg.WitnessHash(); !got.IsEqual(wtxid) {
					return nil, fmt.Errorf("tx %d wtxid mismatch with provided data", i)
				}
			}
		}
		out[i] = templateTx{raw: raw, txid: append([]byte(nil), txid[:]...)}
	}
	return out, nil
}

// computePoolMask derives the version-rolling mask offered to miners from
// the configured base mask and the template's deployment state.
func computePoolMask(tpl GetBlockTemplateResult, base uint32) uint32 {
	if base == 0 {
		return 0
	}

	// Some nodes omit version mutability from templates; keep the configured
	// mask rather than disabling rolling.
	if !versionMutable(tpl.Mutable) {
		return base
	}

	mask := base &^ uint32(tpl.VbRequired)

	active := make(map[string]struct{}, len(tpl.Rules))
	for _, rule := range tpl.Rules {
		active[rule] = struct{}{}
	}
	for name, bit := range tpl.VbAvailable {
		if _, ok := active[name]; !ok {
			continue
		}
		if bit < 0 || bit >= 32 {
			continue
		}
		mask &^= uint32(1) << uint(bit)
	}

	if mask == 0 {
		return base
	}
	return mask
}

// sameTransactions reports whether two templates carry the same tx set.
func sameTransactions(a, b GetBlockTemplateResult) bool {
	if len(a.Transactions) != len(b.Transactions) {
		return false
	}
	for i, tx := range a.Transactions {
		if tx.Txid != b.Transactions[i].Txid {
			return false
		}
	}
	return true
}
