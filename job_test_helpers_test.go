package stratumcore

import (
	"bytes"
	"encoding/hex"
	"strings"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

const (
	testCurTime  = int64(1700000000) // 0x6553f100
	testPrevHash = "00000000000000000001a2b3c4d5e6f708192a3b4c5d6e7f8091a2b3c4d5e6f7"
	testWitness  = "6a24aa21a9ed" + "e2f61c3f71d1defd3fa999dfa36953755c690689799962b48bebd836974e8cf9"
)

func testPayoutScript(t testing.TB) []byte {
	t.Helper()
	script, err := scriptForAddress("1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("payout script: %v", err)
	}
	return script
}

// testTransactions builds n simple non-witness transactions.
func testTransactions(t testing.TB, n int) []*wire.MsgTx {
	t.Helper()
	txs := make([]*wire.MsgTx, n)
	for i := range txs {
		tx := wire.NewMsgTx(1)
		tx.AddTxIn(&wire.TxIn{
			PreviousOutPoint: wire.OutPoint{Hash: chainhash.Hash{byte(i + 1), 0xaa}, Index: uint32(i)},
			SignatureScript:  []byte{0x51},
			Sequence:         0xffffffff,
		})
		tx.AddTxOut(wire.NewTxOut(int64(1000+i), []byte{0x51}))
		txs[i] = tx
	}
	return txs
}

func gbtTransactions(t testing.TB, txs []*wire.MsgTx) []GBTTransaction {
	t.Helper()
	out := make([]GBTTransaction, len(txs))
	for i, tx := range txs {
		var buf bytes.Buffer
		if err := tx.Serialize(&buf); err != nil {
			t.Fatalf("serialize tx %d: %v", i, err)
		}
		out[i] = GBTTransaction{
			Data: hex.EncodeToString(buf.Bytes()),
			Txid: tx.TxHash().String(),
			Hash: tx.WitnessHash().String(),
		}
	}
	return out
}

// testTemplate returns a regtest-difficulty template at height 101 carrying
// the given transactions.
func testTemplate(t testing.TB, txs []*wire.MsgTx) GetBlockTemplateResult {
	t.Helper()
	return GetBlockTemplateResult{
		Bits:                     "207fffff",
		CurTime:                  testCurTime,
		Height:                   101,
		Version:                  0x20000000,
		Previous:                 testPrevHash,
		CoinbaseValue:            5000000000,
		DefaultWitnessCommitment: testWitness,
		Transactions:             gbtTransactions(t, txs),
	}
}

// templateAt returns a transaction-free template for height whose previous
// hash is derived from tag.
func templateAt(height int64, tag string) GetBlockTemplateResult {
	prev := strings.Repeat("0", 64-len(tag)) + tag
	return GetBlockTemplateResult{
		Bits:          "207fffff",
		CurTime:       testCurTime,
		Height:        height,
		Version:       0x20000000,
		Previous:      prev,
		CoinbaseValue: 5000000000,
	}
}

func testJobOptions(t testing.TB) JobOptions {
	t.Helper()
	return JobOptions{PayoutScript: testPayoutScript(t), VerifyTransactions: true}
}

func mustDecodeHex(t testing.TB, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("decode %q: %v", s, err)
	}
	return b
}

type recordingSink struct {
	mu        sync.Mutex
	newBlocks []*Job
	updated   []*Job
	cleans    []bool
	shares    []ShareRecord
	blockHexs []string
}

func (s *recordingSink) NewBlock(job *Job) {
	s.mu.Lock()
	s.newBlocks = append(s.newBlocks, job)
	s.mu.Unlock()
}

func (s *recordingSink) UpdatedJob(job *Job, clean bool) {
	s.mu.Lock()
	s.updated = append(s.updated, job)
	s.cleans = append(s.cleans, clean)
	s.mu.Unlock()
}

func (s *recordingSink) Share(rec ShareRecord, blockHex string) {
	s.mu.Lock()
	s.shares = append(s.shares, rec)
	s.blockHexs = append(s.blockHexs, blockHex)
	s.mu.Unlock()
}

func (s *recordingSink) lastShare(t testing.TB) (ShareRecord, string) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.shares) == 0 {
		t.Fatalf("no share events recorded")
	}
	return s.shares[len(s.shares)-1], s.blockHexs[len(s.blockHexs)-1]
}

func (s *recordingSink) shareCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.shares)
}

func newTestJob(t testing.TB, tpl GetBlockTemplateResult) *Job {
	t.Helper()
	job, err := newJob("1", tpl, testJobOptions(t))
	if err != nil {
		t.Fatalf("newJob: %v", err)
	}
	return job
}
