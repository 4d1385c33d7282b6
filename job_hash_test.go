package stratumcore

import (
	"bytes"
	"math"
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/wire"
)

func TestVarIntMatchesWire(t *testing.T) {
	for _, v := range []uint64{0, 1, 0xfc, 0xfd, 0xffff, 0x10000, 0xffffffff, 0x100000000, math.MaxUint64} {
		var want bytes.Buffer
		if err := wire.WriteVarInt(&want, 0, v); err != nil {
			t.Fatalf("wire.WriteVarInt(%d): %v", v, err)
		}
		got := appendVarInt(nil, v)
		if !bytes.Equal(got, want.Bytes()) {
			t.Fatalf("appendVarInt(%d) = %x, want %x", v, got, want.Bytes())
		}
		back, err := wire.ReadVarInt(bytes.NewReader(got), 0)
		if err != nil || back != v {
			t.Fatalf("wire.ReadVarInt(%x) = %d, %v", got, back, err)
		}
	}
}

func TestTargetFromBitsMatchesBtcd(t *testing.T) {
	for _, bits := range []string{"1d00ffff", "207fffff", "1703a30c", "1b0404cb"} {
		got, err := targetFromBits(bits)
		if err != nil {
			t.Fatalf("targetFromBits(%s): %v", bits, err)
		}
		compact, _ := parseUint32BEHex(bits)
		if want := blockchain.CompactToBig(compact); got.Cmp(want) != 0 {
			t.Fatalf("targetFromBits(%s) = %x, want %x", bits, got, want)
		}
	}
}

func TestShareDifficulty(t *testing.T) {
	if d := shareDifficulty(diff1Target, 1); d != 1 {
		t.Fatalf("diff1 hash difficulty = %v", d)
	}
	half := new(big.Int).Rsh(diff1Target, 1)
	if d := shareDifficulty(half, 1); math.Abs(d-2) > 1e-9 {
		t.Fatalf("half target difficulty = %v", d)
	}
	if d := shareDifficulty(diff1Target, 65536); d != 65536 {
		t.Fatalf("scaled difficulty = %v", d)
	}
	if d := shareDifficulty(new(big.Int), 1); !math.IsInf(d, 1) {
		t.Fatalf("zero hash difficulty = %v", d)
	}
	if d := difficultyFromTarget(nil); d != 0 {
		t.Fatalf("nil target difficulty = %v", d)
	}
}

func TestHashToBigLittleEndian(t *testing.T) {
	hash := make([]byte, 32)
	hash[0] = 1
	if hashToBig(hash).Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("first byte is not least significant")
	}
	hash[0], hash[31] = 0, 1
	if hashToBig(hash).Cmp(new(big.Int).Lsh(big.NewInt(1), 248)) != 0 {
		t.Fatalf("last byte is not most significant")
	}
}
