package stratumcore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"slices"

	"github.com/btcsuite/btcd/blockchain"
)

// targetFromBits expands the compact difficulty encoding used in block
// headers ("1d00ffff") into the full 256-bit target.
func targetFromBits(bits string) (*big.Int, error) {
	compact, err := parseUint32BEHex(bits)
	if err != nil {
		return nil, fmt.Errorf("decode bits: %w", err)
	}
	return blockchain.CompactToBig(compact), nil
}

var diff1Target = func() *big.Int {
	n, _ := new(big.Int).SetString("00000000FFFF0000000000000000000000000000000000000000000000000000", 16)
	return n
}()

// maxUint256 is the maximum value representable in 256 bits.
var maxUint256 = func() *big.Int {
	n := new(big.Int).Lsh(big.NewInt(1), 256)
	return n.Sub(n, big.NewInt(1))
}()

// difficultyFromTarget returns diff1/target.
func difficultyFromTarget(target *big.Int) float64 {
	if target == nil || target.Sign() <= 0 {
		return 0
	}
	f := new(big.Float).SetPrec(256).SetInt(diff1Target)
	d := new(big.Float).SetPrec(256).SetInt(target)
	f.Quo(f, d)
	val, _ := f.Float64()
	return val
}

// shareDifficulty computes diff1/hash scaled by the algorithm multiplier in
// 256-bit float precision and rounds once at the end. A zero hash yields +Inf.
func shareDifficulty(hashInt *big.Int, multiplier float64) float64 {
	if hashInt.Sign() == 0 {
		return math.Inf(1)
	}
	f := new(big.Float).SetPrec(256).SetInt(diff1Target)
	f.Quo(f, new(big.Float).SetPrec(256).SetInt(hashInt))
	if multiplier != 1 {
		f.Mul(f, new(big.Float).SetPrec(256).SetFloat64(multiplier))
	}
	val, _ := f.Float64()
	return val
}

// hashToBig reads a raw digest as a little-endian 256-bit unsigned integer.
func hashToBig(hash []byte) *big.Int {
	return new(big.Int).SetBytes(reverseBytes(hash))
}

func doubleSHA256(b []byte) []byte {
	first := sha256Sum(b)
	second := sha256Sum(first[:])
	return second[:]
}

func reverseBytes(in []byte) []byte {
	out := append([]byte(nil), in...)
	slices.Reverse(out)
	return out
}

// putVarInt encodes v into dst and returns the number of bytes written.
func putVarInt(dst *[9]byte, v uint64) int {
	switch {
	case v < 0xfd:
		dst[0] = byte(v)
		return 1
	case v <= 0xffff:
		dst[0] = 0xfd
		binary.LittleEndian.PutUint16(dst[1:3], uint16(v))
		return 3
	case v <= 0xffffffff:
		dst[0] = 0xfe
		binary.LittleEndian.PutUint32(dst[1:5], uint32(v))
		return 5
	default:
		dst[0] = 0xff
		binary.LittleEndian.PutUint64(dst[1:9], v)
		return 9
	}
}

func writeVarInt(buf *bytes.Buffer, v uint64) {
	var tmp [9]byte
	n := putVarInt(&tmp, v)
	buf.Write(tmp[:n])
}

func appendVarInt(dst []byte, v uint64) []byte {
	var tmp [9]byte
	n := putVarInt(&tmp, v)
	return append(dst, tmp[:n]...)
}

func writeUint32LE(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func writeUint64LE(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}
