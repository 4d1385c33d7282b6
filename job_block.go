package stratumcore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
)

// blockBufferPool reuses buffers for raw block assembly.
var blockBufferPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// BlockFinalizer completes the block behind a header. Building the full
// block is only worth doing once a share is known to meet the network target.
type BlockFinalizer struct {
	job      *Job
	header   []byte
	coinbase []byte
}

// Finalize serializes the full block.
func (f *BlockFinalizer) Finalize() ([]byte, error) {
	return f.job.SerializeBlock(f.header, f.coinbase)
}

// BuildHeader assembles the 80-byte block header for a submission and a
// finalizer for the matching block. merkleRootHex is the root in display
// (reversed) byte order; ntime and nonce are the miner's big-endian hex.
//
// The header is laid out big-endian field by field and reversed as a whole:
//
//	[0:4]   nonce
//	[4:8]   bits
//	[8:12]  ntime
//	[12:44] merkle root (display order)
//	[44:76] previous block hash (display order)
//	[76:80] version
//
// which yields the canonical little-endian serialization after reversal.
func (job *Job) BuildHeader(coinbase []byte, merkleRootHex, ntimeHex, nonceHex string, versionBits uint32) ([]byte, *BlockFinalizer, error) {
	var hdr [80]byte
	if err := decodeHexToFixedBytes(hdr[0:4], nonceHex); err != nil {
		return nil, nil, fmt.Errorf("decode nonce: %w", err)
	}
	copy(hdr[4:8], job.bitsBytes[:])
	if err := decodeHexToFixedBytes(hdr[8:12], ntimeHex); err != nil {
		return nil, nil, fmt.Errorf("decode ntime: %w", err)
	}
	if err := decodeHexToFixedBytes(hdr[12:44], merkleRootHex); err != nil {
		return nil, nil, fmt.Errorf("decode merkle root: %w", err)
	}
	copy(hdr[44:76], job.prevHashBytes[:])
	binary.BigEndian.PutUint32(hdr[76:80], job.rolledVersion(versionBits))

	for i := 0; i < 40; i++ {
		hdr[i], hdr[79-i] = hdr[79-i], hdr[i]
	}

	header := hdr[:]
	return header, &BlockFinalizer{job: job, header: header, coinbase: coinbase}, nil
}

// SerializeBlock concatenates the header, transaction count, coinbase and
// the template's transactions.
func (job *Job) SerializeBlock(header, coinbase []byte) ([]byte, error) {
	if len(header) != 80 {
		return nil, fmt.Errorf("header must be 80 bytes, got %d", len(header))
	}
	if len(coinbase) < 10 {
		return nil, fmt.Errorf("coinbase too short: %d bytes", len(coinbase))
	}

	buf := blockBufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer blockBufferPool.Put(buf)

	buf.Write(header)
	writeVarInt(buf, uint64(1+len(job.transactions)))
	if job.witnessCoinbase {
		writeWitnessCoinbase(buf, coinbase)
	} else {
		buf.Write(coinbase)
	}
	for _, tx := range job.transactions {
		buf.Write(tx.raw)
	}
	return append([]byte(nil), buf.Bytes()...), nil
}

// writeWitnessCoinbase writes coinbase in BIP144 form with a single
// 32-byte zero witness reserved value.
func writeWitnessCoinbase(buf *bytes.Buffer, coinbase []byte) {
	body := coinbase[4 : len(coinbase)-4]
	buf.Write(coinbase[:4])
	buf.Write([]byte{0x00, 0x01})
	buf.Write(body)
	buf.WriteByte(0x01)
	buf.WriteByte(0x20)
	buf.Write(make([]byte, 32))
	buf.Write(coinbase[len(coinbase)-4:])
}
