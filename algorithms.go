package stratumcore

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// Algorithm is one entry of the hash-function table.
type Algorithm struct {
	Name string
	// Multiplier scales share difficulty for algorithms whose diff1 differs
	// from sha256d's.
	Multiplier float64
	// HeaderHash hashes an 80-byte header for proof-of-work.
	HeaderHash func(header []byte, ntime uint32) ([]byte, error)
	// CoinbaseHash hashes the serialized coinbase into a merkle leaf.
	CoinbaseHash func(tx []byte) []byte
	// BlockHash returns the canonical block hash in display order.
	BlockHash func(header []byte) string
}

func sha256dHeaderHash(header []byte, _ uint32) ([]byte, error) {
	return doubleSHA256(header), nil
}

func sha256dBlockHash(header []byte) string {
	return hex.EncodeToString(reverseBytes(doubleSHA256(header)))
}

func scryptHeaderHash(header []byte, _ uint32) ([]byte, error) {
	return scrypt.Key(header, header, 1024, 1, 1, 32)
}

var algorithms = map[string]Algorithm{
	"sha256d": {
		Name:         "sha256d",
		Multiplier:   1,
		HeaderHash:   sha256dHeaderHash,
		CoinbaseHash: doubleSHA256,
		BlockHash:    sha256dBlockHash,
	},
	"scrypt": {
		Name:         "scrypt",
		Multiplier:   65536,
		HeaderHash:   scryptHeaderHash,
		CoinbaseHash: doubleSHA256,
		BlockHash:    sha256dBlockHash,
	},
}

// DefaultAlgorithm is double SHA-256.
func DefaultAlgorithm() Algorithm {
	return algorithms["sha256d"]
}

// LookupAlgorithm returns the table entry for name. An empty name selects
// sha256d.
func LookupAlgorithm(name string) (Algorithm, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "sha256" {
		name = "sha256d"
	}
	algo, ok := algorithms[name]
	if !ok {
		return Algorithm{}, fmt.Errorf("unsupported algorithm %q (known: %s)", name, strings.Join(AlgorithmNames(), ", "))
	}
	return algo, nil
}

func AlgorithmNames() []string {
	names := make([]string, 0, len(algorithms))
	for name := range algorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
