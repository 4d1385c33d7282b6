package stratumcore

import (
	"encoding/hex"
)

// MerkleTree holds the branch hashes needed to fold a coinbase hash into
// the merkle root of a fixed transaction set. All hashes are in internal
// byte order.
type MerkleTree struct {
	steps [][]byte
}

// newMerkleTree builds the branch list for a tree whose first leaf is left
// open for the coinbase.
func newMerkleTree(txids [][]byte) *MerkleTree {
	if len(txids) == 0 {
		return &MerkleTree{}
	}
	layer := make([][]byte, 1+len(txids))
	layer[0] = nil
	copy(layer[1:], txids)

	steps := make([][]byte, 0, 16)
	L := len(layer)
	for L > 1 {
		steps = append(steps, layer[1])
		if L%2 == 1 {
			layer = append(layer, layer[L-1])
			L++
		}
		// Index 1 is already spent as this level's branch; pair the rest.
		next := make([][]byte, 0, L/2)
		for i := 2; i+1 < L; i += 2 {
			joined := append(append([]byte{}, layer[i]...), layer[i+1]...)
			next = append(next, doubleSHA256(joined))
		}
		layer = append([][]byte{nil}, next...)
		L = len(layer)
	}
	return &MerkleTree{steps: steps}
}

// WithFirst folds first into the branch list and returns the merkle root.
func (m *MerkleTree) WithFirst(first []byte) []byte {
	root := append([]byte(nil), first...)
	var concat [64]byte
	for _, step := range m.steps {
		copy(concat[:32], root)
		copy(concat[32:], step)
		root = doubleSHA256(concat[:])
	}
	return root
}

// Branches returns the branch hashes hex encoded, as sent in mining.notify.
func (m *MerkleTree) Branches() []string {
	out := make([]string, len(m.steps))
	for i, s := range m.steps {
		out[i] = hex.EncodeToString(s)
	}
	return out
}
