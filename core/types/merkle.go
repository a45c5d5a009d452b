package types

import (
	"github.com/fairledger/sidechain/common"
	"github.com/fairledger/sidechain/crypto"
)

// MerkleRoot computes the Merkle tree over the hashes of txs, pairing
// left-to-right; an odd trailing node is paired with itself. Recursion
// continues until a single root remains. An empty transaction set yields
// the empty string, per spec.md §3.
func MerkleRoot(txs []*Transaction) string {
	if len(txs) == 0 {
		return ""
	}

	level := make([]common.Hash, len(txs))
	for i, tx := range txs {
		level[i] = common.HexToHash(tx.Hash)
	}

	for len(level) > 1 {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, crypto.Sha256(left.Bytes(), right.Bytes()))
		}
		level = next
	}

	return level[0].Hex()
}
