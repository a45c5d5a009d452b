package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func txWithHash(hash string) *Transaction {
	return &Transaction{Hash: hash}
}

func TestMerkleRootEmpty(t *testing.T) {
	assert.Equal(t, "", MerkleRoot(nil))
}

func TestMerkleRootSingle(t *testing.T) {
	tx := txWithHash("ab")
	// A single leaf is already the root and is not paired with anything;
	// the root is the leaf's hash normalized to 64 hex characters, so it
	// differs from the short "ab" it was built from.
	root := MerkleRoot([]*Transaction{tx})
	assert.NotEmpty(t, root)
	assert.NotEqual(t, tx.Hash, root)
}

func TestMerkleRootOrderSensitive(t *testing.T) {
	a := txWithHash("aa")
	b := txWithHash("bb")

	r1 := MerkleRoot([]*Transaction{a, b})
	r2 := MerkleRoot([]*Transaction{b, a})

	assert.NotEqual(t, r1, r2)
}

func TestMerkleRootOddCountIsDeterministic(t *testing.T) {
	txs := []*Transaction{txWithHash("a1"), txWithHash("a2"), txWithHash("a3")}

	r1 := MerkleRoot(txs)
	r2 := MerkleRoot(txs)
	assert.Equal(t, r1, r2)
}
