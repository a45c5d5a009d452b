package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBlockIsDeterministic(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	payload := `{"x":1}`
	tx := NewTransaction(0, "tx-1", "alice", StrPtr("contracts"), StrPtr("deploy"), &payload)
	tx.SetLogs(Logs{Events: []Event{{Event: "created", Data: "ok"}}})

	b1 := NewBlock(1, "prevhash", ts, []*Transaction{tx})
	b2 := NewBlock(1, "prevhash", ts, []*Transaction{tx})

	assert.Equal(t, b1.Hash, b2.Hash)
	assert.Equal(t, b1.MerkleRoot, b2.MerkleRoot)
	assert.NotEmpty(t, b1.Hash)
}

func TestNewBlockHashChangesWithPreviousHash(t *testing.T) {
	ts := time.Now()
	b1 := NewBlock(1, "a", ts, nil)
	b2 := NewBlock(1, "b", ts, nil)

	assert.NotEqual(t, b1.Hash, b2.Hash)
}

func TestGenesisIsBlockZero(t *testing.T) {
	g := Genesis("sidechain", time.Now())

	require.True(t, g.IsGenesis())
	assert.Equal(t, "0", g.PreviousHash)
	assert.Len(t, g.Transactions, 1)
	assert.Equal(t, "genesis", g.Transactions[0].ContractName())
}

func TestEmptyBlockHasEmptyMerkleRoot(t *testing.T) {
	b := NewBlock(1, "prev", time.Now(), nil)
	assert.Equal(t, "", b.MerkleRoot)
}
