package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTransactionHashDeterministic(t *testing.T) {
	payload := `{"a":1}`
	tx1 := NewTransaction(5, "tx-1", "alice", StrPtr("wallet"), StrPtr("transfer"), &payload)
	tx2 := NewTransaction(5, "tx-1", "alice", StrPtr("wallet"), StrPtr("transfer"), &payload)

	assert.Equal(t, tx1.Hash, tx2.Hash)
}

func TestNewTransactionHashDistinguishesNilFromEmptyString(t *testing.T) {
	empty := ""
	txNilContract := NewTransaction(0, "tx-1", "alice", nil, StrPtr("a"), nil)
	txEmptyContract := NewTransaction(0, "tx-1", "alice", &empty, StrPtr("a"), nil)

	assert.NotEqual(t, txNilContract.Hash, txEmptyContract.Hash)
}

func TestTransactionAccessorsHandleNilFields(t *testing.T) {
	tx := NewTransaction(0, "tx-1", "alice", nil, nil, nil)

	assert.Equal(t, "", tx.ContractName())
	assert.Equal(t, "", tx.ActionName())
	assert.Equal(t, "", tx.PayloadJSON())
}

func TestSetLogsUpdatesCanonicalJSON(t *testing.T) {
	tx := NewTransaction(0, "tx-1", "alice", StrPtr("c"), StrPtr("a"), nil)
	before := tx.Logs

	tx.SetLogs(Logs{Errors: []string{"boom"}})

	assert.NotEqual(t, before, tx.Logs)
	assert.Contains(t, tx.Logs, "boom")
}

func TestLogsIsEmpty(t *testing.T) {
	assert.True(t, Logs{}.IsEmpty())
	assert.False(t, Logs{Errors: []string{"x"}}.IsEmpty())
	assert.False(t, Logs{Events: []Event{{Event: "e"}}}.IsEmpty())
}
