// Package types defines the sidechain's wire/storage data model: the
// immutable Transaction and Block records of spec.md §3, their hashing and
// Merkle commitment rules, and the genesis block. It replaces the
// teacher's Ethereum-shaped types (RLP-encoded headers, Merkle-Patricia
// tries, uncles/voters) with the flatter JSON+SHA-256 model this sidechain
// actually specifies, while keeping the teacher's habit of a Hash() with a
// documented invariant and small accessor methods.
package types

import (
	"encoding/json"
	"strconv"

	"github.com/fairledger/sidechain/common"
	"github.com/fairledger/sidechain/crypto"
)

// Event is a single {event, data} entry appended by the executor's emit
// host call (spec.md §4.2).
type Event struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Logs is a transaction's execution result, populated exactly once after
// execution (spec.md §3). Both fields are omitted from the canonical JSON
// encoding when empty, mirroring the reference's optional {errors?,
// events?} shape.
type Logs struct {
	Errors []string `json:"errors,omitempty"`
	Events []Event  `json:"events,omitempty"`
}

// IsEmpty reports whether the log carries neither an error nor an event.
func (l Logs) IsEmpty() bool { return len(l.Errors) == 0 && len(l.Events) == 0 }

// CanonicalJSON returns the logs encoded the same way they are persisted.
func (l Logs) CanonicalJSON() string {
	b, _ := json.Marshal(l)
	return string(b)
}

// Transaction is immutable once constructed: every field but Hash and Logs
// is set at creation, and SetLogs is called exactly once, after execution.
type Transaction struct {
	RefAnchorBlockNumber uint64  `json:"refAnchorBlockNumber"`
	TransactionID        string  `json:"transactionId"`
	Sender               string  `json:"sender"`
	Contract             *string `json:"contract"`
	Action               *string `json:"action"`
	Payload              *string `json:"payload"`
	Hash                 string  `json:"hash"`
	Logs                 string  `json:"logs"`
}

// NewTransaction builds a Transaction and computes its Hash. Logs starts
// as the empty log object; the ledger fills it in once, during block
// production, via SetLogs.
func NewTransaction(refAnchorBlockNumber uint64, transactionID, sender string, contract, action, payload *string) *Transaction {
	tx := &Transaction{
		RefAnchorBlockNumber: refAnchorBlockNumber,
		TransactionID:        transactionID,
		Sender:               sender,
		Contract:             contract,
		Action:               action,
		Payload:              payload,
		Logs:                 Logs{}.CanonicalJSON(),
	}
	tx.Hash = tx.computeHash().Hex()
	return tx
}

// computeHash implements spec.md §3's Transaction hash invariant: SHA-256
// over the lexical concatenation of every field in declared order, with
// the literal text "null" standing in for an absent optional field.
func (tx *Transaction) computeHash() common.Hash {
	return crypto.Sha256(
		[]byte(strconv.FormatUint(tx.RefAnchorBlockNumber, 10)),
		[]byte(tx.TransactionID),
		[]byte(tx.Sender),
		[]byte(nullable(tx.Contract)),
		[]byte(nullable(tx.Action)),
		[]byte(nullable(tx.Payload)),
	)
}

func nullable(s *string) string {
	if s == nil {
		return "null"
	}
	return *s
}

// SetLogs attaches the execution result. Only the ledger's block
// production path calls this, and only once per transaction.
func (tx *Transaction) SetLogs(l Logs) {
	tx.Logs = l.CanonicalJSON()
}

// ContractName returns the deployed-or-invoked contract name, or "" if the
// transaction carries none.
func (tx *Transaction) ContractName() string {
	if tx.Contract == nil {
		return ""
	}
	return *tx.Contract
}

// ActionName returns the requested action, or "" if the transaction
// carries none.
func (tx *Transaction) ActionName() string {
	if tx.Action == nil {
		return ""
	}
	return *tx.Action
}

// PayloadJSON returns the raw payload string, or "" if absent.
func (tx *Transaction) PayloadJSON() string {
	if tx.Payload == nil {
		return ""
	}
	return *tx.Payload
}

// StrPtr is a small helper for building optional Transaction fields from a
// literal, used throughout the tests.
func StrPtr(s string) *string { return &s }
