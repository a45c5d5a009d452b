// Package store defines the persistence surface the Ledger and Executor
// both depend on. The document store itself
// (findInTable/insert/getCollection, persistence to disk) is an external
// collaborator per spec.md §1; Store is the narrow interface this core
// needs from it, grounded on the shape of the teacher's
// fairnode/fairdb.FairnodeDB interface.
package store

import (
	"github.com/fairledger/sidechain/core/types"
)

// Document is a single stored row: an untyped key/value map, matching the
// document-store model spec.md assumes (findInTable/insert semantics).
type Document map[string]interface{}

// Store is the persistence surface the Ledger and Executor depend on. It
// is satisfied by Memory (tests, replay) and Mongo (production).
type Store interface {
	Start() error
	Stop() error

	// Reset wipes all collections to empty; used by replay before
	// reinserting the genesis block.
	Reset() error

	SaveBlock(b *types.Block) error
	GetBlock(blockNumber uint64) (*types.Block, bool, error)
	LatestBlock() (*types.Block, bool, error)
	ChainLength() (uint64, error)

	SaveContract(c *types.Contract) error
	GetContract(name string) (*types.Contract, bool, error)
	ContractExists(name string) (bool, error)

	// CreateTable is idempotent: creating an already-existing table
	// simply returns the existing one (spec.md §4.2).
	CreateTable(contract, table string) error
	TableExists(contract, table string) (bool, error)

	Insert(contract, table string, doc Document) error
	FindInTable(contract, table string, query Document) ([]Document, error)
	FindOneInTable(contract, table string, query Document) (Document, bool, error)
}
