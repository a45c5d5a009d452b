// Package bus is the in-process request/reply contract between the
// Ledger/DB half of the node and the Round Coordinator/P2P half,
// mirroring the teacher's fairnode/fairdb split into two cooperating
// processes talking over a typed bus (spec.md §5: "two cooperating
// processes ... communicate by a request/reply message bus"). Here both
// halves run in one process, but the Coordinator talks to the Ledger
// only through this narrow interface, never by holding a *ledger.Ledger
// directly — so the split could become a real process boundary later
// without touching coordinator code.
package bus

import (
	"github.com/fairledger/sidechain/core/ledger"
	"github.com/fairledger/sidechain/core/store"
	"github.com/fairledger/sidechain/core/types"
)

// Bus is everything the Round Coordinator needs to read from the
// Ledger's database: block lookups for round-hash computation, and the
// cross-contract table queries needed to read the witnesses/schedules/
// params tables (spec.md §6's RPC surface, reused rather than
// duplicated).
type Bus interface {
	GetBlock(blockNumber uint64) (*types.Block, bool, error)
	GetLatestBlock() (*types.Block, bool, error)
	FindInTable(contract, table string, query store.Document) ([]store.Document, error)
	FindOneInTable(contract, table string, query store.Document) (store.Document, bool, error)
	GetContract(name string) (*types.Contract, bool, error)
}

// LedgerBus implements Bus directly against a Ledger and the Store it
// was constructed with. It performs no serialization of its own beyond
// what Ledger and Store already provide — the "request/reply" framing
// of spec.md §5 is the Go method call itself; a future out-of-process
// split would reintroduce real framing at this seam only.
type LedgerBus struct {
	ledger *ledger.Ledger
	store  store.Store
}

// NewLedgerBus builds a Bus backed by l for block reads and st for table
// reads. st is normally the same Store l itself was constructed with.
func NewLedgerBus(l *ledger.Ledger, st store.Store) *LedgerBus {
	return &LedgerBus{ledger: l, store: st}
}

func (b *LedgerBus) GetBlock(blockNumber uint64) (*types.Block, bool, error) {
	return b.ledger.GetBlock(blockNumber)
}

func (b *LedgerBus) GetLatestBlock() (*types.Block, bool, error) {
	return b.ledger.GetLatestBlock()
}

func (b *LedgerBus) FindInTable(contract, table string, query store.Document) ([]store.Document, error) {
	return b.store.FindInTable(contract, table, query)
}

func (b *LedgerBus) FindOneInTable(contract, table string, query store.Document) (store.Document, bool, error) {
	return b.store.FindOneInTable(contract, table, query)
}

func (b *LedgerBus) GetContract(name string) (*types.Contract, bool, error) {
	return b.store.GetContract(name)
}
