package store

import (
	"sort"
	"sync"

	"github.com/fairledger/sidechain/core/types"
)

// Memory is an in-memory Store, grounded on the teacher's
// ethdb/memorydb.MemDatabase locking pattern (a single RWMutex guarding a
// map). It backs tests and any node run without a Mongo URL; Reset
// empties it, as Ledger.Replay does first with whichever Store the
// ledger was built on.
//
// Query matching is intentionally simple exact-field equality: the
// document-store's full query language is an external collaborator
// (spec.md §1) this core does not design; exact-match is enough to
// exercise every findInTable/findOneInTable call the executor's host API
// makes.
type Memory struct {
	mu sync.RWMutex

	blocks    map[uint64]*types.Block
	contracts map[string]*types.Contract
	tables    map[string][]Document // key: "<contract>_<table>"
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		blocks:    make(map[uint64]*types.Block),
		contracts: make(map[string]*types.Contract),
		tables:    make(map[string][]Document),
	}
}

func (m *Memory) Start() error { return nil }
func (m *Memory) Stop() error  { return nil }

func (m *Memory) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks = make(map[uint64]*types.Block)
	m.contracts = make(map[string]*types.Contract)
	m.tables = make(map[string][]Document)
	return nil
}

func (m *Memory) SaveBlock(b *types.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[b.BlockNumber] = b
	return nil
}

func (m *Memory) GetBlock(blockNumber uint64) (*types.Block, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blocks[blockNumber]
	return b, ok, nil
}

func (m *Memory) LatestBlock() (*types.Block, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.blocks) == 0 {
		return nil, false, nil
	}
	nums := make([]uint64, 0, len(m.blocks))
	for n := range m.blocks {
		nums = append(nums, n)
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	last := nums[len(nums)-1]
	return m.blocks[last], true, nil
}

func (m *Memory) ChainLength() (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.blocks)), nil
}

func (m *Memory) SaveContract(c *types.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contracts[c.Name] = c
	return nil
}

func (m *Memory) GetContract(name string) (*types.Contract, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.contracts[name]
	return c, ok, nil
}

func (m *Memory) ContractExists(name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.contracts[name]
	return ok, nil
}

func (m *Memory) CreateTable(contract, table string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fq := types.QualifiedTableName(contract, table)
	if _, ok := m.tables[fq]; !ok {
		m.tables[fq] = nil
	}
	return nil
}

func (m *Memory) TableExists(contract, table string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.tables[types.QualifiedTableName(contract, table)]
	return ok, nil
}

func (m *Memory) Insert(contract, table string, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fq := types.QualifiedTableName(contract, table)
	cp := make(Document, len(doc))
	for k, v := range doc {
		cp[k] = v
	}
	m.tables[fq] = append(m.tables[fq], cp)
	return nil
}

func (m *Memory) FindInTable(contract, table string, query Document) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fq := types.QualifiedTableName(contract, table)
	var out []Document
	for _, doc := range m.tables[fq] {
		if matches(doc, query) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (m *Memory) FindOneInTable(contract, table string, query Document) (Document, bool, error) {
	docs, err := m.FindInTable(contract, table, query)
	if err != nil || len(docs) == 0 {
		return nil, false, err
	}
	return docs[0], true, nil
}

func matches(doc, query Document) bool {
	for k, v := range query {
		if doc[k] != v {
			return false
		}
	}
	return true
}
