package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairledger/sidechain/core/store"
	"github.com/fairledger/sidechain/core/types"
)

type fakeBus struct {
	params    store.Document
	schedules []store.Document
	witnesses map[string]store.Document
}

func (b *fakeBus) GetBlock(n uint64) (*types.Block, bool, error)        { return nil, false, nil }
func (b *fakeBus) GetLatestBlock() (*types.Block, bool, error)          { return nil, false, nil }
func (b *fakeBus) GetContract(name string) (*types.Contract, bool, error) { return nil, false, nil }

func (b *fakeBus) FindInTable(contract, table string, q store.Document) ([]store.Document, error) {
	if table == "schedules" {
		return b.schedules, nil
	}
	return nil, nil
}

func (b *fakeBus) FindOneInTable(contract, table string, q store.Document) (store.Document, bool, error) {
	switch table {
	case "params":
		return b.params, b.params != nil, nil
	case "witnesses":
		doc, ok := b.witnesses[q["account"].(string)]
		return doc, ok, nil
	}
	return nil, false, nil
}

func TestCurrentParamsReadsParamsTable(t *testing.T) {
	b := &fakeBus{params: store.Document{
		"round": uint64(4), "lastBlockRound": uint64(10),
		"lastVerifiedBlockNumber": uint64(9), "currentWitness": "alice",
	}}
	r := NewBusReader(b)

	p, err := r.CurrentParams()
	require.NoError(t, err)
	assert.Equal(t, Params{Round: 4, LastBlockRound: 10, LastVerifiedBlockNumber: 9, CurrentWitness: "alice"}, p)
}

func TestCurrentParamsMissingTableYieldsZeroValue(t *testing.T) {
	r := NewBusReader(&fakeBus{})
	p, err := r.CurrentParams()
	require.NoError(t, err)
	assert.Equal(t, Params{}, p)
}

func TestScheduleForResolvesWitnesses(t *testing.T) {
	b := &fakeBus{
		schedules: []store.Document{{"round": uint64(1), "witness": "alice"}},
		witnesses: map[string]store.Document{
			"alice": {"account": "alice", "ip": "10.0.0.1"},
		},
	}
	r := NewBusReader(b)

	ws, err := r.ScheduleFor(1)
	require.NoError(t, err)
	require.Len(t, ws, 1)
	assert.Equal(t, "alice", ws[0].Account)
	assert.Equal(t, "10.0.0.1", ws[0].IP)
}

func TestWitnessByAccountNotFound(t *testing.T) {
	r := NewBusReader(&fakeBus{witnesses: map[string]store.Document{}})
	_, ok, err := r.WitnessByAccount("bob")
	require.NoError(t, err)
	assert.False(t, ok)
}
