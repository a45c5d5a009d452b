package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fairledger/sidechain/core/store"
	"github.com/fairledger/sidechain/core/types"
	"github.com/fairledger/sidechain/executor"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	st := store.NewMemory()
	exec := executor.New(st, time.Second)
	l, err := New(t.TempDir(), "sidechain-test", st, exec)
	require.NoError(t, err)
	require.NoError(t, l.Start())
	t.Cleanup(func() { _ = l.Stop() })
	return l
}

func TestStartInsertsGenesisOnce(t *testing.T) {
	l := newTestLedger(t)

	b, ok, err := l.GetBlock(0)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, b.IsGenesis())

	require.NoError(t, l.Start())
	latest, ok, err := l.GetLatestBlock()
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, latest.IsGenesis())
}

func TestProduceBlockExecutesPendingAndAdvancesChain(t *testing.T) {
	l := newTestLedger(t)

	payload := `{"name":"counter","code":"YWN0aW9ucy5jcmVhdGVTU0MgPSBmdW5jdGlvbihwYXlsb2FkKSB7fTs="}`
	tx := types.NewTransaction(0, "deploy-1", "alice", types.StrPtr(ReservedContractsContract), types.StrPtr(DeployAction), &payload)
	l.Submit(tx)

	block, err := l.ProduceBlock(time.Now())
	require.NoError(t, err)
	require.Equal(t, uint64(1), block.BlockNumber)
	require.Len(t, block.Transactions, 1)
	require.NotEmpty(t, block.Transactions[0].Logs)

	latest, ok, err := l.GetLatestBlock()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, block.Hash, latest.Hash)
}

func TestProduceBlockWithNoPendingTransactionsStillAdvances(t *testing.T) {
	l := newTestLedger(t)

	block, err := l.ProduceBlock(time.Now())
	require.NoError(t, err)
	require.Equal(t, uint64(1), block.BlockNumber)
	require.Empty(t, block.Transactions)
}

func TestIsChainValidOnFreshChain(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.ProduceBlock(time.Now())
	require.NoError(t, err)
	_, err = l.ProduceBlock(time.Now())
	require.NoError(t, err)

	valid, err := l.IsChainValid()
	require.NoError(t, err)
	require.True(t, valid)
}

func TestReplayRebuildsIdenticalChain(t *testing.T) {
	l := newTestLedger(t)

	payload := `{"name":"counter","code":"YWN0aW9ucy5jcmVhdGVTU0MgPSBmdW5jdGlvbihwYXlsb2FkKSB7fTs="}`
	l.Submit(types.NewTransaction(0, "deploy-1", "alice", types.StrPtr(ReservedContractsContract), types.StrPtr(DeployAction), &payload))
	_, err := l.ProduceBlock(time.Now())
	require.NoError(t, err)

	before, ok, err := l.GetLatestBlock()
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, l.Replay())

	after, ok, err := l.GetLatestBlock()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, before.Hash, after.Hash)
}

func TestLockDirRejectsSecondLedgerOverSameDataDir(t *testing.T) {
	dir := t.TempDir()
	st1 := store.NewMemory()
	exec1 := executor.New(st1, time.Second)
	l1, err := New(dir, "sidechain-test", st1, exec1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l1.Stop() })

	st2 := store.NewMemory()
	exec2 := executor.New(st2, time.Second)
	_, err = New(dir, "sidechain-test", st2, exec2)
	require.Error(t, err)
}
