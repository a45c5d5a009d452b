package executor

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairledger/sidechain/core/store"
	"github.com/fairledger/sidechain/core/types"
)

func deployTx(t *testing.T, name, code string) *types.Transaction {
	t.Helper()
	payload := `{"name":"` + name + `","code":"` + base64.StdEncoding.EncodeToString([]byte(code)) + `"}`
	return types.NewTransaction(0, "deploy-1", "alice", types.StrPtr("contracts"), types.StrPtr("deploy"), &payload)
}

const counterSource = `
actions.createSSC = function(payload) {};
actions.increment = function(payload) { emit("incremented", {}); };
`

func TestDeployCreatesContractAndRunsCreateSSC(t *testing.T) {
	s := store.NewMemory()
	e := New(s, time.Second)

	logs := e.Deploy(deployTx(t, "counter", counterSource))

	require.True(t, logs.IsEmpty(), "unexpected errors: %v", logs.Errors)
	exists, err := s.ContractExists("counter")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestDeployRejectsDuplicateName(t *testing.T) {
	s := store.NewMemory()
	e := New(s, time.Second)

	e.Deploy(deployTx(t, "counter", counterSource))
	logs := e.Deploy(deployTx(t, "counter", counterSource))

	require.Len(t, logs.Errors, 1)
	assert.Contains(t, logs.Errors[0], "already exists")
}

func TestDeployRejectsInvalidContractName(t *testing.T) {
	s := store.NewMemory()
	e := New(s, time.Second)

	logs := e.Deploy(deployTx(t, "not a valid name!", counterSource))

	require.Len(t, logs.Errors, 1)
	assert.Contains(t, logs.Errors[0], "ValidationError")
}

func TestExecuteForbidsCreateSSC(t *testing.T) {
	s := store.NewMemory()
	e := New(s, time.Second)
	e.Deploy(deployTx(t, "counter", counterSource))

	payload := `{}`
	tx := types.NewTransaction(0, "tx-2", "alice", types.StrPtr("counter"), types.StrPtr("createSSC"), &payload)
	logs := e.Execute(tx)

	require.Len(t, logs.Errors, 1)
	assert.Contains(t, logs.Errors[0], "createSSC")
}

func TestExecuteRunsDeclaredAction(t *testing.T) {
	s := store.NewMemory()
	e := New(s, time.Second)
	e.Deploy(deployTx(t, "counter", counterSource))

	payload := `{}`
	tx := types.NewTransaction(0, "tx-2", "alice", types.StrPtr("counter"), types.StrPtr("increment"), &payload)
	logs := e.Execute(tx)

	require.Empty(t, logs.Errors, "unexpected errors: %v", logs.Errors)
	require.Len(t, logs.Events, 1)
	assert.Equal(t, "incremented", logs.Events[0].Event)
}

func TestExecuteUnknownContractIsLogged(t *testing.T) {
	s := store.NewMemory()
	e := New(s, time.Second)

	payload := `{}`
	tx := types.NewTransaction(0, "tx-1", "alice", types.StrPtr("missing"), types.StrPtr("anything"), &payload)
	logs := e.Execute(tx)

	require.Len(t, logs.Errors, 1)
	assert.Contains(t, logs.Errors[0], "doesn't exist")
}

func TestExecuteTimesOutOnInfiniteLoop(t *testing.T) {
	s := store.NewMemory()
	e := New(s, 50*time.Millisecond)
	e.Deploy(deployTx(t, "looper", `
actions.createSSC = function(payload) {};
actions.spin = function(payload) { while (true) {} };
`))

	payload := `{}`
	tx := types.NewTransaction(0, "tx-2", "alice", types.StrPtr("looper"), types.StrPtr("spin"), &payload)
	logs := e.Execute(tx)

	require.Len(t, logs.Errors, 1)
	assert.Contains(t, logs.Errors[0], "TimeoutError")
}
