// Package executor is the deterministic smart-contract runtime of
// spec.md §4.2: it wraps submitted contract source in a fixed dispatch
// template, runs it inside a fresh, capability-limited goja.Runtime per
// call, and exposes exactly the host API table spec.md §4.2 lists.
//
// github.com/dop251/goja is a direct dependency of the teacher's go.mod
// (ordinarily wired into a JS console/REPL package not present in this
// retrieval slice); here it is repurposed as the sandboxed execution
// engine itself, which is the idiomatic embeddable-interpreter choice
// spec.md §9's Design Notes calls for ("use an embedded interpreter ...
// with a strict capability-only host API").
package executor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/dop251/goja"
	"github.com/mohae/deepcopy"
	"github.com/pkg/errors"
	log "gopkg.in/inconshreveable/log15.v2"

	"github.com/fairledger/sidechain/core/store"
	"github.com/fairledger/sidechain/core/types"
)

var logger = log.New("module", "executor")

// maxCallDepth bounds executeSmartContract's reentrancy, per spec.md §9's
// explicit recommendation ("absent in the reference — strongly
// recommended to add; pick e.g. depth ≤ 4").
const maxCallDepth = 4

// dispatchTemplate is the fixed wrapping spec.md §4.2 specifies. The
// wrapped source — never the raw user source — is what is stored and
// executed on every call, so dispatch cannot be bypassed and createSSC is
// reachable only through the deploy path that sets action="createSSC".
const dispatchTemplate = `
let actions = {};
%s
if (action && typeof action === 'string' && typeof actions[action] === 'function') {
  if (action !== 'createSSC') { actions.createSSC = null; }
  actions[action](payload);
}
`

var contractNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Executor runs contract code deterministically against a Store.
type Executor struct {
	store     store.Store
	vmTimeout time.Duration
}

// New creates an Executor bounded by vmTimeout per invocation.
func New(s store.Store, vmTimeout time.Duration) *Executor {
	return &Executor{store: s, vmTimeout: vmTimeout}
}

// deployPayload is the JSON shape expected on a deploy transaction's
// payload: {"name": "...", "code": "<base64>"}.
type deployPayload struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// Deploy runs tx as a deploy: it creates the contract record and runs its
// createSSC handler exactly once. Errors never escape as Go errors for
// malformed/duplicate input — they land in the returned Logs, per
// spec.md §4.2/§7.
func (e *Executor) Deploy(tx *types.Transaction) types.Logs {
	var dp deployPayload
	if err := json.Unmarshal([]byte(tx.PayloadJSON()), &dp); err != nil {
		return errLogs(fmt.Sprintf("ValidationError: %s", err.Error()))
	}
	if dp.Name == "" || dp.Code == "" {
		return errLogs("ValidationError: name and code are required")
	}
	if !contractNamePattern.MatchString(dp.Name) {
		return errLogs("ValidationError: invalid contract name")
	}

	exists, err := e.store.ContractExists(dp.Name)
	if err != nil {
		return errLogs(fmt.Sprintf("ValidationError: %s", err.Error()))
	}
	if exists {
		return errLogs(errContractAlreadyExists)
	}

	userCode, err := base64.StdEncoding.DecodeString(dp.Code)
	if err != nil {
		return errLogs(fmt.Sprintf("ValidationError: %s", err.Error()))
	}

	wrapped := fmt.Sprintf(dispatchTemplate, string(userCode))
	contract := types.NewContract(dp.Name, tx.Sender, wrapped)

	logs := types.Logs{}
	call := &call{
		executor: e,
		contract: contract,
		mode:     modeDeploy,
		action:   "createSSC",
		payload:  tx.PayloadJSON(),
		refBlock: tx.RefAnchorBlockNumber,
		logs:     &logs,
	}
	if err := e.run(wrapped, call); err != nil {
		appendRuntimeError(&logs, err)
	}

	if err := e.store.SaveContract(contract); err != nil {
		appendRuntimeError(&logs, err)
	}
	return logs
}

// Execute runs tx as an ordinary contract action call.
func (e *Executor) Execute(tx *types.Transaction) types.Logs {
	if tx.ActionName() == "createSSC" {
		return errLogs(errCreateSSCForbidden)
	}

	contract, ok, err := e.store.GetContract(tx.ContractName())
	if err != nil {
		return errLogs(fmt.Sprintf("ValidationError: %s", err.Error()))
	}
	if !ok {
		return errLogs(errContractDoesNotExist)
	}
	contract.AfterLoad()

	logs := types.Logs{}
	call := &call{
		executor: e,
		contract: contract,
		mode:     modeExecute,
		sender:   tx.Sender,
		action:   tx.ActionName(),
		payload:  tx.PayloadJSON(),
		refBlock: tx.RefAnchorBlockNumber,
		logs:     &logs,
	}
	if err := e.run(contract.Code, call); err != nil {
		appendRuntimeError(&logs, err)
	}
	return logs
}

// run executes source inside a fresh goja.Runtime bound to call's host
// API, enforcing the vmTimeout wall-clock budget.
func (e *Executor) run(source string, c *call) error {
	vm := goja.New()
	if err := c.bind(vm); err != nil {
		return err
	}

	timer := time.AfterFunc(e.vmTimeout, func() {
		vm.Interrupt("vm timeout exceeded")
	})
	defer timer.Stop()

	_, err := vm.RunString(source)
	if err != nil {
		if _, ok := err.(*goja.InterruptedError); ok {
			return errors.Wrap(ErrTimeout, "execution exceeded jsVMTimeout")
		}
	}
	return err
}

func errLogs(msg string) types.Logs {
	return types.Logs{Errors: []string{msg}}
}

// appendRuntimeError formats a thrown/interrupted error the way
// spec.md §4.2 requires: "<ErrorKind>: <message>".
func appendRuntimeError(logs *types.Logs, err error) {
	kind := "ContractError"
	if errors.Is(err, ErrTimeout) {
		kind = "TimeoutError"
	} else if jsErr, ok := err.(*goja.Exception); ok {
		logs.Errors = append(logs.Errors, fmt.Sprintf("ContractError: %s", jsErr.Value().String()))
		return
	}
	logs.Errors = append(logs.Errors, fmt.Sprintf("%s: %s", kind, err.Error()))
}

// deepCopyJSON parses payloadJSON and returns a deep copy safe to hand to
// the sandbox, per spec.md §4.2's "payload: deep copy of decoded JSON
// payload" requirement. An empty/invalid payload yields nil, which goja
// exposes as JS null.
func deepCopyJSON(payloadJSON string) interface{} {
	if payloadJSON == "" {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal([]byte(payloadJSON), &v); err != nil {
		return nil
	}
	return deepcopy.Copy(v)
}
