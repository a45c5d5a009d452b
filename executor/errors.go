package executor

import "github.com/pkg/errors"

// ErrTimeout marks spec.md §7's TimeoutError: the sandbox exceeded its
// jsVMTimeout wall-clock budget. It never escapes the Executor as a Go
// error in normal operation — it becomes a ContractError-kind entry in
// the transaction's Logs, per spec.md §4.2 ("a VM timeout is a fatal
// error for that transaction; its errors is set").
var ErrTimeout = errors.New("executor: vm timeout")

const (
	errContractAlreadyExists = "contract already exists"
	errContractDoesNotExist  = "contract doesn't exist"
	errCreateSSCForbidden    = "you cannot trigger the createSSC action"
)
