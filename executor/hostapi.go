package executor

import (
	"encoding/json"
	"fmt"

	"github.com/dop251/goja"

	"github.com/fairledger/sidechain/core/store"
	"github.com/fairledger/sidechain/core/types"
	"github.com/fairledger/sidechain/executor/currency"
)

type mode int

const (
	modeDeploy mode = iota
	modeExecute
)

// call carries one sandbox invocation's bindings: who is calling, which
// contract, what the host API is allowed to do, and where its logs go.
// A fresh call (and a fresh goja.Runtime) is created for every
// executeSmartContract reentry, per spec.md §9's recommended
// re-architecture of the reference's implicit reentrancy.
type call struct {
	executor *Executor
	contract *types.Contract
	mode     mode

	sender   string
	action   string
	payload  string // raw JSON, as stored on the Transaction
	refBlock uint64

	logs *types.Logs

	depth     int
	callStack []string
}

func (c *call) owner() string {
	if c.contract == nil {
		return ""
	}
	return c.contract.Owner
}

// bind installs the full host API table of spec.md §4.2 onto vm.
func (c *call) bind(vm *goja.Runtime) error {
	if c.mode == modeExecute {
		vm.Set("sender", c.sender)
		vm.Set("owner", c.owner())
	}
	vm.Set("refSteemBlockNumber", c.refBlock)
	vm.Set("refAnchorBlockNumber", c.refBlock)
	vm.Set("action", c.action)
	vm.Set("payload", deepCopyJSON(c.payload))

	vm.Set("debug", c.hostDebug)
	vm.Set("emit", c.hostEmit)
	vm.Set("assert", c.hostAssert)
	vm.Set("executeSmartContract", c.hostExecuteSmartContract)
	vm.Set("db", c.buildDB(vm))
	vm.Set("currency", c.buildCurrency(vm))

	return nil
}

func (c *call) hostDebug(msg interface{}) {
	logger.Debug("contract debug", "contract", c.contractName(), "msg", msg)
}

func (c *call) contractName() string {
	if c.contract == nil {
		return ""
	}
	return c.contract.Name
}

// hostEmit implements emit(event, data): appends {event, data} to
// logs.events iff event is a string (spec.md §4.2).
func (c *call) hostEmit(event goja.Value, data goja.Value) {
	if event == nil || goja.IsUndefined(event) || goja.IsNull(event) {
		return
	}
	s, ok := event.Export().(string)
	if !ok {
		return
	}
	c.logs.Events = append(c.logs.Events, types.Event{Event: s, Data: exportOrNil(data)})
}

// hostAssert implements assert(cond, msg): records msg as an error iff
// cond is falsy and msg is a string, and always returns cond's
// truthiness as a boolean — falsy values never halt execution, the
// contract decides (spec.md §4.2).
func (c *call) hostAssert(cond goja.Value, msg goja.Value) bool {
	truthy := cond != nil && cond.ToBoolean()
	if !truthy {
		if s, ok := exportOrNil(msg).(string); ok {
			c.logs.Errors = append(c.logs.Errors, s)
		}
	}
	return truthy
}

func exportOrNil(v goja.Value) interface{} {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}

// hostExecuteSmartContract implements the reentrant call of spec.md §4.2:
// forwards the distinguished value/auth fields from the outer payload,
// preserves the outer sender, propagates the callee's logs into the
// outer logs, and returns a fresh {errors?, events?} object to the
// caller.
func (c *call) hostExecuteSmartContract(contractName, actionName string, paramsJSON string) map[string]interface{} {
	if actionName == "createSSC" {
		return map[string]interface{}{"errors": []string{errCreateSSCForbidden}}
	}
	if c.depth+1 >= maxCallDepth {
		return map[string]interface{}{"errors": []string{"executeSmartContract: max call depth exceeded"}}
	}

	target, ok, err := c.executor.store.GetContract(contractName)
	if err != nil || !ok {
		return map[string]interface{}{"errors": []string{errContractDoesNotExist}}
	}
	target.AfterLoad()

	// Open question resolved (see DESIGN.md): a null/invalid paramsJson
	// is treated as an empty object rather than dereferenced, since the
	// reference's behavior here is explicitly flagged as ambiguous.
	sanitized := map[string]interface{}{}
	if paramsJSON != "" {
		_ = json.Unmarshal([]byte(paramsJSON), &sanitized)
	}
	if sanitized == nil { // paramsJson "null" unmarshals to a nil map
		sanitized = map[string]interface{}{}
	}

	if outerPayload, ok := c.outerPayloadMap(); ok {
		for _, field := range []string{"amountSTEEMSBD", "recipient", "isSignedWithActiveKey"} {
			if v, present := outerPayload[field]; present {
				sanitized[field] = v
			}
		}
	}

	innerPayload, _ := json.Marshal(sanitized)
	innerLogs := types.Logs{}
	inner := &call{
		executor:  c.executor,
		contract:  target,
		mode:      modeExecute,
		sender:    c.sender,
		action:    actionName,
		payload:   string(innerPayload),
		refBlock:  c.refBlock,
		logs:      &innerLogs,
		depth:     c.depth + 1,
		callStack: append(append([]string{}, c.callStack...), c.contractName()),
	}

	if err := c.executor.run(target.Code, inner); err != nil {
		appendRuntimeError(&innerLogs, err)
	}

	c.logs.Errors = append(c.logs.Errors, innerLogs.Errors...)
	c.logs.Events = append(c.logs.Events, innerLogs.Events...)

	result := map[string]interface{}{}
	if len(innerLogs.Errors) > 0 {
		result["errors"] = innerLogs.Errors
	}
	if len(innerLogs.Events) > 0 {
		result["events"] = innerLogs.Events
	}
	return result
}

func (c *call) outerPayloadMap() (map[string]interface{}, bool) {
	if c.payload == "" {
		return nil, false
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(c.payload), &m); err != nil {
		return nil, false
	}
	return m, true
}

// buildDB constructs the db host object: createTable (deploy only),
// getTable (execute only), and the always-available cross-contract read
// queries.
func (c *call) buildDB(vm *goja.Runtime) map[string]interface{} {
	db := map[string]interface{}{
		"findInTable":    c.hostFindInTable,
		"findOneInTable": c.hostFindOneInTable,
	}
	if c.mode == modeDeploy {
		db["createTable"] = c.hostCreateTable
	}
	if c.mode == modeExecute {
		db["getTable"] = c.hostGetTable(vm)
	}
	return db
}

// hostCreateTable implements db.createTable(name): name must match
// [A-Za-z_]+, creates "<contract>_<name>", idempotent (spec.md §4.2).
func (c *call) hostCreateTable(name string) error {
	if !types.TableNamePattern.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	if err := c.executor.store.CreateTable(c.contract.Name, name); err != nil {
		return err
	}
	c.contract.RegisterTable(types.QualifiedTableName(c.contract.Name, name))
	return nil
}

// hostGetTable implements db.getTable(name): returns the collection iff
// registered in the contract's table set, else null (spec.md §4.2,
// tested directly by the "Table ownership" property in spec.md §8).
func (c *call) hostGetTable(vm *goja.Runtime) func(name string) goja.Value {
	return func(name string) goja.Value {
		fq := types.QualifiedTableName(c.contract.Name, name)
		if !c.contract.OwnsTable(fq) {
			return goja.Null()
		}
		return vm.ToValue(c.newCollection(fq))
	}
}

// collection is the JS-visible handle returned by db.getTable, offering
// the minimal write/read surface contract code needs against its own
// tables.
type collection struct {
	c  *call
	fq string
}

func (c *call) newCollection(fq string) *collection {
	return &collection{c: c, fq: fq}
}

func (col *collection) Insert(doc map[string]interface{}) error {
	contract, tableName := splitQualified(col.fq)
	return col.c.executor.store.Insert(contract, tableName, store.Document(doc))
}

func (col *collection) Find(query map[string]interface{}) ([]map[string]interface{}, error) {
	contract, tableName := splitQualified(col.fq)
	docs, err := col.c.executor.store.FindInTable(contract, tableName, store.Document(query))
	return docsToMaps(docs), err
}

func (col *collection) FindOne(query map[string]interface{}) (map[string]interface{}, error) {
	contract, tableName := splitQualified(col.fq)
	doc, ok, err := col.c.executor.store.FindOneInTable(contract, tableName, store.Document(query))
	if !ok {
		return nil, err
	}
	return map[string]interface{}(doc), err
}

func (c *call) hostFindInTable(contract, table string, query map[string]interface{}) ([]map[string]interface{}, error) {
	docs, err := c.executor.store.FindInTable(contract, table, store.Document(query))
	return docsToMaps(docs), err
}

func (c *call) hostFindOneInTable(contract, table string, query map[string]interface{}) (map[string]interface{}, error) {
	doc, ok, err := c.executor.store.FindOneInTable(contract, table, store.Document(query))
	if !ok {
		return nil, err
	}
	return map[string]interface{}(doc), err
}

func docsToMaps(docs []store.Document) []map[string]interface{} {
	out := make([]map[string]interface{}, len(docs))
	for i, d := range docs {
		out[i] = map[string]interface{}(d)
	}
	return out
}

func splitQualified(fq string) (contract, table string) {
	for i := len(fq) - 1; i >= 0; i-- {
		if fq[i] == '_' {
			return fq[:i], fq[i+1:]
		}
	}
	return fq, ""
}

// buildCurrency exposes the fixed-point decimal library of spec.md §6 as
// plain JS functions operating on decimal strings, so contract authors
// never touch a binary float.
func (c *call) buildCurrency(vm *goja.Runtime) map[string]interface{} {
	const defaultPrecision = 8
	parse := func(s string) currency.Amount {
		a, err := currency.Parse(s, defaultPrecision)
		if err != nil {
			panic(vm.ToValue(err.Error()))
		}
		return a
	}
	return map[string]interface{}{
		"add": func(a, b string) string {
			return parse(a).Add(parse(b)).String()
		},
		"subtract": func(a, b string) string {
			return parse(a).Sub(parse(b)).String()
		},
		"multiply": func(a, b string) string {
			return parse(a).Mul(parse(b)).String()
		},
		"compare": func(a, b string) int {
			return parse(a).Cmp(parse(b))
		},
	}
}
