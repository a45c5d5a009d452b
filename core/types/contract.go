package types

import (
	"regexp"

	mapset "github.com/deckarep/golang-set"
)

// ContractNamePattern matches valid contract names: letters, digits and
// underscore (spec.md §3).
var ContractNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// TableNamePattern matches valid table names passed to db.createTable:
// letters and underscore only (spec.md §4.2), distinct from (stricter
// than) the contract name pattern which also allows digits.
var TableNamePattern = regexp.MustCompile(`^[A-Za-z_]+$`)

// Contract is a deployed contract's record. Contracts are write-once:
// redeploying an existing name is rejected by the ledger/executor before
// a Contract value is ever constructed for that name again.
type Contract struct {
	Name  string `json:"name" bson:"name"`
	Owner string `json:"owner" bson:"owner"`
	Code  string `json:"code" bson:"code"`

	// tables holds the fully-qualified (<contract>_<table>) names created
	// during this contract's deployment. A set rather than a slice: table
	// registration is idempotent (spec.md §4.2) and membership, not
	// order, is all any caller ever needs.
	tables mapset.Set `bson:"-"`

	// TableNames mirrors tables for JSON/bson persistence, since
	// mapset.Set does not itself implement the encoding interfaces.
	TableNames []string `json:"tables" bson:"tables"`
}

// NewContract creates a Contract record with an empty table set.
func NewContract(name, owner, code string) *Contract {
	return &Contract{
		Name:   name,
		Owner:  owner,
		Code:   code,
		tables: mapset.NewSet(),
	}
}

// RegisterTable idempotently records that fqTable (already namespaced
// "<contract>_<table>") belongs to this contract.
func (c *Contract) RegisterTable(fqTable string) {
	if c.tables == nil {
		c.tables = mapset.NewSet()
	}
	if !c.tables.Contains(fqTable) {
		c.tables.Add(fqTable)
		c.TableNames = append(c.TableNames, fqTable)
	}
}

// OwnsTable reports whether fqTable was created during this contract's
// deployment.
func (c *Contract) OwnsTable(fqTable string) bool {
	if c.tables == nil {
		c.hydrateTables()
	}
	return c.tables.Contains(fqTable)
}

// Tables returns the fully-qualified table names owned by this contract.
func (c *Contract) Tables() []string {
	return append([]string(nil), c.TableNames...)
}

// hydrateTables rebuilds the in-memory set from TableNames, needed after a
// Contract value is loaded back from storage (document stores round-trip
// through TableNames, not the unexported set).
func (c *Contract) hydrateTables() {
	c.tables = mapset.NewSet()
	for _, t := range c.TableNames {
		c.tables.Add(t)
	}
}

// AfterLoad must be called once after unmarshaling a Contract from the
// store, to rebuild the table set that JSON/bson cannot carry directly.
func (c *Contract) AfterLoad() {
	c.hydrateTables()
}

// QualifiedTableName returns "<contract>_<table>", the name a table is
// actually stored and queried under (spec.md §3 "Table").
func QualifiedTableName(contract, table string) string {
	return contract + "_" + table
}
