// Package schedule reads the witness set, the per-round verifying
// schedule, and the global consensus params — all produced by an
// on-chain "witnesses" contract that this core does not implement
// (spec.md §1/§9 Non-goals: "it does not itself elect witnesses; it
// consumes a witness set and schedule produced by an on-chain witnesses
// contract"). Reader fixes only how the already-elected schedule is
// read, through the same table-query surface contracts use themselves
// (findInTable/findOneInTable over the bus), per SPEC_FULL.md's
// Witness registry bootstrap supplement.
package schedule

import (
	"github.com/fairledger/sidechain/bus"
	"github.com/fairledger/sidechain/core/store"
)

// contractName is the reserved on-chain contract whose tables back the
// witness registry, matching the "witnesses" contract spec.md §4.3's
// round submission targets (contractName:"witnesses").
const contractName = "witnesses"

// Witness is one registered round-signer.
type Witness struct {
	Account    string
	SigningKey []byte // compressed secp256k1 public key
	IP         string
}

// Params is the global consensus cursor spec.md §3 describes.
type Params struct {
	Round                   uint64
	LastBlockRound          uint64
	LastVerifiedBlockNumber uint64
	CurrentWitness          string
}

// Reader is the read-only view of the witness registry the Coordinator
// needs.
type Reader interface {
	CurrentParams() (Params, error)
	ScheduleFor(round uint64) ([]Witness, error)
	WitnessByAccount(account string) (Witness, bool, error)
}

// BusReader implements Reader against a bus.Bus, reading the
// "witnesses"-owned tables `witnesses`, `schedules`, and `params`
// exactly as any other contract's findInTable caller would.
type BusReader struct {
	bus bus.Bus
}

// NewBusReader builds a Reader backed by b.
func NewBusReader(b bus.Bus) *BusReader {
	return &BusReader{bus: b}
}

func (r *BusReader) CurrentParams() (Params, error) {
	doc, ok, err := r.bus.FindOneInTable(contractName, "params", store.Document{})
	if err != nil {
		return Params{}, err
	}
	if !ok {
		return Params{}, nil
	}
	return Params{
		Round:                   docUint64(doc, "round"),
		LastBlockRound:          docUint64(doc, "lastBlockRound"),
		LastVerifiedBlockNumber: docUint64(doc, "lastVerifiedBlockNumber"),
		CurrentWitness:          docString(doc, "currentWitness"),
	}, nil
}

func (r *BusReader) ScheduleFor(round uint64) ([]Witness, error) {
	docs, err := r.bus.FindInTable(contractName, "schedules", store.Document{"round": round})
	if err != nil {
		return nil, err
	}
	out := make([]Witness, 0, len(docs))
	for _, d := range docs {
		account := docString(d, "witness")
		w, ok, err := r.WitnessByAccount(account)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, w)
		}
	}
	return out, nil
}

func (r *BusReader) WitnessByAccount(account string) (Witness, bool, error) {
	doc, ok, err := r.bus.FindOneInTable(contractName, "witnesses", store.Document{"account": account})
	if err != nil || !ok {
		return Witness{}, ok, err
	}
	key, _ := doc["signingKey"].([]byte)
	if key == nil {
		if s, ok := doc["signingKey"].(string); ok {
			key = []byte(s)
		}
	}
	return Witness{
		Account:    docString(doc, "account"),
		SigningKey: key,
		IP:         docString(doc, "ip"),
	}, true, nil
}

func docString(d store.Document, key string) string {
	s, _ := d[key].(string)
	return s
}

func docUint64(d store.Document, key string) uint64 {
	switch v := d[key].(type) {
	case uint64:
		return v
	case int:
		return uint64(v)
	case int64:
		return uint64(v)
	case float64:
		return uint64(v)
	default:
		return 0
	}
}
