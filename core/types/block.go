package types

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/fairledger/sidechain/common"
	"github.com/fairledger/sidechain/crypto"
)

// TimeFormat is the ISO-8601 layout used for Block.Timestamp, matching the
// wire format spec.md §3 specifies.
const TimeFormat = "2006-01-02T15:04:05.000Z"

// Block is the sidechain's append-only unit of commitment. Hash and
// MerkleRoot are computed once, after every transaction in the block has
// been executed and had its Logs attached (spec.md §3).
type Block struct {
	BlockNumber          uint64         `json:"blockNumber"`
	RefAnchorBlockNumber  uint64         `json:"refAnchorBlockNumber"`
	PreviousHash         string         `json:"previousHash"`
	Timestamp            string         `json:"timestamp"`
	Transactions         []*Transaction `json:"transactions"`
	Hash                 string         `json:"hash"`
	MerkleRoot           string         `json:"merkleRoot"`
}

// NewBlock assembles a block from already-executed transactions (each must
// already carry its final Logs) and computes MerkleRoot and Hash. txs may
// be empty.
func NewBlock(blockNumber uint64, previousHash string, timestamp time.Time, txs []*Transaction) *Block {
	b := &Block{
		BlockNumber:  blockNumber,
		PreviousHash: previousHash,
		Timestamp:    timestamp.UTC().Format(TimeFormat),
		Transactions: txs,
	}
	if len(txs) > 0 {
		b.RefAnchorBlockNumber = txs[0].RefAnchorBlockNumber
	}
	b.MerkleRoot = MerkleRoot(txs)
	b.Hash = b.computeHash().Hex()
	return b
}

// computeHash implements spec.md §3's Block hash invariant: SHA-256 over
// previousHash || timestamp || canonical_json(transactions).
func (b *Block) computeHash() common.Hash {
	txJSON, _ := json.Marshal(b.Transactions)
	return crypto.Sha256(
		[]byte(b.PreviousHash),
		[]byte(b.Timestamp),
		txJSON,
	)
}

// Genesis builds block 0: previousHash "0", a single synthetic transaction
// carrying {chainId} that is never passed to the executor, per spec.md §3.
func Genesis(chainID string, at time.Time) *Block {
	payload := `{"chainId":"` + chainID + `"}`
	synthetic := NewTransaction(0, "genesis", "genesis", StrPtr("genesis"), nil, &payload)
	synthetic.SetLogs(Logs{})

	return NewBlock(0, "0", at, []*Transaction{synthetic})
}

// IsGenesis reports whether b is block 0.
func (b *Block) IsGenesis() bool { return b.BlockNumber == 0 }

// String renders a short human summary, useful in CLI/console output.
func (b *Block) String() string {
	return "#" + strconv.FormatUint(b.BlockNumber, 10) + " " + b.Hash
}
