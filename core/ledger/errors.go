package ledger

import "github.com/pkg/errors"

// ErrDeterminism is spec.md §7's DeterminismError: replay produced a block
// hash different from the one already on disk. It is fatal — the caller
// is expected to abort the node rather than continue on a chain whose
// blocks it cannot reproduce.
var ErrDeterminism = errors.New("ledger: replay produced a different block hash")

// ErrChainInvalid is returned by IsChainValid's callers that want a
// reason rather than a bare bool; IsChainValid itself returns bool per
// spec.md §4.1, this sentinel is for diagnostics.
var ErrChainInvalid = errors.New("ledger: chain integrity check failed")

// ErrBlockNotFound is returned by Replay when a block inside the stored
// chain's length cannot be read back. GetBlock reports an unknown block
// number with ok == false instead.
var ErrBlockNotFound = errors.New("ledger: block not found")
