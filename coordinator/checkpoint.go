package coordinator

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
)

var (
	keyLastProposedRound = []byte("lastProposedRoundNumber")
	keyLastVerifiedRound = []byte("lastVerifiedRoundNumber")
)

// Checkpoint persists the Coordinator's own small durable state across
// restarts using github.com/syndtr/goleveldb/leveldb (a direct teacher
// dependency, normally backing the chain database) so a restarted
// witness does not re-propose an already-anchored round.
type Checkpoint struct {
	db *leveldb.DB
}

// OpenCheckpoint opens (creating if absent) the checkpoint database at
// path.
func OpenCheckpoint(path string) (*Checkpoint, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "open checkpoint db")
	}
	return &Checkpoint{db: db}, nil
}

// Close releases the underlying database handle.
func (c *Checkpoint) Close() error {
	return c.db.Close()
}

func (c *Checkpoint) getUint64(key []byte) (uint64, error) {
	v, err := c.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(v), nil
}

func (c *Checkpoint) putUint64(key []byte, n uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return c.db.Put(key, buf, nil)
}

// LastProposedRound returns the highest round number this witness has
// proposed (0 if never).
func (c *Checkpoint) LastProposedRound() (uint64, error) {
	return c.getUint64(keyLastProposedRound)
}

// SetLastProposedRound persists n as the last proposed round.
func (c *Checkpoint) SetLastProposedRound(n uint64) error {
	return c.putUint64(keyLastProposedRound, n)
}

// LastVerifiedRound returns the highest round number this witness has
// verified for a peer (0 if never).
func (c *Checkpoint) LastVerifiedRound() (uint64, error) {
	return c.getUint64(keyLastVerifiedRound)
}

// SetLastVerifiedRound persists n as the last verified round.
func (c *Checkpoint) SetLastVerifiedRound(n uint64) error {
	return c.putUint64(keyLastVerifiedRound, n)
}
