//go:build !windows

package ledger

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// DirLock is an advisory exclusive lock over a data directory, grounded on
// go-ethereum's flock.go (present in the wider teacher codebase, outside
// this retrieval pack's filtered slice) — the same purpose: two node
// processes must never open the same dataDir at once, since the Ledger's
// produce/save/load/replay exclusivity (spec.md §4.1/§5) is only
// meaningful within a single process.
type DirLock struct {
	f *os.File
}

// LockDir acquires an exclusive advisory lock on dataDir via flock(2),
// writing a sentinel LOCK file inside it.
func LockDir(dataDir string) (*DirLock, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, errors.Wrap(err, "create data dir")
	}
	f, err := os.OpenFile(dataDir+"/LOCK", os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "open lock file")
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "data directory already in use by another sidechain-node process")
	}
	return &DirLock{f: f}, nil
}

// Release drops the lock and closes the sentinel file.
func (l *DirLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	return l.f.Close()
}
