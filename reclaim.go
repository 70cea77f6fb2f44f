package arbiter

import (
	"os"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

// ReclaimDeadLock removes the instance lock if and only if its recorded
// owner is provably not running. It is the explicit probe-and-remove step of
// the takeover workflow, packaged so every bootstrap does not re-derive the
// read, probe, remove sequence by hand.
//
// A lock file that exists but does not parse into a complete record is also
// reclaimed: it blocks every TryBecomeMain yet names no owner that could
// ever be negotiated with or observed alive.
//
// The sequence is serialized across local processes with an advisory flock
// on a sidecar path, so two launches racing to reclaim cannot interleave
// their reads and removes around a third launch's fresh win. The instance
// lock itself stays flock-free; exclusive create remains the sole
// arbitration mechanism.
//
// It returns true when a lock was removed. After a true return the caller
// still has to win TryBecomeMain like anybody else.
func (a *Arbiter) ReclaimDeadLock() (bool, error) {
	guard := flock.New(a.lock.path + ".reclaim")
	got, err := guard.TryLock()
	if err != nil {
		return false, errors.Wrap(err, "locking reclaim guard")
	}
	if !got {
		// Another local launch is already mid-reclaim; let it finish.
		return false, nil
	}
	defer guard.Unlock()

	if _, err := os.Stat(a.lock.path); os.IsNotExist(err) {
		return false, nil
	}
	rec := a.lock.read()
	if rec != nil && isAlive(a.os, rec.PID) {
		return false, nil
	}
	if rec == nil {
		a.l.Warn("removing unreadable instance lock", "path", a.lock.path)
	} else {
		a.l.Info("reclaiming instance lock from dead owner", "path", a.lock.path, "pid", rec.PID)
	}
	if err := a.lock.remove(); err != nil {
		return false, err
	}
	return true, nil
}
