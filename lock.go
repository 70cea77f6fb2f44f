package arbiter

import (
	"encoding/json"
	"os"

	"github.com/inconshreveable/log15"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"k8s.io/utils/clock"
)

// InstanceLock is the durable record identifying the current main instance.
// It is written exactly once, by whichever process wins the exclusive create
// of the lock path, and holds whatever that process claimed at the time. A
// syntactically valid record is authoritative evidence of a main instance
// whether or not its pid is still alive; liveness is always a separate check.
type InstanceLock struct {
	PID       int    `json:"pid"`
	Version   string `json:"version"`
	Timestamp int64  `json:"timestamp"`
}

// lockStore owns the on-disk lock record. Atomicity across processes comes
// entirely from O_EXCL on the lock path; there is no in-process locking here
// and no time-based expiry.
type lockStore struct {
	path  string
	clock clock.PassiveClock
	os    osIface
	l     log15.Logger
	// encode is swapped in tests to exercise the cleanup path after a
	// successful exclusive create.
	encode func(InstanceLock) ([]byte, error)
}

func encodeLock(rec InstanceLock) ([]byte, error) {
	return json.Marshal(rec)
}

// tryCreate attempts to claim the lock path for this process. It returns
// false when the path already exists, live owner or not; that is ordinary
// contention. Any other filesystem failure (permissions, disk exhaustion) is
// returned as an error since it needs operator attention, not a retry.
func (s *lockStore) tryCreate(version string) (bool, error) {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if os.IsExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "creating lock file %q", s.path)
	}

	rec := InstanceLock{
		PID:       s.os.Getpid(),
		Version:   version,
		Timestamp: s.clock.Now().UnixMilli(),
	}
	data, err := s.encode(rec)
	if err != nil {
		err = errors.Wrap(err, "encoding lock record")
	} else if _, werr := f.Write(data); werr != nil {
		err = errors.Wrapf(werr, "writing lock file %q", s.path)
	}
	if err != nil {
		// An empty or torn lock file would block every other launch until
		// someone reclaims it; a claim that cannot be completed must not
		// leave one behind.
		f.Close()
		_ = os.Remove(s.path)
		return false, err
	}
	f.Close()
	s.l.Info("created instance lock", "path", s.path, "pid", rec.PID, "version", rec.Version)
	return true, nil
}

// read returns the current lock record, or nil when there is none to be had:
// missing file, unreadable file, invalid JSON, or any of the three required
// fields missing or of the wrong type. Corruption is never an error here.
// Note the asymmetry: a file that reads as nil still blocks tryCreate, since
// exclusive create fails on the path's mere presence.
func (s *lockStore) read() *InstanceLock {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil
	}
	if !gjson.ValidBytes(data) {
		return nil
	}
	pid := gjson.GetBytes(data, "pid")
	version := gjson.GetBytes(data, "version")
	ts := gjson.GetBytes(data, "timestamp")
	if pid.Type != gjson.Number || version.Type != gjson.String || ts.Type != gjson.Number {
		return nil
	}
	return &InstanceLock{
		PID:       int(pid.Int()),
		Version:   version.String(),
		Timestamp: ts.Int(),
	}
}

// remove deletes the lock file. An already-absent file is silent success.
func (s *lockStore) remove() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "removing lock file %q", s.path)
	}
	return nil
}
