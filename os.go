package arbiter

import (
	"os"
	"syscall"
)

type osIface interface {
	Getpid() int
	FindProcess(pid int) (processIface, error)
}

type realOS struct{}

func (realOS) Getpid() int {
	return os.Getpid()
}

func (realOS) FindProcess(pid int) (processIface, error) {
	return os.FindProcess(pid)
}

type processIface interface {
	Signal(os.Signal) error
}

// isAlive reports whether pid names a live, signalable process on this host.
// Zero and negative pids are never alive; they are not meaningful process
// identifiers.
func isAlive(osi osIface, pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := osi.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// PIDAlive is the liveness probe against the real OS.
func PIDAlive(pid int) bool {
	return isAlive(realOS{}, pid)
}
