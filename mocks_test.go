package arbiter

import "os"

type mockOS struct {
	pid int
	// signalErr is returned by every found process's Signal, letting tests
	// decide whether recorded pids read as alive or dead.
	signalErr error
}

func (m mockOS) Getpid() int {
	return m.pid
}

func (m mockOS) FindProcess(pid int) (processIface, error) {
	return mockProcess{m.signalErr}, nil
}

type mockProcess struct {
	err error
}

func (m mockProcess) Signal(s os.Signal) error {
	return m.err
}
