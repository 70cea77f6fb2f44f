package arbiter

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/inconshreveable/log15"
)

func tmpDir(t *testing.T) string {
	dir, err := os.MkdirTemp("", "arbiter_test")
	if err != nil {
		panic(err)
	}
	t.Cleanup(func() {
		os.RemoveAll(dir)
	})
	return dir
}

func testLockPath(t *testing.T) string {
	return filepath.Join(tmpDir(t), "taskpilot.lock")
}

// freePort reserves an ephemeral port and returns it released, for tests
// that need a well-known port to fight over.
func freePort(t *testing.T) int {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserving port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

// hostPort splits an httptest server URL into its host and numeric port.
func hostPort(t *testing.T, serverURL string) (string, int) {
	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(serverURL, "http://"))
	if err != nil {
		t.Fatalf("splitting %q: %v", serverURL, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parsing port %q: %v", portStr, err)
	}
	return host, port
}

func discardLogger() log15.Logger {
	l := log15.New()
	l.SetHandler(log15.DiscardHandler())
	return l
}
