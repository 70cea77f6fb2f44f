package arbiter

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	fakeclock "k8s.io/utils/clock/testing"
)

// TestTryBecomeMainMutualExclusion races many arbiters at a fresh lock path
// and expects exactly one winner; every loser sees plain false, not an error.
func TestTryBecomeMainMutualExclusion(t *testing.T) {
	path := testLockPath(t)
	const racers = 16

	var wins int32
	errC := make(chan error, racers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		arb := newArbiter(mockOS{pid: 100 + i}, path, 0, "1.2.3")
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			won, err := arb.TryBecomeMain()
			if err != nil {
				errC <- err
				return
			}
			if won {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	close(start)
	wg.Wait()
	close(errC)
	for err := range errC {
		t.Errorf("unexpected arbitration error: %v", err)
	}
	require.EqualValues(t, 1, wins)
}

func TestReadIsIdempotent(t *testing.T) {
	path := testLockPath(t)
	clk := fakeclock.NewFakeClock(time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC))
	arb := newArbiter(mockOS{pid: 4711}, path, 0, "2.0.0", WithClock(clk))

	won, err := arb.TryBecomeMain()
	require.NoError(t, err)
	require.True(t, won)

	first := arb.ReadLock()
	require.NotNil(t, first)
	require.Equal(t, 4711, first.PID)
	require.Equal(t, "2.0.0", first.Version)
	require.Equal(t, clk.Now().UnixMilli(), first.Timestamp)

	second := arb.ReadLock()
	require.Equal(t, first, second)
}

func TestReadToleratesGarbage(t *testing.T) {
	path := testLockPath(t)
	arb := newArbiter(mockOS{pid: 1}, path, 0, "1.0.0")

	// No file at all.
	require.Nil(t, arb.ReadLock())

	for name, content := range map[string]string{
		"invalid json":    "{not: valid json",
		"missing fields":  `{"pid": 12, "version": "1.0.0"}`,
		"mistyped pid":    `{"pid": "12", "version": "1.0.0", "timestamp": 5}`,
		"mistyped fields": `{"pid": 12, "version": 3, "timestamp": "soon"}`,
		"empty":           "",
	} {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		require.Nil(t, arb.ReadLock(), "content %s should read as absent", name)

		// The path exists, so creation is still blocked: contention, not error.
		won, err := arb.TryBecomeMain()
		require.NoError(t, err, "content %s", name)
		require.False(t, won, "content %s", name)

		require.NoError(t, os.Remove(path))
	}
}

func TestReadIgnoresExtraFields(t *testing.T) {
	path := testLockPath(t)
	arb := newArbiter(mockOS{pid: 1}, path, 0, "1.0.0")

	record := `{"pid": 77, "version": "0.9.1", "timestamp": 1700000000000, "hostname": "devbox", "extra": [1,2]}`
	require.NoError(t, os.WriteFile(path, []byte(record), 0o644))

	rec := arb.ReadLock()
	require.NotNil(t, rec)
	require.Equal(t, &InstanceLock{PID: 77, Version: "0.9.1", Timestamp: 1700000000000}, rec)
}

func TestRemoveLockToleratesAbsence(t *testing.T) {
	arb := newArbiter(mockOS{pid: 1}, testLockPath(t), 0, "1.0.0")
	require.NoError(t, arb.RemoveLock())
	require.NoError(t, arb.RemoveLock())
}

// TestTryCreateCleansUpAfterFailedWrite checks that a claim whose record
// cannot be written does not leave an empty lock file behind to block every
// other launch.
func TestTryCreateCleansUpAfterFailedWrite(t *testing.T) {
	path := testLockPath(t)
	arb := newArbiter(mockOS{pid: 1}, path, 0, "1.0.0")
	arb.lock.encode = func(InstanceLock) ([]byte, error) {
		return nil, errors.New("encode failed")
	}

	won, err := arb.TryBecomeMain()
	require.Error(t, err)
	require.False(t, won)
	require.Equal(t, RoleUnknown, arb.Role())
	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr), "failed claim left a lock file behind")

	// The path is free again for the next launch.
	next := newArbiter(mockOS{pid: 2}, path, 0, "1.0.0")
	won, err = next.TryBecomeMain()
	require.NoError(t, err)
	require.True(t, won)
}

// TestTryBecomeMainFatalIOError checks that a genuinely broken environment
// surfaces as an error instead of being folded into ordinary contention.
func TestTryBecomeMainFatalIOError(t *testing.T) {
	path := filepath.Join(tmpDir(t), "no", "such", "dir", "taskpilot.lock")
	arb := newArbiter(mockOS{pid: 1}, path, 0, "1.0.0")

	won, err := arb.TryBecomeMain()
	require.Error(t, err)
	require.False(t, won)
	require.Equal(t, RoleUnknown, arb.Role())
}
