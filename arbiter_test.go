package arbiter

import (
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPIDAlive(t *testing.T) {
	require.True(t, PIDAlive(os.Getpid()))
	require.False(t, PIDAlive(0))
	require.False(t, PIDAlive(-1))
}

func TestIsAliveUsesSignalZero(t *testing.T) {
	require.True(t, isAlive(mockOS{}, 999999))
	require.False(t, isAlive(mockOS{signalErr: syscall.ESRCH}, 999999))
	// Not-signalable short-circuits before the OS is even asked.
	require.False(t, isAlive(mockOS{}, 0))
	require.False(t, isAlive(mockOS{}, -5))
}

// TestNoAutomaticReclamation pins the intentional asymmetry: a lock naming a
// dead pid still loses TryBecomeMain until the caller explicitly removes it.
func TestNoAutomaticReclamation(t *testing.T) {
	path := testLockPath(t)

	// A previous launch wrote the lock and then died.
	crashed := newArbiter(mockOS{pid: 999999}, path, 0, "0.0.1")
	won, err := crashed.TryBecomeMain()
	require.NoError(t, err)
	require.True(t, won)

	// Every probe from the new launch says the owner is dead...
	arb := newArbiter(mockOS{pid: 2, signalErr: syscall.ESRCH}, path, 0, "0.0.2")
	rec := arb.ReadLock()
	require.NotNil(t, rec)
	require.Equal(t, 999999, rec.PID)
	require.False(t, isAlive(mockOS{signalErr: syscall.ESRCH}, rec.PID))

	// ...yet the lock still wins until explicitly removed.
	won, err = arb.TryBecomeMain()
	require.NoError(t, err)
	require.False(t, won)
	require.Equal(t, RoleUnknown, arb.Role())

	require.NoError(t, arb.RemoveLock())
	won, err = arb.TryBecomeMain()
	require.NoError(t, err)
	require.True(t, won)
	require.Equal(t, RoleMain, arb.Role())
}

func TestRoleIsFixedAfterWinning(t *testing.T) {
	arb := newArbiter(mockOS{pid: 1}, testLockPath(t), 0, "1.0.0")
	won, err := arb.TryBecomeMain()
	require.NoError(t, err)
	require.True(t, won)
	require.Equal(t, RoleMain, arb.Role())

	// A main instance cannot also become a proxy.
	_, err = arb.StartProxy("127.0.0.1", 1)
	require.Error(t, err)
	require.Equal(t, RoleMain, arb.Role())
}
