package arbiter

import (
	"sync"
	"time"

	"github.com/inconshreveable/log15"
	"k8s.io/utils/clock"
)

// Arbiter decides which part this process plays: the main instance bound to
// the well-known port, or a local proxy forwarding to whichever process is.
// It owns the in-memory role and the resolved proxy port; the lock store owns
// the on-disk record.
//
// The primitives here never retry on their own. Displacing a live but
// incompatible main is inherently a multi-step negotiation, so it stays
// caller-composed:
//
//	1. TryBecomeMain; if it wins, serve.
//	2. Otherwise FetchVersion against the well-known port.
//	3. Same version as this build: StartProxy and stop. Coexistence, not
//	   takeover.
//	4. Different or unknown version: RequestShutdown, WaitForFree with a
//	   bounded timeout, then retry from 1 (reclaiming a dead owner's lock
//	   via ReclaimDeadLock along the way).
type Arbiter struct {
	lock    *lockStore
	host    string
	port    int
	version string

	clock clock.Clock
	os    osIface
	l     log15.Logger

	stateLock sync.Mutex
	role      Role
	proxyPort int
}

// Option is an option function for Arbiter.
type Option func(a *Arbiter)

// WithLogger configures the logger to use for arbitration operations.
// By default, nothing will be logged.
func WithLogger(l log15.Logger) Option {
	return func(a *Arbiter) {
		a.l = l
	}
}

// WithClock overrides the clock used for lock timestamps and port polling.
func WithClock(c clock.Clock) Option {
	return func(a *Arbiter) {
		a.clock = c
	}
}

// WithHost overrides the host peers are negotiated with and the well-known
// port is probed on. The default is loopback, which is where TaskPilot
// instances live.
func WithHost(host string) Option {
	return func(a *Arbiter) {
		a.host = host
	}
}

// New constructs an Arbiter for the given lock path and well-known port.
// version is the semantic version of this build; it is recorded in the lock
// on a win and compared against peers during negotiation.
func New(lockPath string, wellKnownPort int, version string, opts ...Option) *Arbiter {
	return newArbiter(realOS{}, lockPath, wellKnownPort, version, opts...)
}

func newArbiter(osi osIface, lockPath string, port int, version string, opts ...Option) *Arbiter {
	noopLogger := log15.New()
	noopLogger.SetHandler(log15.DiscardHandler())
	a := &Arbiter{
		host:    "127.0.0.1",
		port:    port,
		version: version,
		clock:   clock.RealClock{},
		os:      osi,
		l:       noopLogger,
		role:    RoleUnknown,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.lock = &lockStore{path: lockPath, clock: a.clock, os: osi, l: a.l, encode: encodeLock}
	return a
}

// TryBecomeMain attempts to claim the instance lock. It returns true, and
// fixes this process's role as Main, exactly when this process created the
// lock file. An existing lock yields false whether or not its owner is still
// alive: reclaiming a dead owner's lock is always an explicit, separate
// caller action, never a side effect of trying to win. Fatal filesystem
// errors propagate unchanged rather than being folded into false.
func (a *Arbiter) TryBecomeMain() (bool, error) {
	won, err := a.lock.tryCreate(a.version)
	if err != nil {
		return false, err
	}
	if !won {
		a.l.Debug("instance lock already held", "path", a.lock.path)
		return false, nil
	}
	a.stateLock.Lock()
	defer a.stateLock.Unlock()
	if err := a.role.transitionTo(RoleMain); err != nil {
		// Only reachable through misuse (arbitrating twice in one process).
		// Give the lock back so some other launch can win it.
		_ = a.lock.remove()
		return false, err
	}
	a.l.Info("won instance arbitration", "port", a.port, "version", a.version)
	return true, nil
}

// StartProxy starts a loopback reverse proxy forwarding to the main instance
// at targetHost:targetPort and fixes this process's role as Proxy. The
// proxy's ephemeral port is recorded and readable via ProxyPort. The proxy
// machinery is only constructed here, when the role actually resolves to
// Proxy; a process that becomes Main never pays for it.
func (a *Arbiter) StartProxy(targetHost string, targetPort int) (*Proxy, error) {
	p, err := startProxy(a.l, targetHost, targetPort)
	if err != nil {
		return nil, err
	}
	a.stateLock.Lock()
	defer a.stateLock.Unlock()
	if err := a.role.transitionTo(RoleProxy); err != nil {
		p.Close()
		return nil, err
	}
	a.proxyPort = p.Port()
	a.l.Info("attached to main instance as proxy", "target", p.target, "proxyPort", p.Port())
	return p, nil
}

// Role returns this process's resolved role, or RoleUnknown before
// arbitration settles.
func (a *Arbiter) Role() Role {
	a.stateLock.Lock()
	defer a.stateLock.Unlock()
	return a.role
}

// ProxyPort returns the ephemeral port the proxy listens on, or zero when
// this process is not a proxy.
func (a *Arbiter) ProxyPort() int {
	a.stateLock.Lock()
	defer a.stateLock.Unlock()
	return a.proxyPort
}

// FetchVersion queries the build version of whatever currently serves the
// well-known port. ok is false when there is no informative answer; see the
// package negotiation rules for what that covers.
func (a *Arbiter) FetchVersion() (version string, ok bool) {
	return fetchVersion(a.host, a.port)
}

// RequestShutdown asks the current main instance to vacate the well-known
// port. This is a request, not a guarantee; follow with WaitForFree.
func (a *Arbiter) RequestShutdown() bool {
	return requestShutdown(a.host, a.port)
}

// WaitForFree polls until the well-known port is bindable or timeout
// elapses. Expiry reads as false, a normal outcome.
func (a *Arbiter) WaitForFree(timeout time.Duration) bool {
	return waitForFree(a.clock, a.host, a.port, timeout)
}

// ReadLock returns the current lock record, or nil when the file is missing
// or its content does not parse into a complete record. Repeated calls
// against an unmodified file return equal records.
func (a *Arbiter) ReadLock() *InstanceLock {
	return a.lock.read()
}

// RemoveLock deletes the lock file, tolerating its absence. This is the
// graceful-shutdown lifecycle hook the bootstrap must wire up; the arbiter
// itself never removes the lock behind the caller's back.
func (a *Arbiter) RemoveLock() error {
	return a.lock.remove()
}
