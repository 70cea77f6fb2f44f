// Package arbiter implements single-instance arbitration between independent
// TaskPilot service launches.
//
// Any number of launches (one per IDE window, typically) may race to serve
// the well-known port. Exactly one wins, chosen by an atomic exclusive
// create of a lock file, and becomes the main instance. Every other launch
// either attaches to the winner through a transparent local reverse proxy
// (same build version) or negotiates the winner's graceful shutdown over HTTP
// and takes the port over (incompatible version).
//
// Cross-process mutual exclusion rests entirely on two OS primitives: the
// exclusive create of the lock file and the exclusive bind of the well-known
// port. No database, lock service, or other external coordinator is
// involved, so arbitration works before any of those exist.
//
// The arbiter never retries and never reclaims a dead owner's lock on its
// own. Both are deliberate caller actions (see ReclaimDeadLock), so retry and
// backoff policy lives in the service bootstrap rather than here. Likewise
// the arbiter registers no signal handlers: the bootstrap is responsible for
// calling RemoveLock on graceful termination.
package arbiter
