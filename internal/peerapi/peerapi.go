// Package peerapi holds the wire contract between TaskPilot instances: the
// well-known negotiation paths and the shapes exchanged on them. Both the
// client side (a launch probing whoever holds the well-known port) and the
// server side (the main instance answering) build against this package so
// the two cannot drift apart.
package peerapi

const (
	// VersionPath answers GET with the running build's version.
	VersionPath = "/__taskpilot/version"

	// ShutdownPath accepts POST asking the instance to vacate the well-known
	// port. A 200 means the request was accepted, not that the port is free;
	// callers must observe the release separately.
	ShutdownPath = "/__taskpilot/shutdown"
)

// VersionResponse is the body served on VersionPath.
type VersionResponse struct {
	Version string `json:"version"`
}
