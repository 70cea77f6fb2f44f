package arbiter

import "fmt"

// Role is the resolved part this process plays. It is a small finite state
// machine with the following transitions:
// ∅       → Unknown
// Unknown → Main
// Unknown → Proxy
//
// Main and Proxy are terminal: once a process resolves its role it keeps it
// for the remainder of its run.
type Role string

const (
	// RoleUnknown is the initial state, before arbitration has resolved.
	RoleUnknown Role = "unknown"
	// RoleMain is the state of the one process serving the well-known port.
	RoleMain Role = "main"
	// RoleProxy is the state of a process forwarding to a compatible main.
	RoleProxy Role = "proxy"
)

var validTransitions = map[Role][]Role{
	RoleUnknown: {RoleMain, RoleProxy},
	RoleMain:    {},
	RoleProxy:   {},
}

func (r *Role) canTransitionTo(role Role) error {
	for _, target := range validTransitions[*r] {
		if target == role {
			return nil
		}
	}
	return fmt.Errorf("unable to transition from %s to %s", *r, role)
}

func (r *Role) transitionTo(role Role) error {
	if err := r.canTransitionTo(role); err != nil {
		return err
	}
	*r = role
	return nil
}
