package arbiter

import (
	"fmt"
	"net"
	"time"

	"k8s.io/utils/clock"
)

// portPollInterval is how often waitForFree re-attempts a bind while the
// well-known port remains occupied.
const portPollInterval = 250 * time.Millisecond

// waitForFree reports whether host:port became bindable within timeout. Each
// probe is a transient bind-and-release; the first successful bind returns
// true immediately. Expiry is a normal outcome reported as false, never an
// error, and the final probe happens at the deadline so a port freed in the
// last interval is still caught.
func waitForFree(clk clock.Clock, host string, port int, timeout time.Duration) bool {
	addr := fmt.Sprintf("%s:%d", host, port)
	deadline := clk.Now().Add(timeout)
	for {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			ln.Close()
			return true
		}
		remaining := deadline.Sub(clk.Now())
		if remaining <= 0 {
			return false
		}
		if remaining < portPollInterval {
			clk.Sleep(remaining)
		} else {
			clk.Sleep(portPollInterval)
		}
	}
}
