package arbiter

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/taskpilot/arbiter/internal/peerapi"
)

// negotiateTimeout bounds every HTTP exchange with a peer instance. An
// unreachable peer and a peer that declines to answer are indistinguishable
// to this subsystem, so both collapse to "no informative answer".
const negotiateTimeout = 2 * time.Second

// maxPeerBody caps how much of a peer response is read. The real answer is a
// few dozen bytes; anything bigger is not a TaskPilot instance.
const maxPeerBody = 1 << 16

var peerClient = &http.Client{Timeout: negotiateTimeout}

// fetchVersion asks whatever is serving host:port which build version it is
// running. ok is false on connection failure, timeout, a non-200 status, a
// body that is not valid JSON, or a body whose version field is not a
// string. Network failure is never an error here.
func fetchVersion(host string, port int) (version string, ok bool) {
	url := fmt.Sprintf("http://%s:%d%s", host, port, peerapi.VersionPath)
	resp, err := peerClient.Get(url)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPeerBody))
	if err != nil {
		return "", false
	}
	if !gjson.ValidBytes(body) {
		return "", false
	}
	v := gjson.GetBytes(body, "version")
	if v.Type != gjson.String {
		return "", false
	}
	return v.String(), true
}

// requestShutdown asks the instance at host:port to vacate the well-known
// port. True means only that the peer accepted the request with a 200; the
// caller must still confirm the port was actually released before assuming
// takeover is safe. Network failure reads as a declined request.
func requestShutdown(host string, port int) bool {
	url := fmt.Sprintf("http://%s:%d%s", host, port, peerapi.ShutdownPath)
	resp, err := peerClient.Post(url, "application/json", nil)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxPeerBody))
	return resp.StatusCode == http.StatusOK
}
