package arbiter

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/taskpilot/arbiter/internal/peerapi"
)

// NewPeerHandler wraps the application's request handler with the
// negotiation endpoints every main instance must expose: a version GET so
// peers can detect build incompatibility, and a shutdown POST so an
// incompatible peer can ask this instance to vacate the well-known port.
// Everything else is passed through to next untouched.
//
// onShutdown is invoked at most once, asynchronously, after the shutdown
// request has been acknowledged with a 200. It should drain the server,
// remove the instance lock, and exit; peers poll the port rather than trust
// the acknowledgement, so there is no deadline on it beyond their patience.
func NewPeerHandler(version string, onShutdown func(), next http.Handler) http.Handler {
	var once sync.Once

	mux := http.NewServeMux()
	mux.HandleFunc(peerapi.VersionPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(peerapi.VersionResponse{Version: version})
	})
	mux.HandleFunc(peerapi.ShutdownPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
		if onShutdown != nil {
			go once.Do(onShutdown)
		}
	})
	mux.Handle("/", next)
	return mux
}
