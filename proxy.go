package arbiter

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/inconshreveable/log15"
	"github.com/pkg/errors"
)

// Proxy is a loopback HTTP server on an ephemeral port that relays every
// request, WebSocket upgrades included, byte for byte to the main instance.
// A downstream failure turns into a 502 for that one caller; the proxy
// itself keeps serving.
type Proxy struct {
	ln     net.Listener
	srv    *http.Server
	port   int
	target string
	l      log15.Logger
}

// startProxy binds an ephemeral loopback port and begins forwarding to
// targetHost:targetPort. The bound port is readable via Port as soon as
// startProxy returns.
func startProxy(l log15.Logger, targetHost string, targetPort int) (*Proxy, error) {
	target := &url.URL{
		Scheme: "http",
		Host:   fmt.Sprintf("%s:%d", targetHost, targetPort),
	}
	rp := httputil.NewSingleHostReverseProxy(target)
	rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		l.Warn("failed to forward request to main instance", "path", r.URL.Path, "err", err)
		w.WriteHeader(http.StatusBadGateway)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, errors.Wrap(err, "binding proxy listener")
	}
	p := &Proxy{
		ln:     ln,
		srv:    &http.Server{Handler: rp},
		port:   ln.Addr().(*net.TCPAddr).Port,
		target: target.Host,
		l:      l,
	}
	go p.serve()
	return p, nil
}

func (p *Proxy) serve() {
	if err := p.srv.Serve(p.ln); err != nil && err != http.ErrServerClosed {
		p.l.Error("proxy server exited", "target", p.target, "err", err)
	}
}

// Port returns the ephemeral local port the proxy is listening on.
func (p *Proxy) Port() int {
	return p.port
}

// Addr returns the proxy's listen address in host:port form.
func (p *Proxy) Addr() string {
	return fmt.Sprintf("127.0.0.1:%d", p.port)
}

// Close stops the proxy listener and drops in-flight connections.
func (p *Proxy) Close() error {
	return p.srv.Close()
}
