package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/taskpilot/arbiter"
)

const defaultPort = 8377

// retryDelay is the pause between arbitration attempts when the lock is held
// but its owner is not answering yet, which mostly means a main instance
// still in the middle of binding its port.
const retryDelay = 500 * time.Millisecond

type settings struct {
	host     string
	port     int
	lockPath string
	attempts int
	portWait time.Duration
}

// outcome is the result of one arbitration attempt.
type outcome int

const (
	outcomeMain outcome = iota
	outcomeProxy
	outcomeRetry
)

// run resolves this launch's role and serves it until terminated. Arbitration
// is the composed workflow: win the lock and serve, attach to a compatible
// main as a proxy, or displace whoever holds the port and try again.
func run(cfg settings) error {
	l := log15.New("pid", os.Getpid(), "version", version)
	arb := arbiter.New(cfg.lockPath, cfg.port, version,
		arbiter.WithLogger(l), arbiter.WithHost(cfg.host))

	for attempt := 1; attempt <= cfg.attempts; attempt++ {
		out, err := arbitrateOnce(l, arb, cfg, attempt)
		if err != nil {
			return err
		}
		switch out {
		case outcomeMain:
			return serveMain(l, arb, cfg)
		case outcomeProxy:
			return serveProxy(l, arb, cfg)
		}
	}
	return errors.New("unable to start or attach to an existing instance")
}

// arbitrateOnce performs a single pass of the arbitration workflow. A
// takeover is attempted whenever the lock holder's version differs or is
// unknown: a shutdown request is owed to an incompatible main and harmless
// to an unreachable one, which simply refuses the connection.
func arbitrateOnce(l log15.Logger, arb *arbiter.Arbiter, cfg settings, attempt int) (outcome, error) {
	won, err := arb.TryBecomeMain()
	if err != nil {
		return outcomeRetry, err
	}
	if won {
		return outcomeMain, nil
	}

	theirs, ok := arb.FetchVersion()
	if ok && theirs == version {
		return outcomeProxy, nil
	}
	if ok {
		l.Info("main instance runs an incompatible build, requesting takeover", "theirs", theirs)
	} else {
		l.Info("no version answer from the lock holder, requesting takeover")
	}
	if arb.RequestShutdown() && arb.WaitForFree(cfg.portWait) {
		return outcomeRetry, nil
	}

	// Nothing answered and nothing was vacated. If the lock names a dead
	// owner (a crashed main, typically) reclaim it; otherwise give a
	// starting main a moment and retry.
	reclaimed, err := arb.ReclaimDeadLock()
	if err != nil {
		return outcomeRetry, err
	}
	if !reclaimed {
		l.Warn("instance lock is held but its owner is not answering", "attempt", attempt)
		time.Sleep(retryDelay)
	}
	return outcomeRetry, nil
}

// serveMain serves the well-known port until a signal arrives or a peer
// negotiates this instance away. Removing the lock on the way out is this
// layer's job; the arbiter never does it implicitly.
func serveMain(l log15.Logger, arb *arbiter.Arbiter, cfg settings) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.host, cfg.port))
	if err != nil {
		// Lost the port despite winning the lock. Give the lock back so some
		// other launch can resolve arbitration.
		_ = arb.RemoveLock()
		return errors.Wrapf(err, "binding well-known port %d", cfg.port)
	}

	ctx, vacate := context.WithCancel(context.Background())
	defer vacate()

	srv := &http.Server{Handler: arbiter.NewPeerHandler(version, vacate, appHandler())}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		sigC := make(chan os.Signal, 1)
		signal.Notify(sigC, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigC)
		select {
		case sig := <-sigC:
			l.Info("shutting down on signal", "signal", sig.String())
		case <-ctx.Done():
			l.Info("vacating the well-known port", "port", cfg.port)
		}
		drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(drainCtx); err != nil {
			l.Warn("closing server after drain timeout", "err", err)
			srv.Close()
		}
		return arb.RemoveLock()
	})

	l.Info("serving as main instance", "addr", ln.Addr().String())
	return g.Wait()
}

// serveProxy forwards to the compatible main instance until terminated.
func serveProxy(l log15.Logger, arb *arbiter.Arbiter, cfg settings) error {
	p, err := arb.StartProxy(cfg.host, cfg.port)
	if err != nil {
		return err
	}

	// Launchers discover the attach point on stdout.
	fmt.Printf("proxy %s\n", p.Addr())
	l.Info("forwarding to main instance", "addr", p.Addr())

	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigC)
	sig := <-sigC
	l.Info("shutting down on signal", "signal", sig.String())
	return p.Close()
}

// appHandler is where the TaskPilot application (task and workspace CRUD,
// tool-flow templates, web UI) mounts its routes. Arbitration only requires
// an http.Handler; until the application wires itself in, a health endpoint
// keeps the port answerable.
func appHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, "{\"status\":\"ok\",\"version\":%q}\n", version)
	})
	return mux
}
