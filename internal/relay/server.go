// Package relay composes the CTMP frame codec, destination roster, worker
// pool, and admission gate into a running relay: two independent TCP
// accept loops wired to the rest of the pipeline.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/ctmprelay/ctmp-relay/internal/admission"
	"github.com/ctmprelay/ctmp-relay/internal/logging"
	"github.com/ctmprelay/ctmp-relay/internal/metrics"
	"github.com/ctmprelay/ctmp-relay/internal/roster"
	"github.com/ctmprelay/ctmp-relay/internal/workerpool"
)

// Config holds the addresses and worker count a Server is built from.
type Config struct {
	SourceAddr string
	DestAddr   string
	Workers    int
}

// Server owns the destination roster, the source admission gate, and the
// worker pool that runs source sessions, plus the two accept loops that
// feed them.
type Server struct {
	cfg Config

	dest *roster.Roster
	gate admission.Gate
	pool *workerpool.Pool

	srcLn net.Listener
	dstLn net.Listener

	ready chan struct{}
}

// NewServer constructs a Server. It does not bind any sockets; call Serve
// to start listening.
func NewServer(cfg Config) *Server {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	return &Server{
		cfg:   cfg,
		dest:  roster.New(),
		pool:  workerpool.New(cfg.Workers),
		ready: make(chan struct{}),
	}
}

// Ready is closed once both listeners are bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// SourceAddr returns the bound source listener address. Valid only after
// Serve has signaled readiness.
func (s *Server) SourceAddr() string {
	if s.srcLn == nil {
		return ""
	}
	return s.srcLn.Addr().String()
}

// DestAddr returns the bound destination listener address. Valid only
// after Serve has signaled readiness.
func (s *Server) DestAddr() string {
	if s.dstLn == nil {
		return ""
	}
	return s.dstLn.Addr().String()
}

// Serve binds both listeners and runs the destination acceptor on its own
// goroutine and the source acceptor on the calling goroutine. If either
// address cannot be bound it returns that error at once. Otherwise it
// blocks until ctx is cancelled, then tears down the worker pool and
// roster before returning nil.
func (s *Server) Serve(ctx context.Context) error {
	srcLn, err := net.Listen("tcp", s.cfg.SourceAddr)
	if err != nil {
		metrics.IncError(metrics.ErrListen)
		return fmt.Errorf("relay: listen source: %w", err)
	}
	s.srcLn = srcLn

	dstLn, err := net.Listen("tcp", s.cfg.DestAddr)
	if err != nil {
		metrics.IncError(metrics.ErrListen)
		_ = srcLn.Close()
		return fmt.Errorf("relay: listen dest: %w", err)
	}
	s.dstLn = dstLn

	logging.L().Info("source_listen", "addr", srcLn.Addr().String())
	logging.L().Info("dest_listen", "addr", dstLn.Addr().String())
	close(s.ready)
	logging.L().Info("ready")

	go s.acceptDestinations()

	// The source acceptor runs on the calling goroutine; Serve blocks here
	// until ctx is cancelled, at which point shutdownListeners makes
	// srcLn.Accept return net.ErrClosed and the loop exits.
	go func() {
		<-ctx.Done()
		s.shutdownListeners()
	}()
	s.acceptSourcesLoop()

	// A worker may be parked in a read on the admitted source's socket;
	// closing it here unblocks that read so the session's defer runs and
	// the pool actually drains, instead of pool.Close() blocking forever
	// on wg.Wait().
	s.gate.CloseCurrent()
	s.pool.Close()
	s.dest.Close()
	snap := metrics.Snap()
	logging.L().Info("shutdown_summary",
		"state", s.pool.State(),
		"destinations_accepted", snap.DestAdded,
		"source_admitted", snap.SourceAdmitted,
		"source_rejected", snap.SourceRejected,
		"destinations_evicted", snap.DestEvicted,
	)
	return nil
}

// acceptSourcesLoop runs on the calling goroutine for the lifetime of the
// server.
func (s *Server) acceptSourcesLoop() {
	for {
		conn, err := s.srcLn.Accept()
		if err != nil {
			if errClosed(err) {
				return
			}
			metrics.IncError(metrics.ErrAccept)
			logging.L().Warn("source_accept_error", "error", err)
			continue
		}
		s.handleSourceConn(conn)
	}
}

// handleSourceConn admits conn or rejects it, then dispatches an admitted
// connection into the worker pool. Rejection happens synchronously in the
// accept loop, never via the pool, so a second source is closed
// immediately without consuming any bytes and without waiting on a free
// worker.
func (s *Server) handleSourceConn(conn net.Conn) {
	if !s.gate.TryAdmit(conn) {
		logging.L().Info("source_rejected", "reason", ErrSourceActive, "addr", conn.RemoteAddr().String())
		_ = conn.Close()
		return
	}
	job := func() { runSourceSession(conn, s.dest, &s.gate) }
	if err := s.pool.Submit(job); err != nil {
		// Pool is shutting down; clear admission ourselves since the job
		// that would have cleared it never ran.
		s.gate.Clear()
		_ = conn.Close()
	}
}

// acceptDestinations runs on its own goroutine for the lifetime of the
// server; destination admission is never blocked by source work.
func (s *Server) acceptDestinations() {
	for {
		conn, err := s.dstLn.Accept()
		if err != nil {
			if errClosed(err) {
				return
			}
			metrics.IncError(metrics.ErrAccept)
			logging.L().Warn("dest_accept_error", "error", err)
			continue
		}
		s.dest.Add(conn)
		logging.L().Info("destination_connected", "addr", conn.RemoteAddr().String())
	}
}

func (s *Server) shutdownListeners() {
	if s.srcLn != nil {
		_ = s.srcLn.Close()
	}
	if s.dstLn != nil {
		_ = s.dstLn.Close()
	}
}

// errClosed reports whether err is the listener-closed sentinel produced
// by Accept after Close, used to distinguish a deliberate shutdown from a
// genuine accept failure.
func errClosed(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
