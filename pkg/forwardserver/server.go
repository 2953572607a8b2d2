package forwardserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jpillora/backoff"
	"github.com/sammck-go/asyncobj"
	"github.com/sammck-go/logger"

	"github.com/vitaly-krugl/inetpy/pkg/relaynet"
)

// ForwardServer listens for incoming client connections, accepts them one
// at a time, and relays each through a relaynet.Session until the client and
// its peer are both done. Sessions are served sequentially, matching a
// single simulated remote peer; the relay core itself owns disjoint streams
// per session, so a concurrent dispatcher would need no changes there.
//
// A ForwardServer is single-use: construct with New, run with Start, and
// tear down with Stop. Stop is idempotent and bounded: an in-flight session
// is given Config.StopGracePeriod to finish naturally before its client
// connection is forced closed.
type ForwardServer struct {
	*asyncobj.Helper

	cfg     Config
	session *relaynet.Session

	// All fields below are guarded by Helper.Lock.
	listener      net.Listener
	boundAddr     net.Addr
	running       bool
	acceptStarted bool
	activeClient  net.Conn

	// acceptorDone is closed when the accept loop goroutine exits.
	acceptorDone chan struct{}
}

// New creates a ForwardServer from cfg. Defaults are applied and the
// configuration validated; the listening socket is not bound until Start.
func New(lg logger.Logger, cfg Config) (*ForwardServer, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &ForwardServer{
		cfg:          cfg,
		acceptorDone: make(chan struct{}),
	}
	sessionLogger := lg.ForkLogStr("ForwardServer")
	if cfg.EchoMode() {
		s.session = relaynet.NewEchoSession(sessionLogger, cfg.PairFamily)
	} else {
		s.session = relaynet.NewForwardSession(sessionLogger, cfg.RemoteNetwork, cfg.RemoteAddr)
	}
	s.Helper = asyncobj.NewHelper(sessionLogger, s)
	return s, nil
}

// Start binds the listening socket and begins accepting clients. On return
// with nil, Addr reports the actual bound address (ephemeral ports are
// resolved) and Running reports true. A bind failure is returned and leaves
// the server stopped.
func (s *ForwardServer) Start() error {
	return s.DoOnceActivate(s.HandleOnceActivate, false)
}

// HandleOnceActivate binds the listener and launches the accept loop. Called
// exactly once by the activation helper.
func (s *ForwardServer) HandleOnceActivate() error {
	listener, err := net.Listen(s.cfg.ListenNetwork, s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s %s: %w", s.cfg.ListenNetwork, s.cfg.ListenAddr, err)
	}

	s.Lock.Lock()
	s.listener = listener
	s.boundAddr = listener.Addr()
	s.running = true
	s.acceptStarted = true
	s.Lock.Unlock()

	s.ILogf("listening on %s (%s mode)", listener.Addr(), s.modeName())
	go s.acceptLoop(listener)
	return nil
}

// Addr returns the listening socket's actual bound address. It is nil
// before a successful Start.
func (s *ForwardServer) Addr() net.Addr {
	s.Lock.Lock()
	defer s.Lock.Unlock()
	return s.boundAddr
}

// Running reports whether the server is accepting connections.
func (s *ForwardServer) Running() bool {
	if s.IsStartedShutdown() {
		return false
	}
	s.Lock.Lock()
	defer s.Lock.Unlock()
	return s.running
}

// Stop shuts the server down and waits for teardown to complete. It is
// idempotent and safe to call from any goroutine; every call returns the
// same final status. The accept loop is terminated immediately; an
// in-flight session is tolerated for Config.StopGracePeriod before being
// forced.
func (s *ForwardServer) Stop() error {
	s.StartShutdown(nil)
	return s.WaitShutdown()
}

// HandleOnceShutdown closes the listener, then waits out the in-flight
// session, forcing its client connection closed if it outlives the grace
// period. Called exactly once by the shutdown helper.
func (s *ForwardServer) HandleOnceShutdown(completionErr error) error {
	s.Lock.Lock()
	s.running = false
	listener := s.listener
	started := s.acceptStarted
	s.Lock.Unlock()

	if listener != nil {
		if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) && completionErr == nil {
			completionErr = err
		}
	}
	if !started {
		return completionErr
	}

	grace := time.Duration(s.cfg.StopGracePeriod)
	select {
	case <-s.acceptorDone:
	case <-time.After(grace):
		s.WLogf("session still active after %s; forcing client connection closed", grace)
		s.closeActiveClient()
		select {
		case <-s.acceptorDone:
		case <-time.After(grace):
			err := fmt.Errorf("session unresponsive after forced disconnect")
			s.ELogf("%s", err)
			if completionErr == nil {
				completionErr = err
			}
		}
	}
	return completionErr
}

// acceptLoop serves clients sequentially until the listener is closed.
// Temporary accept failures are retried with backoff; any other failure
// shuts the server down.
func (s *ForwardServer) acceptLoop(listener net.Listener) {
	defer close(s.acceptorDone)

	retry := &backoff.Backoff{Max: time.Second}
	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.IsStartedShutdown() || errors.Is(err, net.ErrClosed) {
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				d := retry.Duration()
				s.WLogf("accept failed, retrying in %s: %s", d, err)
				time.Sleep(d)
				continue
			}
			s.ELogf("accept failed: %s", err)
			s.StartShutdown(err)
			return
		}
		retry.Reset()
		s.serveOne(conn)
	}
}

// serveOne runs a single client connection through the session and then
// disposes of it. Session errors never stop the server; the next client is
// accepted regardless.
func (s *ForwardServer) serveOne(conn net.Conn) {
	defer conn.Close()
	s.setActiveClient(conn)
	defer s.setActiveClient(nil)

	client, ok := conn.(relaynet.Duplex)
	if !ok {
		s.WLogf("rejecting %s: connection does not support half-close", conn.RemoteAddr())
		return
	}

	s.ILogf("client %s connected", conn.RemoteAddr())
	if err := s.session.Serve(context.Background(), client); err != nil {
		s.WLogf("client %s session failed: %s", conn.RemoteAddr(), err)
	} else {
		s.DLogf("client %s done", conn.RemoteAddr())
	}
}

func (s *ForwardServer) setActiveClient(conn net.Conn) {
	s.Lock.Lock()
	s.activeClient = conn
	s.Lock.Unlock()
}

func (s *ForwardServer) closeActiveClient() {
	s.Lock.Lock()
	conn := s.activeClient
	s.Lock.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (s *ForwardServer) modeName() string {
	if s.cfg.EchoMode() {
		return "echo"
	}
	return "forward"
}
