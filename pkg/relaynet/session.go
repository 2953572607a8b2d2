package relaynet

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/google/uuid"
	"github.com/sammck-go/logger"
)

// Session relays traffic for accepted client connections, one at a time. A
// session is configured once, at construction, with either a forward target
// or echo mode; the mode never changes afterward. The same Session value may
// serve any number of client connections, since each Serve call owns a
// disjoint set of streams.
type Session struct {
	lg logger.Logger

	// remoteNetwork/remoteAddr identify the forward target; remoteAddr == ""
	// selects echo mode.
	remoteNetwork string
	remoteAddr    string

	// pairFamily is the loopback pair family used in echo mode ("" selects
	// the platform default; see SocketPair).
	pairFamily string

	dialer net.Dialer
}

// NewForwardSession creates a Session that connects each client onward to
// the given remote address ("tcp", "tcp4", "tcp6" or "unix" network) and
// relays bytes bidirectionally.
func NewForwardSession(lg logger.Logger, remoteNetwork string, remoteAddr string) *Session {
	return &Session{
		lg:            lg,
		remoteNetwork: remoteNetwork,
		remoteAddr:    remoteAddr,
	}
}

// NewEchoSession creates a Session that echoes each client's bytes back to
// it through a loopback pair, with no remote connection at all.
func NewEchoSession(lg logger.Logger, pairFamily string) *Session {
	return &Session{
		lg:         lg,
		pairFamily: pairFamily,
	}
}

// Echo reports whether the session runs in echo mode.
func (s *Session) Echo() bool {
	return s.remoteAddr == ""
}

// Serve relays one accepted client connection until both directions have
// finished. The client stream is borrowed: the caller remains responsible
// for closing it. Every peer-side resource is released before Serve
// returns, no matter how the relay ends.
//
// A failure to establish the peer side aborts the session and is returned.
// Ordinary peer disconnects (EOF, reset, broken pipe) are normal relay
// terminations, not errors; only unexpected I/O failures are returned, and
// then only after teardown has completed.
func (s *Session) Serve(ctx context.Context, client Duplex) error {
	lg := s.lg.ForkLogStr(fmt.Sprintf("session %s", uuid.New()))

	var peerSrc, peerDst Duplex
	if s.Echo() {
		// One end receives the client's bytes, the other supplies them back.
		// Two distinct handles, both of which must be released.
		endA, endB, err := SocketPair(lg, s.pairFamily)
		if err != nil {
			return fmt.Errorf("echo pair: %w", err)
		}
		peerDst, peerSrc = endA, endB
	} else {
		conn, err := s.dialer.DialContext(ctx, s.remoteNetwork, s.remoteAddr)
		if err != nil {
			return fmt.Errorf("connect %s %s: %w", s.remoteNetwork, s.remoteAddr, err)
		}
		duplex, ok := conn.(Duplex)
		if !ok {
			conn.Close()
			return fmt.Errorf("connect %s %s: connection does not support half-close", s.remoteNetwork, s.remoteAddr)
		}
		lg.DLogf("connected to remote %s", conn.RemoteAddr())
		// A single stream fulfills both peer roles.
		peerSrc, peerDst = duplex, duplex
	}
	defer ReleasePeer(peerSrc, peerDst)

	res := Relay(lg, client, peerSrc, peerDst)
	if err := errors.Join(res.ToPeer.Err, res.ToClient.Err); err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	return nil
}
