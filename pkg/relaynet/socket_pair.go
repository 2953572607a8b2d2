package relaynet

import (
	"fmt"
	"net"
	"runtime"

	"github.com/prep/socketpair"
	"github.com/sammck-go/logger"
)

// SocketPair returns two connected, full-duplex stream sockets: bytes
// written to endA are readable on endB and vice versa. It is used to
// synthesize a remote peer without a second real endpoint.
//
// family selects the address family of the pair: "unix", "tcp", "tcp4" or
// "tcp6". The empty string is resolved once, at call time, to "unix" on
// platforms that support unix-domain socket pairs and "tcp" elsewhere. The
// TCP families work everywhere via a loopback listener that is dialed and
// accepted concurrently, so neither side blocks the other.
//
// The caller owns both ends and must close them.
func SocketPair(lg logger.Logger, family string) (endA Duplex, endB Duplex, err error) {
	if family == "" {
		if runtime.GOOS == "windows" {
			family = "tcp"
		} else {
			family = "unix"
		}
	}

	switch family {
	case "unix":
		c1, c2, err := socketpair.New("unix")
		if err != nil {
			return nil, nil, fmt.Errorf("unix socketpair: %w", err)
		}
		lg.DLogf("created unix socketpair")
		return c1.(*net.UnixConn), c2.(*net.UnixConn), nil
	case "tcp", "tcp4", "tcp6":
		return loopbackPair(lg, family)
	default:
		return nil, nil, fmt.Errorf("unsupported socket pair family %q", family)
	}
}

// loopbackPair builds a connected pair by binding a loopback listener,
// dialing it from a background goroutine, and accepting in the foreground.
func loopbackPair(lg logger.Logger, network string) (Duplex, Duplex, error) {
	bindAddr := "127.0.0.1:0"
	if network == "tcp6" {
		bindAddr = "[::1]:0"
	}
	listener, err := net.Listen(network, bindAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("loopback listen: %w", err)
	}
	defer listener.Close()

	type dialResult struct {
		conn net.Conn
		err  error
	}
	dialed := make(chan dialResult, 1)
	go func() {
		conn, err := net.Dial(network, listener.Addr().String())
		dialed <- dialResult{conn, err}
	}()

	accepted, acceptErr := listener.Accept()
	dr := <-dialed
	if acceptErr != nil || dr.err != nil {
		if accepted != nil {
			accepted.Close()
		}
		if dr.conn != nil {
			dr.conn.Close()
		}
		if acceptErr != nil {
			return nil, nil, fmt.Errorf("loopback accept: %w", acceptErr)
		}
		return nil, nil, fmt.Errorf("loopback dial: %w", dr.err)
	}

	lg.DLogf("created %s loopback pair on %s", network, listener.Addr())
	return dr.conn.(*net.TCPConn), accepted.(*net.TCPConn), nil
}
