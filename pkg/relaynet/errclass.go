package relaynet

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// IOClass is the disposition of a low-level I/O result. Every failure coming
// off a socket is classified exactly once, here, so that platform error-code
// knowledge stays out of the pump and relay logic.
type IOClass int

const (
	// IOOk means the operation succeeded.
	IOOk IOClass = iota

	// IOTransient means the operation was interrupted (EINTR) and should be
	// retried silently, never surfaced.
	IOTransient

	// IOPeerClosed means the peer closed its end, orderly or forcibly. This
	// is a normal pump termination signal, not an error.
	IOPeerClosed

	// IOFatal is any other failure.
	IOFatal
)

func (c IOClass) String() string {
	switch c {
	case IOOk:
		return "ok"
	case IOTransient:
		return "transient"
	case IOPeerClosed:
		return "peer-closed"
	default:
		return "fatal"
	}
}

// ClassifyRead classifies the error from a read on a relayed stream.
//
// A forcible reset (ECONNRESET) during a read counts as orderly EOF, while
// the same condition during a write is reported by ClassifyWrite as
// IOPeerClosed via a different path. The read/write asymmetry is deliberate
// and matches how a reset peer is observed on each half of a socket; keep
// the two classifiers separate.
//
// Note that the Go runtime already restarts most EINTR-interrupted socket
// operations; the IOTransient case remains for streams that surface it.
func ClassifyRead(err error) IOClass {
	switch {
	case err == nil:
		return IOOk
	case errors.Is(err, io.EOF):
		return IOPeerClosed
	case errors.Is(err, syscall.EINTR):
		return IOTransient
	case errors.Is(err, syscall.ECONNRESET):
		// Source peer forcibly closed the connection; same as EOF here.
		return IOPeerClosed
	case errors.Is(err, net.ErrClosed):
		// Our own side was torn down underneath the read (e.g. a forced
		// stop); terminate the pump normally.
		return IOPeerClosed
	default:
		return IOFatal
	}
}

// ClassifyWrite classifies the error from a write on a relayed stream.
// Both a broken pipe (the destination closed its read half) and a forcible
// reset stop the pump normally.
func ClassifyWrite(err error) IOClass {
	switch {
	case err == nil:
		return IOOk
	case errors.Is(err, syscall.EINTR):
		return IOTransient
	case errors.Is(err, syscall.EPIPE):
		return IOPeerClosed
	case errors.Is(err, syscall.ECONNRESET):
		return IOPeerClosed
	case errors.Is(err, net.ErrClosed):
		return IOPeerClosed
	default:
		return IOFatal
	}
}

// IsAlreadyDisconnected reports whether err from a shutdown or close only
// indicates that the stream was already disconnected or closed, which the
// teardown paths suppress so that releasing a stream twice is never fatal.
func IsAlreadyDisconnected(err error) bool {
	return errors.Is(err, syscall.ENOTCONN) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, net.ErrClosed)
}
