package relaynet

import (
	"fmt"

	"github.com/sammck-go/logger"
)

// SockRxBufSize is the chunk size used by Pump. Only one chunk is in flight
// at a time; nothing is buffered across iterations.
const SockRxBufSize = 16 * 1024

// PumpOutcome says why a pump stopped.
type PumpOutcome int

const (
	// PumpSourceClosed means the source reached orderly EOF, or forcibly
	// reset the connection, which a read observes the same way.
	PumpSourceClosed PumpOutcome = iota

	// PumpDestinationClosed means the destination closed its read half or
	// reset the connection; the unwritten remainder of the current chunk is
	// discarded.
	PumpDestinationClosed

	// PumpFailed means an unexpected I/O failure; see PumpResult.Err.
	PumpFailed
)

func (o PumpOutcome) String() string {
	switch o {
	case PumpSourceClosed:
		return "source-closed"
	case PumpDestinationClosed:
		return "destination-closed"
	default:
		return "failed"
	}
}

// PumpResult is the result of one Pump run.
type PumpResult struct {
	Outcome PumpOutcome

	// BytesCopied is the number of bytes fully flushed to the destination.
	BytesCopied int64

	// Err is non-nil iff Outcome is PumpFailed.
	Err error
}

// Pump copies bytes from src to dst until source EOF or a terminal error.
// Every non-empty read is flushed to dst in full (short writes are retried)
// before the next read is issued, so bytes are forwarded in order, exactly
// once. Interrupted reads and writes are retried transparently; peer-closed
// conditions on either end stop the pump normally (see ClassifyRead and
// ClassifyWrite for the exact taxonomy).
//
// On every exit path, normal or failed, the pump shuts down the read half of
// src (telling the source peer it is done receiving) and then the write half
// of dst (telling the destination peer it is done sending), in that order.
// Both shutdowns are attempted even if the first fails, and failures that
// only mean "already disconnected" are swallowed.
func Pump(lg logger.Logger, src Duplex, dst Duplex) (res PumpResult) {
	defer func() {
		// The inner defer guarantees the dst write half is shut down even if
		// shutting down the src read half panics.
		defer CloseWriteQuietly(dst)
		CloseReadQuietly(src)
	}()

	buf := make([]byte, SockRxBufSize)
	for {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw := 0
			for nw < nr {
				n, werr := dst.Write(buf[nw:nr])
				if n > 0 {
					nw += n
					res.BytesCopied += int64(n)
				}
				if werr != nil {
					switch ClassifyWrite(werr) {
					case IOTransient:
						// Interrupted mid-flush; keep writing the remainder.
					case IOPeerClosed:
						lg.DLogf("destination closed after %d bytes", res.BytesCopied)
						res.Outcome = PumpDestinationClosed
						return res
					default:
						res.Outcome = PumpFailed
						res.Err = fmt.Errorf("relay write: %w", werr)
						return res
					}
				}
			}
		}
		if rerr != nil {
			switch ClassifyRead(rerr) {
			case IOTransient:
				continue
			case IOPeerClosed:
				lg.DLogf("source closed after %d bytes", res.BytesCopied)
				res.Outcome = PumpSourceClosed
				return res
			default:
				res.Outcome = PumpFailed
				res.Err = fmt.Errorf("relay read: %w", rerr)
				return res
			}
		}
	}
}
