// Package relaynet implements the byte-forwarding core of a TCP/IP
// forwarding/echo relay: a half-duplex pump that copies one direction of a
// connection, a duplex relay that runs two pumps over a (client, peer) pair,
// a connection session that establishes the peer side and guarantees its
// release, and a loopback socket-pair helper used to synthesize a remote
// peer for echo mode.
package relaynet

import "io"

// ReadHalfCloser is an interface for bidirectional io streams that implement CloseRead()
type ReadHalfCloser interface {
	// CloseRead shuts down the reading half of a bidirectional io stream (e.g., "socket").
	// Corresponds to net.TCPConn.CloseRead(). This method is called by the reader to
	// indicate no further reads will be coming after this call. The remote writer, if
	// any, will receive an error on further attempts to write to the stream. However, the
	// write half of the bidirectional stream remains active.
	CloseRead() error
}

// WriteHalfCloser is an interface for bidirectional io streams that implement CloseWrite()
type WriteHalfCloser interface {
	// CloseWrite shuts down the writing half of a bidirectional io stream (e.g., "socket").
	// Corresponds to net.TCPConn.CloseWrite(). This method is called by the writer to
	// indicate end-of-stream; no further writes are possible after this call. However, the
	// read half of the bidirectional stream remains active. It allows for protocols
	// like HTTP 1.0 in which a client sends a request, closes the write side of the socket,
	// then reads the response, and a server reads a request until end-of-stream before
	// sending a response.
	CloseWrite() error
}

// Duplex is a bidirectional byte stream whose read and write halves can be
// shut down independently of each other and of the stream as a whole.
// *net.TCPConn and *net.UnixConn both satisfy Duplex.
type Duplex interface {
	io.ReadWriteCloser
	ReadHalfCloser
	WriteHalfCloser
}

// CloseReadQuietly shuts down the read half of s, suppressing failures that
// only indicate the stream is already disconnected or closed. Any other
// failure is returned.
func CloseReadQuietly(s ReadHalfCloser) error {
	if err := s.CloseRead(); err != nil && !IsAlreadyDisconnected(err) {
		return err
	}
	return nil
}

// CloseWriteQuietly shuts down the write half of s, suppressing failures that
// only indicate the stream is already disconnected or closed. Any other
// failure is returned.
func CloseWriteQuietly(s WriteHalfCloser) error {
	if err := s.CloseWrite(); err != nil && !IsAlreadyDisconnected(err) {
		return err
	}
	return nil
}

// CloseQuietly closes s, suppressing already-closed failures.
func CloseQuietly(s io.Closer) error {
	if err := s.Close(); err != nil && !IsAlreadyDisconnected(err) {
		return err
	}
	return nil
}
