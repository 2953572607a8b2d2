package relaynet

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
)

func TestSessionEcho(t *testing.T) {
	lg := testLogger(t)
	clientA, clientB := mustPair(t, lg, "tcp")

	session := NewEchoSession(lg, "")
	if !session.Echo() {
		t.Fatal("NewEchoSession did not produce an echo session")
	}

	payload := bytes.Repeat([]byte("xyz"), 50000)
	type clientResult struct {
		data []byte
		err  error
	}
	clientCh := make(chan clientResult, 1)
	go func() {
		if _, err := clientA.Write(payload); err != nil {
			clientCh <- clientResult{nil, err}
			return
		}
		clientA.CloseWrite()
		data, err := io.ReadAll(clientA)
		clientCh <- clientResult{data, err}
	}()

	if err := session.Serve(context.Background(), clientB); err != nil {
		t.Fatalf("Serve returned error: %s", err)
	}

	cr := <-clientCh
	if cr.err != nil {
		t.Fatalf("client side failed: %s", cr.err)
	}
	if !bytes.Equal(cr.data, payload) {
		t.Errorf("client received %d bytes, expected the %d-byte payload echoed back", len(cr.data), len(payload))
	}
}

func TestSessionForwardDialFailure(t *testing.T) {
	lg := testLogger(t)
	clientA, clientB := mustPair(t, lg, "tcp")

	// Grab an address that is guaranteed to refuse connections.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %s", err)
	}
	deadAddr := listener.Addr().String()
	listener.Close()

	session := NewForwardSession(lg, "tcp", deadAddr)
	if session.Echo() {
		t.Fatal("forward session reported echo mode")
	}
	if err := session.Serve(context.Background(), clientB); err == nil {
		t.Fatal("Serve did not fail for an unreachable remote")
	}

	// The client stream is borrowed, so the session must leave it to the
	// caller; it is still open and closable here.
	if err := clientB.Close(); err != nil {
		t.Errorf("client stream was not left usable: %s", err)
	}
	clientA.Close()
}
