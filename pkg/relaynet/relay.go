package relaynet

import (
	"sync"

	"github.com/jpillora/sizestr"
	"github.com/sammck-go/logger"
)

// RelayResult reports both pump directions of one completed relay.
type RelayResult struct {
	// ToPeer is the client-to-peer direction.
	ToPeer PumpResult

	// ToClient is the peer-to-client direction.
	ToClient PumpResult
}

// Relay forwards traffic in both directions between a client stream and a
// peer, running the two pump directions concurrently. peerSrc and peerDst
// may be the same stream (an outbound connection serving both roles) or two
// distinct ends of a loopback pair; the client-to-peer pump writes to
// peerDst and the peer-to-client pump reads from peerSrc.
//
// Relay returns only after both pumps have fully terminated, including their
// half-close side effects, so a slow final flush in one direction is never
// truncated by the other. The two directions are otherwise independent: an
// EOF or error on one does not block or corrupt the other, since each pump
// only shuts down the two ends of its own data path.
//
// After both pumps finish, the peer stream(s) are fully shut down and
// closed. Closing the client stream remains the caller's responsibility.
func Relay(lg logger.Logger, client Duplex, peerSrc Duplex, peerDst Duplex) RelayResult {
	var res RelayResult

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		res.ToPeer = Pump(lg.ForkLogStr("client->peer"), client, peerDst)
	}()
	res.ToClient = Pump(lg.ForkLogStr("peer->client"), peerSrc, client)
	wg.Wait()

	// Both directions are done; only now is it safe to tear down the peer.
	ReleasePeer(peerSrc, peerDst)

	lg.DLogf("relay done (sent %s, received %s)",
		sizestr.ToString(res.ToPeer.BytesCopied),
		sizestr.ToString(res.ToClient.BytesCopied))
	return res
}

// ReleasePeer shuts down both halves of every distinct peer-side stream and
// then closes them. peerSrc and peerDst are released independently unless
// they are the same stream. All steps suppress already-disconnected
// failures, so releasing a peer that a relay already tore down is harmless.
func ReleasePeer(peerSrc Duplex, peerDst Duplex) {
	defer func() {
		CloseQuietly(peerDst)
		if peerSrc != peerDst {
			CloseQuietly(peerSrc)
		}
	}()
	defer func() {
		if peerSrc != peerDst {
			shutdownBoth(peerSrc)
		}
	}()
	shutdownBoth(peerDst)
}

// shutdownBoth shuts down both halves of s, read half first; the write half
// is attempted even if the read half fails.
func shutdownBoth(s Duplex) {
	defer CloseWriteQuietly(s)
	CloseReadQuietly(s)
}
