package client

import (
	"github.com/quic-go/quic-go/http3"
)

// http3RoundTripper builds the QUIC dispatcher.  The transport resolves the
// host, performs the QUIC handshake with ALPN h3 under the request context
// (which already carries the per-request timeout), streams the body, and
// reads response frames until end-of-stream.  The cleanup function closes
// the QUIC endpoint so a timed-out request releases its sockets.
func (c *Client) http3RoundTripper() (roundTripFunc, func(), error) {
	transport := &http3.Transport{
		TLSClientConfig: c.tls.Clone(),
	}
	cleanup := func() {
		transport.Close()
	}
	return transport.RoundTrip, cleanup, nil
}
