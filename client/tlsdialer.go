package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"

	utls "github.com/refraction-networking/utls"
)

// UTLSDialContext returns a DialTLSContext function that performs the TLS
// handshake with the uTLS library, presenting the ClientHello of a real
// browser instead of Go's default.  Servers that profile TLS fingerprints
// (cipher ordering, GREASE, extension order) then see an ordinary browser
// handshake.
//
// preset selects the parrot: "chrome" (the default for any unrecognized
// value), "firefox" or "safari".  The caller's verify policy is forwarded; everything
// else in tlsCfg is overridden by the ClientHelloSpec anyway.
//
// The returned dialer is safe for concurrent use and wires directly into
// http.Transport.DialTLSContext.
func UTLSDialContext(preset string, tlsCfg *tls.Config) func(ctx context.Context, network, addr string) (net.Conn, error) {
	helloID := helloIDForPreset(preset)
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("utls dialer: parse addr %q: %w", addr, err)
		}

		var d net.Dialer
		rawConn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, fmt.Errorf("utls dialer: dial %s: %w", addr, err)
		}

		uCfg := &utls.Config{
			ServerName:         host,
			InsecureSkipVerify: tlsCfg != nil && tlsCfg.InsecureSkipVerify, // #nosec G402 – caller-controlled
		}
		uConn := utls.UClient(rawConn, uCfg, helloID)
		if err := uConn.HandshakeContext(ctx); err != nil {
			_ = uConn.Close()
			return nil, fmt.Errorf("utls dialer: TLS handshake with %s: %w", addr, err)
		}
		return uConn, nil
	}
}

// helloIDForPreset maps the --impersonate value to a uTLS parrot.  The
// parrot table already encodes GREASE placeholders, cipher-suite ordering,
// and extension ordering for each browser version.
func helloIDForPreset(preset string) utls.ClientHelloID {
	switch strings.ToLower(preset) {
	case "firefox":
		return utls.HelloFirefox_Auto
	case "safari":
		return utls.HelloSafari_Auto
	default:
		return utls.HelloChrome_Auto
	}
}
