// Package client is the execution engine: it builds tuned HTTP transports,
// dispatches requests over the protocol the invocation selects (HTTP/1.1,
// HTTP/2, HTTP/3, WebSocket, Unix socket, gRPC), follows redirects with the
// correct method/body rewriting, and classifies transport failures.
package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/net/http2"

	"github.com/quicpulse/quicpulse/status"
)

// Transport pool tuning.  Sized for driver runs where hundreds of concurrent
// requests hit a single origin; idle connections are evicted after 30 s so
// the OS can reclaim sockets.
const (
	poolMaxIdleConns      = 500
	poolMaxIdlePerHost    = 100
	poolIdleTimeout       = 30 * time.Second
	tlsHandshakeTimeout   = 10 * time.Second
	expectContinueTimeout = 1 * time.Second
)

// Options carries every transport-level knob the CLI exposes.
type Options struct {
	// Timeout is the end-to-end budget for one request (zero = none).
	Timeout time.Duration
	// FollowRedirects enables the redirect loop.
	FollowRedirects bool
	// MaxRedirects caps the redirect chain length.
	MaxRedirects int

	// Verify is "yes", "no", or a CA bundle path.
	Verify string
	// CertFile and KeyFile configure the client certificate.
	CertFile string
	KeyFile  string
	// SSLVersion pins the TLS version ("tls1.2", "tls1.3", ...).
	SSLVersion string
	// Ciphers is a colon-separated cipher-suite name list.
	Ciphers string
	// Impersonate selects a browser ClientHello preset ("chrome").
	Impersonate string

	// Proxies are repeated "PROTO:URL" mappings; SocksProxy is --socks.
	Proxies    []string
	SocksProxy string
	// Resolve entries are "HOST:PORT:ADDR" static overrides.
	Resolve []string

	// HTTPVersion forces "1.1" or "2"; empty negotiates.
	HTTPVersion string
	// HTTP3 selects the QUIC dispatcher (https only).
	HTTP3 bool
	// UnixSocket dispatches over a filesystem socket path.
	UnixSocket string
}

// Client wraps a tuned *http.Client plus the policy needed by the dispatch
// and redirect machinery.  A Client is safe for concurrent use and is shared
// read-only across driver tasks.
type Client struct {
	http *http.Client
	opts Options
	tls  *tls.Config
}

// New builds a Client.  Each Client owns its own transport so concurrent
// driver runs never contend on a shared idle-connection pool.
func New(opts Options) (*Client, error) {
	tlsCfg, err := buildTLSConfig(opts)
	if err != nil {
		return nil, err
	}
	transport, err := buildTransport(opts, tlsCfg)
	if err != nil {
		return nil, err
	}
	return &Client{
		// Redirects are handled by the engine's own loop so the method
		// demotion, body drop, and re-signing rules stay in one place.
		http: &http.Client{
			Transport:     transport,
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
		opts: opts,
		tls:  tlsCfg,
	}, nil
}

// Options returns the policy the client was built with.
func (c *Client) Options() Options { return c.opts }

// HTTPClient exposes the underlying *http.Client for driver runs that
// dispatch directly.
func (c *Client) HTTPClient() *http.Client { return c.http }

// CloseIdleConnections drains the idle pool.
func (c *Client) CloseIdleConnections() {
	c.http.CloseIdleConnections()
}

// buildTLSConfig translates the verify/cert/version/cipher flags into a
// *tls.Config shared by every dispatcher.
func buildTLSConfig(opts Options) (*tls.Config, error) {
	cfg := &tls.Config{}

	switch opts.Verify {
	case "", "yes":
	case "no":
		cfg.InsecureSkipVerify = true // #nosec G402 – explicit --verify=no
	default:
		pem, err := os.ReadFile(opts.Verify)
		if err != nil {
			return nil, status.Wrap(status.KindSSL, err, "read CA bundle "+opts.Verify)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, status.Errorf(status.KindSSL, "no certificates found in %s", opts.Verify)
		}
		cfg.RootCAs = pool
	}

	if opts.CertFile != "" {
		key := opts.KeyFile
		if key == "" {
			key = opts.CertFile
		}
		cert, err := tls.LoadX509KeyPair(opts.CertFile, key)
		if err != nil {
			return nil, status.Wrap(status.KindSSL, err, "load client certificate")
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	if opts.SSLVersion != "" {
		version, err := tlsVersion(opts.SSLVersion)
		if err != nil {
			return nil, err
		}
		cfg.MinVersion = version
		cfg.MaxVersion = version
	}

	if opts.Ciphers != "" {
		suites, err := cipherSuites(opts.Ciphers)
		if err != nil {
			return nil, err
		}
		cfg.CipherSuites = suites
	}

	return cfg, nil
}

func tlsVersion(name string) (uint16, error) {
	switch strings.ToLower(name) {
	case "tls1", "tls1.0":
		return tls.VersionTLS10, nil
	case "tls1.1":
		return tls.VersionTLS11, nil
	case "tls1.2":
		return tls.VersionTLS12, nil
	case "tls1.3":
		return tls.VersionTLS13, nil
	}
	return 0, status.Errorf(status.KindArgument, "unknown TLS version %q", name)
}

// cipherSuites maps a colon-separated cipher list onto the runtime's suite
// identifiers by name.
func cipherSuites(list string) ([]uint16, error) {
	byName := make(map[string]uint16)
	for _, s := range tls.CipherSuites() {
		byName[s.Name] = s.ID
	}
	var out []uint16
	for _, name := range strings.Split(list, ":") {
		id, ok := byName[strings.TrimSpace(name)]
		if !ok {
			return nil, status.Errorf(status.KindArgument, "unknown cipher suite %q", name)
		}
		out = append(out, id)
	}
	return out, nil
}

// buildTransport creates the HTTP/1.1–HTTP/2 transport with the pool limits
// above, proxy routing, static resolve overrides, and the optional uTLS
// browser handshake.  With --http-version 2 it returns a bare
// http2.Transport that uses only tlsCfg and the resolve overrides; the pool
// limits, proxy routing and uTLS do not apply there.
func buildTransport(opts Options, tlsCfg *tls.Config) (http.RoundTripper, error) {
	proxyFn, err := proxyFunc(opts)
	if err != nil {
		return nil, err
	}

	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	dialCtx := dialer.DialContext
	if len(opts.Resolve) > 0 {
		overrides, err := parseResolve(opts.Resolve)
		if err != nil {
			return nil, err
		}
		inner := dialCtx
		dialCtx = func(ctx context.Context, network, addr string) (net.Conn, error) {
			if replacement, ok := overrides[addr]; ok {
				addr = replacement
			}
			return inner(ctx, network, addr)
		}
	}

	if opts.HTTPVersion == "2" {
		h2 := &http2.Transport{
			TLSClientConfig: tlsCfg,
			DialTLSContext: func(ctx context.Context, network, addr string, cfg *tls.Config) (net.Conn, error) {
				raw, err := dialCtx(ctx, network, addr)
				if err != nil {
					return nil, err
				}
				conn := tls.Client(raw, cfg)
				if err := conn.HandshakeContext(ctx); err != nil {
					raw.Close()
					return nil, err
				}
				return conn, nil
			},
		}
		return h2, nil
	}

	t := &http.Transport{
		Proxy:                 proxyFn,
		DialContext:           dialCtx,
		TLSClientConfig:       tlsCfg,
		MaxIdleConns:          poolMaxIdleConns,
		MaxIdleConnsPerHost:   poolMaxIdlePerHost,
		IdleConnTimeout:       poolIdleTimeout,
		TLSHandshakeTimeout:   tlsHandshakeTimeout,
		ExpectContinueTimeout: expectContinueTimeout,
		ForceAttemptHTTP2:     true,
	}

	if opts.Impersonate != "" {
		t.DialTLSContext = UTLSDialContext(opts.Impersonate, tlsCfg)
	}

	if opts.HTTPVersion == "1.1" {
		// An empty (non-nil) TLSNextProto map disables the bundled h2.
		t.TLSNextProto = make(map[string]func(string, *tls.Conn) http.RoundTripper)
		t.ForceAttemptHTTP2 = false
	}
	return t, nil
}

// parseResolve turns repeated "HOST:PORT:ADDR" flags into a dial-address
// override map keyed by "HOST:PORT".
func parseResolve(entries []string) (map[string]string, error) {
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		parts := strings.Split(e, ":")
		if len(parts) != 3 {
			return nil, status.Errorf(status.KindArgument, "invalid --resolve %q: want HOST:PORT:ADDR", e)
		}
		out[parts[0]+":"+parts[1]] = net.JoinHostPort(parts[2], parts[1])
	}
	return out, nil
}

// proxyFunc builds the per-scheme proxy selector: repeated --proxy PROTO:URL
// flags first, then --socks.  The standard environment variables
// (HTTP_PROXY, HTTPS_PROXY, NO_PROXY) are used only when neither flag is
// given; otherwise a scheme with no mapping and no --socks goes direct.
func proxyFunc(opts Options) (func(*http.Request) (*url.URL, error), error) {
	table, err := NewProxyTable(opts.Proxies, opts.SocksProxy)
	if err != nil {
		return nil, err
	}
	if table.Empty() {
		return http.ProxyFromEnvironment, nil
	}
	return table.ProxyFor, nil
}
