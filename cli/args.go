// Package cli parses the command line: the enumerated flag set plus the
// [METHOD] URL [ITEM...] positional grammar.
package cli

import (
	"time"

	"github.com/spf13/pflag"

	"github.com/quicpulse/quicpulse/status"
)

// Args is the parsed flag surface.
type Args struct {
	// Content
	JSON      bool
	Form      bool
	Multipart bool
	Boundary  string
	Raw       string

	// Compression
	Compress int
	Chunked  bool

	// Network
	Timeout      float64
	Follow       bool
	MaxRedirects int
	Proxies      []string
	Socks        string
	UnixSocket   string
	Resolve      []string
	HTTPVersion  string
	HTTP3        bool

	// TLS
	Verify      string
	Cert        string
	CertKey     string
	CertKeyPass string
	SSLVersion  string
	Ciphers     string
	Impersonate string

	// Auth
	Auth        string
	AuthType    string
	AWSRegion   string
	AWSService  string
	AWSProfile  string
	IgnoreNetrc bool

	// Output
	Print       string
	HeadersOnly bool
	BodyOnly    bool
	Verbose     int
	Quiet       int
	Stream      bool
	Output      string
	Download    bool
	Continue    bool
	CheckStatus bool
	All         bool
	NoColor     bool

	// Session
	Session string

	// Script
	Script string

	// WebSocket
	WS            bool
	WSSend        string
	WSListen      bool
	WSSubprotocol string
	WSPingSecs    float64

	// gRPC
	GRPC bool

	// Bench
	Bench            bool
	BenchRequests    int
	BenchConcurrency int

	// Fuzz
	Fuzz              bool
	FuzzFields        []string
	FuzzCategories    []string
	FuzzRisk          int
	FuzzConcurrency   int
	FuzzAnomaliesOnly bool
	FuzzStopOnAnomaly bool
	FuzzDict          string
	FuzzPayloads      []string

	// HAR
	HARReplay  string
	HARFilter  string
	HARIndices []int
	HARDelay   time.Duration

	// Misc
	ConfigFile    string
	DefaultScheme string
	Debug         bool

	// Positionals is [METHOD] URL [ITEM...] before disambiguation.
	Positionals []string
}

// Parse decodes argv (excluding the program name).
func Parse(argv []string) (*Args, error) {
	var a Args
	fs := pflag.NewFlagSet("quicpulse", pflag.ContinueOnError)
	fs.SortFlags = false

	fs.BoolVarP(&a.JSON, "json", "j", true, "serialize data items as JSON (default)")
	fs.BoolVarP(&a.Form, "form", "f", false, "serialize data items as form fields")
	fs.BoolVar(&a.Multipart, "multipart", false, "force multipart/form-data")
	fs.StringVar(&a.Boundary, "boundary", "", "custom multipart boundary")
	fs.StringVar(&a.Raw, "raw", "", "raw request body")

	fs.CountVarP(&a.Compress, "compress", "x", "deflate request body (-xx to force)")
	fs.BoolVar(&a.Chunked, "chunked", false, "chunked transfer encoding")

	fs.Float64Var(&a.Timeout, "timeout", 0, "request timeout in seconds")
	fs.BoolVarP(&a.Follow, "follow", "F", false, "follow redirects")
	fs.IntVar(&a.MaxRedirects, "max-redirects", 30, "redirect limit")
	fs.StringArrayVar(&a.Proxies, "proxy", nil, "proxy mapping PROTO:URL (repeatable)")
	fs.StringVar(&a.Socks, "socks", "", "SOCKS proxy URL")
	fs.StringVar(&a.UnixSocket, "unix-socket", "", "dispatch over a Unix domain socket")
	fs.StringArrayVar(&a.Resolve, "resolve", nil, "static resolve HOST:PORT:ADDR (repeatable)")
	fs.StringVar(&a.HTTPVersion, "http-version", "", "force HTTP version (1.1 or 2)")
	fs.BoolVar(&a.HTTP3, "http3", false, "use HTTP/3 (https only)")

	fs.StringVar(&a.Verify, "verify", "yes", "TLS verification: yes, no, or CA path")
	fs.StringVar(&a.Cert, "cert", "", "client certificate path")
	fs.StringVar(&a.CertKey, "cert-key", "", "client certificate key path")
	fs.StringVar(&a.CertKeyPass, "cert-key-pass", "", "client key passphrase")
	fs.StringVar(&a.SSLVersion, "ssl", "", "pin TLS version")
	fs.StringVar(&a.Ciphers, "ciphers", "", "TLS cipher suite list")
	fs.StringVar(&a.Impersonate, "impersonate", "", "browser TLS fingerprint preset")

	fs.StringVarP(&a.Auth, "auth", "a", "", "credentials (user:pass, token, or key:secret)")
	fs.StringVarP(&a.AuthType, "auth-type", "A", "", "auth scheme: basic, digest, bearer, aws-sigv4")
	fs.StringVar(&a.AWSRegion, "aws-region", "", "AWS region for SigV4")
	fs.StringVar(&a.AWSService, "aws-service", "", "AWS service for SigV4")
	fs.StringVar(&a.AWSProfile, "aws-profile", "", "AWS shared-config profile")
	fs.BoolVar(&a.IgnoreNetrc, "ignore-netrc", false, "skip .netrc lookup")

	fs.StringVarP(&a.Print, "print", "p", "", "parts to print: H B h b m")
	fs.BoolVarP(&a.HeadersOnly, "headers", "h", false, "print response headers only")
	fs.BoolVarP(&a.BodyOnly, "body", "b", false, "print response body only")
	fs.CountVarP(&a.Verbose, "verbose", "v", "also print the request (-vv adds metadata)")
	fs.CountVarP(&a.Quiet, "quiet", "q", "less output (-qq silences errors)")
	fs.BoolVarP(&a.Stream, "stream", "S", false, "stream the body chunk by chunk")
	fs.StringVarP(&a.Output, "output", "o", "", "write body to file")
	fs.BoolVarP(&a.Download, "download", "d", false, "download mode")
	fs.BoolVarP(&a.Continue, "continue", "c", false, "resume a partial download")
	fs.BoolVar(&a.CheckStatus, "check-status", false, "exit non-zero on HTTP errors")
	fs.BoolVar(&a.All, "all", false, "show intermediate redirect responses")
	fs.BoolVar(&a.NoColor, "no-color", false, "disable colorized output")

	fs.StringVar(&a.Session, "session", "", "named session")
	fs.StringVar(&a.Script, "script", "", "JavaScript file or expression run against the response")

	fs.BoolVar(&a.WS, "ws", false, "WebSocket mode")
	fs.StringVar(&a.WSSend, "ws-send", "", "send one WebSocket message")
	fs.BoolVar(&a.WSListen, "ws-listen", false, "keep reading WebSocket frames")
	fs.StringVar(&a.WSSubprotocol, "ws-subprotocol", "", "WebSocket subprotocol")
	fs.Float64Var(&a.WSPingSecs, "ws-ping-interval", 0, "WebSocket ping interval in seconds")

	fs.BoolVar(&a.GRPC, "grpc", false, "dispatch a unary gRPC call")

	fs.BoolVar(&a.Bench, "bench", false, "benchmark mode")
	fs.IntVar(&a.BenchRequests, "requests", 0, "benchmark request count")
	fs.IntVar(&a.BenchConcurrency, "concurrency", 0, "benchmark concurrency")

	fs.BoolVar(&a.Fuzz, "fuzz", false, "fuzz mode")
	fs.StringArrayVar(&a.FuzzFields, "fuzz-field", nil, "field to fuzz (repeatable)")
	fs.StringArrayVar(&a.FuzzCategories, "fuzz-category", nil, "payload category filter (repeatable)")
	fs.IntVar(&a.FuzzRisk, "fuzz-risk", 1, "minimum payload risk level 1..5")
	fs.IntVar(&a.FuzzConcurrency, "fuzz-concurrency", 0, "fuzz concurrency")
	fs.BoolVar(&a.FuzzAnomaliesOnly, "fuzz-anomalies-only", false, "report anomalies only")
	fs.BoolVar(&a.FuzzStopOnAnomaly, "fuzz-stop-on-anomaly", false, "cancel remaining work on first anomaly")
	fs.StringVar(&a.FuzzDict, "fuzz-dict", "", "custom payload dictionary file")
	fs.StringArrayVar(&a.FuzzPayloads, "fuzz-payload", nil, "custom payload (repeatable)")

	fs.StringVar(&a.HARReplay, "har-replay", "", "replay entries from a HAR file")
	fs.StringVar(&a.HARFilter, "har-filter", "", "only replay entries whose URL contains this")
	fs.IntSliceVar(&a.HARIndices, "har-index", nil, "only replay these entry indices")
	fs.DurationVar(&a.HARDelay, "har-delay", 0, "delay between replayed requests")

	fs.StringVar(&a.ConfigFile, "config", "", "config file path")
	fs.StringVar(&a.DefaultScheme, "default-scheme", "", "scheme for scheme-less URLs")
	fs.BoolVar(&a.Debug, "debug", false, "print error chains")

	if err := fs.Parse(argv); err != nil {
		return nil, status.Wrap(status.KindArgument, err, "parse arguments")
	}
	a.Positionals = fs.Args()
	if a.Form || a.Multipart {
		a.JSON = false
	}
	return &a, nil
}

// WSRequested reports whether any WebSocket flag forces the WS dispatcher.
func (a *Args) WSRequested() bool {
	return a.WS || a.WSSend != "" || a.WSListen || a.WSSubprotocol != "" || a.WSPingSecs > 0
}
