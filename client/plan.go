package client

import (
	"io"
	"net/http"
	"net/url"

	"github.com/quicpulse/quicpulse/auth"
	"github.com/quicpulse/quicpulse/request"
)

// Plan is a fully-resolved request: everything the dispatchers need, with
// the body already materialized to bytes.
type Plan struct {
	Method string
	URL    *url.URL
	// Headers preserves user ordering and duplicates.
	Headers *request.Headers
	// Body is the encoded request body (JSON, form, multipart or raw);
	// nil means no body.
	Body []byte
	// ContentType is applied only when the user did not set one.
	ContentType string
	// Multipart marks bodies that sign as UNSIGNED-PAYLOAD under SigV4.
	Multipart bool
	// Chunked forces chunked transfer encoding instead of Content-Length.
	Chunked bool

	// AuthType selects the authentication scheme applied at dispatch.
	AuthType auth.Type
	// Creds are the resolved credentials for basic/digest/bearer.
	Creds auth.Credentials
	// Signer is non-nil when AuthType is aws-sigv4.
	Signer *auth.SigV4Signer
}

// Intermediate captures one hop of a redirect chain for --all output.
type Intermediate struct {
	URL    *url.URL
	Status int
	Proto  string
	Header http.Header
}

// Response is the engine's uniform response shape across all dispatchers.
// Body is a live stream; the caller owns closing it.
type Response struct {
	Status int
	Proto  string
	Header http.Header
	Body   io.ReadCloser
	// Intermediates lists each 3xx hop that was followed, in order.
	Intermediates []Intermediate
}

// buildRequest materializes an *http.Request from the plan.  Each call
// produces a fresh request so the redirect loop can rebuild after rewrites.
func (p *Plan) buildRequest() (*http.Request, error) {
	req, err := http.NewRequest(p.Method, p.URL.String(), nil)
	if err != nil {
		return nil, err
	}
	if p.Body != nil {
		setBodyBytes(req, p.Body)
		if p.Chunked {
			// A negative ContentLength makes net/http use chunked encoding.
			req.ContentLength = -1
		}
	}
	p.Headers.ApplyTo(req)
	if p.ContentType != "" && !p.Headers.Has("Content-Type") {
		req.Header.Set("Content-Type", p.ContentType)
	}
	return req, nil
}

// payloadHash returns the SigV4 payload hash for the plan's current body.
func (p *Plan) payloadHash() string {
	if p.Multipart {
		return auth.UnsignedPayload
	}
	return auth.PayloadHash(p.Body)
}
