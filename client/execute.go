package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"

	"github.com/quicpulse/quicpulse/auth"
	"github.com/quicpulse/quicpulse/interrupt"
	"github.com/quicpulse/quicpulse/status"
)

// Execute dispatches the plan and returns the final response.
//
// Protocol precedence: --http3 with an https URL takes the QUIC dispatcher;
// --unix-socket takes the Unix-socket HTTP/1.1 dispatcher; everything else
// goes through the pooled HTTP/1.1–HTTP/2 transport.  (WebSocket and gRPC
// have their own entry points: ExecuteWebSocket and ExecuteGRPC.)
//
// The redirect loop, Digest challenge retry, and SigV4 re-signing all happen
// here so every dispatcher shares identical semantics.
func (c *Client) Execute(ctx context.Context, plan *Plan) (*Response, error) {
	cancel := func() {}
	if c.opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
	}
	// The response body outlives this call; cancel only on error paths.

	rt, cleanup, err := c.roundTripper(plan)
	if err != nil {
		cancel()
		return nil, err
	}

	resp, err := c.executeWithRedirects(ctx, plan, rt)
	if err != nil {
		cleanup()
		cancel()
		return nil, err
	}
	// Tie resource release to body close.
	resp.Body = &bodyCloser{ReadCloser: resp.Body, onClose: func() {
		cleanup()
		cancel()
	}}
	return resp, nil
}

// roundTripper selects the dispatcher for the plan and returns it with a
// cleanup function releasing dispatcher-owned resources.
func (c *Client) roundTripper(plan *Plan) (roundTripFunc, func(), error) {
	switch {
	case c.opts.HTTP3:
		if plan.URL.Scheme != "https" {
			return nil, nil, status.Errorf(status.KindArgument, "HTTP/3 requires an https:// URL")
		}
		return c.http3RoundTripper()
	case c.opts.UnixSocket != "":
		rt := func(req *http.Request) (*http.Response, error) {
			return c.unixSocketRoundTrip(req, c.opts.UnixSocket)
		}
		return rt, func() {}, nil
	default:
		return c.http.Do, func() {}, nil
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

// bodyCloser runs onClose exactly once after the response body is closed.
type bodyCloser struct {
	io.ReadCloser
	onClose func()
	closed  bool
}

func (b *bodyCloser) Close() error {
	err := b.ReadCloser.Close()
	if !b.closed {
		b.closed = true
		if b.onClose != nil {
			b.onClose()
		}
	}
	return err
}

func (c *Client) executeWithRedirects(ctx context.Context, plan *Plan, rt roundTripFunc) (*Response, error) {
	if err := c.applyInitialAuth(ctx, plan); err != nil {
		return nil, err
	}

	req, err := plan.buildRequest()
	if err != nil {
		return nil, status.Wrap(status.KindRequest, err, "build request")
	}
	req = req.WithContext(ctx)
	if plan.AuthType == auth.TypeSigV4 && plan.Signer != nil {
		if err := plan.Signer.Sign(ctx, req, plan.payloadHash()); err != nil {
			return nil, err
		}
	}

	var intermediates []Intermediate
	digestTried := false
	redirects := 0
	originalHost := plan.URL.Host

	for {
		if interrupt.Pending() {
			return nil, status.Errorf(status.KindInterrupted, "interrupted")
		}

		httpResp, err := rt(req)
		if err != nil {
			return nil, c.classify(err)
		}

		// A single Digest challenge is answered once; a second 401 is
		// reported, not retried.
		if httpResp.StatusCode == http.StatusUnauthorized &&
			plan.AuthType == auth.TypeDigest && !digestTried {
			challenge := httpResp.Header.Get("WWW-Authenticate")
			if ch, chErr := auth.ParseDigestChallenge(challenge); chErr == nil {
				drain(httpResp)
				digestTried = true
				authz, aErr := auth.DigestAuthorization(ch, plan.Creds, req.Method, req.URL.RequestURI(), "")
				if aErr != nil {
					return nil, aErr
				}
				req, err = plan.buildRequest()
				if err != nil {
					return nil, status.Wrap(status.KindRequest, err, "rebuild request")
				}
				req = req.WithContext(ctx)
				req.Header.Set("Authorization", authz)
				continue
			}
		}

		if !c.opts.FollowRedirects || !isRedirect(httpResp.StatusCode) {
			return &Response{
				Status:        httpResp.StatusCode,
				Proto:         httpResp.Proto,
				Header:        httpResp.Header,
				Body:          httpResp.Body,
				Intermediates: intermediates,
			}, nil
		}

		location := httpResp.Header.Get("Location")
		if location == "" {
			return &Response{Status: httpResp.StatusCode, Proto: httpResp.Proto,
				Header: httpResp.Header, Body: httpResp.Body, Intermediates: intermediates}, nil
		}
		next, parseErr := req.URL.Parse(location)
		if parseErr != nil {
			drain(httpResp)
			return nil, status.Wrap(status.KindRequest, parseErr, "invalid redirect Location "+location)
		}

		if c.opts.HTTP3 && next.Scheme != "https" {
			os.Stderr.WriteString("warning: refusing non-HTTPS redirect from HTTP/3 origin: " + next.String() + "\n")
			return &Response{Status: httpResp.StatusCode, Proto: httpResp.Proto,
				Header: httpResp.Header, Body: httpResp.Body, Intermediates: intermediates}, nil
		}

		redirects++
		if redirects > c.opts.MaxRedirects {
			drain(httpResp)
			return nil, status.Errorf(status.KindRequest, "too many redirects (> %d)", c.opts.MaxRedirects)
		}

		intermediates = append(intermediates, Intermediate{
			URL:    req.URL,
			Status: httpResp.StatusCode,
			Proto:  httpResp.Proto,
			Header: httpResp.Header,
		})
		drain(httpResp)

		// 301/302/303 demote POST to GET and drop the body; 307/308
		// preserve method and body.
		method := req.Method
		body := plan.Body
		demoted := false
		switch httpResp.StatusCode {
		case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther:
			if method == http.MethodPost {
				method = http.MethodGet
				body = nil
				demoted = true
			}
		}

		req, err = http.NewRequest(method, next.String(), nil)
		if err != nil {
			return nil, status.Wrap(status.KindRequest, err, "build redirected request")
		}
		req = req.WithContext(ctx)
		if body != nil {
			setBodyBytes(req, body)
		}
		plan.Headers.ApplyTo(req)
		if demoted {
			req.Header.Del("Content-Type")
			req.Header.Del("Content-Length")
			req.ContentLength = 0
		} else if plan.ContentType != "" && !plan.Headers.Has("Content-Type") && body != nil {
			req.Header.Set("Content-Type", plan.ContentType)
		}

		switch plan.AuthType {
		case auth.TypeSigV4:
			hash := auth.PayloadHash(body)
			if plan.Multipart && !demoted {
				hash = auth.UnsignedPayload
			}
			if err := plan.Signer.Resign(ctx, req, hash); err != nil {
				return nil, err
			}
		case auth.TypeBasic, auth.TypeBearer:
			// Conservative: credentials never cross origins.
			if next.Host == originalHost {
				c.setBasicBearer(req, plan)
			} else {
				req.Header.Del("Authorization")
			}
		}
	}
}

// applyInitialAuth resolves what the first request carries.  Digest sends
// nothing up front (the challenge round supplies it); SigV4 signs after the
// request is built.
func (c *Client) applyInitialAuth(_ context.Context, plan *Plan) error {
	switch plan.AuthType {
	case auth.TypeBasic, auth.TypeBearer:
		value := auth.BasicValue(plan.Creds)
		if plan.AuthType == auth.TypeBearer {
			value = auth.BearerValue(plan.Creds)
		}
		if !plan.Headers.Has("Authorization") {
			plan.Headers.Set("Authorization", value)
		}
	}
	return nil
}

func (c *Client) setBasicBearer(req *http.Request, plan *Plan) {
	switch plan.AuthType {
	case auth.TypeBasic:
		req.Header.Set("Authorization", auth.BasicValue(plan.Creds))
	case auth.TypeBearer:
		req.Header.Set("Authorization", auth.BearerValue(plan.Creds))
	}
}

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// drain consumes and closes a response body so the connection returns to
// the pool.
func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
}

// setBodyBytes installs a rewindable byte body on req.
func setBodyBytes(req *http.Request, body []byte) {
	req.Body = io.NopCloser(bytes.NewReader(body))
	req.ContentLength = int64(len(body))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
}

// classify maps transport errors onto the engine's distinct failure kinds:
// connection refusal, DNS failure, TLS handshake, timeout, and interrupt
// each surface differently in diagnostics and driver tallies.
func (c *Client) classify(err error) error {
	if interrupt.Pending() {
		return status.Errorf(status.KindInterrupted, "interrupted")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return status.Timeout(c.opts.Timeout.Seconds())
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return status.Timeout(c.opts.Timeout.Seconds())
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return status.Wrap(status.KindConnection, err, "DNS lookup failed")
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return status.Wrap(status.KindConnection, err, "connection refused")
	}

	var recordErr tls.RecordHeaderError
	var unknownAuthority x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	var certErr x509.CertificateInvalidError
	if errors.As(err, &recordErr) || errors.As(err, &unknownAuthority) ||
		errors.As(err, &hostnameErr) || errors.As(err, &certErr) ||
		strings.Contains(err.Error(), "tls:") {
		return status.Wrap(status.KindSSL, err, "TLS handshake failed")
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return status.Wrap(status.KindConnection, err, "request failed")
	}
	return status.Wrap(status.KindRequest, err, "request failed")
}
