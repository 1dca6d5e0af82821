package client

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/quicpulse/quicpulse/status"
)

// unixSocketRoundTrip sends req as a plain HTTP/1.1 exchange over a Unix
// domain socket (Docker, systemd services, and other local daemons).
//
// The wire request is synthesized by hand: Host defaults to "localhost",
// "Connection: close" keeps response framing simple, and Content-Length is
// supplied when a body is present.  The response is parsed back through the
// standard HTTP/1.1 reader, which handles Content-Length-bounded, chunked,
// and read-to-EOF bodies.
func (c *Client) unixSocketRoundTrip(req *http.Request, socketPath string) (*http.Response, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, status.Wrap(status.KindConnection, err, "connect to Unix socket "+socketPath)
	}
	if deadline, ok := req.Context().Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	var body []byte
	if req.Body != nil {
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			conn.Close()
			return nil, status.Wrap(status.KindIO, err, "read request body")
		}
	}

	var b strings.Builder
	b.WriteString(req.Method)
	b.WriteString(" ")
	b.WriteString(req.URL.RequestURI())
	b.WriteString(" HTTP/1.1\r\n")

	hasHost := false
	hasContentLength := false
	for name, values := range req.Header {
		if strings.EqualFold(name, "Host") {
			hasHost = true
		}
		if strings.EqualFold(name, "Content-Length") {
			hasContentLength = true
		}
		for _, v := range values {
			b.WriteString(name)
			b.WriteString(": ")
			b.WriteString(v)
			b.WriteString("\r\n")
		}
	}
	if !hasHost {
		b.WriteString("Host: localhost\r\n")
	}
	if len(body) > 0 && !hasContentLength {
		b.WriteString("Content-Length: ")
		b.WriteString(strconv.Itoa(len(body)))
		b.WriteString("\r\n")
	}
	b.WriteString("Connection: close\r\n\r\n")

	if _, err := conn.Write([]byte(b.String())); err != nil {
		conn.Close()
		return nil, status.Wrap(status.KindIO, err, "write request")
	}
	if len(body) > 0 {
		if _, err := conn.Write(body); err != nil {
			conn.Close()
			return nil, status.Wrap(status.KindIO, err, "write request body")
		}
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		conn.Close()
		return nil, status.Wrap(status.KindParse, err, "parse response")
	}
	// The connection stays open until the body is fully read.
	resp.Body = &connBody{ReadCloser: resp.Body, conn: conn}
	return resp, nil
}

// connBody closes the socket together with the response body.
type connBody struct {
	io.ReadCloser
	conn net.Conn
}

func (cb *connBody) Close() error {
	err := cb.ReadCloser.Close()
	cb.conn.Close()
	return err
}
