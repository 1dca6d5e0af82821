package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quicpulse/quicpulse/interrupt"
	"github.com/quicpulse/quicpulse/status"
)

// WSOptions selects what the WebSocket dispatcher does after the handshake.
type WSOptions struct {
	// Send is a single message written after connect; empty means none.
	Send string
	// Listen keeps reading frames until the server closes or the user
	// interrupts.
	Listen bool
	// Subprotocol requests a Sec-WebSocket-Protocol.
	Subprotocol string
	// PingInterval sends pings to keep the connection alive (zero = off).
	PingInterval time.Duration
	// Out receives incoming messages, one per line.
	Out io.Writer
}

// ExecuteWebSocket dials a ws:// or wss:// endpoint, sends the optional
// message, and drains incoming frames.  The read loop polls the interrupt
// flag between frames by bounding each read with a short deadline, so Ctrl+C
// is honoured even on a silent connection.
func (c *Client) ExecuteWebSocket(ctx context.Context, target *url.URL, headers http.Header, opts WSOptions) error {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	u := *target
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	dialer := websocket.Dialer{
		TLSClientConfig:  c.tls,
		HandshakeTimeout: c.opts.Timeout,
	}
	if opts.Subprotocol != "" {
		dialer.Subprotocols = []string{opts.Subprotocol}
	}

	conn, resp, err := dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil {
			return status.Errorf(status.KindWebSocket, "handshake rejected: %s", resp.Status)
		}
		return status.Wrap(status.KindWebSocket, err, "dial "+u.String())
	}
	defer conn.Close()

	if opts.Send != "" {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(opts.Send)); err != nil {
			return status.Wrap(status.KindWebSocket, err, "send message")
		}
	}

	if opts.PingInterval > 0 {
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			ticker := time.NewTicker(opts.PingInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				case <-stop:
					return
				}
			}
		}()
	}

	// After a one-shot send, read a single reply unless listening.
	remaining := 1
	if opts.Listen {
		remaining = -1
	}

	for remaining != 0 {
		if interrupt.Pending() {
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return status.Errorf(status.KindInterrupted, "interrupted")
		}
		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if isWSTimeout(err) {
				continue
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return status.Wrap(status.KindWebSocket, err, "read message")
		}
		switch msgType {
		case websocket.TextMessage:
			fmt.Fprintln(opts.Out, string(data))
		case websocket.BinaryMessage:
			fmt.Fprintf(opts.Out, "<binary: %d bytes>\n", len(data))
		}
		if remaining > 0 {
			remaining--
		}
	}
	return nil
}

func isWSTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
