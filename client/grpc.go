package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"google.golang.org/grpc"
	grpccreds "google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/quicpulse/quicpulse/request"
	"github.com/quicpulse/quicpulse/status"
)

// rawCodec passes request and response messages through as opaque bytes, so
// unary calls can be made without compiled protobuf descriptors.  The caller
// supplies a pre-serialized message (typically length-prefixed protobuf or
// server-accepted JSON for gRPC gateways).
type rawCodec struct{}

func (rawCodec) Marshal(v interface{}) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("raw codec: expected []byte, got %T", v)
	}
	return b, nil
}

func (rawCodec) Unmarshal(data []byte, v interface{}) error {
	out, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("raw codec: expected *[]byte, got %T", v)
	}
	*out = data
	return nil
}

func (rawCodec) Name() string { return "raw" }

// GRPCResult is the outcome of a unary gRPC dispatch.
type GRPCResult struct {
	// Payload is the raw response message.
	Payload []byte
	// Header and Trailer are the server metadata.
	Header  metadata.MD
	Trailer metadata.MD
}

// ExecuteGRPC performs a unary gRPC call.  The URL path supplies the full
// method name ("/package.Service/Method"); headers become outgoing metadata;
// body is the serialized request message.
func (c *Client) ExecuteGRPC(ctx context.Context, target *url.URL, headers *request.Headers, body []byte) (*GRPCResult, error) {
	method := target.Path
	if !strings.HasPrefix(method, "/") || strings.Count(method, "/") != 2 {
		return nil, status.Errorf(status.KindArgument,
			"gRPC URL path must be /package.Service/Method, got %q", method)
	}

	var transport grpc.DialOption
	if target.Scheme == "https" {
		transport = grpc.WithTransportCredentials(grpccreds.NewTLS(c.tls.Clone()))
	} else {
		transport = grpc.WithTransportCredentials(insecure.NewCredentials())
	}

	conn, err := grpc.NewClient(target.Host, transport,
		grpc.WithDefaultCallOptions(grpc.ForceCodec(rawCodec{})))
	if err != nil {
		return nil, status.Wrap(status.KindConnection, err, "gRPC dial "+target.Host)
	}
	defer conn.Close()

	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}
	if headers != nil && headers.Len() > 0 {
		pairs := make([]string, 0, headers.Len()*2)
		headers.Each(func(k, v string) {
			pairs = append(pairs, strings.ToLower(k), v)
		})
		ctx = metadata.AppendToOutgoingContext(ctx, pairs...)
	}

	if body == nil {
		body = []byte{}
	}
	var reply []byte
	var header, trailer metadata.MD
	err = conn.Invoke(ctx, method, body, &reply,
		grpc.Header(&header), grpc.Trailer(&trailer))
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, status.Timeout(c.opts.Timeout.Seconds())
		}
		return nil, status.Wrap(status.KindRequest, err, "gRPC call "+method)
	}
	return &GRPCResult{Payload: reply, Header: header, Trailer: trailer}, nil
}
