// Package output renders requests and responses for humans and pipelines:
// part selection (-p HBhbm), the 100 MiB body cap, binary-body suppression
// on terminals, JSON pretty-printing, and chunk-flushed streaming.
package output

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/fatih/color"
	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/flate"

	"github.com/quicpulse/quicpulse/client"
	"github.com/quicpulse/quicpulse/interrupt"
	"github.com/quicpulse/quicpulse/status"
)

// MaxBodySize caps non-streaming reads at 100 MiB; larger bodies are
// truncated with a marker rather than exhausting memory.
const MaxBodySize = 100 * 1024 * 1024

// TruncationMarker is appended when the cap fires.
const TruncationMarker = "\n... [truncated]"

// Parts selects which sections print, mirroring -p HBhbm.
type Parts struct {
	RequestHeaders  bool // H
	RequestBody     bool // B
	ResponseHeaders bool // h
	ResponseBody    bool // b
	Meta            bool // m
}

// ParseParts decodes a -p specification.
func ParseParts(spec string) (Parts, error) {
	var p Parts
	for _, c := range spec {
		switch c {
		case 'H':
			p.RequestHeaders = true
		case 'B':
			p.RequestBody = true
		case 'h':
			p.ResponseHeaders = true
		case 'b':
			p.ResponseBody = true
		case 'm':
			p.Meta = true
		default:
			return Parts{}, status.Errorf(status.KindArgument, "unknown print part %q (want H, B, h, b, m)", string(c))
		}
	}
	return p, nil
}

// DefaultParts returns the standard selection: everything when verbose,
// response headers+body on a terminal, body only in a pipeline.
func DefaultParts(verbose int, stdoutTTY bool) Parts {
	if verbose > 0 {
		return Parts{RequestHeaders: true, RequestBody: true, ResponseHeaders: true, ResponseBody: true, Meta: verbose > 1}
	}
	if stdoutTTY {
		return Parts{ResponseHeaders: true, ResponseBody: true}
	}
	return Parts{ResponseBody: true}
}

// Printer renders to w with optional color.
type Printer struct {
	W         io.Writer
	Color     bool
	StdoutTTY bool
}

var (
	statusColor = color.New(color.FgCyan, color.Bold)
	keyColor    = color.New(color.FgBlue)
)

func (p *Printer) colorize(c *color.Color, s string) string {
	if !p.Color {
		return s
	}
	return c.Sprint(s)
}

// PrintRequest renders the outgoing request per the part selection.
func (p *Printer) PrintRequest(plan *client.Plan, parts Parts) {
	if parts.RequestHeaders {
		fmt.Fprintf(p.W, "%s %s %s\n",
			p.colorize(statusColor, plan.Method),
			plan.URL.RequestURI(),
			"HTTP/1.1")
		fmt.Fprintf(p.W, "%s: %s\n", p.colorize(keyColor, "Host"), plan.URL.Host)
		plan.Headers.Each(func(k, v string) {
			fmt.Fprintf(p.W, "%s: %s\n", p.colorize(keyColor, k), v)
		})
		if plan.ContentType != "" && !plan.Headers.Has("Content-Type") {
			fmt.Fprintf(p.W, "%s: %s\n", p.colorize(keyColor, "Content-Type"), plan.ContentType)
		}
		fmt.Fprintln(p.W)
	}
	if parts.RequestBody && len(plan.Body) > 0 {
		p.W.Write(formatBody(plan.Body, plan.ContentType))
		fmt.Fprintln(p.W)
		fmt.Fprintln(p.W)
	}
}

// PrintIntermediate renders one redirect hop's status and headers (--all).
func (p *Printer) PrintIntermediate(im client.Intermediate) {
	fmt.Fprintf(p.W, "%s %d\n", im.Proto, im.Status)
	printHeaderMap(p, im.Header)
	fmt.Fprintln(p.W)
}

// PrintResponse renders the response per the part selection, enforcing the
// body cap and the binary-on-terminal notice.  The body stream is fully
// consumed (up to the cap) and closed.
func (p *Printer) PrintResponse(resp *client.Response, parts Parts, elapsedMS int64) error {
	if parts.ResponseHeaders {
		fmt.Fprintf(p.W, "%s %s\n",
			resp.Proto,
			p.colorize(statusColor, fmt.Sprintf("%d %s", resp.Status, http.StatusText(resp.Status))))
		printHeaderMap(p, resp.Header)
		fmt.Fprintln(p.W)
	}

	if parts.ResponseBody {
		body, truncated, err := ReadBodyLimited(resp)
		if err != nil {
			return err
		}
		if len(body) > 0 {
			if IsBinary(body) && p.StdoutTTY {
				fmt.Fprintf(p.W, "[binary data, %d bytes — use --download or redirect output]\n", len(body))
			} else {
				p.W.Write(formatBody(body, resp.Header.Get("Content-Type")))
				if truncated {
					io.WriteString(p.W, TruncationMarker)
				}
				fmt.Fprintln(p.W)
			}
		}
	} else {
		resp.Body.Close()
	}

	if parts.Meta {
		fmt.Fprintf(p.W, "\nElapsed: %dms\n", elapsedMS)
	}
	return nil
}

// printHeaderMap writes an http.Header in sorted order (the map has no
// useful ordering to preserve).
func printHeaderMap(p *Printer, h http.Header) {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range h[k] {
			fmt.Fprintf(p.W, "%s: %s\n", p.colorize(keyColor, k), v)
		}
	}
}

// ReadBodyLimited reads the decoded response body up to MaxBodySize,
// reporting whether it was truncated.  The body is closed.
func ReadBodyLimited(resp *client.Response) ([]byte, bool, error) {
	defer resp.Body.Close()
	reader, err := decodeBody(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return nil, false, err
	}
	body, err := io.ReadAll(io.LimitReader(reader, MaxBodySize))
	if err != nil {
		return nil, false, status.Wrap(status.KindIO, err, "read response body")
	}
	truncated := false
	if int64(len(body)) == MaxBodySize {
		// Anything left means the cap fired.
		var probe [1]byte
		if n, _ := reader.Read(probe[:]); n > 0 {
			truncated = true
		}
	}
	return body, truncated, nil
}

// Stream copies the response body straight to w, flushing after every chunk
// so pipelines see data as it arrives.  The same 100 MiB cap applies, and
// the interrupt flag is polled between chunks.
func Stream(w io.Writer, resp *client.Response) error {
	defer resp.Body.Close()
	reader, err := decodeBody(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	defer bw.Flush()

	var total int64
	buf := make([]byte, 64*1024)
	for {
		if interrupt.Pending() {
			return status.Errorf(status.KindInterrupted, "interrupted")
		}
		n, readErr := reader.Read(buf)
		if n > 0 {
			remaining := MaxBodySize - total
			if int64(n) > remaining {
				n = int(remaining)
			}
			if _, writeErr := bw.Write(buf[:n]); writeErr != nil {
				return status.Wrap(status.KindIO, writeErr, "write output")
			}
			if flushErr := bw.Flush(); flushErr != nil {
				return status.Wrap(status.KindIO, flushErr, "flush output")
			}
			total += int64(n)
			if total >= MaxBodySize {
				io.WriteString(w, TruncationMarker+"\n")
				return nil
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return status.Wrap(status.KindIO, readErr, "read response body")
		}
	}
}

// decodeBody unwraps Content-Encoding values the transport did not already
// decode (brotli, deflate, and gzip when auto-decompression was bypassed).
func decodeBody(body io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return body, nil
	case "br":
		return brotli.NewReader(body), nil
	case "deflate":
		return flate.NewReader(body), nil
	case "gzip":
		r, err := gzip.NewReader(body)
		if err != nil {
			return nil, status.Wrap(status.KindParse, err, "decode gzip body")
		}
		return r, nil
	}
	return body, nil
}

// IsBinary reports whether data looks like binary content, using statistical
// content detection rather than a bare NUL-byte test (UTF-16 text contains
// NULs but is not binary).
func IsBinary(data []byte) bool {
	m := mimetype.Detect(data)
	for t := m; t != nil; t = t.Parent() {
		if t.Is("text/plain") {
			return false
		}
	}
	return true
}

// formatBody pretty-prints JSON bodies with sorted keys and two-space
// indentation; everything else passes through untouched.
func formatBody(body []byte, contentType string) []byte {
	if !strings.Contains(contentType, "json") {
		return body
	}
	var v interface{}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return body
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return body
	}
	return pretty
}
