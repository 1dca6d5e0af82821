package har

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/quicpulse/quicpulse/client"
	"github.com/quicpulse/quicpulse/interrupt"
)

// hopByHopHeaders never replay: they describe the recorded connection, not
// the request.  Host and Content-Length are recomputed by the transport.
var hopByHopHeaders = map[string]bool{
	"connection":          true,
	"keep-alive":          true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"proxy-connection":    true,
	"te":                  true,
	"trailer":             true,
	"transfer-encoding":   true,
	"upgrade":             true,
	"host":                true,
	"content-length":      true,
}

// ReplayOptions configures a replay run.
type ReplayOptions struct {
	// Delay is an optional pause between requests; a non-zero delay forces
	// sequential replay to preserve the recording's pacing.
	Delay time.Duration
	// Concurrency bounds parallel replay when no delay is set.
	Concurrency int
}

// ReplayOutcome is one replayed entry.
type ReplayOutcome struct {
	Index          int
	Method         string
	URL            string
	OriginalStatus int
	ReplayStatus   int
	Latency        time.Duration
	Error          string
}

// Diverged reports whether the replayed status differs from the recording.
func (o ReplayOutcome) Diverged() bool {
	return o.Error == "" && o.OriginalStatus != 0 && o.OriginalStatus != o.ReplayStatus
}

// Replayer replays archive entries through the shared client.
type Replayer struct {
	Client  *client.Client
	Options ReplayOptions
}

// Replay dispatches every entry and returns outcomes ordered by entry index.
func (r *Replayer) Replay(ctx context.Context, archive *Archive) []ReplayOutcome {
	entries := archive.Log.Entries
	outcomes := make([]ReplayOutcome, len(entries))

	if r.Options.Delay > 0 {
		for i, entry := range entries {
			if interrupt.Pending() {
				outcomes[i] = ReplayOutcome{Index: i, Method: entry.Request.Method,
					URL: entry.Request.URL, Error: "interrupted"}
				continue
			}
			outcomes[i] = r.replayOne(ctx, i, entry)
			if i < len(entries)-1 {
				time.Sleep(r.Options.Delay)
			}
		}
		return outcomes
	}

	concurrency := r.Options.Concurrency
	if concurrency < 1 {
		concurrency = 4
	}
	sem := semaphore.NewWeighted(int64(concurrency))
	var wg sync.WaitGroup
	for i, entry := range entries {
		if interrupt.Pending() {
			outcomes[i] = ReplayOutcome{Index: i, Method: entry.Request.Method,
				URL: entry.Request.URL, Error: "interrupted"}
			continue
		}
		i, entry := i, entry
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				outcomes[i] = ReplayOutcome{Index: i, Method: entry.Request.Method,
					URL: entry.Request.URL, Error: err.Error()}
				return
			}
			defer sem.Release(1)
			outcomes[i] = r.replayOne(ctx, i, entry)
		}()
	}
	wg.Wait()
	return outcomes
}

// replayOne reconstructs method, URL, headers and body from the entry's
// request block and dispatches it.
func (r *Replayer) replayOne(ctx context.Context, index int, entry Entry) ReplayOutcome {
	outcome := ReplayOutcome{
		Index:          index,
		Method:         entry.Request.Method,
		URL:            entry.Request.URL,
		OriginalStatus: entry.Response.Status,
	}

	var body io.Reader
	if entry.Request.PostData != nil && entry.Request.PostData.Text != "" {
		body = strings.NewReader(entry.Request.PostData.Text)
	}
	req, err := http.NewRequestWithContext(ctx, entry.Request.Method, entry.Request.URL, body)
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	for _, h := range entry.Request.Headers {
		if hopByHopHeaders[strings.ToLower(h.Name)] || strings.HasPrefix(h.Name, ":") {
			continue
		}
		req.Header.Add(h.Name, h.Value)
	}
	if entry.Request.PostData != nil && entry.Request.PostData.MimeType != "" &&
		req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", entry.Request.PostData.MimeType)
	}

	timeout := r.Client.Options().Timeout
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
		req = req.WithContext(ctx)
	}

	start := time.Now()
	resp, err := r.Client.HTTPClient().Do(req)
	outcome.Latency = time.Since(start)
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	outcome.ReplayStatus = resp.StatusCode
	return outcome
}

// FormatReplay renders the outcomes with divergence markers.
func FormatReplay(outcomes []ReplayOutcome) string {
	var b strings.Builder
	diverged, failed := 0, 0
	for _, o := range outcomes {
		switch {
		case o.Error != "":
			failed++
			fmt.Fprintf(&b, "[%d] %s %s: error: %s\n", o.Index, o.Method, o.URL, o.Error)
		case o.Diverged():
			diverged++
			fmt.Fprintf(&b, "[%d] %s %s: %d -> %d (diverged) in %dms\n",
				o.Index, o.Method, o.URL, o.OriginalStatus, o.ReplayStatus, o.Latency.Milliseconds())
		default:
			fmt.Fprintf(&b, "[%d] %s %s: %d in %dms\n",
				o.Index, o.Method, o.URL, o.ReplayStatus, o.Latency.Milliseconds())
		}
	}
	fmt.Fprintf(&b, "\nReplayed %d entries: %d diverged, %d failed\n", len(outcomes), diverged, failed)
	return b.String()
}
