// Package bench is the benchmark driver: N requests through a bounded pool
// of C concurrent workers, drained into the statistics collector.
//
// The concurrency shape is shared with the fuzz driver: a weighted
// semaphore of size C, a results channel of capacity 2C, permits acquired
// inside each spawned goroutine (so the spawn loop never blocks), and a
// collector that exits when the channel closes.  In-flight work is therefore
// capped at C and buffered work at ~3C, which bounds memory no matter how
// large N is.  The HAR replayer uses the same semaphore and in-goroutine
// permits but no results channel; it writes each outcome into a per-entry
// slot.
package bench

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
	"github.com/quicpulse/quicpulse/request"
	"github.com/quicpulse/quicpulse/stats"
	"github.com/quicpulse/quicpulse/status"
)

// Config sizes a benchmark run.
type Config struct {
	TotalRequests int
	Concurrency   int
	URL           string
	Method        string
}

// Result is the outcome of a completed run.
type Result struct {
	URL           string
	Method        string
	TotalRequests int
	Concurrency   int
	Duration      time.Duration
	Stats         stats.Summary
}

// Runner executes a benchmark.  The HTTP client, body and headers are shared
// read-only across all request goroutines.
type Runner struct {
	Config  Config
	Client  *client.Client
	Body    []byte
	Headers *request.Headers
	// ContentType is applied when a body is present and the headers carry
	// no explicit Content-Type.
	ContentType string
}

// Run dispatches all requests and blocks until every result is collected
// (or the user interrupts, in which case the tally reflects the completed
// portion).
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	cfg := r.Config
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.TotalRequests < 1 {
		return nil, status.Errorf(status.KindArgument, "benchmark needs at least one request")
	}

	start := time.Now()
	sem := semaphore.NewWeighted(int64(cfg.Concurrency))
	results := make(chan stats.Result, cfg.Concurrency*2)

	var wg sync.WaitGroup
	for i := 0; i < cfg.TotalRequests; i++ {
		if interrupt.Pending() {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Acquire inside the goroutine: the spawn loop stays cheap and
			// in-flight work stays capped at the semaphore size.
			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)
			if interrupt.Pending() {
				return
			}
			results <- r.executeOne(ctx)
		}()
	}

	// Close the channel once every spawned task has pushed its result, so
	// the collector loop below terminates.
	go func() {
		wg.Wait()
		close(results)
	}()

	collector := stats.NewCollector()
	for res := range results {
		collector.Record(res)
	}

	elapsed := time.Since(start)
	return &Result{
		URL:           cfg.URL,
		Method:        cfg.Method,
		TotalRequests: cfg.TotalRequests,
		Concurrency:   cfg.Concurrency,
		Duration:      elapsed,
		Stats:         collector.Finalize(elapsed),
	}, nil
}

// executeOne performs a single benchmark request and reduces it to a
// stats.Result.
func (r *Runner) executeOne(ctx context.Context) stats.Result {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, r.Config.Method, r.Config.URL, nil)
	if err != nil {
		return stats.Result{Latency: time.Since(start), ErrorKind: "argument"}
	}
	if r.Body != nil {
		req.Body = io.NopCloser(strings.NewReader(string(r.Body)))
		req.ContentLength = int64(len(r.Body))
	}
	if r.Headers != nil {
		r.Headers.ApplyTo(req)
	}
	if r.Body != nil && r.ContentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", r.ContentType)
	}

	timeout := r.Client.Options().Timeout
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
		req = req.WithContext(ctx)
	}

	resp, err := r.Client.HTTPClient().Do(req)
	if err != nil {
		return stats.Result{
			Latency:   time.Since(start),
			ErrorKind: errorKind(ctx, err),
		}
	}
	n, _ := io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	return stats.Result{
		StatusCode: resp.StatusCode,
		Latency:    time.Since(start),
		Bytes:      int(n),
	}
}

func errorKind(ctx context.Context, err error) string {
	if ctx.Err() == context.DeadlineExceeded {
		return "timeout"
	}
	kind := status.KindOf(err)
	if kind == status.KindRequest {
		return "connection"
	}
	return kind.String()
}

// Format renders the run for humans, in the order the summary reads best:
// totals, throughput, then the latency distribution.
func Format(r *Result) string {
	var b strings.Builder
	s := r.Stats
	fmt.Fprintf(&b, "Benchmark: %s %s\n", r.Method, r.URL)
	fmt.Fprintf(&b, "  Requests:    %d total, %d concurrent\n", r.TotalRequests, r.Concurrency)
	fmt.Fprintf(&b, "  Duration:    %.2fs\n", r.Duration.Seconds())
	fmt.Fprintf(&b, "  Success:     %d (%.1f%%)\n", s.Successful, s.SuccessRate*100)
	fmt.Fprintf(&b, "  Failed:      %d\n", s.Failed)
	fmt.Fprintf(&b, "  Throughput:  %.1f req/s, %.0f bytes/s\n", s.RequestsPerSecond, s.BytesPerSecond)
	fmt.Fprintf(&b, "  Latency:     min %.1fms / mean %.1fms / max %.1fms (stddev %.1fms)\n",
		s.Latency.MinMS, s.Latency.MeanMS, s.Latency.MaxMS, s.Latency.StddevMS)
	fmt.Fprintf(&b, "  Percentiles: p50 %.1fms, p75 %.1fms, p90 %.1fms, p95 %.1fms, p99 %.1fms\n",
		s.Latency.P50MS, s.Latency.P75MS, s.Latency.P90MS, s.Latency.P95MS, s.Latency.P99MS)
	if len(s.StatusCodes) > 0 {
		fmt.Fprintf(&b, "  Status codes:")
		for code, count := range s.StatusCodes {
			fmt.Fprintf(&b, " %d×%d", code, count)
		}
		b.WriteString("\n")
	}
	for kind, count := range s.Errors {
		fmt.Fprintf(&b, "  Errors: %s×%d\n", kind, count)
	}
	return b.String()
}
