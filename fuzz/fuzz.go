package fuzz

import (
	"bytes"
	"context"
	"encoding/json"
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
	"github.com/quicpulse/quicpulse/status"
)

// Verdict classifies one fuzz response.
type Verdict string

const (
	// VerdictAnomaly is a 5xx or timeout: the payload broke something.
	VerdictAnomaly Verdict = "anomaly"
	// VerdictRejected is a 4xx: input validation did its job.
	VerdictRejected Verdict = "rejected"
	// VerdictSuspicious is a 2xx whose body reflects the payload verbatim.
	VerdictSuspicious Verdict = "suspicious"
	// VerdictPassed is everything else.
	VerdictPassed Verdict = "passed"
)

// reflectionScanLimit bounds how much of the response body is searched for
// a reflected payload.
const reflectionScanLimit = 1 << 20

// BodyFormat selects how the mutated body is serialized.
type BodyFormat int

const (
	BodyFormatJSON BodyFormat = iota
	BodyFormatForm
)

// Options configures a fuzz run.
type Options struct {
	Concurrency   int
	Categories    []Category
	MinRisk       int
	AnomaliesOnly bool
	StopOnAnomaly bool
	BodyFormat    BodyFormat
	Extra         []Payload
}

// Outcome records one field × payload dispatch.
type Outcome struct {
	Field    string
	Payload  Payload
	Verdict  Verdict
	Status   int
	Latency  time.Duration
	ErrorMsg string
}

// Summary tallies a completed run.
type Summary struct {
	Total      int
	Anomalies  int
	Rejected   int
	Suspicious int
	Passed     int
}

// Runner executes the fuzz matrix: every selected field crossed with every
// selected payload.
type Runner struct {
	Client  *client.Client
	Options Options
	Method  string
	URL     string
	Headers *request.Headers
	// BaseBody is the JSON object the payloads are substituted into.  A
	// nil base fuzzes each field in a one-field body.
	BaseBody map[string]interface{}
}

// Run dispatches the matrix and returns outcomes in completion order.
func (r *Runner) Run(ctx context.Context, fields []string) ([]Outcome, Summary, error) {
	if len(fields) == 0 {
		return nil, Summary{}, status.Errorf(status.KindArgument,
			"no fields to fuzz: provide data fields or --fuzz-field")
	}
	payloads := Builtin(r.Options.Categories, r.Options.MinRisk)
	payloads = append(payloads, r.Options.Extra...)
	if len(payloads) == 0 {
		return nil, Summary{}, status.Errorf(status.KindArgument, "no payloads selected")
	}

	concurrency := r.Options.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	sem := semaphore.NewWeighted(int64(concurrency))
	results := make(chan Outcome, concurrency*2)

	var wg sync.WaitGroup
	for _, field := range fields {
		for _, payload := range payloads {
			if interrupt.Pending() {
				break
			}
			field, payload := field, payload
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := sem.Acquire(ctx, 1); err != nil {
					return
				}
				defer sem.Release(1)
				if interrupt.Pending() {
					return
				}
				results <- r.fuzzOne(ctx, field, payload)
			}()
		}
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var outcomes []Outcome
	var summary Summary
	for outcome := range results {
		summary.Total++
		switch outcome.Verdict {
		case VerdictAnomaly:
			summary.Anomalies++
			if r.Options.StopOnAnomaly {
				// Cancels remaining tasks at their next flag poll.
				interrupt.Set()
			}
		case VerdictRejected:
			summary.Rejected++
		case VerdictSuspicious:
			summary.Suspicious++
		default:
			summary.Passed++
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, summary, nil
}

// fuzzOne substitutes the payload into a clone of the base body, dispatches,
// and classifies the response.
func (r *Runner) fuzzOne(ctx context.Context, field string, payload Payload) Outcome {
	body, ctype := r.mutatedBody(field, payload.Value)
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, bytes.NewReader(body))
	if err != nil {
		return Outcome{Field: field, Payload: payload, Verdict: VerdictPassed, ErrorMsg: err.Error()}
	}
	if r.Headers != nil {
		r.Headers.ApplyTo(req)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", ctype)
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
		verdict := VerdictPassed
		if ctx.Err() == context.DeadlineExceeded || status.KindOf(err) == status.KindTimeout {
			// A payload that stalls the server is as interesting as a 500.
			verdict = VerdictAnomaly
		}
		return Outcome{
			Field: field, Payload: payload, Verdict: verdict,
			Latency: time.Since(start), ErrorMsg: err.Error(),
		}
	}
	defer resp.Body.Close()

	scan, _ := io.ReadAll(io.LimitReader(resp.Body, reflectionScanLimit))
	io.Copy(io.Discard, resp.Body)
	latency := time.Since(start)

	verdict := VerdictPassed
	switch {
	case resp.StatusCode >= 500:
		verdict = VerdictAnomaly
	case resp.StatusCode >= 400:
		verdict = VerdictRejected
	case resp.StatusCode >= 200 && resp.StatusCode < 300 &&
		payload.Value != "" && bytes.Contains(scan, []byte(payload.Value)):
		verdict = VerdictSuspicious
	}
	return Outcome{
		Field: field, Payload: payload, Verdict: verdict,
		Status: resp.StatusCode, Latency: latency,
	}
}

// mutatedBody clones the base body with field set to value and serializes it
// in the configured format.
func (r *Runner) mutatedBody(field, value string) (body []byte, contentType string) {
	if r.Options.BodyFormat == BodyFormatForm {
		cfg := &request.Config{}
		for k, v := range r.BaseBody {
			if k == field {
				continue
			}
			if s, ok := v.(string); ok {
				cfg.Form = append(cfg.Form, request.Param{Name: k, Value: s})
			}
		}
		cfg.Form = append(cfg.Form, request.Param{Name: field, Value: value})
		return cfg.FormBytes(), "application/x-www-form-urlencoded"
	}

	clone := make(map[string]interface{}, len(r.BaseBody)+1)
	for k, v := range r.BaseBody {
		clone[k] = v
	}
	clone[field] = value
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(clone); err != nil {
		return []byte("{}"), "application/json"
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), "application/json"
}

// Format renders the outcomes, filtered to anomalies when requested.
func Format(outcomes []Outcome, summary Summary, anomaliesOnly bool) string {
	var b strings.Builder
	for _, o := range outcomes {
		if anomaliesOnly && o.Verdict != VerdictAnomaly {
			continue
		}
		display := o.Payload.Value
		if len(display) > 48 {
			display = display[:48] + "…"
		}
		if o.ErrorMsg != "" {
			fmt.Fprintf(&b, "%-10s %s=%q (%s/%d): %s\n",
				o.Verdict, o.Field, display, o.Payload.Category, o.Payload.Risk, o.ErrorMsg)
		} else {
			fmt.Fprintf(&b, "%-10s %s=%q (%s/%d): HTTP %d in %dms\n",
				o.Verdict, o.Field, display, o.Payload.Category, o.Payload.Risk,
				o.Status, o.Latency.Milliseconds())
		}
	}
	fmt.Fprintf(&b, "\nFuzz summary: %d sent, %d anomalies, %d suspicious, %d rejected, %d passed\n",
		summary.Total, summary.Anomalies, summary.Suspicious, summary.Rejected, summary.Passed)
	return b.String()
}
