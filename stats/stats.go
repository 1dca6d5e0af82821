// Package stats aggregates per-request results into latency percentiles and
// status/error tallies.  Latencies are recorded into an HDR histogram
// (1 µs .. 5 min, 3 significant digits), which recovers percentiles without
// storing every sample.
package stats

import (
	"time"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"
)

// maxLatencyMicros is the histogram's upper bound: 5 minutes.
const maxLatencyMicros = 300_000_000

// Result is one request outcome as seen by the collector.  StatusCode is
// zero for transport failures, in which case ErrorKind names the failure.
type Result struct {
	StatusCode int
	Latency    time.Duration
	Bytes      int
	ErrorKind  string
}

// Latency summarizes the recorded latencies in milliseconds.
type Latency struct {
	MinMS    float64
	MaxMS    float64
	MeanMS   float64
	StddevMS float64
	P50MS    float64
	P75MS    float64
	P90MS    float64
	P95MS    float64
	P99MS    float64
}

// Summary is the finalized aggregate for a driver run.
type Summary struct {
	Successful        uint64
	Failed            uint64
	SuccessRate       float64
	RequestsPerSecond float64
	BytesPerSecond    float64
	TotalBytes        uint64
	StatusCodes       map[int]uint64
	Errors            map[string]uint64
	Latency           Latency
}

// Collector folds results into the histogram and tallies.
//
// Ownership: a Collector is single-threaded by design.  Concurrent driver
// tasks never touch it; they send Results over a channel and the collector
// goroutine records them in completion order (recording is commutative, so
// ordering across requests does not matter).
type Collector struct {
	histogram   *hdrhistogram.Histogram
	statusCodes map[int]uint64
	errors      map[string]uint64
	successful  uint64
	failed      uint64
	totalBytes  uint64
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{
		histogram:   hdrhistogram.New(1, maxLatencyMicros, 3),
		statusCodes: make(map[int]uint64),
		errors:      make(map[string]uint64),
	}
}

// Record folds one result into the aggregate.  Latency values are clamped
// to the histogram bounds before recording.  Status codes 200–399 count as
// success; anything else (or a transport error) counts as failure.
func (c *Collector) Record(r Result) {
	micros := r.Latency.Microseconds()
	if micros < 1 {
		micros = 1
	}
	if micros > maxLatencyMicros {
		micros = maxLatencyMicros
	}
	// RecordValue only fails for out-of-range values, which the clamp
	// above excludes.
	_ = c.histogram.RecordValue(micros)

	if r.StatusCode != 0 {
		c.statusCodes[r.StatusCode]++
		if r.StatusCode >= 200 && r.StatusCode < 400 {
			c.successful++
		} else {
			c.failed++
		}
		c.totalBytes += uint64(r.Bytes)
		return
	}
	c.failed++
	if r.ErrorKind != "" {
		c.errors[r.ErrorKind]++
	}
}

// Count returns the number of recorded results.
func (c *Collector) Count() uint64 { return c.successful + c.failed }

// Finalize computes the summary for a run that took elapsed wall time.
// With no recorded samples every latency field is zero.
func (c *Collector) Finalize(elapsed time.Duration) Summary {
	total := c.successful + c.failed
	secs := elapsed.Seconds()

	var latency Latency
	if c.histogram.TotalCount() > 0 {
		toMS := func(us int64) float64 { return float64(us) / 1000.0 }
		latency = Latency{
			MinMS:    toMS(c.histogram.Min()),
			MaxMS:    toMS(c.histogram.Max()),
			MeanMS:   c.histogram.Mean() / 1000.0,
			StddevMS: c.histogram.StdDev() / 1000.0,
			P50MS:    toMS(c.histogram.ValueAtQuantile(50)),
			P75MS:    toMS(c.histogram.ValueAtQuantile(75)),
			P90MS:    toMS(c.histogram.ValueAtQuantile(90)),
			P95MS:    toMS(c.histogram.ValueAtQuantile(95)),
			P99MS:    toMS(c.histogram.ValueAtQuantile(99)),
		}
	}

	summary := Summary{
		Successful:  c.successful,
		Failed:      c.failed,
		TotalBytes:  c.totalBytes,
		StatusCodes: c.statusCodes,
		Errors:      c.errors,
		Latency:     latency,
	}
	if total > 0 {
		summary.SuccessRate = float64(c.successful) / float64(total)
	}
	if secs > 0 {
		summary.RequestsPerSecond = float64(total) / secs
		summary.BytesPerSecond = float64(c.totalBytes) / secs
	}
	return summary
}
