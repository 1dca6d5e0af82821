package stats_test

import (
	"testing"
	"time"

	"github.com/quicpulse/quicpulse/stats"
)

func TestCollector_MixedResults(t *testing.T) {
	c := stats.NewCollector()

	c.Record(stats.Result{StatusCode: 200, Latency: 100 * time.Millisecond, Bytes: 1024})
	c.Record(stats.Result{StatusCode: 200, Latency: 150 * time.Millisecond, Bytes: 2048})
	c.Record(stats.Result{StatusCode: 200, Latency: 200 * time.Millisecond, Bytes: 512})
	c.Record(stats.Result{StatusCode: 500, Latency: 50 * time.Millisecond, Bytes: 100})
	c.Record(stats.Result{Latency: time.Second, ErrorKind: "timeout"})

	s := c.Finalize(time.Second)

	if s.Successful != 3 {
		t.Errorf("Successful = %d, want 3", s.Successful)
	}
	if s.Failed != 2 {
		t.Errorf("Failed = %d, want 2", s.Failed)
	}
	if s.TotalBytes != 1024+2048+512+100 {
		t.Errorf("TotalBytes = %d", s.TotalBytes)
	}
	if s.Latency.MeanMS <= 0 {
		t.Error("mean latency should be positive")
	}
	if s.Errors["timeout"] != 1 {
		t.Errorf("Errors = %v", s.Errors)
	}
	if s.StatusCodes[200] != 3 || s.StatusCodes[500] != 1 {
		t.Errorf("StatusCodes = %v", s.StatusCodes)
	}
}

func TestCollector_Percentiles(t *testing.T) {
	c := stats.NewCollector()
	// 100 latencies: 10ms, 20ms, ..., 1000ms.
	for i := 1; i <= 100; i++ {
		c.Record(stats.Result{StatusCode: 200, Latency: time.Duration(i*10) * time.Millisecond, Bytes: 100})
	}
	s := c.Finalize(10 * time.Second)

	if s.Latency.P50MS < 450 || s.Latency.P50MS > 550 {
		t.Errorf("p50 = %.1fms, want 450..550", s.Latency.P50MS)
	}
	if s.Latency.P99MS < 950 || s.Latency.P99MS > 1010 {
		t.Errorf("p99 = %.1fms, want 950..1010", s.Latency.P99MS)
	}
}

func TestCollector_MinMaxBound(t *testing.T) {
	c := stats.NewCollector()
	samples := []time.Duration{
		3 * time.Millisecond,
		70 * time.Millisecond,
		900 * time.Millisecond,
	}
	for _, d := range samples {
		c.Record(stats.Result{StatusCode: 200, Latency: d})
	}
	s := c.Finalize(time.Second)
	for _, d := range samples {
		ms := float64(d.Microseconds()) / 1000.0
		if s.Latency.MinMS > ms || s.Latency.MaxMS < ms*0.99 {
			t.Errorf("sample %.1fms outside [min=%.1f max=%.1f]", ms, s.Latency.MinMS, s.Latency.MaxMS)
		}
	}
}

func TestCollector_Empty(t *testing.T) {
	c := stats.NewCollector()
	s := c.Finalize(time.Second)
	if s.Successful != 0 || s.Failed != 0 {
		t.Errorf("counts = %d/%d", s.Successful, s.Failed)
	}
	zero := stats.Latency{}
	if s.Latency != zero {
		t.Errorf("latency should be all-zero, got %+v", s.Latency)
	}
	if s.SuccessRate != 0 {
		t.Errorf("SuccessRate = %f", s.SuccessRate)
	}
}

func TestCollector_ClampsExtremes(t *testing.T) {
	c := stats.NewCollector()
	c.Record(stats.Result{StatusCode: 200, Latency: 0})
	c.Record(stats.Result{StatusCode: 200, Latency: time.Hour})
	s := c.Finalize(time.Second)
	if s.Latency.MinMS < 0.001 {
		t.Errorf("min = %f, want clamp to 1µs", s.Latency.MinMS)
	}
	if s.Latency.MaxMS > 300_000*1.01 {
		t.Errorf("max = %f, want clamp to 5min", s.Latency.MaxMS)
	}
}

func TestCollector_RatesByElapsed(t *testing.T) {
	c := stats.NewCollector()
	for i := 0; i < 10; i++ {
		c.Record(stats.Result{StatusCode: 200, Latency: time.Millisecond, Bytes: 1000})
	}
	s := c.Finalize(2 * time.Second)
	if s.RequestsPerSecond != 5 {
		t.Errorf("rps = %f, want 5", s.RequestsPerSecond)
	}
	if s.BytesPerSecond != 5000 {
		t.Errorf("Bps = %f, want 5000", s.BytesPerSecond)
	}
}
