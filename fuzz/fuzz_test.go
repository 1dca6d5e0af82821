package fuzz_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quicpulse/quicpulse/client"
	"github.com/quicpulse/quicpulse/fuzz"
	"github.com/quicpulse/quicpulse/interrupt"
)

func TestBuiltin_RiskFilter(t *testing.T) {
	all := fuzz.Builtin(nil, 1)
	high := fuzz.Builtin(nil, 5)
	if len(high) == 0 || len(high) >= len(all) {
		t.Errorf("risk filter not applied: %d vs %d", len(high), len(all))
	}
	for _, p := range high {
		if p.Risk < 5 {
			t.Errorf("payload %q has risk %d", p.Value, p.Risk)
		}
	}
}

func TestBuiltin_CategoryFilter(t *testing.T) {
	sql := fuzz.Builtin([]fuzz.Category{fuzz.CategorySQL}, 1)
	if len(sql) == 0 {
		t.Fatal("no SQL payloads")
	}
	for _, p := range sql {
		if p.Category != fuzz.CategorySQL {
			t.Errorf("payload %q has category %s", p.Value, p.Category)
		}
	}
}

func TestParseCategory(t *testing.T) {
	for spelling, want := range map[string]fuzz.Category{
		"sqli": fuzz.CategorySQL, "xss": fuzz.CategoryXSS, "traversal": fuzz.CategoryPath,
		"overflow": fuzz.CategoryInt, "mongo": fuzz.CategoryNoSQL,
	} {
		got, err := fuzz.ParseCategory(spelling)
		if err != nil || got != want {
			t.Errorf("ParseCategory(%q) = %v, %v", spelling, got, err)
		}
	}
	if _, err := fuzz.ParseCategory("bogus"); err == nil {
		t.Error("expected error for unknown category")
	}
}

func TestRun_Classification(t *testing.T) {
	interrupt.Reset()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]interface{}
		json.Unmarshal(body, &payload)
		value, _ := payload["q"].(string)
		switch {
		case strings.Contains(value, "DROP TABLE"):
			w.WriteHeader(http.StatusInternalServerError)
		case strings.Contains(value, "<script>"):
			// Reflect the payload.
			w.Write(body)
		case value == "":
			w.WriteHeader(http.StatusBadRequest)
		default:
			w.Write([]byte("fine"))
		}
	}))
	defer srv.Close()

	c, _ := client.New(client.Options{})
	runner := &fuzz.Runner{
		Client:  c,
		Options: fuzz.Options{Concurrency: 4, MinRisk: 1},
		Method:  "POST",
		URL:     srv.URL,
	}
	outcomes, summary, err := runner.Run(context.Background(), []string{"q"})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if summary.Total != len(outcomes) {
		t.Errorf("summary total %d != %d outcomes", summary.Total, len(outcomes))
	}
	if summary.Anomalies == 0 {
		t.Error("DROP TABLE payload should be an anomaly")
	}
	if summary.Suspicious == 0 {
		t.Error("reflected <script> payload should be suspicious")
	}
	if summary.Rejected == 0 {
		t.Error("empty payload should be rejected")
	}
}

func TestRun_NoFields(t *testing.T) {
	c, _ := client.New(client.Options{})
	runner := &fuzz.Runner{Client: c, Options: fuzz.Options{MinRisk: 1}, Method: "POST", URL: "http://localhost/"}
	if _, _, err := runner.Run(context.Background(), nil); err == nil {
		t.Error("expected error with no fields")
	}
}

func TestLoadDictionary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dict.txt")
	os.WriteFile(path, []byte("payload-one\n# comment\n\npayload-two\n"), 0o644)
	payloads, err := fuzz.LoadDictionary(path)
	if err != nil {
		t.Fatalf("LoadDictionary error: %v", err)
	}
	if len(payloads) != 2 {
		t.Fatalf("got %d payloads, want 2", len(payloads))
	}
	if payloads[0].Value != "payload-one" || payloads[0].Category != fuzz.CategoryCustom {
		t.Errorf("got %+v", payloads[0])
	}
}

func TestCustomPayloads(t *testing.T) {
	ps := fuzz.CustomPayloads([]string{"a", "b"})
	if len(ps) != 2 || ps[1].Value != "b" {
		t.Errorf("got %+v", ps)
	}
}

func TestFormat_AnomaliesOnly(t *testing.T) {
	outcomes := []fuzz.Outcome{
		{Field: "q", Payload: fuzz.Payload{Value: "x", Category: fuzz.CategorySQL, Risk: 3}, Verdict: fuzz.VerdictAnomaly, Status: 500},
		{Field: "q", Payload: fuzz.Payload{Value: "y", Category: fuzz.CategoryXSS, Risk: 3}, Verdict: fuzz.VerdictPassed, Status: 200},
	}
	out := fuzz.Format(outcomes, fuzz.Summary{Total: 2, Anomalies: 1, Passed: 1}, true)
	if !strings.Contains(out, "anomaly") {
		t.Error("anomaly line missing")
	}
	if strings.Contains(out, "passed    q=") {
		t.Error("passed outcome should be filtered")
	}
}
