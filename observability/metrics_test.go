package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()
	if m.Registry() == nil {
		t.Fatal("expected registry to be initialized")
	}
	if m.MetricsPath() != "/metrics" {
		t.Errorf("expected /metrics, got %q", m.MetricsPath())
	}
}

func TestMetrics_RecordParse(t *testing.T) {
	m := NewMetrics()
	m.RecordParse("pattern", 3, 2*time.Millisecond)
	m.RecordParse("pattern", 1, time.Millisecond)
	m.RecordParse("degraded", 0, 40*time.Millisecond)

	if got := testutil.ToFloat64(m.ParsesTotal.WithLabelValues("pattern")); got != 2 {
		t.Errorf("expected 2 pattern parses, got %v", got)
	}
	if got := testutil.ToFloat64(m.ParsesTotal.WithLabelValues("degraded")); got != 1 {
		t.Errorf("expected 1 degraded parse, got %v", got)
	}
}

func TestMetrics_RecordModelCallAndCache(t *testing.T) {
	m := NewMetrics()
	m.RecordModelCall("anthropic", "success")
	m.RecordModelCall("anthropic", "error")
	m.RecordCacheLookup(true)
	m.RecordCacheLookup(false)
	m.RecordCacheLookup(false)

	if got := testutil.ToFloat64(m.ModelCalls.WithLabelValues("anthropic", "error")); got != 1 {
		t.Errorf("expected 1 failed call, got %v", got)
	}
	if got := testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")); got != 2 {
		t.Errorf("expected 2 misses, got %v", got)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordParse("pattern", 1, time.Millisecond)
	m.RecordModelCall("copilot", "success")
	m.RecordCacheLookup(true)
	m.RecordHTTPRequest("GET", "/", 200, time.Millisecond)
}

func TestMetrics_DisabledGroups(t *testing.T) {
	cfg := DefaultMetricsConfig()
	cfg.EnabledMetrics = []string{"parse"}
	m := NewMetricsWithConfig(cfg)
	if m.ModelCalls != nil || m.HTTPRequestsTotal != nil {
		t.Error("expected disabled groups to stay nil")
	}
	// Should not panic
	m.RecordModelCall("anthropic", "success")
	m.RecordHTTPRequest("GET", "/", 200, time.Millisecond)
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.RecordParse("model", 2, time.Second)
	m.RecordHTTPRequest("POST", "/api/workflows/parse", 200, 50*time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, name := range []string{"nlflow_parses_total", "nlflow_http_requests_total"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("expected %s in metrics output", name)
		}
	}
}
