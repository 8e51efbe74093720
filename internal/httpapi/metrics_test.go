package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_ScrapeExposesHTTPSeries(t *testing.T) {
	h := NewMux(&mockService{ready: true})
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	w := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("/metrics status=%d", w.Code)
	}
	body := w.Body.String()
	for _, name := range []string{"llmgate_http_requests_total", "llmgate_http_request_duration_seconds"} {
		if !strings.Contains(body, name) {
			t.Fatalf("missing %s in scrape", name)
		}
	}
}

func TestMetrics_TooBusyChatCountsBackpressure(t *testing.T) {
	svc := &mockService{openErr: mockHTTPError{msg: "all stream slots busy", code: http.StatusTooManyRequests, kind: "too_busy"}}
	h := NewMux(svc)

	busy := backpressureTotal.WithLabelValues("too_busy")
	reqs := httpRequestsTotal.WithLabelValues("/chat", http.MethodPost, "429")
	beforeBusy, beforeReqs := testutil.ToFloat64(busy), testutil.ToFloat64(reqs)

	w := postJSON(t, h, "/chat", `{"model":"m","prompt":"p"}`, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d %s", w.Code, w.Body.String())
	}
	if got := testutil.ToFloat64(busy); got != beforeBusy+1 {
		t.Fatalf("too_busy backpressure: want %v, got %v", beforeBusy+1, got)
	}
	if got := testutil.ToFloat64(reqs); got != beforeReqs+1 {
		t.Fatalf("/chat 429 requests: want %v, got %v", beforeReqs+1, got)
	}
}

func TestIncrementBackpressure_EmptyReason(t *testing.T) {
	c := backpressureTotal.WithLabelValues("unspecified")
	before := testutil.ToFloat64(c)
	IncrementBackpressure("")
	if got := testutil.ToFloat64(c); got != before+1 {
		t.Fatalf("unspecified: want %v, got %v", before+1, got)
	}
}
