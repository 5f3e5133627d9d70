package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel/trace"
)

func newRouter(mws ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(mws...)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/channels/{name}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/boom", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	return r
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			if matchLabels(m, labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matchLabels(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string)
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestPrometheusMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := newRouter(Prometheus(WithRegistry(reg)))

	tests := []struct {
		path   string
		route  string
		status string
	}{
		{"/healthz", "/healthz", "200"},
		{"/channels/room", "/channels/{name}", "404"},
		{"/channels/other", "/channels/{name}", "404"},
		{"/nope", "unmatched", "404"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
	}

	cases := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"healthz", map[string]string{"route": "/healthz", "method": "GET", "status": "200"}, 1},
		{"pattern collapses params", map[string]string{"route": "/channels/{name}", "status": "404"}, 2},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := counterValue(t, reg, "sharedpaint_http_requests_total", c.labels)
			if got != c.want {
				t.Errorf("requests_total%v = %v, want %v", c.labels, got, c.want)
			}
		})
	}

	if got := counterValue(t, reg, "sharedpaint_http_response_bytes_total", map[string]string{"route": "/healthz"}); got != 2 {
		t.Errorf("response_bytes_total = %v, want 2", got)
	}
}

func TestPrometheusNamespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := newRouter(Prometheus(WithRegistry(reg), WithNamespace("relay"), WithSubsystem("")))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if got := counterValue(t, reg, "relay_requests_total", nil); got != 1 {
		t.Errorf("relay_requests_total = %v, want 1", got)
	}
}

func TestOpenTelemetryMiddleware(t *testing.T) {
	var sawSpan bool
	mw := OpenTelemetry(WithTracerName("test"))
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawSpan = SpanFromRequest(r) != nil
		w.WriteHeader(http.StatusAccepted)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/x", nil))
	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}
	if !sawSpan {
		t.Error("handler saw no span")
	}
}

func TestOpenTelemetryFilter(t *testing.T) {
	var traced bool
	mw := OpenTelemetry(WithRequestFilter(func(r *http.Request) bool {
		return r.URL.Path != "/healthz"
	}))
	h := mw(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		traced = trace.SpanContextFromContext(r.Context()).IsValid()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if traced {
		t.Error("filtered request carried a span context")
	}
}

func TestLoggerMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	h := newRouter(Logger(logger))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("logged %d lines, want 2:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[0], "level=INFO") || !strings.Contains(lines[0], "status=200") {
		t.Errorf("first line = %s", lines[0])
	}
	if !strings.Contains(lines[1], "level=WARN") || !strings.Contains(lines[1], "status=500") {
		t.Errorf("second line = %s", lines[1])
	}
}
