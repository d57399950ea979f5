package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// httpMetrics counts requests and their latency per handler in a private metrics set,
// so several nodes in one process (the local command) do not share counters.
type httpMetrics struct {
	set  *metrics.Set
	role string
}

func newHTTPMetrics(role string) *httpMetrics {
	return &httpMetrics{set: metrics.NewSet(), role: role}
}

// instrument wraps h and records the status and duration of every request under name
func (m *httpMetrics) instrument(name string, h http.HandlerFunc) http.HandlerFunc {
	duration := m.set.GetOrCreateHistogram(fmt.Sprintf(`drate_http_request_duration_seconds{role=%q,handler=%q}`, m.role, name))
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h(sw, r)
		duration.UpdateDuration(start)
		m.set.GetOrCreateCounter(fmt.Sprintf(`drate_http_requests_total{role=%q,handler=%q,method=%q,code="%d"}`,
			m.role, name, r.Method, sw.status)).Inc()
	}
}

// gauge registers a callback gauge
func (m *httpMetrics) gauge(name string, f func() float64) {
	m.set.GetOrCreateGauge(name, f)
}

// counter returns the counter name in the set
func (m *httpMetrics) counter(name string) *metrics.Counter {
	return m.set.GetOrCreateCounter(name)
}

// handler serves the metrics of the set and of the process in the prometheus text format
func (m *httpMetrics) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		m.set.WritePrometheus(w)
		metrics.WriteProcessMetrics(w)
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}
