package observ

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

type registry struct {
	mu       sync.Mutex
	counters map[string]map[string]int64   // name -> labelsKey -> count
	gauges   map[string]map[string]float64 // name -> labelsKey -> value
	hist     map[string]map[string][]float64
}

var reg = &registry{
	counters: map[string]map[string]int64{},
	gauges:   map[string]map[string]float64{},
	hist:     map[string]map[string][]float64{},
}

// canonicalize label map so key order is stable
func canonLabels(lbl map[string]string) string {
	if len(lbl) == 0 {
		return ""
	}
	keys := make([]string, 0, len(lbl))
	for k := range lbl {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(lbl[k])
	}
	return b.String()
}

func IncCounter(name string, labels map[string]string) {
	IncCounterBy(name, labels, 1.0)
}

func IncCounterBy(name string, labels map[string]string, value float64) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.counters[name]
	if !ok {
		m = map[string]int64{}
		reg.counters[name] = m
	}
	k := canonLabels(labels)
	m[k] += int64(value)
}

func SetGauge(name string, value float64, labels map[string]string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.gauges[name]
	if !ok {
		m = map[string]float64{}
		reg.gauges[name] = m
	}
	k := canonLabels(labels)
	m[k] = value
}

func Observe(name string, value float64, labels map[string]string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.hist[name]
	if !ok {
		m = map[string][]float64{}
		reg.hist[name] = m
	}
	k := canonLabels(labels)
	m[k] = append(m[k], value)
}

// RecordDuration records a duration observation in milliseconds.
func RecordDuration(name string, duration time.Duration, labels map[string]string) {
	Observe(name+"_ms", float64(duration.Milliseconds()), labels)
}

// Basic JSON dump for quick checks (not Prometheus format on purpose)
func Handler() http.Handler {
	type dump struct {
		Counters map[string]map[string]int64     `json:"counters"`
		Gauges   map[string]map[string]float64   `json:"gauges"`
		Hist     map[string]map[string][]float64 `json:"histograms"`
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reg.mu.Lock()
		defer reg.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(dump{Counters: reg.counters, Gauges: reg.gauges, Hist: reg.hist})
	})
}

// HealthStatus summarizes the console's view of itself and the upstream
// trading process.
type HealthStatus struct {
	Status    string        `json:"status"` // "healthy", "degraded", "failed"
	Timestamp string        `json:"timestamp"`
	Uptime    string        `json:"uptime"`
	Version   string        `json:"version"`
	Metrics   HealthMetrics `json:"metrics"`
}

// HealthMetrics holds the key reconciliation metrics.
type HealthMetrics struct {
	PullSuccessRate   float64 `json:"pull_success_rate"`   // upstream request success rate
	PullLatencyP95Ms  int64   `json:"pull_latency_p95_ms"` // P95 upstream request latency
	EquityFallbacks   int64   `json:"equity_fallbacks"`    // times the legacy endpoint was consulted
	GuardSkips        int64   `json:"guard_skips"`         // refreshes suppressed by an in-flight guard
	PushConnected     bool    `json:"push_connected"`      // push channel state
	LogBufferSize     int     `json:"log_buffer_size"`     // current rendered log length
	CyclesSinceEquity int64   `json:"cycles_since_equity"` // slow cycles since last good equity result
}

var (
	startTime = time.Now()
	version   = "dev" // set via build flags
)

// SetVersion sets the version string for health reports.
func SetVersion(v string) {
	version = v
}

// HealthHandler reports healthy/degraded/failed from the reconciliation
// metrics: a failed upstream streak degrades, a dead push channel alone
// does not (polling still covers it).
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reg.mu.Lock()
		metrics := collectHealthMetrics()
		reg.mu.Unlock()

		status := "healthy"
		if metrics.PullSuccessRate < 0.9 && totalRequests() > 20 {
			status = "degraded"
		}
		if metrics.PullSuccessRate < 0.5 && totalRequests() > 20 {
			status = "failed"
		}

		health := HealthStatus{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Uptime:    time.Since(startTime).String(),
			Version:   version,
			Metrics:   metrics,
		}

		statusCode := http.StatusOK
		switch health.Status {
		case "degraded":
			statusCode = http.StatusPartialContent
		case "failed":
			statusCode = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_ = json.NewEncoder(w).Encode(health)
	})
}

func totalRequests() int64 {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	var total int64
	for _, count := range reg.counters["upstream_requests_total"] {
		total += count
	}
	return total
}

// collectHealthMetrics computes the health view from raw telemetry.
// Caller holds reg.mu.
func collectHealthMetrics() HealthMetrics {
	m := HealthMetrics{PullSuccessRate: 1.0}

	var requests, errors int64
	for _, count := range reg.counters["upstream_requests_total"] {
		requests += count
	}
	for _, count := range reg.counters["upstream_errors_total"] {
		errors += count
	}
	if requests > 0 {
		m.PullSuccessRate = float64(requests-errors) / float64(requests)
	}

	for _, samples := range reg.hist["upstream_request_ms"] {
		if len(samples) == 0 {
			continue
		}
		sorted := make([]float64, len(samples))
		copy(sorted, samples)
		sort.Float64s(sorted)
		idx := int(float64(len(sorted)) * 0.95)
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		if p95 := int64(sorted[idx]); p95 > m.PullLatencyP95Ms {
			m.PullLatencyP95Ms = p95
		}
	}

	for _, count := range reg.counters["equity_fallback_total"] {
		m.EquityFallbacks += count
	}
	for _, count := range reg.counters["guard_skip_total"] {
		m.GuardSkips += count
	}
	for _, v := range reg.gauges["push_connected"] {
		m.PushConnected = v == 1
	}
	for _, v := range reg.gauges["log_buffer_size"] {
		m.LogBufferSize = int(v)
	}
	for _, v := range reg.gauges["cycles_since_equity"] {
		m.CyclesSinceEquity = int64(v)
	}

	return m
}

// Simple health handler (liveness only)
func Health() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}
