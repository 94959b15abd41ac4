package http

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go-avocado-analytics-ui/internal/dashboard"
)

const metricPrefix = "avocado_ui_"

var (
	appStartedAtUnix = time.Now().Unix()
	inFlightRequests int64
	wsConnections    int64
	metricsMu        sync.Mutex
	httpSeries       = map[httpMetricKey]*durationSeries{}
	sourceSeries     = map[sourceMetricKey]*durationSeries{}
	bindingSeries    = map[bindingMetricKey]*durationSeries{}
)

type httpMetricKey struct {
	Method string
	Path   string
	Status string
}

type sourceMetricKey struct {
	Source    string
	Operation string
}

type bindingMetricKey struct {
	Binding string
	Status  string
}

type durationSeries struct {
	Count              uint64
	Errors             uint64
	DurationSecondsSum float64
}

type labeled struct {
	labels string
	series durationSeries
}

func metricsHandler(reg *dashboard.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		metricsMu.Lock()
		httpRows := snapshot(httpSeries, func(k httpMetricKey) string {
			return fmt.Sprintf("method=%q,path=%q,status=%q", escapeLabel(k.Method), escapeLabel(k.Path), escapeLabel(k.Status))
		})
		sourceRows := snapshot(sourceSeries, func(k sourceMetricKey) string {
			return fmt.Sprintf("source=%q,operation=%q", escapeLabel(k.Source), escapeLabel(k.Operation))
		})
		bindingRows := snapshot(bindingSeries, func(k bindingMetricKey) string {
			return fmt.Sprintf("binding=%q,status=%q", escapeLabel(k.Binding), escapeLabel(k.Status))
		})
		metricsMu.Unlock()

		bw := bufio.NewWriter(w)
		defer bw.Flush()

		family(bw, "http_requests_total", "counter", "Total HTTP requests handled by this app.")
		for _, it := range httpRows {
			sample(bw, "http_requests_total", it.labels, it.series.Count)
		}
		family(bw, "http_request_duration_seconds_sum", "counter", "Total duration in seconds for observed requests.")
		for _, it := range httpRows {
			sampleFloat(bw, "http_request_duration_seconds_sum", it.labels, it.series.DurationSecondsSum)
		}
		family(bw, "http_request_duration_seconds_count", "counter", "Number of observed requests in duration series.")
		for _, it := range httpRows {
			sample(bw, "http_request_duration_seconds_count", it.labels, it.series.Count)
		}
		family(bw, "http_in_flight_requests", "gauge", "In-flight HTTP requests currently served by this app.")
		sample(bw, "http_in_flight_requests", "", atomic.LoadInt64(&inFlightRequests))

		family(bw, "binding_runs_total", "counter", "Binding runs by binding and status.")
		for _, it := range bindingRows {
			sample(bw, "binding_runs_total", it.labels, it.series.Count)
		}
		family(bw, "binding_run_duration_seconds_sum", "counter", "Binding run duration sum in seconds by binding and status.")
		for _, it := range bindingRows {
			sampleFloat(bw, "binding_run_duration_seconds_sum", it.labels, it.series.DurationSecondsSum)
		}

		family(bw, "series_query_duration_seconds_sum", "counter", "Series source query duration sum in seconds by source/operation.")
		for _, it := range sourceRows {
			sampleFloat(bw, "series_query_duration_seconds_sum", it.labels, it.series.DurationSecondsSum)
		}
		family(bw, "series_query_duration_seconds_count", "counter", "Series source query count by source/operation.")
		for _, it := range sourceRows {
			sample(bw, "series_query_duration_seconds_count", it.labels, it.series.Count)
		}
		family(bw, "series_query_errors_total", "counter", "Series source query errors by source/operation.")
		for _, it := range sourceRows {
			sample(bw, "series_query_errors_total", it.labels, it.series.Errors)
		}

		family(bw, "sessions_active", "gauge", "Live dashboard sessions.")
		sample(bw, "sessions_active", "", reg.Len())
		family(bw, "websocket_connections", "gauge", "Open WebSocket update streams.")
		sample(bw, "websocket_connections", "", atomic.LoadInt64(&wsConnections))

		writeRuntimeMetrics(bw)
	})
}

func writeRuntimeMetrics(w io.Writer) {
	uptime := time.Now().Unix() - appStartedAtUnix
	family(w, "uptime_seconds", "gauge", "Process uptime in seconds.")
	sample(w, "uptime_seconds", "", uptime)

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	family(w, "runtime_goroutines", "gauge", "Number of goroutines.")
	sample(w, "runtime_goroutines", "", runtime.NumGoroutine())
	family(w, "runtime_memory_alloc_bytes", "gauge", "Heap allocation bytes.")
	sample(w, "runtime_memory_alloc_bytes", "", ms.Alloc)
	family(w, "runtime_gc_total", "counter", "Total GC runs since process start.")
	sample(w, "runtime_gc_total", "", ms.NumGC)

	if cpuSec, ok := processCPUSeconds(); ok {
		family(w, "runtime_cpu_seconds_total", "counter", "Total CPU time consumed by this process in seconds.")
		sampleFloat(w, "runtime_cpu_seconds_total", "", cpuSec)
		if uptime > 0 {
			family(w, "runtime_cpu_percent", "gauge", "Average CPU percent of one core since process start.")
			sampleFloat(w, "runtime_cpu_percent", "", cpuSec/float64(uptime)*100.0)
		}
	}
	if stats := processIOStats(); stats != nil {
		family(w, "runtime_io_read_bytes_total", "counter", "Bytes read by this process from storage.")
		sample(w, "runtime_io_read_bytes_total", "", stats.ReadBytes)
		family(w, "runtime_io_write_bytes_total", "counter", "Bytes written by this process to storage.")
		sample(w, "runtime_io_write_bytes_total", "", stats.WriteBytes)
	}
}

func family(w io.Writer, name, typ, help string) {
	_, _ = fmt.Fprintf(w, "# HELP %s%s %s\n# TYPE %s%s %s\n", metricPrefix, name, help, metricPrefix, name, typ)
}

func sample[N int | int64 | uint32 | uint64](w io.Writer, name, labels string, v N) {
	if labels == "" {
		_, _ = fmt.Fprintf(w, "%s%s %d\n", metricPrefix, name, v)
		return
	}
	_, _ = fmt.Fprintf(w, "%s%s{%s} %d\n", metricPrefix, name, labels, v)
}

func sampleFloat(w io.Writer, name, labels string, v float64) {
	if labels == "" {
		_, _ = fmt.Fprintf(w, "%s%s %.9f\n", metricPrefix, name, v)
		return
	}
	_, _ = fmt.Fprintf(w, "%s%s{%s} %.9f\n", metricPrefix, name, labels, v)
}

// snapshot copies the series under metricsMu, sorted by label string.
func snapshot[K comparable](m map[K]*durationSeries, labels func(K) string) []labeled {
	out := make([]labeled, 0, len(m))
	for k, s := range m {
		out = append(out, labeled{labels: labels(k), series: *s})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].labels < out[j].labels })
	return out
}

func appMetricsSummaryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		type endpointRow struct {
			Method  string  `json:"method"`
			Path    string  `json:"path"`
			Status  string  `json:"status"`
			Count   uint64  `json:"count"`
			AvgMS   float64 `json:"avg_ms"`
			TotalMS float64 `json:"total_ms"`
		}
		type bindingRow struct {
			Binding string  `json:"binding"`
			Runs    uint64  `json:"runs"`
			Errors  uint64  `json:"errors"`
			AvgMS   float64 `json:"avg_ms"`
		}

		metricsMu.Lock()
		httpRows := make([]endpointRow, 0, len(httpSeries))
		for k, s := range httpSeries {
			httpRows = append(httpRows, endpointRow{
				Method:  k.Method,
				Path:    k.Path,
				Status:  k.Status,
				Count:   s.Count,
				AvgMS:   avgMS(s),
				TotalMS: s.DurationSecondsSum * 1000.0,
			})
		}

		byBinding := map[string]*durationSeries{}
		for k, s := range bindingSeries {
			agg, ok := byBinding[k.Binding]
			if !ok {
				agg = &durationSeries{}
				byBinding[k.Binding] = agg
			}
			agg.Count += s.Count
			agg.DurationSecondsSum += s.DurationSecondsSum
			if k.Status != "ok" {
				agg.Errors += s.Count
			}
		}

		sourceErrors := uint64(0)
		for _, s := range sourceSeries {
			sourceErrors += s.Errors
		}
		metricsMu.Unlock()

		bindingRows := make([]bindingRow, 0, len(byBinding))
		bindingErrors := uint64(0)
		for name, s := range byBinding {
			bindingRows = append(bindingRows, bindingRow{Binding: name, Runs: s.Count, Errors: s.Errors, AvgMS: avgMS(s)})
			bindingErrors += s.Errors
		}

		sort.Slice(httpRows, func(i, j int) bool { return httpRows[i].AvgMS > httpRows[j].AvgMS })
		sort.Slice(bindingRows, func(i, j int) bool { return bindingRows[i].Binding < bindingRows[j].Binding })

		topHTTP := httpRows
		if len(topHTTP) > 5 {
			topHTTP = topHTTP[:5]
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"meta": map[string]any{
				"generated_at": time.Now().UTC(),
			},
			"data": map[string]any{
				"top_http_slowest_avg_ms": topHTTP,
				"bindings":                bindingRows,
				"websocket_connections":   atomic.LoadInt64(&wsConnections),
				"errors": map[string]any{
					"binding_runs_total": bindingErrors,
					"series_query_total": sourceErrors,
				},
			},
		})
	}
}

func avgMS(s *durationSeries) float64 {
	if s.Count == 0 {
		return 0
	}
	return s.DurationSecondsSum / float64(s.Count) * 1000.0
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the WebSocket upgrader take over connections that pass
// through the middleware.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func observabilityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		atomic.AddInt64(&inFlightRequests, 1)
		defer atomic.AddInt64(&inFlightRequests, -1)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		recordHTTPMetric(r.Method, normalizeMetricPath(r.URL.Path), rec.status, time.Since(start).Seconds())
	})
}

var metricPaths = map[string]bool{
	"/":                       true,
	"/favicon.ico":            true,
	"/metrics":                true,
	"/health":                 true,
	"/ready":                  true,
	"/api/v1/metrics/app":     true,
	"/api/v1/sessions":        true,
	"/api/v1/controls":        true,
	"/api/v1/status/services": true,
	"/api/v1/engine/bindings": true,
}

var sessionActions = map[string]bool{"events": true, "ws": true, "export.xlsx": true}

// normalizeMetricPath folds session and figure ids out of the path label and
// maps anything unrouted to "other".
func normalizeMetricPath(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/v1/sessions/"):
		rest := strings.Trim(strings.TrimPrefix(path, "/api/v1/sessions/"), "/")
		if rest == "" {
			return "other"
		}
		if _, action, ok := strings.Cut(rest, "/"); ok {
			if !sessionActions[action] {
				return "other"
			}
			return "/api/v1/sessions/{id}/" + action
		}
		return "/api/v1/sessions/{id}"
	case strings.HasPrefix(path, "/api/v1/figures/"):
		return "/api/v1/figures/{id}"
	case metricPaths[path]:
		return path
	default:
		return "other"
	}
}

func recordHTTPMetric(method, path string, status int, durationSeconds float64) {
	record(httpSeries, httpMetricKey{Method: method, Path: path, Status: strconv.Itoa(status)}, durationSeconds, nil)
}

func recordSeriesQuery(source, operation string, durationSeconds float64, err error) {
	if source == "" || operation == "" {
		return
	}
	record(sourceSeries, sourceMetricKey{Source: source, Operation: operation}, durationSeconds, err)
}

func recordBindingRun(binding, status string, elapsed time.Duration) {
	status = strings.TrimSpace(strings.ToLower(status))
	if status == "" {
		status = "unknown"
	}
	record(bindingSeries, bindingMetricKey{Binding: binding, Status: status}, elapsed.Seconds(), nil)
}

func record[K comparable](m map[K]*durationSeries, key K, durationSeconds float64, err error) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	row, ok := m[key]
	if !ok {
		row = &durationSeries{}
		m[key] = row
	}
	row.Count++
	row.DurationSecondsSum += durationSeconds
	if err != nil {
		row.Errors++
	}
}

func wsConnOpened() { atomic.AddInt64(&wsConnections, 1) }

func wsConnClosed() { atomic.AddInt64(&wsConnections, -1) }

// instrumentedSource times every query of the wrapped series source.
type instrumentedSource struct {
	next dashboard.SeriesSource
}

func instrumentSource(src dashboard.SeriesSource) dashboard.SeriesSource {
	return instrumentedSource{next: src}
}

func (s instrumentedSource) Name() string { return s.next.Name() }

func (s instrumentedSource) Price(ctx context.Context, q dashboard.SeriesQuery) (dashboard.Series, error) {
	start := time.Now()
	out, err := s.next.Price(ctx, q)
	recordSeriesQuery(s.next.Name(), "Price", time.Since(start).Seconds(), err)
	return out, err
}

func (s instrumentedSource) Volume(ctx context.Context, q dashboard.SeriesQuery) (dashboard.Series, error) {
	start := time.Now()
	out, err := s.next.Volume(ctx, q)
	recordSeriesQuery(s.next.Name(), "Volume", time.Since(start).Seconds(), err)
	return out, err
}

func escapeLabel(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, "\n", `\n`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return v
}

func processCPUSeconds() (float64, bool) {
	var ru syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &ru); err != nil {
		return 0, false
	}
	user := float64(ru.Utime.Sec) + (float64(ru.Utime.Usec) / 1_000_000.0)
	sys := float64(ru.Stime.Sec) + (float64(ru.Stime.Usec) / 1_000_000.0)
	return user + sys, true
}

type ioStats struct {
	ReadBytes  uint64
	WriteBytes uint64
}

func processIOStats() *ioStats {
	b, err := os.ReadFile("/proc/self/io")
	if err != nil {
		return nil
	}
	out := &ioStats{}
	for _, line := range strings.Split(string(b), "\n") {
		key, val, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		v, err := strconv.ParseUint(strings.TrimSpace(val), 10, 64)
		if err != nil {
			continue
		}
		switch strings.TrimSpace(key) {
		case "read_bytes":
			out.ReadBytes = v
		case "write_bytes":
			out.WriteBytes = v
		}
	}
	return out
}

func currentWSConnections() int64 { return atomic.LoadInt64(&wsConnections) }
