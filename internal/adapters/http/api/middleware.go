package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/Thiri06/Contact-Info-Capture-Agent/pkg/metrics"
)

// MetricsMiddleware records request counts, latency and error classes. The
// endpoint label is the matched route pattern, so record ids in paths do not
// become label values.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		endpoint := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			endpoint = rc.RoutePattern()
		}
		ms := float64(time.Since(start).Milliseconds())
		code := strconv.Itoa(status)

		metrics.RecordHTTPRequest(endpoint, r.Method, code)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, code, ms)

		if status >= http.StatusBadRequest {
			class, severity := classifyStatus(status)
			metrics.RecordErrorByEndpoint(endpoint, r.Method, class)
			metrics.RecordErrorByType(class, severity)
			metrics.RecordErrorLatency("http", class, ms)
		}
	})
}

// classifyStatus maps an error status onto the error class and severity
// labels used by the error metrics.
func classifyStatus(status int) (class, severity string) {
	switch status {
	case http.StatusUnprocessableEntity:
		return "validation", "low"
	case http.StatusConflict:
		return "conflict", "low"
	case http.StatusNotFound:
		return "not_found", "low"
	case http.StatusTooManyRequests:
		return "queue_full", "medium"
	case http.StatusServiceUnavailable:
		return "store_unavailable", "high"
	}
	if status >= http.StatusInternalServerError {
		return "server_error", "high"
	}
	return "client_error", "medium"
}

// TraceContextMiddleware continues a caller's trace. The remote span context
// carried in the request headers becomes the parent of the spans started
// while handling the request.
func TraceContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
