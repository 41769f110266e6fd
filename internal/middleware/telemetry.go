package middleware

import (
	"math"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const latencyWindowSize = 200

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(data []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(data)
	r.bytes += n
	return n, err
}

// routeLatency keeps the last latencyWindowSize durations per route in a ring.
type routeLatency struct {
	mu     sync.Mutex
	routes map[string]*ring
}

type ring struct {
	samples []int64
	next    int
}

func (l *routeLatency) record(route string, ms int64) (p50, p95 int64) {
	l.mu.Lock()
	r, ok := l.routes[route]
	if !ok {
		r = &ring{samples: make([]int64, 0, latencyWindowSize)}
		l.routes[route] = r
	}
	if len(r.samples) < latencyWindowSize {
		r.samples = append(r.samples, ms)
	} else {
		r.samples[r.next] = ms
		r.next = (r.next + 1) % latencyWindowSize
	}
	sorted := slices.Clone(r.samples)
	l.mu.Unlock()

	slices.Sort(sorted)
	return percentile(sorted, 0.5), percentile(sorted, 0.95)
}

// percentile uses the nearest-rank method on sorted values.
func percentile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	return sorted[min(max(idx, 0), len(sorted)-1)]
}

// Telemetry logs one line per request with rolling p50/p95 latency of its route. Server errors
// log at error level and client errors at warn.
func Telemetry(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	latency := &routeLatency{routes: make(map[string]*ring)}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			duration := time.Since(start)

			routePattern := ""
			if rc := chi.RouteContext(r.Context()); rc != nil {
				routePattern = rc.RoutePattern()
			}
			key := r.Method + " " + routePattern
			if routePattern == "" {
				key = r.Method + " " + r.URL.Path
			}
			p50, p95 := latency.record(key, duration.Milliseconds())

			level := zapcore.InfoLevel
			switch {
			case status >= 500:
				level = zapcore.ErrorLevel
			case status >= 400:
				level = zapcore.WarnLevel
			}
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("routePattern", routePattern),
				zap.String("requestId", GetRequestID(r.Context())),
				zap.Int("status", status),
				zap.Int("bytes", rec.bytes),
				zap.Int64("duration_ms", duration.Milliseconds()),
				zap.Int64("p50_ms", p50),
				zap.Int64("p95_ms", p95),
			}
			if ac, ok := GetAuthContext(r.Context()); ok {
				fields = append(fields, zap.Int64("userId", ac.UserID))
			}
			logger.Log(level, "http_request", fields...)
		})
	}
}
