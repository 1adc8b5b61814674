package httpx

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pulsewatch/collector/internal/repository"
	"github.com/pulsewatch/collector/internal/service/alert"
	"github.com/pulsewatch/collector/internal/service/dashboard"
	"github.com/pulsewatch/collector/internal/service/health"
	"github.com/pulsewatch/collector/internal/service/incident"
	"github.com/pulsewatch/collector/internal/service/ingest"
	"github.com/pulsewatch/collector/internal/service/stats"
	"github.com/pulsewatch/collector/internal/ws"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux         *http.ServeMux
	logger      *slog.Logger
	ingest      *ingest.Service
	stats       *stats.Service
	health      *health.Service
	incidents   *incident.Service
	alerts      *alert.Service
	dashboard   *dashboard.Service
	hub         *ws.Hub
	upgrader    websocket.Upgrader
	limiter     RateLimiter
	maxPageSize int
	window      time.Duration
	dbHealth    func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	rateLimitIngest    = 1200
	rateLimitQuery     = 240
	rateLimitRealtime  = 30
	defaultPageSize    = 20
	defaultMaxPageSize = 500
	healthCheckTimeout = 2 * time.Second
	sseHeartbeat       = 15 * time.Second
)

// NewRouter assembles routes with dependencies. window is the trailing query
// window used when a request carries no explicit time bounds.
func NewRouter(logger *slog.Logger, ingestSvc *ingest.Service, statsSvc *stats.Service, healthSvc *health.Service, incidentSvc *incident.Service, alertSvc *alert.Service, dashboardSvc *dashboard.Service, hub *ws.Hub, limiter RateLimiter, maxPageSize int, window time.Duration, dbHealth func(context.Context) error) *Router {
	if maxPageSize <= 0 {
		maxPageSize = defaultMaxPageSize
	}
	if window <= 0 {
		window = time.Hour
	}
	r := &Router{
		mux:       http.NewServeMux(),
		logger:    logger,
		ingest:    ingestSvc,
		stats:     statsSvc,
		health:    healthSvc,
		incidents: incidentSvc,
		alerts:    alertSvc,
		dashboard: dashboardSvc,
		hub:       hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:     limiter,
		maxPageSize: maxPageSize,
		window:      window,
		dbHealth:    dbHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())

	r.mux.HandleFunc("/api/logs", r.audit("/api/logs",
		r.withRateLimit("/api/logs", rateLimitIngest, rateWindowDefault, rateLimitKeyIP, r.handleLogs)))
	r.mux.HandleFunc("/api/rate-limit-events", r.audit("/api/rate-limit-events",
		r.withRateLimit("/api/rate-limit-events", rateLimitIngest, rateWindowDefault, rateLimitKeyIP, r.handleRateLimitEvents)))

	r.mux.HandleFunc("/api/stats", r.audit("/api/stats",
		r.withRateLimit("/api/stats", rateLimitQuery, rateWindowDefault, rateLimitKeyIP, r.handleStats)))
	r.mux.HandleFunc("/api/health/", r.audit("/api/health/",
		r.withRateLimit("/api/health/", rateLimitQuery, rateWindowDefault, rateLimitKeyIP, r.handleHealth)))
	r.mux.HandleFunc("/api/incidents", r.audit("/api/incidents",
		r.withRateLimit("/api/incidents", rateLimitQuery, rateWindowDefault, rateLimitKeyIP, r.handleIncidents)))
	r.mux.HandleFunc("/api/incidents/", r.audit("/api/incidents/",
		r.withRateLimit("/api/incidents/", rateLimitQuery, rateWindowDefault, rateLimitKeyIP, r.handleIncidentSubroutes)))
	r.mux.HandleFunc("/api/alerts", r.audit("/api/alerts",
		r.withRateLimit("/api/alerts", rateLimitQuery, rateWindowDefault, rateLimitKeyIP, r.handleAlerts)))
	r.mux.HandleFunc("/api/alerts/", r.audit("/api/alerts/",
		r.withRateLimit("/api/alerts/", rateLimitQuery, rateWindowDefault, rateLimitKeyIP, r.handleAlertSubroutes)))
	r.mux.HandleFunc("/api/dashboard/", r.audit("/api/dashboard/",
		r.withRateLimit("/api/dashboard/", rateLimitQuery, rateWindowDefault, rateLimitKeyIP, r.handleDashboard)))

	r.mux.HandleFunc("/ws/events", r.audit("/ws/events",
		r.withRateLimit("/ws/events", rateLimitRealtime, rateWindowDefault, rateLimitKeyIP, r.handleEventsWS)))
	r.mux.HandleFunc("/events/stream", r.audit("/events/stream",
		r.withRateLimit("/events/stream", rateLimitRealtime, rateWindowDefault, rateLimitKeyIP, r.handleEventsSSE)))
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

// writeServiceError maps domain error classes onto HTTP statuses.
func (r *Router) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, repository.ErrVersionConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (sr *statusRecorder) Push(target string, opts *http.PushOptions) error {
	if p, ok := sr.ResponseWriter.(http.Pusher); ok {
		return p.Push(target, opts)
	}
	return http.ErrNotSupported
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
