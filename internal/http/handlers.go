package httpx

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pulsewatch/collector/internal/domain"
	"github.com/pulsewatch/collector/internal/ws"
)

func (r *Router) handleLogs(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodPost:
		var records []domain.LogRecord
		if err := decodeBatch(req, &records); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		stored, err := r.ingest.IngestLogs(req.Context(), records)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"accepted": len(stored)})
	case http.MethodGet:
		filter, ok := r.parseLogFilter(w, req)
		if !ok {
			return
		}
		page, ok := r.parsePage(w, req)
		if !ok {
			return
		}
		result, err := r.ingest.ListLogs(req.Context(), filter, page)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleRateLimitEvents(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodPost:
		var events []domain.RateLimitEvent
		if err := decodeBatch(req, &events); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		stored, err := r.ingest.IngestRateLimitEvents(req.Context(), events)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"accepted": len(stored)})
	case http.MethodGet:
		start, end, ok := r.parseWindow(w, req)
		if !ok {
			return
		}
		page, ok := r.parsePage(w, req)
		if !ok {
			return
		}
		result, err := r.ingest.ListRateLimitEvents(req.Context(), req.URL.Query().Get("service"), start, end, page)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleStats(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	start, end, ok := r.parseWindow(w, req)
	if !ok {
		return
	}
	query := req.URL.Query()
	serviceName := query.Get("service")
	endpoint := query.Get("endpoint")
	if serviceName != "" && endpoint != "" {
		stat, err := r.stats.ComputeEndpointStatistics(req.Context(), serviceName, endpoint, start, end)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		if stat == nil {
			r.notFound(w)
			return
		}
		writeJSON(w, http.StatusOK, stat)
		return
	}
	all, err := r.stats.ComputeStatistics(req.Context(), start, end)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	view := strings.TrimPrefix(req.URL.Path, "/api/health/")
	switch view {
	case "system":
		start, end, ok := r.parseWindow(w, req)
		if !ok {
			return
		}
		system, err := r.health.SystemScore(req.Context(), start, end)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, system)
	case "endpoints":
		start, end, ok := r.parseWindow(w, req)
		if !ok {
			return
		}
		scores, err := r.health.EndpointScores(req.Context(), start, end)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, scores)
	case "endpoint":
		query := req.URL.Query()
		serviceName := query.Get("service")
		endpoint := query.Get("endpoint")
		if serviceName == "" || endpoint == "" {
			writeError(w, http.StatusBadRequest, "service and endpoint query parameters required")
			return
		}
		start, end, ok := r.parseWindow(w, req)
		if !ok {
			return
		}
		score, err := r.health.EndpointScore(req.Context(), serviceName, endpoint, start, end)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		if score == nil {
			r.notFound(w)
			return
		}
		writeJSON(w, http.StatusOK, score)
	case "trend":
		lookback, ok := r.parseDuration(w, req, "hours", time.Hour, 24*time.Hour)
		if !ok {
			return
		}
		interval, ok := r.parseDuration(w, req, "intervalMinutes", time.Minute, time.Hour)
		if !ok {
			return
		}
		points, err := r.health.Trend(req.Context(), lookback, interval)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, points)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleIncidents(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	query := req.URL.Query()
	filter := domain.IncidentFilter{
		ServiceName:  query.Get("service"),
		Endpoint:     query.Get("endpoint"),
		IncidentType: domain.IncidentType(query.Get("type")),
		Status:       domain.IncidentStatus(query.Get("status")),
	}
	var ok bool
	if filter.StartTime, filter.EndTime, ok = r.parseOptionalBounds(w, req); !ok {
		return
	}
	page, ok := r.parsePage(w, req)
	if !ok {
		return
	}
	result, err := r.incidents.List(req.Context(), filter, page)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (r *Router) handleIncidentSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/api/incidents/")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 1 || parts[0] == "" {
		r.notFound(w)
		return
	}
	id := parts[0]
	if len(parts) == 1 {
		if req.Method != http.MethodGet {
			r.methodNotAllowed(w)
			return
		}
		incident, err := r.incidents.Get(req.Context(), id)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, incident)
		return
	}
	if len(parts) == 2 && parts[1] == "resolve" {
		r.handleIncidentResolve(w, req, id)
		return
	}
	r.notFound(w)
}

func (r *Router) handleIncidentResolve(w http.ResponseWriter, req *http.Request, id string) {
	if req.Method != http.MethodPut {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		ResolvedBy string `json:"resolvedBy"`
		Notes      string `json:"notes"`
		Version    int64  `json:"version"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	payload.ResolvedBy = strings.TrimSpace(payload.ResolvedBy)
	if payload.ResolvedBy == "" {
		writeError(w, http.StatusBadRequest, "resolvedBy is required")
		return
	}
	incident, err := r.incidents.Resolve(req.Context(), id, payload.Version, payload.ResolvedBy, payload.Notes)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, incident)
}

func (r *Router) handleAlerts(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	query := req.URL.Query()
	filter := domain.AlertFilter{
		AlertType:          domain.AlertType(query.Get("type")),
		UnacknowledgedOnly: query.Get("unacknowledged") == "true",
	}
	page, ok := r.parsePage(w, req)
	if !ok {
		return
	}
	result, err := r.alerts.List(req.Context(), filter, page)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (r *Router) handleAlertSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/api/alerts/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 2 && parts[1] == "acknowledge" && parts[0] != "" {
		r.handleAlertAcknowledge(w, req, parts[0])
		return
	}
	r.notFound(w)
}

func (r *Router) handleAlertAcknowledge(w http.ResponseWriter, req *http.Request, id string) {
	if req.Method != http.MethodPut {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		AcknowledgedBy string `json:"acknowledgedBy"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	payload.AcknowledgedBy = strings.TrimSpace(payload.AcknowledgedBy)
	if payload.AcknowledgedBy == "" {
		writeError(w, http.StatusBadRequest, "acknowledgedBy is required")
		return
	}
	alert, err := r.alerts.Acknowledge(req.Context(), id, payload.AcknowledgedBy)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (r *Router) handleDashboard(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	view := strings.TrimPrefix(req.URL.Path, "/api/dashboard/")
	start, end, ok := r.parseWindow(w, req)
	if !ok {
		return
	}
	switch view {
	case "summary":
		summary, err := r.dashboard.Summary(req.Context(), start, end)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	case "top-slow":
		limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
		ranked, err := r.dashboard.TopSlowEndpoints(req.Context(), start, end, limit)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ranked)
	case "error-rate":
		interval, ok := r.parseDuration(w, req, "intervalMinutes", time.Minute, 5*time.Minute)
		if !ok {
			return
		}
		points, err := r.dashboard.ErrorRateSeries(req.Context(), start, end, interval)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, points)
	case "services":
		services, err := r.ingest.ListServices(req.Context())
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, services)
	case "endpoints":
		endpoints, err := r.ingest.ListEndpoints(req.Context(), req.URL.Query().Get("service"))
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, endpoints)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleEventsWS(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	topics, ok := parseTopics(req)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown topic in topics query parameter")
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	for _, topic := range topics {
		r.hub.Register(topic, client)
	}
	go func() {
		defer func() {
			for _, topic := range topics {
				r.hub.Unregister(topic, client)
			}
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (r *Router) handleEventsSSE(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	topics, ok := parseTopics(req)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown topic in topics query parameter")
		return
	}
	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, r.logger)
	for _, topic := range topics {
		r.hub.Register(topic, client)
	}
	defer func() {
		for _, topic := range topics {
			r.hub.Unregister(topic, client)
		}
		client.Close()
	}()

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-ticker.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}

var knownTopics = map[string]struct{}{
	"logs":      {},
	"alerts":    {},
	"incidents": {},
	"health":    {},
	"metrics":   {},
}

// parseTopics reads the topics query parameter, defaulting to all topics.
func parseTopics(req *http.Request) ([]string, bool) {
	raw := strings.TrimSpace(req.URL.Query().Get("topics"))
	if raw == "" {
		topics := make([]string, 0, len(knownTopics))
		for topic := range knownTopics {
			topics = append(topics, topic)
		}
		return topics, true
	}
	var topics []string
	for _, part := range strings.Split(raw, ",") {
		topic := strings.TrimSpace(part)
		if topic == "" {
			continue
		}
		if _, known := knownTopics[topic]; !known {
			return nil, false
		}
		topics = append(topics, topic)
	}
	if len(topics) == 0 {
		return nil, false
	}
	return topics, true
}

// decodeBatch accepts either a JSON array or a single JSON object.
func decodeBatch[T any](req *http.Request, out *[]T) error {
	decoder := json.NewDecoder(req.Body)
	var raw json.RawMessage
	if err := decoder.Decode(&raw); err != nil {
		return errInvalidBody
	}
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(raw, out); err != nil {
			return errInvalidBody
		}
		return nil
	}
	var single T
	if err := json.Unmarshal(raw, &single); err != nil {
		return errInvalidBody
	}
	*out = []T{single}
	return nil
}

var errInvalidBody = errBody("invalid JSON body")

type errBody string

func (e errBody) Error() string { return string(e) }

// parseWindow reads start/end bounds, defaulting to the trailing query window.
func (r *Router) parseWindow(w http.ResponseWriter, req *http.Request) (time.Time, time.Time, bool) {
	query := req.URL.Query()
	now := time.Now().UTC()
	start := now.Add(-r.window)
	end := now
	if raw := query.Get("start"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start timestamp")
			return time.Time{}, time.Time{}, false
		}
		start = parsed
	}
	if raw := query.Get("end"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end timestamp")
			return time.Time{}, time.Time{}, false
		}
		end = parsed
	}
	if !end.After(start) {
		writeError(w, http.StatusBadRequest, "end must be after start")
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

// parseOptionalBounds reads start/end without applying a default window.
func (r *Router) parseOptionalBounds(w http.ResponseWriter, req *http.Request) (time.Time, time.Time, bool) {
	query := req.URL.Query()
	var start, end time.Time
	if raw := query.Get("start"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start timestamp")
			return time.Time{}, time.Time{}, false
		}
		start = parsed
	}
	if raw := query.Get("end"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end timestamp")
			return time.Time{}, time.Time{}, false
		}
		end = parsed
	}
	if !start.IsZero() && !end.IsZero() && !end.After(start) {
		writeError(w, http.StatusBadRequest, "end must be after start")
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func (r *Router) parsePage(w http.ResponseWriter, req *http.Request) (domain.Page, bool) {
	query := req.URL.Query()
	page := domain.Page{Number: 0, Size: defaultPageSize}
	if raw := query.Get("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "page must be a non-negative integer")
			return domain.Page{}, false
		}
		page.Number = parsed
	}
	if raw := query.Get("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "size must be a positive integer")
			return domain.Page{}, false
		}
		page.Size = parsed
	}
	if page.Size > r.maxPageSize {
		page.Size = r.maxPageSize
	}
	return page, true
}

// parseDuration reads an integer query parameter expressed in the given unit.
func (r *Router) parseDuration(w http.ResponseWriter, req *http.Request, param string, unit, fallback time.Duration) (time.Duration, bool) {
	raw := req.URL.Query().Get(param)
	if raw == "" {
		return fallback, true
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		writeError(w, http.StatusBadRequest, param+" must be a positive integer")
		return 0, false
	}
	return time.Duration(parsed) * unit, true
}

func (r *Router) parseLogFilter(w http.ResponseWriter, req *http.Request) (domain.LogFilter, bool) {
	query := req.URL.Query()
	filter := domain.LogFilter{
		ServiceName: query.Get("service"),
		Endpoint:    query.Get("endpoint"),
		Method:      query.Get("method"),
		OnlySlow:    query.Get("slow") == "true",
		OnlyBroken:  query.Get("broken") == "true",
	}
	if raw := query.Get("status"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 100 || parsed > 599 {
			writeError(w, http.StatusBadRequest, "status must be a valid HTTP status code")
			return domain.LogFilter{}, false
		}
		filter.StatusCode = parsed
	}
	if raw := query.Get("minLatency"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "minLatency must be a non-negative integer")
			return domain.LogFilter{}, false
		}
		filter.MinLatency = parsed
	}
	if raw := query.Get("maxLatency"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "maxLatency must be a non-negative integer")
			return domain.LogFilter{}, false
		}
		filter.MaxLatency = parsed
	}
	var ok bool
	if filter.StartTime, filter.EndTime, ok = r.parseOptionalBounds(w, req); !ok {
		return domain.LogFilter{}, false
	}
	return filter, true
}
