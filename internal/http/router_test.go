package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"log/slog"

	"github.com/pulsewatch/collector/internal/domain"
	"github.com/pulsewatch/collector/internal/repository"
	"github.com/pulsewatch/collector/internal/service/alert"
	"github.com/pulsewatch/collector/internal/service/dashboard"
	"github.com/pulsewatch/collector/internal/service/health"
	"github.com/pulsewatch/collector/internal/service/incident"
	"github.com/pulsewatch/collector/internal/service/ingest"
	"github.com/pulsewatch/collector/internal/service/stats"
	"github.com/pulsewatch/collector/internal/ws"
)

type memLogRepo struct {
	records []domain.LogRecord
}

func (m *memLogRepo) InsertLogs(ctx context.Context, logs []domain.LogRecord) error {
	m.records = append(m.records, logs...)
	return nil
}

func (m *memLogRepo) ListLogs(ctx context.Context, filter domain.LogFilter, page domain.Page) (domain.PagedResult[domain.LogRecord], error) {
	var matched []domain.LogRecord
	for _, r := range m.records {
		if filter.ServiceName != "" && r.ServiceName != filter.ServiceName {
			continue
		}
		if filter.OnlySlow && !r.IsSlow {
			continue
		}
		matched = append(matched, r)
	}
	return domain.NewPagedResult(matched, page, int64(len(matched))), nil
}

func (m *memLogRepo) ListWindow(ctx context.Context, start, end time.Time) ([]domain.LogRecord, error) {
	var out []domain.LogRecord
	for _, r := range m.records {
		if !r.Timestamp.Before(start) && !r.Timestamp.After(end) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memLogRepo) CountSlow(ctx context.Context, start, end time.Time) (int64, error) {
	var n int64
	for _, r := range m.records {
		if r.IsSlow {
			n++
		}
	}
	return n, nil
}

func (m *memLogRepo) CountBroken(ctx context.Context, start, end time.Time) (int64, error) {
	var n int64
	for _, r := range m.records {
		if r.IsBroken {
			n++
		}
	}
	return n, nil
}

func (m *memLogRepo) CountLogs(ctx context.Context, start, end time.Time) (int64, error) {
	return int64(len(m.records)), nil
}

func (m *memLogRepo) AverageLatency(ctx context.Context, start, end time.Time) (float64, error) {
	if len(m.records) == 0 {
		return 0, nil
	}
	var sum int64
	for _, r := range m.records {
		sum += r.LatencyMS
	}
	return float64(sum) / float64(len(m.records)), nil
}

func (m *memLogRepo) DistinctServices(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range m.records {
		if _, ok := seen[r.ServiceName]; !ok {
			seen[r.ServiceName] = struct{}{}
			out = append(out, r.ServiceName)
		}
	}
	return out, nil
}

func (m *memLogRepo) DistinctEndpoints(ctx context.Context, serviceName string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range m.records {
		if r.ServiceName != serviceName {
			continue
		}
		if _, ok := seen[r.Endpoint]; !ok {
			seen[r.Endpoint] = struct{}{}
			out = append(out, r.Endpoint)
		}
	}
	return out, nil
}

type memEventRepo struct {
	events []domain.RateLimitEvent
}

func (m *memEventRepo) InsertRateLimitEvents(ctx context.Context, events []domain.RateLimitEvent) error {
	m.events = append(m.events, events...)
	return nil
}

func (m *memEventRepo) ListRateLimitEvents(ctx context.Context, serviceName string, start, end time.Time, page domain.Page) (domain.PagedResult[domain.RateLimitEvent], error) {
	return domain.NewPagedResult(m.events, page, int64(len(m.events))), nil
}

func (m *memEventRepo) CountRateLimitEvents(ctx context.Context, start, end time.Time) (int64, error) {
	return int64(len(m.events)), nil
}

type memIncidentRepo struct {
	incidents map[string]domain.Incident
	open      map[string]string
}

func newMemIncidentRepo() *memIncidentRepo {
	return &memIncidentRepo{incidents: make(map[string]domain.Incident), open: make(map[string]string)}
}

func incidentKey(i domain.Incident) string {
	return i.ServiceName + "|" + i.Endpoint + "|" + string(i.IncidentType)
}

func (m *memIncidentRepo) RecordViolation(ctx context.Context, incident domain.Incident) (domain.Incident, bool, error) {
	key := incidentKey(incident)
	if id, ok := m.open[key]; ok {
		// Occurrence increments do not touch the version; only Resolve does.
		existing := m.incidents[id]
		existing.OccurrenceCount++
		existing.LastSeenAt = incident.LastSeenAt
		m.incidents[id] = existing
		return existing, false, nil
	}
	incident.Version = 0
	m.incidents[incident.ID] = incident
	m.open[key] = incident.ID
	return incident, true, nil
}

func (m *memIncidentRepo) Resolve(ctx context.Context, id string, expectedVersion int64, resolvedBy, notes string, at time.Time) (domain.Incident, error) {
	existing, ok := m.incidents[id]
	if !ok {
		return domain.Incident{}, repository.ErrNotFound
	}
	if existing.Version != expectedVersion {
		return domain.Incident{}, repository.ErrVersionConflict
	}
	existing.Status = domain.IncidentResolved
	existing.ResolvedBy = resolvedBy
	existing.ResolutionNotes = notes
	existing.ResolvedAt = &at
	existing.Version++
	m.incidents[id] = existing
	delete(m.open, incidentKey(existing))
	return existing, nil
}

func (m *memIncidentRepo) GetIncident(ctx context.Context, id string) (domain.Incident, error) {
	existing, ok := m.incidents[id]
	if !ok {
		return domain.Incident{}, repository.ErrNotFound
	}
	return existing, nil
}

func (m *memIncidentRepo) ListIncidents(ctx context.Context, filter domain.IncidentFilter, page domain.Page) (domain.PagedResult[domain.Incident], error) {
	var all []domain.Incident
	for _, i := range m.incidents {
		if filter.Status != "" && i.Status != filter.Status {
			continue
		}
		all = append(all, i)
	}
	return domain.NewPagedResult(all, page, int64(len(all))), nil
}

func (m *memIncidentRepo) CountIncidentsByStatus(ctx context.Context, status domain.IncidentStatus) (int64, error) {
	var n int64
	for _, i := range m.incidents {
		if i.Status == status {
			n++
		}
	}
	return n, nil
}

type memAlertRepo struct {
	alerts map[string]domain.Alert
}

func newMemAlertRepo() *memAlertRepo {
	return &memAlertRepo{alerts: make(map[string]domain.Alert)}
}

func (m *memAlertRepo) InsertAlert(ctx context.Context, a *domain.Alert) error {
	m.alerts[a.ID] = *a
	return nil
}

func (m *memAlertRepo) AcknowledgeAlert(ctx context.Context, id, acknowledgedBy string, at time.Time) (domain.Alert, error) {
	existing, ok := m.alerts[id]
	if !ok {
		return domain.Alert{}, repository.ErrNotFound
	}
	if existing.Acknowledged {
		return existing, nil
	}
	existing.Acknowledged = true
	existing.AcknowledgedBy = acknowledgedBy
	existing.AcknowledgedAt = &at
	m.alerts[id] = existing
	return existing, nil
}

func (m *memAlertRepo) ListAlerts(ctx context.Context, filter domain.AlertFilter, page domain.Page) (domain.PagedResult[domain.Alert], error) {
	var all []domain.Alert
	for _, a := range m.alerts {
		if filter.UnacknowledgedOnly && a.Acknowledged {
			continue
		}
		all = append(all, a)
	}
	return domain.NewPagedResult(all, page, int64(len(all))), nil
}

func (m *memAlertRepo) CountUnacknowledged(ctx context.Context) (int64, error) {
	var n int64
	for _, a := range m.alerts {
		if !a.Acknowledged {
			n++
		}
	}
	return n, nil
}

type routerFixture struct {
	router    *Router
	logs      *memLogRepo
	incidents *incident.Service
	alerts    *alert.Service
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelError}))

	logRepo := &memLogRepo{}
	eventRepo := &memEventRepo{}
	incidentRepo := newMemIncidentRepo()
	alertRepo := newMemAlertRepo()

	statsSvc := stats.New(logRepo, logger)
	healthSvc := health.New(statsSvc, logger)
	incidentSvc := incident.New(incidentRepo, nil, logger)
	alertSvc := alert.New(alertRepo, nil, logger)
	ingestSvc := ingest.New(logRepo, eventRepo, alertSvc, incidentSvc, nil, logger, 8)
	dashboardSvc := dashboard.New(logRepo, eventRepo, incidentRepo, alertRepo, statsSvc, logger)

	router := NewRouter(logger, ingestSvc, statsSvc, healthSvc, incidentSvc, alertSvc, dashboardSvc,
		ws.NewHub(), nil, 100, time.Hour, nil)
	t.Cleanup(router.Close)

	return &routerFixture{router: router, logs: logRepo, incidents: incidentSvc, alerts: alertSvc}
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSpace(string(p)))
	return len(p), nil
}

func doJSON(t *testing.T, router *Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestPostLogsAcceptsBatch(t *testing.T) {
	f := newRouterFixture(t)

	rr := doJSON(t, f.router, http.MethodPost, "/api/logs", `[
		{"serviceName":"orders","endpoint":"/api/orders","method":"GET","statusCode":200,"latency":120},
		{"serviceName":"orders","endpoint":"/api/orders","method":"GET","statusCode":200,"latency":640}
	]`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var payload struct {
		Accepted int `json:"accepted"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if payload.Accepted != 2 {
		t.Errorf("accepted = %d, want 2", payload.Accepted)
	}
	if len(f.logs.records) != 2 {
		t.Errorf("stored %d records, want 2", len(f.logs.records))
	}
	if !f.logs.records[1].IsSlow {
		t.Error("640ms record should be flagged slow")
	}
	if rr.Header().Get("X-RateLimit-Limit") == "" {
		t.Error("missing rate limit headers")
	}
}

func TestPostLogsSingleObject(t *testing.T) {
	f := newRouterFixture(t)

	rr := doJSON(t, f.router, http.MethodPost, "/api/logs",
		`{"serviceName":"orders","endpoint":"/api/orders","method":"GET","statusCode":200,"latency":50}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if len(f.logs.records) != 1 {
		t.Errorf("stored %d records, want 1", len(f.logs.records))
	}
}

func TestPostLogsValidation(t *testing.T) {
	f := newRouterFixture(t)

	cases := []string{
		`not json`,
		`{"serviceName":"","endpoint":"/x","method":"GET","statusCode":200,"latency":1}`,
		`{"serviceName":"a","endpoint":"/x","method":"GET","statusCode":42,"latency":1}`,
		`{"serviceName":"a","endpoint":"/x","method":"GET","statusCode":200,"latency":-5}`,
	}
	for i, body := range cases {
		rr := doJSON(t, f.router, http.MethodPost, "/api/logs", body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("case %d: status = %d, want 400", i, rr.Code)
		}
	}
	if len(f.logs.records) != 0 {
		t.Errorf("invalid batches persisted: %d", len(f.logs.records))
	}
}

func TestGetLogsPagination(t *testing.T) {
	f := newRouterFixture(t)
	doJSON(t, f.router, http.MethodPost, "/api/logs",
		`{"serviceName":"orders","endpoint":"/api/orders","method":"GET","statusCode":200,"latency":50}`)

	rr := doJSON(t, f.router, http.MethodGet, "/api/logs?service=orders&page=0&size=10", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var result domain.PagedResult[domain.LogRecord]
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if result.TotalElements != 1 || len(result.Content) != 1 {
		t.Errorf("result = %d/%d, want 1 element", result.TotalElements, len(result.Content))
	}

	if rr := doJSON(t, f.router, http.MethodGet, "/api/logs?page=-1", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("negative page: status = %d, want 400", rr.Code)
	}
	if rr := doJSON(t, f.router, http.MethodGet, "/api/logs?size=0", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("zero size: status = %d, want 400", rr.Code)
	}
}

func TestGetStats(t *testing.T) {
	f := newRouterFixture(t)
	doJSON(t, f.router, http.MethodPost, "/api/logs", `[
		{"serviceName":"orders","endpoint":"/api/orders","method":"GET","statusCode":200,"latency":100},
		{"serviceName":"orders","endpoint":"/api/orders","method":"GET","statusCode":502,"latency":300}
	]`)

	rr := doJSON(t, f.router, http.MethodGet, "/api/stats", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var all []domain.EndpointStatistics
	if err := json.Unmarshal(rr.Body.Bytes(), &all); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(all) != 1 || all[0].RequestCount != 2 || all[0].ErrorCount != 1 {
		t.Errorf("stats = %+v", all)
	}

	rr = doJSON(t, f.router, http.MethodGet, "/api/stats?service=orders&endpoint=/api/orders", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("single endpoint: status = %d", rr.Code)
	}
	rr = doJSON(t, f.router, http.MethodGet, "/api/stats?service=orders&endpoint=/missing", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("missing endpoint: status = %d, want 404", rr.Code)
	}
}

func TestGetSystemHealth(t *testing.T) {
	f := newRouterFixture(t)
	doJSON(t, f.router, http.MethodPost, "/api/logs",
		`{"serviceName":"orders","endpoint":"/api/orders","method":"GET","statusCode":200,"latency":50}`)

	rr := doJSON(t, f.router, http.MethodGet, "/api/health/system", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var system domain.SystemHealthScore
	if err := json.Unmarshal(rr.Body.Bytes(), &system); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if system.OverallScore != 100 || system.Status != domain.HealthExcellent {
		t.Errorf("system = %d %s, want 100 EXCELLENT", system.OverallScore, system.Status)
	}

	if rr := doJSON(t, f.router, http.MethodGet, "/api/health/bogus", ""); rr.Code != http.StatusNotFound {
		t.Errorf("unknown view: status = %d, want 404", rr.Code)
	}
	if rr := doJSON(t, f.router, http.MethodGet, "/api/health/system?start=banana", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("bad start: status = %d, want 400", rr.Code)
	}
}

func TestIncidentResolveFlow(t *testing.T) {
	f := newRouterFixture(t)
	record := domain.LogRecord{
		ServiceName: "orders", Endpoint: "/api/orders", Method: "GET",
		StatusCode: 200, LatencyMS: 800, Timestamp: time.Now(),
	}
	record.DeriveFlags()
	created, _, err := f.incidents.RecordViolation(context.Background(), record, domain.IncidentSlowAPI)
	if err != nil {
		t.Fatalf("seed incident: %v", err)
	}

	if created.Version != 0 {
		t.Fatalf("created incident version = %d, want 0", created.Version)
	}

	rr := doJSON(t, f.router, http.MethodPut, "/api/incidents/"+created.ID+"/resolve",
		`{"resolvedBy":"oncall","notes":"rolled back","version":99}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("stale version: status = %d, want 409", rr.Code)
	}

	rr = doJSON(t, f.router, http.MethodPut, "/api/incidents/"+created.ID+"/resolve",
		`{"resolvedBy":"oncall","notes":"rolled back","version":0}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("resolve: status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resolved domain.Incident
	if err := json.Unmarshal(rr.Body.Bytes(), &resolved); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resolved.Status != domain.IncidentResolved || resolved.Version != 1 {
		t.Errorf("resolved = %s v%d, want RESOLVED v1", resolved.Status, resolved.Version)
	}

	rr = doJSON(t, f.router, http.MethodPut, "/api/incidents/missing/resolve",
		`{"resolvedBy":"oncall","version":0}`)
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown id: status = %d, want 404", rr.Code)
	}

	rr = doJSON(t, f.router, http.MethodPut, "/api/incidents/"+created.ID+"/resolve",
		`{"notes":"no actor","version":2}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing resolvedBy: status = %d, want 400", rr.Code)
	}
}

func TestGetIncident(t *testing.T) {
	f := newRouterFixture(t)
	record := domain.LogRecord{
		ServiceName: "orders", Endpoint: "/api/orders", Method: "GET",
		StatusCode: 503, Timestamp: time.Now(),
	}
	record.DeriveFlags()
	created, _, err := f.incidents.RecordViolation(context.Background(), record, domain.IncidentBrokenAPI)
	if err != nil {
		t.Fatalf("seed incident: %v", err)
	}

	rr := doJSON(t, f.router, http.MethodGet, "/api/incidents/"+created.ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	rr = doJSON(t, f.router, http.MethodGet, "/api/incidents/nope", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown id: status = %d, want 404", rr.Code)
	}
	rr = doJSON(t, f.router, http.MethodGet, "/api/incidents?status=NOPE", "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad status filter: status = %d, want 400", rr.Code)
	}
}

func TestAlertAcknowledgeEndpoint(t *testing.T) {
	f := newRouterFixture(t)
	created, err := f.alerts.EmitSlow(context.Background(), domain.LogRecord{
		ServiceName: "orders", Endpoint: "/api/orders", Method: "GET",
		LatencyMS: 900, Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("seed alert: %v", err)
	}

	rr := doJSON(t, f.router, http.MethodPut, "/api/alerts/"+created.ID+"/acknowledge",
		`{"acknowledgedBy":"oncall"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var acked domain.Alert
	if err := json.Unmarshal(rr.Body.Bytes(), &acked); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !acked.Acknowledged || acked.AcknowledgedBy != "oncall" {
		t.Errorf("alert = %+v, want acknowledged by oncall", acked)
	}

	rr = doJSON(t, f.router, http.MethodGet, "/api/alerts?unacknowledged=true", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rr.Code)
	}
	var result domain.PagedResult[domain.Alert]
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if result.TotalElements != 0 {
		t.Errorf("unacknowledged = %d, want 0", result.TotalElements)
	}
}

func TestDashboardSummaryEndpoint(t *testing.T) {
	f := newRouterFixture(t)
	doJSON(t, f.router, http.MethodPost, "/api/logs", `[
		{"serviceName":"orders","endpoint":"/api/orders","method":"GET","statusCode":200,"latency":700},
		{"serviceName":"orders","endpoint":"/api/orders","method":"GET","statusCode":503,"latency":100}
	]`)

	rr := doJSON(t, f.router, http.MethodGet, "/api/dashboard/summary", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var summary domain.DashboardSummary
	if err := json.Unmarshal(rr.Body.Bytes(), &summary); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if summary.TotalRequests != 2 || summary.SlowAPICount != 1 || summary.BrokenAPICount != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestRateLimitEventsEndpoint(t *testing.T) {
	f := newRouterFixture(t)

	rr := doJSON(t, f.router, http.MethodPost, "/api/rate-limit-events",
		`{"serviceName":"orders","endpoint":"/api/orders","method":"GET","configuredLimit":100}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, f.router, http.MethodGet, "/api/rate-limit-events", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rr.Code)
	}
	var result domain.PagedResult[domain.RateLimitEvent]
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if result.TotalElements != 1 {
		t.Errorf("events = %d, want 1", result.TotalElements)
	}
}

func TestEventsWSRejectsUnknownTopic(t *testing.T) {
	f := newRouterFixture(t)
	rr := doJSON(t, f.router, http.MethodGet, "/ws/events?topics=bogus", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestHealthzEndpoint(t *testing.T) {
	f := newRouterFixture(t)
	rr := doJSON(t, f.router, http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr := doJSON(t, f.router, http.MethodPost, "/healthz", ""); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /healthz: status = %d, want 405", rr.Code)
	}
}
