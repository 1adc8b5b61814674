package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pulsewatch/collector/internal/domain"
	"github.com/pulsewatch/collector/internal/repository"
)

type fakeLogRepo struct {
	records    []domain.LogRecord
	total      int64
	slow       int64
	broken     int64
	avgLatency float64
	err        error
}

func (f *fakeLogRepo) InsertLogs(ctx context.Context, logs []domain.LogRecord) error { return nil }

func (f *fakeLogRepo) ListLogs(ctx context.Context, filter domain.LogFilter, page domain.Page) (domain.PagedResult[domain.LogRecord], error) {
	return domain.PagedResult[domain.LogRecord]{}, nil
}

func (f *fakeLogRepo) ListWindow(ctx context.Context, start, end time.Time) ([]domain.LogRecord, error) {
	return f.records, f.err
}

func (f *fakeLogRepo) CountSlow(ctx context.Context, start, end time.Time) (int64, error) {
	return f.slow, f.err
}

func (f *fakeLogRepo) CountBroken(ctx context.Context, start, end time.Time) (int64, error) {
	return f.broken, f.err
}

func (f *fakeLogRepo) CountLogs(ctx context.Context, start, end time.Time) (int64, error) {
	return f.total, f.err
}

func (f *fakeLogRepo) AverageLatency(ctx context.Context, start, end time.Time) (float64, error) {
	return f.avgLatency, f.err
}

func (f *fakeLogRepo) DistinctServices(ctx context.Context) ([]string, error) { return nil, nil }

func (f *fakeLogRepo) DistinctEndpoints(ctx context.Context, serviceName string) ([]string, error) {
	return nil, nil
}

type fakeEventRepo struct {
	count int64
}

func (f *fakeEventRepo) InsertRateLimitEvents(ctx context.Context, events []domain.RateLimitEvent) error {
	return nil
}

func (f *fakeEventRepo) ListRateLimitEvents(ctx context.Context, serviceName string, start, end time.Time, page domain.Page) (domain.PagedResult[domain.RateLimitEvent], error) {
	return domain.PagedResult[domain.RateLimitEvent]{}, nil
}

func (f *fakeEventRepo) CountRateLimitEvents(ctx context.Context, start, end time.Time) (int64, error) {
	return f.count, nil
}

type fakeIncidentRepo struct {
	open int64
}

func (f *fakeIncidentRepo) RecordViolation(ctx context.Context, incident domain.Incident) (domain.Incident, bool, error) {
	return incident, true, nil
}

func (f *fakeIncidentRepo) Resolve(ctx context.Context, id string, expectedVersion int64, resolvedBy, notes string, at time.Time) (domain.Incident, error) {
	return domain.Incident{}, repository.ErrNotFound
}

func (f *fakeIncidentRepo) GetIncident(ctx context.Context, id string) (domain.Incident, error) {
	return domain.Incident{}, repository.ErrNotFound
}

func (f *fakeIncidentRepo) ListIncidents(ctx context.Context, filter domain.IncidentFilter, page domain.Page) (domain.PagedResult[domain.Incident], error) {
	return domain.PagedResult[domain.Incident]{}, nil
}

func (f *fakeIncidentRepo) CountIncidentsByStatus(ctx context.Context, status domain.IncidentStatus) (int64, error) {
	if status == domain.IncidentOpen {
		return f.open, nil
	}
	return 0, nil
}

type fakeAlertRepo struct {
	unacknowledged int64
}

func (f *fakeAlertRepo) InsertAlert(ctx context.Context, alert *domain.Alert) error { return nil }

func (f *fakeAlertRepo) AcknowledgeAlert(ctx context.Context, id, acknowledgedBy string, at time.Time) (domain.Alert, error) {
	return domain.Alert{}, repository.ErrNotFound
}

func (f *fakeAlertRepo) ListAlerts(ctx context.Context, filter domain.AlertFilter, page domain.Page) (domain.PagedResult[domain.Alert], error) {
	return domain.PagedResult[domain.Alert]{}, nil
}

func (f *fakeAlertRepo) CountUnacknowledged(ctx context.Context) (int64, error) {
	return f.unacknowledged, nil
}

type fakeStats struct {
	stats []domain.EndpointStatistics
	err   error
}

func (f *fakeStats) ComputeStatistics(ctx context.Context, start, end time.Time) ([]domain.EndpointStatistics, error) {
	return f.stats, f.err
}

var windowStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestSummary(t *testing.T) {
	svc := New(
		&fakeLogRepo{total: 1000, slow: 40, broken: 8, avgLatency: 123.5},
		&fakeEventRepo{count: 3},
		&fakeIncidentRepo{open: 2},
		&fakeAlertRepo{unacknowledged: 5},
		&fakeStats{},
		nil,
	)

	summary, err := svc.Summary(context.Background(), windowStart, windowStart.Add(time.Hour))
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.TotalRequests != 1000 || summary.SlowAPICount != 40 || summary.BrokenAPICount != 8 {
		t.Errorf("counts = %d/%d/%d", summary.TotalRequests, summary.SlowAPICount, summary.BrokenAPICount)
	}
	if summary.AverageLatencyMS != 123.5 {
		t.Errorf("avg latency = %v, want 123.5", summary.AverageLatencyMS)
	}
	if summary.RateLimitViolations != 3 || summary.OpenIncidents != 2 || summary.UnacknowledgedAlerts != 5 {
		t.Errorf("derived counters = %d/%d/%d", summary.RateLimitViolations, summary.OpenIncidents, summary.UnacknowledgedAlerts)
	}
	if !summary.StartTime.Equal(windowStart) {
		t.Errorf("window start = %v", summary.StartTime)
	}
}

func TestSummarySurfacesRepoError(t *testing.T) {
	svc := New(&fakeLogRepo{err: errors.New("db down")}, &fakeEventRepo{}, &fakeIncidentRepo{}, &fakeAlertRepo{}, &fakeStats{}, nil)
	if _, err := svc.Summary(context.Background(), windowStart, windowStart.Add(time.Hour)); err == nil {
		t.Fatal("expected error")
	}
}

func TestTopSlowEndpoints(t *testing.T) {
	stats := &fakeStats{stats: []domain.EndpointStatistics{
		{ServiceName: "a", Endpoint: "/fast", AvgLatencyMS: 20, MaxLatencyMS: 45, RequestCount: 100},
		{ServiceName: "a", Endpoint: "/slow", AvgLatencyMS: 800, MaxLatencyMS: 2000, RequestCount: 10},
		{ServiceName: "b", Endpoint: "/mid", AvgLatencyMS: 200, MaxLatencyMS: 400, RequestCount: 50},
	}}
	svc := New(&fakeLogRepo{}, &fakeEventRepo{}, &fakeIncidentRepo{}, &fakeAlertRepo{}, stats, nil)

	ranked, err := svc.TopSlowEndpoints(context.Background(), windowStart, windowStart.Add(time.Hour), 2)
	if err != nil {
		t.Fatalf("TopSlowEndpoints: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("got %d entries, want 2", len(ranked))
	}
	if ranked[0].Endpoint != "/slow" || ranked[1].Endpoint != "/mid" {
		t.Errorf("order = %q, %q, want /slow, /mid", ranked[0].Endpoint, ranked[1].Endpoint)
	}
	if ranked[0].MaxLatencyMS != 2000 || ranked[0].RequestCount != 10 {
		t.Errorf("entry = %+v", ranked[0])
	}
}

func TestErrorRateSeries(t *testing.T) {
	mkRecord := func(offset time.Duration, broken bool) domain.LogRecord {
		r := domain.LogRecord{Timestamp: windowStart.Add(offset), StatusCode: 200}
		if broken {
			r.StatusCode = 502
		}
		r.DeriveFlags()
		return r
	}
	logs := &fakeLogRepo{records: []domain.LogRecord{
		mkRecord(0, false),
		mkRecord(time.Minute, true),
		mkRecord(11*time.Minute, false),
		mkRecord(12*time.Minute, false),
	}}
	svc := New(logs, &fakeEventRepo{}, &fakeIncidentRepo{}, &fakeAlertRepo{}, &fakeStats{}, nil)

	points, err := svc.ErrorRateSeries(context.Background(), windowStart, windowStart.Add(30*time.Minute), 10*time.Minute)
	if err != nil {
		t.Fatalf("ErrorRateSeries: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("got %d buckets, want 3", len(points))
	}
	if points[0].RequestCount != 2 || points[0].ErrorCount != 1 || points[0].ErrorRate != 0.5 {
		t.Errorf("bucket 0 = %+v", points[0])
	}
	if points[1].RequestCount != 2 || points[1].ErrorRate != 0 {
		t.Errorf("bucket 1 = %+v", points[1])
	}
	if points[2].RequestCount != 0 || points[2].ErrorRate != 0 {
		t.Errorf("empty bucket = %+v", points[2])
	}
	if !points[1].Timestamp.Equal(windowStart.Add(10 * time.Minute)) {
		t.Errorf("bucket 1 timestamp = %v", points[1].Timestamp)
	}
}

func TestErrorRateSeriesValidation(t *testing.T) {
	svc := New(&fakeLogRepo{}, &fakeEventRepo{}, &fakeIncidentRepo{}, &fakeAlertRepo{}, &fakeStats{}, nil)
	if _, err := svc.ErrorRateSeries(context.Background(), windowStart, windowStart.Add(time.Hour), 0); !errors.Is(err, repository.ErrInvalidArgument) {
		t.Errorf("zero interval: err = %v, want ErrInvalidArgument", err)
	}
	if _, err := svc.ErrorRateSeries(context.Background(), windowStart, windowStart, time.Minute); !errors.Is(err, repository.ErrInvalidArgument) {
		t.Errorf("empty window: err = %v, want ErrInvalidArgument", err)
	}
}
