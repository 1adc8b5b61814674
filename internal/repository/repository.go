package repository

import (
	"context"
	"time"

	"github.com/pulsewatch/collector/internal/domain"
)

// LogRepository persists raw request log records.
type LogRepository interface {
	InsertLogs(ctx context.Context, logs []domain.LogRecord) error
	ListLogs(ctx context.Context, filter domain.LogFilter, page domain.Page) (domain.PagedResult[domain.LogRecord], error)
	// ListWindow returns every record with start <= timestamp <= end, for
	// statistics aggregation over a bounded recent window.
	ListWindow(ctx context.Context, start, end time.Time) ([]domain.LogRecord, error)
	CountSlow(ctx context.Context, start, end time.Time) (int64, error)
	CountBroken(ctx context.Context, start, end time.Time) (int64, error)
	CountLogs(ctx context.Context, start, end time.Time) (int64, error)
	AverageLatency(ctx context.Context, start, end time.Time) (float64, error)
	DistinctServices(ctx context.Context) ([]string, error)
	DistinctEndpoints(ctx context.Context, serviceName string) ([]string, error)
}

// RateLimitEventRepository persists rate limit events from tracked services.
type RateLimitEventRepository interface {
	InsertRateLimitEvents(ctx context.Context, events []domain.RateLimitEvent) error
	ListRateLimitEvents(ctx context.Context, serviceName string, start, end time.Time, page domain.Page) (domain.PagedResult[domain.RateLimitEvent], error)
	CountRateLimitEvents(ctx context.Context, start, end time.Time) (int64, error)
}

// IncidentRepository manages deduplicated incident documents. All mutation is
// through single-statement atomic conditional updates.
type IncidentRepository interface {
	// RecordViolation increments the open incident matching
	// (service, endpoint, type), or creates one with occurrence count 1 when
	// no non-resolved incident of that type exists. The increment-or-create is
	// a single atomic statement so concurrent violations for the same endpoint
	// cannot create duplicates or lose increments. Returns the resulting
	// incident and whether it was newly created.
	RecordViolation(ctx context.Context, incident domain.Incident) (domain.Incident, bool, error)
	// Resolve performs a conditional update matching id and expectedVersion,
	// marking the incident resolved and bumping the version. Returns
	// ErrNotFound when the id does not exist and ErrVersionConflict when it
	// exists with a different version.
	Resolve(ctx context.Context, id string, expectedVersion int64, resolvedBy, notes string, at time.Time) (domain.Incident, error)
	GetIncident(ctx context.Context, id string) (domain.Incident, error)
	ListIncidents(ctx context.Context, filter domain.IncidentFilter, page domain.Page) (domain.PagedResult[domain.Incident], error)
	CountIncidentsByStatus(ctx context.Context, status domain.IncidentStatus) (int64, error)
}

// AlertRepository persists append-only alert notifications.
type AlertRepository interface {
	InsertAlert(ctx context.Context, alert *domain.Alert) error
	// AcknowledgeAlert sets the acknowledgement fields if the alert is not yet
	// acknowledged. Re-acknowledging returns the current row unchanged.
	AcknowledgeAlert(ctx context.Context, id, acknowledgedBy string, at time.Time) (domain.Alert, error)
	ListAlerts(ctx context.Context, filter domain.AlertFilter, page domain.Page) (domain.PagedResult[domain.Alert], error)
	CountUnacknowledged(ctx context.Context) (int64, error)
}
