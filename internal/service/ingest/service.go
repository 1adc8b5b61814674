package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pulsewatch/collector/internal/domain"
	"github.com/pulsewatch/collector/internal/repository"
)

// DefaultQueueSize bounds the violation queue when no size is configured.
const DefaultQueueSize = 256

// AlertEmitter raises alerts for detected violations.
type AlertEmitter interface {
	EmitSlow(ctx context.Context, record domain.LogRecord) (domain.Alert, error)
	EmitBroken(ctx context.Context, record domain.LogRecord) (domain.Alert, error)
	EmitRateLimit(ctx context.Context, event domain.RateLimitEvent) (domain.Alert, error)
}

// IncidentRecorder folds violations into deduplicated incidents.
type IncidentRecorder interface {
	RecordViolation(ctx context.Context, record domain.LogRecord, incidentType domain.IncidentType) (domain.Incident, bool, error)
	RecordRateLimit(ctx context.Context, event domain.RateLimitEvent) (domain.Incident, bool, error)
}

// Broadcaster pushes accepted records to connected dashboard clients.
type Broadcaster interface {
	BroadcastLog(record domain.LogRecord)
}

// job is one accepted batch queued for violation processing.
type job struct {
	records []domain.LogRecord
	events  []domain.RateLimitEvent
}

// Service accepts telemetry batches. Persistence is synchronous and its
// failure fails the request; violation processing (alerts, incidents) runs on
// a single background worker fed by a bounded queue, so a flood of violations
// slows alerting rather than ingestion.
type Service struct {
	logs        repository.LogRepository
	events      repository.RateLimitEventRepository
	alerts      AlertEmitter
	incidents   IncidentRecorder
	broadcaster Broadcaster
	logger      *slog.Logger
	queue       chan job
}

// New constructs an ingestion Service. queueSize <= 0 selects the default;
// broadcaster may be nil.
func New(logs repository.LogRepository, events repository.RateLimitEventRepository, alerts AlertEmitter, incidents IncidentRecorder, broadcaster Broadcaster, logger *slog.Logger, queueSize int) *Service {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		logs:        logs,
		events:      events,
		alerts:      alerts,
		incidents:   incidents,
		broadcaster: broadcaster,
		logger:      logger.With("component", "ingest"),
		queue:       make(chan job, queueSize),
	}
}

// IngestLogs validates, enriches and persists a batch of log records, then
// queues its violations for background processing. Returns the stored records.
func (s *Service) IngestLogs(ctx context.Context, records []domain.LogRecord) ([]domain.LogRecord, error) {
	if len(records) == 0 {
		return nil, repository.ErrInvalidArgument
	}
	for i := range records {
		if err := validateRecord(records[i]); err != nil {
			return nil, err
		}
		if records[i].ID == "" {
			records[i].ID = uuid.NewString()
		}
		if records[i].Timestamp.IsZero() {
			records[i].Timestamp = time.Now().UTC()
		}
		records[i].DeriveFlags()
	}

	if err := s.logs.InsertLogs(ctx, records); err != nil {
		return nil, err
	}

	if s.broadcaster != nil {
		for _, record := range records {
			s.broadcaster.BroadcastLog(record)
		}
	}

	violations := make([]domain.LogRecord, 0)
	for _, record := range records {
		if record.IsSlow || record.IsBroken {
			violations = append(violations, record)
		}
	}
	if len(violations) > 0 {
		s.enqueue(job{records: violations})
	}
	return records, nil
}

// IngestRateLimitEvents persists a batch of rate limit events and queues them
// for alert and incident processing.
func (s *Service) IngestRateLimitEvents(ctx context.Context, events []domain.RateLimitEvent) ([]domain.RateLimitEvent, error) {
	if len(events) == 0 {
		return nil, repository.ErrInvalidArgument
	}
	for i := range events {
		if events[i].ServiceName == "" || events[i].Endpoint == "" {
			return nil, repository.ErrInvalidArgument
		}
		if events[i].ID == "" {
			events[i].ID = uuid.NewString()
		}
		if events[i].Timestamp.IsZero() {
			events[i].Timestamp = time.Now().UTC()
		}
	}

	if err := s.events.InsertRateLimitEvents(ctx, events); err != nil {
		return nil, err
	}
	s.enqueue(job{events: events})
	return events, nil
}

// ListLogs returns a page of stored records matching the filter.
func (s *Service) ListLogs(ctx context.Context, filter domain.LogFilter, page domain.Page) (domain.PagedResult[domain.LogRecord], error) {
	return s.logs.ListLogs(ctx, filter, page)
}

// ListRateLimitEvents returns a page of stored rate limit events.
func (s *Service) ListRateLimitEvents(ctx context.Context, serviceName string, start, end time.Time, page domain.Page) (domain.PagedResult[domain.RateLimitEvent], error) {
	return s.events.ListRateLimitEvents(ctx, serviceName, start, end, page)
}

// ListServices returns the distinct service names seen in stored records.
func (s *Service) ListServices(ctx context.Context) ([]string, error) {
	return s.logs.DistinctServices(ctx)
}

// ListEndpoints returns the distinct endpoints recorded for one service.
func (s *Service) ListEndpoints(ctx context.Context, serviceName string) ([]string, error) {
	if serviceName == "" {
		return nil, repository.ErrInvalidArgument
	}
	return s.logs.DistinctEndpoints(ctx, serviceName)
}

func validateRecord(record domain.LogRecord) error {
	if record.ServiceName == "" || record.Endpoint == "" || record.Method == "" {
		return repository.ErrInvalidArgument
	}
	if record.StatusCode < 100 || record.StatusCode > 599 {
		return repository.ErrInvalidArgument
	}
	if record.LatencyMS < 0 {
		return repository.ErrInvalidArgument
	}
	return nil
}

// enqueue hands a job to the worker without blocking ingestion. A full queue
// drops the job: the raw records are already persisted, only the derived
// alert/incident processing for this batch is lost.
func (s *Service) enqueue(j job) {
	select {
	case s.queue <- j:
	default:
		s.logger.Warn("violation queue full, dropping batch",
			"records", len(j.records), "events", len(j.events))
	}
}

// Run drains the violation queue until ctx is cancelled. Call it once, from
// its own goroutine.
func (s *Service) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case j := <-s.queue:
			s.process(ctx, j)
		}
	}
}

func (s *Service) process(ctx context.Context, j job) {
	for _, record := range j.records {
		if record.IsSlow {
			if _, err := s.alerts.EmitSlow(ctx, record); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("emit slow alert", "error", err, "service", record.ServiceName, "endpoint", record.Endpoint)
			}
			if _, _, err := s.incidents.RecordViolation(ctx, record, domain.IncidentSlowAPI); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("record slow incident", "error", err, "service", record.ServiceName, "endpoint", record.Endpoint)
			}
		}
		if record.IsBroken {
			if _, err := s.alerts.EmitBroken(ctx, record); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("emit broken alert", "error", err, "service", record.ServiceName, "endpoint", record.Endpoint)
			}
			if _, _, err := s.incidents.RecordViolation(ctx, record, domain.IncidentBrokenAPI); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("record broken incident", "error", err, "service", record.ServiceName, "endpoint", record.Endpoint)
			}
		}
	}
	for _, event := range j.events {
		if _, err := s.alerts.EmitRateLimit(ctx, event); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("emit rate limit alert", "error", err, "service", event.ServiceName, "endpoint", event.Endpoint)
		}
		if _, _, err := s.incidents.RecordRateLimit(ctx, event); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("record rate limit incident", "error", err, "service", event.ServiceName, "endpoint", event.Endpoint)
		}
	}
}

// drainOnce processes at most one queued job, for tests.
func (s *Service) drainOnce(ctx context.Context) bool {
	select {
	case j := <-s.queue:
		s.process(ctx, j)
		return true
	default:
		return false
	}
}
