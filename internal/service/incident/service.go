package incident

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pulsewatch/collector/internal/domain"
	"github.com/pulsewatch/collector/internal/repository"
)

// Broadcaster pushes incident changes to connected dashboard clients.
type Broadcaster interface {
	BroadcastIncident(incident domain.Incident)
}

// Service owns the incident lifecycle: deduplicated creation on violations and
// optimistically-locked resolution.
type Service struct {
	repo        repository.IncidentRepository
	broadcaster Broadcaster
	logger      *slog.Logger
	now         func() time.Time
}

// New constructs an incident Service. broadcaster may be nil.
func New(repo repository.IncidentRepository, broadcaster Broadcaster, logger *slog.Logger) *Service {
	if logger != nil {
		logger = logger.With("component", "incidents")
	}
	return &Service{repo: repo, broadcaster: broadcaster, logger: logger, now: time.Now}
}

// RecordViolation folds one violating log record into the open incident for
// (service, endpoint, type), creating it when none exists. Returns the
// resulting incident and whether it is new.
func (s *Service) RecordViolation(ctx context.Context, record domain.LogRecord, incidentType domain.IncidentType) (domain.Incident, bool, error) {
	if !domain.ValidIncidentType(incidentType) {
		return domain.Incident{}, false, repository.ErrInvalidArgument
	}
	seenAt := record.Timestamp
	if seenAt.IsZero() {
		seenAt = s.now()
	}
	candidate := domain.Incident{
		ID:              uuid.NewString(),
		ServiceName:     record.ServiceName,
		Endpoint:        record.Endpoint,
		Method:          record.Method,
		IncidentType:    incidentType,
		Status:          domain.IncidentOpen,
		OccurrenceCount: 1,
		FirstSeenAt:     seenAt,
		LastSeenAt:      seenAt,
		CreatedAt:       s.now(),
	}
	switch incidentType {
	case domain.IncidentSlowAPI:
		latency := record.LatencyMS
		candidate.SampleLatencyMS = &latency
	case domain.IncidentBrokenAPI:
		candidate.SampleErrorMessage = record.ErrorMessage
		latency := record.LatencyMS
		candidate.SampleLatencyMS = &latency
	}

	incident, created, err := s.repo.RecordViolation(ctx, candidate)
	if err != nil {
		return domain.Incident{}, false, err
	}
	s.publish(incident)
	return incident, created, nil
}

// RecordRateLimit folds one rate limit event into the open RATE_LIMIT_HIT
// incident for its (service, endpoint).
func (s *Service) RecordRateLimit(ctx context.Context, event domain.RateLimitEvent) (domain.Incident, bool, error) {
	seenAt := event.Timestamp
	if seenAt.IsZero() {
		seenAt = s.now()
	}
	candidate := domain.Incident{
		ID:              uuid.NewString(),
		ServiceName:     event.ServiceName,
		Endpoint:        event.Endpoint,
		Method:          event.Method,
		IncidentType:    domain.IncidentRateLimitHit,
		Status:          domain.IncidentOpen,
		OccurrenceCount: 1,
		FirstSeenAt:     seenAt,
		LastSeenAt:      seenAt,
		CreatedAt:       s.now(),
	}
	incident, created, err := s.repo.RecordViolation(ctx, candidate)
	if err != nil {
		return domain.Incident{}, false, err
	}
	s.publish(incident)
	return incident, created, nil
}

// Resolve marks an incident resolved, guarded by the version the caller last
// read. ErrNotFound means the id does not exist; ErrVersionConflict means it
// was modified since that read and the caller must re-fetch and retry.
func (s *Service) Resolve(ctx context.Context, id string, expectedVersion int64, resolvedBy, notes string) (domain.Incident, error) {
	if id == "" || resolvedBy == "" {
		return domain.Incident{}, repository.ErrInvalidArgument
	}
	incident, err := s.repo.Resolve(ctx, id, expectedVersion, resolvedBy, notes, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrVersionConflict) && s.logger != nil {
			s.logger.Warn("incident resolve version conflict", "incident_id", id, "expected_version", expectedVersion)
		}
		return domain.Incident{}, err
	}
	s.publish(incident)
	return incident, nil
}

// Get fetches one incident by id.
func (s *Service) Get(ctx context.Context, id string) (domain.Incident, error) {
	if id == "" {
		return domain.Incident{}, repository.ErrInvalidArgument
	}
	return s.repo.GetIncident(ctx, id)
}

// List returns a page of incidents matching the filter.
func (s *Service) List(ctx context.Context, filter domain.IncidentFilter, page domain.Page) (domain.PagedResult[domain.Incident], error) {
	if filter.IncidentType != "" && !domain.ValidIncidentType(filter.IncidentType) {
		return domain.PagedResult[domain.Incident]{}, repository.ErrInvalidArgument
	}
	if filter.Status != "" && !domain.ValidIncidentStatus(filter.Status) {
		return domain.PagedResult[domain.Incident]{}, repository.ErrInvalidArgument
	}
	return s.repo.ListIncidents(ctx, filter, page)
}

// CountByStatus reports how many incidents currently hold the given status.
func (s *Service) CountByStatus(ctx context.Context, status domain.IncidentStatus) (int64, error) {
	if !domain.ValidIncidentStatus(status) {
		return 0, repository.ErrInvalidArgument
	}
	return s.repo.CountIncidentsByStatus(ctx, status)
}

// publish pushes the incident to connected clients. Delivery is best effort
// and never fails the calling operation.
func (s *Service) publish(incident domain.Incident) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.BroadcastIncident(incident)
}
