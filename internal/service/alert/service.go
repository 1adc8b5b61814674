package alert

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pulsewatch/collector/internal/domain"
	"github.com/pulsewatch/collector/internal/repository"
)

// Broadcaster pushes new alerts to connected dashboard clients.
type Broadcaster interface {
	BroadcastAlert(alert domain.Alert)
}

// Service emits one alert per violation event. Alerts are append-only and
// intentionally not deduplicated; incident records carry the dedup view.
type Service struct {
	repo        repository.AlertRepository
	broadcaster Broadcaster
	logger      *slog.Logger
	now         func() time.Time
}

// New constructs an alert Service. broadcaster may be nil.
func New(repo repository.AlertRepository, broadcaster Broadcaster, logger *slog.Logger) *Service {
	if logger != nil {
		logger = logger.With("component", "alerts")
	}
	return &Service{repo: repo, broadcaster: broadcaster, logger: logger, now: time.Now}
}

// EmitSlow raises a SLOW_API alert for a request over the latency threshold.
func (s *Service) EmitSlow(ctx context.Context, record domain.LogRecord) (domain.Alert, error) {
	metadata := map[string]any{
		"latency":   record.LatencyMS,
		"threshold": domain.SlowLatencyThresholdMS,
	}
	if record.TraceID != "" {
		metadata["traceId"] = record.TraceID
	}
	message := fmt.Sprintf("API latency %dms exceeds threshold (%dms)",
		record.LatencyMS, domain.SlowLatencyThresholdMS)
	return s.emit(ctx, domain.AlertSlowAPI, record.ServiceName, record.Endpoint, record.Method,
		message, record.Timestamp, metadata)
}

// EmitBroken raises an ERROR_SPIKE alert for a request that returned a 5xx.
func (s *Service) EmitBroken(ctx context.Context, record domain.LogRecord) (domain.Alert, error) {
	metadata := map[string]any{
		"statusCode": record.StatusCode,
	}
	if record.ErrorMessage != "" {
		metadata["errorMessage"] = record.ErrorMessage
	}
	if record.TraceID != "" {
		metadata["traceId"] = record.TraceID
	}
	errorMessage := record.ErrorMessage
	if errorMessage == "" {
		errorMessage = "Unknown error"
	}
	message := fmt.Sprintf("API returned error status %d: %s", record.StatusCode, errorMessage)
	return s.emit(ctx, domain.AlertErrorSpike, record.ServiceName, record.Endpoint, record.Method,
		message, record.Timestamp, metadata)
}

// EmitRateLimit raises a RATE_LIMIT_EXCEEDED alert for a rejected request.
func (s *Service) EmitRateLimit(ctx context.Context, event domain.RateLimitEvent) (domain.Alert, error) {
	metadata := map[string]any{
		"configuredLimit": event.ConfiguredLimit,
	}
	if event.ClientIP != "" {
		metadata["clientIp"] = event.ClientIP
	}
	message := fmt.Sprintf("Rate limit exceeded (%d req/s)", event.ConfiguredLimit)
	return s.emit(ctx, domain.AlertRateLimitExceeded, event.ServiceName, event.Endpoint, event.Method,
		message, event.Timestamp, metadata)
}

func (s *Service) emit(ctx context.Context, alertType domain.AlertType, serviceName, endpoint, method, message string, at time.Time, metadata map[string]any) (domain.Alert, error) {
	if at.IsZero() {
		at = s.now()
	}
	alert := domain.Alert{
		ID:          uuid.NewString(),
		AlertType:   alertType,
		ServiceName: serviceName,
		Endpoint:    endpoint,
		Method:      method,
		Message:     message,
		Timestamp:   at,
		Metadata:    metadata,
	}
	if err := s.repo.InsertAlert(ctx, &alert); err != nil {
		return domain.Alert{}, err
	}
	if s.broadcaster != nil {
		s.broadcaster.BroadcastAlert(alert)
	}
	return alert, nil
}

// Acknowledge marks an alert as seen. Acknowledging an already-acknowledged
// alert is a no-op returning the stored row.
func (s *Service) Acknowledge(ctx context.Context, id, acknowledgedBy string) (domain.Alert, error) {
	if id == "" || acknowledgedBy == "" {
		return domain.Alert{}, repository.ErrInvalidArgument
	}
	return s.repo.AcknowledgeAlert(ctx, id, acknowledgedBy, s.now())
}

// List returns a page of alerts matching the filter.
func (s *Service) List(ctx context.Context, filter domain.AlertFilter, page domain.Page) (domain.PagedResult[domain.Alert], error) {
	if filter.AlertType != "" && !domain.ValidAlertType(filter.AlertType) {
		return domain.PagedResult[domain.Alert]{}, repository.ErrInvalidArgument
	}
	return s.repo.ListAlerts(ctx, filter, page)
}

// CountUnacknowledged reports how many alerts still await acknowledgement.
func (s *Service) CountUnacknowledged(ctx context.Context) (int64, error) {
	return s.repo.CountUnacknowledged(ctx)
}
