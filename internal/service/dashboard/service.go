package dashboard

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/pulsewatch/collector/internal/domain"
	"github.com/pulsewatch/collector/internal/repository"
)

// DefaultTopSlowLimit bounds the slow-endpoint ranking when no limit is given.
const DefaultTopSlowLimit = 10

// StatisticsSource yields per-endpoint statistics for a time window.
type StatisticsSource interface {
	ComputeStatistics(ctx context.Context, start, end time.Time) ([]domain.EndpointStatistics, error)
}

// Service assembles dashboard read models from the stored telemetry.
type Service struct {
	logs      repository.LogRepository
	events    repository.RateLimitEventRepository
	incidents repository.IncidentRepository
	alerts    repository.AlertRepository
	stats     StatisticsSource
	logger    *slog.Logger
}

// New constructs a dashboard Service.
func New(logs repository.LogRepository, events repository.RateLimitEventRepository, incidents repository.IncidentRepository, alerts repository.AlertRepository, stats StatisticsSource, logger *slog.Logger) *Service {
	if logger != nil {
		logger = logger.With("component", "dashboard")
	}
	return &Service{logs: logs, events: events, incidents: incidents, alerts: alerts, stats: stats, logger: logger}
}

// Summary collects the headline counters for the window.
func (s *Service) Summary(ctx context.Context, start, end time.Time) (domain.DashboardSummary, error) {
	summary := domain.DashboardSummary{StartTime: start, EndTime: end}

	var err error
	if summary.TotalRequests, err = s.logs.CountLogs(ctx, start, end); err != nil {
		return domain.DashboardSummary{}, err
	}
	if summary.SlowAPICount, err = s.logs.CountSlow(ctx, start, end); err != nil {
		return domain.DashboardSummary{}, err
	}
	if summary.BrokenAPICount, err = s.logs.CountBroken(ctx, start, end); err != nil {
		return domain.DashboardSummary{}, err
	}
	if summary.AverageLatencyMS, err = s.logs.AverageLatency(ctx, start, end); err != nil {
		return domain.DashboardSummary{}, err
	}
	if summary.RateLimitViolations, err = s.events.CountRateLimitEvents(ctx, start, end); err != nil {
		return domain.DashboardSummary{}, err
	}
	if summary.OpenIncidents, err = s.incidents.CountIncidentsByStatus(ctx, domain.IncidentOpen); err != nil {
		return domain.DashboardSummary{}, err
	}
	if summary.UnacknowledgedAlerts, err = s.alerts.CountUnacknowledged(ctx); err != nil {
		return domain.DashboardSummary{}, err
	}
	return summary, nil
}

// TopSlowEndpoints ranks endpoints in the window by descending average
// latency, ties keeping statistics order.
func (s *Service) TopSlowEndpoints(ctx context.Context, start, end time.Time, limit int) ([]domain.EndpointLatencySummary, error) {
	if limit <= 0 {
		limit = DefaultTopSlowLimit
	}
	stats, err := s.stats.ComputeStatistics(ctx, start, end)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(stats, func(i, j int) bool {
		return stats[i].AvgLatencyMS > stats[j].AvgLatencyMS
	})
	if len(stats) > limit {
		stats = stats[:limit]
	}
	ranked := make([]domain.EndpointLatencySummary, 0, len(stats))
	for _, stat := range stats {
		ranked = append(ranked, domain.EndpointLatencySummary{
			ServiceName:  stat.ServiceName,
			Endpoint:     stat.Endpoint,
			AvgLatencyMS: stat.AvgLatencyMS,
			MaxLatencyMS: stat.MaxLatencyMS,
			RequestCount: stat.RequestCount,
		})
	}
	return ranked, nil
}

// ErrorRateSeries buckets the window into fixed intervals and reports request
// volume and error rate per bucket. Empty buckets report a zero rate.
func (s *Service) ErrorRateSeries(ctx context.Context, start, end time.Time, interval time.Duration) ([]domain.TimeSeriesPoint, error) {
	if interval <= 0 || !end.After(start) {
		return nil, repository.ErrInvalidArgument
	}
	records, err := s.logs.ListWindow(ctx, start, end)
	if err != nil {
		return nil, err
	}

	buckets := int(end.Sub(start) / interval)
	if end.Sub(start)%interval != 0 {
		buckets++
	}
	points := make([]domain.TimeSeriesPoint, buckets)
	for i := range points {
		points[i].Timestamp = start.Add(time.Duration(i) * interval)
	}
	for _, record := range records {
		idx := int(record.Timestamp.Sub(start) / interval)
		if idx < 0 || idx >= buckets {
			continue
		}
		points[idx].RequestCount++
		if record.IsBroken {
			points[idx].ErrorCount++
		}
	}
	for i := range points {
		if points[i].RequestCount > 0 {
			points[i].ErrorRate = float64(points[i].ErrorCount) / float64(points[i].RequestCount)
		}
	}
	return points, nil
}
