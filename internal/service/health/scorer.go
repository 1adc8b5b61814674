package health

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/pulsewatch/collector/internal/domain"
)

// Weight of each sub-score in the composite health score.
const (
	availabilityWeight = 0.40
	latencyWeight      = 0.30
	errorWeight        = 0.30
)

const worstEndpointLimit = 10

// StatisticsSource yields per-endpoint statistics for a time window.
type StatisticsSource interface {
	ComputeStatistics(ctx context.Context, start, end time.Time) ([]domain.EndpointStatistics, error)
}

// Service converts endpoint statistics into health scores.
type Service struct {
	stats  StatisticsSource
	logger *slog.Logger
	now    func() time.Time
}

// New constructs a health Service.
func New(stats StatisticsSource, logger *slog.Logger) *Service {
	if logger != nil {
		logger = logger.With("component", "health")
	}
	return &Service{stats: stats, logger: logger, now: time.Now}
}

// ScoreEndpoint computes the sub-scores and composite for one endpoint's
// statistics. Pure function of its input.
func ScoreEndpoint(stat domain.EndpointStatistics) domain.EndpointHealthScore {
	availability := clampScore(int(math.Round(stat.SuccessRate * 100)))
	latency := latencyScore(stat.AvgLatencyMS)
	errScore := clampScore(int(math.Round((1 - stat.ErrorRate) * 100)))
	composite := clampScore(int(availabilityWeight*float64(availability) +
		latencyWeight*float64(latency) +
		errorWeight*float64(errScore)))

	return domain.EndpointHealthScore{
		ServiceName:       stat.ServiceName,
		Endpoint:          stat.Endpoint,
		Method:            stat.Method,
		HealthScore:       composite,
		AvailabilityScore: availability,
		LatencyScore:      latency,
		ErrorScore:        errScore,
		Status:            StatusFor(composite),
		AvgLatencyMS:      stat.AvgLatencyMS,
		P95LatencyMS:      stat.P95LatencyMS,
		P99LatencyMS:      stat.P99LatencyMS,
		ErrorRate:         stat.ErrorRate,
		SuccessRate:       stat.SuccessRate,
		RequestCount:      stat.RequestCount,
		LastRequestAt:     stat.LastRequestAt,
	}
}

// latencyScore maps average latency onto a 0-100 band, truncating to integer.
// Piecewise linear: full marks under 100ms, zero floor past 5000ms.
func latencyScore(avgMS float64) int {
	var score float64
	switch {
	case avgMS < 100:
		score = 100
	case avgMS < 300:
		score = 80 + (300-avgMS)/200*20
	case avgMS < 500:
		score = 60 + (500-avgMS)/200*20
	case avgMS < 1000:
		score = 40 + (1000-avgMS)/500*20
	default:
		score = math.Max(0, 40-(avgMS-1000)/100)
	}
	return clampScore(int(score))
}

// StatusFor bands a 0-100 score into a health status.
func StatusFor(score int) domain.HealthStatus {
	switch {
	case score >= 90:
		return domain.HealthExcellent
	case score >= 75:
		return domain.HealthGood
	case score >= 50:
		return domain.HealthWarning
	default:
		return domain.HealthCritical
	}
}

func clampScore(s int) int {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

// SystemScore scores every endpoint in the window and rolls the results up to
// service and system level. No data at all reads as a healthy system.
func (s *Service) SystemScore(ctx context.Context, start, end time.Time) (domain.SystemHealthScore, error) {
	stats, err := s.stats.ComputeStatistics(ctx, start, end)
	if err != nil {
		return domain.SystemHealthScore{}, err
	}
	return s.rollup(stats), nil
}

// EndpointScores scores every endpoint in the window, in statistics order.
func (s *Service) EndpointScores(ctx context.Context, start, end time.Time) ([]domain.EndpointHealthScore, error) {
	stats, err := s.stats.ComputeStatistics(ctx, start, end)
	if err != nil {
		return nil, err
	}
	scores := make([]domain.EndpointHealthScore, 0, len(stats))
	for _, stat := range stats {
		scores = append(scores, ScoreEndpoint(stat))
	}
	return scores, nil
}

// EndpointScore scores one (service, endpoint) pair, or returns nil when the
// window has no traffic for it.
func (s *Service) EndpointScore(ctx context.Context, serviceName, endpoint string, start, end time.Time) (*domain.EndpointHealthScore, error) {
	scores, err := s.EndpointScores(ctx, start, end)
	if err != nil {
		return nil, err
	}
	for i := range scores {
		if scores[i].ServiceName == serviceName && scores[i].Endpoint == endpoint {
			return &scores[i], nil
		}
	}
	return nil, nil
}

// Trend recomputes the system score over successive fixed-width buckets
// spanning the look-back window ending now, one point per bucket.
func (s *Service) Trend(ctx context.Context, lookback, interval time.Duration) ([]domain.TrendPoint, error) {
	if interval <= 0 || lookback <= 0 {
		return nil, nil
	}
	end := s.now()
	points := make([]domain.TrendPoint, 0, int(lookback/interval))
	for cursor := end.Add(-lookback); cursor.Before(end); cursor = cursor.Add(interval) {
		bucketEnd := cursor.Add(interval)
		if bucketEnd.After(end) {
			bucketEnd = end
		}
		stats, err := s.stats.ComputeStatistics(ctx, cursor, bucketEnd)
		if err != nil {
			return nil, err
		}
		system := s.rollup(stats)
		points = append(points, domain.TrendPoint{
			Timestamp: cursor,
			Score:     system.OverallScore,
			Status:    system.Status,
		})
	}
	return points, nil
}

func (s *Service) rollup(stats []domain.EndpointStatistics) domain.SystemHealthScore {
	calculatedAt := s.now()
	if len(stats) == 0 {
		return domain.SystemHealthScore{
			OverallScore:      100,
			AvailabilityScore: 100,
			LatencyScore:      100,
			ErrorScore:        100,
			Status:            domain.HealthExcellent,
			EndpointScores:    []domain.EndpointHealthScore{},
			ServiceScores:     []domain.ServiceHealthScore{},
			CalculatedAt:      calculatedAt,
		}
	}

	scores := make([]domain.EndpointHealthScore, 0, len(stats))
	var availabilitySum, latencySum, errorSum int
	for _, stat := range stats {
		score := ScoreEndpoint(stat)
		scores = append(scores, score)
		availabilitySum += score.AvailabilityScore
		latencySum += score.LatencyScore
		errorSum += score.ErrorScore
	}

	overall := weightedScore(scores)
	return domain.SystemHealthScore{
		OverallScore:      overall,
		AvailabilityScore: availabilitySum / len(scores),
		LatencyScore:      latencySum / len(scores),
		ErrorScore:        errorSum / len(scores),
		Status:            StatusFor(overall),
		EndpointScores:    worstEndpoints(scores),
		ServiceScores:     serviceRollups(scores),
		CalculatedAt:      calculatedAt,
	}
}

// weightedScore is the request-count-weighted mean of the given scores, with
// an unweighted fallback when the window carried no traffic.
func weightedScore(scores []domain.EndpointHealthScore) int {
	var weightedSum, totalRequests int64
	for _, score := range scores {
		weightedSum += int64(score.HealthScore) * score.RequestCount
		totalRequests += score.RequestCount
	}
	if totalRequests > 0 {
		return clampScore(int(weightedSum / totalRequests))
	}
	var plainSum int
	for _, score := range scores {
		plainSum += score.HealthScore
	}
	return clampScore(int(float64(plainSum) / float64(len(scores))))
}

// worstEndpoints returns up to ten lowest-scoring endpoints, ties keeping
// their original order.
func worstEndpoints(scores []domain.EndpointHealthScore) []domain.EndpointHealthScore {
	sorted := append([]domain.EndpointHealthScore(nil), scores...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].HealthScore < sorted[j].HealthScore
	})
	if len(sorted) > worstEndpointLimit {
		sorted = sorted[:worstEndpointLimit]
	}
	return sorted
}

func serviceRollups(scores []domain.EndpointHealthScore) []domain.ServiceHealthScore {
	byService := make(map[string][]domain.EndpointHealthScore)
	names := make([]string, 0)
	for _, score := range scores {
		if _, seen := byService[score.ServiceName]; !seen {
			names = append(names, score.ServiceName)
		}
		byService[score.ServiceName] = append(byService[score.ServiceName], score)
	}

	rollups := make([]domain.ServiceHealthScore, 0, len(names))
	for _, name := range names {
		endpoints := byService[name]
		var requests int64
		var critical, warning int
		for _, e := range endpoints {
			requests += e.RequestCount
			switch e.Status {
			case domain.HealthCritical:
				critical++
			case domain.HealthWarning:
				warning++
			}
		}
		score := weightedScore(endpoints)
		rollups = append(rollups, domain.ServiceHealthScore{
			ServiceName:       name,
			HealthScore:       score,
			Status:            StatusFor(score),
			EndpointCount:     len(endpoints),
			RequestCount:      requests,
			CriticalEndpoints: critical,
			WarningEndpoints:  warning,
		})
	}
	sort.SliceStable(rollups, func(i, j int) bool {
		return rollups[i].RequestCount > rollups[j].RequestCount
	})
	return rollups
}
