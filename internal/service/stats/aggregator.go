package stats

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/pulsewatch/collector/internal/domain"
	"github.com/pulsewatch/collector/internal/repository"
)

// Service reduces raw log records into per-endpoint statistics. All methods
// are pure reads with no shared mutable state and safe to call concurrently.
type Service struct {
	repo   repository.LogRepository
	logger *slog.Logger
}

// New constructs a statistics Service.
func New(repo repository.LogRepository, logger *slog.Logger) *Service {
	if logger != nil {
		logger = logger.With("component", "stats")
	}
	return &Service{repo: repo, logger: logger}
}

type groupKey struct {
	service  string
	endpoint string
	method   string
}

type group struct {
	latencies  []int64
	latencySum int64
	minLatency int64
	maxLatency int64
	errorCount int64
	lastSeen   time.Time
}

// ComputeStatistics aggregates every record in the inclusive window, grouped
// by (service, endpoint, method), ordered by service, endpoint then method.
func (s *Service) ComputeStatistics(ctx context.Context, start, end time.Time) ([]domain.EndpointStatistics, error) {
	if s == nil {
		return nil, errors.New("stats service not initialised")
	}
	records, err := s.repo.ListWindow(ctx, start, end)
	if err != nil {
		return nil, err
	}

	groups := make(map[groupKey]*group)
	order := make([]groupKey, 0)
	for _, record := range records {
		key := groupKey{service: record.ServiceName, endpoint: record.Endpoint, method: record.Method}
		g := groups[key]
		if g == nil {
			g = &group{minLatency: record.LatencyMS, maxLatency: record.LatencyMS}
			groups[key] = g
			order = append(order, key)
		}
		g.latencies = append(g.latencies, record.LatencyMS)
		g.latencySum += record.LatencyMS
		if record.LatencyMS < g.minLatency {
			g.minLatency = record.LatencyMS
		}
		if record.LatencyMS > g.maxLatency {
			g.maxLatency = record.LatencyMS
		}
		if record.IsBroken {
			g.errorCount++
		}
		if record.Timestamp.After(g.lastSeen) {
			g.lastSeen = record.Timestamp
		}
	}

	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.service != b.service {
			return a.service < b.service
		}
		if a.endpoint != b.endpoint {
			return a.endpoint < b.endpoint
		}
		return a.method < b.method
	})

	stats := make([]domain.EndpointStatistics, 0, len(order))
	for _, key := range order {
		stats = append(stats, groups[key].summarize(key))
	}
	return stats, nil
}

// ComputeEndpointStatistics returns the statistics for one (service, endpoint)
// pair, or nil when the window holds no matching records.
func (s *Service) ComputeEndpointStatistics(ctx context.Context, serviceName, endpoint string, start, end time.Time) (*domain.EndpointStatistics, error) {
	all, err := s.ComputeStatistics(ctx, start, end)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ServiceName == serviceName && all[i].Endpoint == endpoint {
			return &all[i], nil
		}
	}
	return nil, nil
}

func (g *group) summarize(key groupKey) domain.EndpointStatistics {
	count := int64(len(g.latencies))
	stat := domain.EndpointStatistics{
		ServiceName:   key.service,
		Endpoint:      key.endpoint,
		Method:        key.method,
		RequestCount:  count,
		ErrorCount:    g.errorCount,
		SuccessCount:  count - g.errorCount,
		MinLatencyMS:  g.minLatency,
		MaxLatencyMS:  g.maxLatency,
		LastRequestAt: g.lastSeen,
		SuccessRate:   1.0,
	}
	if count == 0 {
		return stat
	}
	stat.AvgLatencyMS = float64(g.latencySum) / float64(count)
	stat.ErrorRate = float64(g.errorCount) / float64(count)
	stat.SuccessRate = float64(count-g.errorCount) / float64(count)

	sorted := append([]int64(nil), g.latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	stat.P95LatencyMS = sorted[percentileIndex(len(sorted), 0.95)]
	stat.P99LatencyMS = sorted[percentileIndex(len(sorted), 0.99)]
	return stat
}

// percentileIndex is the nearest-rank position floor(n*p), clamped to
// [0, n-1]. Indexing the ascending sorted latencies at this position yields
// the reported percentile; no interpolation.
func percentileIndex(n int, p float64) int {
	idx := int(float64(n) * p)
	if idx < 0 {
		return 0
	}
	if idx > n-1 {
		return n - 1
	}
	return idx
}
