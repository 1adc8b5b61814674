package domain

import "time"

// EndpointStatistics summarizes log records for one (service, endpoint, method)
// group over a query window. Recomputed per query, never persisted.
type EndpointStatistics struct {
	ServiceName   string    `json:"serviceName"`
	Endpoint      string    `json:"endpoint"`
	Method        string    `json:"method"`
	AvgLatencyMS  float64   `json:"avgLatency"`
	MinLatencyMS  int64     `json:"minLatency"`
	MaxLatencyMS  int64     `json:"maxLatency"`
	P95LatencyMS  int64     `json:"p95Latency"`
	P99LatencyMS  int64     `json:"p99Latency"`
	RequestCount  int64     `json:"requestCount"`
	ErrorCount    int64     `json:"errorCount"`
	SuccessCount  int64     `json:"successCount"`
	ErrorRate     float64   `json:"errorRate"`
	SuccessRate   float64   `json:"successRate"`
	LastRequestAt time.Time `json:"lastRequestAt"`
}

// HealthStatus bands a 0-100 health score.
type HealthStatus string

const (
	HealthExcellent HealthStatus = "EXCELLENT" // 90-100
	HealthGood      HealthStatus = "GOOD"      // 75-89
	HealthWarning   HealthStatus = "WARNING"   // 50-74
	HealthCritical  HealthStatus = "CRITICAL"  // 0-49
)

// EndpointHealthScore is the scored view of one endpoint's statistics.
type EndpointHealthScore struct {
	ServiceName       string       `json:"serviceName"`
	Endpoint          string       `json:"endpoint"`
	Method            string       `json:"method"`
	HealthScore       int          `json:"healthScore"`
	AvailabilityScore int          `json:"availabilityScore"`
	LatencyScore      int          `json:"latencyScore"`
	ErrorScore        int          `json:"errorScore"`
	Status            HealthStatus `json:"status"`
	AvgLatencyMS      float64      `json:"avgLatency"`
	P95LatencyMS      int64        `json:"p95Latency"`
	P99LatencyMS      int64        `json:"p99Latency"`
	ErrorRate         float64      `json:"errorRate"`
	SuccessRate       float64      `json:"successRate"`
	RequestCount      int64        `json:"requestCount"`
	LastRequestAt     time.Time    `json:"lastRequestAt"`
}

// ServiceHealthScore rolls endpoint scores up to one tracked service.
type ServiceHealthScore struct {
	ServiceName       string       `json:"serviceName"`
	HealthScore       int          `json:"healthScore"`
	Status            HealthStatus `json:"status"`
	EndpointCount     int          `json:"endpointCount"`
	RequestCount      int64        `json:"requestCount"`
	CriticalEndpoints int          `json:"criticalEndpoints"`
	WarningEndpoints  int          `json:"warningEndpoints"`
}

// SystemHealthScore is the whole-system rollup: the overall weighted score, the
// ten lowest-scoring endpoints, and per-service summaries.
type SystemHealthScore struct {
	OverallScore      int                   `json:"overallScore"`
	AvailabilityScore int                   `json:"availabilityScore"`
	LatencyScore      int                   `json:"latencyScore"`
	ErrorScore        int                   `json:"errorScore"`
	Status            HealthStatus          `json:"status"`
	EndpointScores    []EndpointHealthScore `json:"endpointScores"`
	ServiceScores     []ServiceHealthScore  `json:"serviceScores"`
	CalculatedAt      time.Time             `json:"calculatedAt"`
}

// TrendPoint is one system score sample in a health trend series.
type TrendPoint struct {
	Timestamp time.Time    `json:"timestamp"`
	Score     int          `json:"score"`
	Status    HealthStatus `json:"status"`
}
