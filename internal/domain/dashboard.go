package domain

import "time"

// DashboardSummary aggregates headline counters for the dashboard landing view.
type DashboardSummary struct {
	TotalRequests        int64     `json:"totalRequests"`
	SlowAPICount         int64     `json:"slowApiCount"`
	BrokenAPICount       int64     `json:"brokenApiCount"`
	RateLimitViolations  int64     `json:"rateLimitViolations"`
	AverageLatencyMS     float64   `json:"averageLatency"`
	OpenIncidents        int64     `json:"openIncidents"`
	UnacknowledgedAlerts int64     `json:"unacknowledgedAlerts"`
	StartTime            time.Time `json:"startTime"`
	EndTime              time.Time `json:"endTime"`
}

// EndpointLatencySummary ranks an endpoint by average latency.
type EndpointLatencySummary struct {
	ServiceName  string  `json:"serviceName"`
	Endpoint     string  `json:"endpoint"`
	AvgLatencyMS float64 `json:"avgLatency"`
	MaxLatencyMS int64   `json:"maxLatency"`
	RequestCount int64   `json:"requestCount"`
}

// TimeSeriesPoint is one bucket in an error-rate or volume series.
type TimeSeriesPoint struct {
	Timestamp    time.Time `json:"timestamp"`
	RequestCount int64     `json:"requestCount"`
	ErrorCount   int64     `json:"errorCount"`
	ErrorRate    float64   `json:"errorRate"`
}
