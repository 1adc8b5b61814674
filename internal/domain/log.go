package domain

import "time"

// Latency threshold above which a request is considered slow.
const SlowLatencyThresholdMS = 500

// LogRecord is one request-level telemetry sample emitted by a tracked service.
// Records are append-only: written once at ingestion, never mutated.
type LogRecord struct {
	ID           string    `json:"id"`
	ServiceName  string    `json:"serviceName"`
	Endpoint     string    `json:"endpoint"`
	Method       string    `json:"method"`
	StatusCode   int       `json:"statusCode"`
	LatencyMS    int64     `json:"latency"`
	RequestSize  int64     `json:"requestSize"`
	ResponseSize int64     `json:"responseSize"`
	Timestamp    time.Time `json:"timestamp"`
	TraceID      string    `json:"traceId,omitempty"`
	ClientIP     string    `json:"clientIp,omitempty"`
	UserAgent    string    `json:"userAgent,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`

	// Derived at write time.
	IsSlow   bool `json:"isSlow"`
	IsBroken bool `json:"isBroken"`
}

// DeriveFlags populates IsSlow and IsBroken from latency and status code.
func (l *LogRecord) DeriveFlags() {
	l.IsSlow = l.LatencyMS > SlowLatencyThresholdMS
	l.IsBroken = l.StatusCode >= 500 && l.StatusCode <= 599
}

// RateLimitEvent records a request rejected by a tracked service's rate limiter.
type RateLimitEvent struct {
	ID              string    `json:"id"`
	ServiceName     string    `json:"serviceName"`
	Endpoint        string    `json:"endpoint"`
	Method          string    `json:"method"`
	Timestamp       time.Time `json:"timestamp"`
	ConfiguredLimit int       `json:"configuredLimit"`
	EventType       string    `json:"eventType"`
	ClientIP        string    `json:"clientIp,omitempty"`
}

// LogFilter narrows log record queries. Zero values mean "no constraint";
// both time bounds are inclusive.
type LogFilter struct {
	ServiceName string
	Endpoint    string
	Method      string
	StatusCode  int
	MinLatency  int64
	MaxLatency  int64
	StartTime   time.Time
	EndTime     time.Time
	OnlySlow    bool
	OnlyBroken  bool
}

// Page describes a pagination request: zero-based index, positive size.
type Page struct {
	Number int
	Size   int
}

// Offset converts the page to a row offset.
func (p Page) Offset() int {
	return p.Number * p.Size
}

// PagedResult wraps one page of query results.
type PagedResult[T any] struct {
	Content       []T   `json:"content"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	First         bool  `json:"isFirst"`
	Last          bool  `json:"isLast"`
}

// NewPagedResult assembles a PagedResult computing the derived page fields.
func NewPagedResult[T any](content []T, page Page, total int64) PagedResult[T] {
	pages := 0
	if page.Size > 0 {
		pages = int((total + int64(page.Size) - 1) / int64(page.Size))
	}
	return PagedResult[T]{
		Content:       content,
		Page:          page.Number,
		Size:          page.Size,
		TotalElements: total,
		TotalPages:    pages,
		First:         page.Number == 0,
		Last:          page.Number >= pages-1,
	}
}
