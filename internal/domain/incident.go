package domain

import "time"

// IncidentType classifies the violation an incident tracks.
type IncidentType string

const (
	IncidentSlowAPI      IncidentType = "SLOW_API"
	IncidentBrokenAPI    IncidentType = "BROKEN_API"
	IncidentRateLimitHit IncidentType = "RATE_LIMIT_HIT"
)

// ValidIncidentType reports whether t is a known incident type.
func ValidIncidentType(t IncidentType) bool {
	switch t {
	case IncidentSlowAPI, IncidentBrokenAPI, IncidentRateLimitHit:
		return true
	}
	return false
}

// IncidentStatus is the lifecycle state of an incident. Transitions only move
// forward: OPEN -> ACKNOWLEDGED -> RESOLVED.
type IncidentStatus string

const (
	IncidentOpen         IncidentStatus = "OPEN"
	IncidentAcknowledged IncidentStatus = "ACKNOWLEDGED"
	IncidentResolved     IncidentStatus = "RESOLVED"
)

// ValidIncidentStatus reports whether s is a known incident status.
func ValidIncidentStatus(s IncidentStatus) bool {
	switch s {
	case IncidentOpen, IncidentAcknowledged, IncidentResolved:
		return true
	}
	return false
}

// Incident is a deduplicated, mutable record of an ongoing violation class for
// one (service, endpoint) pair. The version field implements optimistic
// concurrency: every mutation presents the version it last read.
type Incident struct {
	ID                 string         `json:"id"`
	ServiceName        string         `json:"serviceName"`
	Endpoint           string         `json:"endpoint"`
	Method             string         `json:"method"`
	IncidentType       IncidentType   `json:"incidentType"`
	Status             IncidentStatus `json:"status"`
	SampleLatencyMS    *int64         `json:"sampleLatency,omitempty"`
	SampleErrorMessage string         `json:"sampleErrorMessage,omitempty"`
	OccurrenceCount    int            `json:"occurrenceCount"`
	FirstSeenAt        time.Time      `json:"firstSeenAt"`
	LastSeenAt         time.Time      `json:"lastSeenAt"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
	ResolvedBy         string         `json:"resolvedBy,omitempty"`
	ResolvedAt         *time.Time     `json:"resolvedAt,omitempty"`
	ResolutionNotes    string         `json:"resolutionNotes,omitempty"`
	Version            int64          `json:"version"`
}

// IncidentFilter narrows incident listings. Endpoint matches as a
// case-insensitive substring; time bounds apply to CreatedAt and are inclusive.
type IncidentFilter struct {
	ServiceName  string
	Endpoint     string
	IncidentType IncidentType
	Status       IncidentStatus
	StartTime    time.Time
	EndTime      time.Time
}
