package domain

import "time"

// AlertType classifies a single violation notification.
type AlertType string

const (
	AlertSlowAPI           AlertType = "SLOW_API"
	AlertErrorSpike        AlertType = "ERROR_SPIKE"
	AlertRateLimitExceeded AlertType = "RATE_LIMIT_EXCEEDED"
)

// ValidAlertType reports whether t is a known alert type.
func ValidAlertType(t AlertType) bool {
	switch t {
	case AlertSlowAPI, AlertErrorSpike, AlertRateLimitExceeded:
		return true
	}
	return false
}

// Alert is an undeduplicated, append-only notification of one violation event.
// The acknowledgement fields are the only mutable part and are set at most once.
type Alert struct {
	ID             string         `json:"id"`
	AlertType      AlertType      `json:"alertType"`
	ServiceName    string         `json:"serviceName"`
	Endpoint       string         `json:"endpoint"`
	Method         string         `json:"method"`
	Message        string         `json:"message"`
	Timestamp      time.Time      `json:"timestamp"`
	Acknowledged   bool           `json:"acknowledged"`
	AcknowledgedBy string         `json:"acknowledgedBy,omitempty"`
	AcknowledgedAt *time.Time     `json:"acknowledgedAt,omitempty"`
	IncidentID     string         `json:"incidentId,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// AlertFilter narrows alert listings.
type AlertFilter struct {
	AlertType          AlertType
	UnacknowledgedOnly bool
}
