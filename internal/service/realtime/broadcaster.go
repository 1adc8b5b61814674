package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pulsewatch/collector/internal/domain"
)

// Stream topics clients can subscribe to.
const (
	TopicLogs      = "logs"
	TopicAlerts    = "alerts"
	TopicIncidents = "incidents"
	TopicHealth    = "health"
	TopicMetrics   = "metrics"
)

// Event is the wire envelope for every pushed update.
type Event struct {
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink fans a payload out to every subscriber of a topic.
type Sink interface {
	Broadcast(topic string, payload []byte)
}

// HealthSource computes the current system health score.
type HealthSource interface {
	SystemScore(ctx context.Context, start, end time.Time) (domain.SystemHealthScore, error)
}

// SummarySource computes the current dashboard summary.
type SummarySource interface {
	Summary(ctx context.Context, start, end time.Time) (domain.DashboardSummary, error)
}

// Broadcaster publishes domain events onto stream topics and periodically
// pushes health and summary snapshots. All delivery is best effort: a slow or
// failing stream never affects ingestion or queries.
type Broadcaster struct {
	sink     Sink
	health   HealthSource
	summary  SummarySource
	window   time.Duration
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// New constructs a Broadcaster pushing snapshots every interval, computed
// over the trailing window. health and summary may be nil, disabling the
// periodic push.
func New(sink Sink, health HealthSource, summary SummarySource, window, interval time.Duration, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	if window <= 0 {
		window = time.Hour
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Broadcaster{
		sink:     sink,
		health:   health,
		summary:  summary,
		window:   window,
		interval: interval,
		logger:   logger.With("component", "realtime"),
		now:      time.Now,
	}
}

// BroadcastLog pushes one accepted log record to the logs topic.
func (b *Broadcaster) BroadcastLog(record domain.LogRecord) {
	b.publish(TopicLogs, "log", record)
}

// BroadcastAlert pushes a new alert to the alerts topic.
func (b *Broadcaster) BroadcastAlert(alert domain.Alert) {
	b.publish(TopicAlerts, "alert", alert)
}

// BroadcastIncident pushes an incident change to the incidents topic.
func (b *Broadcaster) BroadcastIncident(incident domain.Incident) {
	b.publish(TopicIncidents, "incident", incident)
}

func (b *Broadcaster) publish(topic, eventType string, data any) {
	payload, err := json.Marshal(Event{Type: eventType, Data: data, Timestamp: b.now()})
	if err != nil {
		b.logger.Error("marshal stream event", "topic", topic, "error", err)
		return
	}
	b.sink.Broadcast(topic, payload)
}

// Run pushes health and summary snapshots on a fixed interval until ctx is
// cancelled. Pushes happen regardless of request volume, so an idle system
// still reports itself healthy.
func (b *Broadcaster) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			b.pushSnapshots(ctx)
		}
	}
}

func (b *Broadcaster) pushSnapshots(ctx context.Context) {
	end := b.now()
	start := end.Add(-b.window)
	if b.health != nil {
		system, err := b.health.SystemScore(ctx, start, end)
		if err != nil {
			b.logger.Error("compute health snapshot", "error", err)
		} else {
			b.publish(TopicHealth, "health", system)
		}
	}
	if b.summary != nil {
		summary, err := b.summary.Summary(ctx, start, end)
		if err != nil {
			b.logger.Error("compute summary snapshot", "error", err)
		} else {
			b.publish(TopicMetrics, "metrics", summary)
		}
	}
}
