package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulsewatch/collector/internal/domain"
	"github.com/pulsewatch/collector/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.LogRepository            = (*Repository)(nil)
	_ repository.RateLimitEventRepository = (*Repository)(nil)
	_ repository.IncidentRepository       = (*Repository)(nil)
	_ repository.AlertRepository          = (*Repository)(nil)
)

// InsertLogs appends a batch of log records in one round trip.
func (r *Repository) InsertLogs(ctx context.Context, logs []domain.LogRecord) error {
	if len(logs) == 0 {
		return nil
	}
	const query = `INSERT INTO api_logs (id, service_name, endpoint, method, status_code, latency_ms, request_size, response_size, timestamp, trace_id, client_ip, user_agent, error_message, is_slow, is_broken)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	batch := &pgx.Batch{}
	for _, l := range logs {
		batch.Queue(query, l.ID, l.ServiceName, l.Endpoint, l.Method, l.StatusCode, l.LatencyMS, l.RequestSize, l.ResponseSize, l.Timestamp, emptyToNil(l.TraceID), emptyToNil(l.ClientIP), emptyToNil(l.UserAgent), emptyToNil(l.ErrorMessage), l.IsSlow, l.IsBroken)
	}
	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range logs {
		if _, err := results.Exec(); err != nil {
			return classifyError(err)
		}
	}
	return nil
}

// ListLogs returns one page of log records matching the filter, newest first.
func (r *Repository) ListLogs(ctx context.Context, filter domain.LogFilter, page domain.Page) (domain.PagedResult[domain.LogRecord], error) {
	var zero domain.PagedResult[domain.LogRecord]
	where, args := buildLogWhere(filter)

	countQuery := `SELECT COUNT(1) FROM api_logs` + where
	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return zero, err
	}

	listQuery := `SELECT id, service_name, endpoint, method, status_code, latency_ms, request_size, response_size, timestamp, trace_id, client_ip, user_agent, error_message, is_slow, is_broken
		FROM api_logs` + where + fmt.Sprintf(` ORDER BY timestamp DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.pool.Query(ctx, listQuery, append(args, page.Size, page.Offset())...)
	if err != nil {
		return zero, err
	}
	defer rows.Close()

	records := make([]domain.LogRecord, 0)
	for rows.Next() {
		record, err := scanLogRecord(rows)
		if err != nil {
			return zero, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return zero, err
	}
	return domain.NewPagedResult(records, page, total), nil
}

// ListWindow returns every record inside the inclusive time window.
func (r *Repository) ListWindow(ctx context.Context, start, end time.Time) ([]domain.LogRecord, error) {
	const query = `SELECT id, service_name, endpoint, method, status_code, latency_ms, request_size, response_size, timestamp, trace_id, client_ip, user_agent, error_message, is_slow, is_broken
		FROM api_logs WHERE timestamp >= $1 AND timestamp <= $2`
	rows, err := r.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.LogRecord, 0)
	for rows.Next() {
		record, err := scanLogRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// CountSlow counts slow requests inside the window.
func (r *Repository) CountSlow(ctx context.Context, start, end time.Time) (int64, error) {
	const query = `SELECT COUNT(1) FROM api_logs WHERE is_slow AND timestamp >= $1 AND timestamp <= $2`
	var count int64
	err := r.pool.QueryRow(ctx, query, start, end).Scan(&count)
	return count, err
}

// CountBroken counts 5xx requests inside the window.
func (r *Repository) CountBroken(ctx context.Context, start, end time.Time) (int64, error) {
	const query = `SELECT COUNT(1) FROM api_logs WHERE is_broken AND timestamp >= $1 AND timestamp <= $2`
	var count int64
	err := r.pool.QueryRow(ctx, query, start, end).Scan(&count)
	return count, err
}

// CountLogs counts all requests inside the window.
func (r *Repository) CountLogs(ctx context.Context, start, end time.Time) (int64, error) {
	const query = `SELECT COUNT(1) FROM api_logs WHERE timestamp >= $1 AND timestamp <= $2`
	var count int64
	err := r.pool.QueryRow(ctx, query, start, end).Scan(&count)
	return count, err
}

// AverageLatency computes the mean latency inside the window, 0 when empty.
func (r *Repository) AverageLatency(ctx context.Context, start, end time.Time) (float64, error) {
	const query = `SELECT COALESCE(AVG(latency_ms), 0) FROM api_logs WHERE timestamp >= $1 AND timestamp <= $2`
	var avg float64
	err := r.pool.QueryRow(ctx, query, start, end).Scan(&avg)
	return avg, err
}

// DistinctServices lists every service name seen in the log store.
func (r *Repository) DistinctServices(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT service_name FROM api_logs ORDER BY service_name`
	return r.queryStrings(ctx, query)
}

// DistinctEndpoints lists endpoints, optionally restricted to one service.
func (r *Repository) DistinctEndpoints(ctx context.Context, serviceName string) ([]string, error) {
	if serviceName == "" {
		const query = `SELECT DISTINCT endpoint FROM api_logs ORDER BY endpoint`
		return r.queryStrings(ctx, query)
	}
	const query = `SELECT DISTINCT endpoint FROM api_logs WHERE service_name = $1 ORDER BY endpoint`
	return r.queryStrings(ctx, query, serviceName)
}

// InsertRateLimitEvents appends a batch of rate limit events.
func (r *Repository) InsertRateLimitEvents(ctx context.Context, events []domain.RateLimitEvent) error {
	if len(events) == 0 {
		return nil
	}
	const query = `INSERT INTO rate_limit_events (id, service_name, endpoint, method, timestamp, configured_limit, event_type, client_ip)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(query, e.ID, e.ServiceName, e.Endpoint, e.Method, e.Timestamp, e.ConfiguredLimit, e.EventType, emptyToNil(e.ClientIP))
	}
	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range events {
		if _, err := results.Exec(); err != nil {
			return classifyError(err)
		}
	}
	return nil
}

// ListRateLimitEvents returns one page of rate limit events, newest first.
func (r *Repository) ListRateLimitEvents(ctx context.Context, serviceName string, start, end time.Time, page domain.Page) (domain.PagedResult[domain.RateLimitEvent], error) {
	var zero domain.PagedResult[domain.RateLimitEvent]
	conditions := make([]string, 0, 3)
	args := make([]any, 0, 3)
	if serviceName != "" {
		args = append(args, serviceName)
		conditions = append(conditions, fmt.Sprintf("service_name = $%d", len(args)))
	}
	if !start.IsZero() {
		args = append(args, start)
		conditions = append(conditions, fmt.Sprintf("timestamp >= $%d", len(args)))
	}
	if !end.IsZero() {
		args = append(args, end)
		conditions = append(conditions, fmt.Sprintf("timestamp <= $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(1) FROM rate_limit_events`+where, args...).Scan(&total); err != nil {
		return zero, err
	}

	listQuery := `SELECT id, service_name, endpoint, method, timestamp, configured_limit, event_type, client_ip
		FROM rate_limit_events` + where + fmt.Sprintf(` ORDER BY timestamp DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.pool.Query(ctx, listQuery, append(args, page.Size, page.Offset())...)
	if err != nil {
		return zero, err
	}
	defer rows.Close()

	events := make([]domain.RateLimitEvent, 0)
	for rows.Next() {
		var e domain.RateLimitEvent
		var clientIP sql.NullString
		if err := rows.Scan(&e.ID, &e.ServiceName, &e.Endpoint, &e.Method, &e.Timestamp, &e.ConfiguredLimit, &e.EventType, &clientIP); err != nil {
			return zero, err
		}
		e.ClientIP = clientIP.String
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return zero, err
	}
	return domain.NewPagedResult(events, page, total), nil
}

// CountRateLimitEvents counts rate limit events inside the window.
func (r *Repository) CountRateLimitEvents(ctx context.Context, start, end time.Time) (int64, error) {
	const query = `SELECT COUNT(1) FROM rate_limit_events WHERE timestamp >= $1 AND timestamp <= $2`
	var count int64
	err := r.pool.QueryRow(ctx, query, start, end).Scan(&count)
	return count, err
}

const incidentColumns = `id, service_name, endpoint, method, incident_type, status, sample_latency_ms, sample_error_message, occurrence_count, first_seen_at, last_seen_at, created_at, updated_at, resolved_by, resolved_at, resolution_notes, version`

// RecordViolation atomically increments the matching open incident or creates
// a new one. A partial unique index on (service_name, endpoint, incident_type)
// over non-resolved rows makes the upsert race-free: two concurrent violations
// for the same endpoint serialize on the index instead of both inserting.
func (r *Repository) RecordViolation(ctx context.Context, incident domain.Incident) (domain.Incident, bool, error) {
	const query = `INSERT INTO incidents (id, service_name, endpoint, method, incident_type, status, sample_latency_ms, sample_error_message, occurrence_count, first_seen_at, last_seen_at, created_at, updated_at, resolved_by, resolution_notes, version)
		VALUES ($1, $2, $3, $4, $5, 'OPEN', $6, $7, 1, $8, $8, $9, $9, '', '', 0)
		ON CONFLICT (service_name, endpoint, incident_type) WHERE status <> 'RESOLVED'
		DO UPDATE SET occurrence_count = incidents.occurrence_count + 1,
			last_seen_at = EXCLUDED.last_seen_at,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + incidentColumns + `, (xmax = 0) AS inserted`
	row := r.pool.QueryRow(ctx, query,
		incident.ID,
		incident.ServiceName,
		incident.Endpoint,
		incident.Method,
		incident.IncidentType,
		int64PtrToNil(incident.SampleLatencyMS),
		incident.SampleErrorMessage,
		incident.LastSeenAt,
		incident.CreatedAt,
	)
	var created bool
	saved, err := scanIncident(row, &created)
	if err != nil {
		return domain.Incident{}, false, classifyError(err)
	}
	return saved, created, nil
}

// Resolve performs the compare-version-then-update in a single statement. The
// stored row is never touched when the presented version is stale.
func (r *Repository) Resolve(ctx context.Context, id string, expectedVersion int64, resolvedBy, notes string, at time.Time) (domain.Incident, error) {
	const query = `UPDATE incidents
		SET status = 'RESOLVED', resolved_by = $3, resolved_at = $4, resolution_notes = $5, updated_at = $4, version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING ` + incidentColumns
	row := r.pool.QueryRow(ctx, query, id, expectedVersion, resolvedBy, at, notes)
	incident, err := scanIncident(row, nil)
	if err == nil {
		return incident, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Incident{}, classifyError(err)
	}
	// Nothing matched: distinguish a missing incident from a stale version.
	var exists bool
	if checkErr := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM incidents WHERE id = $1)`, id).Scan(&exists); checkErr != nil {
		return domain.Incident{}, checkErr
	}
	if !exists {
		return domain.Incident{}, repository.ErrNotFound
	}
	return domain.Incident{}, repository.ErrVersionConflict
}

// GetIncident fetches one incident by id.
func (r *Repository) GetIncident(ctx context.Context, id string) (domain.Incident, error) {
	const query = `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1`
	incident, err := scanIncident(r.pool.QueryRow(ctx, query, id), nil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Incident{}, repository.ErrNotFound
		}
		return domain.Incident{}, classifyError(err)
	}
	return incident, nil
}

// ListIncidents returns one page of incidents matching the filter, newest first.
func (r *Repository) ListIncidents(ctx context.Context, filter domain.IncidentFilter, page domain.Page) (domain.PagedResult[domain.Incident], error) {
	var zero domain.PagedResult[domain.Incident]
	conditions := make([]string, 0, 6)
	args := make([]any, 0, 6)
	if filter.ServiceName != "" {
		args = append(args, filter.ServiceName)
		conditions = append(conditions, fmt.Sprintf("service_name = $%d", len(args)))
	}
	if filter.Endpoint != "" {
		args = append(args, "%"+filter.Endpoint+"%")
		conditions = append(conditions, fmt.Sprintf("endpoint ILIKE $%d", len(args)))
	}
	if filter.IncidentType != "" {
		args = append(args, filter.IncidentType)
		conditions = append(conditions, fmt.Sprintf("incident_type = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if !filter.StartTime.IsZero() {
		args = append(args, filter.StartTime)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !filter.EndTime.IsZero() {
		args = append(args, filter.EndTime)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(1) FROM incidents`+where, args...).Scan(&total); err != nil {
		return zero, err
	}

	listQuery := `SELECT ` + incidentColumns + ` FROM incidents` + where + fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.pool.Query(ctx, listQuery, append(args, page.Size, page.Offset())...)
	if err != nil {
		return zero, err
	}
	defer rows.Close()

	incidents := make([]domain.Incident, 0)
	for rows.Next() {
		incident, err := scanIncident(rows, nil)
		if err != nil {
			return zero, err
		}
		incidents = append(incidents, incident)
	}
	if err := rows.Err(); err != nil {
		return zero, err
	}
	return domain.NewPagedResult(incidents, page, total), nil
}

// CountIncidentsByStatus counts incidents in the given lifecycle state.
func (r *Repository) CountIncidentsByStatus(ctx context.Context, status domain.IncidentStatus) (int64, error) {
	const query = `SELECT COUNT(1) FROM incidents WHERE status = $1`
	var count int64
	err := r.pool.QueryRow(ctx, query, status).Scan(&count)
	return count, err
}

const alertColumns = `id, alert_type, service_name, endpoint, method, message, timestamp, acknowledged, acknowledged_by, acknowledged_at, incident_id, metadata`

// InsertAlert appends one alert document.
func (r *Repository) InsertAlert(ctx context.Context, alert *domain.Alert) error {
	const query = `INSERT INTO alerts (id, alert_type, service_name, endpoint, method, message, timestamp, acknowledged, acknowledged_by, incident_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, '', $8, $9)`
	metadata, err := marshalMetadata(alert.Metadata)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, query, alert.ID, alert.AlertType, alert.ServiceName, alert.Endpoint, alert.Method, alert.Message, alert.Timestamp, emptyToNil(alert.IncidentID), metadata)
	return classifyError(err)
}

// AcknowledgeAlert sets the ack fields once; a second call is a no-op that
// returns the already-acknowledged row.
func (r *Repository) AcknowledgeAlert(ctx context.Context, id, acknowledgedBy string, at time.Time) (domain.Alert, error) {
	const query = `UPDATE alerts
		SET acknowledged = TRUE, acknowledged_by = $2, acknowledged_at = $3
		WHERE id = $1 AND acknowledged = FALSE
		RETURNING ` + alertColumns
	alert, err := scanAlert(r.pool.QueryRow(ctx, query, id, acknowledgedBy, at))
	if err == nil {
		return alert, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Alert{}, classifyError(err)
	}
	const fetch = `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`
	alert, err = scanAlert(r.pool.QueryRow(ctx, fetch, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Alert{}, repository.ErrNotFound
		}
		return domain.Alert{}, classifyError(err)
	}
	return alert, nil
}

// ListAlerts returns one page of alerts, newest first.
func (r *Repository) ListAlerts(ctx context.Context, filter domain.AlertFilter, page domain.Page) (domain.PagedResult[domain.Alert], error) {
	var zero domain.PagedResult[domain.Alert]
	conditions := make([]string, 0, 2)
	args := make([]any, 0, 2)
	if filter.AlertType != "" {
		args = append(args, filter.AlertType)
		conditions = append(conditions, fmt.Sprintf("alert_type = $%d", len(args)))
	}
	if filter.UnacknowledgedOnly {
		conditions = append(conditions, "acknowledged = FALSE")
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(1) FROM alerts`+where, args...).Scan(&total); err != nil {
		return zero, err
	}

	listQuery := `SELECT ` + alertColumns + ` FROM alerts` + where + fmt.Sprintf(` ORDER BY timestamp DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.pool.Query(ctx, listQuery, append(args, page.Size, page.Offset())...)
	if err != nil {
		return zero, err
	}
	defer rows.Close()

	alerts := make([]domain.Alert, 0)
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return zero, err
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return zero, err
	}
	return domain.NewPagedResult(alerts, page, total), nil
}

// CountUnacknowledged counts alerts awaiting acknowledgement.
func (r *Repository) CountUnacknowledged(ctx context.Context) (int64, error) {
	const query = `SELECT COUNT(1) FROM alerts WHERE acknowledged = FALSE`
	var count int64
	err := r.pool.QueryRow(ctx, query).Scan(&count)
	return count, err
}

func (r *Repository) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := make([]string, 0)
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, rows.Err()
}

func buildLogWhere(filter domain.LogFilter) (string, []any) {
	conditions := make([]string, 0, 8)
	args := make([]any, 0, 8)
	if filter.ServiceName != "" {
		args = append(args, filter.ServiceName)
		conditions = append(conditions, fmt.Sprintf("service_name = $%d", len(args)))
	}
	if filter.Endpoint != "" {
		args = append(args, "%"+filter.Endpoint+"%")
		conditions = append(conditions, fmt.Sprintf("endpoint ILIKE $%d", len(args)))
	}
	if filter.Method != "" {
		args = append(args, filter.Method)
		conditions = append(conditions, fmt.Sprintf("method = $%d", len(args)))
	}
	if filter.StatusCode != 0 {
		args = append(args, filter.StatusCode)
		conditions = append(conditions, fmt.Sprintf("status_code = $%d", len(args)))
	}
	if filter.MinLatency > 0 {
		args = append(args, filter.MinLatency)
		conditions = append(conditions, fmt.Sprintf("latency_ms >= $%d", len(args)))
	}
	if filter.MaxLatency > 0 {
		args = append(args, filter.MaxLatency)
		conditions = append(conditions, fmt.Sprintf("latency_ms <= $%d", len(args)))
	}
	if !filter.StartTime.IsZero() {
		args = append(args, filter.StartTime)
		conditions = append(conditions, fmt.Sprintf("timestamp >= $%d", len(args)))
	}
	if !filter.EndTime.IsZero() {
		args = append(args, filter.EndTime)
		conditions = append(conditions, fmt.Sprintf("timestamp <= $%d", len(args)))
	}
	if filter.OnlySlow {
		conditions = append(conditions, "is_slow")
	}
	if filter.OnlyBroken {
		conditions = append(conditions, "is_broken")
	}
	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLogRecord(row rowScanner) (domain.LogRecord, error) {
	var l domain.LogRecord
	var traceID, clientIP, userAgent, errorMessage sql.NullString
	if err := row.Scan(&l.ID, &l.ServiceName, &l.Endpoint, &l.Method, &l.StatusCode, &l.LatencyMS, &l.RequestSize, &l.ResponseSize, &l.Timestamp, &traceID, &clientIP, &userAgent, &errorMessage, &l.IsSlow, &l.IsBroken); err != nil {
		return domain.LogRecord{}, err
	}
	l.TraceID = traceID.String
	l.ClientIP = clientIP.String
	l.UserAgent = userAgent.String
	l.ErrorMessage = errorMessage.String
	return l, nil
}

func scanIncident(row rowScanner, created *bool) (domain.Incident, error) {
	var i domain.Incident
	var sampleLatency sql.NullInt64
	var resolvedAt sql.NullTime
	dest := []any{
		&i.ID, &i.ServiceName, &i.Endpoint, &i.Method, &i.IncidentType, &i.Status,
		&sampleLatency, &i.SampleErrorMessage, &i.OccurrenceCount,
		&i.FirstSeenAt, &i.LastSeenAt, &i.CreatedAt, &i.UpdatedAt,
		&i.ResolvedBy, &resolvedAt, &i.ResolutionNotes, &i.Version,
	}
	if created != nil {
		dest = append(dest, created)
	}
	if err := row.Scan(dest...); err != nil {
		return domain.Incident{}, err
	}
	if sampleLatency.Valid {
		value := sampleLatency.Int64
		i.SampleLatencyMS = &value
	}
	if resolvedAt.Valid {
		value := resolvedAt.Time.UTC()
		i.ResolvedAt = &value
	}
	return i, nil
}

func scanAlert(row rowScanner) (domain.Alert, error) {
	var a domain.Alert
	var incidentID sql.NullString
	var acknowledgedAt sql.NullTime
	var metadata []byte
	if err := row.Scan(&a.ID, &a.AlertType, &a.ServiceName, &a.Endpoint, &a.Method, &a.Message, &a.Timestamp, &a.Acknowledged, &a.AcknowledgedBy, &acknowledgedAt, &incidentID, &metadata); err != nil {
		return domain.Alert{}, err
	}
	a.IncidentID = incidentID.String
	if acknowledgedAt.Valid {
		value := acknowledgedAt.Time.UTC()
		a.AcknowledgedAt = &value
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &a.Metadata); err != nil {
			return domain.Alert{}, fmt.Errorf("decode alert metadata: %w", err)
		}
	}
	return a, nil
}

func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encode alert metadata: %w", err)
	}
	return encoded, nil
}

func classifyError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "22P02":
			return repository.ErrInvalidArgument
		case "23503":
			return repository.ErrNotFound
		}
	}
	return err
}

func emptyToNil(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func int64PtrToNil(value *int64) any {
	if value == nil {
		return nil
	}
	return *value
}
