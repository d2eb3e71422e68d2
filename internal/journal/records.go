package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// StatusRecord is one instance snapshot.
type StatusRecord struct {
	Service     string
	InstanceID  string
	PID         int
	Port        int
	Status      string
	MemoryMB    float64
	CPUPercent  float64
	Requests    int64
	Errors      int64
	HealthScore float64
	StartedAt   time.Time
	LastCheck   time.Time
	Uptime      time.Duration
	RecordedAt  time.Time
}

// SystemMetrics is one host sample plus supervisor totals.
type SystemMetrics struct {
	Time            time.Time
	CPUPercent      float64
	MemoryPercent   float64
	DiskPercent     float64
	NetworkIO       string // "<bytes sent>:<bytes received>"
	ActiveInstances int
	TotalRequests   int64
	ErrorRate       float64
}

// ErrorRecord is a service error.
type ErrorRecord struct {
	Time       time.Time
	Service    string
	InstanceID string
	Type       string
	Message    string
	Detail     string
	Resolved   bool
}

// RecoveryRecord is one recovery attempt.
type RecoveryRecord struct {
	Time       time.Time
	Service    string
	InstanceID string
	Type       string
	Success    bool
	Duration   time.Duration
	Details    string
}

// LogStatus appends an instance snapshot.
func (j *Journal) LogStatus(ctx context.Context, r StatusRecord) error {
	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO service_status
			(service_name, instance_id, pid, port, status, memory_usage, cpu_usage,
			 request_count, error_count, health_score, start_time, last_health_check,
			 uptime_seconds, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Service, r.InstanceID, r.PID, r.Port, r.Status, r.MemoryMB, r.CPUPercent,
		r.Requests, r.Errors, r.HealthScore, formatTime(r.StartedAt), formatTime(r.LastCheck),
		int64(r.Uptime/time.Second), formatTime(r.RecordedAt))
	if err != nil {
		return fmt.Errorf("log status for %s/%s: %w", r.Service, r.InstanceID, err)
	}
	return nil
}

// LogMetrics appends a host metrics sample.
func (j *Journal) LogMetrics(ctx context.Context, m SystemMetrics) error {
	if m.Time.IsZero() {
		m.Time = time.Now()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO system_metrics
			(timestamp, cpu_percent, memory_percent, disk_usage, network_io,
			 active_instances, total_requests, error_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		formatTime(m.Time), m.CPUPercent, m.MemoryPercent, m.DiskPercent, m.NetworkIO,
		m.ActiveInstances, m.TotalRequests, m.ErrorRate)
	if err != nil {
		return fmt.Errorf("log system metrics: %w", err)
	}
	return nil
}

// LogError appends an unresolved service error.
func (j *Journal) LogError(ctx context.Context, e ErrorRecord) error {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO error_logs
			(timestamp, service_name, instance_id, error_type, error_message, stack_trace)
		VALUES (?, ?, ?, ?, ?, ?)`,
		formatTime(e.Time), e.Service, e.InstanceID, e.Type, e.Message, e.Detail)
	if err != nil {
		return fmt.Errorf("log error for %s: %w", e.Service, err)
	}
	return nil
}

// ResolveErrors marks every open error of service as resolved.
func (j *Journal) ResolveErrors(ctx context.Context, service string) (int64, error) {
	res, err := j.db.ExecContext(ctx, `
		UPDATE error_logs SET resolved = TRUE, resolution_time = ?
		WHERE service_name = ? AND NOT resolved`,
		formatTime(time.Now()), service)
	if err != nil {
		return 0, fmt.Errorf("resolve errors for %s: %w", service, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// LogRecovery appends a recovery attempt.
func (j *Journal) LogRecovery(ctx context.Context, r RecoveryRecord) error {
	if r.Time.IsZero() {
		r.Time = time.Now()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO recovery_history
			(timestamp, service_name, instance_id, recovery_type, success,
			 recovery_time_seconds, details)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		formatTime(r.Time), r.Service, r.InstanceID, r.Type, r.Success,
		r.Duration.Seconds(), r.Details)
	if err != nil {
		return fmt.Errorf("log recovery for %s: %w", r.Service, err)
	}
	return nil
}

// LatestStatus returns the newest snapshot of every instance slot, ordered
// by service and port. A slot is identified by its port, so an instance
// replaced by a restart hides the one it replaced.
func (j *Journal) LatestStatus(ctx context.Context) ([]StatusRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT s.service_name, s.instance_id, s.pid, s.port, s.status, s.memory_usage,
		       s.cpu_usage, s.request_count, s.error_count, s.health_score, s.start_time,
		       s.last_health_check, s.uptime_seconds, s.created_at
		FROM service_status s
		INNER JOIN (
			SELECT service_name, port, MAX(id) AS max_id
			FROM service_status GROUP BY service_name, port
		) latest ON s.id = latest.max_id
		ORDER BY s.service_name, s.port`)
	if err != nil {
		return nil, fmt.Errorf("query latest status: %w", err)
	}
	defer rows.Close() //nolint:errcheck // rows.Err() reports read errors

	var out []StatusRecord
	for rows.Next() {
		var (
			r                          StatusRecord
			started, checked, recorded sql.NullString
			uptime                     int64
		)
		if err := rows.Scan(&r.Service, &r.InstanceID, &r.PID, &r.Port, &r.Status, &r.MemoryMB,
			&r.CPUPercent, &r.Requests, &r.Errors, &r.HealthScore, &started, &checked,
			&uptime, &recorded); err != nil {
			return nil, fmt.Errorf("scan status row: %w", err)
		}
		r.StartedAt = parseTime(started)
		r.LastCheck = parseTime(checked)
		r.RecordedAt = parseTime(recorded)
		r.Uptime = time.Duration(uptime) * time.Second
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status rows: %w", err)
	}
	return out, nil
}

// RecentRecoveries returns up to limit recovery attempts, newest first.
func (j *Journal) RecentRecoveries(ctx context.Context, limit int) ([]RecoveryRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT timestamp, service_name, COALESCE(instance_id, ''), recovery_type, success,
		       COALESCE(recovery_time_seconds, 0), COALESCE(details, '')
		FROM recovery_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recoveries: %w", err)
	}
	defer rows.Close() //nolint:errcheck // rows.Err() reports read errors

	var out []RecoveryRecord
	for rows.Next() {
		var (
			r    RecoveryRecord
			ts   sql.NullString
			secs float64
		)
		if err := rows.Scan(&ts, &r.Service, &r.InstanceID, &r.Type, &r.Success, &secs, &r.Details); err != nil {
			return nil, fmt.Errorf("scan recovery row: %w", err)
		}
		r.Time = parseTime(ts)
		r.Duration = time.Duration(secs * float64(time.Second))
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recovery rows: %w", err)
	}
	return out, nil
}

// RecentErrors returns up to limit errors, newest first.
func (j *Journal) RecentErrors(ctx context.Context, limit int) ([]ErrorRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT timestamp, service_name, COALESCE(instance_id, ''), error_type, error_message,
		       COALESCE(stack_trace, ''), resolved
		FROM error_logs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query errors: %w", err)
	}
	defer rows.Close() //nolint:errcheck // rows.Err() reports read errors

	var out []ErrorRecord
	for rows.Next() {
		var (
			e  ErrorRecord
			ts sql.NullString
		)
		if err := rows.Scan(&ts, &e.Service, &e.InstanceID, &e.Type, &e.Message, &e.Detail, &e.Resolved); err != nil {
			return nil, fmt.Errorf("scan error row: %w", err)
		}
		e.Time = parseTime(ts)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate error rows: %w", err)
	}
	return out, nil
}

// LatestMetrics returns the newest host sample, or false when none exist.
func (j *Journal) LatestMetrics(ctx context.Context) (SystemMetrics, bool, error) {
	var (
		m  SystemMetrics
		ts sql.NullString
	)
	err := j.db.QueryRowContext(ctx, `
		SELECT timestamp, COALESCE(cpu_percent, 0), COALESCE(memory_percent, 0),
		       COALESCE(disk_usage, 0), COALESCE(network_io, ''),
		       COALESCE(active_instances, 0), COALESCE(total_requests, 0), COALESCE(error_rate, 0)
		FROM system_metrics ORDER BY id DESC LIMIT 1`).Scan(
		&ts, &m.CPUPercent, &m.MemoryPercent, &m.DiskPercent, &m.NetworkIO,
		&m.ActiveInstances, &m.TotalRequests, &m.ErrorRate)
	if errors.Is(err, sql.ErrNoRows) {
		return SystemMetrics{}, false, nil
	}
	if err != nil {
		return SystemMetrics{}, false, fmt.Errorf("query latest metrics: %w", err)
	}
	m.Time = parseTime(ts)
	return m, true, nil
}
